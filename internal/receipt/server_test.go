package receipt

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"regexp"
	"strings"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/onsi/gomega/ghttp"

	"github.com/zombor/ticket-scanner/internal/i18n"
	"github.com/zombor/ticket-scanner/internal/ledger"
	"github.com/zombor/ticket-scanner/internal/scanning"
	"github.com/zombor/ticket-scanner/internal/sheets"
)

var _ = Describe("Server", func() {
	var (
		db          *mockDB
		storage     *mockStorage
		scanner     *mockScanner
		submitter   *mockSubmitter
		service     *Service
		server      *Server
		auth        BasicAuth
		ghttpServer *ghttp.Server
	)

	setupServer := func() {
		if ghttpServer != nil {
			ghttpServer.Close()
		}
		server = NewServerWithMux(service, auth, i18n.Default, http.NewServeMux())
		ghttpServer = ghttp.NewServer()
		allPaths := regexp.MustCompile(`.*`)
		for _, method := range []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"} {
			ghttpServer.RouteToHandler(method, allPaths, server.ServeHTTP)
		}
	}

	do := func(method, path string, body io.Reader, headers map[string]string) *http.Response {
		req, err := http.NewRequest(method, ghttpServer.URL()+path, body)
		Expect(err).NotTo(HaveOccurred())
		for k, v := range headers {
			req.Header.Set(k, v)
		}
		resp, err := http.DefaultClient.Do(req)
		Expect(err).NotTo(HaveOccurred())
		return resp
	}

	doJSON := func(method, path string, v any) *http.Response {
		data, err := json.Marshal(v)
		Expect(err).NotTo(HaveOccurred())
		return do(method, path, bytes.NewReader(data), map[string]string{"Content-Type": "application/json"})
	}

	readBody := func(resp *http.Response) string {
		defer resp.Body.Close()
		body, err := io.ReadAll(resp.Body)
		Expect(err).NotTo(HaveOccurred())
		return string(body)
	}

	decode := func(resp *http.Response, v any) {
		defer resp.Body.Close()
		Expect(json.NewDecoder(resp.Body).Decode(v)).To(Succeed())
	}

	upload := func(filename string, data []byte) *http.Response {
		var buf bytes.Buffer
		w := multipart.NewWriter(&buf)
		part, err := w.CreateFormFile("file", filename)
		Expect(err).NotTo(HaveOccurred())
		_, err = part.Write(data)
		Expect(err).NotTo(HaveOccurred())
		Expect(w.Close()).To(Succeed())
		return do("POST", "/api/scan", &buf, map[string]string{"Content-Type": w.FormDataContentType()})
	}

	saveRecord := func(record *ledger.Record) {
		_, err := service.SaveRecord(record)
		Expect(err).NotTo(HaveOccurred())
	}

	BeforeEach(func() {
		db = newMockDB()
		storage = newMockStorage()
		scanner = newMockScanner()
		submitter = &mockSubmitter{}
		service = NewServiceWithDeps(db, scanner, storage, submitter, testSheetConfig,
			&mockIDGenerator{ids: []string{"id-1", "id-2", "id-3"}},
			&mockTimeSource{now: time.Date(2024, 5, 12, 10, 30, 0, 0, time.UTC)})
		auth = BasicAuth{}
		setupServer()
	})

	AfterEach(func() {
		if ghttpServer != nil {
			ghttpServer.Close()
		}
	})

	Describe("CORS", func() {
		It("should answer preflight requests", func() {
			resp := do("OPTIONS", "/api/records", nil, nil)
			defer resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusNoContent))
			Expect(resp.Header.Get("Access-Control-Allow-Origin")).To(Equal("*"))
			Expect(resp.Header.Get("Access-Control-Allow-Methods")).To(ContainSubstring("PUT"))
		})

		It("should add headers to regular responses", func() {
			resp := do("GET", "/api/records", nil, nil)
			defer resp.Body.Close()
			Expect(resp.Header.Get("Access-Control-Allow-Origin")).To(Equal("*"))
		})
	})

	Describe("authentication", func() {
		BeforeEach(func() {
			auth = BasicAuth{Username: "admin", Password: "secret"}
			setupServer()
		})

		When("credentials are missing", func() {
			It("should return status Unauthorized", func() {
				resp := do("GET", "/api/records", nil, nil)
				defer resp.Body.Close()
				Expect(resp.StatusCode).To(Equal(http.StatusUnauthorized))
				Expect(resp.Header.Get("WWW-Authenticate")).To(ContainSubstring("Ticket Scanner"))
			})
		})

		When("credentials are wrong", func() {
			It("should return status Unauthorized", func() {
				token := base64.StdEncoding.EncodeToString([]byte("admin:wrong"))
				resp := do("GET", "/api/records", nil, map[string]string{"Authorization": "Basic " + token})
				defer resp.Body.Close()
				Expect(resp.StatusCode).To(Equal(http.StatusUnauthorized))
			})
		})

		When("credentials are valid", func() {
			It("should return status OK", func() {
				token := base64.StdEncoding.EncodeToString([]byte("admin:secret"))
				resp := do("GET", "/api/records", nil, map[string]string{"Authorization": "Basic " + token})
				defer resp.Body.Close()
				Expect(resp.StatusCode).To(Equal(http.StatusOK))
			})
		})
	})

	Describe("POST /api/scan", func() {
		When("a file is uploaded", func() {
			It("should return the extracted draft", func() {
				resp := upload("ticket.jpg", []byte("image data"))
				Expect(resp.StatusCode).To(Equal(http.StatusOK))

				var body struct {
					CurrentReceipt ledger.Record `json:"currentReceipt"`
					ImageFile      string        `json:"imageFile"`
					ScanFailed     bool          `json:"scanFailed"`
					Message        string        `json:"message"`
				}
				decode(resp, &body)
				Expect(body.CurrentReceipt.ID).To(Equal("id-1"))
				Expect(body.CurrentReceipt.Establishment).To(Equal("Mercadona"))
				Expect(body.ImageFile).To(Equal("id-1_ticket.jpg"))
				Expect(body.ScanFailed).To(BeFalse())
				Expect(body.Message).To(BeEmpty())
			})

			It("should detect the content type from the extension", func() {
				resp := upload("scan.pdf", []byte("%PDF-1.4"))
				resp.Body.Close()
				Expect(scanner.lastType).To(Equal("application/pdf"))
			})
		})

		When("a data URI is posted", func() {
			It("should return the extracted draft", func() {
				resp := doJSON("POST", "/api/scan", map[string]string{
					"image": scanning.EncodeDataURI([]byte("image"), "image/png"),
				})
				Expect(resp.StatusCode).To(Equal(http.StatusOK))
				Expect(readBody(resp)).To(ContainSubstring(`"imageFile":"id-1_receipt.png"`))
			})
		})

		When("extraction fails", func() {
			BeforeEach(func() {
				scanner.scanErr = errors.New("quota exceeded")
			})

			It("should return a blank draft with a translated message", func() {
				var buf bytes.Buffer
				w := multipart.NewWriter(&buf)
				part, _ := w.CreateFormFile("file", "ticket.jpg")
				part.Write([]byte("image data"))
				w.Close()

				resp := do("POST", "/api/scan", &buf, map[string]string{
					"Content-Type":    w.FormDataContentType(),
					"Accept-Language": "en-US,en;q=0.9",
				})
				Expect(resp.StatusCode).To(Equal(http.StatusOK))

				var body map[string]any
				decode(resp, &body)
				Expect(body["scanFailed"]).To(BeTrue())
				Expect(body["message"]).To(Equal(i18n.For(i18n.English).ScanFailed))
			})
		})

		When("the body is not valid", func() {
			It("should return status Bad Request", func() {
				resp := do("POST", "/api/scan", strings.NewReader("{"), map[string]string{"Content-Type": "application/json"})
				Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
				Expect(readBody(resp)).To(ContainSubstring(i18n.For(i18n.Spanish).InvalidRequest))
			})
		})

		When("no file is uploaded", func() {
			var (
				buf         bytes.Buffer
				contentType string
			)

			BeforeEach(func() {
				buf.Reset()
				w := multipart.NewWriter(&buf)
				w.WriteField("other", "value")
				w.Close()
				contentType = w.FormDataContentType()
			})

			It("should return status Bad Request in the default language", func() {
				resp := do("POST", "/api/scan", &buf, map[string]string{"Content-Type": contentType})
				Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))

				var body map[string]string
				decode(resp, &body)
				Expect(body["error"]).To(Equal(i18n.For(i18n.Spanish).NoFile))
			})

			It("should translate the message for the requested language", func() {
				resp := do("POST", "/api/scan?lang=en", &buf, map[string]string{"Content-Type": contentType})
				Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))

				var body map[string]string
				decode(resp, &body)
				Expect(body["error"]).To(Equal(i18n.For(i18n.English).NoFile))
			})
		})

		When("the multipart body is malformed", func() {
			It("should return a translated parse error", func() {
				resp := do("POST", "/api/scan", strings.NewReader("not multipart"), map[string]string{
					"Content-Type":    "multipart/form-data; boundary=xyz",
					"Accept-Language": "it-IT",
				})
				Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))

				var body map[string]string
				decode(resp, &body)
				Expect(body["error"]).To(Equal(i18n.For(i18n.Italian).FormParseFailed))
			})
		})
	})

	Describe("/api/session", func() {
		When("there is no draft", func() {
			It("should return status No Content", func() {
				resp := do("GET", "/api/session", nil, nil)
				resp.Body.Close()
				Expect(resp.StatusCode).To(Equal(http.StatusNoContent))
			})
		})

		When("a draft exists", func() {
			BeforeEach(func() {
				upload("ticket.jpg", []byte("image data")).Body.Close()
			})

			It("should return it", func() {
				resp := do("GET", "/api/session", nil, nil)
				Expect(resp.StatusCode).To(Equal(http.StatusOK))
				Expect(readBody(resp)).To(ContainSubstring("Mercadona"))
			})

			It("should store edits", func() {
				resp := doJSON("PUT", "/api/session", ledger.Record{ID: "id-1", Establishment: "Lidl", Amount: "3,10"})
				Expect(resp.StatusCode).To(Equal(http.StatusOK))
				resp.Body.Close()

				session, err := service.CurrentSession()
				Expect(err).NotTo(HaveOccurred())
				Expect(session.Record.Establishment).To(Equal("Lidl"))
				Expect(session.ImageFile).To(Equal("id-1_ticket.jpg"))
			})

			It("should discard it", func() {
				resp := do("DELETE", "/api/session", nil, nil)
				resp.Body.Close()
				Expect(resp.StatusCode).To(Equal(http.StatusNoContent))

				session, err := service.CurrentSession()
				Expect(err).NotTo(HaveOccurred())
				Expect(session).To(BeNil())
			})
		})

		When("an edit has no id", func() {
			It("should return status Bad Request", func() {
				resp := doJSON("PUT", "/api/session", ledger.Record{Establishment: "Lidl"})
				resp.Body.Close()
				Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
			})
		})
	})

	Describe("/api/records", func() {
		When("the ledger is empty", func() {
			It("should return an empty array", func() {
				resp := do("GET", "/api/records", nil, nil)
				Expect(resp.StatusCode).To(Equal(http.StatusOK))
				Expect(strings.TrimSpace(readBody(resp))).To(Equal("[]"))
			})
		})

		When("a record is posted", func() {
			It("should store it and return it", func() {
				resp := doJSON("POST", "/api/records", ledger.Record{Establishment: "Mercadona", Amount: "23,45", Payer: "Ana"})
				Expect(resp.StatusCode).To(Equal(http.StatusCreated))

				var saved ledger.Record
				decode(resp, &saved)
				Expect(saved.ID).To(Equal("id-1"))

				records, err := service.ListRecords()
				Expect(err).NotTo(HaveOccurred())
				Expect(records).To(HaveLen(1))
			})
		})

		When("the ledger cannot be written", func() {
			BeforeEach(func() {
				db.putErr = errors.New("disk full")
			})

			It("should return a translated error", func() {
				resp := doJSON("POST", "/api/records?lang=it", ledger.Record{Amount: "1"})
				Expect(resp.StatusCode).To(Equal(http.StatusInternalServerError))
				Expect(readBody(resp)).To(ContainSubstring(i18n.For(i18n.Italian).SaveFailed))
			})
		})

		When("the ledger cannot be read", func() {
			BeforeEach(func() {
				db.getErr = errors.New("io error")
			})

			It("should return a translated internal error", func() {
				resp := do("GET", "/api/records?lang=en", nil, nil)
				Expect(resp.StatusCode).To(Equal(http.StatusInternalServerError))

				var body map[string]string
				decode(resp, &body)
				Expect(body["error"]).To(Equal(i18n.For(i18n.English).InternalError))
			})
		})

		When("records exist", func() {
			BeforeEach(func() {
				saveRecord(&ledger.Record{Establishment: "A", Amount: "1"})
				saveRecord(&ledger.Record{Establishment: "B", Amount: "2"})
			})

			It("should list them in order", func() {
				resp := do("GET", "/api/records", nil, nil)
				var records []ledger.Record
				decode(resp, &records)
				Expect(records).To(HaveLen(2))
				Expect(records[0].Establishment).To(Equal("A"))
				Expect(records[1].Establishment).To(Equal("B"))
			})

			It("should delete one record", func() {
				resp := do("DELETE", "/api/records/id-1", nil, nil)
				resp.Body.Close()
				Expect(resp.StatusCode).To(Equal(http.StatusNoContent))

				records, err := service.ListRecords()
				Expect(err).NotTo(HaveOccurred())
				Expect(records).To(HaveLen(1))
			})

			It("should clear the ledger", func() {
				resp := do("DELETE", "/api/records", nil, nil)
				resp.Body.Close()
				Expect(resp.StatusCode).To(Equal(http.StatusNoContent))

				records, err := service.ListRecords()
				Expect(err).NotTo(HaveOccurred())
				Expect(records).To(BeEmpty())
			})
		})

		When("deleting an unknown record", func() {
			It("should return status Not Found in the default language", func() {
				resp := do("DELETE", "/api/records/missing", nil, nil)
				Expect(resp.StatusCode).To(Equal(http.StatusNotFound))
				Expect(readBody(resp)).To(ContainSubstring(i18n.For(i18n.Spanish).NotFound))
			})

			It("should honour the lang parameter", func() {
				resp := do("DELETE", "/api/records/missing?lang=en", nil, nil)
				Expect(readBody(resp)).To(ContainSubstring(i18n.For(i18n.English).NotFound))
			})
		})
	})

	Describe("GET /api/summary", func() {
		It("should return the count and total", func() {
			saveRecord(&ledger.Record{Amount: "1.234,50"})
			saveRecord(&ledger.Record{Amount: "0,50"})

			resp := do("GET", "/api/summary", nil, nil)
			Expect(resp.StatusCode).To(Equal(http.StatusOK))

			var summary Summary
			decode(resp, &summary)
			Expect(summary.Count).To(Equal(2))
			Expect(summary.FormattedTotal).To(Equal("1235.00"))
		})
	})

	Describe("GET /api/export.csv", func() {
		BeforeEach(func() {
			saveRecord(&ledger.Record{Date: "2024-05-12", Establishment: "Mercadona", Amount: "23,45", Payer: "Ana"})
		})

		It("should return a CSV download", func() {
			resp := do("GET", "/api/export.csv?lang=en", nil, nil)
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			Expect(resp.Header.Get("Content-Type")).To(Equal("text/csv"))
			Expect(resp.Header.Get("Content-Disposition")).To(Equal(`attachment; filename="tickets_2024-05-12.csv"`))

			body := readBody(resp)
			Expect(body).To(HavePrefix("Date,Establishment,Amount,Payer\n"))
			Expect(body).To(ContainSubstring(`"","FINAL TOTAL","23.45",""`))
		})

		It("should use the Accept-Language header", func() {
			resp := do("GET", "/api/export.csv", nil, map[string]string{"Accept-Language": "it-IT"})
			Expect(readBody(resp)).To(HavePrefix("Data,Esercizio,Importo,Pagante\n"))
		})
	})

	Describe("/api/settings", func() {
		It("should return defaults", func() {
			resp := do("GET", "/api/settings", nil, nil)
			Expect(resp.StatusCode).To(Equal(http.StatusOK))

			var settings scanning.Settings
			decode(resp, &settings)
			Expect(settings).To(Equal(scanning.Settings{}))
		})

		It("should store new settings", func() {
			resp := doJSON("PUT", "/api/settings", scanning.Settings{ExtractItems: true, ExtractNotes: true})
			resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			Expect(service.Settings()).To(Equal(scanning.Settings{ExtractItems: true, ExtractNotes: true}))
		})

		It("should reject an invalid body", func() {
			resp := do("PUT", "/api/settings", strings.NewReader("nope"), nil)
			resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
		})
	})

	Describe("POST /api/records/{id}/sheet", func() {
		BeforeEach(func() {
			saveRecord(&ledger.Record{Date: "2024-05-12", Establishment: "Mercadona", Amount: "23,45", Payer: "Ana"})
		})

		When("the submission succeeds", func() {
			It("should return status No Content", func() {
				resp := do("POST", "/api/records/id-1/sheet", nil, nil)
				resp.Body.Close()
				Expect(resp.StatusCode).To(Equal(http.StatusNoContent))
				Expect(submitter.entries).To(HaveLen(1))
			})
		})

		When("the configuration is incomplete", func() {
			It("should return status Bad Request", func() {
				resp := doJSON("POST", "/api/records/id-1/sheet?lang=en", map[string]string{
					"config": `{"formUrl":"https://example.com/viewform"}`,
				})
				Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
				Expect(readBody(resp)).To(ContainSubstring(i18n.For(i18n.English).IncompleteConfig))
			})
		})

		When("the form cannot be reached", func() {
			BeforeEach(func() {
				submitter.submitErr = sheets.ErrSubmitFailed
			})

			It("should return status Bad Gateway", func() {
				resp := do("POST", "/api/records/id-1/sheet", nil, nil)
				resp.Body.Close()
				Expect(resp.StatusCode).To(Equal(http.StatusBadGateway))
			})
		})

		When("the record does not exist", func() {
			It("should return status Not Found", func() {
				resp := do("POST", "/api/records/missing/sheet", nil, nil)
				resp.Body.Close()
				Expect(resp.StatusCode).To(Equal(http.StatusNotFound))
			})
		})
	})

	Describe("GET /api/images/{name}", func() {
		It("should return a stored image", func() {
			storage.files["id-1_ticket.png"] = []byte("\x89PNG\r\n\x1a\nrest")

			resp := do("GET", "/api/images/id-1_ticket.png", nil, nil)
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			Expect(resp.Header.Get("Content-Type")).To(Equal("image/png"))
			resp.Body.Close()
		})

		It("should return status Not Found for a missing image", func() {
			resp := do("GET", "/api/images/missing.png", nil, nil)
			resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusNotFound))
		})
	})

	Describe("uploadContentType", func() {
		It("should prefer the declared type", func() {
			Expect(uploadContentType("image/heic", "photo.jpg")).To(Equal("image/heic"))
		})

		It("should fall back to the extension", func() {
			Expect(uploadContentType("application/octet-stream", "photo.HEIC")).To(Equal("image/heic"))
			Expect(uploadContentType("", "unknown.bin")).To(Equal(scanning.DefaultContentType))
		})
	})
})

var _ = Describe("Server lifecycle", func() {
	var server *Server

	BeforeEach(func() {
		service := NewService(newMockDB(), newMockScanner(), newMockStorage(), &mockSubmitter{}, "")
		server = NewServer(service, BasicAuth{}, i18n.Default)
	})

	It("should return from Start when Shutdown ran first", func() {
		Expect(server.Shutdown(context.Background())).To(Succeed())
		Expect(server.Start("127.0.0.1:0")).To(Succeed())
	})

	It("should stop a running server whenever Shutdown lands", func() {
		done := make(chan error, 1)
		go func() {
			done <- server.Start("127.0.0.1:0")
		}()

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		Expect(server.Shutdown(ctx)).To(Succeed())
		Eventually(done).WithTimeout(5 * time.Second).Should(Receive(BeNil()))
	})

	It("should report a listen failure", func() {
		Expect(server.Start("not-an-address")).To(HaveOccurred())
	})
})

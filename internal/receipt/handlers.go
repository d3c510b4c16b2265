package receipt

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/zombor/ticket-scanner/internal/i18n"
	"github.com/zombor/ticket-scanner/internal/ledger"
	"github.com/zombor/ticket-scanner/internal/scanning"
	"github.com/zombor/ticket-scanner/internal/sheets"
)

// maxUploadSize covers high resolution phone photos
const maxUploadSize = int64(50 << 20)

// requestLanguage picks the language from ?lang=, then Accept-Language, then the server default
func (s *Server) requestLanguage(r *http.Request) i18n.Language {
	if lang := r.URL.Query().Get("lang"); lang != "" {
		return i18n.Parse(lang)
	}
	if header := r.Header.Get("Accept-Language"); header != "" {
		return i18n.Parse(header)
	}
	return s.language
}

func (s *Server) catalog(r *http.Request) i18n.Catalog {
	return i18n.For(s.requestLanguage(r))
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Error encoding response", "error", err)
	}
}

func writeError(w http.ResponseWriter, code int, message string) {
	writeJSON(w, code, map[string]string{"error": message})
}

// writeServiceError maps a service error to a status code and a translated message
func (s *Server) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	c := s.catalog(r)
	switch {
	case errors.Is(err, ErrNotFound):
		writeError(w, http.StatusNotFound, c.NotFound)
	case errors.Is(err, ErrInvalidRecord):
		writeError(w, http.StatusBadRequest, c.InvalidRequest)
	case errors.Is(err, ErrSaveFailed):
		slog.Error("Error saving record", "error", err)
		writeError(w, http.StatusInternalServerError, c.SaveFailed)
	case errors.Is(err, sheets.ErrMissingConfig):
		writeError(w, http.StatusBadRequest, c.MissingConfig)
	case errors.Is(err, sheets.ErrInvalidConfig):
		writeError(w, http.StatusBadRequest, c.InvalidConfig)
	case errors.Is(err, sheets.ErrIncompleteConfig):
		writeError(w, http.StatusBadRequest, c.IncompleteConfig)
	case errors.Is(err, sheets.ErrSubmitFailed):
		writeError(w, http.StatusBadGateway, c.SheetFailed)
	default:
		slog.Error("Internal error", "path", r.URL.Path, "error", err)
		writeError(w, http.StatusInternalServerError, c.InternalError)
	}
}

// sessionResponse is a session plus the message to show above the form
type sessionResponse struct {
	*Session
	Message string `json:"message,omitempty"`
}

func (s *Server) writeSession(w http.ResponseWriter, r *http.Request, session *Session) {
	resp := sessionResponse{Session: session}
	if session.ScanFailed {
		resp.Message = s.catalog(r).ScanFailed
	}
	writeJSON(w, http.StatusOK, resp)
}

// uploadContentType determines the MIME type of an uploaded file
func uploadContentType(declared, filename string) string {
	if declared != "" && declared != "application/octet-stream" {
		return strings.ToLower(strings.TrimSpace(declared))
	}
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".png":
		return "image/png"
	case ".pdf":
		return "application/pdf"
	case ".heic":
		return "image/heic"
	case ".heif":
		return "image/heif"
	case ".webp":
		return "image/webp"
	}
	return scanning.DefaultContentType
}

// handleScan accepts either a multipart "file" upload or a JSON {"image": "data:..."} body
func (s *Server) handleScan(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadSize*2)

	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
		s.handleScanUpload(w, r)
		return
	}

	var req struct {
		Image string `json:"image"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Image == "" {
		writeError(w, http.StatusBadRequest, s.catalog(r).InvalidRequest)
		return
	}

	session, err := s.service.ScanDataURI(r.Context(), req.Image)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	s.writeSession(w, r, session)
}

func (s *Server) handleScanUpload(w http.ResponseWriter, r *http.Request) {
	c := s.catalog(r)
	if err := r.ParseMultipartForm(maxUploadSize); err != nil {
		slog.Error("Error parsing multipart form", "error", err)
		errorMsg := c.FormParseFailed
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			errorMsg = c.FileTooLarge
		}
		writeError(w, http.StatusBadRequest, errorMsg)
		return
	}

	f, header, err := r.FormFile("file")
	if err != nil {
		slog.Error("Error getting file from form", "error", err)
		writeError(w, http.StatusBadRequest, c.NoFile)
		return
	}
	defer f.Close()

	if header.Size > maxUploadSize {
		writeError(w, http.StatusBadRequest, c.FileTooLarge)
		return
	}

	data, err := io.ReadAll(f)
	if err != nil {
		slog.Error("Error reading file data", "error", err, "filename", header.Filename)
		writeError(w, http.StatusInternalServerError, c.FileReadFailed)
		return
	}

	contentType := uploadContentType(header.Header.Get("Content-Type"), header.Filename)

	session, err := s.service.Scan(r.Context(), header.Filename, data, contentType)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	s.writeSession(w, r, session)
}

// handleGetSession returns the draft being edited, 204 when there is none
func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	session, err := s.service.CurrentSession()
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	if session == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	s.writeSession(w, r, session)
}

func (s *Server) handleUpdateSession(w http.ResponseWriter, r *http.Request) {
	var record ledger.Record
	if err := json.NewDecoder(r.Body).Decode(&record); err != nil {
		writeError(w, http.StatusBadRequest, s.catalog(r).InvalidRequest)
		return
	}

	session, err := s.service.UpdateSession(&record)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	s.writeSession(w, r, session)
}

func (s *Server) handleDiscardSession(w http.ResponseWriter, r *http.Request) {
	if err := s.service.DiscardSession(); err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleListRecords returns the ledger, always as an array
func (s *Server) handleListRecords(w http.ResponseWriter, r *http.Request) {
	records, err := s.service.ListRecords()
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, records)
}

func (s *Server) handleSaveRecord(w http.ResponseWriter, r *http.Request) {
	var record ledger.Record
	if err := json.NewDecoder(r.Body).Decode(&record); err != nil {
		writeError(w, http.StatusBadRequest, s.catalog(r).InvalidRequest)
		return
	}

	saved, err := s.service.SaveRecord(&record)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, saved)
}

func (s *Server) handleDeleteRecord(w http.ResponseWriter, r *http.Request) {
	if err := s.service.DeleteRecord(r.PathValue("id")); err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleClearRecords(w http.ResponseWriter, r *http.Request) {
	if err := s.service.ClearHistory(); err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	summary, err := s.service.Summary()
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

func (s *Server) handleExportCSV(w http.ResponseWriter, r *http.Request) {
	export, err := s.service.ExportCSV(s.requestLanguage(r))
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", export.ContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", export.Filename))
	w.Write(export.Data)
}

func (s *Server) handleGetSettings(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.service.Settings())
}

func (s *Server) handleUpdateSettings(w http.ResponseWriter, r *http.Request) {
	var settings scanning.Settings
	if err := json.NewDecoder(r.Body).Decode(&settings); err != nil {
		writeError(w, http.StatusBadRequest, s.catalog(r).InvalidRequest)
		return
	}
	if err := s.service.UpdateSettings(settings); err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, settings)
}

// handleSubmitToSheet forwards a record to the spreadsheet form. The body may
// carry {"config": "<form config json>"}, otherwise the server default is used.
func (s *Server) handleSubmitToSheet(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Config string `json:"config"`
	}
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
			writeError(w, http.StatusBadRequest, s.catalog(r).InvalidRequest)
			return
		}
	}

	if err := s.service.SubmitToSheet(r.Context(), r.PathValue("id"), req.Config); err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleGetImage(w http.ResponseWriter, r *http.Request) {
	data, contentType, err := s.service.GetImage(r.PathValue("name"))
	if err != nil {
		writeError(w, http.StatusNotFound, s.catalog(r).NotFound)
		return
	}
	w.Header().Set("Content-Type", contentType)
	w.Write(data)
}

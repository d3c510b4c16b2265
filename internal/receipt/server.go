package receipt

import (
	"context"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/zombor/ticket-scanner/internal/i18n"
)

// Server handles HTTP requests for receipts
type Server struct {
	service   *Service
	basicAuth BasicAuth
	language  i18n.Language
	mux       *http.ServeMux
	http      *http.Server
}

// BasicAuth holds basic authentication credentials
type BasicAuth struct {
	Username string
	Password string
}

// NewServer creates a new Server with default mux
func NewServer(service *Service, basicAuth BasicAuth, language i18n.Language) *Server {
	return NewServerWithMux(service, basicAuth, language, http.NewServeMux())
}

// NewServerWithMux creates a new Server with a custom mux for testing
func NewServerWithMux(service *Service, basicAuth BasicAuth, language i18n.Language, mux *http.ServeMux) *Server {
	if language == "" {
		language = i18n.Default
	}
	s := &Server{
		service:   service,
		basicAuth: basicAuth,
		language:  language,
		mux:       mux,
	}
	s.http = &http.Server{
		Handler:           s.corsMiddleware(mux),
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.registerRoutes()
	return s
}

// authenticate checks basic auth credentials
func (s *Server) authenticate(r *http.Request) bool {
	if s.basicAuth.Username == "" && s.basicAuth.Password == "" {
		return true // No auth required if not configured
	}

	auth := r.Header.Get("Authorization")
	if !strings.HasPrefix(auth, "Basic ") {
		return false
	}

	decoded, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(auth, "Basic "))
	if err != nil {
		return false
	}

	user, pass, ok := strings.Cut(string(decoded), ":")
	if !ok {
		return false
	}

	userOK := subtle.ConstantTimeCompare([]byte(user), []byte(s.basicAuth.Username)) == 1
	passOK := subtle.ConstantTimeCompare([]byte(pass), []byte(s.basicAuth.Password)) == 1
	return userOK && passOK
}

// setCORSHeaders sets CORS headers on a response
func setCORSHeaders(w http.ResponseWriter) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, Accept-Language")
	w.Header().Set("Access-Control-Expose-Headers", "Content-Disposition")
	w.Header().Set("Access-Control-Max-Age", "3600")
}

// corsMiddleware adds CORS headers to responses and answers preflight requests
func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		setCORSHeaders(w)

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// requireAuth middleware
func (s *Server) requireAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !s.authenticate(r) {
			w.Header().Set("WWW-Authenticate", `Basic realm="Ticket Scanner"`)
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		next(w, r)
	}
}

// registerRoutes registers all API routes on the server's mux
func (s *Server) registerRoutes() {
	s.mux.HandleFunc("POST /api/scan", s.requireAuth(s.handleScan))

	s.mux.HandleFunc("GET /api/session", s.requireAuth(s.handleGetSession))
	s.mux.HandleFunc("PUT /api/session", s.requireAuth(s.handleUpdateSession))
	s.mux.HandleFunc("DELETE /api/session", s.requireAuth(s.handleDiscardSession))

	s.mux.HandleFunc("POST /api/records/{id}/sheet", s.requireAuth(s.handleSubmitToSheet))
	s.mux.HandleFunc("DELETE /api/records/{id}", s.requireAuth(s.handleDeleteRecord))
	s.mux.HandleFunc("GET /api/records", s.requireAuth(s.handleListRecords))
	s.mux.HandleFunc("POST /api/records", s.requireAuth(s.handleSaveRecord))
	s.mux.HandleFunc("DELETE /api/records", s.requireAuth(s.handleClearRecords))

	s.mux.HandleFunc("GET /api/summary", s.requireAuth(s.handleSummary))
	s.mux.HandleFunc("GET /api/export.csv", s.requireAuth(s.handleExportCSV))

	s.mux.HandleFunc("GET /api/settings", s.requireAuth(s.handleGetSettings))
	s.mux.HandleFunc("PUT /api/settings", s.requireAuth(s.handleUpdateSettings))

	s.mux.HandleFunc("GET /api/images/{name}", s.requireAuth(s.handleGetImage))
}

// Start listens on addr and blocks until the server stops. A Shutdown issued
// before or during Start makes it return nil.
func (s *Server) Start(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	slog.Info("Starting server", "address", ln.Addr().String())
	err = s.http.Serve(ln)
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Shutdown gracefully stops the server
func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}

// ServeHTTP implements http.Handler for testing
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.corsMiddleware(s.mux).ServeHTTP(w, r)
}

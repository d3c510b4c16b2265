package receipt

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/zombor/ticket-scanner/internal/i18n"
	"github.com/zombor/ticket-scanner/internal/ledger"
	"github.com/zombor/ticket-scanner/internal/scanning"
	"github.com/zombor/ticket-scanner/internal/sheets"
)

// IDGenerator generates unique IDs for records
type IDGenerator interface {
	Generate() string
}

// TimeSource provides the current time
type TimeSource interface {
	Now() time.Time
}

// FormSubmitter forwards an entry to a spreadsheet form
type FormSubmitter interface {
	Submit(ctx context.Context, cfg *sheets.FormConfig, entry sheets.Entry) error
}

type defaultIDGenerator struct{}

func (g *defaultIDGenerator) Generate() string {
	return uuid.NewString()
}

type defaultTimeSource struct{}

func (t *defaultTimeSource) Now() time.Time {
	return time.Now()
}

// Service handles receipt operations
type Service struct {
	// historyMu serializes the load-modify-save cycles on the ledger
	historyMu   sync.Mutex
	history     Repository[[]*ledger.Record]
	settings    Repository[scanning.Settings]
	session     Repository[*Session]
	scanner     scanning.Scanner
	storage     Storage
	submitter   FormSubmitter
	sheetConfig string
	idGenerator IDGenerator
	timeSource  TimeSource
}

// NewService creates a new Service with default ID generator and time source.
// sheetConfig is the form configuration used when a submission does not carry one.
func NewService(db DB, scanner scanning.Scanner, storage Storage, submitter FormSubmitter, sheetConfig string) *Service {
	return NewServiceWithDeps(db, scanner, storage, submitter, sheetConfig, &defaultIDGenerator{}, &defaultTimeSource{})
}

// NewServiceWithDeps creates a new Service with custom dependencies for testing
func NewServiceWithDeps(db DB, scanner scanning.Scanner, storage Storage, submitter FormSubmitter, sheetConfig string, idGen IDGenerator, timeSrc TimeSource) *Service {
	return &Service{
		history:     NewRepository[[]*ledger.Record](db, historyKey),
		settings:    NewRepository[scanning.Settings](db, settingsKey),
		session:     NewRepository[*Session](db, sessionKey),
		scanner:     scanner,
		storage:     storage,
		submitter:   submitter,
		sheetConfig: sheetConfig,
		idGenerator: idGen,
		timeSource:  timeSrc,
	}
}

var (
	filenameCharsRe = regexp.MustCompile(`[^a-zA-Z0-9\s\-_]`)
	whitespaceRe    = regexp.MustCompile(`\s+`)
)

// sanitizeFilename cleans up a filename by removing special characters and truncating length
func sanitizeFilename(filename string) string {
	ext := strings.ToLower(filepath.Ext(filename))
	base := strings.TrimSuffix(filepath.Base(filename), filepath.Ext(filename))

	base = filenameCharsRe.ReplaceAllString(base, "")
	base = whitespaceRe.ReplaceAllString(base, "_")
	base = strings.Trim(base, "_")

	if len(base) > 50 {
		base = base[:50]
	}
	if base == "" || base == "." {
		base = "receipt"
	}
	if ext == "." || filenameCharsRe.MatchString(strings.TrimPrefix(ext, ".")) {
		ext = ""
	}

	return base + ext
}

var extensionsByType = map[string]string{
	"image/jpeg":      ".jpg",
	"image/png":       ".png",
	"image/gif":       ".gif",
	"image/webp":      ".webp",
	"image/heic":      ".heic",
	"image/heif":      ".heif",
	"application/pdf": ".pdf",
}

// Scan stores the uploaded image and runs the extractor on it. A failed extraction
// is not an error: the returned session holds a blank record flagged ScanFailed so
// the user can type the data in.
func (s *Service) Scan(ctx context.Context, filename string, data []byte, contentType string) (*Session, error) {
	id := s.idGenerator.Generate()
	now := s.timeSource.Now()

	savedPath, err := s.storage.Save(fmt.Sprintf("%s_%s", id, sanitizeFilename(filename)), data)
	if err != nil {
		return nil, fmt.Errorf("saving file: %w", err)
	}

	session := &Session{
		Record:      &ledger.Record{ID: id, Timestamp: now.UnixMilli()},
		ImageFile:   savedPath,
		ContentType: contentType,
		UpdatedAt:   now,
	}

	settings := s.Settings()
	extraction, err := s.scanner.ScanReceipt(ctx, data, contentType, settings)
	if err != nil {
		slog.Error("Failed to scan receipt",
			"filename", filename,
			"content_type", contentType,
			"file_size", len(data),
			"error", err,
		)
		session.ScanFailed = true
	} else {
		session.Record.Date = extraction.Date
		session.Record.Establishment = extraction.Establishment
		session.Record.Amount = extraction.Amount
		session.Record.ItemCount = extraction.ItemCount
		session.Record.Category = extraction.Category
		session.Record.Items = extraction.Items
	}

	s.replaceSession(session)
	return session, nil
}

// ScanDataURI decodes a data URI image and scans it
func (s *Service) ScanDataURI(ctx context.Context, uri string) (*Session, error) {
	data, contentType, err := scanning.DecodeDataURI(uri)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRecord, err)
	}
	return s.Scan(ctx, "receipt"+extensionsByType[contentType], data, contentType)
}

// replaceSession stores a new snapshot and drops the image of the one it replaces
func (s *Service) replaceSession(session *Session) {
	previous, _, err := s.session.Load()
	if err == nil && previous != nil && previous.ImageFile != "" && previous.ImageFile != session.ImageFile {
		if err := s.storage.Delete(previous.ImageFile); err != nil {
			slog.Warn("Failed to delete previous session image", "filename", previous.ImageFile, "error", err)
		}
	}
	if err := s.session.Save(session); err != nil {
		// The draft is still returned to the client, only reload survival is lost
		slog.Warn("Failed to save session", "error", err)
	}
}

// CurrentSession returns the draft being edited, or nil when there is none
func (s *Service) CurrentSession() (*Session, error) {
	session, ok, err := s.session.Load()
	if errors.Is(err, ErrCorrupt) {
		slog.Warn("Discarding unreadable session", "error", err)
		if clearErr := s.session.Clear(); clearErr != nil {
			return nil, fmt.Errorf("clearing session: %w", clearErr)
		}
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("loading session: %w", err)
	}
	if !ok || !session.restorable() {
		return nil, nil
	}
	return session, nil
}

// UpdateSession replaces the draft record with the user's edits
func (s *Service) UpdateSession(record *ledger.Record) (*Session, error) {
	if record == nil || record.ID == "" {
		return nil, fmt.Errorf("%w: missing id", ErrInvalidRecord)
	}

	current, err := s.CurrentSession()
	if err != nil {
		return nil, err
	}

	session := &Session{Record: record, UpdatedAt: s.timeSource.Now()}
	if current != nil && current.Record.ID == record.ID {
		session.ImageFile = current.ImageFile
		session.ContentType = current.ContentType
		session.ScanFailed = current.ScanFailed
	}

	s.replaceSession(session)
	return session, nil
}

// DiscardSession drops the draft and its image
func (s *Service) DiscardSession() error {
	session, _, err := s.session.Load()
	if err == nil && session != nil && session.ImageFile != "" {
		if err := s.storage.Delete(session.ImageFile); err != nil {
			slog.Warn("Failed to delete session image", "filename", session.ImageFile, "error", err)
		}
	}
	if err := s.session.Clear(); err != nil {
		return fmt.Errorf("clearing session: %w", err)
	}
	return nil
}

// loadHistory reads the ledger. An unreadable ledger is logged and treated as empty.
func (s *Service) loadHistory() ([]*ledger.Record, error) {
	records, _, err := s.history.Load()
	if errors.Is(err, ErrCorrupt) {
		slog.Error("Error loading history", "error", err)
		return []*ledger.Record{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("loading history: %w", err)
	}
	if records == nil {
		records = []*ledger.Record{}
	}
	return records, nil
}

// SaveRecord appends a confirmed record to the ledger and ends the edit session
func (s *Service) SaveRecord(record *ledger.Record) (*ledger.Record, error) {
	if record == nil {
		return nil, fmt.Errorf("%w: empty record", ErrInvalidRecord)
	}
	if record.ID == "" {
		record.ID = s.idGenerator.Generate()
	}
	if record.Timestamp == 0 {
		record.Timestamp = s.timeSource.Now().UnixMilli()
	}

	s.historyMu.Lock()
	defer s.historyMu.Unlock()

	records, err := s.loadHistory()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSaveFailed, err)
	}

	records = append(records, record)
	if err := s.history.Save(records); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSaveFailed, err)
	}

	if err := s.DiscardSession(); err != nil {
		slog.Warn("Failed to clear session after save", "error", err)
	}

	return record, nil
}

// ListRecords returns the ledger in insertion order
func (s *Service) ListRecords() ([]*ledger.Record, error) {
	return s.loadHistory()
}

// GetRecord returns one record by id
func (s *Service) GetRecord(id string) (*ledger.Record, error) {
	records, err := s.loadHistory()
	if err != nil {
		return nil, err
	}
	for _, r := range records {
		if r.ID == id {
			return r, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
}

// DeleteRecord removes one record, leaving the order of the rest unchanged
func (s *Service) DeleteRecord(id string) error {
	s.historyMu.Lock()
	defer s.historyMu.Unlock()

	records, err := s.loadHistory()
	if err != nil {
		return err
	}

	remaining, removed := ledger.Remove(records, id)
	if !removed {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}

	if err := s.history.Save(remaining); err != nil {
		return fmt.Errorf("deleting record: %w", err)
	}
	return nil
}

// ClearHistory removes every record
func (s *Service) ClearHistory() error {
	s.historyMu.Lock()
	defer s.historyMu.Unlock()

	if err := s.history.Clear(); err != nil {
		return fmt.Errorf("clearing history: %w", err)
	}
	return nil
}

// Summary returns the record count and the total of all amounts
func (s *Service) Summary() (*Summary, error) {
	records, err := s.loadHistory()
	if err != nil {
		return nil, err
	}
	total := ledger.ComputeTotal(records)
	return &Summary{
		Count:          len(records),
		Total:          total,
		FormattedTotal: ledger.FormatTotal(total),
	}, nil
}

// ExportCSV renders the whole ledger as a CSV download
func (s *Service) ExportCSV(lang i18n.Language) (*Export, error) {
	records, err := s.loadHistory()
	if err != nil {
		return nil, fmt.Errorf("exporting: %w", err)
	}
	return &Export{
		Filename:    ledger.ExportFilename(s.timeSource.Now()),
		ContentType: ledger.ContentType,
		Data:        []byte(ledger.ToCSV(records, i18n.For(lang).CSV)),
	}, nil
}

// Settings returns the extraction settings, defaults when none are stored or
// the stored value is unreadable
func (s *Service) Settings() scanning.Settings {
	settings, _, err := s.settings.Load()
	if err != nil {
		slog.Error("Error loading settings", "error", err)
		return scanning.Settings{}
	}
	return settings
}

// UpdateSettings stores new extraction settings
func (s *Service) UpdateSettings(settings scanning.Settings) error {
	if err := s.settings.Save(settings); err != nil {
		return fmt.Errorf("saving settings: %w", err)
	}
	return nil
}

// SubmitToSheet forwards a saved record to the configured spreadsheet form.
// rawConfig overrides the service default when not empty.
func (s *Service) SubmitToSheet(ctx context.Context, id string, rawConfig string) error {
	if rawConfig == "" {
		rawConfig = s.sheetConfig
	}
	cfg, err := sheets.ParseFormConfig(rawConfig)
	if err != nil {
		return err
	}

	record, err := s.GetRecord(id)
	if err != nil {
		return err
	}

	return s.submitter.Submit(ctx, cfg, sheets.Entry{
		Date:          record.Date,
		Establishment: record.Establishment,
		Amount:        record.Amount,
		Payer:         record.Payer,
	})
}

// GetImage returns a stored upload and its content type
func (s *Service) GetImage(name string) ([]byte, string, error) {
	data, err := s.storage.Get(name)
	if err != nil {
		return nil, "", fmt.Errorf("getting image: %w", err)
	}
	return data, http.DetectContentType(data), nil
}

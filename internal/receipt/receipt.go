// Package receipt wires scanning, the ledger and persistence into the HTTP service.
package receipt

import (
	"errors"
	"time"

	"github.com/zombor/ticket-scanner/internal/ledger"
)

var (
	// ErrNotFound is returned when a record id is not in the ledger
	ErrNotFound = errors.New("record not found")
	// ErrSaveFailed wraps persistence failures while saving a record
	ErrSaveFailed = errors.New("saving record failed")
	// ErrInvalidRecord is returned for records that cannot be stored
	ErrInvalidRecord = errors.New("invalid record")
	// ErrCorrupt is returned when a persisted value cannot be decoded
	ErrCorrupt = errors.New("corrupt stored value")
)

// Session is the in-progress edit of a scanned receipt, kept so a reload
// of the client can pick up where the user left off
type Session struct {
	Record      *ledger.Record `json:"currentReceipt"`
	ImageFile   string         `json:"imageFile,omitempty"`
	ContentType string         `json:"contentType,omitempty"`
	ScanFailed  bool           `json:"scanFailed"`
	UpdatedAt   time.Time      `json:"updatedAt"`
}

// restorable reports whether the snapshot holds a draft worth restoring
func (s *Session) restorable() bool {
	return s != nil && s.Record != nil && s.Record.ID != ""
}

// Summary is the ledger overview shown under the history list
type Summary struct {
	Count          int     `json:"count"`
	Total          float64 `json:"total"`
	FormattedTotal string  `json:"formattedTotal"`
}

// Export is a rendered CSV download
type Export struct {
	Filename    string
	ContentType string
	Data        []byte
}

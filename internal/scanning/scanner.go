package scanning

import (
	"context"
	"errors"

	"github.com/zombor/ticket-scanner/internal/ledger"
)

// ErrMissingCredential is returned by scanners that have no API key configured
var ErrMissingCredential = errors.New("scanner credential is missing")

// Extraction contains the fields an extractor read from a receipt.
// Fields it could not find are left empty.
type Extraction struct {
	Date          string        `json:"date"`
	Establishment string        `json:"establishment"`
	Amount        string        `json:"amount"`
	ItemCount     string        `json:"itemCount,omitempty"`
	Category      string        `json:"category,omitempty"`
	Items         []ledger.Item `json:"items,omitempty"`
}

// Scanner defines the interface for receipt scanning operations
type Scanner interface {
	// ScanReceipt analyzes a receipt image/PDF and extracts the fields enabled in settings
	ScanReceipt(ctx context.Context, imageData []byte, contentType string, settings Settings) (*Extraction, error)
	// Close closes the scanner and releases resources
	Close() error
}

// Disabled is used when no extraction backend is configured.
// Every scan fails so the user falls back to manual entry.
type Disabled struct{}

func (Disabled) ScanReceipt(context.Context, []byte, string, Settings) (*Extraction, error) {
	return nil, ErrMissingCredential
}

func (Disabled) Close() error {
	return nil
}

// Package sheets forwards receipts to a spreadsheet through a web form submission.
package sheets

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
)

var (
	ErrMissingConfig    = errors.New("missing form configuration")
	ErrInvalidConfig    = errors.New("invalid form configuration")
	ErrIncompleteConfig = errors.New("incomplete form configuration")
	ErrSubmitFailed     = errors.New("form submission failed")
)

// FieldMapping holds the form field names (e.g. "entry.123456") that receive each value
type FieldMapping struct {
	Date          string `json:"date"`
	Establishment string `json:"establishment"`
	Amount        string `json:"amount"`
	Payer         string `json:"payer"`
}

// FormConfig points at the form that feeds the spreadsheet
type FormConfig struct {
	FormURL string        `json:"formUrl"`
	Mapping *FieldMapping `json:"mapping"`
}

// ParseFormConfig decodes a JSON form configuration and checks it is complete
func ParseFormConfig(raw string) (*FormConfig, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, ErrMissingConfig
	}

	var cfg FormConfig
	if err := json.Unmarshal([]byte(raw), &cfg); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}

	if cfg.FormURL == "" || cfg.Mapping == nil {
		return nil, ErrIncompleteConfig
	}
	m := cfg.Mapping
	if m.Date == "" || m.Establishment == "" || m.Amount == "" || m.Payer == "" {
		return nil, ErrIncompleteConfig
	}

	return &cfg, nil
}

var viewformRe = regexp.MustCompile(`viewform.*`)

// SubmitURL turns a shared form link into its response endpoint
func SubmitURL(formURL string) string {
	return viewformRe.ReplaceAllString(formURL, "formResponse")
}

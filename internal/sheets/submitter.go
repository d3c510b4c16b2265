package sheets

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
)

// Entry is the subset of a receipt sent to the form
type Entry struct {
	Date          string
	Establishment string
	Amount        string
	Payer         string
}

// Submitter posts entries to a form endpoint
type Submitter struct {
	client *http.Client
}

// NewSubmitter creates a Submitter. A nil client uses http.DefaultClient.
func NewSubmitter(client *http.Client) *Submitter {
	if client == nil {
		client = http.DefaultClient
	}
	return &Submitter{client: client}
}

// Submit posts the entry as a URL encoded form. Form services answer with
// redirects or HTML, so the response is discarded: only a network level failure
// is reported.
func (s *Submitter) Submit(ctx context.Context, cfg *FormConfig, entry Entry) error {
	form := url.Values{}
	form.Add(cfg.Mapping.Date, entry.Date)
	form.Add(cfg.Mapping.Establishment, entry.Establishment)
	form.Add(cfg.Mapping.Amount, entry.Amount)
	form.Add(cfg.Mapping.Payer, entry.Payer)

	submitURL := SubmitURL(cfg.FormURL)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, submitURL, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("%w: creating request: %v", ErrSubmitFailed, err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := s.client.Do(req)
	if err != nil {
		slog.Error("Form submission error", "url", submitURL, "error", err)
		return fmt.Errorf("%w: %v", ErrSubmitFailed, err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	slog.Debug("Form submitted", "url", submitURL, "status", resp.StatusCode)
	return nil
}

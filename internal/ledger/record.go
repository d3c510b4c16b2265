// Package ledger holds the saved receipt records and turns them into totals and CSV exports.
package ledger

// Item is a single purchased line on a receipt
type Item struct {
	Description string `json:"description"`
	Price       string `json:"price"`
}

// Record is one confirmed receipt entry. Amount is kept exactly as the user
// or the extractor wrote it, so it may use either "." or "," as decimal separator.
type Record struct {
	ID            string `json:"id"`
	Date          string `json:"date"`
	Establishment string `json:"establishment"`
	Amount        string `json:"amount"`
	Payer         string `json:"payer"`
	ItemCount     string `json:"itemCount,omitempty"`
	Category      string `json:"category,omitempty"`
	Notes         string `json:"notes,omitempty"`
	Items         []Item `json:"items,omitempty"`
	Timestamp     int64  `json:"timestamp"` // Unix milliseconds
}

// Remove returns a copy of records without the first record whose ID matches.
// The relative order of the remaining records is unchanged.
func Remove(records []*Record, id string) ([]*Record, bool) {
	out := make([]*Record, 0, len(records))
	removed := false
	for _, r := range records {
		if !removed && r.ID == id {
			removed = true
			continue
		}
		out = append(out, r)
	}
	return out, removed
}

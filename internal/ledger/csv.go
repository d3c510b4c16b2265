package ledger

import (
	"fmt"
	"strings"
	"time"
)

// Headers are the column labels used in an export, already translated
type Headers struct {
	Date          string
	Establishment string
	Amount        string
	Payer         string
	ItemCount     string
	Category      string
	Notes         string
	Details       string
	Total         string
}

// ContentType is the MIME type of the CSV export
const ContentType = "text/csv"

// ExportFilename returns the download name for an export made at t
func ExportFilename(t time.Time) string {
	return fmt.Sprintf("tickets_%s.csv", t.UTC().Format("2006-01-02"))
}

// columns records which optional columns appear in an export
type columns struct {
	itemCount bool
	category  bool
	notes     bool
	details   bool
}

func detectColumns(records []*Record) columns {
	var c columns
	for _, r := range records {
		c.itemCount = c.itemCount || r.ItemCount != ""
		c.category = c.category || r.Category != ""
		c.notes = c.notes || r.Notes != ""
		c.details = c.details || len(r.Items) > 0
	}
	return c
}

func (c columns) optionalCount() int {
	n := 0
	for _, on := range []bool{c.itemCount, c.category, c.notes, c.details} {
		if on {
			n++
		}
	}
	return n
}

// quoteCell normalizes a value and wraps it as a quoted CSV cell
func quoteCell(value string) string {
	safe := strings.ReplaceAll(NormalizeText(value), `"`, `""`)
	return `"` + safe + `"`
}

func itemLines(items []Item) string {
	lines := make([]string, 0, len(items))
	for _, it := range items {
		lines = append(lines, fmt.Sprintf("- %s: %s", it.Description, it.Price))
	}
	return strings.Join(lines, "\n")
}

// ToCSV renders the records as a CSV document: a header row, one row per record
// and a final row carrying the total of all amounts. Optional columns only appear
// when at least one record fills them in.
func ToCSV(records []*Record, h Headers) string {
	cols := detectColumns(records)

	header := []string{h.Date, h.Establishment, h.Amount, h.Payer}
	if cols.itemCount {
		header = append(header, h.ItemCount)
	}
	if cols.category {
		header = append(header, h.Category)
	}
	if cols.notes {
		header = append(header, h.Notes)
	}
	if cols.details {
		header = append(header, h.Details)
	}

	var b strings.Builder
	b.WriteString(strings.Join(header, ","))
	b.WriteString("\n")

	for _, r := range records {
		row := []string{
			quoteCell(r.Date),
			quoteCell(r.Establishment),
			quoteCell(r.Amount),
			quoteCell(r.Payer),
		}
		if cols.itemCount {
			row = append(row, quoteCell(r.ItemCount))
		}
		if cols.category {
			row = append(row, quoteCell(r.Category))
		}
		if cols.notes {
			row = append(row, quoteCell(r.Notes))
		}
		if cols.details {
			row = append(row, quoteCell(itemLines(r.Items)))
		}
		b.WriteString(strings.Join(row, ","))
		b.WriteString("\n")
	}

	total := []string{"", quoteCell(h.Total), quoteCell(FormatTotal(ComputeTotal(records))), ""}
	for i := 0; i < cols.optionalCount(); i++ {
		total = append(total, "")
	}
	b.WriteString(strings.Join(total, ","))
	b.WriteString("\n")

	return b.String()
}

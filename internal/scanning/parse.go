package scanning

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/zombor/ticket-scanner/internal/ledger"
)

// looseString accepts both JSON strings and numbers, models are not
// consistent about quoting amounts
type looseString string

func (s *looseString) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*s = ""
		return nil
	}
	var str string
	if err := json.Unmarshal(data, &str); err == nil {
		*s = looseString(str)
		return nil
	}
	var num json.Number
	if err := json.Unmarshal(data, &num); err != nil {
		return fmt.Errorf("expected string or number, got %s", string(data))
	}
	*s = looseString(num.String())
	return nil
}

type rawItem struct {
	Description looseString `json:"description"`
	Price       looseString `json:"price"`
}

type rawExtraction struct {
	Date          looseString `json:"date"`
	Establishment looseString `json:"establishment"`
	Amount        looseString `json:"amount"`
	ItemCount     looseString `json:"itemCount"`
	Category      looseString `json:"category"`
	Items         []rawItem   `json:"items"`
}

// parseExtractionJSON parses the JSON object returned by a model. Only the fields
// present in schema are kept.
func parseExtractionJSON(text string, schema Schema) (*Extraction, error) {
	text = strings.TrimSpace(text)
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSpace(text)

	startIdx := strings.Index(text, "{")
	if startIdx == -1 {
		return nil, fmt.Errorf("no JSON object found in response")
	}
	endIdx := strings.LastIndex(text, "}")
	if endIdx == -1 || endIdx < startIdx {
		return nil, fmt.Errorf("invalid JSON object in response")
	}
	text = text[startIdx : endIdx+1]

	var raw rawExtraction
	if err := json.Unmarshal([]byte(text), &raw); err != nil {
		return nil, fmt.Errorf("unmarshaling json: %w", err)
	}

	data := &Extraction{
		Date:          strings.TrimSpace(string(raw.Date)),
		Establishment: strings.TrimSpace(string(raw.Establishment)),
		Amount:        strings.TrimSpace(string(raw.Amount)),
	}
	if schema.Has("itemCount") {
		data.ItemCount = strings.TrimSpace(string(raw.ItemCount))
	}
	if schema.Has("category") {
		data.Category = strings.TrimSpace(string(raw.Category))
	}
	if schema.Has("items") {
		for _, it := range raw.Items {
			data.Items = append(data.Items, ledger.Item{
				Description: strings.TrimSpace(string(it.Description)),
				Price:       strings.TrimSpace(string(it.Price)),
			})
		}
	}

	return data, nil
}

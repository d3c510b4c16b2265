package scanning

import (
	"strings"

	"github.com/google/generative-ai-go/genai"
)

// FieldKind is the shape of a requested field
type FieldKind int

const (
	// KindString is a single text value
	KindString FieldKind = iota
	// KindItems is a list of {description, price} objects
	KindItems
)

// Field is one fragment of the extraction schema
type Field struct {
	Name        string
	Kind        FieldKind
	Description string
	Required    bool
	// Instruction is appended to the prompt when the field is requested
	Instruction string
}

// Schema is the list of fields requested for a scan
type Schema struct {
	Fields []Field
}

const itemDescriptionHint = "Item name. IMPORTANT: If quantity is > 1, prefix with 'x{qty}' (e.g. 'x2 Milk'). If quantity is 1, just the name."

var (
	baseFields = []Field{
		{Name: "date", Kind: KindString, Description: "Date in DD/MM/YYYY format.", Required: true},
		{Name: "establishment", Kind: KindString, Description: "Store name.", Required: true},
		{Name: "amount", Kind: KindString, Description: "Total amount.", Required: true},
	}

	itemCountField = Field{
		Name:        "itemCount",
		Kind:        KindString,
		Description: "Total count of individual items purchased (e.g. '5').",
		Instruction: "Also extract the total count of items (quantity of products) purchased.",
	}

	categoryField = Field{
		Name:        "category",
		Kind:        KindString,
		Description: "Category of the expense. Choose from: " + strings.Join(Categories, ", ") + ".",
		Instruction: "Also categorize the expense into one of these: " + strings.Join(Categories, ", ") + ".",
	}

	itemsField = Field{
		Name:        "items",
		Kind:        KindItems,
		Description: "List of purchased items.",
		Instruction: "Also extract all line items. IMPORTANT: If an item has a quantity greater than 1, prefix the description with 'x{Quantity}' (e.g., 'x2 Coffee'). If quantity is 1, just provide the name.",
	}
)

// BuildSchema maps the extraction settings to the fields requested from the model.
// Date, establishment and amount are always required.
func BuildSchema(settings Settings) Schema {
	fields := append([]Field(nil), baseFields...)
	if settings.ExtractItemCount {
		fields = append(fields, itemCountField)
	}
	if settings.ExtractCategory {
		fields = append(fields, categoryField)
	}
	if settings.ExtractItems {
		fields = append(fields, itemsField)
	}
	return Schema{Fields: fields}
}

// Has reports whether a field is part of the schema
func (s Schema) Has(name string) bool {
	for _, f := range s.Fields {
		if f.Name == name {
			return true
		}
	}
	return false
}

// Required returns the names of the required fields
func (s Schema) Required() []string {
	var names []string
	for _, f := range s.Fields {
		if f.Required {
			names = append(names, f.Name)
		}
	}
	return names
}

// Prompt returns the instruction text sent with the image
func (s Schema) Prompt() string {
	var b strings.Builder
	b.WriteString("Analyze this receipt. Extract: Date, Establishment, Total Amount.")
	for _, f := range s.Fields {
		if f.Instruction != "" {
			b.WriteString(" ")
			b.WriteString(f.Instruction)
		}
	}
	b.WriteString(" Return JSON.")
	return b.String()
}

// Genai renders the schema for Gemini structured output
func (s Schema) Genai() *genai.Schema {
	props := make(map[string]*genai.Schema, len(s.Fields))
	for _, f := range s.Fields {
		switch f.Kind {
		case KindItems:
			props[f.Name] = &genai.Schema{
				Type:        genai.TypeArray,
				Description: f.Description,
				Items: &genai.Schema{
					Type: genai.TypeObject,
					Properties: map[string]*genai.Schema{
						"description": {Type: genai.TypeString, Description: itemDescriptionHint},
						"price":       {Type: genai.TypeString},
					},
				},
			}
		default:
			props[f.Name] = &genai.Schema{Type: genai.TypeString, Description: f.Description}
		}
	}
	return &genai.Schema{
		Type:       genai.TypeObject,
		Properties: props,
		Required:   s.Required(),
	}
}

// JSONSchema renders the schema as a JSON Schema document
func (s Schema) JSONSchema() map[string]any {
	props := make(map[string]any, len(s.Fields))
	for _, f := range s.Fields {
		switch f.Kind {
		case KindItems:
			props[f.Name] = map[string]any{
				"type":        "array",
				"description": f.Description,
				"items": map[string]any{
					"type": "object",
					"properties": map[string]any{
						"description": map[string]any{"type": "string", "description": itemDescriptionHint},
						"price":       map[string]any{"type": "string"},
					},
					"required":             []string{"description", "price"},
					"additionalProperties": false,
				},
			}
		default:
			props[f.Name] = map[string]any{"type": "string", "description": f.Description}
		}
	}
	return map[string]any{
		"type":       "object",
		"properties": props,
		"required":   s.Required(),
	}
}

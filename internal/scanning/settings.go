package scanning

// Settings selects which optional fields are requested from the extractor
type Settings struct {
	ExtractItems     bool `json:"extractItems"`
	ExtractItemCount bool `json:"extractItemCount"`
	ExtractCategory  bool `json:"extractCategory"`
	// ExtractNotes only enables the notes field on the form, nothing is extracted for it
	ExtractNotes bool `json:"extractNotes"`
}

// Categories are the expense categories the extractor may choose from
var Categories = []string{
	"Supermercado",
	"Hogar",
	"Gasolina",
	"Ocio",
	"Regalos",
	"Restaurantes",
	"Personal",
	"Viajes",
}

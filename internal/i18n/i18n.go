// Package i18n holds the translated labels and messages the service returns to users.
package i18n

import (
	"golang.org/x/text/language"

	"github.com/zombor/ticket-scanner/internal/ledger"
)

// Language is a supported UI language code
type Language string

const (
	Spanish Language = "es"
	English Language = "en"
	Italian Language = "it"
)

// Default is used when no supported language is requested
const Default = Spanish

var matcher = language.NewMatcher([]language.Tag{
	language.Spanish,
	language.English,
	language.Italian,
})

// Parse resolves a language code or an Accept-Language header value
// to a supported language, falling back to Default
func Parse(value string) Language {
	if value == "" {
		return Default
	}
	tags, _, err := language.ParseAcceptLanguage(value)
	if err != nil || len(tags) == 0 {
		return Default
	}
	_, idx, confidence := matcher.Match(tags...)
	if confidence == language.No {
		return Default
	}
	return []Language{Spanish, English, Italian}[idx]
}

// Catalog is the set of strings for one language
type Catalog struct {
	CSV ledger.Headers

	ScanFailed       string
	SaveFailed       string
	SheetFailed      string
	MissingConfig    string
	InvalidConfig    string
	IncompleteConfig string
	NotFound         string
	InvalidRequest   string
	FormParseFailed  string
	FileTooLarge     string
	NoFile           string
	FileReadFailed   string
	InternalError    string
}

var catalogs = map[Language]Catalog{
	Spanish: {
		CSV: ledger.Headers{
			Date:          "Fecha",
			Establishment: "Establecimiento",
			Amount:        "Importe",
			Payer:         "Pagador",
			ItemCount:     "Num. Articulos",
			Category:      "Categoria",
			Notes:         "Notas",
			Details:       "Detalle",
			Total:         "TOTAL FINAL",
		},
		ScanFailed:       "No se pudieron extraer los datos. Rellena el formulario manualmente.",
		SaveFailed:       "No se pudo guardar el ticket.",
		SheetFailed:      "Error de conexion al enviar el formulario.",
		MissingConfig:    "Falta configuracion.",
		InvalidConfig:    "Configuracion invalida. Por favor reconfigura en ajustes.",
		IncompleteConfig: "Configuracion incompleta.",
		NotFound:         "Ticket no encontrado.",
		InvalidRequest:   "Solicitud invalida.",
		FormParseFailed:  "Error al procesar el formulario.",
		FileTooLarge:     "El archivo es demasiado grande. El tamano maximo es 50MB. Comprime o reduce la imagen.",
		NoFile:           "No se ha seleccionado ningun archivo. Elige un archivo para subir.",
		FileReadFailed:   "Error al leer el archivo. Intentalo de nuevo.",
		InternalError:    "Error interno del servidor.",
	},
	English: {
		CSV: ledger.Headers{
			Date:          "Date",
			Establishment: "Establishment",
			Amount:        "Amount",
			Payer:         "Payer",
			ItemCount:     "Item Count",
			Category:      "Category",
			Notes:         "Notes",
			Details:       "Details",
			Total:         "FINAL TOTAL",
		},
		ScanFailed:       "Failed to extract data. Please fill in the form manually.",
		SaveFailed:       "The receipt could not be saved.",
		SheetFailed:      "Connection error while submitting the form.",
		MissingConfig:    "Missing configuration.",
		InvalidConfig:    "Invalid configuration. Please set it up again in settings.",
		IncompleteConfig: "Incomplete configuration.",
		NotFound:         "Receipt not found.",
		InvalidRequest:   "Invalid request.",
		FormParseFailed:  "Error parsing form.",
		FileTooLarge:     "File is too large. Maximum size is 50MB. Please compress or resize your image.",
		NoFile:           "No file was selected. Please choose a file to upload.",
		FileReadFailed:   "Error reading file. Please try again.",
		InternalError:    "Internal server error.",
	},
	Italian: {
		CSV: ledger.Headers{
			Date:          "Data",
			Establishment: "Esercizio",
			Amount:        "Importo",
			Payer:         "Pagante",
			ItemCount:     "Num. Articoli",
			Category:      "Categoria",
			Notes:         "Note",
			Details:       "Dettaglio",
			Total:         "TOTALE FINALE",
		},
		ScanFailed:       "Impossibile estrarre i dati. Compila il modulo manualmente.",
		SaveFailed:       "Impossibile salvare lo scontrino.",
		SheetFailed:      "Errore di connessione durante l'invio del modulo.",
		MissingConfig:    "Configurazione mancante.",
		InvalidConfig:    "Configurazione non valida. Riconfigura nelle impostazioni.",
		IncompleteConfig: "Configurazione incompleta.",
		NotFound:         "Scontrino non trovato.",
		InvalidRequest:   "Richiesta non valida.",
		FormParseFailed:  "Errore durante l'elaborazione del modulo.",
		FileTooLarge:     "Il file e troppo grande. La dimensione massima e 50MB. Comprimi o ridimensiona l'immagine.",
		NoFile:           "Nessun file selezionato. Scegli un file da caricare.",
		FileReadFailed:   "Errore durante la lettura del file. Riprova.",
		InternalError:    "Errore interno del server.",
	},
}

// For returns the catalog for lang, or the Default catalog for unknown languages
func For(lang Language) Catalog {
	if c, ok := catalogs[lang]; ok {
		return c
	}
	return catalogs[Default]
}

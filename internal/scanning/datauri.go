package scanning

import (
	"encoding/base64"
	"fmt"
	"regexp"
	"strings"
)

// DefaultContentType is assumed when a data URI carries no MIME type
const DefaultContentType = "image/jpeg"

var dataURIRe = regexp.MustCompile(`^data:(.+);base64,(.+)$`)

// DecodeDataURI decodes a "data:<mime>;base64,<payload>" string.
// Anything after a "base64," marker, or a bare base64 payload, is accepted too
// and reported as DefaultContentType.
func DecodeDataURI(uri string) ([]byte, string, error) {
	uri = strings.TrimSpace(uri)
	if uri == "" {
		return nil, "", fmt.Errorf("empty image data")
	}

	mimeType := DefaultContentType
	payload := uri
	if m := dataURIRe.FindStringSubmatch(uri); m != nil {
		mimeType = strings.ToLower(strings.TrimSpace(m[1]))
		payload = m[2]
	} else if _, after, found := strings.Cut(uri, "base64,"); found {
		payload = after
	}

	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, "", fmt.Errorf("decoding base64 image: %w", err)
	}
	return data, mimeType, nil
}

// EncodeDataURI builds a data URI for the given bytes
func EncodeDataURI(data []byte, mimeType string) string {
	if mimeType == "" {
		mimeType = DefaultContentType
	}
	return "data:" + mimeType + ";base64," + base64.StdEncoding.EncodeToString(data)
}

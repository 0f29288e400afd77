package imagegen

import (
	"encoding/base64"
	"errors"
	"strings"

	"github.com/gabriel-vasile/mimetype"
)

// ErrBadDataURL is returned for image payloads that are not base64 image data URLs.
var ErrBadDataURL = errors.New("invalid image data url")

// DecodeDataURL decodes "data:image/png;base64,..." (or bare base64) and
// checks that the payload really is an image.
func DecodeDataURL(s string) ([]byte, string, error) {
	payload := s
	if strings.HasPrefix(s, "data:") {
		comma := strings.IndexByte(s, ',')
		if comma < 0 || !strings.HasSuffix(s[:comma], ";base64") {
			return nil, "", ErrBadDataURL
		}
		payload = s[comma+1:]
	}
	data, err := base64.StdEncoding.DecodeString(strings.TrimSpace(payload))
	if err != nil || len(data) == 0 {
		return nil, "", ErrBadDataURL
	}
	mt := mimetype.Detect(data)
	if !strings.HasPrefix(mt.String(), "image/") {
		return nil, "", ErrBadDataURL
	}
	return data, mt.String(), nil
}

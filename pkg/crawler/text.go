package crawler

import (
	"fmt"
	"mime"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/htmlindex"

	"tululu-scraper/pkg/utils"
)

// decodeText converts a downloaded text body to UTF-8.
// The charset comes from the Content-Type header. Undeclared bodies that are
// not valid UTF-8 are assumed to be windows-1251, the site's legacy encoding.
func decodeText(body []byte, contentType string) ([]byte, error) {
	charset := ""
	if contentType != "" {
		if _, params, err := mime.ParseMediaType(contentType); err == nil {
			charset = strings.ToLower(strings.TrimSpace(params["charset"]))
		}
	}

	switch charset {
	case "utf-8", "utf8":
		return body, nil
	case "":
		if utf8.Valid(body) {
			return body, nil
		}
		out, err := charmap.Windows1251.NewDecoder().Bytes(body)
		if err != nil {
			return nil, fmt.Errorf("%w: decoding text as windows-1251: %w", utils.ErrParsing, err)
		}
		return out, nil
	}

	enc, err := htmlindex.Get(charset)
	if err != nil {
		return nil, fmt.Errorf("%w: unknown charset %q: %w", utils.ErrParsing, charset, err)
	}
	out, err := enc.NewDecoder().Bytes(body)
	if err != nil {
		return nil, fmt.Errorf("%w: decoding text as %s: %w", utils.ErrParsing, charset, err)
	}
	return out, nil
}

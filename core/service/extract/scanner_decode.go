package extract

import (
	"encoding/base64"
	"errors"
	"strings"
)

var errUndecodable = errors.New("body is not valid base64")

// bodyEncodings are tried in order. Gmail sends URL-safe base64; mbox
// sources and some relays produce the standard alphabet, with or without padding.
var bodyEncodings = []*base64.Encoding{
	base64.URLEncoding,
	base64.RawURLEncoding,
	base64.StdEncoding,
	base64.RawStdEncoding,
}

// DecodeBody decodes an inline part body.
func DecodeBody(data string) ([]byte, error) {
	if data == "" {
		return nil, nil
	}
	data = strings.Map(func(r rune) rune {
		switch r {
		case '\r', '\n', ' ', '\t':
			return -1
		}
		return r
	}, data)

	for _, enc := range bodyEncodings {
		if b, err := enc.DecodeString(data); err == nil {
			return b, nil
		}
	}
	return nil, errUndecodable
}

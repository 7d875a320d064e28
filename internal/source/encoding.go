package source

import (
	"bytes"
	"fmt"
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"
)

// Encoding names, in ladder order. UTF-8 exports from newer tools usually
// carry a BOM; the legacy tools emit Windows-1252. Latin-1 is the terminal
// rung because every byte sequence decodes under it.
const (
	EncUTF8Sig = "utf-8-sig"
	EncCP1252  = "cp1252"
	EncLatin1  = "latin1"
)

// EncodingLadder is the fixed priority order for decode attempts. A file
// decodable under an earlier entry is never attempted under a later one.
var EncodingLadder = []string{EncUTF8Sig, EncCP1252, EncLatin1}

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// decodeAs decodes raw bytes under the named encoding, or reports why the
// bytes are not valid under it.
func decodeAs(data []byte, encoding string) (string, error) {
	switch encoding {
	case EncUTF8Sig:
		data = bytes.TrimPrefix(data, utf8BOM)
		if !utf8.Valid(data) {
			return "", fmt.Errorf("not valid utf-8")
		}
		return string(data), nil

	case EncCP1252:
		out, err := charmap.Windows1252.NewDecoder().Bytes(data)
		if err != nil {
			return "", fmt.Errorf("decode cp1252: %w", err)
		}
		// The decoder substitutes U+FFFD for the code points cp1252
		// leaves undefined; treat that as a failed attempt so the
		// ladder can move on.
		if bytes.ContainsRune(out, utf8.RuneError) {
			return "", fmt.Errorf("undefined cp1252 byte")
		}
		return string(out), nil

	case EncLatin1:
		out, err := charmap.ISO8859_1.NewDecoder().Bytes(data)
		if err != nil {
			return "", fmt.Errorf("decode latin1: %w", err)
		}
		return string(out), nil
	}

	return "", fmt.Errorf("unknown encoding %q", encoding)
}

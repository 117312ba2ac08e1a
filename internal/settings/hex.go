package settings

import "fmt"

// hexPrefix marks a tag whose value is hex text to be decoded before storage.
const hexPrefix = "0x"

// decodeHex decodes hex text with optional space or colon separators.
// Each group is one or two digits, so "1:a:ff" decodes to 01 0a ff and
// "01aaff" to 01 aa ff.
func decodeHex(text []byte) ([]byte, error) {
	out := make([]byte, 0, len(text)/2+1)
	for i := 0; i < len(text); {
		hi, ok := hexNibble(text[i])
		if !ok {
			return nil, fmt.Errorf("%w: %q at offset %d", ErrBadHex, text[i], i)
		}
		v := hi
		i++
		if i < len(text) {
			if lo, ok := hexNibble(text[i]); ok {
				v = hi<<4 | lo
				i++
			}
		}
		for i < len(text) && (text[i] == ' ' || text[i] == ':') {
			i++
		}
		out = append(out, v)
	}
	return out, nil
}

func hexNibble(c byte) (byte, bool) {
	switch {
	case c >= '0' && c <= '9':
		return c - '0', true
	case c >= 'a' && c <= 'f':
		return c - 'a' + 10, true
	case c >= 'A' && c <= 'F':
		return c - 'A' + 10, true
	}
	return 0, false
}

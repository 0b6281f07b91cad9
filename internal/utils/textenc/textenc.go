// Package textenc decodes uploaded text tables that may not be UTF-8.
package textenc

import (
    "bytes"
    "fmt"
    "unicode/utf8"

    "golang.org/x/text/encoding"
    "golang.org/x/text/encoding/charmap"
    "golang.org/x/text/encoding/japanese"
)

type Encoding string

const (
    UTF8     Encoding = "utf-8"
    ShiftJIS Encoding = "shift_jis"
    Latin1   Encoding = "latin-1"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// Decode returns data as UTF-8, trying UTF-8, then Shift_JIS, then Latin-1.
// Latin-1 maps every byte so the last step never fails.
func Decode(data []byte) (string, Encoding, error) {
    if utf8.Valid(data) {
        return string(bytes.TrimPrefix(data, utf8BOM)), UTF8, nil
    }

    if s, ok := tryDecode(japanese.ShiftJIS, data); ok {
        return s, ShiftJIS, nil
    }

    if s, ok := tryDecode(charmap.ISO8859_1, data); ok {
        return s, Latin1, nil
    }

    return "", "", fmt.Errorf("failed to decode text: unsupported encoding")
}

func tryDecode(enc encoding.Encoding, data []byte) (string, bool) {
    out, err := enc.NewDecoder().Bytes(data)
    if err != nil {
        return "", false
    }
    // x/text substitutes invalid sequences instead of failing
    if bytes.ContainsRune(out, utf8.RuneError) {
        return "", false
    }
    return string(out), true
}

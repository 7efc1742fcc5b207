package tiss

import (
	"fmt"
	"io"
	"regexp"
	"strings"

	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/transform"
)

const (
	CharsetISO88591 = "ISO-8859-1"
	CharsetUTF8     = "UTF-8"
)

// CharsetReader decodifica la entrada declarada en charset a UTF-8.
// Compatible con xml.Decoder.CharsetReader y etree.ReadSettings.CharsetReader.
func CharsetReader(charset string, input io.Reader) (io.Reader, error) {
	switch normalizeCharset(charset) {
	case CharsetUTF8:
		return input, nil
	case CharsetISO88591:
		return transform.NewReader(input, charmap.ISO8859_1.NewDecoder()), nil
	case "WINDOWS-1252":
		return transform.NewReader(input, charmap.Windows1252.NewDecoder()), nil
	}
	return nil, fmt.Errorf("tiss: charset %q no soportado", charset)
}

// EncodeCharset convierte un XML UTF-8 al charset de la operadora.
// Los caracteres sin representación en Latin-1 fallan con error.
func EncodeCharset(charset string, utf8 []byte) ([]byte, error) {
	switch normalizeCharset(charset) {
	case CharsetUTF8:
		return utf8, nil
	case CharsetISO88591:
		out, err := charmap.ISO8859_1.NewEncoder().Bytes(utf8)
		if err != nil {
			return nil, fmt.Errorf("tiss: convertir a %s: %w", charset, err)
		}
		return out, nil
	}
	return nil, fmt.Errorf("tiss: charset %q no soportado", charset)
}

// DecodeCharset convierte una respuesta en charset a UTF-8.
func DecodeCharset(charset string, raw []byte) ([]byte, error) {
	r, err := CharsetReader(charset, strings.NewReader(string(raw)))
	if err != nil {
		return nil, err
	}
	return io.ReadAll(r)
}

func normalizeCharset(charset string) string {
	c := strings.ToUpper(strings.TrimSpace(charset))
	switch c {
	case "", "UTF8", CharsetUTF8:
		return CharsetUTF8
	case "LATIN1", "LATIN-1", "ISO8859-1", "ISO_8859-1", CharsetISO88591:
		return CharsetISO88591
	case "CP1252", "WINDOWS-1252":
		return "WINDOWS-1252"
	}
	return c
}

var declarationPattern = regexp.MustCompile(`^\s*<\?xml[^>]*\?>`)

// EncodeDocument reescribe la declaración XML con el charset destino y convierte el contenido.
func EncodeDocument(charset string, utf8 []byte) ([]byte, error) {
	name := normalizeCharset(charset)
	decl := []byte(`<?xml version="1.0" encoding="` + name + `"?>`)
	body := declarationPattern.ReplaceAll(utf8, nil)
	doc := append(decl, body...)
	return EncodeCharset(name, doc)
}

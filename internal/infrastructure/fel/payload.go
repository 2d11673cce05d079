package fel

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/xml"
	"fmt"

	"github.com/ucarion/c14n"
)

// Digest devuelve el SHA-256 (hex) de la forma canónica C14N del XML.
// Es estable ante el orden de atributos y la forma de los elementos vacíos.
func (p Payload) Digest() (string, error) {
	canonical, err := canonicalize(p.XML)
	if err != nil {
		return "", fmt.Errorf("fel: canonicalizar XML: %w", err)
	}
	sum := sha256.Sum256(canonical)
	return hex.EncodeToString(sum[:]), nil
}

// canonicalize descarta la declaración XML (C14N no la incluye) y normaliza el resto.
func canonicalize(data []byte) ([]byte, error) {
	data = bytes.TrimSpace(data)
	if bytes.HasPrefix(data, []byte("<?xml")) {
		if end := bytes.Index(data, []byte("?>")); end >= 0 {
			data = bytes.TrimSpace(data[end+2:])
		}
	}
	dec := xml.NewDecoder(bytes.NewReader(data))
	dec.Entity = map[string]string{}
	return c14n.Canonicalize(dec)
}

package document

import (
	"bytes"
	"fmt"

	"gopkg.in/yaml.v3"
)

// Marshal renders doc as YAML with 2-space nesting.
func Marshal(doc Document) ([]byte, error) {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(doc); err != nil {
		return nil, fmt.Errorf("encode job description: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("encode job description: %w", err)
	}
	return buf.Bytes(), nil
}

// Parse reads a job description. Unknown keys are rejected.
func Parse(data []byte) (Document, error) {
	var doc Document
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&doc); err != nil {
		return Document{}, fmt.Errorf("invalid job description: %w", err)
	}
	return doc, nil
}

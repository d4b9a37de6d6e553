package model

import (
	"bytes"
	"encoding/json"
	"io"

	"github.com/m-mizutani/goerr/v2"
)

// DocumentField is one top-level key of a Document. Value is kept as raw JSON and never interpreted.
type DocumentField struct {
	Key   string
	Value json.RawMessage
}

// Document is an opaque, key-ordered JSON object. Incident payloads are heterogeneous per bot, so the
// engine only guarantees structural validity and preserves the original key order.
type Document struct {
	fields []DocumentField
}

// NewDocument builds a document from ordered fields. Values must be valid JSON.
func NewDocument(fields ...DocumentField) (Document, error) {
	doc := Document{}
	for _, f := range fields {
		if !json.Valid(f.Value) {
			return Document{}, goerr.Wrap(ErrValidation, "document field is not valid JSON", goerr.V("key", f.Key))
		}
		if err := doc.set(f.Key, f.Value); err != nil {
			return Document{}, err
		}
	}
	return doc, nil
}

// ParseDocument decodes data as a JSON object. Arrays, scalars and null are rejected.
func ParseDocument(data []byte) (Document, error) {
	var doc Document
	if err := doc.UnmarshalJSON(data); err != nil {
		return Document{}, err
	}
	return doc, nil
}

// IsZero reports whether the document was never populated (not even with "{}")
func (d Document) IsZero() bool {
	return d.fields == nil
}

// Len returns the number of top-level keys
func (d Document) Len() int {
	return len(d.fields)
}

// Keys returns top-level keys in their original order
func (d Document) Keys() []string {
	keys := make([]string, len(d.fields))
	for i, f := range d.fields {
		keys[i] = f.Key
	}
	return keys
}

// Get returns the raw JSON value of key
func (d Document) Get(key string) (json.RawMessage, bool) {
	for _, f := range d.fields {
		if f.Key == key {
			return f.Value, true
		}
	}
	return nil, false
}

// Fields returns a copy of the ordered fields
func (d Document) Fields() []DocumentField {
	out := make([]DocumentField, len(d.fields))
	for i, f := range d.fields {
		out[i] = DocumentField{Key: f.Key, Value: append(json.RawMessage(nil), f.Value...)}
	}
	return out
}

// Clone returns a deep copy
func (d Document) Clone() Document {
	if d.fields == nil {
		return Document{}
	}
	return Document{fields: d.Fields()}
}

func (d *Document) set(key string, value json.RawMessage) error {
	for _, f := range d.fields {
		if f.Key == key {
			return goerr.Wrap(ErrValidation, "duplicate key in document", goerr.V("key", key))
		}
	}
	if d.fields == nil {
		d.fields = []DocumentField{}
	}
	d.fields = append(d.fields, DocumentField{Key: key, Value: append(json.RawMessage(nil), value...)})
	return nil
}

// MarshalJSON writes the object with keys in their original order
func (d Document) MarshalJSON() ([]byte, error) {
	if d.fields == nil {
		return []byte("null"), nil
	}

	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, f := range d.fields {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(f.Key)
		if err != nil {
			return nil, goerr.Wrap(err, "failed to encode document key", goerr.V("key", f.Key))
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(f.Value)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON accepts only a JSON object and keeps key order
func (d *Document) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))

	tok, err := dec.Token()
	if err != nil {
		return goerr.Wrap(ErrValidation, "payload is not valid JSON", goerr.V("error", err.Error()))
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return goerr.Wrap(ErrValidation, "payload must be a JSON object")
	}

	doc := Document{fields: []DocumentField{}}
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return goerr.Wrap(ErrValidation, "payload is not valid JSON", goerr.V("error", err.Error()))
		}
		key, ok := keyTok.(string)
		if !ok {
			return goerr.Wrap(ErrValidation, "payload object key is not a string")
		}

		var value json.RawMessage
		if err := dec.Decode(&value); err != nil {
			return goerr.Wrap(ErrValidation, "payload value is not valid JSON", goerr.V("key", key))
		}
		if err := doc.set(key, value); err != nil {
			return err
		}
	}

	if _, err := dec.Token(); err != nil {
		return goerr.Wrap(ErrValidation, "payload is not valid JSON", goerr.V("error", err.Error()))
	}
	if _, err := dec.Token(); err != io.EOF {
		return goerr.Wrap(ErrValidation, "trailing data after payload object")
	}

	*d = doc
	return nil
}

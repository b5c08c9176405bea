package catalog

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"strings"

	"github.com/ariefcatur/go-storefront/internal/apperr"
)

type Attribute struct {
	Key   string
	Value json.RawMessage
}

// Attributes is a free-form JSON object whose keys keep the order they were written in.
type Attributes []Attribute

var errNotObject = errors.New("must be a JSON object")

// ParseAttributes accepts "" as an empty document; anything else must be one JSON object.
// A repeated key keeps its first position and its last value.
func ParseAttributes(s string) (Attributes, error) {
	if strings.TrimSpace(s) == "" {
		return Attributes{}, nil
	}
	var a Attributes
	if err := a.UnmarshalJSON([]byte(s)); err != nil {
		return nil, apperr.Invalid("attributes", "Enter a valid JSON object.")
	}
	return a, nil
}

func (a Attributes) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, kv := range a {
		if i > 0 {
			buf.WriteByte(',')
		}
		k, err := json.Marshal(kv.Key)
		if err != nil {
			return nil, err
		}
		buf.Write(k)
		buf.WriteByte(':')
		if len(kv.Value) == 0 {
			buf.WriteString("null")
			continue
		}
		buf.Write(kv.Value)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func (a *Attributes) UnmarshalJSON(b []byte) error {
	dec := json.NewDecoder(bytes.NewReader(b))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return errNotObject
	}

	out := Attributes{}
	pos := map[string]int{}
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		key, ok := tok.(string)
		if !ok {
			return errNotObject
		}
		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return err
		}
		if i, seen := pos[key]; seen {
			out[i].Value = raw
			continue
		}
		pos[key] = len(out)
		out = append(out, Attribute{Key: key, Value: raw})
	}
	if _, err := dec.Token(); err != nil {
		return err
	}
	if _, err := dec.Token(); err != io.EOF {
		return errNotObject
	}
	*a = out
	return nil
}

// String renders the document as compact JSON, "{}" when empty.
func (a Attributes) String() string {
	b, _ := a.MarshalJSON()
	return string(b)
}

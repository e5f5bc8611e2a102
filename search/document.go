package search

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/tidwall/gjson"
)

// Field is a single document field. Value is the JSON exactly as the index returned it.
type Field struct {
	Key   string
	Value json.RawMessage
}

// Document is a search result. The fields are whatever the index stores, in the
// order the index returned them.
type Document struct {
	Score  float64
	Fields []Field
}

func (d Document) Value(key string) (v json.RawMessage, ok bool) {
	for _, f := range d.Fields {
		if f.Key == key {
			return f.Value, true
		}
	}
	return nil, false
}

// Text returns the first of the keys that has a truthy value, as text.
// Empty strings, null, false and zero are skipped.
func (d Document) Text(keys ...string) string {
	for _, key := range keys {
		v, ok := d.Value(key)
		if !ok {
			continue
		}
		r := gjson.ParseBytes(v)
		switch r.Type {
		case gjson.String:
			if r.Str != "" {
				return r.Str
			}
		case gjson.Number:
			if r.Num != 0 {
				return r.Raw
			}
		case gjson.True:
			return "true"
		case gjson.JSON:
			return r.Raw
		}
	}
	return ""
}

const annotationPrefix = "@search."

// ParseResults reads the documents from a search response body, keeping field order.
func ParseResults(body []byte) (docs []Document, err error) {
	if !gjson.ValidBytes(body) {
		return nil, fmt.Errorf("search: invalid JSON in response")
	}
	value := gjson.GetBytes(body, "value")
	if !value.IsArray() {
		return nil, fmt.Errorf("search: response has no value array")
	}
	docs = make([]Document, 0, len(value.Array()))
	value.ForEach(func(_, result gjson.Result) bool {
		var doc Document
		result.ForEach(func(key, v gjson.Result) bool {
			k := key.String()
			if k == annotationPrefix+"score" {
				doc.Score = v.Float()
				return true
			}
			if strings.HasPrefix(k, annotationPrefix) {
				return true
			}
			doc.Fields = append(doc.Fields, Field{Key: k, Value: json.RawMessage(v.Raw)})
			return true
		})
		docs = append(docs, doc)
		return true
	})
	return docs, nil
}

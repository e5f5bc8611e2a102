package rag

import (
	"bytes"
	"encoding/json"
	"strings"

	"github.com/a-h/caseassist/models"
	"github.com/a-h/caseassist/search"
	"github.com/tidwall/gjson"
)

// maxArrayLength is the longest array kept in a source. Longer arrays are
// assumed to be embeddings.
const maxArrayLength = 50

// FormatSources converts documents for display, removing embeddings.
func FormatSources(docs []search.Document) []models.FormattedSource {
	sources := make([]models.FormattedSource, len(docs))
	for i, doc := range docs {
		title := doc.Text("document_title", "filename")
		if title == "" {
			title = "Document"
		}
		sources[i] = models.FormattedSource{
			Title:   title,
			Content: contentJSON(doc.Fields),
			URL:     doc.Text("url", "path"),
			Score:   doc.Score,
		}
	}
	return sources
}

func keep(f search.Field) bool {
	if strings.Contains(f.Key, "embedding") || strings.Contains(f.Key, "vector") {
		return false
	}
	if r := gjson.ParseBytes(f.Value); r.IsArray() && len(r.Array()) > maxArrayLength {
		return false
	}
	return true
}

// contentJSON writes the kept fields as an indented JSON object, in their original order.
func contentJSON(fields []search.Field) string {
	compact := new(bytes.Buffer)
	enc := json.NewEncoder(compact)
	enc.SetEscapeHTML(false)
	compact.WriteByte('{')
	var n int
	for _, f := range fields {
		if !keep(f) {
			continue
		}
		if n > 0 {
			compact.WriteByte(',')
		}
		n++
		// Encode appends a newline, which json.Indent discards.
		_ = enc.Encode(f.Key)
		compact.WriteByte(':')
		compact.Write(f.Value)
	}
	compact.WriteByte('}')

	indented := new(bytes.Buffer)
	if err := json.Indent(indented, compact.Bytes(), "", "  "); err != nil {
		return compact.String()
	}
	return indented.String()
}

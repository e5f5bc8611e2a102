package search

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/a-h/jsonapi"
	"github.com/google/go-cmp/cmp"
)

const searchResponse = `{
  "@odata.context": "https://example.search.windows.net/indexes('cases')/$metadata#docs(*)",
  "value": [
    {
      "@search.score": 0.9,
      "@search.highlights": {"content": ["<em>statute</em>"]},
      "document_title": "Limitations",
      "content": "Three years.",
      "page": 4
    },
    {
      "@search.score": 0.7,
      "filename": "notes.pdf",
      "tags": ["a", "b"]
    },
    {
      "path": "/default/123/notes.txt"
    }
  ]
}`

func TestSearch(t *testing.T) {
	var gotReq searchRequest
	var gotPath, gotAPIKey, gotVersion string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAPIKey = r.Header.Get("api-key")
		gotVersion = r.URL.Query().Get("api-version")
		if err := json.NewDecoder(r.Body).Decode(&gotReq); err != nil {
			t.Errorf("failed to decode request: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(searchResponse))
	}))
	defer srv.Close()

	c, err := New(Config{Endpoint: srv.URL + "/", APIKey: "key", Index: "cases"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	docs, err := c.Search(context.Background(), "statute of limitations", Options{Top: 5, Mode: ModeAny})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if gotPath != "/indexes/cases/docs/search" {
		t.Errorf("unexpected path %q", gotPath)
	}
	if gotAPIKey != "key" {
		t.Errorf("expected api-key header to be set, got %q", gotAPIKey)
	}
	if gotVersion != DefaultAPIVersion {
		t.Errorf("expected api-version %q, got %q", DefaultAPIVersion, gotVersion)
	}
	expectedReq := searchRequest{Search: "statute of limitations", Top: 5, SearchMode: ModeAny}
	if diff := cmp.Diff(expectedReq, gotReq); diff != "" {
		t.Errorf("unexpected request: %v", diff)
	}

	expected := []Document{
		{
			Score: 0.9,
			Fields: []Field{
				{Key: "document_title", Value: json.RawMessage(`"Limitations"`)},
				{Key: "content", Value: json.RawMessage(`"Three years."`)},
				{Key: "page", Value: json.RawMessage(`4`)},
			},
		},
		{
			Score: 0.7,
			Fields: []Field{
				{Key: "filename", Value: json.RawMessage(`"notes.pdf"`)},
				{Key: "tags", Value: json.RawMessage(`["a", "b"]`)},
			},
		},
		{
			Score: 0,
			Fields: []Field{
				{Key: "path", Value: json.RawMessage(`"/default/123/notes.txt"`)},
			},
		},
	}
	if diff := cmp.Diff(expected, docs); diff != "" {
		t.Errorf("unexpected documents: %v", diff)
	}
}

func TestSearchError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":{"message":"Invalid API key"}}`, http.StatusForbidden)
	}))
	defer srv.Close()

	c, err := New(Config{Endpoint: srv.URL, APIKey: "bad", Index: "cases"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	_, err = c.Search(context.Background(), "q", Options{})
	if err == nil {
		t.Fatal("expected error, got nil")
	}
	var ise jsonapi.InvalidStatusError
	if !errors.As(err, &ise) {
		t.Fatalf("expected InvalidStatusError, got %T", err)
	}
	if ise.Status != http.StatusForbidden {
		t.Errorf("expected status 403, got %d", ise.Status)
	}
}

func TestNewRequiresConfiguration(t *testing.T) {
	tests := []Config{
		{},
		{Endpoint: "https://example.search.windows.net", APIKey: "key"},
		{Endpoint: "https://example.search.windows.net", Index: "cases"},
		{APIKey: "key", Index: "cases"},
	}
	for _, config := range tests {
		if _, err := New(config); !errors.Is(err, ErrNotConfigured) {
			t.Errorf("%+v: expected ErrNotConfigured, got %v", config, err)
		}
	}
}

func TestIndex(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/indexes/cases" {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		w.Write([]byte(`{"name":"cases","fields":[{"name":"id","type":"Edm.String","key":true,"searchable":false,"retrievable":true},{"name":"content_vector","type":"Collection(Edm.Single)","searchable":true,"retrievable":true}]}`))
	}))
	defer srv.Close()

	c, err := New(Config{Endpoint: srv.URL, APIKey: "key", Index: "cases"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	def, err := c.Index(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	expected := IndexDefinition{
		Name: "cases",
		Fields: []IndexField{
			{Name: "id", Type: "Edm.String", Key: true, Retrievable: true},
			{Name: "content_vector", Type: "Collection(Edm.Single)", Searchable: true, Retrievable: true},
		},
	}
	if diff := cmp.Diff(expected, def); diff != "" {
		t.Errorf("unexpected index definition: %v", diff)
	}
}

func TestUpload(t *testing.T) {
	var got struct {
		Value []map[string]any `json:"value"`
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/indexes/cases/docs/index" {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("failed to decode request: %v", err)
		}
		w.Write([]byte(`{"value":[{"key":"1","status":true,"errorMessage":null,"statusCode":201}]}`))
	}))
	defer srv.Close()

	c, err := New(Config{Endpoint: srv.URL, APIKey: "key", Index: "cases"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	doc := map[string]any{"id": "1", "content": "text"}
	results, err := c.Upload(context.Background(), []map[string]any{doc})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if diff := cmp.Diff([]UploadResult{{Key: "1", Status: true, StatusCode: 201}}, results); diff != "" {
		t.Errorf("unexpected results: %v", diff)
	}
	expectedSent := []map[string]any{{"@search.action": "mergeOrUpload", "id": "1", "content": "text"}}
	if diff := cmp.Diff(expectedSent, got.Value); diff != "" {
		t.Errorf("unexpected request: %v", diff)
	}
	if _, ok := doc["@search.action"]; ok {
		t.Error("input document should not be modified")
	}
}

package search

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/a-h/jsonapi"
)

var ErrNotConfigured = errors.New("search: endpoint, API key and index are required")

const DefaultAPIVersion = "2024-07-01"

type Config struct {
	Endpoint   string
	APIKey     string
	Index      string
	APIVersion string
}

// Configured returns true if the search service can be used.
func (c Config) Configured() bool {
	return c.Endpoint != "" && c.APIKey != "" && c.Index != ""
}

func New(config Config) (*Client, error) {
	if !config.Configured() {
		return nil, ErrNotConfigured
	}
	if config.APIVersion == "" {
		config.APIVersion = DefaultAPIVersion
	}
	return &Client{
		endpoint:   strings.TrimSuffix(config.Endpoint, "/"),
		apiKey:     config.APIKey,
		index:      config.Index,
		apiVersion: config.APIVersion,
	}, nil
}

// Client for the Azure AI Search REST API. It's safe for concurrent use.
type Client struct {
	endpoint   string
	apiKey     string
	index      string
	apiVersion string
}

func (c *Client) IndexName() string {
	return c.index
}

type Mode string

const (
	ModeAny Mode = "any"
	ModeAll Mode = "all"
)

type Options struct {
	// Top is the maximum number of results.
	Top  int
	Mode Mode
}

type searchRequest struct {
	Search     string `json:"search"`
	Top        int    `json:"top,omitempty"`
	SearchMode Mode   `json:"searchMode,omitempty"`
}

// Search runs a full text query against the index.
func (c *Client) Search(ctx context.Context, query string, opts Options) (docs []Document, err error) {
	u, err := c.url("indexes", c.index, "docs", "search")
	if err != nil {
		return nil, err
	}
	body, err := c.do(ctx, http.MethodPost, u, searchRequest{
		Search:     query,
		Top:        opts.Top,
		SearchMode: opts.Mode,
	})
	if err != nil {
		return nil, fmt.Errorf("search: query failed: %w", err)
	}
	return ParseResults(body)
}

type IndexDefinition struct {
	Name   string       `json:"name"`
	Fields []IndexField `json:"fields"`
}

type IndexField struct {
	Name        string `json:"name"`
	Type        string `json:"type"`
	Key         bool   `json:"key"`
	Searchable  bool   `json:"searchable"`
	Retrievable bool   `json:"retrievable"`
}

// Index gets the index definition, which lists the fields that documents may have.
func (c *Client) Index(ctx context.Context) (def IndexDefinition, err error) {
	u, err := c.url("indexes", c.index)
	if err != nil {
		return def, err
	}
	body, err := c.do(ctx, http.MethodGet, u, nil)
	if err != nil {
		return def, fmt.Errorf("search: get index failed: %w", err)
	}
	if err = json.Unmarshal(body, &def); err != nil {
		return def, fmt.Errorf("search: failed to decode index definition: %w", err)
	}
	return def, nil
}

type UploadResult struct {
	Key          string `json:"key"`
	Status       bool   `json:"status"`
	ErrorMessage string `json:"errorMessage"`
	StatusCode   int    `json:"statusCode"`
}

type uploadResponse struct {
	Value []UploadResult `json:"value"`
}

// Upload merges the documents into the index, creating any that don't exist.
// Each document must contain the index key field.
func (c *Client) Upload(ctx context.Context, docs []map[string]any) (results []UploadResult, err error) {
	u, err := c.url("indexes", c.index, "docs", "index")
	if err != nil {
		return nil, err
	}
	actions := make([]map[string]any, len(docs))
	for i, doc := range docs {
		action := make(map[string]any, len(doc)+1)
		for k, v := range doc {
			action[k] = v
		}
		action["@search.action"] = "mergeOrUpload"
		actions[i] = action
	}
	body, err := c.do(ctx, http.MethodPost, u, map[string]any{"value": actions})
	if err != nil {
		return nil, fmt.Errorf("search: upload failed: %w", err)
	}
	var resp uploadResponse
	if err = json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("search: failed to decode upload response: %w", err)
	}
	return resp.Value, nil
}

func (c *Client) url(pathSegments ...string) (string, error) {
	return jsonapi.URL(c.endpoint).
		Path(pathSegments...).
		Query(map[string]string{"api-version": c.apiVersion}).
		String()
}

func (c *Client) do(ctx context.Context, method, url string, reqBody any) (respBody []byte, err error) {
	var r io.Reader
	if reqBody != nil {
		buf, err := json.Marshal(reqBody)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request: %w", err)
		}
		r = bytes.NewReader(buf)
	}
	httpReq, err := http.NewRequestWithContext(ctx, method, url, r)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	res, err := jsonapi.Raw(httpReq,
		jsonapi.WithRequestHeader("api-key", c.apiKey),
		jsonapi.WithRequestHeader("Content-Type", "application/json"))
	if err != nil {
		return nil, fmt.Errorf("failed to perform HTTP request: %w", err)
	}
	defer res.Body.Close()
	respBody, err = io.ReadAll(res.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}
	if res.StatusCode < 200 || res.StatusCode > 299 {
		return nil, jsonapi.InvalidStatusError{
			Status: res.StatusCode,
			Body:   string(respBody),
		}
	}
	return respBody, nil
}

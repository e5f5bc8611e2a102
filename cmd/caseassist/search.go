package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/a-h/caseassist/models"
	"github.com/a-h/caseassist/rag"
	"github.com/a-h/caseassist/search"
	"gopkg.in/yaml.v3"
)

type SearchCommand struct {
	Query            string `arg:"" help:"The text to search for."`
	SearchEndpoint   string `help:"The Azure AI Search endpoint." env:"AZURE_AI_SEARCH_ENDPOINT" required:""`
	SearchAPIKey     string `help:"The Azure AI Search API key." env:"AZURE_AI_SEARCH_API_KEY" required:""`
	SearchIndex      string `help:"The Azure AI Search index to query." env:"AZURE_AI_SEARCH_INDEX" required:""`
	SearchAPIVersion string `help:"The Azure AI Search API version." env:"AZURE_AI_SEARCH_API_VERSION" default:"2024-07-01"`
	SearchTop        int    `help:"The maximum number of sources to retrieve." env:"SEARCH_TOP" default:"5"`
	Format           string `help:"The output format." enum:"json,yaml,prompt" default:"json"`
	LogLevel         string `help:"The log level to use." env:"LOG_LEVEL" default:"info"`
}

func (c SearchCommand) Run(ctx context.Context) (err error) {
	sc, err := search.New(search.Config{
		Endpoint:   c.SearchEndpoint,
		APIKey:     c.SearchAPIKey,
		Index:      c.SearchIndex,
		APIVersion: c.SearchAPIVersion,
	})
	if err != nil {
		return fmt.Errorf("failed to create search client: %w", err)
	}
	docs, err := sc.Search(ctx, c.Query, search.Options{Top: c.SearchTop, Mode: search.ModeAny})
	if err != nil {
		return fmt.Errorf("failed to search: %w", err)
	}
	getLogger(c.LogLevel).Debug("search complete", slog.Int("results", len(docs)))
	return writeSources(os.Stdout, c.Format, docs)
}

func writeSources(w io.Writer, format string, docs []search.Document) error {
	switch format {
	case "prompt":
		_, err := fmt.Fprintln(w, rag.Context(docs))
		return err
	case "yaml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(sourcesForYAML(rag.FormatSources(docs))); err != nil {
			return err
		}
		return enc.Close()
	default:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(rag.FormatSources(docs))
	}
}

type yamlSource struct {
	Title   string  `yaml:"title"`
	URL     string  `yaml:"url,omitempty"`
	Score   float64 `yaml:"score"`
	Content string  `yaml:"content"`
}

func sourcesForYAML(sources []models.FormattedSource) []yamlSource {
	out := make([]yamlSource, len(sources))
	for i, s := range sources {
		out[i] = yamlSource{Title: s.Title, URL: s.URL, Score: s.Score, Content: s.Content}
	}
	return out
}

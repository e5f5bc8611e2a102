package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"iter"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/a-h/caseassist/search"
	"github.com/google/uuid"
	"github.com/tmc/langchaingo/documentloaders"
	"github.com/tmc/langchaingo/textsplitter"
)

type ImportCommand struct {
	Dir              string `arg:"" help:"The directory of .txt, .md and .pdf files to import." type:"existingdir"`
	SearchEndpoint   string `help:"The Azure AI Search endpoint." env:"AZURE_AI_SEARCH_ENDPOINT" required:""`
	SearchAPIKey     string `help:"The Azure AI Search admin API key." env:"AZURE_AI_SEARCH_API_KEY" required:""`
	SearchIndex      string `help:"The Azure AI Search index to import into." env:"AZURE_AI_SEARCH_INDEX" required:""`
	SearchAPIVersion string `help:"The Azure AI Search API version." env:"AZURE_AI_SEARCH_API_VERSION" default:"2024-07-01"`
	ChunkSize        int    `help:"The maximum size of each chunk of text, in characters." env:"CHUNK_SIZE" default:"2000"`
	ChunkOverlap     int    `help:"The number of characters shared by consecutive chunks." env:"CHUNK_OVERLAP" default:"200"`
	BatchSize        int    `help:"The number of chunks to upload in each request." env:"BATCH_SIZE" default:"100"`
	DryRun           bool   `help:"Do not actually import the documents." env:"DRY_RUN" default:"false"`
	LogLevel         string `help:"The log level to use." env:"LOG_LEVEL" default:"info"`
}

func (c ImportCommand) Run(ctx context.Context) (err error) {
	log := getLogger(c.LogLevel)

	sc, err := search.New(search.Config{
		Endpoint:   c.SearchEndpoint,
		APIKey:     c.SearchAPIKey,
		Index:      c.SearchIndex,
		APIVersion: c.SearchAPIVersion,
	})
	if err != nil {
		return fmt.Errorf("failed to create search client: %w", err)
	}

	splitter := textsplitter.NewRecursiveCharacter(
		textsplitter.WithChunkSize(c.ChunkSize),
		textsplitter.WithChunkOverlap(c.ChunkOverlap),
	)
	fe := NewFileExporter(c.Dir, splitter)
	var uploader Uploader = sc
	if c.DryRun {
		log.Info("dry run mode, documents will not be imported")
		uploader = dryRunUploader{log: log}
	}
	imported, err := importDocuments(ctx, log, uploader, fe.Export(ctx), c.BatchSize)
	if err != nil {
		return err
	}
	if fe.Error != nil {
		return fe.Error
	}
	log.Info("import complete", slog.String("index", sc.IndexName()), slog.Int("chunks", imported))
	return nil
}

// Uploader merges documents into the search index.
type Uploader interface {
	Upload(ctx context.Context, docs []map[string]any) ([]search.UploadResult, error)
}

type dryRunUploader struct {
	log *slog.Logger
}

func (u dryRunUploader) Upload(ctx context.Context, docs []map[string]any) (results []search.UploadResult, err error) {
	for _, doc := range docs {
		u.log.Info("skipping document import in dry run mode", slog.Any("id", doc["id"]), slog.Any("path", doc["path"]))
		results = append(results, search.UploadResult{Key: fmt.Sprint(doc["id"]), Status: true})
	}
	return results, nil
}

func importDocuments(ctx context.Context, log *slog.Logger, u Uploader, docs iter.Seq[ExportedDocument], batchSize int) (imported int, err error) {
	if batchSize < 1 {
		batchSize = 1
	}
	batch := make([]map[string]any, 0, batchSize)
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		results, err := u.Upload(ctx, batch)
		if err != nil {
			return fmt.Errorf("failed to upload documents: %w", err)
		}
		var errs []error
		for _, r := range results {
			if !r.Status {
				errs = append(errs, fmt.Errorf("document %s: %s", r.Key, r.ErrorMessage))
			}
		}
		imported += len(results) - len(errs)
		batch = batch[:0]
		return errors.Join(errs...)
	}
	for doc := range docs {
		log.Debug("importing document", slog.String("path", doc.Path), slog.Int("chunk", doc.Chunk))
		batch = append(batch, doc.Fields())
		if len(batch) < batchSize {
			continue
		}
		if err = flush(); err != nil {
			return imported, err
		}
	}
	return imported, flush()
}

func NewFileExporter(dir string, splitter textsplitter.TextSplitter) *FileExporter {
	return &FileExporter{
		dir:      dir,
		splitter: splitter,
	}
}

// FileExporter reads documents from a directory and splits them into chunks.
type FileExporter struct {
	dir      string
	splitter textsplitter.TextSplitter
	Error    error
}

type ExportedDocument struct {
	// ID is derived from the path and chunk number, so importing a file
	// again replaces its chunks.
	ID       string
	Title    string
	Filename string
	Path     string
	Chunk    int
	Content  string
}

// Fields returns the document as it's stored in the search index.
func (d ExportedDocument) Fields() map[string]any {
	return map[string]any{
		"id":             d.ID,
		"document_title": d.Title,
		"filename":       d.Filename,
		"path":           d.Path,
		"chunk":          d.Chunk,
		"content":        d.Content,
	}
}

func documentID(path string, chunk int) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(fmt.Sprintf("%s#%d", path, chunk))).String()
}

var supportedExtensions = map[string]bool{
	".txt": true,
	".md":  true,
	".pdf": true,
}

func (fe *FileExporter) Export(ctx context.Context) iter.Seq[ExportedDocument] {
	return func(yield func(ExportedDocument) bool) {
		fe.Error = filepath.WalkDir(fe.dir, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if d.IsDir() || !supportedExtensions[strings.ToLower(filepath.Ext(path))] {
				return nil
			}
			rel, err := filepath.Rel(fe.dir, path)
			if err != nil {
				return err
			}
			rel = filepath.ToSlash(rel)
			chunks, err := fe.load(ctx, path)
			if err != nil {
				return fmt.Errorf("failed to load %s: %w", rel, err)
			}
			filename := filepath.Base(path)
			for i, chunk := range chunks {
				doc := ExportedDocument{
					ID:       documentID(rel, i),
					Title:    strings.TrimSuffix(filename, filepath.Ext(filename)),
					Filename: filename,
					Path:     rel,
					Chunk:    i,
					Content:  chunk,
				}
				if !yield(doc) {
					return fs.SkipAll
				}
			}
			return nil
		})
	}
}

func (fe *FileExporter) load(ctx context.Context, path string) (chunks []string, err error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var loader documentloaders.Loader
	if strings.EqualFold(filepath.Ext(path), ".pdf") {
		info, err := f.Stat()
		if err != nil {
			return nil, err
		}
		loader = documentloaders.NewPDF(f, info.Size())
	} else {
		loader = documentloaders.NewText(f)
	}
	docs, err := loader.LoadAndSplit(ctx, fe.splitter)
	if err != nil {
		return nil, err
	}
	for _, doc := range docs {
		if content := strings.TrimSpace(doc.PageContent); content != "" {
			chunks = append(chunks, content)
		}
	}
	return chunks, nil
}

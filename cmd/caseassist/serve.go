package main

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/a-h/caseassist/auth"
	chatpost "github.com/a-h/caseassist/handlers/chat/post"
	healthget "github.com/a-h/caseassist/handlers/health/get"
	testconnectionget "github.com/a-h/caseassist/handlers/testconnection/get"
	"github.com/a-h/caseassist/metrics"
	"github.com/a-h/caseassist/middleware"
	"github.com/a-h/caseassist/rag"
	"github.com/a-h/caseassist/search"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/cors"
	"github.com/tmc/langchaingo/llms/openai"
)

type ServeCommand struct {
	OpenAIEndpoint      string        `help:"The Azure OpenAI endpoint." env:"AZURE_OPENAI_ENDPOINT" required:""`
	OpenAIAPIKey        string        `help:"The Azure OpenAI API key." env:"AZURE_OPENAI_API_KEY" required:""`
	OpenAIDeployment    string        `help:"The Azure OpenAI chat model deployment." env:"AZURE_OPENAI_DEPLOYMENT_ID" required:""`
	OpenAIAPIVersion    string        `help:"The Azure OpenAI API version." env:"AZURE_OPENAI_API_VERSION" default:"2024-10-21"`
	SearchEndpoint      string        `help:"The Azure AI Search endpoint. If not set, answers are generated without sources." env:"AZURE_AI_SEARCH_ENDPOINT" default:""`
	SearchAPIKey        string        `help:"The Azure AI Search API key." env:"AZURE_AI_SEARCH_API_KEY" default:""`
	SearchIndex         string        `help:"The Azure AI Search index to query." env:"AZURE_AI_SEARCH_INDEX" default:""`
	SearchAPIVersion    string        `help:"The Azure AI Search API version." env:"AZURE_AI_SEARCH_API_VERSION" default:"2024-07-01"`
	SearchTop           int           `help:"The maximum number of sources to retrieve." env:"SEARCH_TOP" default:"5"`
	MaxTokens           int           `help:"The maximum number of tokens to generate." env:"MAX_TOKENS" default:"1000"`
	Temperature         float64       `help:"The sampling temperature." env:"TEMPERATURE" default:"0.3"`
	CompletionTimeout   time.Duration `help:"The maximum time a completion can stream for." env:"COMPLETION_TIMEOUT" default:"5m"`
	SystemPrompt        string        `help:"A file containing the system prompt template. The sources are inserted at %s, and %% is a literal percent sign." env:"SYSTEM_PROMPT" default:""`
	Port                int           `help:"The port to listen on." env:"PORT" default:"3001"`
	ListenAddr          string        `help:"The address to listen on. Overrides the port." env:"LISTEN_ADDR" default:""`
	CORSOrigin          string        `help:"Comma separated list of allowed origins, or * for any." env:"CORS_ORIGIN" default:"*"`
	AuthTenantID        string        `help:"The Microsoft Entra ID tenant that issues access tokens. If not set, the API is not protected." env:"AZURE_TENANT_ID" default:""`
	AuthAudience        string        `help:"The expected audience of access tokens." env:"AUTH_AUDIENCE" default:""`
	AuthAuthorizedParty string        `help:"The client ID of the frontend application that tokens must be issued to." env:"AUTH_AUTHORIZED_PARTY" default:""`
	AuthIssuer          string        `help:"The expected token issuer. Defaults to the tenant's v2.0 issuer." env:"AUTH_ISSUER" default:""`
	AuthJWKSURL         string        `help:"The URL of the signing keys. Defaults to the tenant's keys." env:"AUTH_JWKS_URL" default:""`
	TLSCertFile         string        `help:"The TLS certificate file." env:"TLS_CERT_FILE" default:""`
	TLSKeyFile          string        `help:"The TLS key file." env:"TLS_KEY_FILE" default:""`
	LogLevel            string        `help:"The log level to use." env:"LOG_LEVEL" default:"info"`
}

func readFileOrDefault(filename, defaultContent string) (string, error) {
	if filename == "" {
		return defaultContent, nil
	}
	contents, err := os.ReadFile(filename)
	if err != nil {
		return "", fmt.Errorf("failed to read file %s: %w", filename, err)
	}
	return string(contents), nil
}

func (c ServeCommand) Run(ctx context.Context) (err error) {
	log := getLogger(c.LogLevel)
	template, err := readFileOrDefault(c.SystemPrompt, rag.DefaultSystemPrompt)
	if err != nil {
		return fmt.Errorf("failed to read system prompt: %w", err)
	}
	prompt, err := rag.NewPrompt(template)
	if err != nil {
		return fmt.Errorf("invalid system prompt: %w", err)
	}

	log.Info("creating LLM client", slog.String("endpoint", c.OpenAIEndpoint), slog.String("deployment", c.OpenAIDeployment))
	llm, err := openai.New(
		openai.WithAPIType(openai.APITypeAzure),
		openai.WithBaseURL(c.OpenAIEndpoint),
		openai.WithToken(c.OpenAIAPIKey),
		openai.WithModel(c.OpenAIDeployment),
		openai.WithAPIVersion(c.OpenAIAPIVersion),
	)
	if err != nil {
		return fmt.Errorf("failed to create LLM: %w", err)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	// The searcher must stay a nil interface when search isn't configured.
	var searcher rag.Searcher
	searchConfig := search.Config{
		Endpoint:   c.SearchEndpoint,
		APIKey:     c.SearchAPIKey,
		Index:      c.SearchIndex,
		APIVersion: c.SearchAPIVersion,
	}
	if searchConfig.Configured() {
		sc, err := search.New(searchConfig)
		if err != nil {
			return fmt.Errorf("failed to create search client: %w", err)
		}
		logIndexSchema(ctx, log, sc)
		searcher = sc
	} else {
		log.Warn("search is not configured, answers will be generated without sources")
	}

	protect, err := c.protect(log)
	if err != nil {
		return err
	}

	h := newHandler(log, routes{
		health:         healthget.New(searcher != nil),
		testConnection: testconnectionget.New(log, llm, searcher != nil),
		chat: chatpost.New(log,
			rag.NewRetriever(log, searcher, c.SearchTop, m),
			prompt,
			rag.NewCompleter(llm, c.MaxTokens, c.Temperature),
			c.CompletionTimeout,
			m),
		metrics: metrics.Handler(reg),
	}, protect, newCORS(c.CORSOrigin), m)

	addr := c.ListenAddr
	if addr == "" {
		addr = fmt.Sprintf(":%d", c.Port)
	}
	log.Info("Listening", slog.String("addr", addr))
	s := &http.Server{
		Addr:              addr,
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
	}
	if c.TLSCertFile != "" && c.TLSKeyFile != "" {
		log.Info("Enabling TLS mode")
		var cert tls.Certificate
		cert, err = tls.LoadX509KeyPair(c.TLSCertFile, c.TLSKeyFile)
		if err != nil {
			return fmt.Errorf("failed to load cert: %w", err)
		}
		s.TLSConfig = &tls.Config{
			MinVersion:   tls.VersionTLS12,
			Certificates: []tls.Certificate{cert},
		}
		return s.ListenAndServeTLS(c.TLSCertFile, c.TLSKeyFile)
	}
	return s.ListenAndServe()
}

// protect returns middleware that requires a valid access token, or no middleware if
// no tenant is configured.
func (c ServeCommand) protect(log *slog.Logger) (func(http.Handler) http.Handler, error) {
	if c.AuthTenantID == "" {
		log.Warn("authentication is disabled, set a tenant ID to protect the API")
		return func(next http.Handler) http.Handler { return next }, nil
	}
	if c.AuthAudience == "" {
		return nil, errors.New("an audience is required when a tenant ID is set")
	}
	config := auth.Config{
		Issuer:          c.AuthIssuer,
		Audience:        c.AuthAudience,
		AuthorizedParty: c.AuthAuthorizedParty,
	}
	if config.Issuer == "" {
		config.Issuer = auth.TenantIssuer(c.AuthTenantID)
	}
	keysURL := c.AuthJWKSURL
	if keysURL == "" {
		keysURL = auth.TenantKeysURL(c.AuthTenantID)
	}
	log.Info("authentication enabled",
		slog.String("issuer", config.Issuer),
		slog.String("audience", config.Audience),
		slog.String("keys", keysURL))
	keys := auth.NewJWKS(log, keysURL, auth.DefaultJWKSOptions)
	return func(next http.Handler) http.Handler {
		return auth.New(log, keys, config, next)
	}, nil
}

func logIndexSchema(ctx context.Context, log *slog.Logger, sc *search.Client) {
	def, err := sc.Index(ctx)
	if err != nil {
		log.Warn("failed to get search index schema", slog.String("index", sc.IndexName()), slog.Any("error", err))
		return
	}
	for _, f := range def.Fields {
		log.Info("search index field",
			slog.String("index", def.Name),
			slog.String("name", f.Name),
			slog.String("type", f.Type),
			slog.Bool("searchable", f.Searchable),
			slog.Bool("retrievable", f.Retrievable))
	}
}

func newCORS(origins string) *cors.Cors {
	if strings.TrimSpace(origins) == "*" {
		return cors.AllowAll()
	}
	var allowed []string
	for _, o := range strings.Split(origins, ",") {
		if o = strings.TrimSpace(o); o != "" {
			allowed = append(allowed, o)
		}
	}
	return cors.New(cors.Options{
		AllowedOrigins: allowed,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type", "Authorization", middleware.RequestIDHeader},
	})
}

type routes struct {
	health         http.Handler
	testConnection http.Handler
	chat           http.Handler
	metrics        http.Handler
}

func newHandler(log *slog.Logger, r routes, protect func(http.Handler) http.Handler, c *cors.Cors, m *metrics.Metrics) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("GET /health", r.health)
	mux.Handle("GET /api/test-connection", protect(r.testConnection))
	mux.Handle("POST /api/chat/completions", protect(r.chat))
	mux.Handle("GET /metrics", r.metrics)

	var h http.Handler = c.Handler(mux)
	h = m.Instrument(h)
	h = middleware.Log(log, h)
	return middleware.RequestID(h)
}

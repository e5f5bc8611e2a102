package auth

import (
	"context"
	"crypto"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/big"
	"net/http"
	"sync"
	"time"

	"github.com/a-h/jsonapi"
	"github.com/hashicorp/golang-lru/v2/expirable"
	"golang.org/x/time/rate"
)

var ErrKeyNotFound = errors.New("signing key not found")

// TenantKeysURL returns the JWKS endpoint of a Microsoft Entra ID tenant.
func TenantKeysURL(tenantID string) string {
	return fmt.Sprintf("https://login.microsoftonline.com/%s/discovery/v2.0/keys", tenantID)
}

type JWKSOptions struct {
	// TTL is how long a fetched key is trusted before it is fetched again.
	TTL time.Duration
	// MinRefreshInterval limits how often unknown key IDs can trigger a fetch.
	MinRefreshInterval time.Duration
	// MaxKeys is the size of the key cache.
	MaxKeys int
}

var DefaultJWKSOptions = JWKSOptions{
	TTL:                time.Hour * 24,
	MinRefreshInterval: time.Minute,
	MaxKeys:            64,
}

func NewJWKS(log *slog.Logger, url string, opts JWKSOptions) *JWKS {
	if opts.MaxKeys <= 0 {
		opts.MaxKeys = DefaultJWKSOptions.MaxKeys
	}
	return &JWKS{
		log:     log,
		url:     url,
		keys:    expirable.NewLRU[string, crypto.PublicKey](opts.MaxKeys, nil, opts.TTL),
		limiter: rate.NewLimiter(rate.Every(opts.MinRefreshInterval), 1),
	}
}

// JWKS fetches signing keys from a JSON Web Key Set endpoint and caches them.
type JWKS struct {
	log     *slog.Logger
	url     string
	keys    *expirable.LRU[string, crypto.PublicKey]
	limiter *rate.Limiter
	m       sync.Mutex
}

func (j *JWKS) Key(ctx context.Context, kid string) (key crypto.PublicKey, err error) {
	if key, ok := j.keys.Get(kid); ok {
		return key, nil
	}
	j.m.Lock()
	defer j.m.Unlock()
	// Another request may have refreshed the keys while this one waited.
	if key, ok := j.keys.Get(kid); ok {
		return key, nil
	}
	if !j.limiter.Allow() {
		return nil, ErrKeyNotFound
	}
	if err = j.refresh(ctx); err != nil {
		return nil, err
	}
	if key, ok := j.keys.Get(kid); ok {
		return key, nil
	}
	return nil, ErrKeyNotFound
}

type jsonWebKey struct {
	KeyType string `json:"kty"`
	KeyID   string `json:"kid"`
	Use     string `json:"use"`
	N       string `json:"n"`
	E       string `json:"e"`
}

type jsonWebKeySet struct {
	Keys []jsonWebKey `json:"keys"`
}

func (j *JWKS) refresh(ctx context.Context) (err error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, j.url, nil)
	if err != nil {
		return fmt.Errorf("jwks: failed to create request: %w", err)
	}
	res, err := jsonapi.Raw(req)
	if err != nil {
		return fmt.Errorf("jwks: failed to fetch keys: %w", err)
	}
	defer res.Body.Close()
	if res.StatusCode < 200 || res.StatusCode > 299 {
		body, _ := io.ReadAll(res.Body)
		return jsonapi.InvalidStatusError{
			Status: res.StatusCode,
			Body:   string(body),
		}
	}
	var set jsonWebKeySet
	if err = json.NewDecoder(res.Body).Decode(&set); err != nil {
		return fmt.Errorf("jwks: failed to decode keys: %w", err)
	}
	var added int
	for _, jwk := range set.Keys {
		if jwk.KeyType != "RSA" || (jwk.Use != "" && jwk.Use != "sig") {
			continue
		}
		key, err := parseRSAPublicKey(jwk.N, jwk.E)
		if err != nil {
			j.log.Warn("skipping invalid signing key", slog.String("kid", jwk.KeyID), slog.Any("error", err))
			continue
		}
		j.keys.Add(jwk.KeyID, key)
		added++
	}
	j.log.Debug("refreshed signing keys", slog.String("url", j.url), slog.Int("count", added))
	return nil
}

func parseRSAPublicKey(n, e string) (key *rsa.PublicKey, err error) {
	nb, err := base64.RawURLEncoding.DecodeString(n)
	if err != nil {
		return nil, fmt.Errorf("invalid modulus: %w", err)
	}
	eb, err := base64.RawURLEncoding.DecodeString(e)
	if err != nil {
		return nil, fmt.Errorf("invalid exponent: %w", err)
	}
	exponent := new(big.Int).SetBytes(eb)
	if len(nb) == 0 || !exponent.IsInt64() || exponent.Int64() < 3 {
		return nil, errors.New("invalid key parameters")
	}
	return &rsa.PublicKey{
		N: new(big.Int).SetBytes(nb),
		E: int(exponent.Int64()),
	}, nil
}

package auth

import (
	"context"
	"crypto"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/a-h/caseassist/models"
	"github.com/a-h/respond"
	"github.com/golang-jwt/jwt/v5"
)

// Config sets the rules a bearer token must satisfy.
type Config struct {
	// Issuer is the expected iss claim. Empty skips the check.
	Issuer string
	// Audience is the expected aud claim.
	Audience string
	// AuthorizedParty is the client ID of the frontend application. When set, the
	// token's azp (or appid for v1 tokens) claim must match it.
	AuthorizedParty string
}

// TenantIssuer returns the issuer used by Microsoft Entra ID v2 tokens.
func TenantIssuer(tenantID string) string {
	return fmt.Sprintf("https://login.microsoftonline.com/%s/v2.0", tenantID)
}

type Claims struct {
	AuthorizedParty string `json:"azp,omitempty"`
	AppID           string `json:"appid,omitempty"`
	jwt.RegisteredClaims
}

// KeySet returns the public key for a key ID.
type KeySet interface {
	Key(ctx context.Context, kid string) (crypto.PublicKey, error)
}

func New(log *slog.Logger, keys KeySet, config Config, next http.Handler) *Auth {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg()}),
		jwt.WithExpirationRequired(),
	}
	if config.Audience != "" {
		opts = append(opts, jwt.WithAudience(config.Audience))
	}
	if config.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(config.Issuer))
	}
	return &Auth{
		Log:    log,
		Keys:   keys,
		Config: config,
		Next:   next,
		parser: jwt.NewParser(opts...),
	}
}

type Auth struct {
	Log    *slog.Logger
	Keys   KeySet
	Config Config
	Next   http.Handler
	parser *jwt.Parser
}

type claimsContextKey int

const claimsKey claimsContextKey = 0

func GetClaims(r *http.Request) (claims *Claims, ok bool) {
	claims, ok = r.Context().Value(claimsKey).(*Claims)
	return
}

var (
	errMissingAuthorization = errors.New("missing authorization")
	errInvalidAuthorization = errors.New("invalid authorization")
)

func bearerToken(r *http.Request) (token string, err error) {
	header := r.Header.Get("Authorization")
	if header == "" {
		return "", errMissingAuthorization
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", errInvalidAuthorization
	}
	return strings.TrimSpace(parts[1]), nil
}

func (a *Auth) keyFunc(r *http.Request) jwt.Keyfunc {
	return func(token *jwt.Token) (any, error) {
		kid, _ := token.Header["kid"].(string)
		if kid == "" {
			return nil, errors.New("token has no kid header")
		}
		return a.Keys.Key(r.Context(), kid)
	}
}

func (a *Auth) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	tokenString, err := bearerToken(r)
	if err != nil {
		a.Log.Debug("unauthorized request", slog.String("path", r.URL.Path), slog.Any("error", err))
		respond.WithJSON(w, models.ErrorResponse{Error: "Unauthorized", Message: err.Error()}, http.StatusUnauthorized)
		return
	}
	claims := &Claims{}
	if _, err = a.parser.ParseWithClaims(tokenString, claims, a.keyFunc(r)); err != nil {
		a.Log.Info("invalid token", slog.String("path", r.URL.Path), slog.Any("error", err))
		respond.WithJSON(w, models.ErrorResponse{Error: "Unauthorized", Message: "invalid token"}, http.StatusUnauthorized)
		return
	}
	if !a.authorizedParty(claims) {
		a.Log.Info("token issued to another application",
			slog.String("azp", claims.AuthorizedParty),
			slog.String("appid", claims.AppID))
		respond.WithJSON(w, models.ErrorResponse{Error: "Forbidden", Message: "token was not issued to an authorized application"}, http.StatusForbidden)
		return
	}
	r = r.WithContext(context.WithValue(r.Context(), claimsKey, claims))
	a.Next.ServeHTTP(w, r)
}

func (a *Auth) authorizedParty(claims *Claims) bool {
	if a.Config.AuthorizedParty == "" {
		return true
	}
	return claims.AuthorizedParty == a.Config.AuthorizedParty || claims.AppID == a.Config.AuthorizedParty
}

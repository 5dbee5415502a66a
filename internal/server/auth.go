package server

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/golang-jwt/jwt/v5"

	"gigline/internal/domain"
	"gigline/internal/repo"
)

type AuthConfig struct {
	JWTSecret              string
	AllowLegacyActorHeader bool
	Logger                 *log.Logger
}

// Principal is the identity provider's answer for a caller token. The core
// trusts it and never re-validates credentials.
type Principal struct {
	UserID      string
	DisplayName string
	Role        string
	Source      string
}

func (p Principal) Admin() bool { return p.Role == domain.AccountAdmin }

type principalKey struct{}

func (c AuthConfig) logger() *log.Logger {
	if c.Logger != nil {
		return c.Logger
	}
	return log.Default()
}

func withPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

func principalFromContext(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(principalKey{}).(Principal)
	return p, ok
}

func requirePrincipal(ctx context.Context) (Principal, huma.StatusError) {
	if p, ok := principalFromContext(ctx); ok && p.UserID != "" {
		return p, nil
	}
	return Principal{}, newAPIError(http.StatusUnauthorized, "unauthorized", "authentication required", nil)
}

type jwtClaims struct {
	jwt.RegisteredClaims
	Name string `json:"name,omitempty"`
	Role string `json:"role,omitempty"`
}

func authenticateJWT(token, secret string) (Principal, error) {
	if strings.TrimSpace(secret) == "" {
		return Principal{}, errJWTSecretMissing
	}
	parser := jwt.NewParser(jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	claims := &jwtClaims{}
	parsed, err := parser.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		return []byte(secret), nil
	})
	if err != nil {
		return Principal{}, err
	}
	if !parsed.Valid {
		return Principal{}, errInvalidToken
	}
	if claims.Subject == "" {
		return Principal{}, errSubjectRequired
	}
	role := claims.Role
	if role == "" {
		role = domain.AccountProvider
	}
	return Principal{
		UserID:      claims.Subject,
		DisplayName: claims.Name,
		Role:        role,
		Source:      "jwt",
	}, nil
}

var (
	errJWTSecretMissing = jwt.ErrTokenUnverifiable
	errInvalidToken     = jwt.ErrTokenNotValidYet
	errSubjectRequired  = jwt.ErrTokenRequiredClaimMissing
)

func authenticateAPIKey(ctx context.Context, r repo.Repo, key string) (Principal, error) {
	hash := repo.HashAPIKey(key)
	apiKey, err := r.GetAPIKeyByHash(ctx, hash)
	if err != nil {
		return Principal{}, err
	}
	account, err := r.GetAccount(ctx, apiKey.AccountID)
	if err != nil {
		// Key predates the account row; treat as a bare provider identity.
		return Principal{UserID: apiKey.AccountID, Role: domain.AccountProvider, Source: "api_key"}, nil
	}
	return Principal{
		UserID:      account.ID,
		DisplayName: account.DisplayName,
		Role:        account.Type,
		Source:      "api_key",
	}, nil
}

func bearerToken(authz string) (string, bool) {
	parts := strings.Fields(authz)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return "", false
	}
	return parts[1], true
}

func newAuthMiddleware(basePath string, cfg AuthConfig, r repo.Repo) func(http.Handler) http.Handler {
	healthPath := path.Join(basePath, "health")
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			if basePath != "" && !strings.HasPrefix(req.URL.Path, basePath) {
				next.ServeHTTP(w, req)
				return
			}
			if req.URL.Path == healthPath {
				next.ServeHTTP(w, req)
				return
			}

			authz := strings.TrimSpace(req.Header.Get("Authorization"))
			apiKeyHeader := strings.TrimSpace(req.Header.Get("X-Api-Key"))
			legacyActor := strings.TrimSpace(req.Header.Get("X-Actor-Id"))

			var principal Principal
			switch {
			case authz != "":
				token, ok := bearerToken(authz)
				if !ok {
					respondStatusError(w, newAPIError(http.StatusUnauthorized, "invalid_credentials", "invalid credentials", nil))
					return
				}
				p, err := authenticateJWT(token, cfg.JWTSecret)
				if err != nil {
					respondStatusError(w, newAPIError(http.StatusUnauthorized, "invalid_credentials", "invalid credentials", nil))
					return
				}
				principal = p
			case apiKeyHeader != "":
				p, err := authenticateAPIKey(req.Context(), r, apiKeyHeader)
				if err != nil {
					respondStatusError(w, newAPIError(http.StatusUnauthorized, "invalid_credentials", "invalid credentials", nil))
					return
				}
				principal = p
			case legacyActor != "" && cfg.AllowLegacyActorHeader:
				cfg.logger().Printf("WARNING: using legacy X-Actor-Id header without auth (user_id=%s)", legacyActor)
				role := strings.TrimSpace(req.Header.Get("X-Actor-Role"))
				if role == "" {
					role = domain.AccountProvider
				}
				principal = Principal{UserID: legacyActor, DisplayName: strings.TrimSpace(req.Header.Get("X-Actor-Name")), Role: role, Source: "legacy_header"}
			default:
				respondStatusError(w, newAPIError(http.StatusUnauthorized, "unauthorized", "authentication required", nil))
				return
			}

			// Keep live display data current for conversation enrichment.
			// Best effort: an upsert failure must not block the request.
			if err := r.UpsertAccount(req.Context(), domain.Account{
				ID:          principal.UserID,
				DisplayName: principal.DisplayName,
				Type:        principal.Role,
				CreatedAt:   time.Now().UTC().Format(time.RFC3339),
			}); err != nil {
				cfg.logger().Printf("auth: account upsert for %s failed: %v", principal.UserID, err)
			}

			next.ServeHTTP(w, req.WithContext(withPrincipal(req.Context(), principal)))
		})
	}
}

func respondStatusError(w http.ResponseWriter, err huma.StatusError) {
	status := http.StatusInternalServerError
	if e, ok := err.(interface{ GetStatus() int }); ok {
		status = e.GetStatus()
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(err)
}

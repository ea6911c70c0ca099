package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"path"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"tuleapsync/internal/codec"
)

const (
	headerAuthToken  = "X-Auth-Token"
	headerAuthUserID = "X-Auth-UserId"
)

type AuthConfig struct {
	// Secret signs the tokens. A random secret is used when empty.
	Secret   string
	TokenTTL time.Duration
	// AllowAnonymous serves requests that carry no token at all.
	AllowAnonymous bool
	Tokens         *TokenStore
	Logger         *log.Logger
}

func (c AuthConfig) logger() *log.Logger {
	if c.Logger != nil {
		return c.Logger
	}
	return log.Default()
}

func (c AuthConfig) ttl() time.Duration {
	if c.TokenTTL <= 0 {
		return time.Hour
	}
	return c.TokenTTL
}

// TokenStore records the ids of the tokens still accepted.
type TokenStore struct {
	mu  sync.Mutex
	ids map[string]bool
}

func NewTokenStore() *TokenStore {
	return &TokenStore{ids: map[string]bool{}}
}

func (s *TokenStore) add(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ids[id] = true
}

func (s *TokenStore) valid(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ids[id]
}

// Revoke invalidates every token issued so far.
func (s *TokenStore) Revoke() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ids = map[string]bool{}
}

// Len is the number of accepted tokens.
func (s *TokenStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.ids)
}

type Principal struct {
	UserID int
	Source string
}

type principalKey struct{}

func withPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

func principalFromContext(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(principalKey{}).(Principal)
	return p, ok
}

type jwtClaims struct {
	jwt.RegisteredClaims
}

func issueToken(cfg AuthConfig, userID int, now time.Time) (string, error) {
	claims := jwtClaims{RegisteredClaims: jwt.RegisteredClaims{
		Subject:   strconv.Itoa(userID),
		ID:        uuid.NewString(),
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(cfg.ttl())),
	}}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(cfg.Secret))
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	cfg.Tokens.add(claims.ID)
	return signed, nil
}

func authenticateToken(cfg AuthConfig, token, userID string) (Principal, error) {
	parser := jwt.NewParser(jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	claims := &jwtClaims{}
	parsed, err := parser.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		return []byte(cfg.Secret), nil
	})
	if err != nil {
		return Principal{}, err
	}
	if !parsed.Valid {
		return Principal{}, errors.New("invalid token")
	}
	if !cfg.Tokens.valid(claims.ID) {
		return Principal{}, errors.New("token revoked")
	}
	if claims.Subject != userID {
		return Principal{}, errors.New("token issued to another user")
	}
	id, err := strconv.Atoi(claims.Subject)
	if err != nil {
		return Principal{}, fmt.Errorf("subject claim: %w", err)
	}
	return Principal{UserID: id, Source: "token"}, nil
}

func newAuthMiddleware(basePath string, cfg AuthConfig) func(http.Handler) http.Handler {
	tokensPath := path.Join(basePath, "tokens")
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			if !strings.HasPrefix(req.URL.Path, basePath) || req.URL.Path == tokensPath {
				next.ServeHTTP(w, req)
				return
			}
			token := strings.TrimSpace(req.Header.Get(headerAuthToken))
			userID := strings.TrimSpace(req.Header.Get(headerAuthUserID))
			if token == "" && userID == "" && cfg.AllowAnonymous {
				next.ServeHTTP(w, req)
				return
			}
			principal, err := authenticateToken(cfg, token, userID)
			if err != nil {
				cfg.logger().Printf("mock: rejected %s %s: %v", req.Method, req.URL.Path, err)
				respondStatusError(w, newAPIError(http.StatusUnauthorized, "Unauthorized"))
				return
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

func registerTokens(api huma.API, f *Fixture, cfg AuthConfig) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-token",
		Method:        http.MethodPost,
		Path:          "/tokens",
		Summary:       "Log in",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusUnauthorized},
	}, func(ctx context.Context, input *struct {
		Body codec.CredentialsJSON `json:"body"`
	}) (*struct {
		Body codec.TokenJSON `json:"body"`
	}, error) {
		u, ok := f.checkPassword(input.Body.Username, input.Body.Password)
		if !ok {
			return nil, newAPIError(http.StatusUnauthorized, "Unauthorized")
		}
		token, err := issueToken(cfg, u.ID, f.now())
		if err != nil {
			return nil, newAPIError(http.StatusInternalServerError, err.Error())
		}
		return &struct {
			Body codec.TokenJSON `json:"body"`
		}{Body: codec.TokenJSON{UserID: u.ID, Token: token, URI: "tokens/" + token}}, nil
	})
}

package server

import (
	"bytes"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"io"
	"log"
	"net/http"
	"strconv"
	"strings"
	"sync"

	"github.com/danielgtaylor/huma/v2"
	humachi "github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"

	"tuleapsync/internal/codec"
)

// Config for the mock Tuleap API handler.
type Config struct {
	Fixture  *Fixture
	BasePath string
	Auth     AuthConfig
	// Codec renders dates; nil renders them in the local time zone.
	Codec  *codec.Registry
	Logger *log.Logger
}

func (c Config) logger() *log.Logger {
	if c.Logger != nil {
		return c.Logger
	}
	return log.Default()
}

type apiErrorBody struct {
	Code    int    `json:"code" example:"404"`
	Message string `json:"message" example:"Not Found"`
}

type debugBody struct {
	Source string `json:"source"`
}

// apiError is the error envelope of the Tuleap REST API.
type apiError struct {
	status int
	Body   apiErrorBody `json:"error"`
	Debug  *debugBody   `json:"debug,omitempty"`
}

func (e *apiError) GetStatus() int { return e.status }
func (e *apiError) Error() string  { return e.Body.Message }

var configureHuma sync.Once

// setHumaErrors makes huma answer with the Tuleap error envelope. The hooks
// are package level in huma.
func setHumaErrors() {
	huma.DefaultArrayNullable = false
	huma.NewError = func(status int, msg string, errs ...error) huma.StatusError {
		return newAPIError(status, msg)
	}
	huma.NewErrorWithContext = func(_ huma.Context, status int, msg string, errs ...error) huma.StatusError {
		if status == http.StatusUnprocessableEntity {
			// Tuleap answers malformed requests with 400.
			status = http.StatusBadRequest
		}
		e := newAPIError(status, msg)
		if len(errs) > 0 {
			e.Debug = &debugBody{Source: errs[0].Error()}
		}
		return e
	}
}

// New returns an HTTP handler serving the fixture the way Tuleap serves its
// REST API.
func New(cfg Config) (http.Handler, error) {
	basePath := cfg.BasePath
	if basePath == "" {
		basePath = "/api/v1"
	}
	if !strings.HasPrefix(basePath, "/") {
		basePath = "/" + basePath
	}
	if cfg.Fixture == nil {
		cfg.Fixture = NewFixture(nil)
	}
	if cfg.Auth.Tokens == nil {
		cfg.Auth.Tokens = NewTokenStore()
	}
	if cfg.Auth.Secret == "" {
		secret := make([]byte, 32)
		if _, err := rand.Read(secret); err != nil {
			return nil, err
		}
		cfg.Auth.Secret = hex.EncodeToString(secret)
	}
	if cfg.Auth.Logger == nil {
		cfg.Auth.Logger = cfg.Logger
	}
	configureHuma.Do(setHumaErrors)

	logger := cfg.logger()
	router := chi.NewRouter()
	router.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			bodyBytes, _ := io.ReadAll(r.Body)
			r.Body = io.NopCloser(bytes.NewBuffer(bodyBytes))
			logger.Printf("mock: %s %s (%d bytes)", r.Method, r.URL.RequestURI(), len(bodyBytes))
			next.ServeHTTP(w, r)
		})
	})
	router.Use(newAuthMiddleware(basePath, cfg.Auth))
	hcfg := huma.DefaultConfig("Tuleap mock API", "1.0.0")
	hcfg.OpenAPIPath = basePath + "/openapi"
	hcfg.DocsPath = ""
	api := humachi.New(router, hcfg)
	group := huma.NewGroup(api, basePath)

	h := &handlers{fixture: cfg.Fixture, codec: cfg.Codec, logger: logger}
	registerTokens(group, cfg.Fixture, cfg.Auth)
	h.registerProjects(group)
	h.registerArtifacts(group)
	h.registerAgile(group)
	h.registerUserGroups(group)

	return router, nil
}

func newAPIError(status int, message string) *apiError {
	if message == "" {
		message = http.StatusText(status)
	}
	return &apiError{status: status, Body: apiErrorBody{Code: status, Message: message}}
}

func notFound(format string, args ...any) *apiError {
	return newAPIError(http.StatusNotFound, "Not Found: "+fmt.Sprintf(format, args...))
}

func badRequest(format string, args ...any) *apiError {
	return newAPIError(http.StatusBadRequest, "Bad Request: "+fmt.Sprintf(format, args...))
}

type handlers struct {
	fixture *Fixture
	codec   *codec.Registry
	logger  *log.Logger
}

const (
	defaultLimit = 10
	maxLimit     = 100
)

func normalizeLimit(limit int) int {
	if limit <= 0 {
		return defaultLimit
	}
	if limit > maxLimit {
		return maxLimit
	}
	return limit
}

// PageParams are the query parameters of every paginated collection.
type PageParams struct {
	Limit  int `query:"limit" default:"10" doc:"Page size, at most 100"`
	Offset int `query:"offset" minimum:"0"`
}

// page is one slice of a collection with the pagination headers.
type page[T any] struct {
	Size   string `header:"X-PAGINATION-SIZE"`
	Limit  string `header:"X-PAGINATION-LIMIT"`
	Offset string `header:"X-PAGINATION-OFFSET"`
	Body   []T
}

func paginate[T any](items []T, p PageParams) *page[T] {
	limit := normalizeLimit(p.Limit)
	offset := p.Offset
	if offset > len(items) {
		offset = len(items)
	}
	end := offset + limit
	if end > len(items) {
		end = len(items)
	}
	return &page[T]{
		Size:   strconv.Itoa(len(items)),
		Limit:  strconv.Itoa(limit),
		Offset: strconv.Itoa(offset),
		Body:   append([]T{}, items[offset:end]...),
	}
}

type listBody[T any] struct {
	Body []T
}

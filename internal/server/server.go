package server

import (
	"context"
	"net/http"
	"strings"

	"github.com/danielgtaylor/huma/v2"
	humachi "github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"

	"leadready/internal/engine"
	"leadready/internal/migrate"
)

const (
	apiTitle   = "leadready API"
	apiVersion = "0.1.0"
)

// Config for the HTTP API handler.
type Config struct {
	Engine   engine.Engine
	BasePath string
}

// New returns an HTTP handler exposing the leadready API.
func New(cfg Config) (http.Handler, error) {
	basePath := cfg.BasePath
	if basePath == "" {
		basePath = "/v0"
	}
	if !strings.HasPrefix(basePath, "/") {
		basePath = "/" + basePath
	}
	huma.DefaultArrayNullable = false
	useErrorEnvelope()

	router := chi.NewRouter()
	hcfg := huma.DefaultConfig(apiTitle, apiVersion)
	hcfg.OpenAPIPath = "/openapi"
	hcfg.DocsPath = ""
	api := humachi.New(router, hcfg)
	group := huma.NewGroup(api, basePath)

	registerDocs(router, basePath)
	registerHealth(group, cfg.Engine)
	registerClients(group, cfg.Engine)
	registerUploads(group, cfg.Engine)
	registerContacts(group, cfg.Engine)
	registerChecks(group, cfg.Engine)
	registerEvents(group, cfg.Engine)
	registerOpenAPI(router, api, basePath)

	return router, nil
}

type healthStatus struct {
	Status        string `json:"status" enum:"ok,degraded"`
	SchemaVersion int    `json:"schema_version"`
	Error         string `json:"error,omitempty"`
}

func registerHealth(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "health",
		Method:      http.MethodGet,
		Path:        "/health",
		Summary:     "Health check",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body healthStatus `json:"body"`
	}, error) {
		out := healthStatus{Status: "ok"}
		v, err := migrate.Current(ctx, e.DB)
		if err != nil {
			out.Status, out.Error = "degraded", err.Error()
		}
		out.SchemaVersion = v
		return &struct {
			Body healthStatus `json:"body"`
		}{Body: out}, nil
	})
}

func normalizeLimit(in int) int {
	if in <= 0 {
		return 50
	}
	if in > 500 {
		return 500
	}
	return in
}

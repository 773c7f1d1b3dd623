package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"path"
	"reflect"
	"sync"

	"github.com/danielgtaylor/huma/v2"
	"github.com/go-chi/chi/v5"
)

const docsPage = `<!doctype html>
<html lang="en">
  <head>
    <meta charset="utf-8"/>
    <meta name="viewport" content="width=device-width, initial-scale=1"/>
    <title>%s</title>
    <link rel="stylesheet" href="https://unpkg.com/swagger-ui-dist@5/swagger-ui.css" />
  </head>
  <body>
    <div id="swagger-ui"></div>
    <script src="https://unpkg.com/swagger-ui-dist@5/swagger-ui-bundle.js" crossorigin></script>
    <script>
      window.onload = () => SwaggerUIBundle({ url: '%s', dom_id: '#swagger-ui' });
    </script>
  </body>
</html>`

// registerDocs serves Swagger UI at /docs, reading the document published
// by registerOpenAPI under the base path.
func registerDocs(r chi.Router, basePath string) {
	page := fmt.Sprintf(docsPage, apiTitle, path.Join("/", basePath, "openapi.json"))
	r.Get("/docs", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write([]byte(page))
	})
}

// registerOpenAPI publishes the document once every route is registered,
// with the error envelope as the default response of each operation.
func registerOpenAPI(r chi.Router, api huma.API, basePath string) {
	var (
		once sync.Once
		doc  []byte
	)
	r.Get(path.Join(basePath, "openapi.json"), func(w http.ResponseWriter, _ *http.Request) {
		once.Do(func() {
			oas := api.OpenAPI()
			withErrorDefaults(oas)
			doc, _ = json.Marshal(oas)
		})
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write(doc)
	})
}

func withErrorDefaults(oas *huma.OpenAPI) {
	if oas == nil || oas.Components == nil || oas.Components.Schemas == nil {
		return
	}
	envelope := &huma.Response{
		Description: "Error",
		Content: map[string]*huma.MediaType{
			"application/json": {Schema: oas.Components.Schemas.Schema(reflect.TypeOf(apiError{}), true, "")},
		},
	}
	for _, item := range oas.Paths {
		for _, op := range []*huma.Operation{item.Get, item.Post, item.Put, item.Patch, item.Delete} {
			if op == nil {
				continue
			}
			if op.Responses == nil {
				op.Responses = map[string]*huma.Response{}
			}
			if _, ok := op.Responses["default"]; !ok {
				op.Responses["default"] = envelope
			}
		}
	}
}

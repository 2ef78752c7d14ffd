package web

import (
	"encoding/json"
	"fmt"
	"html/template"
	"log/slog"
	"net/http"
	"sort"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/morezero/action-dispatcher/pkg/dispatcher"
	"github.com/morezero/action-dispatcher/pkg/registry"
	"github.com/morezero/action-dispatcher/pkg/request"
)

const pagesLogPrefix = "web:pages"

// homePageTemplate lists dispatcher statistics and the web-visible actions.
const homePageTemplate = `<!DOCTYPE html>
<html lang="en">
<head>
  <meta charset="UTF-8">
  <meta name="viewport" content="width=device-width, initial-scale=1">
  <title>Action Dispatcher</title>
  <style>
    * { box-sizing: border-box; }
    body { background: #fff; color: #000; font-family: system-ui, sans-serif; margin: 0; padding: 2rem; line-height: 1.5; }
    a { color: #0066cc; }
    h1, h2, h3 { color: #0066cc; }
    table { border-collapse: collapse; width: 100%; max-width: 900px; margin-top: 0.5rem; }
    th, td { text-align: left; padding: 0.5rem 0.75rem; border: 1px solid #ccc; }
    th { background: #f0f4f8; color: #0066cc; }
    .stat { font-weight: bold; color: #0066cc; }
    .meta { color: #333; font-size: 0.9rem; margin-top: 1rem; }
    section { margin-bottom: 2rem; }
  </style>
</head>
<body>
  <h1>Action Dispatcher</h1>
  <p class="meta">Dispatch statistics and callable actions. <a href="/docs">API docs</a></p>

  <section>
    <h2>Statistics</h2>
    <p>Total: <span class="stat">{{.Stats.Total}}</span>, succeeded: <span class="stat">{{.Stats.Succeeded}}</span>, failed: <span class="stat">{{.Stats.Failed}}</span>, in flight: <span class="stat">{{.Stats.InFlight}}</span></p>
  </section>

  <section>
    <h2>Actions</h2>
    {{if not .Actions}}
    <p>No actions registered.</p>
    {{else}}
    <table>
      <thead>
        <tr><th>Path</th><th>Roles</th><th>Protocol</th><th>Auth</th><th>Description</th></tr>
      </thead>
      <tbody>
        {{range .Actions}}
        <tr>
          <td><a href="/actions/{{.Path}}">{{.Path}}</a></td>
          <td>{{.Roles}}</td>
          <td>{{.Protocol}}</td>
          <td>{{.AuthMode}}</td>
          <td>{{.Description}}</td>
        </tr>
        {{end}}
      </tbody>
    </table>
    {{end}}
  </section>
</body>
</html>
`

// actionPageTemplate describes one action and its parameters.
const actionPageTemplate = `<!DOCTYPE html>
<html lang="en">
<head>
  <meta charset="UTF-8">
  <meta name="viewport" content="width=device-width, initial-scale=1">
  <title>{{.Path}} – Action Dispatcher</title>
  <style>
    * { box-sizing: border-box; }
    body { background: #fff; color: #000; font-family: system-ui, sans-serif; margin: 0; padding: 2rem; line-height: 1.5; }
    a { color: #0066cc; }
    h1, h2 { color: #0066cc; }
    table { border-collapse: collapse; width: 100%; max-width: 900px; margin-top: 0.5rem; }
    th, td { text-align: left; padding: 0.5rem 0.75rem; border: 1px solid #ccc; vertical-align: top; }
    th { background: #f0f4f8; color: #0066cc; }
    .meta { color: #333; font-size: 0.9rem; margin-top: 0.5rem; }
    .back { margin-bottom: 1rem; }
  </style>
</head>
<body>
  <p class="back"><a href="/">← Back to actions</a></p>
  <h1>{{.Path}}</h1>
  {{if .Description}}<p class="meta">{{.Description}}</p>{{end}}
  <table>
    <tr><th>Roles</th><td>{{.Roles}}</td></tr>
    <tr><th>Protocol</th><td>{{.Protocol}}</td></tr>
    <tr><th>Auth mode</th><td>{{.AuthMode}}</td></tr>
    {{if .Verb}}<tr><th>Verb</th><td>{{.Verb}}</td></tr>{{end}}
  </table>

  <h2>Parameters</h2>
  {{if not .Params}}
  <p>No parameters.</p>
  {{else}}
  <table>
    <thead><tr><th>Name</th><th>Type</th><th>Required</th><th>Default</th></tr></thead>
    <tbody>
      {{range .Params}}
      <tr><td>{{.Name}}</td><td>{{.Type}}</td><td>{{.Required}}</td><td>{{.Default}}</td></tr>
      {{end}}
    </tbody>
  </table>
  {{end}}
</body>
</html>
`

// swaggerUIPage embeds Swagger UI from CDN and loads /openapi.json.
const swaggerUIPage = `<!DOCTYPE html>
<html lang="en">
<head>
  <meta charset="UTF-8">
  <meta name="viewport" content="width=device-width, initial-scale=1">
  <title>API – Action Dispatcher</title>
  <link rel="stylesheet" href="https://unpkg.com/swagger-ui-dist@5/swagger-ui.css">
</head>
<body>
  <div id="swagger-ui"></div>
  <script src="https://unpkg.com/swagger-ui-dist@5/swagger-ui-bundle.js"></script>
  <script>
    window.onload = function() {
      SwaggerUIBundle({
        url: "/openapi.json",
        dom_id: "#swagger-ui",
        presets: [
          SwaggerUIBundle.presets.apis,
          SwaggerUIBundle.SwaggerUIStandalonePreset
        ]
      });
    };
  </script>
</body>
</html>
`

var (
	homeTmpl    = template.Must(template.New("home").Parse(homePageTemplate))
	actionTmpl  = template.Must(template.New("action").Parse(actionPageTemplate))
	swaggerTmpl = template.Must(template.New("swagger").Parse(swaggerUIPage))
)

type homeData struct {
	Stats   dispatcher.Stats
	Actions []registry.ActionInfo
}

type pages struct {
	dispatcher *dispatcher.Dispatcher
	lister     Lister
	title      string
	version    string
}

func (p *pages) mount(r chi.Router) {
	r.Get("/", p.home)
	r.Get("/actions/{path}", p.action)
	r.Get("/openapi.json", p.openAPI)
	r.Get("/docs", p.docs)
}

func (p *pages) visible() []registry.ActionInfo {
	return p.lister.ListVisible(request.SourceWeb.String())
}

func (p *pages) home(w http.ResponseWriter, _ *http.Request) {
	renderHTML(w, homeTmpl, homeData{Stats: p.dispatcher.Stats(), Actions: p.visible()})
}

func (p *pages) action(w http.ResponseWriter, r *http.Request) {
	path := chi.URLParam(r, "path")
	for _, info := range p.visible() {
		if strings.EqualFold(info.Path, path) {
			renderHTML(w, actionTmpl, info)
			return
		}
	}
	http.NotFound(w, r)
}

func (p *pages) openAPI(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Cache-Control", "public, max-age=60")
	writeJSON(w, http.StatusOK, buildOpenAPISpec(p.title, p.version, p.visible()))
}

func (p *pages) docs(w http.ResponseWriter, _ *http.Request) {
	renderHTML(w, swaggerTmpl, nil)
}

func renderHTML(w http.ResponseWriter, tmpl *template.Template, data any) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := tmpl.Execute(w, data); err != nil {
		slog.Error(fmt.Sprintf("%s - %s template execute: %v", pagesLogPrefix, tmpl.Name(), err))
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}

// openAPI3 types for generating a spec from the action listing.
type openAPI3Spec struct {
	OpenAPI string                      `json:"openapi"`
	Info    openAPI3Info                `json:"info"`
	Paths   map[string]openAPI3PathItem `json:"paths"`
}

type openAPI3Info struct {
	Title   string `json:"title"`
	Version string `json:"version"`
}

type openAPI3PathItem map[string]*openAPI3Operation

type openAPI3Operation struct {
	Summary     string                      `json:"summary"`
	Description string                      `json:"description,omitempty"`
	OperationID string                      `json:"operationId"`
	Parameters  []openAPI3Parameter         `json:"parameters,omitempty"`
	RequestBody *openAPI3RequestBody        `json:"requestBody,omitempty"`
	Responses   map[string]openAPI3Response `json:"responses"`
}

type openAPI3Parameter struct {
	Name     string         `json:"name"`
	In       string         `json:"in"`
	Required bool           `json:"required"`
	Schema   map[string]any `json:"schema"`
}

type openAPI3RequestBody struct {
	Content map[string]openAPI3MediaType `json:"content"`
}

type openAPI3Response struct {
	Description string                       `json:"description"`
	Content     map[string]openAPI3MediaType `json:"content,omitempty"`
}

type openAPI3MediaType struct {
	Schema map[string]any `json:"schema,omitempty"`
}

var resultSchema = map[string]any{
	"type": "object",
	"properties": map[string]any{
		"success": map[string]any{"type": "boolean"},
		"code":    map[string]any{"type": "integer"},
		"message": map[string]any{"type": "string"},
		"value":   map[string]any{},
		"tag":     map[string]any{"type": "string"},
	},
}

// schemaFor maps a parameter type name onto a JSON schema.
func schemaFor(typeName string) map[string]any {
	switch {
	case typeName == "bool":
		return map[string]any{"type": "boolean"}
	case typeName == "short" || typeName == "int" || typeName == "long":
		return map[string]any{"type": "integer"}
	case typeName == "float" || typeName == "double":
		return map[string]any{"type": "number"}
	case typeName == "date":
		return map[string]any{"type": "string", "format": "date-time"}
	case typeName == "uuid":
		return map[string]any{"type": "string", "format": "uuid"}
	case strings.HasPrefix(typeName, "list"):
		return map[string]any{"type": "array"}
	case strings.HasPrefix(typeName, "map") || strings.HasPrefix(typeName, "object"):
		return map[string]any{"type": "object"}
	}
	return map[string]any{"type": "string"}
}

// buildOpenAPISpec builds an OpenAPI 3.0 document with one path per action.
// Actions with a verb are documented under that method; others under POST.
func buildOpenAPISpec(title, version string, actions []registry.ActionInfo) *openAPI3Spec {
	if title == "" {
		title = "action-dispatcher"
	}
	if version == "" {
		version = "1.0.0"
	}
	paths := make(map[string]openAPI3PathItem, len(actions))
	for _, a := range actions {
		method := strings.ToLower(a.Verb)
		if method == "" {
			method = "post"
		}
		op := &openAPI3Operation{
			Summary:     a.Path,
			Description: a.Description,
			OperationID: a.Path,
			Responses: map[string]openAPI3Response{
				"200": {Description: "Success", Content: map[string]openAPI3MediaType{"application/json": {Schema: resultSchema}}},
				"400": {Description: "Bad request"},
				"401": {Description: "Unauthorized"},
				"404": {Description: "Not found"},
			},
		}
		if method == "get" || method == "delete" {
			for _, p := range a.Params {
				op.Parameters = append(op.Parameters, openAPI3Parameter{
					Name: p.Name, In: "query", Required: p.Required, Schema: schemaFor(p.Type),
				})
			}
		} else if len(a.Params) > 0 {
			props := make(map[string]any, len(a.Params))
			var required []string
			for _, p := range a.Params {
				props[p.Name] = schemaFor(p.Type)
				if p.Required {
					required = append(required, p.Name)
				}
			}
			sort.Strings(required)
			body := map[string]any{"type": "object", "properties": props}
			if len(required) > 0 {
				body["required"] = required
			}
			op.RequestBody = &openAPI3RequestBody{Content: map[string]openAPI3MediaType{"application/json": {Schema: body}}}
		}
		paths["/api/"+strings.ReplaceAll(a.Path, ".", "/")] = openAPI3PathItem{method: op}
	}
	return &openAPI3Spec{
		OpenAPI: "3.0.0",
		Info:    openAPI3Info{Title: title, Version: version},
		Paths:   paths,
	}
}

// MarshalOpenAPI renders the OpenAPI document for actions.
func MarshalOpenAPI(title, version string, actions []registry.ActionInfo) ([]byte, error) {
	return json.MarshalIndent(buildOpenAPISpec(title, version, actions), "", "  ")
}

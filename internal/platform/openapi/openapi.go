// Package openapi assembles an OpenAPI 3.0 document from operations that
// domain packages describe, and serves it together with a Swagger UI page.
package openapi

import (
	"net/http"
	"sort"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"
)

const (
	Version  = "3.0.3"
	SpecPath = "/openapi.json"
	DocsPath = "/docs"
)

// Param describes a query or path parameter.
type Param struct {
	Name        string
	In          string
	Description string
	Required    bool
	Type        string
	Format      string
	Enum        []string
	Default     interface{}
	Minimum     *int
	Maximum     *int
	// Repeated marks a query parameter that may appear more than once.
	Repeated bool
}

// Response describes one status code of an operation. Schema is a component
// name, ContentType defaults to application/json.
type Response struct {
	Description string
	ContentType string
	Schema      string
	Binary      bool
	Headers     map[string]string
}

// Operation is a single method on a path.
type Operation struct {
	ID          string
	Summary     string
	Description string
	Tag         string
	Params      []Param
	Responses   map[int]Response
}

type route struct {
	method string
	path   string
	op     Operation
}

// Generator collects operations and component schemas.
type Generator struct {
	title   string
	version string
	baseURL string
	routes  []route
	schemas map[string]map[string]interface{}
}

func NewGenerator(title, version, baseURL string) *Generator {
	g := &Generator{
		title:   title,
		version: version,
		baseURL: baseURL,
		schemas: make(map[string]map[string]interface{}),
	}
	g.AddSchema("Error", ObjectSchema(map[string]interface{}{
		"message": StringSchema(""),
	}, "message"))
	return g
}

// AddOperation registers op under an echo-style path; ":name" segments are
// rewritten to "{name}".
func (g *Generator) AddOperation(method, path string, op Operation) {
	g.routes = append(g.routes, route{method: strings.ToLower(method), path: toOpenAPIPath(path), op: op})
}

// AddSchema registers a component schema. Later registrations replace
// earlier ones.
func (g *Generator) AddSchema(name string, schema map[string]interface{}) {
	g.schemas[name] = schema
}

// GenerateSpec produces the OpenAPI document as a map.
func (g *Generator) GenerateSpec() map[string]interface{} {
	paths := make(map[string]interface{})
	for _, r := range g.routes {
		item, ok := paths[r.path].(map[string]interface{})
		if !ok {
			item = make(map[string]interface{})
			paths[r.path] = item
		}
		item[r.method] = buildOperation(r.op)
	}

	schemas := make(map[string]interface{}, len(g.schemas))
	for name, s := range g.schemas {
		schemas[name] = s
	}

	return map[string]interface{}{
		"openapi": Version,
		"info": map[string]interface{}{
			"title":   g.title,
			"version": g.version,
		},
		"servers": []map[string]string{
			{"url": g.baseURL},
		},
		"paths":      paths,
		"tags":       g.tags(),
		"components": map[string]interface{}{"schemas": schemas},
	}
}

func (g *Generator) tags() []map[string]string {
	seen := map[string]bool{}
	var names []string
	for _, r := range g.routes {
		if r.op.Tag != "" && !seen[r.op.Tag] {
			seen[r.op.Tag] = true
			names = append(names, r.op.Tag)
		}
	}
	sort.Strings(names)
	out := make([]map[string]string, 0, len(names))
	for _, n := range names {
		out = append(out, map[string]string{"name": n})
	}
	return out
}

func buildOperation(op Operation) map[string]interface{} {
	out := map[string]interface{}{
		"operationId": op.ID,
		"summary":     op.Summary,
	}
	if op.Description != "" {
		out["description"] = op.Description
	}
	if op.Tag != "" {
		out["tags"] = []string{op.Tag}
	}
	if len(op.Params) > 0 {
		params := make([]map[string]interface{}, 0, len(op.Params))
		for _, p := range op.Params {
			params = append(params, buildParam(p))
		}
		out["parameters"] = params
	}

	responses := make(map[string]interface{}, len(op.Responses))
	for code, r := range op.Responses {
		responses[statusKey(code)] = buildResponse(r)
	}
	out["responses"] = responses
	return out
}

func buildParam(p Param) map[string]interface{} {
	in := p.In
	if in == "" {
		in = "query"
	}
	schema := map[string]interface{}{"type": p.Type}
	if p.Type == "" {
		schema["type"] = "string"
	}
	if p.Format != "" {
		schema["format"] = p.Format
	}
	if len(p.Enum) > 0 {
		schema["enum"] = p.Enum
	}
	if p.Default != nil {
		schema["default"] = p.Default
	}
	if p.Minimum != nil {
		schema["minimum"] = *p.Minimum
	}
	if p.Maximum != nil {
		schema["maximum"] = *p.Maximum
	}

	out := map[string]interface{}{
		"name":     p.Name,
		"in":       in,
		"required": p.Required || in == "path",
	}
	if p.Description != "" {
		out["description"] = p.Description
	}
	if p.Repeated {
		out["schema"] = map[string]interface{}{"type": "array", "items": schema}
		out["style"] = "form"
		out["explode"] = true
	} else {
		out["schema"] = schema
	}
	return out
}

func buildResponse(r Response) map[string]interface{} {
	out := map[string]interface{}{"description": r.Description}

	ct := r.ContentType
	if ct == "" {
		ct = echo.MIMEApplicationJSON
	}
	switch {
	case r.Binary:
		out["content"] = map[string]interface{}{
			ct: map[string]interface{}{"schema": map[string]string{"type": "string", "format": "binary"}},
		}
	case r.Schema != "":
		out["content"] = map[string]interface{}{
			ct: map[string]interface{}{"schema": Ref(r.Schema)},
		}
	}

	if len(r.Headers) > 0 {
		headers := make(map[string]interface{}, len(r.Headers))
		for name, desc := range r.Headers {
			headers[name] = map[string]interface{}{
				"description": desc,
				"schema":      map[string]string{"type": "string"},
			}
		}
		out["headers"] = headers
	}
	return out
}

func statusKey(code int) string {
	if code <= 0 {
		return "default"
	}
	return strconv.Itoa(code)
}

func toOpenAPIPath(path string) string {
	parts := strings.Split(path, "/")
	for i, p := range parts {
		if strings.HasPrefix(p, ":") {
			parts[i] = "{" + p[1:] + "}"
		}
	}
	return strings.Join(parts, "/")
}

// ── Schema helpers ──────────────────────────────────────────────────────

func Ref(name string) map[string]interface{} {
	return map[string]interface{}{"$ref": "#/components/schemas/" + name}
}

func StringSchema(format string) map[string]interface{} {
	s := map[string]interface{}{"type": "string"}
	if format != "" {
		s["format"] = format
	}
	return s
}

func IntegerSchema(format string) map[string]interface{} {
	s := map[string]interface{}{"type": "integer"}
	if format != "" {
		s["format"] = format
	}
	return s
}

func NumberSchema() map[string]interface{} {
	return map[string]interface{}{"type": "number"}
}

// Nullable marks a schema as accepting null.
func Nullable(s map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(s)+1)
	for k, v := range s {
		out[k] = v
	}
	out["nullable"] = true
	return out
}

func ArraySchema(items map[string]interface{}) map[string]interface{} {
	return map[string]interface{}{"type": "array", "items": items}
}

func ObjectSchema(props map[string]interface{}, required ...string) map[string]interface{} {
	s := map[string]interface{}{"type": "object", "properties": props}
	if len(required) > 0 {
		s["required"] = required
	}
	return s
}

// AllOf composes a base component with extra properties.
func AllOf(base string, extra map[string]interface{}) map[string]interface{} {
	return map[string]interface{}{
		"allOf": []interface{}{Ref(base), ObjectSchema(extra)},
	}
}

// ── Swagger UI ──────────────────────────────────────────────────────────

const swaggerUIHTML = `<!DOCTYPE html>
<html lang="en">
<head>
  <meta charset="UTF-8">
  <title>{{TITLE}} - Swagger UI</title>
  <link rel="stylesheet" type="text/css" href="https://unpkg.com/swagger-ui-dist@5/swagger-ui.css" >
  <style>
    body { margin: 0; background: #fafafa; }
  </style>
</head>
<body>
  <div id="swagger-ui"></div>
  <script src="https://unpkg.com/swagger-ui-dist@5/swagger-ui-bundle.js"></script>
  <script>
    SwaggerUIBundle({
      url: "{{SPEC}}",
      dom_id: '#swagger-ui',
      deepLinking: true
    })
  </script>
</body>
</html>`

// RegisterRoutes serves the document and the UI under g.
func (g *Generator) RegisterRoutes(grp *echo.Group, prefix string) {
	page := strings.NewReplacer("{{TITLE}}", g.title, "{{SPEC}}", prefix+SpecPath).Replace(swaggerUIHTML)
	grp.GET(SpecPath, func(c echo.Context) error {
		return c.JSON(http.StatusOK, g.GenerateSpec())
	})
	grp.GET(DocsPath, func(c echo.Context) error {
		return c.HTML(http.StatusOK, page)
	})
}

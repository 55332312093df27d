// Package openapi builds an OpenAPI 3.0 document from the operations each
// handler declares.
package openapi

import (
	"net/http"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"
)

// Param is a path or query parameter.
type Param struct {
	Name        string
	In          string // "path" or "query"
	Type        string // "string" or "integer"
	Required    bool
	Description string
}

// Operation describes one route. Response names a component schema; an empty
// Response documents a body-less reply.
type Operation struct {
	Method      string
	Path        string // echo form, e.g. /records/:name
	Summary     string
	Tag         string
	Params      []Param
	RequestBody string
	Status      int
	Response    string
	Role        string
}

// Key identifies an operation as "METHOD path".
func (o Operation) Key() string { return o.Method + " " + o.Path }

// Generator collects operations and component schemas.
type Generator struct {
	title   string
	version string
	baseURL string
	ops     []Operation
	schemas map[string]interface{}
}

// NewGenerator creates a generator for an API mounted at baseURL.
func NewGenerator(title, version, baseURL string) *Generator {
	return &Generator{
		title:   title,
		version: version,
		baseURL: baseURL,
		schemas: map[string]interface{}{"Error": errorSchema()},
	}
}

// Add documents operations.
func (g *Generator) Add(ops ...Operation) {
	g.ops = append(g.ops, ops...)
}

// AddSchemas registers component schemas by name.
func (g *Generator) AddSchemas(schemas map[string]interface{}) {
	for name, s := range schemas {
		g.schemas[name] = s
	}
}

// Operations returns every documented operation.
func (g *Generator) Operations() []Operation {
	return append([]Operation(nil), g.ops...)
}

var echoParam = regexp.MustCompile(`:([A-Za-z_][A-Za-z0-9_]*)`)

// PathTemplate converts an echo route path to OpenAPI form.
func PathTemplate(p string) string {
	return echoParam.ReplaceAllString(p, "{$1}")
}

// GenerateSpec produces the OpenAPI document as a map.
func (g *Generator) GenerateSpec() map[string]interface{} {
	paths := make(map[string]interface{})
	tags := make(map[string]bool)

	for _, op := range g.ops {
		tmpl := PathTemplate(op.Path)
		item, ok := paths[tmpl].(map[string]interface{})
		if !ok {
			item = make(map[string]interface{})
			paths[tmpl] = item
		}
		item[strings.ToLower(op.Method)] = g.buildOperation(op)
		if op.Tag != "" {
			tags[op.Tag] = true
		}
	}

	tagNames := make([]string, 0, len(tags))
	for t := range tags {
		tagNames = append(tagNames, t)
	}
	sort.Strings(tagNames)
	tagList := make([]map[string]string, 0, len(tagNames))
	for _, t := range tagNames {
		tagList = append(tagList, map[string]string{"name": t})
	}

	return map[string]interface{}{
		"openapi": "3.0.3",
		"info": map[string]interface{}{
			"title":   g.title,
			"version": g.version,
		},
		"servers": []map[string]string{
			{"url": g.baseURL},
		},
		"tags":  tagList,
		"paths": paths,
		"components": map[string]interface{}{
			"schemas": g.schemas,
			"securitySchemes": map[string]interface{}{
				"bearerAuth": map[string]interface{}{
					"type":         "http",
					"scheme":       "bearer",
					"bearerFormat": "JWT",
				},
			},
		},
	}
}

func (g *Generator) buildOperation(op Operation) map[string]interface{} {
	out := map[string]interface{}{
		"summary":     op.Summary,
		"operationId": operationID(op),
	}
	if op.Tag != "" {
		out["tags"] = []string{op.Tag}
	}
	if len(op.Params) > 0 {
		params := make([]map[string]interface{}, 0, len(op.Params))
		for _, p := range op.Params {
			params = append(params, buildParameter(p))
		}
		out["parameters"] = params
	}
	if op.RequestBody != "" {
		out["requestBody"] = map[string]interface{}{
			"required": true,
			"content": map[string]interface{}{
				echo.MIMEApplicationJSON: map[string]interface{}{
					"schema": schemaRef(op.RequestBody),
				},
			},
		}
	}
	if op.Role != "" {
		out["security"] = []map[string][]string{{"bearerAuth": {}}}
		out["x-required-role"] = op.Role
	}

	status := op.Status
	if status == 0 {
		status = http.StatusOK
	}
	responses := map[string]interface{}{
		strconv.Itoa(status): buildResponse(http.StatusText(status), op.Response),
	}
	if op.Role != "" {
		responses["401"] = buildResponse("Unauthorized", "Error")
		responses["403"] = buildResponse("Forbidden", "Error")
	}
	out["responses"] = responses
	return out
}

func buildParameter(p Param) map[string]interface{} {
	typ := p.Type
	if typ == "" {
		typ = "string"
	}
	out := map[string]interface{}{
		"name":   p.Name,
		"in":     p.In,
		"schema": map[string]string{"type": typ},
	}
	if p.Required || p.In == "path" {
		out["required"] = true
	}
	if p.Description != "" {
		out["description"] = p.Description
	}
	return out
}

func buildResponse(description, schema string) map[string]interface{} {
	out := map[string]interface{}{"description": description}
	if schema != "" {
		out["content"] = map[string]interface{}{
			echo.MIMEApplicationJSON: map[string]interface{}{
				"schema": schemaRef(schema),
			},
		}
	}
	return out
}

func schemaRef(name string) map[string]interface{} {
	if strings.HasPrefix(name, "[]") {
		return map[string]interface{}{
			"type":  "array",
			"items": schemaRef(strings.TrimPrefix(name, "[]")),
		}
	}
	return map[string]interface{}{"$ref": "#/components/schemas/" + name}
}

// operationID derives a stable identifier such as getRecordsNameChart.
func operationID(op Operation) string {
	var b strings.Builder
	b.WriteString(strings.ToLower(op.Method))
	for _, seg := range strings.Split(op.Path, "/") {
		seg = strings.TrimPrefix(seg, ":")
		seg = strings.NewReplacer(".", "", "-", "", "_", "").Replace(seg)
		if seg == "" {
			continue
		}
		b.WriteString(strings.ToUpper(seg[:1]) + seg[1:])
	}
	return b.String()
}

func errorSchema() map[string]interface{} {
	return Object(map[string]interface{}{
		"message": String(),
	}, "message")
}

// -- Schema helpers --

// Object returns an object schema with the given properties.
func Object(props map[string]interface{}, required ...string) map[string]interface{} {
	out := map[string]interface{}{
		"type":       "object",
		"properties": props,
	}
	if len(required) > 0 {
		out["required"] = required
	}
	return out
}

func String() map[string]interface{} { return map[string]interface{}{"type": "string"} }

func Integer() map[string]interface{} { return map[string]interface{}{"type": "integer"} }

func Number() map[string]interface{} { return map[string]interface{}{"type": "number"} }

func Boolean() map[string]interface{} { return map[string]interface{}{"type": "boolean"} }

// Format returns a string schema with a format such as date-time or uuid.
func Format(f string) map[string]interface{} {
	return map[string]interface{}{"type": "string", "format": f}
}

// Enum returns a string schema restricted to values.
func Enum(values ...string) map[string]interface{} {
	return map[string]interface{}{"type": "string", "enum": values}
}

// ArrayOf returns an array schema of the named component.
func ArrayOf(name string) map[string]interface{} {
	return schemaRef("[]" + name)
}

// Ref references a named component.
func Ref(name string) map[string]interface{} {
	return schemaRef(name)
}

// RegisterRoutes registers the document endpoint.
func (g *Generator) RegisterRoutes(api *echo.Group) {
	api.GET("/openapi.json", func(c echo.Context) error {
		return c.JSON(http.StatusOK, g.GenerateSpec())
	})
}

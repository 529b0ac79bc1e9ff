// validate.go implements the method allow-list and the declarative schema
// stage of the pipeline. Schema failures report every offending field at
// once so clients fix a payload in one round trip.
package middleware

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/kpiflow/kpiflow/internal/apierr"
	"github.com/kpiflow/kpiflow/internal/validation"
)

// ContextBody is the context key holding the parsed request body.
const ContextBody = "parsed_body"

// maxBodyBytes caps accepted JSON payloads (1 MiB).
const maxBodyBytes = 1 << 20

// FieldType names the accepted JSON type for a schema field.
type FieldType string

const (
	FieldString FieldType = "string"
	FieldNumber FieldType = "number"
	FieldBool   FieldType = "bool"
	FieldEmail  FieldType = "email"
	FieldUUID   FieldType = "uuid"
)

// Field is one declarative constraint in a Schema.
type Field struct {
	Required  bool
	Type      FieldType
	MaxLength int
	OneOf     []string
}

// Schema declares the accepted shape of a request.
type Schema struct {
	Body   map[string]Field
	Query  map[string]Field
	Params map[string]Field
}

// MethodMiddleware rejects requests whose method is not in the allow-list.
func MethodMiddleware(allowed ...string) gin.HandlerFunc {
	allowedSet := make(map[string]bool, len(allowed))
	for _, m := range allowed {
		allowedSet[strings.ToUpper(m)] = true
	}

	return func(c *gin.Context) {
		if !allowedSet[c.Request.Method] {
			c.Header("Allow", strings.Join(allowed, ", "))
			abort(c, apierr.Newf(apierr.KindMethodNotAllowed,
				"Method %s is not allowed for this endpoint.", c.Request.Method))
			return
		}
		c.Next()
	}
}

// MethodNotAllowedHandler is installed as the router's NoMethod handler so
// requests hitting a known path with the wrong verb get the uniform shape.
func MethodNotAllowedHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		abort(c, apierr.Newf(apierr.KindMethodNotAllowed,
			"Method %s is not allowed for this endpoint.", c.Request.Method))
	}
}

// SchemaMiddleware validates path params, query params, and the JSON body
// against the schema. The parsed body is left in the context so handlers do
// not re-read the request.
func SchemaMiddleware(schema *Schema) gin.HandlerFunc {
	return func(c *gin.Context) {
		if schema == nil {
			c.Next()
			return
		}

		problems := make([]string, 0)

		for name, field := range schema.Params {
			problems = append(problems, checkValue(name, c.Param(name), field)...)
		}
		for name, field := range schema.Query {
			problems = append(problems, checkValue(name, c.Query(name), field)...)
		}

		if len(schema.Body) > 0 {
			body, errs := parseBody(c)
			if errs != nil {
				problems = append(problems, errs...)
			} else {
				for name, field := range schema.Body {
					problems = append(problems, checkBodyField(name, body, field)...)
				}
				c.Set(ContextBody, body)
			}
		}

		if len(problems) > 0 {
			abort(c, apierr.New(apierr.KindValidationError, "Request validation failed.").
				WithDetails(map[string]interface{}{"fields": problems}))
			return
		}

		c.Next()
	}
}

func parseBody(c *gin.Context) (map[string]interface{}, []string) {
	if c.Request.Body == nil {
		return nil, []string{"request body is required"}
	}

	data, err := io.ReadAll(io.LimitReader(c.Request.Body, maxBodyBytes+1))
	if err != nil {
		return nil, []string{"failed to read request body"}
	}
	if len(data) > maxBodyBytes {
		return nil, []string{"request body exceeds 1MB"}
	}
	// Restore the body for handlers that bind it themselves.
	c.Request.Body = io.NopCloser(bytes.NewReader(data))

	if len(bytes.TrimSpace(data)) == 0 {
		return nil, []string{"request body is required"}
	}

	var body map[string]interface{}
	if err := json.Unmarshal(data, &body); err != nil {
		return nil, []string{"request body must be a JSON object"}
	}
	return body, nil
}

func checkBodyField(name string, body map[string]interface{}, field Field) []string {
	raw, present := body[name]
	if !present || raw == nil {
		if field.Required {
			return []string{fmt.Sprintf("%s is required", name)}
		}
		return nil
	}

	switch field.Type {
	case FieldNumber:
		if _, ok := raw.(float64); !ok {
			return []string{fmt.Sprintf("%s must be a number", name)}
		}
		return nil
	case FieldBool:
		if _, ok := raw.(bool); !ok {
			return []string{fmt.Sprintf("%s must be a boolean", name)}
		}
		return nil
	default:
		s, ok := raw.(string)
		if !ok {
			return []string{fmt.Sprintf("%s must be a string", name)}
		}
		return checkValue(name, s, field)
	}
}

// checkValue validates a string value from any source.
func checkValue(name, value string, field Field) []string {
	if value == "" {
		if field.Required {
			return []string{fmt.Sprintf("%s is required", name)}
		}
		return nil
	}

	var problems []string
	switch field.Type {
	case FieldEmail:
		if err := validation.ValidateEmail(value); err != nil {
			problems = append(problems, fmt.Sprintf("%s must be a valid email address", name))
		}
	case FieldUUID:
		if err := validation.ValidateID(value); err != nil {
			problems = append(problems, fmt.Sprintf("%s must be a valid id", name))
		}
	}

	if field.MaxLength > 0 && len(value) > field.MaxLength {
		problems = append(problems, fmt.Sprintf("%s exceeds %d characters", name, field.MaxLength))
	}
	if len(field.OneOf) > 0 {
		found := false
		for _, allowed := range field.OneOf {
			if value == allowed {
				found = true
				break
			}
		}
		if !found {
			problems = append(problems, fmt.Sprintf("%s must be one of: %s", name, strings.Join(field.OneOf, ", ")))
		}
	}
	return problems
}

// Body returns the parsed request body stored by SchemaMiddleware.
func Body(c *gin.Context) map[string]interface{} {
	if v, exists := c.Get(ContextBody); exists {
		if body, ok := v.(map[string]interface{}); ok {
			return body
		}
	}
	return nil
}

// BodyString returns a string field from the parsed body.
func BodyString(c *gin.Context, name string) string {
	if body := Body(c); body != nil {
		if s, ok := body[name].(string); ok {
			return s
		}
	}
	return ""
}

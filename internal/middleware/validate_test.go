package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
)

func performSchema(schema *Schema, method, path, body string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	router := gin.New()

	handler := func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"ok": true}) }
	router.Handle(method, "/ws/:workspaceID/things", SchemaMiddleware(schema), handler)

	var reader *strings.Reader
	if body == "" {
		reader = strings.NewReader("")
	} else {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	router.ServeHTTP(w, req)
	return w
}

func TestMethodMiddleware(t *testing.T) {
	w := httptest.NewRecorder()
	router := gin.New()
	router.Any("/things", MethodMiddleware("GET", "POST"), func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"ok": true})
	})

	req := httptest.NewRequest("DELETE", "/things", nil)
	router.ServeHTTP(w, req)
	if w.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", w.Code)
	}
	body := decodeError(t, w)
	if body["error"] != "METHOD_NOT_ALLOWED" {
		t.Errorf("expected METHOD_NOT_ALLOWED, got %v", body["error"])
	}
	if !strings.Contains(w.Header().Get("Allow"), "GET") {
		t.Errorf("expected Allow header, got %q", w.Header().Get("Allow"))
	}

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest("GET", "/things", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
}

func TestSchemaMiddleware_ReportsAllProblemsAtOnce(t *testing.T) {
	schema := &Schema{
		Params: map[string]Field{"workspaceID": {Required: true, Type: FieldUUID}},
		Body: map[string]Field{
			"email": {Required: true, Type: FieldEmail},
			"role":  {Required: true, OneOf: []string{"ADMIN", "MEMBER"}},
		},
	}

	w := performSchema(schema, "POST", "/ws/not-a-uuid/things", `{"email":"nope","role":"SUPERUSER"}`)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
	body := decodeError(t, w)
	if body["error"] != "VALIDATION_ERROR" {
		t.Errorf("expected VALIDATION_ERROR, got %v", body["error"])
	}
	details, _ := body["details"].(map[string]interface{})
	fields, _ := details["fields"].([]interface{})
	if len(fields) != 3 {
		t.Errorf("expected 3 field problems, got %v", fields)
	}
}

func TestSchemaMiddleware_MissingBody(t *testing.T) {
	schema := &Schema{Body: map[string]Field{"name": {Required: true}}}

	w := performSchema(schema, "POST", "/ws/x/things", "")
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
}

func TestSchemaMiddleware_TypeChecks(t *testing.T) {
	schema := &Schema{Body: map[string]Field{
		"target": {Required: true, Type: FieldNumber},
		"active": {Type: FieldBool},
	}}

	w := performSchema(schema, "POST", "/ws/x/things", `{"target":"high","active":"yes"}`)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}

	w = performSchema(schema, "POST", "/ws/x/things", `{"target":42,"active":true}`)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
}

func TestSchemaMiddleware_ValidBodyAvailableToHandler(t *testing.T) {
	schema := &Schema{Body: map[string]Field{"name": {Required: true, MaxLength: 120}}}

	w := httptest.NewRecorder()
	router := gin.New()
	router.POST("/things", SchemaMiddleware(schema), func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"name": BodyString(c, "name")})
	})

	req := httptest.NewRequest("POST", "/things", strings.NewReader(`{"name":"Quarterly Revenue"}`))
	router.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "Quarterly Revenue") {
		t.Errorf("expected parsed body in handler, got %s", w.Body.String())
	}
}

package router

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func serve(engine *gin.Engine, method, path string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(method, path, nil)
	engine.ServeHTTP(w, req)
	return w
}

func TestNewRouter(t *testing.T) {
	r := NewRouter(gin.New())

	assert.NotNil(t, r)
	assert.Equal(t, "/", r.basePath)
	assert.Empty(t, r.registrars)
}

func TestRouterSetup(t *testing.T) {
	engine := gin.New()
	r := NewRouter(engine)

	group := NewDomainGroup("webhooks", "/webhooks")
	group.POST("/vendors/:vendorId", func(c *gin.Context) {
		c.String(http.StatusAccepted, c.Param("vendorId"))
	})
	r.Register(group).Setup()

	w := serve(engine, http.MethodPost, "/webhooks/vendors/acme")
	assert.Equal(t, http.StatusAccepted, w.Code)
	assert.Equal(t, "acme", w.Body.String())

	w = serve(engine, http.MethodGet, "/webhooks/vendors/acme")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestRouterWithBasePath(t *testing.T) {
	engine := gin.New()
	r := NewRouter(engine, WithBasePath("/ingress"))

	group := NewDomainGroup("health", "/health")
	group.GET("", func(c *gin.Context) { c.String(http.StatusOK, "ok") })
	r.Register(group).Setup()

	assert.Equal(t, http.StatusOK, serve(engine, http.MethodGet, "/ingress/health").Code)
	assert.Equal(t, http.StatusNotFound, serve(engine, http.MethodGet, "/health").Code)
}

func TestDomainGroup_MiddlewareAndSubgroups(t *testing.T) {
	engine := gin.New()
	var order []string

	parent := NewDomainGroup("parent", "/p").Use(func(c *gin.Context) {
		order = append(order, "parent")
		c.Next()
	})
	child := parent.Group("child", "/c")
	child.GET("/x", func(c *gin.Context) {
		order = append(order, "handler")
		c.Status(http.StatusNoContent)
	})

	NewRouter(engine).Register(parent).Setup()

	w := serve(engine, http.MethodGet, "/p/c/x")
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, []string{"parent", "handler"}, order)
	assert.Equal(t, "parent", parent.Name())
	assert.Equal(t, "/c", child.Prefix())
}

package api

import (
	"net/http/httptest"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/typedefdb/tddb/internal/registry"
	"github.com/typedefdb/tddb/internal/storage/memory"
)

type fakeAdmin map[string]bool

func (f fakeAdmin) IsAdmin(userID string) bool { return f[userID] }

func init() {
	gin.SetMode(gin.TestMode)
}

// newTestRouter builds a bare Gin engine wired to a Core over a fresh
// in-memory Store, with a stub identity middleware in place of
// middleware.AuthMiddleware (which needs a real user repository/DB).
// Requests carry the caller id in the X-Test-User header.
func newTestRouter(admin fakeAdmin) (*gin.Engine, *memory.Store, *registry.Core) {
	store := memory.New()
	core := registry.New(store, nil, registry.NewLockManager(time.Second), admin, nil)

	r := gin.New()
	r.Use(func(c *gin.Context) {
		if uid := c.GetHeader("X-Test-User"); uid != "" {
			c.Set("user_id", uid)
		}
		c.Next()
	})

	r.POST("/v1/modules/:module/save", saveModuleHandler(core))
	r.POST("/v1/modules/:module/release", releaseModuleHandler(core))
	r.POST("/v1/modules/:module/support/stop", stopModuleSupportHandler(core))
	r.POST("/v1/modules/:module/support/resume", resumeModuleSupportHandler(core))
	r.DELETE("/v1/modules/:module", removeModuleHandler(core))
	r.GET("/v1/modules", listModulesHandler(core))
	r.GET("/v1/modules/:module", getModuleInfoHandler(core))
	r.GET("/v1/modules/:module/types/:type/resolve", resolveTypeDefHandler(core))
	r.GET("/v1/modules/:module/types/:type/versions/:version/schema", getJSONSchemaHandler(core))
	r.GET("/v1/modules/:module/types/:type/versions/:version/ast", getTypeParsingDocHandler(core))
	r.GET("/v1/modules/:module/funcs/:func/versions/:version/ast", getFuncParsingDocHandler(core))
	r.GET("/v1/modules/:module/types/:type/md5/:md5/module-versions", findModuleVersionsByMD5Handler(core))
	r.GET("/v1/modules/:module/types/:type/versions/:version/module-versions", findModuleVersionsByTypeVersionHandler(core))

	r.POST("/v1/modules/:module/owners", addOwnerHandler(core))
	r.DELETE("/v1/modules/:module/owners/:user_id", removeOwnerHandler(core))
	r.GET("/v1/owners/:user_id/modules", getModulesByOwnerHandler(core))

	r.POST("/v1/registrations/:module", requestModuleRegistrationHandler(core))
	r.POST("/v1/registrations/:module/approve", approveModuleRegistrationHandler(core))
	r.POST("/v1/registrations/:module/refuse", refuseModuleRegistrationHandler(core))
	r.GET("/v1/registrations", listPendingRegistrationsHandler(core))

	return r, store, core
}

// doRequest issues req against r and returns the recorded response.
func doRequest(r *gin.Engine, method, target, asUser, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	if asUser != "" {
		req.Header.Set("X-Test-User", asUser)
	}
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

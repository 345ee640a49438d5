package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/typedefdb/tddb/internal/registry"
)

// @Summary      Request registration of a new module name
// @Tags         Registrations
// @Produce      json
// @Param        module  path  string  true  "module name"
// @Success      204
// @Router       /v1/registrations/{module} [post]
func requestModuleRegistrationHandler(core *registry.Core) gin.HandlerFunc {
	return func(c *gin.Context) {
		uid, ok := requireUserID(c)
		if !ok {
			return
		}
		if err := core.RequestModuleRegistration(c.Request.Context(), c.Param("module"), uid); err != nil {
			writeError(c, err)
			return
		}
		c.Status(http.StatusNoContent)
	}
}

// @Summary      Approve a pending module registration request
// @Tags         Registrations
// @Produce      json
// @Param        module  path  string  true  "module name"
// @Success      204
// @Router       /v1/registrations/{module}/approve [post]
func approveModuleRegistrationHandler(core *registry.Core) gin.HandlerFunc {
	return func(c *gin.Context) {
		uid, ok := requireUserID(c)
		if !ok {
			return
		}
		if err := core.ApproveModuleRegistrationRequest(c.Request.Context(), uid, c.Param("module")); err != nil {
			writeError(c, err)
			return
		}
		c.Status(http.StatusNoContent)
	}
}

// @Summary      Refuse a pending module registration request
// @Tags         Registrations
// @Produce      json
// @Param        module  path  string  true  "module name"
// @Success      204
// @Router       /v1/registrations/{module}/refuse [post]
func refuseModuleRegistrationHandler(core *registry.Core) gin.HandlerFunc {
	return func(c *gin.Context) {
		uid, ok := requireUserID(c)
		if !ok {
			return
		}
		if err := core.RefuseModuleRegistrationRequest(c.Request.Context(), uid, c.Param("module")); err != nil {
			writeError(c, err)
			return
		}
		c.Status(http.StatusNoContent)
	}
}

// @Summary      List pending module registration requests
// @Tags         Registrations
// @Produce      json
// @Success      200  {array}  storage.RegistrationRequest
// @Router       /v1/registrations [get]
func listPendingRegistrationsHandler(core *registry.Core) gin.HandlerFunc {
	return func(c *gin.Context) {
		uid, ok := requireUserID(c)
		if !ok {
			return
		}
		reqs, err := core.PendingRegistrationRequests(c.Request.Context(), uid)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, reqs)
	}
}

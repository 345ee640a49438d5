package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/typedefdb/tddb/internal/registry"
)

type addOwnerRequest struct {
	UserID                    string `json:"user_id" binding:"required"`
	WithChangeOwnersPrivilege bool   `json:"with_change_owners_privilege"`
}

// @Summary      Grant module ownership
// @Tags         Owners
// @Accept       json
// @Produce      json
// @Param        module  path  string           true  "module name"
// @Param        body    body  addOwnerRequest  true  "owner to add"
// @Success      204
// @Router       /v1/modules/{module}/owners [post]
func addOwnerHandler(core *registry.Core) gin.HandlerFunc {
	return func(c *gin.Context) {
		caller, ok := requireUserID(c)
		if !ok {
			return
		}
		var req addOwnerRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		if err := core.AddOwner(c.Request.Context(), caller, c.Param("module"), req.UserID, req.WithChangeOwnersPrivilege); err != nil {
			writeError(c, err)
			return
		}
		c.Status(http.StatusNoContent)
	}
}

// @Summary      Revoke module ownership
// @Tags         Owners
// @Produce      json
// @Param        module   path  string  true  "module name"
// @Param        user_id  path  string  true  "user to remove"
// @Success      204
// @Router       /v1/modules/{module}/owners/{user_id} [delete]
func removeOwnerHandler(core *registry.Core) gin.HandlerFunc {
	return func(c *gin.Context) {
		caller, ok := requireUserID(c)
		if !ok {
			return
		}
		if err := core.RemoveOwner(c.Request.Context(), caller, c.Param("module"), c.Param("user_id")); err != nil {
			writeError(c, err)
			return
		}
		c.Status(http.StatusNoContent)
	}
}

// @Summary      List modules owned by a user
// @Tags         Owners
// @Produce      json
// @Param        user_id  path  string  true  "user id"
// @Success      200  {array}  string
// @Router       /v1/owners/{user_id}/modules [get]
func getModulesByOwnerHandler(core *registry.Core) gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, ok := requireUserID(c); !ok {
			return
		}
		modules, err := core.GetModulesByOwner(c.Request.Context(), c.Param("user_id"))
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, modules)
	}
}

package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/typedefdb/tddb/internal/registry"
)

// saveModuleRequest is the JSON body for POST /v1/modules/:module/save.
// Module and UserID are taken from the path and the authenticated caller
// respectively, never trusted from the body.
type saveModuleRequest struct {
	SpecDocument              string            `json:"spec_document"`
	AddedTypes                []string          `json:"added_types"`
	UnregisteredTypes         []string          `json:"unregistered_types"`
	DryRun                    bool              `json:"dry_run"`
	ModuleVersionRestrictions map[string]string `json:"module_version_restrictions"`
	ExpectedPreviousVersion   *int64            `json:"expected_previous_version"`
	UploadMethod              string            `json:"upload_method"`
	UploadComment             string            `json:"upload_comment"`
	Description               string            `json:"description"`
}

// @Summary      Save a module specification
// @Description  Compiles a specification document, diffs it against the module's current version, and persists the result.
// @Tags         Modules
// @Accept       json
// @Produce      json
// @Param        module  path  string              true  "module name"
// @Param        body    body  saveModuleRequest   true  "save request"
// @Success      200  {object}  map[string]registry.TypeChange
// @Failure      400  {object}  map[string]string
// @Failure      409  {object}  map[string]string
// @Router       /v1/modules/{module}/save [post]
func saveModuleHandler(core *registry.Core) gin.HandlerFunc {
	return func(c *gin.Context) {
		uid, ok := requireUserID(c)
		if !ok {
			return
		}
		var req saveModuleRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		result, err := core.SaveModule(c.Request.Context(), registry.SaveModuleInput{
			Module:                    c.Param("module"),
			SpecDocument:              req.SpecDocument,
			AddedTypes:                req.AddedTypes,
			UnregisteredTypes:         req.UnregisteredTypes,
			UserID:                    uid,
			DryRun:                    req.DryRun,
			ModuleVersionRestrictions: req.ModuleVersionRestrictions,
			ExpectedPreviousVersion:   req.ExpectedPreviousVersion,
			UploadMethod:              req.UploadMethod,
			UploadComment:             req.UploadComment,
			Description:               req.Description,
		})
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, result)
	}
}

// @Summary      Release a module
// @Tags         Modules
// @Produce      json
// @Param        module  path  string  true  "module name"
// @Success      204
// @Router       /v1/modules/{module}/release [post]
func releaseModuleHandler(core *registry.Core) gin.HandlerFunc {
	return func(c *gin.Context) {
		uid, ok := requireUserID(c)
		if !ok {
			return
		}
		if err := core.ReleaseModule(c.Request.Context(), uid, c.Param("module")); err != nil {
			writeError(c, err)
			return
		}
		c.Status(http.StatusNoContent)
	}
}

// @Summary      Stop module support (retire)
// @Tags         Modules
// @Produce      json
// @Param        module  path  string  true  "module name"
// @Success      204
// @Router       /v1/modules/{module}/support/stop [post]
func stopModuleSupportHandler(core *registry.Core) gin.HandlerFunc {
	return func(c *gin.Context) {
		uid, ok := requireUserID(c)
		if !ok {
			return
		}
		if err := core.StopModuleSupport(c.Request.Context(), uid, c.Param("module")); err != nil {
			writeError(c, err)
			return
		}
		c.Status(http.StatusNoContent)
	}
}

// @Summary      Resume module support
// @Tags         Modules
// @Produce      json
// @Param        module  path  string  true  "module name"
// @Success      204
// @Router       /v1/modules/{module}/support/resume [post]
func resumeModuleSupportHandler(core *registry.Core) gin.HandlerFunc {
	return func(c *gin.Context) {
		uid, ok := requireUserID(c)
		if !ok {
			return
		}
		if err := core.ResumeModuleSupport(c.Request.Context(), uid, c.Param("module")); err != nil {
			writeError(c, err)
			return
		}
		c.Status(http.StatusNoContent)
	}
}

// @Summary      Remove a module permanently
// @Tags         Modules
// @Produce      json
// @Param        module  path  string  true  "module name"
// @Success      204
// @Router       /v1/modules/{module} [delete]
func removeModuleHandler(core *registry.Core) gin.HandlerFunc {
	return func(c *gin.Context) {
		uid, ok := requireUserID(c)
		if !ok {
			return
		}
		if err := core.RemoveModule(c.Request.Context(), uid, c.Param("module")); err != nil {
			writeError(c, err)
			return
		}
		c.Status(http.StatusNoContent)
	}
}

// @Summary      Get module info
// @Tags         Modules
// @Produce      json
// @Param        module       path   string  true   "module name"
// @Param        unreleased   query  bool    false  "include the unreleased head version (admin only)"
// @Success      200  {object}  storage.ModuleInfo
// @Router       /v1/modules/{module} [get]
func getModuleInfoHandler(core *registry.Core) gin.HandlerFunc {
	return func(c *gin.Context) {
		uid, _ := userID(c)
		unreleased, _ := strconv.ParseBool(c.Query("unreleased"))
		info, err := core.GetModuleInfo(c.Request.Context(), uid, c.Param("module"), unreleased)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, info)
	}
}

// @Summary      List registered modules
// @Tags         Modules
// @Produce      json
// @Param        retired  query  bool  false  "include retired modules"
// @Success      200  {array}  string
// @Router       /v1/modules [get]
func listModulesHandler(core *registry.Core) gin.HandlerFunc {
	return func(c *gin.Context) {
		includeRetired, _ := strconv.ParseBool(c.Query("retired"))
		modules, err := core.ListModules(c.Request.Context(), includeRetired)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, modules)
	}
}

// @Summary      Resolve a TypeDefId
// @Description  Resolves module/type coordinates plus optional md5 or major/minor selectors to a concrete type version.
// @Tags         Modules
// @Produce      json
// @Param        module  path   string  true   "module name"
// @Param        type    path   string  true   "type name"
// @Param        md5     query  string  false  "exact content hash"
// @Param        major   query  int     false  "major version"
// @Param        minor   query  int     false  "minor version"
// @Success      200  {object}  map[string]string
// @Router       /v1/modules/{module}/types/{type}/resolve [get]
func resolveTypeDefHandler(core *registry.Core) gin.HandlerFunc {
	return func(c *gin.Context) {
		uid, _ := userID(c)
		q := registry.TypeDefIdQuery{
			Module: c.Param("module"),
			Type:   c.Param("type"),
			MD5:    c.Query("md5"),
		}
		if s := c.Query("major"); s != "" {
			if v, err := strconv.Atoi(s); err == nil {
				q.Major = &v
			}
		}
		if s := c.Query("minor"); s != "" {
			if v, err := strconv.Atoi(s); err == nil {
				q.Minor = &v
			}
		}
		version, err := core.ResolveTypeDefId(c.Request.Context(), uid, q)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"version": version})
	}
}

// @Summary      Get a type's JSON Schema document
// @Tags         Modules
// @Produce      json
// @Param        module   path  string  true  "module name"
// @Param        type     path  string  true  "type name"
// @Param        version  path  string  true  "type version (major.minor)"
// @Success      200  {object}  map[string]interface{}
// @Router       /v1/modules/{module}/types/{type}/versions/{version}/schema [get]
func getJSONSchemaHandler(core *registry.Core) gin.HandlerFunc {
	return func(c *gin.Context) {
		uid, _ := userID(c)
		doc, err := core.GetJSONSchemaDocument(c.Request.Context(), uid, c.Param("module"), c.Param("type"), c.Param("version"))
		if err != nil {
			writeError(c, err)
			return
		}
		c.Data(http.StatusOK, "application/schema+json", doc)
	}
}

// @Summary      Get a type's parsed AST node
// @Tags         Modules
// @Produce      json
// @Param        module   path  string  true  "module name"
// @Param        type     path  string  true  "type name"
// @Param        version  path  string  true  "type version (major.minor)"
// @Success      200  {object}  ast.Typedef
// @Router       /v1/modules/{module}/types/{type}/versions/{version}/ast [get]
func getTypeParsingDocHandler(core *registry.Core) gin.HandlerFunc {
	return func(c *gin.Context) {
		uid, _ := userID(c)
		td, err := core.GetTypeParsingDocument(c.Request.Context(), uid, c.Param("module"), c.Param("type"), c.Param("version"))
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, td)
	}
}

// @Summary      Get a function's parsed AST node
// @Tags         Modules
// @Produce      json
// @Param        module   path  string  true  "module name"
// @Param        func     path  string  true  "function name"
// @Param        version  path  string  true  "function version (major.minor)"
// @Success      200  {object}  ast.Funcdef
// @Router       /v1/modules/{module}/funcs/{func}/versions/{version}/ast [get]
func getFuncParsingDocHandler(core *registry.Core) gin.HandlerFunc {
	return func(c *gin.Context) {
		uid, _ := userID(c)
		fd, err := core.GetFuncParsingDocument(c.Request.Context(), uid, c.Param("module"), c.Param("func"), c.Param("version"))
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, fd)
	}
}

// @Summary      Find module versions whose module AST hash equals md5
// @Tags         Modules
// @Produce      json
// @Param        module  path  string  true  "module name"
// @Param        type    path  string  true  "type name (not used in the lookup)"
// @Param        md5     path  string  true  "module AST hash"
// @Success      200  {array}  int64
// @Router       /v1/modules/{module}/types/{type}/md5/{md5}/module-versions [get]
func findModuleVersionsByMD5Handler(core *registry.Core) gin.HandlerFunc {
	return func(c *gin.Context) {
		uid, _ := userID(c)
		versions, err := core.FindModuleVersionsByMD5(c.Request.Context(), uid, c.Param("module"), c.Param("md5"))
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, versions)
	}
}

// @Summary      Find module versions that carried a given type version
// @Tags         Modules
// @Produce      json
// @Param        module   path  string  true  "module name"
// @Param        type     path  string  true  "type name"
// @Param        version  path  string  true  "type version (major.minor)"
// @Success      200  {array}  int64
// @Router       /v1/modules/{module}/types/{type}/versions/{version}/module-versions [get]
func findModuleVersionsByTypeVersionHandler(core *registry.Core) gin.HandlerFunc {
	return func(c *gin.Context) {
		uid, _ := userID(c)
		versions, err := core.FindModuleVersionsByTypeVersion(c.Request.Context(), uid, c.Param("module"), c.Param("type"), c.Param("version"))
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, versions)
	}
}

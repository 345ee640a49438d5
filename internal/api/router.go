package api

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/typedefdb/tddb/internal/auth"
	"github.com/typedefdb/tddb/internal/config"
	"github.com/typedefdb/tddb/internal/db/repositories"
	"github.com/typedefdb/tddb/internal/middleware"
	"github.com/typedefdb/tddb/internal/parser/hcl"
	"github.com/typedefdb/tddb/internal/registry"
	"github.com/typedefdb/tddb/internal/safego"
	"github.com/typedefdb/tddb/internal/storage/postgres"
)

// pendingRegistrationsPollInterval is how often MonitorPendingRegistrations
// samples the registration-request backlog.
const pendingRegistrationsPollInterval = 30 * time.Second

// BackgroundServices holds the handles for goroutines NewRouter starts
// alongside the HTTP surface, so main.go can stop them during graceful
// shutdown.
type BackgroundServices struct {
	cancelMonitor func()
}

// Shutdown stops every background goroutine NewRouter started.
func (b *BackgroundServices) Shutdown() {
	if b.cancelMonitor != nil {
		b.cancelMonitor()
	}
}

// NewRouter builds the Gin engine and the Registry Core it serves. It wires
// the Postgres Storage Port, the HCL Parser Port, the Lock Manager, the JWT
// identity directory, and every route of the HTTP surface.
func NewRouter(cfg *config.Config, db *sql.DB) (*gin.Engine, *BackgroundServices, error) {
	store := postgres.New(db)
	parserPort := hcl.New()
	locks := registry.NewLockManager(cfg.Registry.MaxDeadlockWait())
	userRepo := repositories.NewUserRepository(db)
	auditRepo := repositories.NewAuditRepository(db)
	admin := auth.NewDBAdminChecker(userRepo, nil)
	core := registry.New(store, parserPort, locks, admin, nil)

	bg := &BackgroundServices{}
	if cfg.Telemetry.Enabled {
		ctx, cancel := context.WithCancel(context.Background())
		bg.cancelMonitor = cancel
		safego.Go(func() { core.MonitorPendingRegistrations(ctx, pendingRegistrationsPollInterval) })
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.RequestIDMiddleware())
	router.Use(middleware.MetricsMiddleware())
	router.Use(LoggerMiddleware(cfg))
	router.Use(CORSMiddleware(cfg))
	router.Use(middleware.SecurityHeadersMiddleware(middleware.APISecurityHeadersConfig()))
	if cfg.Audit.Enabled {
		shipper, err := buildAuditShipper(cfg.Audit.Shippers)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to configure audit shippers: %w", err)
		}
		router.Use(AuditMiddleware(cfg, auditRepo, shipper))
	}

	router.GET("/health", healthCheckHandler(db))
	router.GET("/ready", readinessHandler(db))
	router.GET("/version", versionHandler())

	v1 := router.Group("/v1")
	v1.Use(middleware.AuthMiddleware(userRepo))
	{
		v1.POST("/modules/:module/save", saveModuleHandler(core))
		v1.POST("/modules/:module/release", releaseModuleHandler(core))
		v1.POST("/modules/:module/support/stop", stopModuleSupportHandler(core))
		v1.POST("/modules/:module/support/resume", resumeModuleSupportHandler(core))
		v1.DELETE("/modules/:module", removeModuleHandler(core))
		v1.GET("/modules", listModulesHandler(core))
		v1.GET("/modules/:module", getModuleInfoHandler(core))

		v1.GET("/modules/:module/types/:type/resolve", resolveTypeDefHandler(core))
		v1.GET("/modules/:module/types/:type/versions/:version/schema", getJSONSchemaHandler(core))
		v1.GET("/modules/:module/types/:type/versions/:version/ast", getTypeParsingDocHandler(core))
		v1.GET("/modules/:module/funcs/:func/versions/:version/ast", getFuncParsingDocHandler(core))
		v1.GET("/modules/:module/types/:type/md5/:md5/module-versions", findModuleVersionsByMD5Handler(core))
		v1.GET("/modules/:module/types/:type/versions/:version/module-versions", findModuleVersionsByTypeVersionHandler(core))

		v1.POST("/modules/:module/owners", addOwnerHandler(core))
		v1.DELETE("/modules/:module/owners/:user_id", removeOwnerHandler(core))
		v1.GET("/owners/:user_id/modules", getModulesByOwnerHandler(core))

		v1.POST("/registrations/:module", requestModuleRegistrationHandler(core))
		v1.POST("/registrations/:module/approve", approveModuleRegistrationHandler(core))
		v1.POST("/registrations/:module/refuse", refuseModuleRegistrationHandler(core))
		v1.GET("/registrations", listPendingRegistrationsHandler(core))
	}

	return router, bg, nil
}

package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/typedefdb/tddb/internal/audit"
	"github.com/typedefdb/tddb/internal/config"
	"github.com/typedefdb/tddb/internal/db/models"
	"github.com/typedefdb/tddb/internal/db/repositories"
	"github.com/typedefdb/tddb/internal/safego"
)

// buildAuditShipper converts the operator-facing config.AuditShipperConfig
// list into the audit package's own ShipperConfig and constructs the
// resulting MultiShipper. Returns (nil, nil) when no shippers are
// configured, so callers can treat the shipper as optional throughout.
func buildAuditShipper(shippers []config.AuditShipperConfig) (*audit.MultiShipper, error) {
	if len(shippers) == 0 {
		return nil, nil
	}
	configs := make([]audit.ShipperConfig, 0, len(shippers))
	for _, s := range shippers {
		c := audit.ShipperConfig{Enabled: s.Enabled, Type: s.Type}
		if s.Webhook != nil {
			c.Webhook = &audit.WebhookConfig{
				URL:           s.Webhook.URL,
				Headers:       s.Webhook.Headers,
				Timeout:       s.Webhook.Timeout,
				BatchSize:     s.Webhook.BatchSize,
				FlushInterval: s.Webhook.FlushInterval,
			}
		}
		if s.File != nil {
			c.File = &audit.FileConfig{
				Path:       s.File.Path,
				MaxSizeMB:  s.File.MaxSizeMB,
				MaxBackups: s.File.MaxBackups,
			}
		}
		configs = append(configs, c)
	}
	return audit.NewMultiShipper(configs)
}

// AuditMiddleware writes one AuditLog row per request through the audit
// repository, after the handler runs so the recorded status code is final,
// and additionally forwards the same event to any configured external
// shippers (SIEM webhook, rotated file) via shipper. shipper may be nil when
// no external shippers are configured.
//
// It lives here rather than in internal/middleware because it needs the
// storage-backed AuditRepository, not just request/response state.
func AuditMiddleware(cfg *config.Config, repo *repositories.AuditRepository, shipper *audit.MultiShipper) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if !cfg.Audit.Enabled {
			return
		}
		status := c.Writer.Status()
		failed := status >= http.StatusBadRequest
		if failed && !cfg.Audit.LogFailedRequests {
			return
		}
		if c.Request.Method == http.MethodGet && !failed && !cfg.Audit.LogReadOperations {
			return
		}

		action := c.Request.Method + " " + c.FullPath()
		resourceType := "http"
		resourceID := c.Request.URL.Path
		ip := c.ClientIP()
		entry := &models.AuditLog{
			Action:       action,
			ResourceType: &resourceType,
			ResourceID:   &resourceID,
			IPAddress:    &ip,
			Metadata: map[string]interface{}{
				"status": status,
				"query":  c.Request.URL.RawQuery,
			},
		}
		if id, ok := userID(c); ok && id != "" {
			entry.UserID = &id
		}

		// Use a detached context: the request's own context is cancelled the
		// moment the handler returns, before this background write lands.
		safego.Go(func() {
			if err := repo.CreateAuditLog(context.Background(), entry); err != nil {
				slog.Error("audit log write failed", "action", action, "error", err)
			}
		})

		if shipper != nil {
			shipEntry := &audit.LogEntry{
				Timestamp:    time.Now().UTC(),
				Action:       action,
				ResourceType: resourceType,
				ResourceID:   resourceID,
				IPAddress:    ip,
				StatusCode:   status,
				Metadata:     map[string]interface{}{"query": c.Request.URL.RawQuery},
			}
			if id, ok := userID(c); ok {
				shipEntry.UserID = id
			}
			safego.Go(func() {
				if err := shipper.Ship(context.Background(), shipEntry); err != nil {
					slog.Error("audit shipper failed", "action", action, "error", err)
				}
			})
		}
	}
}

package services

import (
	"context"

	"go.uber.org/zap"

	"github.com/fieldbase/fieldbase/pkg/logger"
)

// recordAudit logs the supplied entry best-effort; delivery failures are
// logged and never propagate to the caller.
func recordAudit(audit *AuditService, ctx context.Context, entry AuditEntry) {
	if audit == nil {
		return
	}
	if err := audit.Log(ctx, entry); err != nil {
		logger.WithModule("audit").Warn("audit delivery failed",
			zap.String("action", entry.Action),
			zap.Error(err),
		)
	}
}

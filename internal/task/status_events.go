package task

import (
	"context"

	"github.com/phrazzld/canonify/internal/domain"
	"github.com/phrazzld/canonify/internal/events"
	"github.com/phrazzld/canonify/internal/platform/logger"
)

// emitStatusChange publishes the new status of rec once s commits.
func emitStatusChange(s Session, emitter events.EventEmitter, rec *domain.FileRecord) {
	payload := events.FileStatusChanged{
		RecordID: rec.ID,
		ParentID: rec.ParentID,
		Status:   string(rec.Status),
	}

	s.AfterCommit(func(ctx context.Context) {
		log := logger.FromContextOrDefault(ctx, nil)

		event, err := events.NewEvent(events.TypeFileStatusChanged, payload)
		if err != nil {
			log.Error("failed to build status event", "record_id", payload.RecordID, "error", err)
			return
		}
		if err := emitter.EmitEvent(ctx, event); err != nil {
			log.Warn("status event handlers failed", "record_id", payload.RecordID, "error", err)
		}
	})
}

package catguard

import (
	"context"

	"github.com/tyhsiao/catguard/internal/audit"
)

func (e *Engine) emitAudit(ctx context.Context, eventType string, success bool, username, ip string, err error, meta map[string]string) {
	if e.dispatcher == nil {
		return
	}

	event := audit.Event{
		Timestamp: e.now(),
		EventType: eventType,
		Username:  username,
		IP:        ip,
		Success:   success,
		Metadata:  meta,
	}
	if err != nil {
		event.Error = err.Error()
	}

	e.dispatcher.Emit(ctx, event)
}

// AuditDropped reports how many audit events were discarded under buffer
// pressure since the engine started.
func (e *Engine) AuditDropped() uint64 {
	return e.dispatcher.Dropped()
}

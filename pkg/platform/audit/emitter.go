package audit

import (
	"context"
	"fmt"
	"log/slog"

	"securecard/pkg/attrs"
	id "securecard/pkg/domain"
	"securecard/pkg/requestcontext"
)

// Publisher accepts audit events for persistence.
type Publisher interface {
	Emit(ctx context.Context, event Event) error
}

// Emitter writes the structured audit log line and forwards the same facts to
// a Publisher. A nil Emitter, logger or publisher is skipped.
type Emitter struct {
	logger    *slog.Logger
	publisher Publisher
}

func NewEmitter(logger *slog.Logger, publisher Publisher) *Emitter {
	return &Emitter{logger: logger, publisher: publisher}
}

// Record logs action for userID. attributes is a key/value list; the keys
// subject, actor_id, decision, reason and amount are copied into the event.
func (e *Emitter) Record(ctx context.Context, action AuditEvent, userID id.UserID, attributes ...any) {
	if e == nil {
		return
	}
	requestID := requestcontext.RequestID(ctx)
	if e.logger != nil {
		args := make([]any, 0, len(attributes)+10)
		for i, v := range attributes {
			// typed ids are byte arrays; log their canonical form
			if sv, ok := v.(fmt.Stringer); ok && i%2 == 1 {
				v = sv.String()
			}
			args = append(args, v)
		}
		if !userID.IsNil() {
			args = append(args, "user_id", userID.String())
		}
		if requestID != "" {
			args = append(args, "request_id", requestID)
		}
		if client := requestcontext.ClientInfo(ctx); client.IP != "" {
			args = append(args, "client_ip", client.IP, "device", client.Device)
		}
		args = append(args, "event", string(action), "log_type", "audit")
		e.logger.InfoContext(ctx, string(action), args...)
	}
	if e.publisher == nil {
		return
	}
	err := e.publisher.Emit(ctx, Event{
		Category:  action.Category(),
		Timestamp: requestcontext.Now(ctx),
		UserID:    userID,
		ActorID:   attrs.ExtractString(attributes, "actor_id"),
		Subject:   attrs.ExtractString(attributes, "subject"),
		Action:    string(action),
		Decision:  attrs.ExtractString(attributes, "decision"),
		Reason:    attrs.ExtractString(attributes, "reason"),
		Amount:    attrs.ExtractString(attributes, "amount"),
		RequestID: requestID,
	})
	if err != nil && e.logger != nil {
		e.logger.WarnContext(ctx, "failed to publish audit event",
			"event", string(action),
			"error", err,
		)
	}
}

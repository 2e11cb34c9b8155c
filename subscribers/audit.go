package subscribers

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/chatforge/workflow/graph/emit"
	"github.com/nats-io/nats.go"
)

// AuditLogger publishes every lifecycle event onto a NATS subject, the raw
// nats.Connect/Publish pattern C360Studio-semspec's own app wiring uses,
// giving an external consumer (a SIEM, a compliance archive) an
// independent copy of the run's event stream. Publishing is plain
// at-most-once NATS: events are not persisted for consumers that are offline.
type AuditLogger struct {
	conn          *nats.Conn
	subjectPrefix string
	logger        *slog.Logger
}

// NewAuditLogger connects to url and returns a ready-to-use AuditLogger.
// subjectPrefix is prepended to "<prefix>.<runID>" for every publish, so a
// consumer can wildcard-subscribe to one run or the whole prefix.
func NewAuditLogger(url, subjectPrefix string, logger *slog.Logger) (*AuditLogger, error) {
	conn, err := nats.Connect(url)
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &AuditLogger{conn: conn, subjectPrefix: subjectPrefix, logger: logger}, nil
}

// Emit implements emit.Emitter. Publish is fire-and-forget; nats.Conn
// itself buffers and flushes asynchronously, so this never blocks the
// calling node.
func (a *AuditLogger) Emit(event emit.Event) {
	data, err := json.Marshal(event)
	if err != nil {
		a.logger.Error("audit subscriber: marshal event failed", "error", err)
		return
	}
	subject := a.subjectPrefix + "." + event.RunID
	if err := a.conn.Publish(subject, data); err != nil {
		a.logger.Error("audit subscriber: publish failed", "subject", subject, "error", err)
	}
}

// EmitBatch implements emit.Emitter by publishing each event in order.
func (a *AuditLogger) EmitBatch(ctx context.Context, events []emit.Event) error {
	for _, e := range events {
		a.Emit(e)
	}
	return nil
}

// Flush blocks until NATS has flushed its internal write buffer.
func (a *AuditLogger) Flush(ctx context.Context) error {
	return a.conn.FlushWithContext(ctx)
}

// Close closes the NATS connection without draining it.
func (a *AuditLogger) Close() {
	a.conn.Close()
}

package bootstrap

import "context"

type AuditLog struct {
	Action  string
	ActorID string
	Message string
	Meta    map[string]any
}

// AuditLogger records actions that need a paper trail (manual balance
// adjustments, server lifecycle). Implementations must never fail the caller.
type AuditLogger interface {
	Log(ctx context.Context, entry AuditLog)
}

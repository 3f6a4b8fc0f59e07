package observability

import (
	"context"
	"log/slog"
)

// Audit emits a structured security audit event. IPs and user agents are
// logged; secrets and hashes never are.
func Audit(ctx context.Context, event string, attrs ...any) {
	base := []any{"event", event}
	base = append(base, attrs...)
	slog.InfoContext(ctx, "audit", base...)
}

package services

import "context"

func ensureContext(ctx context.Context) context.Context {
	if ctx == nil {
		return context.Background()
	}
	return ctx
}

// recordAuthEvent logs the supplied entry while tolerating audit failures.
// Audit writes must never fail the operation they describe.
func recordAuthEvent(audit *AuditService, ctx context.Context, entry AuthEventEntry) {
	if audit == nil {
		return
	}
	_ = audit.Log(ctx, entry)
}

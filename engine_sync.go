package credcore

import "context"

// StartAutoSync launches the background reconciliation loop. Repeated calls
// are no-ops.
func (e *Engine) StartAutoSync() {
	e.syncer.Start()
}

// StopAutoSync terminates the loop with one best-effort flush cycle.
func (e *Engine) StopAutoSync(ctx context.Context) {
	e.syncer.Stop(ctx)
}

// ForceSync runs one reconciliation cycle synchronously. A cycle already in
// flight or an unreachable remote makes this a silent no-op.
func (e *Engine) ForceSync(ctx context.Context) error {
	return e.syncer.Sync(ctx)
}

// NotifyFocus schedules a debounced sync cycle, mirroring the original
// focus/visibility trigger.
func (e *Engine) NotifyFocus() {
	e.syncer.TriggerFocus()
}

// PendingSync reports how many cached records the remote store is missing.
func (e *Engine) PendingSync(ctx context.Context) (int, error) {
	return e.syncer.PendingSync(ctx)
}

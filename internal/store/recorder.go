package store

import (
	"context"
	"log/slog"
)

// AsyncRecorder adapts Store to the Application Manager's Recorder
// interface: every call is handed off to its own goroutine so a slow disk
// write never blocks the Manager's mutex.
type AsyncRecorder struct {
	store *Store
}

// NewAsyncRecorder wraps s for non-blocking audit recording.
func NewAsyncRecorder(s *Store) *AsyncRecorder {
	return &AsyncRecorder{store: s}
}

// RecordAITEvent satisfies manager.Recorder.
func (r *AsyncRecorder) RecordAITEvent(onid, tsid, sid uint16, source, detail string, tsUnixMs int64) {
	go func() {
		if err := r.store.RecordAITEvent(context.Background(), onid, tsid, sid, source, detail, tsUnixMs); err != nil {
			slog.Error("async ait event record failed", "err", err)
		}
	}()
}

// RecordAppTransition satisfies manager.Recorder.
func (r *AsyncRecorder) RecordAppTransition(appID uint16, orgID uint32, event, reason string, tsUnixMs int64) {
	go func() {
		if err := r.store.RecordAppTransition(context.Background(), appID, orgID, event, reason, tsUnixMs); err != nil {
			slog.Error("async app transition record failed", "err", err)
		}
	}()
}

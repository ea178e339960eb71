package project

import (
	"context"

	"sitesmith/internal/journal"
	"sitesmith/internal/logging"
	"sitesmith/internal/metrics"
	"sitesmith/internal/reconciler"
)

// Observe returns a reconciler transition hook that journals and counts every
// state change of session id.
func Observe(rec journal.Recorder, id string, logger *logging.StructuredLogger) func(prev, next reconciler.Status) {
	if rec == nil {
		rec = journal.Discard
	}
	if logger == nil {
		logger = logging.Discard()
	}
	return func(prev, next reconciler.Status) {
		metrics.RecordTransition(string(next.State))
		detail := string(prev.State) + " -> " + string(next.State)
		switch {
		case next.Err != nil:
			detail += ": " + next.Err.Error()
		case next.URL != "":
			detail += " " + next.URL + " (" + string(next.Source) + ")"
		}
		if err := rec.Record(context.Background(), journal.Event{Session: id, Kind: journal.KindTransition, Detail: detail}); err != nil {
			logger.Warn("journal write failed", map[string]interface{}{"kind": journal.KindTransition, "error": err.Error()})
		}
	}
}

package project

import (
	"bytes"
	"context"
	"errors"
	"log"
	"strings"
	"testing"

	"sitesmith/internal/journal"
	"sitesmith/internal/logging"
	"sitesmith/internal/reconciler"
)

type failingJournal struct{}

func (failingJournal) Record(context.Context, journal.Event) error {
	return errors.New("database is locked")
}

func TestObserveRecordsTransition(t *testing.T) {
	rec := &memJournal{}
	hook := Observe(rec, "s1", nil)
	hook(reconciler.Status{State: reconciler.StateStarting}, reconciler.Status{
		State:  reconciler.StateServing,
		URL:    "http://localhost:5173",
		Source: reconciler.SourceOutput,
	})
	if len(rec.events) != 1 {
		t.Fatalf("events = %+v", rec.events)
	}
	ev := rec.events[0]
	if ev.Session != "s1" || ev.Kind != journal.KindTransition || ev.Detail != "starting -> serving http://localhost:5173 (output)" {
		t.Fatalf("event = %+v", ev)
	}
}

func TestObserveLogsJournalFailure(t *testing.T) {
	var buf bytes.Buffer
	logger := logging.NewStructuredLogger(log.New(&buf, "", 0), "sitesmith", false)
	hook := Observe(failingJournal{}, "s1", logger)
	hook(reconciler.Status{State: reconciler.StateUninitialized}, reconciler.Status{State: reconciler.StateBooting})

	got := buf.String()
	if !strings.Contains(got, "journal write failed") || !strings.Contains(got, "database is locked") {
		t.Fatalf("log = %q", got)
	}
}

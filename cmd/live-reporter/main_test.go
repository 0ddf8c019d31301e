package main

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/hochfrequenz/live-reporter/internal/protocol"
	"github.com/hochfrequenz/live-reporter/internal/reporter"
	"github.com/hochfrequenz/live-reporter/internal/schedule"
)

func TestPrintView(t *testing.T) {
	session := reporter.New(reporter.Options{}, schedule.NewManual(time.Now()))
	for _, env := range []protocol.EnvelopeRaw{
		{Type: protocol.TypeRunReady, Payload: json.RawMessage(`{"run_id": "r1", "commands": [
			{"id": 1, "name": "visit", "state": "passed", "message": "/"},
			{"name": "xhr", "event": true, "message": "GET /a"},
			{"name": "xhr", "event": true, "message": "GET /a"}
		]}`)},
		{Type: protocol.TypeCommandUpdate, Payload: json.RawMessage(`{"id": 42, "state": "passed"}`)},
	} {
		session.Handle(env)
	}

	var out bytes.Buffer
	printView(&out, session.View())
	got := out.String()

	for _, want := range []string{"Run r1", "visit", "(xhr)", "GET /a (x2)", "1 diagnostic:", "unknown_command"} {
		if !strings.Contains(got, want) {
			t.Errorf("output missing %q:\n%s", want, got)
		}
	}
}

func TestReplayEnvelopes_NeedsSource(t *testing.T) {
	replayJournal = ""
	if _, err := replayEnvelopes(nil); err == nil {
		t.Error("replayEnvelopes() without FILE should fail")
	}
}

func TestRootCommand_Subcommands(t *testing.T) {
	want := map[string]bool{"serve": false, "tui": false, "replay": false, "journal": false, "version": false}
	for _, c := range rootCmd.Commands() {
		if _, ok := want[c.Name()]; ok {
			want[c.Name()] = true
		}
	}
	for name, found := range want {
		if !found {
			t.Errorf("missing %s command", name)
		}
	}
}

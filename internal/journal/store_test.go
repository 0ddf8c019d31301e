package journal

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/hochfrequenz/live-reporter/internal/domain"
	"github.com/hochfrequenz/live-reporter/internal/protocol"
)

func newStore(t *testing.T) *Store {
	t.Helper()
	store, err := New(":memory:")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func TestStore_RecordAndReadEnvelopes(t *testing.T) {
	store := newStore(t)
	at := time.Date(2000, 1, 1, 0, 0, 0, 0, time.UTC)

	envs := []protocol.EnvelopeRaw{
		{Type: protocol.TypeRunStart, Payload: json.RawMessage(`{"run_id":"r1"}`)},
		{Type: protocol.TypeCommandAdd, Payload: json.RawMessage(`{"id":1,"name":"visit"}`)},
		{Type: protocol.TypeRunReady},
	}
	for i, env := range envs {
		if err := store.RecordEnvelope("r1", env, at.Add(time.Duration(i)*time.Second)); err != nil {
			t.Fatal(err)
		}
	}
	if err := store.RecordEnvelope("r2", envs[1], at); err != nil {
		t.Fatal(err)
	}

	got, err := store.Envelopes("r1")
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 3 {
		t.Fatalf("got %d entries, want 3", len(got))
	}
	for i, e := range got {
		if e.Envelope.Type != envs[i].Type {
			t.Errorf("entry %d Type = %s, want %s", i, e.Envelope.Type, envs[i].Type)
		}
		if string(e.Envelope.Payload) != string(envs[i].Payload) {
			t.Errorf("entry %d Payload = %s, want %s", i, e.Envelope.Payload, envs[i].Payload)
		}
	}
	if !got[1].ReceivedAt.Equal(at.Add(time.Second)) {
		t.Errorf("ReceivedAt = %v, want %v", got[1].ReceivedAt, at.Add(time.Second))
	}
}

func TestStore_Diagnostics(t *testing.T) {
	store := newStore(t)
	diags := []domain.Diagnostic{
		{Key: 3, ID: "x", Kind: domain.DiagDanglingGroup, Detail: `group "g" not found`},
		{Kind: domain.DiagUnknownMessage, Detail: "unknown message type"},
	}
	if err := store.RecordDiagnostics("r1", diags); err != nil {
		t.Fatal(err)
	}

	got, err := store.Diagnostics("r1")
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d diagnostics, want 2", len(got))
	}
	if got[0] != diags[0] {
		t.Errorf("diagnostic = %+v, want %+v", got[0], diags[0])
	}
}

func TestStore_RunsAndPrune(t *testing.T) {
	store := newStore(t)
	old := time.Date(2000, 1, 1, 0, 0, 0, 0, time.UTC)
	recent := old.Add(30 * 24 * time.Hour)
	env := protocol.EnvelopeRaw{Type: protocol.TypeCommandAdd, Payload: json.RawMessage(`{}`)}

	store.RecordEnvelope("old", env, old)
	store.RecordEnvelope("old", env, old.Add(time.Minute))
	store.RecordEnvelope("new", env, recent)

	runs, err := store.Runs()
	if err != nil {
		t.Fatal(err)
	}
	if len(runs) != 2 || runs[0].RunID != "old" || runs[0].Envelopes != 2 {
		t.Errorf("Runs = %+v", runs)
	}

	n, err := store.Prune(recent.Add(-time.Hour))
	if err != nil {
		t.Fatal(err)
	}
	if n != 2 {
		t.Errorf("pruned %d, want 2", n)
	}
	runs, _ = store.Runs()
	if len(runs) != 1 || runs[0].RunID != "new" {
		t.Errorf("Runs after prune = %+v", runs)
	}
}

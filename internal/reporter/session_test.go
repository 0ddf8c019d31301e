package reporter

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/hochfrequenz/live-reporter/internal/domain"
	"github.com/hochfrequenz/live-reporter/internal/protocol"
	"github.com/hochfrequenz/live-reporter/internal/schedule"
)

var t0 = time.Date(2000, 1, 1, 0, 0, 0, 0, time.UTC)

func env(typ, payload string) protocol.EnvelopeRaw {
	return protocol.EnvelopeRaw{Type: typ, Payload: json.RawMessage(payload)}
}

type sent struct {
	envs []protocol.Envelope
}

func (s *sent) Send(env protocol.Envelope) { s.envs = append(s.envs, env) }

func newSession(t *testing.T) (*Session, *schedule.Manual, *sent) {
	t.Helper()
	sched := schedule.NewManual(t0)
	s := New(Options{}, sched)
	out := &sent{}
	s.AddOutbound(out)
	return s, sched, out
}

func keyOf(t *testing.T, v *View, id string) domain.Key {
	t.Helper()
	for _, row := range v.Rows() {
		if row.Node.ID == id {
			return row.Node.Key
		}
	}
	t.Fatalf("no visible node with id %q", id)
	return 0
}

func TestSession_AddCommands(t *testing.T) {
	s, _, _ := newSession(t)

	s.Handle(env(protocol.TypeCommandAdd, `{"id": 1, "name": "visit", "message": "http://localhost:3000", "state": "passed"}`))
	s.Handle(env(protocol.TypeCommandAdd, `{"id": 2, "name": "xhr", "event": true, "message": "GET /users"}`))
	s.Handle(env(protocol.TypeCommandAdd, `{"id": 3, "name": "get", "message": "#exists", "state": "passed"}`))

	v := s.View()
	if v.Len() != 3 {
		t.Fatalf("Len = %d, want 3", v.Len())
	}
	numbers := []int{1, 0, 2}
	for i, n := range v.Nodes {
		if n.Number != numbers[i] {
			t.Errorf("node %d Number = %d, want %d", i, n.Number, numbers[i])
		}
	}
	if v.Summary.Total != 3 || v.Summary.Events != 1 {
		t.Errorf("Summary = %+v", v.Summary)
	}
}

func TestSession_UpdateIsIdempotent(t *testing.T) {
	s, _, _ := newSession(t)
	s.Handle(env(protocol.TypeCommandAdd, `{"id": "a", "name": "get", "message": "#el"}`))

	update := env(protocol.TypeCommandUpdate, `{"id": "a", "state": "failed", "num_elements": 0, "visible": false}`)
	s.Handle(update)
	once, _ := json.Marshal(s.View().Nodes)
	s.Handle(update)
	twice, _ := json.Marshal(s.View().Nodes)

	if string(once) != string(twice) {
		t.Errorf("second update changed the view:\n%s\n%s", once, twice)
	}
	if s.View().Nodes[0].State != domain.StateFailed {
		t.Errorf("State = %s, want failed", s.View().Nodes[0].State)
	}
	if s.View().Summary.Diagnostics != 0 {
		t.Errorf("Diagnostics = %d, want 0", s.View().Summary.Diagnostics)
	}
}

func TestSession_RejectsTransitionFromTerminal(t *testing.T) {
	s, _, _ := newSession(t)
	s.Handle(env(protocol.TypeCommandAdd, `{"id": "a", "name": "get", "state": "passed"}`))
	s.Handle(env(protocol.TypeCommandUpdate, `{"id": "a", "state": "failed"}`))

	v := s.View()
	if v.Nodes[0].State != domain.StatePassed {
		t.Errorf("State = %s, want passed", v.Nodes[0].State)
	}
	if len(v.Diagnostics) != 1 || v.Diagnostics[0].Kind != domain.DiagRejectedTransition {
		t.Errorf("Diagnostics = %v", v.Diagnostics)
	}
}

func TestSession_DiagnosticsAreNotFatal(t *testing.T) {
	s, _, _ := newSession(t)
	s.Handle(env(protocol.TypeCommandAdd, `{"id": "x", "name": "get", "group": "missing"}`))
	s.Handle(env(protocol.TypeCommandUpdate, `{"id": "nope", "state": "passed"}`))
	s.Handle(env("command:remove", `{}`))
	s.Handle(env(protocol.TypeCommandAdd, `[1, 2]`))

	v := s.View()
	if v.Len() != 1 {
		t.Errorf("Len = %d, want 1", v.Len())
	}
	kinds := map[domain.DiagnosticKind]bool{}
	for _, d := range v.Diagnostics {
		kinds[d.Kind] = true
	}
	for _, want := range []domain.DiagnosticKind{
		domain.DiagDanglingGroup, domain.DiagUnknownCommand,
		domain.DiagUnknownMessage, domain.DiagMalformedRecord,
	} {
		if !kinds[want] {
			t.Errorf("missing diagnostic %s in %v", want, v.Diagnostics)
		}
	}
}

func TestSession_GroupFreezesWhenSettled(t *testing.T) {
	s, _, _ := newSession(t)
	s.Handle(env(protocol.TypeCommandAdd, `{"id": "g", "name": "within"}`))
	s.Handle(env(protocol.TypeCommandAdd, `{"id": "c1", "name": "get", "group": "g", "state": "passed"}`))
	s.Handle(env(protocol.TypeCommandUpdate, `{"id": "g", "state": "passed"}`))
	s.Handle(env(protocol.TypeCommandAdd, `{"id": "c2", "name": "get", "group": "g", "state": "failed"}`))

	if !s.View().Nodes[0].Open {
		t.Error("settled group should keep its frozen open state")
	}
}

func TestSession_UnsettledGroupFollowsChildren(t *testing.T) {
	s, _, _ := newSession(t)
	s.Handle(env(protocol.TypeCommandAdd, `{"id": "g", "name": "within", "state": "passed"}`))
	s.Handle(env(protocol.TypeCommandAdd, `{"id": "c1", "name": "get", "group": "g", "state": "passed"}`))
	if !s.View().Nodes[0].Open {
		t.Fatal("group with passing children should be open")
	}

	s.Handle(env(protocol.TypeCommandAdd, `{"id": "c2", "name": "get", "group": "g", "state": "failed"}`))
	g := s.View().Nodes[0]
	if g.Open || g.HiddenCount != 2 {
		t.Errorf("Open = %v HiddenCount = %d, want false 2", g.Open, g.HiddenCount)
	}

	s.Signal(protocol.SignalMessage{Kind: protocol.SignalToggle, Key: uint64(g.Key)})
	if !s.View().Nodes[0].Open {
		t.Error("toggle should open the group")
	}
}

func TestSession_ToggleDuplicates(t *testing.T) {
	s, _, _ := newSession(t)
	for i := 0; i < 3; i++ {
		s.Handle(env(protocol.TypeCommandAdd, `{"name": "xhr", "event": true, "message": "GET /dup"}`))
	}
	head := s.View().Nodes[0]
	if head.DuplicateCount != 3 {
		t.Fatalf("DuplicateCount = %d, want 3", head.DuplicateCount)
	}

	s.Signal(protocol.SignalMessage{Kind: protocol.SignalToggle, Key: uint64(head.Key)})
	if got := s.View().Len(); got != 3 {
		t.Errorf("expanded Len = %d, want 3", got)
	}
}

func TestSession_RunReadySameRunKeepsOverrides(t *testing.T) {
	s, _, _ := newSession(t)
	snapshot := `{"run_id": "r1", "commands": [
		{"id": "g", "name": "within", "state": "passed"},
		{"id": "c", "name": "get", "group": "g", "state": "passed"},
		{"id": "d", "name": "get", "state": "passed"}
	]}`
	s.Handle(env(protocol.TypeRunReady, snapshot))
	g := keyOf(t, s.View(), "g")
	s.Signal(protocol.SignalMessage{Kind: protocol.SignalToggle, Key: uint64(g)})
	s.Signal(protocol.SignalMessage{Kind: protocol.SignalClick, Key: uint64(keyOf(t, s.View(), "d"))})

	s.Handle(env(protocol.TypeRunReady, snapshot))
	v := s.View()
	if v.Nodes[0].Open {
		t.Error("toggle should survive a snapshot of the same run")
	}
	if v.Pinned == 0 || v.Pinned != keyOf(t, v, "d") {
		t.Errorf("Pinned = %d, want the new key of d", v.Pinned)
	}
	if v.Nodes[0].Key == g {
		t.Error("snapshot should assign fresh keys")
	}
}

func TestSession_RunReadyNewRunResets(t *testing.T) {
	s, _, _ := newSession(t)
	s.Handle(env(protocol.TypeRunReady, `{"run_id": "r1", "commands": [
		{"id": "g", "name": "within", "state": "passed"},
		{"id": "c", "name": "get", "group": "g", "state": "passed"}
	]}`))
	s.Signal(protocol.SignalMessage{Kind: protocol.SignalToggle, Key: uint64(keyOf(t, s.View(), "g"))})
	s.Signal(protocol.SignalMessage{Kind: protocol.SignalClick, Key: uint64(keyOf(t, s.View(), "g"))})
	s.Handle(env(protocol.TypeCommandUpdate, `{"id": "zzz"}`))

	s.Handle(env(protocol.TypeRunReady, `{"run_id": "r2", "commands": [
		{"id": "g", "name": "within", "state": "passed"},
		{"id": "c", "name": "get", "group": "g", "state": "passed"}
	]}`))
	v := s.View()
	if v.Run.ID != "r2" {
		t.Errorf("Run.ID = %q, want r2", v.Run.ID)
	}
	if !v.Nodes[0].Open || v.Pinned != 0 {
		t.Errorf("Open = %v Pinned = %d, want overrides discarded", v.Nodes[0].Open, v.Pinned)
	}
	if len(v.Diagnostics) != 0 {
		t.Errorf("Diagnostics = %v, want none after reset", v.Diagnostics)
	}
}

func TestSession_RunStartThenReadyNewRunResets(t *testing.T) {
	tree := `[
		{"id": "g", "name": "within", "state": "passed"},
		{"id": "c", "name": "get", "group": "g", "state": "passed"}
	]`
	tests := []struct {
		name  string
		ready string
	}{
		{"explicit id", `{"run_id": "r2", "commands": ` + tree + `}`},
		{"id from run:start", `{"commands": ` + tree + `}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, _, _ := newSession(t)
			s.Handle(env(protocol.TypeRunStart, `{"run_id": "r1", "spec": "a.cy.ts"}`))
			s.Handle(env(protocol.TypeRunReady, `{"run_id": "r1", "commands": `+tree+`}`))
			s.Signal(protocol.SignalMessage{Kind: protocol.SignalToggle, Key: uint64(keyOf(t, s.View(), "g"))})
			s.Signal(protocol.SignalMessage{Kind: protocol.SignalClick, Key: uint64(keyOf(t, s.View(), "g"))})
			s.Handle(env(protocol.TypeCommandUpdate, `{"id": "zzz"}`))

			s.Handle(env(protocol.TypeRunStart, `{"run_id": "r2", "spec": "b.cy.ts"}`))
			s.Handle(env(protocol.TypeRunReady, tt.ready))
			v := s.View()
			if v.Run.ID != "r2" || v.Run.Spec != "b.cy.ts" {
				t.Errorf("Run = %+v, want r2 with spec b.cy.ts", v.Run)
			}
			if !v.Nodes[0].Open || v.Pinned != 0 {
				t.Errorf("Open = %v Pinned = %d, want overrides discarded", v.Nodes[0].Open, v.Pinned)
			}
			if len(v.Diagnostics) != 0 {
				t.Errorf("Diagnostics = %v, want none after reset", v.Diagnostics)
			}
		})
	}
}

func TestSession_RunStartGeneratesID(t *testing.T) {
	s, _, _ := newSession(t)
	s.Handle(env(protocol.TypeRunStart, `{"spec": "commands.cy.ts", "started_at": "2000-01-01T00:00:00Z"}`))

	run := s.View().Run
	if run.ID == "" || run.Spec != "commands.cy.ts" {
		t.Errorf("Run = %+v", run)
	}
	if run.StartedAt == nil || !run.StartedAt.Equal(t0) {
		t.Errorf("StartedAt = %v, want %v", run.StartedAt, t0)
	}
}

func TestSession_ClickEmitsToHost(t *testing.T) {
	s, _, out := newSession(t)
	s.Handle(env(protocol.TypeCommandAdd, `{"id": 1, "name": "visit", "state": "passed"}`))
	s.Handle(env(protocol.TypeCommandAdd, `{"id": 2, "name": "get", "message": "#exists", "state": "passed"}`))

	key := keyOf(t, s.View(), "2")
	s.Signal(protocol.SignalMessage{Kind: protocol.SignalClick, Key: uint64(key)})

	if len(out.envs) != 2 {
		t.Fatalf("sent %d envelopes, want 2", len(out.envs))
	}
	if out.envs[0].Type != protocol.TypeConsoleLog || out.envs[1].Type != protocol.TypeShowPreview {
		t.Errorf("types = %s, %s", out.envs[0].Type, out.envs[1].Type)
	}
	ref := out.envs[0].Payload.(protocol.CommandRefMessage)
	if ref.Number != 2 || ref.ID != "2" {
		t.Errorf("payload = %+v, want number 2 id 2", ref)
	}

	v := s.View()
	if v.Pinned != key || v.Tooltip == nil || v.Tooltip.Text != "Printed output to your console" {
		t.Errorf("Pinned = %d Tooltip = %+v", v.Pinned, v.Tooltip)
	}
}

func TestSession_HoverTimerRepublishes(t *testing.T) {
	s, sched, out := newSession(t)
	s.Handle(env(protocol.TypeCommandAdd, `{"id": 1, "name": "visit", "state": "passed"}`))
	key := s.View().Nodes[0].Key

	s.Signal(protocol.SignalMessage{Kind: protocol.SignalMouseOver, Key: uint64(key)})
	if s.View().Hovered != key {
		t.Errorf("Hovered = %d, want %d", s.View().Hovered, key)
	}
	version := s.View().Version

	sched.Advance(50 * time.Millisecond)
	if len(out.envs) != 1 || out.envs[0].Type != protocol.TypeShowPreview {
		t.Fatalf("sent = %+v, want one show-preview", out.envs)
	}
	if s.View().Version <= version {
		t.Error("timer callback should publish a new view")
	}
}

func TestSession_SignalsForHiddenNodesAreIgnored(t *testing.T) {
	s, _, out := newSession(t)
	s.Handle(env(protocol.TypeCommandAdd, `{"id": "g", "name": "within"}`))
	s.Handle(env(protocol.TypeCommandAdd, `{"id": "c", "name": "get", "group": "g", "state": "failed"}`))

	hidden := s.View().Nodes[0].Key + 1
	s.Signal(protocol.SignalMessage{Kind: protocol.SignalClick, Key: uint64(hidden)})
	s.Signal(protocol.SignalMessage{Kind: protocol.SignalToggle, Key: uint64(hidden)})
	s.Signal(protocol.SignalMessage{Kind: "drag", Key: uint64(hidden)})

	if len(out.envs) != 0 || s.View().Pinned != 0 {
		t.Errorf("hidden node reacted: sent=%v pinned=%d", out.envs, s.View().Pinned)
	}
}

func TestSession_SignalEnvelope(t *testing.T) {
	s, _, out := newSession(t)
	s.Handle(env(protocol.TypeCommandAdd, `{"id": 1, "name": "visit", "state": "passed"}`))
	key := s.View().Nodes[0].Key

	data, _ := json.Marshal(protocol.SignalMessage{Kind: protocol.SignalClick, Key: uint64(key)})
	s.Handle(protocol.EnvelopeRaw{Type: protocol.TypeSignal, Payload: data})

	if len(out.envs) != 2 {
		t.Errorf("sent %d envelopes, want 2", len(out.envs))
	}
}

func TestSession_ProgressForPendingCommands(t *testing.T) {
	s, sched, _ := newSession(t)
	started := t0.Add(-1000 * time.Millisecond).Format(time.RFC3339Nano)
	s.Handle(env(protocol.TypeCommandAdd, `{"id": 1, "name": "get", "timeout": 4000, "wall_clock_started_at": "`+started+`"}`))

	p := s.View().Nodes[0].Progress
	if p == nil || p.DurationMs != 3000 || p.Scale != 0.75 {
		t.Fatalf("Progress = %+v, want 3000ms 0.75", p)
	}

	sched.Advance(2 * time.Second)
	s.Refresh()
	p = s.View().Nodes[0].Progress
	if p.DurationMs != 1000 || p.Scale != 0.25 {
		t.Errorf("Progress = %+v, want 1000ms 0.25", p)
	}
}

type memRecorder struct {
	envs  []string
	diags int
}

func (m *memRecorder) RecordEnvelope(runID string, env protocol.EnvelopeRaw, at time.Time) error {
	m.envs = append(m.envs, env.Type)
	return nil
}

func (m *memRecorder) RecordDiagnostics(runID string, diags []domain.Diagnostic) error {
	m.diags += len(diags)
	return nil
}

func TestSession_Recorder(t *testing.T) {
	s, _, _ := newSession(t)
	rec := &memRecorder{}
	s.SetRecorder(rec)

	s.Handle(env(protocol.TypeRunStart, `{"run_id": "r1"}`))
	s.Handle(env(protocol.TypeCommandAdd, `{"id": 1, "name": "get", "group": "nope"}`))
	s.Signal(protocol.SignalMessage{Kind: protocol.SignalClick, Key: 1})

	if len(rec.envs) != 2 {
		t.Errorf("journaled %v, want run:start and command:add", rec.envs)
	}
	if rec.diags != 1 {
		t.Errorf("journaled %d diagnostics, want 1", rec.diags)
	}
}

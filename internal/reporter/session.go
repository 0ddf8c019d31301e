// Package reporter runs a reporting session: it applies host events and
// renderer signals in arrival order to the command tree, keeps the derived
// display and interaction state, and publishes immutable views.
package reporter

import (
	"encoding/json"
	"fmt"
	"log"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/hochfrequenz/live-reporter/internal/config"
	"github.com/hochfrequenz/live-reporter/internal/display"
	"github.com/hochfrequenz/live-reporter/internal/domain"
	"github.com/hochfrequenz/live-reporter/internal/ingest"
	"github.com/hochfrequenz/live-reporter/internal/interaction"
	"github.com/hochfrequenz/live-reporter/internal/observer"
	"github.com/hochfrequenz/live-reporter/internal/protocol"
	"github.com/hochfrequenz/live-reporter/internal/schedule"
	"github.com/hochfrequenz/live-reporter/internal/tree"
)

// maxDiagnostics bounds the diagnostics kept on the view
const maxDiagnostics = 200

// Options configures a session
type Options struct {
	HoverDelay          time.Duration
	TooltipDelay        time.Duration
	ScaledMessageLength int
	InboxSize           int
}

// OptionsFromConfig converts the [reporter] config section
func OptionsFromConfig(cfg config.ReporterConfig) Options {
	return Options{
		HoverDelay:          cfg.HoverDelay.Duration,
		TooltipDelay:        cfg.TooltipDelay.Duration,
		ScaledMessageLength: cfg.ScaledMessageLength,
		InboxSize:           cfg.InboxSize,
	}
}

// Outbound receives commands addressed to the host
type Outbound interface {
	Send(env protocol.Envelope)
}

// OutboundFunc adapts a function to Outbound
type OutboundFunc func(env protocol.Envelope)

func (f OutboundFunc) Send(env protocol.Envelope) { f(env) }

// Recorder journals inbound envelopes and the diagnostics they caused
type Recorder interface {
	RecordEnvelope(runID string, env protocol.EnvelopeRaw, at time.Time) error
	RecordDiagnostics(runID string, diags []domain.Diagnostic) error
}

// Session owns one command tree and everything derived from it. Handle and
// Signal must be called from a single goroutine; View is safe from any.
type Session struct {
	id    string
	opts  Options
	sched schedule.Scheduler

	norm    *ingest.Normalizer
	tree    *tree.Tree
	state   *display.State
	ctrl    *interaction.Controller
	obs     *observer.Observer
	run     domain.RunInfo
	treeRun string // run id that built the current tree
	diags   []domain.Diagnostic
	ndiags  int
	proj    *display.Projection
	version uint64

	outbound  []Outbound
	listeners []func(*View)
	recorder  Recorder

	view atomic.Pointer[View]
}

// New creates a session whose timers run on sched
func New(opts Options, sched schedule.Scheduler) *Session {
	s := &Session{
		id:    uuid.NewString(),
		opts:  opts,
		sched: sched,
		norm:  ingest.New(),
		tree:  tree.New(),
		state: display.NewState(),
		obs:   observer.New(),
	}
	s.ctrl = interaction.New(
		interaction.Options{HoverDelay: opts.HoverDelay, TooltipDelay: opts.TooltipDelay},
		publishingScheduler{Scheduler: sched, after: s.publish},
		nodeSource{s},
		interaction.EmitterFunc(s.emit),
	)
	s.publish()
	return s
}

// ID returns the session id
func (s *Session) ID() string { return s.id }

// AddOutbound registers a receiver for host commands. Call before the
// session starts handling events.
func (s *Session) AddOutbound(o Outbound) {
	s.outbound = append(s.outbound, o)
}

// Subscribe registers fn to be called with every published view. Call
// before the session starts handling events; fn runs on the session's
// goroutine and must not block.
func (s *Session) Subscribe(fn func(*View)) {
	s.listeners = append(s.listeners, fn)
}

// SetRecorder journals every inbound envelope through r
func (s *Session) SetRecorder(r Recorder) {
	s.recorder = r
}

// View returns the latest published view
func (s *Session) View() *View {
	return s.view.Load()
}

// Handle applies one envelope. Host events change the tree; signal
// envelopes are forwarded to Signal.
func (s *Session) Handle(env protocol.EnvelopeRaw) {
	if env.Type == protocol.TypeSignal {
		var sig protocol.SignalMessage
		if err := json.Unmarshal(env.Payload, &sig); err != nil {
			log.Printf("[reporter] Bad signal payload: %v", err)
			return
		}
		s.Signal(sig)
		return
	}

	var diags []domain.Diagnostic
	switch env.Type {
	case protocol.TypeRunReady:
		diags = s.runReady(env.Payload)
	case protocol.TypeRunStart:
		diags = s.runStart(env.Payload)
	case protocol.TypeCommandAdd:
		diags = s.add(env.Payload)
	case protocol.TypeCommandUpdate:
		diags = s.update(env.Payload)
	default:
		diags = []domain.Diagnostic{{
			Kind:   domain.DiagUnknownMessage,
			Detail: fmt.Sprintf("unknown message type %q", env.Type),
		}}
	}

	s.record(env, diags)
	s.addDiagnostics(diags)
	s.publish()
}

// Signal applies a renderer interaction signal. Signals naming nodes that
// are not visible are ignored.
func (s *Session) Signal(sig protocol.SignalMessage) {
	key := domain.Key(sig.Key)
	switch sig.Kind {
	case protocol.SignalMouseOver:
		s.ctrl.MouseOver(key, sig.Part)
	case protocol.SignalMouseOut:
		s.ctrl.MouseOut(key, sig.Part)
	case protocol.SignalClick:
		s.ctrl.Click(key)
	case protocol.SignalToggle:
		if _, visible := s.proj.Find(key); !visible {
			return
		}
		if !s.state.Toggle(s.tree, key) {
			return
		}
	default:
		return
	}
	s.publish()
}

// Refresh republishes the view at the current time so time-dependent
// values such as overdue commands and progress are recomputed
func (s *Session) Refresh() {
	s.publish()
}

func (s *Session) runReady(payload json.RawMessage) []domain.Diagnostic {
	runID, records, diags := s.norm.RunReady(payload)
	next, tdiags := tree.Build(records)
	diags = append(diags, tdiags...)

	// An id-less snapshot belongs to the run announced by run:start, if any
	if runID == "" {
		runID = s.run.ID
	}

	prev := s.tree
	if runID == s.treeRun {
		s.state = s.state.Remap(prev, next)
		s.ctrl.Remap(func(k domain.Key) (domain.Key, bool) {
			return display.RemapKey(prev, next, k)
		})
	} else {
		log.Printf("[reporter] New run %s replaces %q", runID, s.treeRun)
		s.state = display.NewState()
		s.ctrl.Reset()
		s.obs.Reset()
		s.diags = nil
		s.ndiags = 0
		if s.run.ID != runID {
			s.run = domain.RunInfo{ID: runID}
		}
	}
	s.treeRun = runID
	s.tree = next
	return diags
}

func (s *Session) runStart(payload json.RawMessage) []domain.Diagnostic {
	info, diags := s.norm.RunStart(payload)
	if info.ID == "" {
		info.ID = s.run.ID
	}
	if info.ID == "" {
		info.ID = uuid.NewString()
	}
	s.run = info
	return diags
}

func (s *Session) add(payload json.RawMessage) []domain.Diagnostic {
	rec, diags, ok := s.norm.Record(payload)
	if !ok {
		return diags
	}
	return append(diags, s.tree.Insert(rec)...)
}

func (s *Session) update(payload json.RawMessage) []domain.Diagnostic {
	id, patch, diags, ok := s.norm.Update(payload)
	if !ok {
		return diags
	}
	change, tdiags := s.tree.Update(id, patch)
	diags = append(diags, tdiags...)
	if change.Settled {
		rec, _ := s.tree.Get(change.Key)
		s.obs.RecordSettled(rec, s.sched.Now())
		if len(s.tree.ChildrenOf(change.Key)) > 0 {
			s.state.Freeze(s.tree, change.Key)
		}
	}
	return diags
}

func (s *Session) addDiagnostics(diags []domain.Diagnostic) {
	s.ndiags += len(diags)
	s.diags = append(s.diags, diags...)
	if over := len(s.diags) - maxDiagnostics; over > 0 {
		s.diags = append([]domain.Diagnostic(nil), s.diags[over:]...)
	}
}

func (s *Session) record(env protocol.EnvelopeRaw, diags []domain.Diagnostic) {
	if s.recorder == nil {
		return
	}
	if err := s.recorder.RecordEnvelope(s.run.ID, env, s.sched.Now()); err != nil {
		log.Printf("[reporter] Failed to journal %s: %v", env.Type, err)
	}
	if len(diags) == 0 {
		return
	}
	if err := s.recorder.RecordDiagnostics(s.run.ID, diags); err != nil {
		log.Printf("[reporter] Failed to journal diagnostics: %v", err)
	}
}

func (s *Session) publish() {
	now := s.sched.Now()
	proj := display.Project(s.tree, s.state, display.Options{
		Now:                 now,
		ScaledMessageLength: s.opts.ScaledMessageLength,
	})
	// The controller is not constructed yet during the first publish
	var pinned, hovered domain.Key
	var tooltip *interaction.Tooltip
	if s.ctrl != nil {
		pinned, hovered = s.ctrl.Pinned(), s.ctrl.Hovered()
		if t, ok := s.ctrl.Tooltip(); ok {
			tooltip = &t
		}
	}
	proj.Mark(pinned, hovered)
	s.proj = proj
	s.version++

	v := &View{
		Session:     s.id,
		Version:     s.version,
		At:          now,
		Run:         s.run,
		Nodes:       proj.Nodes,
		Summary:     s.obs.Summarize(s.tree, now, s.ndiags),
		Diagnostics: append([]domain.Diagnostic(nil), s.diags...),
		Pinned:      pinned,
		Hovered:     hovered,
		Tooltip:     tooltip,
		projection:  proj,
	}
	s.view.Store(v)
	for _, fn := range s.listeners {
		fn(v)
	}
}

func (s *Session) emit(cmd interaction.Command) {
	env := protocol.Envelope{
		Type:    cmd.Type,
		Payload: protocol.CommandRefMessage{Number: cmd.Number, ID: cmd.ID},
	}
	for _, o := range s.outbound {
		o.Send(env)
	}
}

// nodeSource resolves controller lookups against the latest projection
type nodeSource struct {
	s *Session
}

func (n nodeSource) Find(key domain.Key) (*display.Node, bool) {
	return n.s.proj.Find(key)
}

func (n nodeSource) Tooltip(key domain.Key, part string) (string, bool) {
	return n.s.proj.Tooltip(key, part)
}

// publishingScheduler republishes the view after each controller timer
type publishingScheduler struct {
	schedule.Scheduler
	after func()
}

func (p publishingScheduler) After(d time.Duration, fn func()) schedule.Token {
	return p.Scheduler.After(d, func() {
		fn()
		p.after()
	})
}

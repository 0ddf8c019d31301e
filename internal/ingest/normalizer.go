// Package ingest turns loosely typed host records into normalized command
// records. Nothing here fails hard: malformed optional fields are dropped and
// reported as diagnostics.
package ingest

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"time"

	"github.com/hochfrequenz/live-reporter/internal/domain"
)

// maxTimeoutMs is the largest timeout that fits a time.Duration
const maxTimeoutMs = math.MaxInt64 / int64(time.Millisecond)

// Normalizer assigns arrival sequence numbers and applies field defaults.
// It is not safe for concurrent use; the reporter session serializes access.
type Normalizer struct {
	last domain.Key
}

// New creates a Normalizer whose first key is 1
func New() *Normalizer {
	return &Normalizer{}
}

// NextKey reserves the next arrival sequence number
func (n *Normalizer) NextKey() domain.Key {
	n.last++
	return n.last
}

// Record normalizes one add-command payload. ok is false only when the
// payload is not a JSON object at all.
func (n *Normalizer) Record(raw json.RawMessage) (rec domain.CommandRecord, diags []domain.Diagnostic, ok bool) {
	f, err := decodeFields(raw)
	if err != nil {
		return domain.CommandRecord{}, []domain.Diagnostic{{
			Kind:   domain.DiagMalformedRecord,
			Detail: fmt.Sprintf("command payload: %v", err),
		}}, false
	}

	rec = domain.CommandRecord{
		Key:   n.NextKey(),
		State: domain.StatePending,
		Type:  domain.TypeParent,
	}
	d := &diagSink{key: rec.Key}

	if v, name, found := f.lookup("id"); found {
		id, err := asIdentifier(v)
		d.field(name, err)
		rec.ID = id
	}
	d.id = rec.ID

	if v, name, found := f.lookup("name"); found {
		s, err := asString(v)
		d.field(name, err)
		rec.Name = s
	}
	if rec.Name == "" {
		d.add(domain.DiagMissingName, "command has no name")
	}

	if v, name, found := f.lookup("message"); found {
		s, err := asString(v)
		d.field(name, err)
		rec.Message = s
	}

	if v, name, found := f.lookup("state"); found {
		s, err := asString(v)
		if err == nil {
			if st, known := domain.ParseState(s); known {
				rec.State = st
			} else {
				err = fmt.Errorf("unknown state %q", s)
			}
		}
		d.field(name, err)
	}

	if v, name, found := f.lookup("type"); found {
		s, err := asString(v)
		if err == nil {
			if ct, known := domain.ParseCommandType(s); known {
				rec.Type = ct
			} else {
				err = fmt.Errorf("unknown type %q", s)
			}
		}
		d.field(name, err)
	}

	if v, name, found := f.lookup("event", "is_event", "isEvent"); found {
		b, err := asBool(v)
		d.field(name, err)
		rec.IsEvent = b
	}

	if v, name, found := f.lookup("group"); found {
		g, err := asIdentifier(v)
		d.field(name, err)
		rec.Group = g
	}

	if v, name, found := f.lookup("group_level", "groupLevel"); found {
		lvl, err := asInt(v)
		if err == nil && lvl < 0 {
			err = fmt.Errorf("negative group level %d", lvl)
			lvl = 0
		}
		d.field(name, err)
		rec.GroupLevel = lvl
	}

	if v, name, found := f.lookup("timeout"); found {
		ms, err := asInt(v)
		switch {
		case err != nil:
		case ms < 0:
			err = fmt.Errorf("negative timeout %d", ms)
			ms = 0
		case int64(ms) > maxTimeoutMs:
			err = fmt.Errorf("timeout %d out of range", ms)
			ms = 0
		}
		d.field(name, err)
		rec.Timeout = time.Duration(ms) * time.Millisecond
	}

	if v, name, found := f.lookup("wall_clock_started_at", "wallClockStartedAt"); found {
		ts, err := asTime(v)
		d.field(name, err)
		rec.WallClockStartedAt = ts
	}

	if v, name, found := f.lookup("render_props", "renderProps"); found {
		props, err := renderProps(v)
		d.field(name, err)
		rec.RenderProps = props
	}

	if v, name, found := f.lookup("num_elements", "numElements"); found {
		num, err := asInt(v)
		if err == nil && num < 0 {
			err = fmt.Errorf("negative element count %d", num)
		}
		d.field(name, err)
		if err == nil {
			rec.NumElements = &num
		}
	}

	if v, name, found := f.lookup("visible"); found {
		b, err := asBool(v)
		d.field(name, err)
		if err == nil {
			rec.Visible = &b
		}
	}

	return rec, d.diags, true
}

// Update normalizes a partial-update payload into the target id and patch
func (n *Normalizer) Update(raw json.RawMessage) (id string, patch domain.Patch, diags []domain.Diagnostic, ok bool) {
	f, err := decodeFields(raw)
	if err != nil {
		return "", domain.Patch{}, []domain.Diagnostic{{
			Kind:   domain.DiagMalformedRecord,
			Detail: fmt.Sprintf("update payload: %v", err),
		}}, false
	}

	d := &diagSink{}
	v, _, found := f.lookup("id")
	if found {
		id, err = asIdentifier(v)
	}
	if !found || err != nil || id == "" {
		return "", domain.Patch{}, []domain.Diagnostic{{
			Kind:   domain.DiagMalformedRecord,
			Detail: "update without a usable id",
		}}, false
	}
	d.id = id

	if v, name, found := f.lookup("state"); found {
		s, err := asString(v)
		if err == nil {
			if st, known := domain.ParseState(s); known {
				patch.State = &st
			} else {
				err = fmt.Errorf("unknown state %q", s)
			}
		}
		d.field(name, err)
	}
	if v, name, found := f.lookup("message"); found {
		s, err := asString(v)
		d.field(name, err)
		if err == nil {
			patch.Message = &s
		}
	}
	if v, name, found := f.lookup("num_elements", "numElements"); found {
		num, err := asInt(v)
		d.field(name, err)
		if err == nil && num >= 0 {
			patch.NumElements = &num
		}
	}
	if v, name, found := f.lookup("visible"); found {
		b, err := asBool(v)
		d.field(name, err)
		if err == nil {
			patch.Visible = &b
		}
	}
	if v, name, found := f.lookup("render_props", "renderProps"); found {
		props, err := renderProps(v)
		d.field(name, err)
		if err == nil {
			patch.RenderProps = &props
		}
	}

	return id, patch, d.diags, true
}

// RunReady normalizes a run-ready snapshot. Commands that are not objects
// are skipped with a diagnostic; a malformed run id is treated as absent.
func (n *Normalizer) RunReady(raw json.RawMessage) (runID string, records []domain.CommandRecord, diags []domain.Diagnostic) {
	if len(raw) == 0 {
		return "", nil, nil
	}

	var commands []json.RawMessage
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		// A bare array is a snapshot without run id
		if err := json.Unmarshal(trimmed, &commands); err != nil {
			return "", nil, []domain.Diagnostic{{
				Kind:   domain.DiagMalformedRecord,
				Detail: fmt.Sprintf("run:ready payload: %v", err),
			}}
		}
	} else {
		f, err := decodeFields(raw)
		if err != nil {
			return "", nil, []domain.Diagnostic{{
				Kind:   domain.DiagMalformedRecord,
				Detail: fmt.Sprintf("run:ready payload: %v", err),
			}}
		}
		d := &diagSink{}
		if v, name, found := f.lookup("run_id", "runId"); found {
			id, err := asIdentifier(v)
			d.field(name, err)
			runID = id
		}
		if v, name, found := f.lookup("commands"); found {
			if err := json.Unmarshal(v, &commands); err != nil {
				d.field(name, fmt.Errorf("expected array"))
			}
		}
		diags = d.diags
	}

	records = make([]domain.CommandRecord, 0, len(commands))
	for _, c := range commands {
		rec, d, ok := n.Record(c)
		diags = append(diags, d...)
		if ok {
			records = append(records, rec)
		}
	}
	return runID, records, diags
}

// RunStart normalizes run-start metadata
func (n *Normalizer) RunStart(raw json.RawMessage) (domain.RunInfo, []domain.Diagnostic) {
	var info domain.RunInfo
	if len(raw) == 0 {
		return info, nil
	}
	f, err := decodeFields(raw)
	if err != nil {
		return info, []domain.Diagnostic{{
			Kind:   domain.DiagMalformedRecord,
			Detail: fmt.Sprintf("run:start payload: %v", err),
		}}
	}

	d := &diagSink{}
	if v, name, found := f.lookup("run_id", "runId"); found {
		id, err := asIdentifier(v)
		d.field(name, err)
		info.ID = id
	}
	if v, name, found := f.lookup("spec"); found {
		s, err := asString(v)
		d.field(name, err)
		info.Spec = s
	}
	if v, name, found := f.lookup("started_at", "startedAt"); found {
		ts, err := asTime(v)
		d.field(name, err)
		if err == nil {
			info.StartedAt = &ts
		}
	}
	return info, d.diags
}

func renderProps(raw json.RawMessage) (domain.RenderProps, error) {
	f, err := decodeFields(raw)
	if err != nil {
		return domain.RenderProps{}, fmt.Errorf("expected object")
	}
	var props domain.RenderProps
	if v, _, found := f.lookup("indicator"); found {
		s, err := asString(v)
		if err != nil {
			return domain.RenderProps{}, err
		}
		props.Indicator = domain.Indicator(s)
	}
	if v, _, found := f.lookup("message"); found {
		s, err := asString(v)
		if err != nil {
			return domain.RenderProps{}, err
		}
		props.Message = s
	}
	return props, nil
}

type diagSink struct {
	key   domain.Key
	id    string
	diags []domain.Diagnostic
}

func (d *diagSink) add(kind domain.DiagnosticKind, detail string) {
	d.diags = append(d.diags, domain.Diagnostic{Key: d.key, ID: d.id, Kind: kind, Detail: detail})
}

func (d *diagSink) field(name string, err error) {
	if err != nil {
		d.add(domain.DiagMalformedField, fmt.Sprintf("%s: %v", name, err))
	}
}

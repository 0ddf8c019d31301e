package observer

import (
	"testing"
	"time"

	"github.com/hochfrequenz/live-reporter/internal/domain"
	"github.com/hochfrequenz/live-reporter/internal/tree"
)

var t0 = time.Date(2000, 1, 1, 0, 0, 0, 0, time.UTC)

func pending(key domain.Key, started time.Time, timeout time.Duration) domain.CommandRecord {
	return domain.CommandRecord{
		Key:                key,
		Name:               "get",
		State:              domain.StatePending,
		Timeout:            timeout,
		WallClockStartedAt: started,
	}
}

func TestIsOverdue(t *testing.T) {
	tests := []struct {
		name string
		rec  domain.CommandRecord
		want bool
	}{
		{"past timeout", pending(1, t0.Add(-10*time.Second), 4*time.Second), true},
		{"within timeout", pending(1, t0.Add(-2*time.Second), 4*time.Second), false},
		{"no timeout", pending(1, t0.Add(-time.Hour), 0), false},
		{"no start", pending(1, time.Time{}, 4*time.Second), false},
		{"settled", domain.CommandRecord{Key: 1, State: domain.StateFailed, Timeout: time.Second, WallClockStartedAt: t0.Add(-time.Hour)}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsOverdue(tt.rec, t0); got != tt.want {
				t.Errorf("IsOverdue = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestObserver_Summarize(t *testing.T) {
	tr, _ := tree.Build([]domain.CommandRecord{
		{Key: 1, ID: "1", Name: "visit", State: domain.StatePassed},
		{Key: 2, ID: "2", Name: "get", State: domain.StateFailed},
		{Key: 3, Name: "xhr", IsEvent: true, State: domain.StatePassed},
		pending(4, t0.Add(-10*time.Second), 4*time.Second),
		{Key: 5, ID: "5", Name: "log", State: domain.StateWarn},
	})

	obs := New()
	obs.RecordSettled(domain.CommandRecord{Key: 1, WallClockStartedAt: t0.Add(-5 * time.Minute)}, t0)
	obs.RecordSettled(domain.CommandRecord{Key: 2, WallClockStartedAt: t0.Add(-10 * time.Minute)}, t0)

	s := obs.Summarize(tr, t0, 3)

	if s.Total != 5 || s.Events != 1 {
		t.Errorf("Total = %d Events = %d, want 5 1", s.Total, s.Events)
	}
	if s.Passed != 2 || s.Failed != 1 || s.Pending != 1 || s.Warned != 1 {
		t.Errorf("counts = %+v", s)
	}
	if len(s.Overdue) != 1 || s.Overdue[0] != 4 {
		t.Errorf("Overdue = %v, want [4]", s.Overdue)
	}
	if s.Diagnostics != 3 {
		t.Errorf("Diagnostics = %d, want 3", s.Diagnostics)
	}
	if s.AvgDuration != 7*time.Minute+30*time.Second {
		t.Errorf("AvgDuration = %v, want 7m30s", s.AvgDuration)
	}
}

func TestObserver_RecentlySettled(t *testing.T) {
	obs := New()
	obs.RecordSettled(domain.CommandRecord{Key: 1}, t0.Add(-time.Hour))
	obs.RecordSettled(domain.CommandRecord{Key: 2}, t0.Add(-time.Second))

	got := obs.RecentlySettled(t0, time.Minute)
	if len(got) != 1 || got[0] != 2 {
		t.Errorf("RecentlySettled = %v, want [2]", got)
	}

	obs.Reset()
	if got := obs.RecentlySettled(t0, time.Hour*24); len(got) != 0 {
		t.Errorf("after Reset got %v", got)
	}
}

package domain

import "time"

// Key identifies a record inside one reporter session. It is the arrival
// sequence number assigned on ingestion and never reused.
type Key uint64

// RenderProps carries auxiliary display data supplied by the host
type RenderProps struct {
	Indicator Indicator `json:"indicator,omitempty"`
	Message   string    `json:"message,omitempty"`
}

// CommandRecord is one reported unit of test execution
type CommandRecord struct {
	Key                Key
	ID                 string // host identifier, may be empty or reused
	Name               string
	Message            string
	State              State
	Type               CommandType
	IsEvent            bool
	Group              string // ID of the command this one is nested under
	GroupLevel         int
	Timeout            time.Duration
	WallClockStartedAt time.Time
	RenderProps        RenderProps
	NumElements        *int
	Visible            *bool
}

// DisplayMessage returns the text shown for the record. Events may carry
// their text in RenderProps instead of Message.
func (c *CommandRecord) DisplayMessage() string {
	if c.RenderProps.Message != "" {
		return c.RenderProps.Message
	}
	return c.Message
}

// HasGroup reports whether the record references a parent group
func (c *CommandRecord) HasGroup() bool {
	return c.Group != ""
}

// Patch holds the fields of a partial update. Nil fields are left untouched.
type Patch struct {
	State       *State
	Message     *string
	NumElements *int
	Visible     *bool
	RenderProps *RenderProps
}

// Empty reports whether the patch carries no fields
func (p Patch) Empty() bool {
	return p.State == nil && p.Message == nil && p.NumElements == nil &&
		p.Visible == nil && p.RenderProps == nil
}

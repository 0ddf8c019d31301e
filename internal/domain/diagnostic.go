package domain

import "fmt"

// DiagnosticKind classifies a condition the reporter recovered from
type DiagnosticKind string

const (
	DiagMalformedRecord    DiagnosticKind = "malformed_record"
	DiagMalformedField     DiagnosticKind = "malformed_field"
	DiagMissingName        DiagnosticKind = "missing_name"
	DiagDanglingGroup      DiagnosticKind = "dangling_group"
	DiagUnknownCommand     DiagnosticKind = "unknown_command"
	DiagRejectedTransition DiagnosticKind = "rejected_transition"
	DiagUnknownMessage     DiagnosticKind = "unknown_message"
)

// Diagnostic records a recovered, non-fatal problem with inbound data
type Diagnostic struct {
	Key    Key
	ID     string
	Kind   DiagnosticKind
	Detail string
}

func (d Diagnostic) String() string {
	if d.ID != "" {
		return fmt.Sprintf("%s (id=%s): %s", d.Kind, d.ID, d.Detail)
	}
	return fmt.Sprintf("%s: %s", d.Kind, d.Detail)
}

// Package events records the diagnostic trail of a license read and derives
// the overall verdict from it.
//
// A Trail is an append-only accumulator owned by a single read call. Once the
// call has inspected every candidate source it freezes the trail into a
// Registry, deciding exactly once whether the accumulated warnings are fatal.
package events

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Kind identifies a diagnostic event.
type Kind int

const (
	LicenseFileNotFound Kind = iota + 1
	FileFormatNotRecognized
	ProductNotLicensed
	ProductFound
	LicenseMalformed
)

var kindNames = map[Kind]string{
	LicenseFileNotFound:     "LICENSE_FILE_NOT_FOUND",
	FileFormatNotRecognized: "FILE_FORMAT_NOT_RECOGNIZED",
	ProductNotLicensed:      "PRODUCT_NOT_LICENSED",
	ProductFound:            "PRODUCT_FOUND",
	LicenseMalformed:        "LICENSE_MALFORMED",
}

// String returns the canonical upper-case name of the kind.
func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("UNKNOWN_EVENT(%d)", int(k))
}

// MarshalText implements encoding.TextMarshaler.
func (k Kind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// Severity classifies an event once the verdict is known.
type Severity int

const (
	SeverityInfo Severity = iota
	SeverityWarning
	SeverityError
)

func (s Severity) String() string {
	switch s {
	case SeverityInfo:
		return "info"
	case SeverityWarning:
		return "warning"
	case SeverityError:
		return "error"
	default:
		return "unknown"
	}
}

// MarshalText implements encoding.TextMarshaler.
func (s Severity) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Event is a single diagnostic. Source is optional and usually names the
// location the event refers to.
type Event struct {
	Kind   Kind   `json:"kind"`
	Source string `json:"source,omitempty"`
}

func (e Event) String() string {
	if e.Source == "" {
		return e.Kind.String()
	}
	return e.Kind.String() + " (" + e.Source + ")"
}

// Trail accumulates events in discovery order. The zero value is ready to use.
type Trail struct {
	events []Event
}

// Add appends an event.
func (t *Trail) Add(kind Kind, source string) {
	t.events = append(t.events, Event{Kind: kind, Source: source})
}

// Len returns the number of recorded events.
func (t *Trail) Len() int {
	return len(t.events)
}

// Registry freezes the trail into a verdict. The trail keeps its events and
// may still be appended to; the returned registry does not observe later
// additions.
func (t *Trail) Registry(fatal bool) Registry {
	evs := make([]Event, len(t.events))
	copy(evs, t.events)
	return Registry{events: evs, fatal: fatal}
}

// Registry is the immutable outcome of a read: the ordered events plus
// whether the call as a whole failed.
type Registry struct {
	events []Event
	fatal  bool
}

// Events returns a copy of the recorded events in insertion order.
func (r Registry) Events() []Event {
	out := make([]Event, len(r.events))
	copy(out, r.events)
	return out
}

// Len returns the number of events.
func (r Registry) Len() int {
	return len(r.events)
}

// IsFatal reports whether no usable license was found.
func (r Registry) IsFatal() bool {
	return r.fatal
}

// IsGood is the negation of IsFatal.
func (r Registry) IsGood() bool {
	return !r.fatal
}

// SeverityOf returns the severity of an event under this registry's verdict.
func (r Registry) SeverityOf(e Event) Severity {
	if e.Kind == ProductFound {
		return SeverityInfo
	}
	if r.fatal {
		return SeverityError
	}
	return SeverityWarning
}

// Contains reports whether at least one event of the kind was recorded.
func (r Registry) Contains(kind Kind) bool {
	return r.Count(kind) > 0
}

// Count returns the number of events of the kind.
func (r Registry) Count(kind Kind) int {
	n := 0
	for _, e := range r.events {
		if e.Kind == kind {
			n++
		}
	}
	return n
}

// Kinds returns the kind of every event, in order.
func (r Registry) Kinds() []Kind {
	out := make([]Kind, len(r.events))
	for i, e := range r.events {
		out[i] = e.Kind
	}
	return out
}

// Worst returns the highest severity found in the registry.
func (r Registry) Worst() Severity {
	worst := SeverityInfo
	for _, e := range r.events {
		if s := r.SeverityOf(e); s > worst {
			worst = s
		}
	}
	return worst
}

// String renders a single-line summary, e.g. for log messages.
func (r Registry) String() string {
	parts := make([]string, len(r.events))
	for i, e := range r.events {
		parts[i] = e.String()
	}
	verdict := "ok"
	if r.fatal {
		verdict = "fatal"
	}
	return fmt.Sprintf("%s [%s]", verdict, strings.Join(parts, ", "))
}

// ReportedEvent is the serialized form of an event, with its severity.
type ReportedEvent struct {
	Kind     Kind     `json:"kind"`
	Source   string   `json:"source,omitempty"`
	Severity Severity `json:"severity"`
}

// Report lists every event with its derived severity.
func (r Registry) Report() []ReportedEvent {
	out := make([]ReportedEvent, len(r.events))
	for i, e := range r.events {
		out[i] = ReportedEvent{Kind: e.Kind, Source: e.Source, Severity: r.SeverityOf(e)}
	}
	return out
}

// MarshalJSON implements json.Marshaler.
func (r Registry) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Fatal  bool            `json:"fatal"`
		Events []ReportedEvent `json:"events"`
	}{
		Fatal:  r.fatal,
		Events: r.Report(),
	})
}

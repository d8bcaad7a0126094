package registry

import "strings"

// Source is a data source the registry waits for before becoming ready.
type Source uint8

const (
	// SourceLocal is the local profile store.
	SourceLocal Source = 1 << iota
	// SourceRemote is the shared profile store.
	SourceRemote
)

// String returns the source name.
func (s Source) String() string {
	switch s {
	case SourceLocal:
		return "local"
	case SourceRemote:
		return "remote"
	default:
		return "unknown"
	}
}

// Readiness tracks which sources still owe their first load.
// It is a plain value; transitions return a new value.
type Readiness struct {
	waiting Source
}

// NewReadiness waits for the given sources.
func NewReadiness(sources ...Source) Readiness {
	var r Readiness
	for _, s := range sources {
		r.waiting |= s
	}
	return r
}

// IsReady reports whether no source is pending.
func (r Readiness) IsReady() bool {
	return r.waiting == 0
}

// IsWaiting reports whether s is still pending.
func (r Readiness) IsWaiting(s Source) bool {
	return r.waiting&s != 0
}

// Complete marks s as loaded. becameReady is true only on the transition
// from waiting to ready, so it is observed at most once per value chain.
func (r Readiness) Complete(s Source) (next Readiness, becameReady bool) {
	if r.waiting&s == 0 {
		return r, false
	}
	next = Readiness{waiting: r.waiting &^ s}
	return next, next.IsReady()
}

// String lists the pending sources.
func (r Readiness) String() string {
	if r.IsReady() {
		return "ready"
	}
	var pending []string
	for _, s := range []Source{SourceLocal, SourceRemote} {
		if r.IsWaiting(s) {
			pending = append(pending, s.String())
		}
	}
	return "waiting for " + strings.Join(pending, ", ")
}

// Package lifecycle defines the application state machine.
//
// Default status graph:
//
//	pending ──► reviewing ──► shortlisted ──► interviewed ──► offered ──► accepted
//	   │            │              │               │             │
//	   └────────────┴──────────────┴───────────────┴─────────────┴──► rejected
//	   └────────────┴──────────────┴───────────────┴─────────────┴──► withdrawn
//
// accepted, rejected and withdrawn are terminal states. The edges are policy
// and can be replaced at startup; terminal states can never gain edges.
package lifecycle

import (
	"fmt"
	"slices"
)

// Status values mirror the application_status enum in PostgreSQL.
type Status string

const (
	StatusPending     Status = "pending"
	StatusReviewing   Status = "reviewing"
	StatusShortlisted Status = "shortlisted"
	StatusInterviewed Status = "interviewed"
	StatusOffered     Status = "offered"
	StatusAccepted    Status = "accepted"
	StatusRejected    Status = "rejected"
	StatusWithdrawn   Status = "withdrawn"
)

// Statuses lists every status in pipeline order.
var Statuses = []Status{
	StatusPending, StatusReviewing, StatusShortlisted, StatusInterviewed,
	StatusOffered, StatusAccepted, StatusRejected, StatusWithdrawn,
}

// ParseStatus converts a raw string to a Status, returning an error for
// unknown values.
func ParseStatus(s string) (Status, error) {
	st := Status(s)
	switch st {
	case StatusPending, StatusReviewing, StatusShortlisted, StatusInterviewed,
		StatusOffered, StatusAccepted, StatusRejected, StatusWithdrawn:
		return st, nil
	}
	return "", fmt.Errorf("unknown application status %q", s)
}

// IsTerminal reports whether no transition may leave s.
func IsTerminal(s Status) bool {
	switch s {
	case StatusAccepted, StatusRejected, StatusWithdrawn:
		return true
	}
	return false
}

// Deactivates reports whether reaching s clears the application's active flag.
func Deactivates(s Status) bool {
	return s == StatusRejected || s == StatusWithdrawn
}

// rank orders the forward pipeline; terminal exits share the last rank.
func rank(s Status) int {
	switch s {
	case StatusPending:
		return 0
	case StatusReviewing:
		return 1
	case StatusShortlisted:
		return 2
	case StatusInterviewed:
		return 3
	case StatusOffered:
		return 4
	}
	return 5
}

// Reached reports whether s is at or past milestone in the pipeline.
func Reached(s, milestone Status) bool {
	return rank(s) >= rank(milestone)
}

// Policy is the set of allowed (from → to) edges.
type Policy struct {
	edges map[Status][]Status
}

// DefaultPolicy returns the standard recruiting pipeline.
func DefaultPolicy() Policy {
	return Policy{edges: map[Status][]Status{
		StatusPending:     {StatusReviewing, StatusRejected, StatusWithdrawn},
		StatusReviewing:   {StatusShortlisted, StatusRejected, StatusWithdrawn},
		StatusShortlisted: {StatusInterviewed, StatusRejected, StatusWithdrawn},
		StatusInterviewed: {StatusOffered, StatusRejected, StatusWithdrawn},
		StatusOffered:     {StatusAccepted, StatusRejected, StatusWithdrawn},
		// accepted, rejected and withdrawn are terminal, no outgoing transitions
	}}
}

// NewPolicy validates edges and returns a Policy. Unknown statuses,
// self-loops, edges out of terminal states and edges back to pending are
// refused.
func NewPolicy(edges map[Status][]Status) (Policy, error) {
	p := Policy{edges: make(map[Status][]Status, len(edges))}
	for from, targets := range edges {
		if _, err := ParseStatus(string(from)); err != nil {
			return Policy{}, err
		}
		if IsTerminal(from) && len(targets) > 0 {
			return Policy{}, fmt.Errorf("terminal status %s cannot have outgoing transitions", from)
		}
		for _, to := range targets {
			if _, err := ParseStatus(string(to)); err != nil {
				return Policy{}, err
			}
			if to == from {
				return Policy{}, fmt.Errorf("self transition %s → %s is not allowed", from, to)
			}
			if to == StatusPending {
				return Policy{}, fmt.Errorf("pending is only an initial status (edge from %s)", from)
			}
		}
		p.edges[from] = slices.Clone(targets)
	}
	return p, nil
}

// Allowed returns true when moving from → to is permitted.
func (p Policy) Allowed(from, to Status) bool {
	return slices.Contains(p.edges[from], to)
}

// Targets returns the statuses reachable from from in one step.
func (p Policy) Targets(from Status) []Status {
	return slices.Clone(p.edges[from])
}

// Path returns the shortest sequence of statuses leading from from to to,
// excluding from and ending with to. Terminal statuses are never passed
// through. It returns nil when the policy has no such route.
func (p Policy) Path(from, to Status) []Status {
	prev := map[Status]Status{from: ""}
	queue := []Status{from}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for _, next := range p.Targets(cur) {
			if _, seen := prev[next]; seen {
				continue
			}
			prev[next] = cur
			if next == to {
				var path []Status
				for s := to; s != from; s = prev[s] {
					path = append(path, s)
				}
				slices.Reverse(path)
				return path
			}
			if !IsTerminal(next) {
				queue = append(queue, next)
			}
		}
	}
	return nil
}

var defaultPolicy = DefaultPolicy()

// IsTransitionAllowed reports whether the default policy permits from → to.
func IsTransitionAllowed(from, to Status) bool {
	return defaultPolicy.Allowed(from, to)
}

// Package syncstate records pipeline runs in job_sync_history and serves the
// watermark of the last successful run.
//
// Run status graph:
//
//	RUNNING ──► SUCCESS
//	   │
//	   └──────► FAILED
//
// SUCCESS and FAILED are terminal states.
package syncstate

import "github.com/cockroachdb/errors"

// Status values mirror the status CHECK constraint of job_sync_history.
type Status string

const (
	StatusRunning Status = "RUNNING"
	StatusSuccess Status = "SUCCESS"
	StatusFailed  Status = "FAILED"
)

var validTransitions = map[Status][]Status{
	StatusRunning: {StatusSuccess, StatusFailed},
}

// ParseStatus converts a raw column value to a Status.
func ParseStatus(s string) (Status, error) {
	st := Status(s)
	switch st {
	case StatusRunning, StatusSuccess, StatusFailed:
		return st, nil
	}
	return "", errors.Newf("unknown run status %q", s)
}

// IsTransitionAllowed reports whether a run may move from → to.
func IsTransitionAllowed(from, to Status) bool {
	for _, s := range validTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// IsTerminal is true once a run has finished either way.
func IsTerminal(s Status) bool { return s == StatusSuccess || s == StatusFailed }

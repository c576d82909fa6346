package main

import (
	"bytes"
	"time"
)

// OutcomeKind classifies one select response.
type OutcomeKind int

const (
	OutcomeSucceeded OutcomeKind = iota
	OutcomeCapacityExceeded
	OutcomeOther
)

func (k OutcomeKind) String() string {
	switch k {
	case OutcomeSucceeded:
		return "succeeded"
	case OutcomeCapacityExceeded:
		return "capacity-exceeded"
	case OutcomeOther:
		return "other-response"
	default:
		return "unknown"
	}
}

// SelectionOutcome is one classified select response. Text is kept
// verbatim for the operator.
type SelectionOutcome struct {
	Kind     OutcomeKind
	CourseID string
	Status   int
	Text     string
	At       time.Time
}

// classifier tags select responses by marker substrings. Only the
// capacity marker is required. Without a success marker every other
// response counts as success and is surfaced for the operator to confirm.
type classifier struct {
	capacity []byte
	success  []byte
}

func newClassifier(site SiteConfig) classifier {
	return classifier{capacity: []byte(site.CapacityMarker), success: []byte(site.SuccessMarker)}
}

func (c classifier) classify(body []byte) OutcomeKind {
	switch {
	case bytes.Contains(body, c.capacity):
		return OutcomeCapacityExceeded
	case len(c.success) == 0 || bytes.Contains(body, c.success):
		return OutcomeSucceeded
	default:
		return OutcomeOther
	}
}

// Package linkage assigns acceptance criteria to test cases that were
// generated without any.
//
// The rule is deterministic: an unlinked test case always receives the first
// known acceptance criteria id and a fixed audit note. Test cases that already
// reference at least one id are never modified.
package linkage

import (
	"errors"
	"fmt"
)

// AutoLinkNote is appended to the notes of every auto-linked test case.
const AutoLinkNote = "Auto-linked to primary acceptance criteria due to missing linkage in generation."

var (
	// ErrEmptyInput is returned when no known acceptance criteria ids are supplied.
	ErrEmptyInput = errors.New("known acceptance criteria ids are empty")
	// ErrNilTestCase is returned for a nil record in the input collection.
	ErrNilTestCase = errors.New("test case is nil")
)

// Result summarizes a link pass.
type Result struct {
	Total      int
	DefaultID  string
	AutoLinked []int
}

// Unchanged returns the number of records that were already linked.
func (r Result) Unchanged() int {
	return r.Total - len(r.AutoLinked)
}

// Link ensures every test case has at least one linked acceptance criteria id.
// Preconditions are checked before any record is touched.
func Link(cases []*TestCase, knownIDs []string) (Result, error) {
	if err := validate(cases, knownIDs); err != nil {
		return Result{}, err
	}
	res := Result{Total: len(cases), DefaultID: knownIDs[0]}
	for i, tc := range cases {
		if apply(tc, res.DefaultID) {
			res.AutoLinked = append(res.AutoLinked, i)
		}
	}
	return res, nil
}

func validate(cases []*TestCase, knownIDs []string) error {
	if len(knownIDs) == 0 {
		return ErrEmptyInput
	}
	for i, tc := range cases {
		if tc == nil {
			return fmt.Errorf("test case %d: %w", i, ErrNilTestCase)
		}
	}
	return nil
}

// apply links a single record and reports whether it was changed.
func apply(tc *TestCase, defaultID string) bool {
	if tc.State() == Linked {
		return false
	}
	tc.LinkedAcceptanceCriteria = []string{defaultID}
	if tc.Notes == nil {
		tc.Notes = []string{}
	}
	tc.Notes = append(tc.Notes, AutoLinkNote)
	return true
}

package linkage

import (
	"encoding/json"
	"fmt"
)

const (
	keyLinked = "linked_acceptance_criteria"
	keyNotes  = "notes"
	keyID     = "id"
)

// State is the linkage variant of a test case.
type State int

const (
	// Unlinked covers an absent, null or empty linkage.
	Unlinked State = iota
	// Linked means at least one acceptance criteria id is present.
	Linked
)

func (s State) String() string {
	if s == Linked {
		return "linked"
	}
	return "unlinked"
}

// TestCase is a generated test case record. Only the linkage and notes are
// interpreted; every other field is carried through encoding untouched.
type TestCase struct {
	LinkedAcceptanceCriteria []string
	Notes                    []string

	fields map[string]json.RawMessage
}

// State reports whether the test case carries any acceptance criteria ids.
func (tc *TestCase) State() State {
	if len(tc.LinkedAcceptanceCriteria) == 0 {
		return Unlinked
	}
	return Linked
}

// ID returns the record's "id" field when it is a JSON string.
func (tc *TestCase) ID() string {
	raw, ok := tc.fields[keyID]
	if !ok {
		return ""
	}
	var id string
	if err := json.Unmarshal(raw, &id); err != nil {
		return ""
	}
	return id
}

// Field returns the raw JSON value of an opaque field.
func (tc *TestCase) Field(name string) (json.RawMessage, bool) {
	raw, ok := tc.fields[name]
	return raw, ok
}

// SetField stores a raw JSON value for an opaque field.
func (tc *TestCase) SetField(name string, value json.RawMessage) {
	if tc.fields == nil {
		tc.fields = make(map[string]json.RawMessage)
	}
	tc.fields[name] = value
}

// UnmarshalJSON decodes a test case object, keeping unknown fields verbatim.
func (tc *TestCase) UnmarshalJSON(data []byte) error {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return fmt.Errorf("decode test case: %w", err)
	}
	var linked, notes []string
	if raw, ok := fields[keyLinked]; ok {
		if err := json.Unmarshal(raw, &linked); err != nil {
			return fmt.Errorf("decode %s: %w", keyLinked, err)
		}
	}
	if raw, ok := fields[keyNotes]; ok {
		if err := json.Unmarshal(raw, &notes); err != nil {
			return fmt.Errorf("decode %s: %w", keyNotes, err)
		}
	}
	tc.LinkedAcceptanceCriteria = linked
	tc.Notes = notes
	tc.fields = fields
	return nil
}

// MarshalJSON encodes the test case. A nil linkage or notes slice leaves the
// original raw value (absent or null) in place.
func (tc TestCase) MarshalJSON() ([]byte, error) {
	out := make(map[string]json.RawMessage, len(tc.fields)+2)
	for k, v := range tc.fields {
		out[k] = v
	}
	if tc.LinkedAcceptanceCriteria != nil {
		raw, err := json.Marshal(tc.LinkedAcceptanceCriteria)
		if err != nil {
			return nil, fmt.Errorf("encode %s: %w", keyLinked, err)
		}
		out[keyLinked] = raw
	}
	if tc.Notes != nil {
		raw, err := json.Marshal(tc.Notes)
		if err != nil {
			return nil, fmt.Errorf("encode %s: %w", keyNotes, err)
		}
		out[keyNotes] = raw
	}
	return json.Marshal(out)
}

package linkage

import (
	"encoding/json"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decodeCases(t *testing.T, raw string) []*TestCase {
	t.Helper()
	var cases []*TestCase
	require.NoError(t, json.Unmarshal([]byte(raw), &cases))
	return cases
}

func encodeCases(t *testing.T, cases []*TestCase) string {
	t.Helper()
	data, err := json.Marshal(cases)
	require.NoError(t, err)
	return string(data)
}

func TestLink_EmptyLinkageGetsDefault(t *testing.T) {
	t.Parallel()

	cases := decodeCases(t, `[{"linked_acceptance_criteria": []}]`)
	res, err := Link(cases, []string{"AC-1", "AC-2"})
	require.NoError(t, err)

	assert.Equal(t, []int{0}, res.AutoLinked)
	assert.Equal(t, "AC-1", res.DefaultID)
	assert.JSONEq(t,
		`[{"linked_acceptance_criteria":["AC-1"],"notes":["Auto-linked to primary acceptance criteria due to missing linkage in generation."]}]`,
		encodeCases(t, cases))
}

func TestLink_LinkedCaseUnchanged(t *testing.T) {
	t.Parallel()

	input := `[{"linked_acceptance_criteria":["AC-2"]}]`
	cases := decodeCases(t, input)
	res, err := Link(cases, []string{"AC-1", "AC-2"})
	require.NoError(t, err)

	assert.Empty(t, res.AutoLinked)
	assert.Equal(t, 1, res.Unchanged())
	assert.JSONEq(t, input, encodeCases(t, cases))
}

func TestLink_MissingKeyGetsDefault(t *testing.T) {
	t.Parallel()

	cases := decodeCases(t, `[{}]`)
	_, err := Link(cases, []string{"AC-1"})
	require.NoError(t, err)

	assert.JSONEq(t,
		`[{"linked_acceptance_criteria":["AC-1"],"notes":["`+AutoLinkNote+`"]}]`,
		encodeCases(t, cases))
}

func TestLink_NullLinkageAndNotes(t *testing.T) {
	t.Parallel()

	cases := decodeCases(t, `[{"linked_acceptance_criteria": null, "notes": null}]`)
	_, err := Link(cases, []string{"AC-9"})
	require.NoError(t, err)

	assert.Equal(t, []string{"AC-9"}, cases[0].LinkedAcceptanceCriteria)
	assert.Equal(t, []string{AutoLinkNote}, cases[0].Notes)
}

func TestLink_AppendsToExistingNotes(t *testing.T) {
	t.Parallel()

	cases := decodeCases(t, `[{"notes": ["generated by batch 7"]}]`)
	_, err := Link(cases, []string{"AC-1"})
	require.NoError(t, err)

	assert.Equal(t, []string{"generated by batch 7", AutoLinkNote}, cases[0].Notes)
}

func TestLink_DoesNotValidateExistingIDs(t *testing.T) {
	t.Parallel()

	cases := decodeCases(t, `[{"linked_acceptance_criteria":["AC-404"]}]`)
	res, err := Link(cases, []string{"AC-1"})
	require.NoError(t, err)

	assert.Empty(t, res.AutoLinked)
	assert.Equal(t, []string{"AC-404"}, cases[0].LinkedAcceptanceCriteria)
	assert.Nil(t, cases[0].Notes)
}

func TestLink_PreservesOpaqueFields(t *testing.T) {
	t.Parallel()

	input := `[
		{"id":"TC-1","title":"login","steps":[{"n":1}],"linked_acceptance_criteria":["AC-3"],"notes":null},
		{"id":"TC-2","priority":2,"meta":{"k":"v"}}
	]`
	cases := decodeCases(t, input)
	res, err := Link(cases, []string{"AC-1"})
	require.NoError(t, err)
	assert.Equal(t, []int{1}, res.AutoLinked)

	want := `[
		{"id":"TC-1","title":"login","steps":[{"n":1}],"linked_acceptance_criteria":["AC-3"],"notes":null},
		{"id":"TC-2","priority":2,"meta":{"k":"v"},"linked_acceptance_criteria":["AC-1"],"notes":["` + AutoLinkNote + `"]}
	]`
	assert.JSONEq(t, want, encodeCases(t, cases))
	assert.Equal(t, "TC-2", cases[1].ID())
}

func TestLink_EmptyKnownIDsFailsBeforeMutation(t *testing.T) {
	t.Parallel()

	cases := decodeCases(t, `[{}, {"linked_acceptance_criteria": []}]`)
	before := encodeCases(t, cases)

	_, err := Link(cases, nil)
	require.ErrorIs(t, err, ErrEmptyInput)
	assert.JSONEq(t, before, encodeCases(t, cases))
}

func TestLink_EmptyKnownIDsWithNoCases(t *testing.T) {
	t.Parallel()

	_, err := Link(nil, []string{})
	require.ErrorIs(t, err, ErrEmptyInput)
}

func TestLink_NoCases(t *testing.T) {
	t.Parallel()

	res, err := Link(nil, []string{"AC-1"})
	require.NoError(t, err)
	assert.Equal(t, 0, res.Total)
	assert.Empty(t, res.AutoLinked)
}

func TestLink_NilRecordFailsBeforeMutation(t *testing.T) {
	t.Parallel()

	first := &TestCase{}
	_, err := Link([]*TestCase{first, nil}, []string{"AC-1"})
	require.ErrorIs(t, err, ErrNilTestCase)
	assert.Nil(t, first.LinkedAcceptanceCriteria)
	assert.Nil(t, first.Notes)
}

func TestLink_Idempotent(t *testing.T) {
	t.Parallel()

	cases := decodeCases(t, `[{}, {"linked_acceptance_criteria":["AC-2"]}, {"linked_acceptance_criteria":[]}]`)
	ids := []string{"AC-1", "AC-2"}

	first, err := Link(cases, ids)
	require.NoError(t, err)
	require.Equal(t, []int{0, 2}, first.AutoLinked)
	once := encodeCases(t, cases)

	second, err := Link(cases, ids)
	require.NoError(t, err)
	assert.Empty(t, second.AutoLinked)
	if diff := cmp.Diff(once, encodeCases(t, cases)); diff != "" {
		t.Fatalf("second pass changed records (-once +twice):\n%s", diff)
	}
}

func TestLink_PostConditionEveryCaseLinked(t *testing.T) {
	t.Parallel()

	cases := decodeCases(t, `[{}, {"notes":[]}, {"linked_acceptance_criteria":null}, {"linked_acceptance_criteria":["X"]}]`)
	_, err := Link(cases, []string{"AC-1"})
	require.NoError(t, err)

	for i, tc := range cases {
		assert.Equal(t, Linked, tc.State(), "case %d", i)
		assert.NotEmpty(t, tc.LinkedAcceptanceCriteria, "case %d", i)
	}
}

func TestTestCase_RejectsMalformedLinkage(t *testing.T) {
	t.Parallel()

	var tc TestCase
	err := json.Unmarshal([]byte(`{"linked_acceptance_criteria":"AC-1"}`), &tc)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "linked_acceptance_criteria")
}

func TestTestCase_StateString(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "linked", Linked.String())
	assert.Equal(t, "unlinked", Unlinked.String())
}

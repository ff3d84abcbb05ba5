package document

import (
	"bytes"
	"path/filepath"
	"strings"
	"testing"

	"github.com/metalagman/tclink/internal/linkage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecode_JSON(t *testing.T) {
	t.Parallel()

	doc, err := Decode(strings.NewReader(`{
		"suite": "checkout",
		"known_ac_ids": ["AC-1", "AC-2"],
		"test_cases": [{"id": "TC-1"}, {"id": "TC-2", "linked_acceptance_criteria": ["AC-2"]}]
	}`), JSON)
	require.NoError(t, err)

	require.Len(t, doc.TestCases, 2)
	assert.Equal(t, []string{"AC-1", "AC-2"}, doc.KnownACIDs)
	assert.Equal(t, linkage.Unlinked, doc.TestCases[0].State())
	assert.Equal(t, linkage.Linked, doc.TestCases[1].State())
}

func TestDecode_YAML(t *testing.T) {
	t.Parallel()

	doc, err := Decode(strings.NewReader(`
test_cases:
  - id: TC-1
    steps:
      - open cart
  - id: TC-2
    linked_acceptance_criteria: [AC-3]
`), YAML)
	require.NoError(t, err)

	require.Len(t, doc.TestCases, 2)
	assert.Equal(t, "TC-1", doc.TestCases[0].ID())
	assert.Equal(t, []string{"AC-3"}, doc.TestCases[1].LinkedAcceptanceCriteria)
	assert.Nil(t, doc.KnownACIDs)
}

func TestDecode_RejectsSchemaViolations(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		in   string
	}{
		{name: "missing test_cases", in: `{}`},
		{name: "test_cases not array", in: `{"test_cases": {}}`},
		{name: "linkage is a string", in: `{"test_cases": [{"linked_acceptance_criteria": "AC-1"}]}`},
		{name: "notes contain numbers", in: `{"test_cases": [{"notes": [1]}]}`},
		{name: "null test case", in: `{"test_cases": [null]}`},
		{name: "blank known id", in: `{"test_cases": [], "known_ac_ids": [""]}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := Decode(strings.NewReader(tt.in), JSON)
			require.ErrorIs(t, err, ErrInvalidDocument)
		})
	}
}

func TestDecode_RejectsBrokenYAML(t *testing.T) {
	t.Parallel()

	_, err := Decode(strings.NewReader("test_cases: [\n"), YAML)
	require.ErrorIs(t, err, ErrInvalidDocument)
}

func TestEncode_PreservesExtraKeys(t *testing.T) {
	t.Parallel()

	doc, err := Decode(strings.NewReader(`{"suite":"checkout","test_cases":[{"id":"TC-1","linked_acceptance_criteria":["AC-1"]}]}`), JSON)
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, Encode(&buf, doc, JSON))
	assert.JSONEq(t, `{"suite":"checkout","test_cases":[{"id":"TC-1","linked_acceptance_criteria":["AC-1"]}]}`, buf.String())
}

func TestEncode_YAMLRoundTripAfterLink(t *testing.T) {
	t.Parallel()

	doc, err := Decode(strings.NewReader("test_cases:\n  - id: TC-1\n"), YAML)
	require.NoError(t, err)
	_, err = linkage.Link(doc.TestCases, []string{"AC-1"})
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, Encode(&buf, doc, YAML))

	again, err := Decode(&buf, YAML)
	require.NoError(t, err)
	require.Len(t, again.TestCases, 1)
	assert.Equal(t, []string{"AC-1"}, again.TestCases[0].LinkedAcceptanceCriteria)
	assert.Equal(t, []string{linkage.AutoLinkNote}, again.TestCases[0].Notes)
}

func TestEncode_YAMLKeepsNumbersInLinkedRecords(t *testing.T) {
	t.Parallel()

	doc, err := Decode(strings.NewReader(`test_cases:
  - id: TC-1
    timeout_ms: 1000000
    build: 9007199254740993
    ratio: 0.25
    linked_acceptance_criteria: [AC-2]
  - id: TC-2
`), YAML)
	require.NoError(t, err)
	res, err := linkage.Link(doc.TestCases, []string{"AC-1"})
	require.NoError(t, err)
	require.Equal(t, []int{1}, res.AutoLinked)

	var buf bytes.Buffer
	require.NoError(t, Encode(&buf, doc, YAML))
	out := buf.String()
	assert.Contains(t, out, "timeout_ms: 1000000\n")
	assert.Contains(t, out, "build: 9007199254740993\n")
	assert.Contains(t, out, "ratio: 0.25\n")

	again, err := Decode(&buf, YAML)
	require.NoError(t, err)
	for field, want := range map[string]string{
		"timeout_ms": "1000000",
		"build":      "9007199254740993",
		"ratio":      "0.25",
	} {
		raw, ok := again.TestCases[0].Field(field)
		require.True(t, ok, field)
		assert.Equal(t, want, string(raw), field)
	}
	assert.Equal(t, []string{"AC-2"}, again.TestCases[0].LinkedAcceptanceCriteria)
	assert.Nil(t, again.TestCases[0].Notes)
}

func TestEncode_JSONToYAMLKeepsNumberText(t *testing.T) {
	t.Parallel()

	doc, err := Decode(strings.NewReader(`{"test_cases":[{"max":18446744073709551615,"neg":-42,"sci":1.5e3}]}`), JSON)
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, Encode(&buf, doc, YAML))
	out := buf.String()
	assert.Contains(t, out, "max: 18446744073709551615\n")
	assert.Contains(t, out, "neg: -42\n")
	assert.Contains(t, out, "sci: 1.5e3\n")
}

func TestWriteFile_ReplacesContent(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "cases.json")
	doc := &Document{TestCases: []*linkage.TestCase{{LinkedAcceptanceCriteria: []string{"AC-1"}}}}
	require.NoError(t, WriteFile(path, doc, JSON))

	loaded, err := ReadFile(path, JSON)
	require.NoError(t, err)
	require.Len(t, loaded.TestCases, 1)
	assert.Equal(t, []string{"AC-1"}, loaded.TestCases[0].LinkedAcceptanceCriteria)

	matches, err := filepath.Glob(filepath.Join(filepath.Dir(path), ".*.tmp"))
	require.NoError(t, err)
	assert.Empty(t, matches)
}

func TestFormat(t *testing.T) {
	t.Parallel()

	assert.Equal(t, YAML, FormatFromPath("cases.YML"))
	assert.Equal(t, JSON, FormatFromPath("cases.json"))
	assert.Equal(t, JSON, FormatFromPath("-"))

	f, err := ParseFormat("yaml")
	require.NoError(t, err)
	assert.Equal(t, YAML, f)
	_, err = ParseFormat("toml")
	require.Error(t, err)
}

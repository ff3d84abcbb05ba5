// Package document reads and writes the test case documents handed to the linker.
package document

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/metalagman/tclink/internal/linkage"
	"github.com/metalagman/tclink/internal/schema"
	"gopkg.in/yaml.v3"
)

const (
	keyTestCases  = "test_cases"
	keyKnownACIDs = "known_ac_ids"
)

// ErrInvalidDocument is returned when input does not match the document schema.
var ErrInvalidDocument = errors.New("invalid document")

//go:embed schema.json
var schemaJSON string

var documentSchema = schema.New("document", schemaJSON, ErrInvalidDocument)

// Format is a document encoding.
type Format string

const (
	// JSON is the default document encoding.
	JSON Format = "json"
	// YAML documents are converted to JSON before validation.
	YAML Format = "yaml"
)

// ParseFormat parses a format name.
func ParseFormat(name string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "json":
		return JSON, nil
	case "yaml", "yml":
		return YAML, nil
	default:
		return "", fmt.Errorf("unknown document format %q", name)
	}
}

// FormatFromPath picks a format from a file extension.
func FormatFromPath(path string) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return YAML
	default:
		return JSON
	}
}

// Document is a linker input: test cases plus optional known acceptance
// criteria ids. Unknown top-level keys are preserved.
type Document struct {
	TestCases  []*linkage.TestCase
	KnownACIDs []string

	extra map[string]json.RawMessage
}

// UnmarshalJSON decodes a document object.
func (d *Document) UnmarshalJSON(data []byte) error {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return err
	}
	var cases []*linkage.TestCase
	if raw, ok := fields[keyTestCases]; ok {
		if err := json.Unmarshal(raw, &cases); err != nil {
			return fmt.Errorf("decode %s: %w", keyTestCases, err)
		}
	}
	var ids []string
	if raw, ok := fields[keyKnownACIDs]; ok {
		if err := json.Unmarshal(raw, &ids); err != nil {
			return fmt.Errorf("decode %s: %w", keyKnownACIDs, err)
		}
	}
	delete(fields, keyTestCases)
	delete(fields, keyKnownACIDs)
	d.TestCases = cases
	d.KnownACIDs = ids
	d.extra = fields
	return nil
}

// MarshalJSON encodes the document.
func (d Document) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(d.extra)+2)
	for k, v := range d.extra {
		out[k] = v
	}
	cases := d.TestCases
	if cases == nil {
		cases = []*linkage.TestCase{}
	}
	out[keyTestCases] = cases
	if d.KnownACIDs != nil {
		out[keyKnownACIDs] = d.KnownACIDs
	}
	return json.Marshal(out)
}

// Decode reads, validates and decodes a document.
func Decode(r io.Reader, format Format) (*Document, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read document: %w", err)
	}
	if format == YAML {
		data, err = yamlToJSON(data)
		if err != nil {
			return nil, err
		}
	}
	if err := documentSchema.ValidateBytes(data); err != nil {
		return nil, err
	}
	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decode document: %w", err)
	}
	return &doc, nil
}

// Encode writes the document in the given format.
func Encode(w io.Writer, doc *Document, format Format) error {
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("encode document: %w", err)
	}
	if format == YAML {
		data, err = jsonToYAML(data)
		if err != nil {
			return err
		}
	} else {
		data = append(data, '\n')
	}
	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("write document: %w", err)
	}
	return nil
}

// ReadFile decodes the document stored at path.
func ReadFile(path string, format Format) (*Document, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open document: %w", err)
	}
	defer func() { _ = f.Close() }()
	return Decode(f, format)
}

// WriteFile replaces path with the encoded document.
func WriteFile(path string, doc *Document, format Format) error {
	var buf bytes.Buffer
	if err := Encode(&buf, doc, format); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(buf.Bytes()); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("replace document: %w", err)
	}
	return nil
}

func yamlToJSON(data []byte) ([]byte, error) {
	var v any
	if err := yaml.Unmarshal(data, &v); err != nil {
		return nil, fmt.Errorf("%w: parse yaml: %v", ErrInvalidDocument, err)
	}
	out, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("%w: convert yaml: %v", ErrInvalidDocument, err)
	}
	return out, nil
}

func jsonToYAML(data []byte) ([]byte, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, fmt.Errorf("convert to yaml: %w", err)
	}
	out, err := yaml.Marshal(yamlValue(v))
	if err != nil {
		return nil, fmt.Errorf("encode yaml: %w", err)
	}
	return out, nil
}

// yamlValue replaces JSON numbers with scalar nodes holding their original
// text, so integers are not rewritten as floats.
func yamlValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		for k, item := range t {
			t[k] = yamlValue(item)
		}
		return t
	case []any:
		for i, item := range t {
			t[i] = yamlValue(item)
		}
		return t
	case json.Number:
		tag := "!!float"
		if _, err := t.Int64(); err == nil {
			tag = "!!int"
		} else if _, err := strconv.ParseUint(t.String(), 10, 64); err == nil {
			tag = "!!int"
		}
		return &yaml.Node{Kind: yaml.ScalarNode, Tag: tag, Value: t.String()}
	default:
		return v
	}
}

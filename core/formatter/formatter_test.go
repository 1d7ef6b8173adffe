package formatter

import (
	"bytes"
	"encoding/json"
	"errors"
	"reflect"
	"strings"
	"testing"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/artpar/conftree/core/diff"
	"github.com/artpar/conftree/core/schema"
	"github.com/artpar/conftree/core/tree"
	"github.com/artpar/conftree/ports"
)

const displaySchema = `{
	"type": "object",
	"additionalProperties": false,
	"propertyOrder": ["name", "port", "note", "token", "endpoints", "tuning"],
	"properties": {
		"name": {"type": "string", "default": "core"},
		"port": {"type": "integer", "default": 8080},
		"note": {"oneOf": [{"type": "string"}, {"type": "null"}], "x-meta": {"stringExtra": {"isMultiline": true}}},
		"token": {"oneOf": [{"type": "string"}, {"type": "null"}], "x-meta": {"isSecret": true}},
		"endpoints": {"type": "array", "items": {"type": "string"}, "default": ["a.example"]},
		"tuning": {
			"type": "object",
			"additionalProperties": false,
			"propertyOrder": ["level"],
			"properties": {"level": {"type": "integer", "default": 2}},
			"x-meta": {"activation": {"isAllowChange": true}}
		}
	}
}`

const displayDoc = `{
	"name": "svc",
	"port": 9090,
	"note": "a\nb",
	"token": "hunter2",
	"endpoints": ["a.example", "b.example"],
	"tuning": {"level": 3}
}`

func mustDescriptor(t *testing.T) *schema.Descriptor {
	t.Helper()
	desc, err := schema.Parse([]byte(displaySchema))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	return desc
}

func defaultsTree(t *testing.T) *tree.Tree {
	t.Helper()
	tr, err := tree.FromDefaults(mustDescriptor(t), tree.Collaborators{})
	if err != nil {
		t.Fatalf("FromDefaults: %v", err)
	}
	return tr
}

func loadedTree(t *testing.T) *tree.Tree {
	t.Helper()
	tr, err := tree.FromDocumentJSON(mustDescriptor(t), []byte(displayDoc), tree.Collaborators{})
	if err != nil {
		t.Fatalf("FromDocumentJSON: %v", err)
	}
	tr.SetVersion(3)
	return tr
}

func testChanges() []diff.Change {
	return []diff.Change{
		{Path: "/port", Previous: json.Number("8080"), Current: json.Number("9090")},
		{Path: "/token", Previous: nil, Current: tree.Mask},
	}
}

func testHistory() []ports.Stored {
	base := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	return []ports.Stored{
		{Name: "service", Version: 2, CreatedAt: base.Add(time.Hour), Description: "bump port", Document: []byte(`{"token":"hunter2"}`), SchemaHash: "abc123"},
		{Name: "service", Version: 1, CreatedAt: base, Document: []byte(`{"token":"hunter2"}`), SchemaHash: "abc123"},
	}
}

// ---- table ----

func TestTableFormatTree(t *testing.T) {
	var buf bytes.Buffer
	f := NewTableFormatter()

	if err := f.FormatTree(&buf, "service", loadedTree(t), FormatOptions{}); err != nil {
		t.Fatalf("FormatTree: %v", err)
	}

	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	if len(lines) != 8 {
		t.Fatalf("got %d lines, want 8:\n%s", len(lines), buf.String())
	}
	if !strings.HasPrefix(lines[0], "PATH") {
		t.Errorf("missing header: %q", lines[0])
	}

	rows := [][]string{
		{"/name", "string", "svc"},
		{"/port", "integer", "9090"},
		{"/note", "text", `a\nb`},
		{"/token", "secret", tree.Mask},
		{"/endpoints[0]", "string", "a.example"},
		{"/endpoints[1]", "string", "b.example"},
		{"/tuning/level", "integer", "3"},
	}
	for i, want := range rows {
		got := strings.Fields(lines[i+1])
		if !reflect.DeepEqual(got, want) {
			t.Errorf("row %d = %v, want %v", i+1, got, want)
		}
	}
}

func TestTableFormatTreeDefaults(t *testing.T) {
	var buf bytes.Buffer
	f := NewTableFormatter()

	if err := f.FormatTree(&buf, "service", defaultsTree(t), FormatOptions{NoHeader: true}); err != nil {
		t.Fatalf("FormatTree: %v", err)
	}

	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	rows := [][]string{
		{"/name", "string", "core"},
		{"/port", "integer", "8080"},
		{"/note", "text", "-"},
		{"/token", "secret", "-"},
		{"/endpoints[0]", "string", "a.example"},
		{"/tuning", "activatable_group", "-"},
	}
	if len(lines) != len(rows) {
		t.Fatalf("got %d lines, want %d:\n%s", len(lines), len(rows), buf.String())
	}
	for i, want := range rows {
		got := strings.Fields(lines[i])
		if !reflect.DeepEqual(got, want) {
			t.Errorf("row %d = %v, want %v", i, got, want)
		}
	}
}

func TestTableFormatTreeReveal(t *testing.T) {
	var buf bytes.Buffer
	f := NewTableFormatter()

	if err := f.FormatTree(&buf, "service", loadedTree(t), FormatOptions{Reveal: true}); err != nil {
		t.Fatalf("FormatTree: %v", err)
	}
	if !strings.Contains(buf.String(), "hunter2") {
		t.Errorf("revealed output lacks the secret:\n%s", buf.String())
	}
}

func TestTableFormatDiff(t *testing.T) {
	var buf bytes.Buffer
	f := NewTableFormatter()

	if err := f.FormatDiff(&buf, "service", testChanges(), FormatOptions{}); err != nil {
		t.Fatalf("FormatDiff: %v", err)
	}

	out := buf.String()
	if !strings.Contains(out, "PATH") || !strings.Contains(out, "PREVIOUS") {
		t.Errorf("missing header:\n%s", out)
	}
	for _, want := range []string{"/port", "8080", "9090", "/token", tree.Mask} {
		if !strings.Contains(out, want) {
			t.Errorf("output lacks %q:\n%s", want, out)
		}
	}

	buf.Reset()
	if err := f.FormatDiff(&buf, "service", nil, FormatOptions{}); err != nil {
		t.Fatalf("FormatDiff(empty): %v", err)
	}
	if got := buf.String(); got != "No changes.\n" {
		t.Errorf("empty diff = %q", got)
	}
}

func TestTableFormatHistory(t *testing.T) {
	var buf bytes.Buffer
	f := NewTableFormatter()

	if err := f.FormatHistory(&buf, "service", testHistory(), FormatOptions{}); err != nil {
		t.Fatalf("FormatHistory: %v", err)
	}

	out := buf.String()
	for _, want := range []string{"VERSION", "2025-03-01T13:00:00Z", "bump port"} {
		if !strings.Contains(out, want) {
			t.Errorf("output lacks %q:\n%s", want, out)
		}
	}
	if strings.Contains(out, "hunter2") {
		t.Errorf("history output leaks document bytes:\n%s", out)
	}

	// empty description renders as a dash
	lines := strings.Split(strings.TrimRight(out, "\n"), "\n")
	last := strings.Fields(lines[len(lines)-1])
	if last[len(last)-1] != "-" {
		t.Errorf("missing description = %v, want trailing dash", last)
	}

	buf.Reset()
	if err := f.FormatHistory(&buf, "service", nil, FormatOptions{}); err != nil {
		t.Fatalf("FormatHistory(empty): %v", err)
	}
	if got := buf.String(); got != "No versions found.\n" {
		t.Errorf("empty history = %q", got)
	}
}

func TestTableFormatValueTruncation(t *testing.T) {
	f := NewTableFormatter()

	long := strings.Repeat("x", 40)
	if got := f.formatValue(long, 10); got != "xxxxxxx..." {
		t.Errorf("formatValue = %q", got)
	}
	if got := f.formatValue(true, 0); got != "true" {
		t.Errorf("formatValue(true) = %q", got)
	}
	if got := f.formatValue(nil, 0); got != "-" {
		t.Errorf("formatValue(nil) = %q", got)
	}
	if got := f.formatValue(map[string]any{"a": json.Number("1")}, 0); got != `{"a":1}` {
		t.Errorf("formatValue(map) = %q", got)
	}
}

func TestTableFormatError(t *testing.T) {
	var buf bytes.Buffer
	f := NewTableFormatter()

	if err := f.FormatError(&buf, errors.New("boom")); err != nil {
		t.Fatalf("FormatError: %v", err)
	}
	if got := buf.String(); got != "Error: boom\n" {
		t.Errorf("FormatError = %q", got)
	}
}

// ---- json ----

func TestJSONFormatTree(t *testing.T) {
	var buf bytes.Buffer
	f := NewJSONFormatter()

	if err := f.FormatTree(&buf, "service", loadedTree(t), FormatOptions{Compact: true}); err != nil {
		t.Fatalf("FormatTree: %v", err)
	}

	want := `{"name":"service","version":3,"values":{"name":"svc","port":9090,"note":"a\nb","token":"` +
		tree.Mask + `","endpoints":["a.example","b.example"],"tuning":{"level":3}}}` + "\n"
	if got := buf.String(); got != want {
		t.Errorf("FormatTree =\n%s\nwant\n%s", got, want)
	}
}

func TestJSONFormatTreeIndented(t *testing.T) {
	var buf bytes.Buffer
	f := NewJSONFormatter()

	if err := f.FormatTree(&buf, "service", loadedTree(t), FormatOptions{}); err != nil {
		t.Fatalf("FormatTree: %v", err)
	}

	out := buf.String()
	if !strings.Contains(out, "\n  \"values\": {") {
		t.Errorf("output not indented:\n%s", out)
	}
	// declaration order survives indentation
	if strings.Index(out, `"port"`) > strings.Index(out, `"note"`) {
		t.Errorf("keys reordered:\n%s", out)
	}
}

func TestJSONFormatTreeReveal(t *testing.T) {
	var buf bytes.Buffer
	f := NewJSONFormatter()

	if err := f.FormatTree(&buf, "service", loadedTree(t), FormatOptions{Reveal: true, Compact: true}); err != nil {
		t.Fatalf("FormatTree: %v", err)
	}
	if !strings.Contains(buf.String(), `"token":"hunter2"`) {
		t.Errorf("revealed output lacks the secret:\n%s", buf.String())
	}
}

func TestJSONFormatDiff(t *testing.T) {
	var buf bytes.Buffer
	f := NewJSONFormatter()

	if err := f.FormatDiff(&buf, "service", testChanges(), FormatOptions{Compact: true}); err != nil {
		t.Fatalf("FormatDiff: %v", err)
	}

	var out struct {
		Name    string `json:"name"`
		Count   int    `json:"count"`
		Changes []struct {
			Path     string `json:"path"`
			Previous any    `json:"previous"`
			Current  any    `json:"current"`
		} `json:"changes"`
	}
	if err := json.Unmarshal(buf.Bytes(), &out); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if out.Name != "service" || out.Count != 2 || len(out.Changes) != 2 {
		t.Fatalf("envelope = %+v", out)
	}
	if out.Changes[0].Path != "/port" || out.Changes[0].Previous != float64(8080) {
		t.Errorf("first change = %+v", out.Changes[0])
	}
	if out.Changes[1].Current != tree.Mask {
		t.Errorf("second change = %+v", out.Changes[1])
	}

	buf.Reset()
	if err := f.FormatDiff(&buf, "service", nil, FormatOptions{Compact: true}); err != nil {
		t.Fatalf("FormatDiff(empty): %v", err)
	}
	if got := buf.String(); got != `{"name":"service","count":0,"changes":[]}`+"\n" {
		t.Errorf("empty diff = %q", got)
	}
}

func TestJSONFormatHistory(t *testing.T) {
	var buf bytes.Buffer
	f := NewJSONFormatter()

	if err := f.FormatHistory(&buf, "service", testHistory(), FormatOptions{Compact: true}); err != nil {
		t.Fatalf("FormatHistory: %v", err)
	}

	out := buf.String()
	if strings.Contains(out, "hunter2") {
		t.Fatalf("history output leaks document bytes:\n%s", out)
	}
	for _, want := range []string{`"count":2`, `"version":2`, `"description":"bump port"`, `"schema_hash":"abc123"`} {
		if !strings.Contains(out, want) {
			t.Errorf("output lacks %q:\n%s", want, out)
		}
	}
}

func TestJSONFormatError(t *testing.T) {
	var buf bytes.Buffer
	f := NewJSONFormatter()

	if err := f.FormatError(&buf, errors.New("boom")); err != nil {
		t.Fatalf("FormatError: %v", err)
	}

	var out map[string]string
	if err := json.Unmarshal(buf.Bytes(), &out); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if out["error"] != "boom" {
		t.Errorf("error = %q", out["error"])
	}
}

// ---- yaml ----

func TestYAMLFormatTree(t *testing.T) {
	var buf bytes.Buffer
	f := NewYAMLFormatter()

	if err := f.FormatTree(&buf, "service", loadedTree(t), FormatOptions{}); err != nil {
		t.Fatalf("FormatTree: %v", err)
	}

	var out struct {
		Name    string         `yaml:"name"`
		Version int64          `yaml:"version"`
		Values  map[string]any `yaml:"values"`
	}
	if err := yaml.Unmarshal(buf.Bytes(), &out); err != nil {
		t.Fatalf("Unmarshal: %v\n%s", err, buf.String())
	}
	if out.Name != "service" || out.Version != 3 {
		t.Errorf("envelope = %+v", out)
	}
	if out.Values["token"] != tree.Mask {
		t.Errorf("token = %v, want the mask", out.Values["token"])
	}
	if out.Values["port"] != 9090 {
		t.Errorf("port = %v (%T), want 9090", out.Values["port"], out.Values["port"])
	}
	if out.Values["note"] != "a\nb" {
		t.Errorf("note = %q", out.Values["note"])
	}
	tuning, ok := out.Values["tuning"].(map[string]any)
	if !ok || tuning["level"] != 3 {
		t.Errorf("tuning = %v", out.Values["tuning"])
	}

	// declaration order, not the alphabetical order a map marshal gives
	s := buf.String()
	if !(strings.Index(s, "  name:") < strings.Index(s, "  port:") &&
		strings.Index(s, "  port:") < strings.Index(s, "  note:") &&
		strings.Index(s, "  note:") < strings.Index(s, "  token:")) {
		t.Errorf("keys reordered:\n%s", s)
	}
}

func TestYAMLFormatTreeDefaults(t *testing.T) {
	var buf bytes.Buffer
	f := NewYAMLFormatter()

	if err := f.FormatTree(&buf, "service", defaultsTree(t), FormatOptions{}); err != nil {
		t.Fatalf("FormatTree: %v", err)
	}

	out := buf.String()
	if !strings.Contains(out, "tuning: null") {
		t.Errorf("inactive group not null:\n%s", out)
	}
	if !strings.Contains(out, "token: null") {
		t.Errorf("unset secret not null:\n%s", out)
	}
}

func TestYAMLFormatDiff(t *testing.T) {
	var buf bytes.Buffer
	f := NewYAMLFormatter()

	if err := f.FormatDiff(&buf, "service", testChanges(), FormatOptions{}); err != nil {
		t.Fatalf("FormatDiff: %v", err)
	}

	out := buf.String()
	// numbers render as numbers, not quoted json.Number strings
	if !strings.Contains(out, "previous: 8080") {
		t.Errorf("previous value not numeric:\n%s", out)
	}
	if !strings.Contains(out, "path: /port") {
		t.Errorf("missing path:\n%s", out)
	}
	if !strings.Contains(out, "count: 2") {
		t.Errorf("missing count:\n%s", out)
	}
}

func TestYAMLFormatHistory(t *testing.T) {
	var buf bytes.Buffer
	f := NewYAMLFormatter()

	if err := f.FormatHistory(&buf, "service", testHistory(), FormatOptions{}); err != nil {
		t.Fatalf("FormatHistory: %v", err)
	}

	out := buf.String()
	if strings.Contains(out, "hunter2") {
		t.Fatalf("history output leaks document bytes:\n%s", out)
	}
	for _, want := range []string{"version: 2", "description: bump port", "schema_hash: abc123"} {
		if !strings.Contains(out, want) {
			t.Errorf("output lacks %q:\n%s", want, out)
		}
	}
}

func TestYAMLFormatError(t *testing.T) {
	var buf bytes.Buffer
	f := NewYAMLFormatter()

	if err := f.FormatError(&buf, errors.New("boom")); err != nil {
		t.Fatalf("FormatError: %v", err)
	}
	if got := buf.String(); got != "error: boom\n" {
		t.Errorf("FormatError = %q", got)
	}
}

// ---- registry ----

func TestRegistry(t *testing.T) {
	r := NewRegistry()

	if err := r.Register(NewJSONFormatter()); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if err := r.Register(NewJSONFormatter()); err == nil {
		t.Error("duplicate registration succeeded")
	}

	f, ok := r.Get("json")
	if !ok || f.Name() != "json" {
		t.Errorf("Get(json) = %v, %v", f, ok)
	}
	if _, ok := r.Get("bogus"); ok {
		t.Error("Get(bogus) found a formatter")
	}

	// no table registered yet; Default falls back to what exists
	if f := r.Default(); f == nil || f.Name() != "json" {
		t.Errorf("Default() = %v", f)
	}

	if err := r.Register(NewTableFormatter()); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if f := r.Default(); f.Name() != "table" {
		t.Errorf("Default() = %s, want table", f.Name())
	}

	if err := r.SetDefault("yaml"); err == nil {
		t.Error("SetDefault accepted an unregistered formatter")
	}
	if err := r.SetDefault("json"); err != nil {
		t.Fatalf("SetDefault: %v", err)
	}
	if f := r.Default(); f.Name() != "json" {
		t.Errorf("Default() = %s, want json", f.Name())
	}

	if got := r.List(); !reflect.DeepEqual(got, []string{"json", "table"}) {
		t.Errorf("List() = %v", got)
	}
}

func TestDefaultRegistry(t *testing.T) {
	if got := List(); !reflect.DeepEqual(got, []string{"json", "table", "yaml"}) {
		t.Errorf("List() = %v", got)
	}
	if f := Default(); f == nil || f.Name() != "table" {
		t.Errorf("Default() = %v", f)
	}
	if _, ok := Get("yaml"); !ok {
		t.Error("yaml formatter not registered")
	}
}

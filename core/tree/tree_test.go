package tree

import (
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"testing"

	"github.com/artpar/conftree/core/schema"
	"github.com/artpar/conftree/ports"
)

const serviceSchema = `{
	"type": "object",
	"additionalProperties": false,
	"title": "Service",
	"propertyOrder": ["name", "port", "ratio", "debug", "build", "internal", "hosts", "mirrors", "labels", "token", "creds", "mode", "primary", "tuning", "layout", "extra"],
	"required": ["name", "port"],
	"properties": {
		"name": {"type": "string", "minLength": 1, "default": "core"},
		"port": {"type": "integer", "minimum": 1, "maximum": 65535, "default": 8080},
		"ratio": {"oneOf": [{"type": "number", "minimum": 0}, {"type": "null"}], "default": null},
		"debug": {"type": "boolean", "default": false},
		"build": {"type": "string", "readOnly": true, "default": "v1"},
		"internal": {"type": "string", "x-meta": {"isInvisible": true}},
		"hosts": {"type": "array", "items": {"type": "string", "minLength": 1}, "minItems": 1, "default": ["a.example"]},
		"mirrors": {"oneOf": [{"type": "array", "items": {"type": "string"}}, {"type": "null"}]},
		"labels": {"type": "object"},
		"token": {"oneOf": [{"type": "string"}, {"type": "null"}], "x-meta": {"isSecret": true}},
		"creds": {"type": "object", "x-meta": {"isSecret": true}},
		"mode": {"type": "string", "enum": ["fast", "safe"], "default": "fast"},
		"primary": {"oneOf": [{"type": "string"}, {"type": "null"}], "x-meta": {"variant": {"type": "config", "path": "/hosts"}}},
		"tuning": {
			"type": "object",
			"additionalProperties": false,
			"propertyOrder": ["level"],
			"properties": {"level": {"type": "integer", "minimum": 0, "default": 2}},
			"x-meta": {"activation": {"isAllowChange": true}}
		},
		"layout": {"x-meta": {"structure": {"rule": "listing"}}},
		"extra": {"type": "string", "format": "json"}
	}
}`

// listingRule accepts objects that carry an "entries" key.
type listingRule struct{}

func (listingRule) Has(rule string) bool { return rule == "listing" }

func (listingRule) Validate(rule string, value any) (any, error) {
	if rule != "listing" {
		return nil, ports.ErrUnknownRule
	}
	m, ok := value.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("must be an object")
	}
	if _, ok := m["entries"]; !ok {
		return nil, fmt.Errorf("entries is required")
	}
	return m, nil
}

type staticSource map[string][]string

func (s staticSource) Candidates(name string) ([]string, error) {
	if name == "broken" {
		return nil, fmt.Errorf("source offline")
	}
	vals, ok := s[name]
	if !ok {
		return nil, ports.ErrUnknownSource
	}
	return vals, nil
}

func testCollab() Collaborators {
	return Collaborators{
		Variants:   staticSource{"regions": {"eu-1", "us-1"}},
		Structures: listingRule{},
	}
}

func mustDescriptor(t *testing.T, doc string) *schema.Descriptor {
	t.Helper()
	d, err := schema.Parse([]byte(doc))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	return d
}

func mustDefaults(t *testing.T) *Tree {
	t.Helper()
	tr, err := FromDefaults(mustDescriptor(t, serviceSchema), testCollab())
	if err != nil {
		t.Fatalf("FromDefaults: %v", err)
	}
	return tr
}

func mustGet(t *testing.T, tr *Tree, path string) any {
	t.Helper()
	v, err := tr.Get(path)
	if err != nil {
		t.Fatalf("Get(%s): %v", path, err)
	}
	return v
}

func TestFromDefaults(t *testing.T) {
	tr := mustDefaults(t)

	tests := []struct {
		path string
		want any
	}{
		{"/name", "core"},
		{"/port", json.Number("8080")},
		{"/ratio", nil},
		{"/debug", false},
		{"/build", "v1"},
		{"/hosts", []any{"a.example"}},
		{"/mirrors", nil},
		{"/labels", nil},
		{"/token", nil},
		{"/mode", "fast"},
		{"/primary", nil},
		{"/tuning", nil},
		{"/layout", nil},
		{"/extra", nil},
	}
	for _, tt := range tests {
		if got := mustGet(t, tr, tt.path); !reflect.DeepEqual(got, tt.want) {
			t.Errorf("Get(%s) = %#v, want %#v", tt.path, got, tt.want)
		}
	}

	if tr.Dirty() {
		t.Error("fresh default tree is dirty")
	}
	if res := tr.Check(); !res.Complete() {
		t.Errorf("defaults incomplete: %v", res.Issues)
	}
}

func TestFromDefaultsNeedsRuleValidator(t *testing.T) {
	doc := `{
		"type": "object",
		"additionalProperties": false,
		"propertyOrder": ["layout"],
		"properties": {"layout": {"x-meta": {"structure": {"rule": "nobody-has-this"}}}}
	}`
	desc := mustDescriptor(t, doc)

	for _, collab := range []Collaborators{testCollab(), {}} {
		_, err := FromDefaults(desc, collab)
		var serr *schema.SchemaError
		if !errors.As(err, &serr) {
			t.Fatalf("FromDefaults error = %v, want SchemaError", err)
		}
	}
}

func TestFromDocument(t *testing.T) {
	doc := `{
		"name": "svc", "port": 9090, "ratio": 0.5, "debug": true,
		"build": "v2", "internal": "probe", "hosts": ["a.example", "b.example"],
		"mirrors": [], "labels": {"team": "infra"}, "token": "hunter2",
		"creds": {"user": "u"}, "mode": "safe", "primary": "b.example",
		"tuning": {"level": 7}, "layout": {"entries": ["a"]}, "extra": "{\"a\":1}"
	}`
	tr, err := FromDocumentJSON(mustDescriptor(t, serviceSchema), []byte(doc), testCollab())
	if err != nil {
		t.Fatalf("FromDocumentJSON: %v", err)
	}

	tests := []struct {
		path string
		want any
	}{
		{"/name", "svc"},
		{"/port", json.Number("9090")},
		{"/ratio", json.Number("0.5")},
		{"/mirrors", []any{}},
		{"/labels", map[string]any{"team": "infra"}},
		{"/token", Mask},
		{"/mode", "safe"},
		{"/primary", "b.example"},
		{"/tuning/level", json.Number("7")},
		{"/hosts[1]", "b.example"},
		{"/layout", map[string]any{"entries": []any{"a"}}},
	}
	for _, tt := range tests {
		if got := mustGet(t, tr, tt.path); !reflect.DeepEqual(got, tt.want) {
			t.Errorf("Get(%s) = %#v, want %#v", tt.path, got, tt.want)
		}
	}

	if v, err := tr.Reveal("/token"); err != nil || v != "hunter2" {
		t.Errorf("Reveal(/token) = %v, %v, want hunter2", v, err)
	}
	if tr.Dirty() {
		t.Error("freshly loaded tree is dirty")
	}

	n, err := tr.Lookup("/tuning")
	if err != nil {
		t.Fatalf("Lookup(/tuning): %v", err)
	}
	if !n.Active() {
		t.Error("tuning loaded from an object is not active")
	}
}

func TestFromDocumentNullMeansUnset(t *testing.T) {
	// Explicit nulls and missing keys load identically, including a null
	// on a key that rejects null writes.
	doc := `{"name": "svc", "port": 1, "labels": null, "hosts": null, "tuning": null, "ratio": null}`
	tr, err := FromDocumentJSON(mustDescriptor(t, serviceSchema), []byte(doc), testCollab())
	if err != nil {
		t.Fatalf("FromDocumentJSON: %v", err)
	}

	for _, path := range []string{"/labels", "/hosts", "/tuning", "/ratio", "/token"} {
		if got := mustGet(t, tr, path); got != nil {
			t.Errorf("Get(%s) = %#v, want nil", path, got)
		}
	}
	if n, _ := tr.Lookup("/tuning"); n.Active() {
		t.Error("tuning loaded from null is active")
	}
}

func TestFromDocumentErrors(t *testing.T) {
	tests := []struct {
		name string
		doc  string
		path string
	}{
		{"unknown key", `{"name": "x", "port": 1, "bogus": true}`, "/bogus"},
		{"missing required", `{"name": "x"}`, "/port"},
		{"wrong scalar type", `{"name": "x", "port": "9090"}`, "/port"},
		{"constraint violation", `{"name": "x", "port": 0}`, "/port"},
		{"fractional integer", `{"name": "x", "port": 1.5}`, "/port"},
		{"list below minItems", `{"name": "x", "port": 1, "hosts": []}`, "/hosts"},
		{"list element type", `{"name": "x", "port": 1, "hosts": [1]}`, "/hosts[0]"},
		{"undeclared option payload", `{"name": "x", "port": 1, "mode": "turbo"}`, "/mode"},
		{"group from scalar", `{"name": "x", "port": 1, "tuning": 5}`, "/tuning"},
		{"variant not a candidate", `{"name": "x", "port": 1, "hosts": ["a"], "primary": "zzz"}`, "/primary"},
		{"structure rejected", `{"name": "x", "port": 1, "layout": {"nope": 1}}`, "/layout"},
		{"json field not json", `{"name": "x", "port": 1, "extra": "{oops"}`, "/extra"},
		{"root not an object", `[1, 2]`, "/"},
	}
	desc := mustDescriptor(t, serviceSchema)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := FromDocumentJSON(desc, []byte(tt.doc), testCollab())
			var merr *SchemaMismatchError
			if !errors.As(err, &merr) {
				t.Fatalf("error = %v, want SchemaMismatchError", err)
			}
			if merr.Path != tt.path {
				t.Errorf("Path = %s, want %s", merr.Path, tt.path)
			}
		})
	}
}

func TestFromDocumentVariantForwardReference(t *testing.T) {
	// The candidate list appears after the variant field in the
	// document; membership still resolves against the loaded tree.
	doc := `{"name": "x", "port": 1, "primary": "late.example", "hosts": ["late.example"]}`
	tr, err := FromDocumentJSON(mustDescriptor(t, serviceSchema), []byte(doc), testCollab())
	if err != nil {
		t.Fatalf("FromDocumentJSON: %v", err)
	}
	if got := mustGet(t, tr, "/primary"); got != "late.example" {
		t.Errorf("Get(/primary) = %v, want late.example", got)
	}
}

func TestResolveErrors(t *testing.T) {
	tr := mustDefaults(t)

	tests := []struct {
		name   string
		path   string
		reason schema.PathReason
	}{
		{"unknown field", "/missing", schema.PathNotFound},
		{"descend into leaf", "/name/sub", schema.PathNotAddressable},
		{"deactivated group", "/tuning/level", schema.PathNotAddressable},
		{"invisible field", "/internal", schema.PathNotAddressable},
		{"index out of range", "/hosts[5]", schema.PathNotFound},
		{"index on unset list", "/mirrors[0]", schema.PathNotFound},
		{"index on scalar", "/name[0]", schema.PathNotAddressable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tr.Lookup(tt.path)
			var perr *schema.PathError
			if !errors.As(err, &perr) {
				t.Fatalf("Lookup(%s) error = %v, want PathError", tt.path, err)
			}
			if perr.Reason != tt.reason {
				t.Errorf("Reason = %s, want %s", perr.Reason, tt.reason)
			}
		})
	}

	if _, err := tr.Lookup("/hosts[x]"); err == nil {
		t.Error("Lookup(/hosts[x]) accepted a malformed index")
	}
}

func TestResolveAfterActivate(t *testing.T) {
	tr := mustDefaults(t)

	if err := tr.Activate("/tuning"); err != nil {
		t.Fatalf("Activate: %v", err)
	}
	if got := mustGet(t, tr, "/tuning/level"); got != json.Number("2") {
		t.Errorf("Get(/tuning/level) = %v, want 2", got)
	}
}

func TestCheckIncomplete(t *testing.T) {
	doc := `{
		"type": "object",
		"additionalProperties": false,
		"propertyOrder": ["owner", "replicas"],
		"required": ["owner", "replicas"],
		"properties": {
			"owner": {"type": "string"},
			"replicas": {"type": "array", "items": {"type": "string"}, "minItems": 1}
		}
	}`
	tr, err := FromDefaults(mustDescriptor(t, doc), Collaborators{})
	if err != nil {
		t.Fatalf("FromDefaults: %v", err)
	}

	res := tr.Check()
	if res.Complete() {
		t.Fatal("tree with unset required fields reports complete")
	}
	if len(res.Issues) != 2 {
		t.Fatalf("Issues = %v, want 2 entries", res.Issues)
	}
	if res.Issues[0].Path != "/owner" || res.Issues[1].Path != "/replicas" {
		t.Errorf("issue paths = %s, %s", res.Issues[0].Path, res.Issues[1].Path)
	}

	if err := tr.Set("/owner", "team-a"); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if err := tr.Append("/replicas", "r1"); err != nil {
		t.Fatalf("Append: %v", err)
	}
	if res := tr.Check(); !res.Complete() {
		t.Errorf("still incomplete: %v", res.Issues)
	}
}

func TestExternalVariants(t *testing.T) {
	doc := `{
		"type": "object",
		"additionalProperties": false,
		"propertyOrder": ["region", "zone", "realm", "flaky"],
		"required": ["region", "realm"],
		"properties": {
			"region": {"type": "string", "x-meta": {"variant": {"type": "external", "name": "regions"}}},
			"zone": {"type": "string", "x-meta": {"variant": {"type": "external", "name": "zones"}}},
			"realm": {"type": "string", "x-meta": {"variant": {"type": "external", "name": "realms"}}},
			"flaky": {"type": "string", "x-meta": {"variant": {"type": "external", "name": "broken"}}}
		}
	}`
	tr, err := FromDefaults(mustDescriptor(t, doc), testCollab())
	if err != nil {
		t.Fatalf("FromDefaults: %v", err)
	}

	if err := tr.Set("/region", "eu-1"); err != nil {
		t.Errorf("Set(/region, eu-1): %v", err)
	}
	if err := tr.Set("/region", "mars"); err == nil {
		t.Error("Set(/region, mars) accepted a non-candidate")
	}

	// unknown source, optional field: value passes unchecked
	if err := tr.Set("/zone", "anything"); err != nil {
		t.Errorf("Set(/zone): %v", err)
	}

	// unknown source, required field: refuse
	if err := tr.Set("/realm", "x"); err == nil {
		t.Error("Set(/realm) accepted with no candidate source")
	}

	// resolver failure is an error regardless of required
	if err := tr.Set("/flaky", "x"); err == nil {
		t.Error("Set(/flaky) accepted despite failing source")
	}
}

func TestDirtyPaths(t *testing.T) {
	tr := mustDefaults(t)

	if err := tr.Set("/name", "svc"); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if err := tr.Set("/debug", true); err != nil {
		t.Fatalf("Set: %v", err)
	}

	var got []string
	for _, p := range tr.DirtyPaths() {
		got = append(got, p.String())
	}
	want := []string{"/name", "/debug"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("DirtyPaths = %v, want %v", got, want)
	}
}

func TestVersion(t *testing.T) {
	tr := mustDefaults(t)
	if tr.Version() != 0 {
		t.Errorf("Version = %d, want 0", tr.Version())
	}
	tr.SetVersion(7)
	if tr.Version() != 7 {
		t.Errorf("Version = %d, want 7", tr.Version())
	}
}

func TestMarkSaved(t *testing.T) {
	tr := mustDefaults(t)

	if err := tr.Set("/name", "svc"); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if err := tr.Set("/token", "s3cr3t"); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if !tr.Dirty() {
		t.Fatal("tree should be dirty before MarkSaved")
	}

	tr.MarkSaved()

	if tr.Dirty() {
		t.Error("tree still dirty after MarkSaved")
	}
	if got := tr.DirtyPaths(); len(got) != 0 {
		t.Errorf("DirtyPaths = %v, want none", got)
	}

	// The fresh secret now counts as unchanged.
	_, omitted := tr.SerializeWithPolicy(OmitUnchangedSecrets)
	var paths []string
	for _, p := range omitted {
		paths = append(paths, p.String())
	}
	if !reflect.DeepEqual(paths, []string{"/token", "/creds"}) {
		t.Errorf("omitted = %v, want [/token /creds]", paths)
	}
	if v, err := tr.Reveal("/token"); err != nil || v != "s3cr3t" {
		t.Errorf("Reveal(/token) = %v, %v", v, err)
	}
}

func TestMarkChangedSince(t *testing.T) {
	desc := mustDescriptor(t, serviceSchema)

	base, err := FromDocumentJSON(desc, []byte(`{"name": "svc", "port": 9090, "hosts": ["a.example"]}`), testCollab())
	if err != nil {
		t.Fatalf("base FromDocumentJSON: %v", err)
	}
	local, err := FromDocumentJSON(desc, []byte(`{
		"name": "svc2", "port": 9090,
		"hosts": ["a.example", "b.example"],
		"tuning": {"level": 3}
	}`), testCollab())
	if err != nil {
		t.Fatalf("local FromDocumentJSON: %v", err)
	}

	if local.Dirty() {
		t.Fatal("freshly loaded tree should not be dirty")
	}
	local.MarkChangedSince(base)

	var got []string
	for _, p := range local.DirtyPaths() {
		got = append(got, p.String())
	}
	want := []string{"/name", "/hosts", "/hosts[1]", "/tuning"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("DirtyPaths = %v, want %v", got, want)
	}
}

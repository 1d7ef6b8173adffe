package resolver_test

import (
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/artpar/conftree/adapters/resolver"
	"github.com/artpar/conftree/ports"
)

func TestStatic(t *testing.T) {
	s := resolver.Static{"regions": {"eu-1", "us-1"}}

	got, err := s.Candidates("regions")
	if err != nil {
		t.Fatalf("Candidates failed: %v", err)
	}
	if !reflect.DeepEqual(got, []string{"eu-1", "us-1"}) {
		t.Errorf("Candidates = %v", got)
	}

	// the returned slice is a copy
	got[0] = "mutated"
	again, _ := s.Candidates("regions")
	if again[0] != "eu-1" {
		t.Error("Candidates aliases internal state")
	}

	if _, err := s.Candidates("nope"); !errors.Is(err, ports.ErrUnknownSource) {
		t.Errorf("unknown source error = %v, want ErrUnknownSource", err)
	}
}

func TestFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "variants.yaml")
	content := "regions:\n  - eu-1\n  - us-1\nzones:\n  - a\n"
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}

	s, err := resolver.FromFile(path)
	if err != nil {
		t.Fatalf("FromFile failed: %v", err)
	}
	got, err := s.Candidates("zones")
	if err != nil || !reflect.DeepEqual(got, []string{"a"}) {
		t.Errorf("Candidates(zones) = %v, %v", got, err)
	}

	if _, err := resolver.FromFile(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("FromFile accepted a missing file")
	}
}

// countingResolver counts lookups per name.
type countingResolver struct {
	calls map[string]int
	table resolver.Static
}

func (c *countingResolver) Candidates(name string) ([]string, error) {
	c.calls[name]++
	return c.table.Candidates(name)
}

func TestCached(t *testing.T) {
	backing := &countingResolver{
		calls: make(map[string]int),
		table: resolver.Static{"regions": {"eu-1"}},
	}
	c := resolver.NewCached(backing)

	for i := 0; i < 3; i++ {
		got, err := c.Candidates("regions")
		if err != nil || !reflect.DeepEqual(got, []string{"eu-1"}) {
			t.Fatalf("Candidates = %v, %v", got, err)
		}
	}
	if backing.calls["regions"] != 1 {
		t.Errorf("backing lookups = %d, want 1", backing.calls["regions"])
	}

	// errors pass through uncached
	for i := 0; i < 2; i++ {
		if _, err := c.Candidates("nope"); !errors.Is(err, ports.ErrUnknownSource) {
			t.Fatalf("error = %v", err)
		}
	}
	if backing.calls["nope"] != 2 {
		t.Errorf("error lookups = %d, want 2 (not cached)", backing.calls["nope"])
	}

	c.Forget("regions")
	c.Candidates("regions")
	if backing.calls["regions"] != 2 {
		t.Errorf("lookups after Forget = %d, want 2", backing.calls["regions"])
	}
}

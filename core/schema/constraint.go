package schema

import (
	"fmt"
	"math/big"
	"regexp"
	"unicode/utf8"
)

// Constraints holds the kind-specific validation limits declared on a
// schema node. Nil pointers mean "not constrained".
type Constraints struct {
	// String constraints
	MinLength *int
	MaxLength *int
	Pattern   string

	// Numeric constraints
	Min *big.Float
	Max *big.Float

	// Collection constraints
	MinItems *int
	MaxItems *int

	pattern *regexp.Regexp
}

// Violation reports a single constraint failure. The value tree wraps it
// with path and kind context.
type Violation struct {
	Constraint string
	Message    string
}

func (v *Violation) Error() string {
	return v.Message
}

// CheckString validates a string value against the length and pattern
// constraints. Returns nil when all pass. Lengths count characters, not
// bytes.
func (c Constraints) CheckString(s string) *Violation {
	n := utf8.RuneCountInString(s)
	if c.MinLength != nil && n < *c.MinLength {
		return &Violation{
			Constraint: "minLength",
			Message:    fmt.Sprintf("must be at least %d characters", *c.MinLength),
		}
	}
	if c.MaxLength != nil && n > *c.MaxLength {
		return &Violation{
			Constraint: "maxLength",
			Message:    fmt.Sprintf("must be at most %d characters", *c.MaxLength),
		}
	}
	if c.Pattern != "" {
		re := c.pattern
		if re == nil {
			var err error
			re, err = regexp.Compile(c.Pattern)
			if err != nil {
				return nil // invalid pattern is caught at parse time
			}
		}
		if !re.MatchString(s) {
			return &Violation{
				Constraint: "pattern",
				Message:    fmt.Sprintf("does not match pattern %q", c.Pattern),
			}
		}
	}
	return nil
}

// CheckNumber validates a numeric value against min/max. Comparison is
// exact; values arrive as arbitrary-precision floats.
func (c Constraints) CheckNumber(n *big.Float) *Violation {
	if c.Min != nil && n.Cmp(c.Min) < 0 {
		return &Violation{
			Constraint: "min",
			Message:    fmt.Sprintf("must be at least %s", c.Min.Text('f', -1)),
		}
	}
	if c.Max != nil && n.Cmp(c.Max) > 0 {
		return &Violation{
			Constraint: "max",
			Message:    fmt.Sprintf("must be at most %s", c.Max.Text('f', -1)),
		}
	}
	return nil
}

// CheckItems validates a collection length against minItems/maxItems.
func (c Constraints) CheckItems(n int) *Violation {
	if c.MinItems != nil && n < *c.MinItems {
		return &Violation{
			Constraint: "minItems",
			Message:    fmt.Sprintf("must have at least %d items", *c.MinItems),
		}
	}
	if c.MaxItems != nil && n > *c.MaxItems {
		return &Violation{
			Constraint: "maxItems",
			Message:    fmt.Sprintf("must have at most %d items", *c.MaxItems),
		}
	}
	return nil
}

// compilePattern pre-compiles the pattern during parse so per-write
// checks don't recompile. Invalid patterns are a schema fault.
func (c *Constraints) compilePattern() error {
	if c.Pattern == "" {
		return nil
	}
	re, err := regexp.Compile(c.Pattern)
	if err != nil {
		return fmt.Errorf("invalid pattern %q: %w", c.Pattern, err)
	}
	c.pattern = re
	return nil
}

package schema

import (
	"fmt"
	"strconv"
	"strings"
)

// Segment is one step of a path: a child name, optionally followed by a
// list element index ("[2]").
type Segment struct {
	Name  string
	Index int // -1 when the segment carries no index
}

// Path addresses a node in a descriptor or value tree. The canonical text
// form is "/group/field", with an optional "[i]" suffix on list segments.
type Path []Segment

// ParsePath parses the textual form of a path. A leading slash is
// optional. An empty path addresses the root.
func ParsePath(s string) (Path, error) {
	s = strings.TrimPrefix(s, "/")
	if s == "" {
		return Path{}, nil
	}

	parts := strings.Split(s, "/")
	p := make(Path, 0, len(parts))
	for _, part := range parts {
		if part == "" {
			return nil, fmt.Errorf("invalid path %q: empty segment", s)
		}

		seg := Segment{Name: part, Index: -1}
		if open := strings.IndexByte(part, '['); open >= 0 {
			if !strings.HasSuffix(part, "]") {
				return nil, fmt.Errorf("invalid path %q: unterminated index in %q", s, part)
			}
			idx, err := strconv.Atoi(part[open+1 : len(part)-1])
			if err != nil || idx < 0 {
				return nil, fmt.Errorf("invalid path %q: bad index in %q", s, part)
			}
			seg.Name = part[:open]
			seg.Index = idx
			if seg.Name == "" {
				return nil, fmt.Errorf("invalid path %q: index without a name", s)
			}
		}
		p = append(p, seg)
	}

	return p, nil
}

// String returns the canonical text form, always with a leading slash.
func (p Path) String() string {
	if len(p) == 0 {
		return "/"
	}
	var b strings.Builder
	for _, seg := range p {
		b.WriteByte('/')
		b.WriteString(seg.Name)
		if seg.Index >= 0 {
			b.WriteByte('[')
			b.WriteString(strconv.Itoa(seg.Index))
			b.WriteByte(']')
		}
	}
	return b.String()
}

// Child returns a new path descending into the named child.
func (p Path) Child(name string) Path {
	out := make(Path, len(p), len(p)+1)
	copy(out, p)
	return append(out, Segment{Name: name, Index: -1})
}

// WithIndex returns a copy of the path whose final segment carries the
// given list element index.
func (p Path) WithIndex(i int) Path {
	out := make(Path, len(p))
	copy(out, p)
	out[len(out)-1].Index = i
	return out
}

// PathReason distinguishes the two resolution failure modes.
type PathReason string

const (
	// PathNotFound means no child with the given name exists.
	PathNotFound PathReason = "not_found"

	// PathNotAddressable means the path descends into a deactivated
	// group, an invisible field, or a leaf that has no children.
	PathNotAddressable PathReason = "not_addressable"
)

// PathError reports a failed path resolution.
type PathError struct {
	Path   string
	Reason PathReason
	Detail string
}

func (e *PathError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("path %s: %s: %s", e.Path, e.Reason, e.Detail)
	}
	return fmt.Sprintf("path %s: %s", e.Path, e.Reason)
}

// NotFound builds a PathError with reason PathNotFound.
func NotFound(p Path, detail string) *PathError {
	return &PathError{Path: p.String(), Reason: PathNotFound, Detail: detail}
}

// NotAddressable builds a PathError with reason PathNotAddressable.
func NotAddressable(p Path, detail string) *PathError {
	return &PathError{Path: p.String(), Reason: PathNotAddressable, Detail: detail}
}

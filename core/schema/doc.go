/*
Package schema parses configuration schema documents into immutable
descriptor trees.

A schema document is a JSON Schema shaped object annotated with an
"x-meta" vendor block. The parser classifies every node into a field
kind, extracts titles, defaults and constraints, and rejects malformed
documents with a SchemaError naming the offending path.

# Field Kinds

Every parsed node gets exactly one kind:

  - string:            Single-line text
  - text:              Multi-line text (x-meta.stringExtra.isMultiline)
  - json:              Text that must carry valid JSON (format: json)
  - secret:            Sensitive text, masked on read (x-meta.isSecret)
  - integer:           Whole number, arbitrary precision
  - float:             Decimal number, arbitrary precision
  - boolean:           true or false
  - list:              Ordered elements of one declared item shape
  - map:               Free-form string-to-string object
  - secret_map:        Map whose values are masked on read
  - structure:         Free-form value checked by a named external rule
  - variant:           String restricted to externally supplied candidates
  - option:            One of a fixed set of declared payloads (enum)
  - group:             Closed object with ordered named children
  - activatable_group: Group that can be switched off as a whole

Classification precedence: a variant marker beats a structure marker,
which beats enum, which beats the declared type. A closed object
(additionalProperties: false) is a group; an open object is a map.

# Nullability

A nullable field is declared as a oneOf pair of a typed branch and a
null branch:

	{"oneOf": [{"type": "integer", "minimum": 0}, {"type": "null"}]}

Surface keys (title, description, default, x-meta) may stay on the
outer node; the typed branch supplies the shape. Activatable groups
are implicitly nullable because null encodes the deactivated state.

# A Minimal Document

	{
	  "type": "object",
	  "additionalProperties": false,
	  "properties": {
	    "workers":   {"type": "integer", "default": 4, "minimum": 1},
	    "log_level": {"type": "string", "enum": ["debug", "info", "error"], "default": "info"}
	  },
	  "required": ["workers"]
	}

# Parsing

Load a schema from bytes or a file (JSON or YAML):

	desc, err := schema.Parse(data)
	desc, err := schema.ParseFile("schema.yaml")

Descriptor trees are read-only after Parse returns and may be shared
freely between goroutines. Cache deduplicates them by content hash so
every document of the same schema version reuses one tree. Field order
inside "properties" is preserved.
*/
package schema

package app

import (
	"encoding/base64"
	"fmt"

	"github.com/artpar/conftree/core/schema"
)

// sealSecrets rewrites every secret field of doc in place, replacing
// plaintext with base64-wrapped sealed bytes. Without a sealer the
// document is stored as serialized.
func (s *Session) sealSecrets(doc map[string]any) error {
	if s.sealer == nil {
		return nil
	}
	return s.transformSecrets(doc, func(p schema.Path, plain string) (string, error) {
		sealed, err := s.sealer.Seal([]byte(plain))
		if err != nil {
			return "", fmt.Errorf("seal %s: %w", p, err)
		}
		return base64.StdEncoding.EncodeToString(sealed), nil
	})
}

// openSecrets reverses sealSecrets in place.
func (s *Session) openSecrets(doc map[string]any) error {
	if s.sealer == nil {
		return nil
	}
	return s.transformSecrets(doc, func(p schema.Path, stored string) (string, error) {
		raw, err := base64.StdEncoding.DecodeString(stored)
		if err != nil {
			return "", fmt.Errorf("open %s: %w", p, err)
		}
		plain, err := s.sealer.Open(raw)
		if err != nil {
			return "", fmt.Errorf("open %s: %w", p, err)
		}
		return string(plain), nil
	})
}

// transformSecrets applies fn to every secret string in doc, per entry
// for secret maps. Unset secrets and secrets inside deactivated groups
// are left alone.
func (s *Session) transformSecrets(doc map[string]any, fn func(schema.Path, string) (string, error)) error {
	for _, p := range s.desc.SecretPaths() {
		parent := doc
		for _, seg := range p[:len(p)-1] {
			next, ok := parent[seg.Name].(map[string]any)
			if !ok {
				parent = nil
				break
			}
			parent = next
		}
		if parent == nil {
			continue
		}

		switch v := parent[p[len(p)-1].Name].(type) {
		case string:
			out, err := fn(p, v)
			if err != nil {
				return err
			}
			parent[p[len(p)-1].Name] = out
		case map[string]any:
			for k, ev := range v {
				str, ok := ev.(string)
				if !ok {
					continue
				}
				out, err := fn(p, str)
				if err != nil {
					return err
				}
				v[k] = out
			}
		}
	}
	return nil
}

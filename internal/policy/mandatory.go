package policy

import (
	"encoding/json"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

// MandatoryEntry is either a single required control or a group of which at
// least one member must be configured.
type MandatoryEntry struct {
	Names []string
	Group bool
}

// Require builds a single-control entry.
func Require(name string) MandatoryEntry {
	return MandatoryEntry{Names: []string{name}}
}

// RequireAny builds a group entry.
func RequireAny(names ...string) MandatoryEntry {
	return MandatoryEntry{Names: names, Group: true}
}

func (e MandatoryEntry) String() string {
	if !e.Group && len(e.Names) == 1 {
		return e.Names[0]
	}
	return "[" + strings.Join(e.Names, ", ") + "]"
}

func (e MandatoryEntry) satisfied(has func(string) bool) bool {
	for _, name := range e.Names {
		if has(name) {
			return true
		}
	}
	return false
}

func newEntry(names []string, group bool) (MandatoryEntry, error) {
	if len(names) == 0 {
		return MandatoryEntry{}, fmt.Errorf("%w: empty entry", ErrMalformedMandatorySpec)
	}
	out := make([]string, 0, len(names))
	for _, n := range names {
		n = strings.ToUpper(strings.TrimSpace(n))
		if n == "" {
			return MandatoryEntry{}, fmt.Errorf("%w: empty control name", ErrMalformedMandatorySpec)
		}
		out = append(out, n)
	}
	return MandatoryEntry{Names: out, Group: group}, nil
}

// UnmarshalYAML accepts a scalar name or a sequence of names.
func (e *MandatoryEntry) UnmarshalYAML(node *yaml.Node) error {
	var (
		entry MandatoryEntry
		err   error
	)
	switch node.Kind {
	case yaml.ScalarNode:
		entry, err = newEntry([]string{node.Value}, false)
	case yaml.SequenceNode:
		var names []string
		if err := node.Decode(&names); err != nil {
			return fmt.Errorf("%w: %v", ErrMalformedMandatorySpec, err)
		}
		entry, err = newEntry(names, true)
	default:
		return fmt.Errorf("%w: line %d: expected a name or a list of names", ErrMalformedMandatorySpec, node.Line)
	}
	if err != nil {
		return err
	}
	*e = entry
	return nil
}

// UnmarshalJSON accepts a string or an array of strings.
func (e *MandatoryEntry) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err == nil {
		entry, err := newEntry([]string{name}, false)
		if err != nil {
			return err
		}
		*e = entry
		return nil
	}

	var names []string
	if err := json.Unmarshal(data, &names); err != nil {
		return fmt.Errorf("%w: expected a name or a list of names", ErrMalformedMandatorySpec)
	}
	entry, err := newEntry(names, true)
	if err != nil {
		return err
	}
	*e = entry
	return nil
}

// MandatorySpec is the ordered list of controls every card must configure
// before a transaction can be authorized.
type MandatorySpec []MandatoryEntry

// FirstMissing walks the entries in order and returns the first entry that has
// no configured member.
func (s MandatorySpec) FirstMissing(has func(name string) bool) (MandatoryEntry, bool) {
	for _, entry := range s {
		if !entry.satisfied(has) {
			return entry, true
		}
	}
	return MandatoryEntry{}, false
}

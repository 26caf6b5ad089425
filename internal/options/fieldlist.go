package options

import (
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

// AllSentinel is the model_fields value that disables allow-list filtering.
const AllSentinel = "__all__"

// FieldList is either "all fields" or an explicit allow-list.
// An explicit empty list hides every field.
type FieldList struct {
	All   bool
	Names []string
}

func AllFields() FieldList {
	return FieldList{All: true}
}

func Fields(names ...string) FieldList {
	return FieldList{Names: append([]string{}, names...)}
}

func (l FieldList) Contains(name string) bool {
	if l.All {
		return true
	}
	for _, n := range l.Names {
		if n == name {
			return true
		}
	}
	return false
}

func (l FieldList) String() string {
	if l.All {
		return AllSentinel
	}
	return strings.Join(l.Names, ",")
}

// UnmarshalYAML accepts "__all__", a sequence, or a comma separated scalar.
func (l *FieldList) UnmarshalYAML(value *yaml.Node) error {
	switch value.Kind {
	case yaml.ScalarNode:
		if strings.TrimSpace(value.Value) == AllSentinel {
			*l = AllFields()
			return nil
		}
		*l = FieldList{Names: splitCSV(value.Value)}
		return nil
	case yaml.SequenceNode:
		var names []string
		if err := value.Decode(&names); err != nil {
			return err
		}
		*l = FieldList{Names: trimAll(names)}
		return nil
	default:
		return fmt.Errorf("model_fields: expected %q, list or comma separated string", AllSentinel)
	}
}

func (l FieldList) MarshalYAML() (any, error) {
	if l.All {
		return AllSentinel, nil
	}
	if l.Names == nil {
		return []string{}, nil
	}
	return l.Names, nil
}

// StringList is a YAML list that also accepts a comma separated scalar.
type StringList []string

func (s *StringList) UnmarshalYAML(value *yaml.Node) error {
	switch value.Kind {
	case yaml.ScalarNode:
		*s = splitCSV(value.Value)
		return nil
	case yaml.SequenceNode:
		var items []string
		if err := value.Decode(&items); err != nil {
			return err
		}
		*s = trimAll(items)
		return nil
	default:
		return fmt.Errorf("expected list or comma separated string")
	}
}

func splitCSV(raw string) []string {
	out := []string{}
	for _, part := range strings.Split(raw, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func trimAll(items []string) []string {
	out := make([]string, 0, len(items))
	for _, item := range items {
		if p := strings.TrimSpace(item); p != "" {
			out = append(out, p)
		}
	}
	return out
}

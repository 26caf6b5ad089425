package model

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

// Allowed keys per object
var allowedModelKeys = map[string]bool{
	"app":         true,
	"table":       true,
	"primary_key": true,
	"fields":      true,
	"meta":        true,
}

var allowedFieldKeys = map[string]bool{
	"name":       true,
	"type":       true,
	"column":     true,
	"relation":   true,
	"model":      true,
	"fk":         true,
	"through":    true,
	"through_fk": true,
	"target_fk":  true,
	"upload_to":  true,
}

var allowedMetaKeys = map[string]bool{
	"model":            true,
	"generate_crud":    true,
	"model_fields":     true,
	"model_exclude":    true,
	"model_join":       true,
	"model_recursive":  true,
	"sensitive_fields": true,
}

// Allowed values for a scalar field type
var allowedFieldTypeValues = map[string]bool{
	"int":      true,
	"bigint":   true,
	"string":   true,
	"text":     true,
	"bool":     true,
	"float":    true,
	"decimal":  true,
	"date":     true,
	"datetime": true,
	"time":     true,
	"uuid":     true,
	"json":     true,
	"file":     true,
}

var allowedRelationValues = map[string]bool{
	BelongsTo:  true,
	HasOne:     true,
	HasMany:    true,
	ManyToMany: true,
}

func validateYAMLNode(node *yaml.Node, context string) error {
	switch node.Kind {
	case yaml.DocumentNode:
		for _, child := range node.Content {
			if err := validateYAMLNode(child, "model"); err != nil {
				return err
			}
		}

	case yaml.MappingNode:
		var allowedKeys map[string]bool
		switch context {
		case "model":
			allowedKeys = allowedModelKeys
		case "field":
			allowedKeys = allowedFieldKeys
		case "meta":
			allowedKeys = allowedMetaKeys
		default:
			allowedKeys = nil // free form
		}

		for i := 0; i < len(node.Content); i += 2 {
			keyNode := node.Content[i]
			valNode := node.Content[i+1]
			key := keyNode.Value

			if allowedKeys != nil && !allowedKeys[key] {
				return fmt.Errorf("unknown key '%s' in %s", key, context)
			}

			if context == "field" && key == "type" && !allowedFieldTypeValues[valNode.Value] {
				return fmt.Errorf("unknown type value '%s' in field", valNode.Value)
			}
			if context == "field" && key == "relation" && !allowedRelationValues[valNode.Value] {
				return fmt.Errorf("unknown relation value '%s' in field", valNode.Value)
			}

			nextContext := ""
			switch {
			case context == "model" && key == "fields":
				nextContext = "fields-seq"
			case context == "model" && key == "meta":
				nextContext = "meta"
			default:
				nextContext = context + "-value"
			}

			if err := validateYAMLNode(valNode, nextContext); err != nil {
				return err
			}
		}

	case yaml.SequenceNode:
		if context == "fields-seq" {
			for _, item := range node.Content {
				if item.Kind != yaml.MappingNode {
					return fmt.Errorf("field entries must be mappings")
				}
				if err := validateYAMLNode(item, "field"); err != nil {
					return err
				}
			}
		} else {
			for _, item := range node.Content {
				if err := validateYAMLNode(item, context); err != nil {
					return err
				}
			}
		}

	case yaml.ScalarNode:
		if context == "fields-seq" || context == "meta" {
			if node.Tag != "!!null" {
				return fmt.Errorf("%s must not be a scalar", context)
			}
		}
	}

	return nil
}

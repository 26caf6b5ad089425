package model

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"EasyAPI/internal/logger"

	"gopkg.in/yaml.v3"
)

// LoadModelsFromDir parses every *.yml file of dir. Links are not resolved.
func LoadModelsFromDir(dir string) ([]*Model, error) {
	files, err := filepath.Glob(filepath.Join(dir, "*.yml"))
	if err != nil {
		return nil, err
	}

	models := make([]*Model, 0, len(files))
	for _, path := range files {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		m, err := ParseModel(strings.TrimSuffix(filepath.Base(path), filepath.Ext(path)), data)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		models = append(models, m)
		logger.Info("model_loaded", map[string]any{
			"model":  m.Name,
			"fields": len(m.Fields),
			"file":   path,
		})
	}
	return models, nil
}

// ParseModel validates the YAML structure first, then decodes it.
func ParseModel(name string, data []byte) (*Model, error) {
	var root yaml.Node
	if err := yaml.Unmarshal(data, &root); err != nil {
		return nil, fmt.Errorf("YAML parse error: %w", err)
	}
	// root is the document, Content[0] the model mapping
	if len(root.Content) == 0 {
		return nil, fmt.Errorf("empty YAML")
	}
	if root.Content[0].Kind != yaml.MappingNode {
		return nil, fmt.Errorf("model must be a mapping")
	}
	if err := validateYAMLNode(root.Content[0], "model"); err != nil {
		return nil, fmt.Errorf("validation error: %w", err)
	}

	var m Model
	if err := root.Decode(&m); err != nil {
		return nil, fmt.Errorf("unmarshal error: %w", err)
	}
	m.Name = name
	return &m, nil
}

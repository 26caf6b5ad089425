package model

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"
)

var ErrInvalidKey = errors.New("invalid primary key")

// ParseKey converts a path segment into a value of the primary key's type.
func (m *Model) ParseKey(raw string) (any, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, ErrInvalidKey
	}
	pk := m.PKField()
	if pk == nil {
		return raw, nil
	}
	switch pk.Type {
	case "int", "bigint":
		v, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: %q", ErrInvalidKey, raw)
		}
		return v, nil
	case "uuid":
		v, err := uuid.Parse(raw)
		if err != nil {
			return nil, fmt.Errorf("%w: %q", ErrInvalidKey, raw)
		}
		return v.String(), nil
	default:
		return raw, nil
	}
}

package model

import (
	"encoding/json"
	"path/filepath"
	"strings"
)

// File is a stored file reference.
type File struct {
	Name    string
	Root    string
	BaseURL string
}

// Location reduces the file to a filesystem path, else a URL, else its name.
// A file without a name has no location and yields "".
func (f File) Location() string {
	if f.Name == "" {
		return ""
	}
	if f.Root != "" {
		return filepath.Join(f.Root, filepath.FromSlash(f.Name))
	}
	if f.BaseURL != "" {
		return strings.TrimRight(f.BaseURL, "/") + "/" + strings.TrimLeft(f.Name, "/")
	}
	return f.Name
}

func (f File) MarshalJSON() ([]byte, error) {
	return json.Marshal(f.Location())
}

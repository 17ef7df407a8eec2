package file

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/aretw0/doubtflow/pkg/domain"
)

// Loader implements ports.FlowLoader over flow documents on disk.
// Each path is either a document or a directory scanned (non-recursively) for
// .yaml, .yml and .json files in lexical order.
type Loader struct {
	paths []string
}

// NewLoader creates a Loader for the given paths.
func NewLoader(paths ...string) *Loader {
	return &Loader{paths: paths}
}

// Load reads every document. A missing path is an error: the caller asked for it explicitly.
func (l *Loader) Load(ctx context.Context) ([]domain.DoubtFlow, error) {
	var flows []domain.DoubtFlow
	for _, p := range l.paths {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		files, err := expand(p)
		if err != nil {
			return nil, err
		}
		for _, f := range files {
			loaded, err := LoadFile(f)
			if err != nil {
				return nil, err
			}
			flows = append(flows, loaded...)
		}
	}
	return flows, nil
}

// LoadFile reads a single flow document, picking the decoder from its extension.
func LoadFile(path string) ([]domain.DoubtFlow, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read flow file: %w", err)
	}
	format := FormatYAML
	if strings.EqualFold(filepath.Ext(path), ".json") {
		format = FormatJSON
	}
	flows, err := Parse(data, format)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return flows, nil
}

func expand(path string) ([]string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("failed to stat flow path: %w", err)
	}
	if !info.IsDir() {
		return []string{path}, nil
	}

	entries, err := os.ReadDir(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read flow directory: %w", err)
	}
	var files []string
	for _, e := range entries {
		if e.Type()&fs.ModeType != 0 {
			continue
		}
		switch strings.ToLower(filepath.Ext(e.Name())) {
		case ".yaml", ".yml", ".json":
			files = append(files, filepath.Join(path, e.Name()))
		}
	}
	return files, nil
}

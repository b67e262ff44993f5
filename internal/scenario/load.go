package scenario

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

type Format string

const (
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
)

// FormatFor picks the file format from an extension; anything that is not
// .yaml/.yml is treated as JSON.
func FormatFor(path string) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return FormatYAML
	default:
		return FormatJSON
	}
}

func Decode(r io.Reader, f Format) (Scenario, error) {
	var s Scenario
	switch f {
	case FormatYAML:
		if err := yaml.NewDecoder(r).Decode(&s); err != nil && err != io.EOF {
			return Scenario{}, fmt.Errorf("decode yaml scenario: %w", err)
		}
	default:
		if err := json.NewDecoder(r).Decode(&s); err != nil {
			return Scenario{}, fmt.Errorf("decode json scenario: %w", err)
		}
	}
	return s, nil
}

func Encode(w io.Writer, s Scenario, f Format) error {
	switch f {
	case FormatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(s); err != nil {
			return err
		}
		return enc.Close()
	default:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(s)
	}
}

func LoadFile(path string) (Scenario, error) {
	f, err := os.Open(path)
	if err != nil {
		return Scenario{}, err
	}
	defer f.Close()
	return Decode(f, FormatFor(path))
}

package config

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/spf13/afero"
	"gopkg.in/ini.v1"
	"gopkg.in/yaml.v3"
)

// Format identifies the textual encoding of a configuration file.
type Format int

// Supported configuration formats.
const (
	FormatINI Format = iota
	FormatYAML
	FormatJSON
)

// FormatOf picks the format from the file extension.
// Supported extensions: .fti, .ini, .cfg, .yaml, .yml, .json
func FormatOf(path string) (Format, error) {
	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".fti", ".ini", ".cfg":
		return FormatINI, nil
	case ".yaml", ".yml":
		return FormatYAML, nil
	case ".json":
		return FormatJSON, nil
	default:
		return 0, fmt.Errorf("unsupported config file extension: %q", ext)
	}
}

// FromFile loads configuration from a file, auto-detecting format by extension.
func FromFile(fs afero.Fs, path string) (Config, error) {
	format, err := FormatOf(path)
	if err != nil {
		return Config{}, err
	}

	data, err := afero.ReadFile(fs, path)
	if err != nil {
		return Config{}, fmt.Errorf("read config file: %w", err)
	}

	switch format {
	case FormatYAML:
		return FromYAML(data)
	case FormatJSON:
		return FromJSON(data)
	default:
		return FromINI(data)
	}
}

// FromINI parses INI data into a Config. Integer values become int so the
// typed accessors work the same for every format.
func FromINI(data []byte) (Config, error) {
	f, err := ini.Load(data)
	if err != nil {
		return Config{}, fmt.Errorf("parse ini: %w", err)
	}

	m := make(map[string]any)
	for _, sec := range f.Sections() {
		prefix := sec.Name() + ":"
		if sec.Name() == ini.DefaultSection {
			prefix = ""
		}
		for _, key := range sec.Keys() {
			m[prefix+key.Name()] = scalar(key.String())
		}
	}
	return New(m), nil
}

// FromYAML parses YAML data into a Config.
// Top-level mappings are sections and are flattened to "Section:key".
func FromYAML(data []byte) (Config, error) {
	var m map[string]any
	if err := yaml.Unmarshal(data, &m); err != nil {
		return Config{}, fmt.Errorf("parse yaml: %w", err)
	}
	return New(flatten(m)), nil
}

// FromJSON parses JSON data into a Config.
// Top-level objects are sections and are flattened to "Section:key".
func FromJSON(data []byte) (Config, error) {
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return Config{}, fmt.Errorf("parse json: %w", err)
	}
	return New(flatten(m)), nil
}

func flatten(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		section, ok := v.(map[string]any)
		if !ok {
			out[k] = v
			continue
		}
		for name, value := range section {
			out[k+":"+name] = value
		}
	}
	return out
}

func scalar(s string) any {
	if n, err := strconv.Atoi(s); err == nil {
		return n
	}
	return s
}

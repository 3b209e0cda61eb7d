package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/spf13/afero"
	"gopkg.in/ini.v1"
	"gopkg.in/yaml.v3"
)

// Rewrite sets the given "Section:key" values in the configuration file at
// path and writes it back in its own format. The write goes through a
// temporary file and a rename, so readers never observe a partial file.
//
// INI files keep their comments and key order. YAML and JSON files are
// re-encoded.
func Rewrite(fs afero.Fs, path string, updates map[string]string) error {
	format, err := FormatOf(path)
	if err != nil {
		return err
	}

	data, err := afero.ReadFile(fs, path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}

	var out []byte
	switch format {
	case FormatYAML:
		out, err = rewriteMap(data, updates, yaml.Unmarshal, yaml.Marshal)
	case FormatJSON:
		out, err = rewriteMap(data, updates, json.Unmarshal, func(v any) ([]byte, error) {
			return json.MarshalIndent(v, "", "  ")
		})
	default:
		out, err = rewriteINI(data, updates)
	}
	if err != nil {
		return err
	}

	info, err := fs.Stat(path)
	if err != nil {
		return fmt.Errorf("stat config file: %w", err)
	}
	if err := writeFileAtomic(fs, path, out, info.Mode().Perm()); err != nil {
		return fmt.Errorf("write config file: %w", err)
	}
	return nil
}

func rewriteINI(data []byte, updates map[string]string) ([]byte, error) {
	f, err := ini.Load(data)
	if err != nil {
		return nil, fmt.Errorf("parse ini: %w", err)
	}
	for _, key := range sortedKeys(updates) {
		section, name := splitKey(key)
		if section == "" {
			section = ini.DefaultSection
		}
		f.Section(section).Key(name).SetValue(updates[key])
	}

	var buf bytes.Buffer
	if _, err := f.WriteTo(&buf); err != nil {
		return nil, fmt.Errorf("encode ini: %w", err)
	}
	return buf.Bytes(), nil
}

func rewriteMap(
	data []byte,
	updates map[string]string,
	unmarshal func([]byte, any) error,
	marshal func(any) ([]byte, error),
) ([]byte, error) {
	m := make(map[string]any)
	if err := unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	for _, key := range sortedKeys(updates) {
		section, name := splitKey(key)
		value := scalar(updates[key])
		if section == "" {
			m[name] = value
			continue
		}
		sec, ok := m[section].(map[string]any)
		if !ok {
			sec = make(map[string]any)
			m[section] = sec
		}
		sec[name] = value
	}
	return marshal(m)
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// writeFileAtomic ensures atomic writes via rename. Atomicity is only
// guaranteed within one filesystem.
func writeFileAtomic(fs afero.Fs, filePath string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(filePath)
	tmp, err := afero.TempFile(fs, dir, "*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()

	defer func() { _ = fs.Remove(tmpName) }()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return err
	}

	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return err
	}

	if err := tmp.Close(); err != nil {
		return err
	}

	if err := fs.Chmod(tmpName, perm); err != nil {
		return err
	}

	return fs.Rename(tmpName, filePath)
}

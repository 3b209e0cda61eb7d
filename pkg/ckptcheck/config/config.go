package config

import (
	"maps"
	"sort"
	"strconv"
	"strings"
)

// Well-known keys consulted by the harness and the checkpoint library.
const (
	KeyNodeSize   = "Basic:node_size"
	KeyCkptIO     = "Basic:ckpt_io"
	KeyHead       = "Basic:head"
	KeyCkptDir    = "Basic:ckpt_dir"
	KeyGlobalDir  = "Basic:glbl_dir"
	KeyMetaDir    = "Basic:meta_dir"
	KeyMPITag     = "Advanced:mpi_tag"
	KeyExecID     = "Restart:exec_id"
	KeyFailure    = "Restart:failure"
	inlineKeyBase = "Basic:inline_l"
)

// InlineKey returns the key that controls whether checkpoints at level block
// the caller until persistence completes, e.g. "Basic:inline_l2".
func InlineKey(level int) string {
	return inlineKeyBase + strconv.Itoa(level)
}

// Config wraps a flattened "Section:key" map for type-safe value extraction.
// All accessor methods return default values if the key is missing
// or the value cannot be converted to the requested type.
type Config struct {
	data map[string]any
}

// New creates a Config from the given map.
// If data is nil, an empty Config is returned.
func New(data map[string]any) Config {
	if data == nil {
		data = make(map[string]any)
	}
	return Config{data: data}
}

// String returns the string value for key, or defaultVal if missing or not a string.
func (c Config) String(key, defaultVal string) string {
	v, ok := c.data[key]
	if !ok {
		return defaultVal
	}
	if s, ok := v.(string); ok {
		return s
	}
	return defaultVal
}

// Int returns the integer value for key, or defaultVal if missing or not convertible.
//
// Accepts:
//   - int: used directly
//   - int64: converted to int
//   - float64: converted to int (only if no fractional part)
func (c Config) Int(key string, defaultVal int) int {
	v, ok := c.data[key]
	if !ok {
		return defaultVal
	}
	switch val := v.(type) {
	case int:
		return val
	case int64:
		return int(val)
	case float64:
		// Only convert if there's no fractional part
		if val == float64(int(val)) {
			return int(val)
		}
	}
	return defaultVal
}

// Has returns true if the key exists in the config.
func (c Config) Has(key string) bool {
	_, ok := c.data[key]
	return ok
}

// With returns a copy of the config with key set to value.
// The receiver is not modified.
func (c Config) With(key string, value any) Config {
	data := make(map[string]any, len(c.data)+1)
	maps.Copy(data, c.data)
	data[key] = value
	return Config{data: data}
}

// Keys returns all keys in sorted order.
func (c Config) Keys() []string {
	keys := make([]string, 0, len(c.data))
	for k := range c.data {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Raw returns the underlying map.
// The returned map should not be modified.
func (c Config) Raw() map[string]any {
	return c.data
}

// splitKey separates "Section:key" into its parts. Keys without a section
// belong to the unnamed top level.
func splitKey(key string) (section, name string) {
	section, name, ok := strings.Cut(key, ":")
	if !ok {
		return "", key
	}
	return section, name
}

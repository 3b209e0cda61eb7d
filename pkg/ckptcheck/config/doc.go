/*
Package config provides type-safe access to the checkpoint library's
configuration file.

# Overview

The configuration is a small key/value store organised in sections. Keys
are addressed as "Section:key", for example "Basic:node_size" or
"Restart:exec_id". Config wraps the flattened map and provides typed
accessors that return a default when the key is missing or has the wrong
type.

# Basic Usage

	cfg, err := config.FromFile(afero.NewOsFs(), "config.fti")
	if err != nil {
	    log.Fatal(err)
	}

	nodeSize := cfg.Int(config.KeyNodeSize, -1)
	execID := cfg.String(config.KeyExecID, "")
	inline := cfg.Int(config.InlineKey(2), 1)

# Formats

The format is chosen by file extension:
  - .fti, .ini, .cfg: INI sections, parsed with gopkg.in/ini.v1
  - .yaml, .yml: top-level mappings are sections
  - .json: top-level objects are sections

Integer values are normalised to int for every format.

# Rewriting

Rewrite updates keys in place and writes the file through a temporary file
and a rename:

	err := config.Rewrite(fs, "config.fti", map[string]string{
	    config.KeyCkptIO: "2",
	})

INI files keep their comments and key order.

# Thread Safety

Config is safe for concurrent read access. With returns a modified copy and
never mutates the receiver. Rewrite is not coordinated across processes;
callers designate a single writer and gate readers behind a barrier.
*/
package config

package character

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// ErrDatabaseLoad wraps every failure to read, parse or validate a character
// database file. Speaker resolution cannot work without the name corpus, so
// callers treat it as fatal.
var ErrDatabaseLoad = errors.New("character database load failed")

// Format selects the decoder for a character database file.
type Format string

const (
	FormatYAML Format = "yaml"
	FormatTOML Format = "toml"
)

// FormatForPath picks the format from the file extension. Unknown
// extensions default to YAML.
func FormatForPath(path string) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		return FormatTOML
	default:
		return FormatYAML
	}
}

// LoadFile reads, parses and validates the character database at path.
func LoadFile(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: open %q: %w", ErrDatabaseLoad, path, err)
	}
	f, err := Parse(data, FormatForPath(path))
	if err != nil {
		return nil, fmt.Errorf("character: parse %q: %w", path, err)
	}
	return f, nil
}

// LoadFromReader parses and validates a character database from r.
// The reader is consumed entirely; the caller is responsible for closing it.
func LoadFromReader(r io.Reader, format Format) (*File, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("%w: read: %w", ErrDatabaseLoad, err)
	}
	return Parse(data, format)
}

// Parse decodes and validates a character database held in memory.
func Parse(data []byte, format Format) (*File, error) {
	var f File
	switch format {
	case FormatTOML:
		md, err := toml.Decode(string(data), &f)
		if err != nil {
			return nil, fmt.Errorf("%w: decode toml: %w", ErrDatabaseLoad, err)
		}
		if undecoded := md.Undecoded(); len(undecoded) > 0 {
			return nil, fmt.Errorf("%w: unknown toml keys: %v", ErrDatabaseLoad, undecoded)
		}
	default:
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true) // reject unknown keys to catch typos
		if err := dec.Decode(&f); err != nil {
			return nil, fmt.Errorf("%w: decode yaml: %w", ErrDatabaseLoad, err)
		}
	}
	if err := Validate(&f); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDatabaseLoad, err)
	}
	return &f, nil
}

// Build turns a parsed file and the learned names into a [Database].
func (f *File) Build(learned []LearnedName) *Database {
	if f == nil {
		return NewDatabase("", nil, nil, learned)
	}
	return NewDatabase(f.Game, f.Characters, f.Corrections, learned)
}

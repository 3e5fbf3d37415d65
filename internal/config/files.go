package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"github.com/nvandessel/rbdc/internal/models"
)

// DecodeFile decodes a YAML (.yaml, .yml), TOML (.toml) or JSON (.json)
// file into v, rejecting keys v does not declare. Fields of v not present
// in the file keep their current values.
func DecodeFile(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return &models.IOError{Op: "read", Path: path, Err: err}
	}

	if err := decode(filepath.Ext(path), data, v); err != nil {
		return &models.ValidationError{Field: "file", Value: path, Reason: err.Error()}
	}
	return nil
}

func decode(ext string, data []byte, v any) error {
	switch strings.ToLower(ext) {
	case ".toml":
		md, err := toml.Decode(string(data), v)
		if err != nil {
			return err
		}
		if undecoded := md.Undecoded(); len(undecoded) > 0 {
			keys := make([]string, len(undecoded))
			for i, k := range undecoded {
				keys[i] = k.String()
			}
			return fmt.Errorf("unknown keys: %s", strings.Join(keys, ", "))
		}
		return nil

	case ".json":
		dec := json.NewDecoder(bytes.NewReader(data))
		dec.DisallowUnknownFields()
		return dec.Decode(v)

	case ".yaml", ".yml", "":
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(v); err != nil && !errors.Is(err, io.EOF) {
			return err
		}
		return nil

	default:
		return fmt.Errorf("unsupported file extension %q (want .yaml, .yml, .toml or .json)", ext)
	}
}

// LoadParameterSet reads a parameter file over base. Options absent from
// the file keep base's values. The result is not validated.
func LoadParameterSet(path string, base models.ParameterSet) (models.ParameterSet, error) {
	p := base
	if err := DecodeFile(path, &p); err != nil {
		return models.ParameterSet{}, err
	}
	return p, nil
}

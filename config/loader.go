package config

import (
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
	"github.com/pkg/errors"
)

// EnvPrefix prefixes the environment variables read by Load.
const EnvPrefix = "SAHI_"

// Load builds a Config by layering defaults, an optional file and env vars.
// Order of precedence (low -> high):
//  1. defaults (New())
//  2. file (YAML) if path is not empty
//  3. env (prefix SAHI_, "__" separates sections, e.g. SAHI_SLICING__SLICE_WIDTH)
//
// Arguments:
//   - path: The YAML file path, empty to skip the file layer.
//
// Returns:
//   - *Config: The validated configuration.
//   - error: ErrLoadConfig if a layer cannot be read, ErrInvalidConfig if validation fails.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, errors.Wrapf(ErrLoadConfig, "file %s: %v", path, err)
		}
	}

	// SAHI_ENGINE__BATCH_SIZE -> engine.batch_size
	envProvider := env.Provider(EnvPrefix, ".", func(s string) string {
		s = strings.TrimPrefix(s, EnvPrefix)
		return strings.ReplaceAll(strings.ToLower(s), "__", ".")
	})
	if err := k.Load(envProvider, nil); err != nil {
		return nil, errors.Wrapf(ErrLoadConfig, "env: %v", err)
	}

	cfg := New()
	if err := k.UnmarshalWithConf("", cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, errors.Wrapf(ErrLoadConfig, "unmarshal: %v", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

package config

import "github.com/pkg/errors"

// Sentinel error kinds for this package. These allow errors.Is from callers.
var (
	ErrInvalidConfig = errors.New("invalid config")
	ErrLoadConfig    = errors.New("load config failed")
)

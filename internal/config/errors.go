package config

import "errors"

// ErrInvalidConfig indicates a configuration value that cannot be used
var ErrInvalidConfig = errors.New("invalid config")

package config

import (
	"errors"
	"fmt"
)

// Sentinel error kinds for this package. These allow errors.Is/As from callers.
var (
	ErrInvalidConfig = errors.New("invalid config")
	ErrLoadConfig    = errors.New("load config failed")

	// ErrInvalidTierTable also matches ErrInvalidConfig.
	ErrInvalidTierTable = fmt.Errorf("%w: tier table", ErrInvalidConfig)
)

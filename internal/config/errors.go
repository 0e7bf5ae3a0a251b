package config

import "errors"

// ErrInvalidConfig wraps every validation failure; ErrLoadConfig wraps
// failures reading the file or the environment.
var (
	ErrInvalidConfig = errors.New("invalid vibecoder config")
	ErrLoadConfig    = errors.New("load vibecoder config")
)

package config

import "errors"

// Validation errors
var (
	ErrNoFrontend      = errors.New("at least one of http.address or grpc.address is required")
	ErrInvalidDriver   = errors.New("invalid storage driver")
	ErrStoragePath     = errors.New("storage.path is required by the bbolt driver")
	ErrInvalidLogLevel = errors.New("invalid log level")
	ErrInvalidPolicy   = errors.New("invalid dispatch policy")
	ErrNegativeValue   = errors.New("value must not be negative")
)

// Loading errors
var (
	ErrConfigFileNotFound = errors.New("configuration file not found")
	ErrConfigParse        = errors.New("configuration parse error")
	ErrEnvironment        = errors.New("environment variable error")
)

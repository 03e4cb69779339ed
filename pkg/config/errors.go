package config

import "errors"

var (
	// ErrConfigNotFound indicates the configuration file was not found.
	ErrConfigNotFound = errors.New("configuration file not found")
	// ErrInvalidYAML indicates YAML parsing failed.
	ErrInvalidYAML = errors.New("invalid YAML syntax")
	// ErrValidationFailed indicates configuration validation failed.
	ErrValidationFailed = errors.New("configuration validation failed")
	// ErrLLMProviderNotFound indicates the named LLM provider isn't registered.
	ErrLLMProviderNotFound = errors.New("LLM provider not found")
)

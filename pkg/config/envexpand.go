package config

import "os"

// ExpandEnv expands ${VAR} and $VAR references in raw YAML bytes using the
// standard library's shell-style expansion, so provider API keys never need
// to be checked into a config file on disk. Missing variables expand to the
// empty string; Validate is what catches a field that ended up required-but-
// empty.
func ExpandEnv(data []byte) []byte {
	return []byte(os.Expand(string(data), os.Getenv))
}

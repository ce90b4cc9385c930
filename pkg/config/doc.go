// Package config loads the server configuration: an optional YAML
// file layered over production defaults. Flags on the serve command
// override individual fields after loading.
package config

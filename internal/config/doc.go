// Package config provides the roilabel configuration: defaults, validation
// and the optional .roilabel YAML file with server and per-model settings.
package config

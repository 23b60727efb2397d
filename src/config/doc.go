// Package config defines the configuration of an rtcsession client.
//
// Regardless of how the client is started, directly from Go code or from the
// command line, it uses the Config object defined in this package to store and
// forward configuration options. The command line additionally reads an
// optional rtcsession.toml (or .yaml, .json) from Config.DataDir.
package config

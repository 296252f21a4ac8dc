// Package confloader provides configuration loading mechanism.
//
// This package implements a layered configuration loader on top of koanf.
//
// Sources, from lowest to highest priority:
//
//  1. Default values (the target struct as passed in)
//  2. Configuration file (YAML)
//  3. Environment variables (WEBDOCK_ prefix)
//  4. Command-line flags (as a flat key/value map)
//
// Environment variables map to keys by splitting the section at the first
// underscore and nested sections at double underscores:
//
//	WEBDOCK_SERVER_READ_TIMEOUT             -> server.read_timeout
//	WEBDOCK_SERVER_RATE_LIMIT__BURST        -> server.rate_limit.burst
//	WEBDOCK_STORAGE_BADGER__SYNC_WRITES     -> storage.badger.sync_writes
//
// Watcher notifies callbacks when a configuration file changes so that a
// running process can re-read it.
package confloader

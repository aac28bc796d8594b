// Package logging provides file-based JSON logging with rotation for the
// daemon. Logs are written to ~/.memoryd/logs/memoryd.log.
//
// The CLI subcommands log to that file and to stderr at info level, or at
// debug level when the --debug flag is set. The serve subcommand logs to the
// file only, always at debug level, since stdout carries the protocol.
package logging

// Package main hosts the winescan CLI entrypoint and command graph.
//
// The Cobra command tree covers the scan service (serve), one-off
// recognition of a shelf photo or a saved detection, catalog maintenance,
// inspection of the LLM guess cache, offline accuracy evaluation, environment
// checks, and configuration scaffolding. Configuration resolution and logger
// setup live in commandContext so subcommands only deal with their own flags.
package main

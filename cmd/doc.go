// Package cmd implements the command-line interface of fKV. It opens a local
// database with one of the engine variants and exposes the object store
// operations as subcommands.
//
// The package is organized into two subpackages:
//
//   - store: Commands for schema changes (create) and data operations (add, put, get, list, ...)
//     plus a benchmark (perf)
//   - util: Shared utilities for command-line processing and configuration (internal use)
//
// See fkv -help for a list of all commands.
package cmd

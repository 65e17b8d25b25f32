// Package cmd implements the command-line interface for the ramforge
// master node. It provides a hierarchical command structure with operations
// for running a master and interacting with it as a client.
//
// The package is organized into several subpackages:
//
//   - client: Commands for object operations against a master (create, read, write, remove, multiread, perf)
//   - recover: Commands for tablet assignment and crash recovery (set-tablets, recover, ping)
//   - serve: Commands for starting and configuring a master
//   - util: Shared utilities for command-line processing and configuration (internal use)
//
// See ramforge -help for a list of all commands.
package cmd

// Package history keeps a local SQLite log of finished builds: one row per
// report and one per attempt. It is write-mostly and read by the history
// command.
package history

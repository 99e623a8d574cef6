// Package stores provides the SQLite invocation journal. Each orchestrator
// invocation is recorded with its event, terminal phase, outputs, error
// kind and the ordered list of steps it ran. The schema is applied with
// golang-migrate from embedded migrations.
package stores

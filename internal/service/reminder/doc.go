// Package reminder implements the customer reminder engine.
//
// A rule describes a timed sequence of levels (messages) gated by
// conditions. The engine scans for new candidates (Pass A), creating a
// history row when the first level fires, then progresses every started
// history through the remaining levels (Pass B), closing it when the
// sequence is exhausted or the target becomes invalid.
//
// The engine depends only on the port interfaces defined in ports.go and
// should never import from repository/ or api/. Repository
// implementations live in repository/postgres/; the outbound side lives
// in dispatch/.
//
// Concurrency: one Run call performs a synchronous sequential scan. The
// engine takes no lock; the deployment must guarantee at most one
// concurrent runner per rule (the worker does this with a distributed
// lock).
package reminder

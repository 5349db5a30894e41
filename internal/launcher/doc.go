// Package launcher starts and stops the backend.
//
// Process runs the backend as a child process, optionally on a PTY, streams
// its output line by line, and polls its health endpoint until it answers.
// Stop interrupts first and kills after a grace period. External stands in
// when the backend is hosted elsewhere. Guarded adds a crash-loop breaker in
// front of either.
package launcher

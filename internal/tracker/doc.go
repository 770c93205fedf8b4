// Package tracker owns the lifecycle of a single in-flight document
// conversion: submission, fixed-interval status polling, terminal-state
// detection, and poll-loop cancellation.
package tracker

// Package view selects what the CLI renders from session, tab, and job
// state. It carries no invariants beyond the one-time dashboard switch.
package view

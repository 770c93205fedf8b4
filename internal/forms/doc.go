// Package forms keeps the local view of the generated-forms collection
// consistent with the backend through wholesale refreshes and confirmed
// deletions, with a SQLite snapshot for restarts.
package forms

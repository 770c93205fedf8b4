// Package api defines the wire contract shared with the Formlo backend:
// session identity, conversion job lifecycle, and generated form records.
package api

// Package session implements the guard that gates the client behind the
// backend's cookie-based login boundary.
package session

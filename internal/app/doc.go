// Package app composes the session guard, job tracker, collection
// synchronizer, and view router into one application-state container.
package app

// Package testsupport provides shared helpers for tests: per-test
// configuration builders and a scriptable fake of the Formlo backend.
package testsupport

// Package client implements the credentialed HTTP client for the Formlo
// backend API: session, upload, job status, and forms endpoints.
package client

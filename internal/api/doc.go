// Package api exposes the file pipeline over HTTP: multipart uploads,
// record and status lookups, and the service endpoints used by operators.
// Handlers translate requests into service calls and every response into
// the shared envelope.
package api

// Package gateway exposes the prescription ledger over HTTP.
//
// Callers authenticate with HS256 bearer tokens whose subject is their
// ledger identity. The gateway validates request bodies against JSON
// schemas, applies a per-identity rate limit and maps ledger error kinds
// to HTTP status codes. Every mutation is traced, counted and logged.
package gateway

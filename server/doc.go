// Package server exposes the similarity service and the proof issuer over a
// JSON HTTP API built on gin.
package server

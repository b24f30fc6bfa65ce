// Package proof issues content-addressed proofs: a record binding the hash of
// a source locator to the hash of the content it resolved to.
//
// An Issuer validates the locator against an AllowList, derives the proof key
// as the SHA3-256 of the locator, streams the fetched content through an
// optional Filter into a SHA3-256 digest and persists the pair in a Store.
// Issuing a proof twice for the same locator always fails with a
// ConflictError.
package proof

// Package service implements the similarity service: it persists signatures
// through a store.Store, indexes them in an index.Index and answers
// near-duplicate queries by re-scoring index candidates exactly.
//
// A Service is constructed once per process and shared by every request
// path. Queries are refused until Rehydrate has rebuilt the index from the
// store, so a restarted process never serves a partial view.
package service

// Package store defines durable storage for signature records. It includes:
//   - Record model and Store interface
//   - SQLiteStore: id-assigning durable storage with paged full scans
//   - Schema helpers to create the signatures table
//   - Exact store-side similarity scans via the sig_similarity SQL function
package store

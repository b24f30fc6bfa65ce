// Package signature defines the MinHash signature used across this project.
// It includes:
//   - Signature model (seed plus fixed-length uint64 slot values)
//   - Canonical BLOB encoding used for storage and transport
//   - Exact Jaccard estimate between two comparable signatures
//   - MinHash builder that produces signatures from item sets
package signature

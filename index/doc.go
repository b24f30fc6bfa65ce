// Package index defines a minimal abstraction for signature indexes that
// return candidate keys for approximate similarity search. Implementations in
// this module include LSH banding (lsh) and an exact brute-force baseline.
package index

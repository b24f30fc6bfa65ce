// Package lsh implements a MinHash LSH index. Signatures are split into b
// bands of r rows; two signatures become candidates when they agree on every
// row of at least one band. The (b, r) pair is tuned from a target Jaccard
// threshold so that pairs above the threshold very likely collide.
//
// The index is append-only and safe for concurrent Insert and Query. Each band
// owns its buckets behind its own lock, so a Query may observe a
// point-in-time mix across bands during concurrent inserts, but never a
// partially written bucket.
package lsh

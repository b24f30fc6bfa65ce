// Package bruteforce provides an exact signature index that scores every
// entry on each query. It is useful for small corpora and as a recall
// baseline for the LSH index.
package bruteforce

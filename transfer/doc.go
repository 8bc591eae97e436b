// Package transfer fetches remote segment files block by block. Each
// block lands as a file in the local directory and as a weighted entry
// in the file cache; readers hold a reference on the block they are
// positioned in so eviction cannot reclaim it mid-read.
//
// Concurrent fetches of the same block are deduplicated, the number of
// in-flight downloads is bounded, and an optional rate limiter caps
// download bandwidth. Blocks can be stored compressed on disk.
package transfer

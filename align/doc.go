// Package align holds the data model shared by the seed-extension driver
// and its collaborators: reads, alignment results, anchor coordinates, the
// redundancy sets used to suppress duplicate work, and the random source
// threaded through every randomized operation.
//
// All per-read state in this package is owned by a single worker and is not
// safe for concurrent use.
package align

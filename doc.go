// Package filecache implements a reference-counted, weight-bounded cache
// for remote-stored segment files.
//
// A search engine that keeps its index segments in a remote blob store can
// treat those files as if they were local: whole files or individual
// blocks are fetched on demand, held in a bounded cache, and evicted under
// memory pressure. Reference counting guarantees that no resident data is
// released while a read handle still uses it.
//
// # Core pieces
//
//   - FileCache: the path-keyed cache facade. Values are CachedInput
//     resources weighted by their byte length.
//   - Input: a positioned read handle with Clone and Slice. The first
//     handle for a path is the origin; clones and slices acquire a
//     reference on the path and release it on Close.
//   - SwitchableInput: a handle that starts reading from a full local
//     copy and can be promoted to remote block-fetched backing while in
//     use, together with all of its clones, without a position change.
//
// # Collaborators
//
// The cache consumes three small interfaces: LocalDirectory (resident
// files on disk), RemoteDirectory (the uploaded view of the blob store),
// and TransferManager (on-demand block fetch). Implementations live in
// the localdir, remotestore and transfer packages; the composite package
// combines everything into a directory that decides local versus remote
// per file.
package filecache

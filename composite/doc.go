// Package composite exposes local and remote segment files as one
// directory. Files still waiting for upload are served from local disk
// through switchable handles; uploaded files are served through the
// block-fetching transfer manager. After a file reaches the remote
// store, its open handles are switched in place and the local copy is
// dropped.
package composite

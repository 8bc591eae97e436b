// Package localdir implements the local-disk directory backing the file
// cache. Files are read through memory mappings for zero-copy access;
// clones and slices of an input share one mapping and release it when the
// last handle closes.
package localdir

/*
Package types provides the core data structures and store contracts for tierfs.

The filesystem engine is built on two narrow storage contracts defined here:

MetadataStore:
Entry records keyed by namespaced canonical path, with a directory-children
index derivable by prefix scan. Absent keys return nil rather than an error;
the engine decides when absence becomes ENOENT.

BlobStore:
Content bytes per storage tier with head/get/put/copy/range and tier
queries. Implementations place bytes into hot, warm, or cold storage and
report placement back through Head and GetTier.

Both contracts are context-aware and safe for concurrent use. Everything
above them (the kernel, the sparse view, the protocol adapters) depends only
on these interfaces, so a test can swap in the in-memory implementations and
a deployment can mix bbolt with S3 without touching the engine.
*/
package types

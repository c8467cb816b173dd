// Package cache persists the totals observed by the last successful build of
// a project so the next build can estimate progress against them.
//
// A Store wraps a storage.Backend and a project key. Absence is a normal
// state: Load returns the zero Record, and unreadable or malformed content is
// treated exactly like absence. Save errors are returned for diagnostics only;
// callers drop the persistence attempt rather than failing the build.
//
// The wire format is a single JSON object:
//
//	{"cacheTransformCount": 412, "cacheChunkCount": 37}
package cache

// Package cache owns the on-disk representation of mirrored artifacts. Every
// request path maps to a fixed-length key; each key is persisted as a body file
// plus a small text metadata file (content type, then source URL) in a single
// flat directory. Writes go through a temp file + rename so readers never see
// partially written files. The package also carries the suffix-based
// cacheability policy the proxy consults before persisting a miss.
package cache

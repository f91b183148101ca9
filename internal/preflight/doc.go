// Package preflight checks whether a folder can be indexed and watched:
// the watch root and data directory, free disk space, file descriptor and
// inotify limits, the embedder and any saved index.
//
// Checks never modify the index. A failed required check means commands
// that build or watch the index will fail too.
package preflight

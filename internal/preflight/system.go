package preflight

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
)

const (
	// MinDiskSpaceBytes is the free space required in the data directory.
	MinDiskSpaceBytes = 100 * 1024 * 1024

	// MinFileDescriptors is the lowest open file limit that leaves room for
	// the watcher and the extraction pool.
	MinFileDescriptors = 1024

	inotifyLimitPath = "/proc/sys/fs/inotify/max_user_watches"
)

// CheckDiskSpace requires MinDiskSpaceBytes free where the index is saved.
func (c *Checker) CheckDiskSpace() CheckResult {
	r := CheckResult{Name: "disk_space", Required: true}

	var stat syscall.Statfs_t
	if err := syscall.Statfs(existingParent(c.cfg.Persist.DataDir), &stat); err != nil {
		r.Status, r.Message = StatusFail, fmt.Sprintf("failed to check disk space: %v", err)
		return r
	}
	available := stat.Bavail * uint64(stat.Bsize)
	r.Message = fmt.Sprintf("%s free (minimum: %s)", formatBytes(available), formatBytes(c.minDiskBytes))
	if available < c.minDiskBytes {
		r.Status = StatusFail
		return r
	}
	r.Status = StatusPass
	return r
}

// CheckFileDescriptors requires the open file limit to reach MinFileDescriptors.
func (c *Checker) CheckFileDescriptors() CheckResult {
	r := CheckResult{Name: "file_descriptors", Required: true}

	var lim syscall.Rlimit
	if err := syscall.Getrlimit(syscall.RLIMIT_NOFILE, &lim); err != nil {
		r.Status, r.Message = StatusFail, fmt.Sprintf("failed to read file descriptor limit: %v", err)
		return r
	}
	r.Message = fmt.Sprintf("%d (minimum: %d)", lim.Cur, c.minFDs)
	if lim.Cur < c.minFDs {
		r.Status = StatusFail
		r.Details = "Run 'ulimit -n 10240' to raise the limit"
		return r
	}
	r.Status = StatusPass
	return r
}

// CheckWatchLimit warns when the folder has more directories than inotify
// may watch; the watcher then falls back to polling.
func (c *Checker) CheckWatchLimit() CheckResult {
	r := CheckResult{Name: "watch_limit"}

	limit, err := c.watchLimit()
	if err != nil {
		r.Status, r.Message = StatusPass, "no inotify limit on this system"
		return r
	}
	dirs := countDirs(c.cfg.Watch.Root, c.cfg.Persist.DataDir)
	r.Message = fmt.Sprintf("%d directories, limit %d", dirs, limit)
	if dirs >= limit {
		r.Status = StatusWarn
		r.Details = "Changes will be found by polling; raise fs.inotify.max_user_watches"
		return r
	}
	r.Status = StatusPass
	return r
}

func inotifyWatchLimit() (int, error) {
	data, err := os.ReadFile(inotifyLimitPath)
	if err != nil {
		return 0, err
	}
	return strconv.Atoi(strings.TrimSpace(string(data)))
}

// countDirs counts directories under root, skipping hidden ones and skip.
func countDirs(root, skip string) int {
	n := 0
	_ = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil || !d.IsDir() {
			return nil
		}
		if path != root && (path == skip || strings.HasPrefix(d.Name(), ".")) {
			return filepath.SkipDir
		}
		n++
		return nil
	})
	return n
}

// existingParent returns path or its nearest existing ancestor.
func existingParent(path string) string {
	for {
		if _, err := os.Stat(path); err == nil {
			return path
		}
		parent := filepath.Dir(path)
		if parent == path {
			return path
		}
		path = parent
	}
}

func formatBytes(b uint64) string {
	const (
		KB = 1024
		MB = 1024 * KB
		GB = 1024 * MB
		TB = 1024 * GB
	)
	switch {
	case b >= TB:
		return fmt.Sprintf("%.1f TB", float64(b)/TB)
	case b >= GB:
		return fmt.Sprintf("%.1f GB", float64(b)/GB)
	case b >= MB:
		return fmt.Sprintf("%.1f MB", float64(b)/MB)
	case b >= KB:
		return fmt.Sprintf("%.1f KB", float64(b)/KB)
	default:
		return fmt.Sprintf("%d bytes", b)
	}
}

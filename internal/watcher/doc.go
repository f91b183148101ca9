// Package watcher reports file changes under the watch root and provides the
// per-path debouncer the index manager uses to coalesce bursts of events.
//
// Two strategies implement Watcher:
//   - HybridWatcher: recursive fsnotify watching, new directories are picked
//     up as they appear
//   - PollingWatcher: periodic tree diff, for environments where fsnotify
//     fails (network mounts, container volumes)
//
// New picks fsnotify when it is available. Paths inside the data dir, paths
// matched by the configured ignore globs and paths matched by .gitignore files
// never produce events.
//
// Usage:
//
//	w, err := watcher.New(watcher.Options{Root: root, DataDir: dataDir})
//	if err != nil {
//	    return err
//	}
//	defer w.Stop()
//
//	d := watcher.NewDebouncer(time.Second, func(ev watcher.FileEvent) {
//	    // reconcile ev.Path against disk
//	})
//	go func() {
//	    for ev := range w.Events() {
//	        d.Add(ev)
//	    }
//	}()
//	return w.Start(ctx)
package watcher

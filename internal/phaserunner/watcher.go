package phaserunner

import (
	"context"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
)

// WatchResults watches resultsDir for newly written result.json sidecar
// files and invokes onReady with the matching file's path as soon as it
// appears, instead of polling. Repurposed from the file watching the
// teacher uses elsewhere in the pack. The orchestrator does not call it;
// the runner reads the sidecar once after the child exits.
func WatchResults(ctx context.Context, resultsDir string, onReady func(path string)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}

	if err := watcher.Add(resultsDir); err != nil {
		watcher.Close()
		return err
	}

	go func() {
		defer watcher.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if event.Op&(fsnotify.Create|fsnotify.Write) != 0 && filepath.Ext(event.Name) == ".json" {
					onReady(event.Name)
				}
			case _, ok := <-watcher.Errors:
				if !ok {
					return
				}
			}
		}
	}()

	return nil
}

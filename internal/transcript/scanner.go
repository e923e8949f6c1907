package transcript

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
)

// ScanDir walks the transcripts directory and reconciles every JSONL
// file found. Run once at startup to catch activity from before the
// monitor was running; the watcher covers everything after.
func (r *Reconciler) ScanDir(ctx context.Context, dir string) error {
	info, err := os.Stat(dir)
	if err != nil {
		if os.IsNotExist(err) {
			r.log.Info("transcripts directory not found, skipping scan", "dir", dir)
			return nil
		}
		return err
	}
	if !info.IsDir() {
		return nil
	}

	var parsed int
	err = filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil //nolint:nilerr // skip unreadable entries
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if d.IsDir() || filepath.Ext(path) != ".jsonl" {
			return nil
		}

		if err := r.ReconcileFile(ctx, path); err != nil {
			r.log.Warn("could not reconcile transcript", "path", path, "error", err)
			return nil
		}
		parsed++
		return nil
	})
	if err != nil {
		return err
	}

	r.log.Info("transcript scan complete", "dir", dir, "files", parsed)
	return nil
}

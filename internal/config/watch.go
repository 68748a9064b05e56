package config

import (
	"context"
	"log/slog"

	"github.com/fsnotify/fsnotify"
)

// Watch reloads the config whenever the file at path changes and hands the
// fresh Config to onChange. The server uses this to pick up alert settings
// (cooldown, webhook targets) without a restart.
//
// A change that fails Load (bad YAML, failed validation) is logged and
// dropped; the settings applied last stay in force. Watch blocks until ctx
// is cancelled.
func Watch(ctx context.Context, path string, onChange func(*Config)) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()
	if err := w.Add(path); err != nil {
		return err
	}

	slog.Info("config: watching", "path", path)

	for {
		select {
		case <-ctx.Done():
			return nil

		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) {
				continue
			}

			// Editors that save atomically replace the inode, which drops
			// the watch. Re-add before loading so no later change goes unseen.
			_ = w.Add(path)

			cfg, err := Load(path)
			if err != nil {
				slog.Error("config: ignoring broken reload", "path", path, "err", err)
				continue
			}
			slog.Info("config: applied reload", "path", path)
			onChange(cfg)

		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			slog.Error("config: watch error", "err", err)
		}
	}
}

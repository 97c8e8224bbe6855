package config

import (
	"log/slog"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
)

// Watch monitors the configuration file and delivers the re-validated
// tunables subset whenever the file changes. A file that fails to load
// or validate is logged and ignored; the running configuration stays
// as it was. Watch returns after starting its goroutine; closing stop
// ends it.
func Watch(conf *Config, stop <-chan struct{}, apply func(Tunables)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	// Watch the directory, not the file: editors replace files on
	// save, which drops a direct file watch.
	dir := filepath.Dir(conf.Configfile)
	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		return err
	}
	target := filepath.Clean(conf.Configfile)

	go func() {
		defer watcher.Close()
		for {
			select {
			case <-stop:
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(event.Name) != target {
					continue
				}
				if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
					continue
				}
				reloaded, err := Load(conf.Configfile, conf.RealHW)
				if err != nil {
					slog.Warn("Ignoring config change", "error", err)
					continue
				}
				slog.Info("Applying changed tunables from config file", "file", conf.Configfile)
				apply(reloaded.Tunables())
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				slog.Warn("Config watcher error", "error", err)
			}
		}
	}()
	return nil
}

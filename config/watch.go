package config

import (
	"path/filepath"

	"github.com/blindspot/blindspot/util"
	"github.com/fsnotify/fsnotify"
	"github.com/go-playground/log"
)

// Watch reloads the runtime configuration from the config file at path on
// every change and triggers the util.ConfigReloaded hooks. The containing
// directory is watched, as editors commonly replace files instead of writing
// to them. Call the returned function to stop watching.
func Watch(path string) (stop func(), err error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		watcher.Close()
		return
	}
	err = watcher.Add(filepath.Dir(abs))
	if err != nil {
		watcher.Close()
		return
	}

	go func() {
		for {
			select {
			case e, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(e.Name) != abs ||
					!e.Has(fsnotify.Write) && !e.Has(fsnotify.Create) {
					continue
				}
				if err := reload(abs); err != nil {
					log.Errorf("config: reloading %s: %s", abs, err)
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				log.Error("fsnotify error: ", err)
			}
		}
	}()

	return func() {
		watcher.Close()
	}, nil
}

func reload(path string) (err error) {
	var f File
	err = ReadFile(path, &f)
	if err != nil {
		return
	}
	if f.Board == nil {
		return
	}
	err = Set(*f.Board)
	if err != nil {
		return
	}
	log.Info("config: runtime configuration reloaded")
	return util.Trigger(util.ConfigReloaded)
}

package notify

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

// EventWatcher watches the events directory and dispatches callbacks.
type EventWatcher struct {
	dir      string
	callback func(Event)
	watcher  *fsnotify.Watcher
	done     chan struct{}
	log      zerolog.Logger
}

// NewEventWatcher creates a watcher for {dataPath}/events/.
func NewEventWatcher(dataPath string, callback func(Event), logger zerolog.Logger) *EventWatcher {
	return &EventWatcher{
		dir:      filepath.Join(dataPath, "events"),
		callback: callback,
		done:     make(chan struct{}),
		log:      logger.With().Str("component", "notify").Logger(),
	}
}

// Start begins watching for new event files, then drains the ones already
// written. Call Stop() to clean up.
func (ew *EventWatcher) Start() error {
	if err := os.MkdirAll(ew.dir, 0o700); err != nil {
		return err
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := w.Add(ew.dir); err != nil {
		_ = w.Close()
		return err
	}
	ew.watcher = w

	// Files created between Add and the drain queue up as fsnotify events.
	// The loop starts after the drain, and a consumed file cannot be read
	// again, so each file is delivered once.
	ew.drainExisting()

	go ew.loop()
	ew.log.Info().Str("dir", ew.dir).Msg("watching for change events")
	return nil
}

// Stop shuts down the watcher.
func (ew *EventWatcher) Stop() {
	if ew.watcher == nil {
		return
	}
	_ = ew.watcher.Close()
	<-ew.done
}

func (ew *EventWatcher) loop() {
	defer close(ew.done)
	for {
		select {
		case evt, ok := <-ew.watcher.Events:
			if !ok {
				return
			}
			if evt.Op&fsnotify.Create != 0 && strings.HasSuffix(evt.Name, ".event") {
				ew.processFile(evt.Name)
			}
		case err, ok := <-ew.watcher.Errors:
			if !ok {
				return
			}
			ew.log.Warn().Err(err).Msg("watcher error")
		}
	}
}

func (ew *EventWatcher) drainExisting() {
	entries, err := os.ReadDir(ew.dir)
	if err != nil {
		return
	}
	for _, entry := range entries {
		if !entry.IsDir() && strings.HasSuffix(entry.Name(), ".event") {
			ew.processFile(filepath.Join(ew.dir, entry.Name()))
		}
	}
}

func (ew *EventWatcher) processFile(path string) {
	data, err := os.ReadFile(path)
	if err != nil {
		return // file already consumed by another process
	}
	_ = os.Remove(path)

	var event Event
	if err := json.Unmarshal(data, &event); err != nil {
		ew.log.Warn().Err(err).Str("file", filepath.Base(path)).Msg("invalid event file")
		return
	}

	if event.Type != "" && ew.callback != nil {
		ew.callback(event)
	}
}

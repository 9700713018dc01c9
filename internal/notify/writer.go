// Package notify carries change events of a tracked document to other
// processes (UIs, automation) through event files in a shared directory.
package notify

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Event is the payload written to an event file.
type Event struct {
	Type     string `json:"type"`
	EntityID string `json:"entity_id"`
	Document string `json:"document,omitempty"`
	Time     int64  `json:"time"`
}

// EventWriter writes event files for one document.
type EventWriter struct {
	dir      string
	document string
}

// NewEventWriter creates a writer that emits events of document to
// {dataPath}/events/.
func NewEventWriter(dataPath, document string) *EventWriter {
	return &EventWriter{dir: filepath.Join(dataPath, "events"), document: document}
}

// Notify writes an event file. The file is renamed into place so watchers
// never see a partial event. Safe to call concurrently.
func (w *EventWriter) Notify(eventType, entityID string) error {
	if err := os.MkdirAll(w.dir, 0o700); err != nil {
		return fmt.Errorf("notify: mkdir %s: %w", w.dir, err)
	}
	evt := Event{
		Type:     eventType,
		EntityID: entityID,
		Document: w.document,
		Time:     time.Now().UnixNano(),
	}
	data, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("notify: marshal event: %w", err)
	}

	name := fmt.Sprintf("%d-%s-%s", evt.Time, eventType, sanitizeID(entityID))
	tmp := filepath.Join(w.dir, name+".tmp")
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("notify: write event: %w", err)
	}
	if err := os.Rename(tmp, filepath.Join(w.dir, name+".event")); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("notify: publish event: %w", err)
	}
	return nil
}

// sanitizeID replaces characters unsafe for filenames.
func sanitizeID(id string) string {
	out := make([]byte, len(id))
	for i := 0; i < len(id); i++ {
		switch id[i] {
		case '/', ':', '\\':
			out[i] = '_'
		default:
			out[i] = id[i]
		}
	}
	return string(out)
}

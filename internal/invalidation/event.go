// Package invalidation carries release announcements that retire the cached
// manifest.
package invalidation

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Event announces that a release has been published.
type Event struct {
	ReleaseVersion string    `json:"release_version"`
	TS             time.Time `json:"ts"`
}

func Decode(b []byte) (Event, error) {
	var ev Event
	if err := json.Unmarshal(b, &ev); err != nil {
		return Event{}, fmt.Errorf("json decode: %w", err)
	}
	ev.ReleaseVersion = strings.TrimSpace(ev.ReleaseVersion)
	if err := ev.Validate(); err != nil {
		return Event{}, err
	}
	return ev, nil
}

func (e Event) Validate() error {
	if e.ReleaseVersion == "" {
		return errors.New("release_version is required")
	}
	if strings.ContainsAny(e.ReleaseVersion, "/\\ ") {
		return fmt.Errorf("release_version %q contains path separators or spaces", e.ReleaseVersion)
	}
	return nil
}

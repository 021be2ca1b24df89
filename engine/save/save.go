// Package save implements JSON serialization of playtest world state, so a
// session of stat tweaks can be replayed later.
package save

import (
	"encoding/json"
	"fmt"

	"github.com/nathoo/parley/engine/state"
	"github.com/nathoo/parley/types"
)

// FormatVersion is written into every save.
const FormatVersion = "1"

// SaveData is the JSON-serializable save format.
type SaveData struct {
	Version    string                                 `json:"version"`
	Player     types.EntityRef                        `json:"player"`
	Catalog    uint16                                 `json:"catalog_version"`
	Stats      map[types.EntityRef]map[string]float64 `json:"stats"`
	CommandLog []string                               `json:"command_log"`
}

// Save serializes the stats of every entity in w to JSON bytes.
// catalogVersion is the asset version the playtest ran against.
func Save(w *state.World, catalogVersion uint16, log []string) ([]byte, error) {
	data := SaveData{
		Version:    FormatVersion,
		Player:     w.Player(),
		Catalog:    catalogVersion,
		Stats:      make(map[types.EntityRef]map[string]float64),
		CommandLog: append([]string{}, log...),
	}
	for _, e := range w.Entities() {
		data.Stats[e.ID] = e.Stats
	}
	return json.MarshalIndent(data, "", "  ")
}

// Load deserializes JSON bytes into SaveData.
func Load(data []byte) (*SaveData, error) {
	var sd SaveData
	if err := json.Unmarshal(data, &sd); err != nil {
		return nil, err
	}
	if sd.Version != FormatVersion {
		return nil, fmt.Errorf("unsupported save version %q", sd.Version)
	}
	// Ensure maps are never nil after load.
	if sd.Stats == nil {
		sd.Stats = map[types.EntityRef]map[string]float64{}
	}
	if sd.CommandLog == nil {
		sd.CommandLog = []string{}
	}
	return &sd, nil
}

// ApplySave replaces the stats of every entity in w that the save mentions.
// Entities the world no longer has are skipped and returned.
func ApplySave(w *state.World, sd *SaveData) []types.EntityRef {
	var skipped []types.EntityRef
	for ref, stats := range sd.Stats {
		e, ok := w.Entity(ref)
		if !ok {
			skipped = append(skipped, ref)
			continue
		}
		e.Stats = stats
		w.Add(e)
	}
	return skipped
}

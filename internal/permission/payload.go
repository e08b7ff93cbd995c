package permission

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"
)

type renderingPayload struct {
	Data json.RawMessage `json:"data"`
	Meta struct {
		RolesACLActivated bool `json:"rolesACLActivated"`
	} `json:"meta"`
	Stats []map[string]any `json:"stats"`
}

// ParsePayload turns a rendering permission document into a snapshot.
// A bare true means no permission system is configured: the returned
// snapshot is nil and open is true. Legacy data is converted exactly once,
// here.
func ParsePayload(raw []byte, fetchedAt time.Time) (snap *Snapshot, open bool, err error) {
	raw = bytes.TrimSpace(raw)
	if bytes.Equal(raw, []byte("true")) {
		return nil, true, nil
	}

	var p renderingPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, false, fmt.Errorf("decode permissions: %w", err)
	}

	snap = &Snapshot{
		RolesACLActivated: p.Meta.RolesACLActivated,
		FetchedAt:         fetchedAt,
	}
	if p.Meta.RolesACLActivated {
		snap.Collections = make(map[string]*CollectionPermission)
		if len(p.Data) > 0 && !bytes.Equal(p.Data, []byte("null")) {
			if err := json.Unmarshal(p.Data, &snap.Collections); err != nil {
				return nil, false, fmt.Errorf("decode permissions: %w", err)
			}
		}
	} else {
		legacy, err := decodeLegacy(p.Data)
		if err != nil {
			return nil, false, fmt.Errorf("decode legacy permissions: %w", err)
		}
		snap.Collections = ConvertLegacy(legacy)
	}

	if len(p.Stats) > 0 {
		snap.Charts = make(map[string]bool, len(p.Stats))
		for _, stat := range p.Stats {
			hash, err := ChartHash(stat)
			if err != nil {
				return nil, false, err
			}
			snap.Charts[hash] = true
		}
	}
	return snap, false, nil
}

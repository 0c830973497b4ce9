package store

// Settings keys owned by the sync engine. They describe this device's
// relation to the remote store, so they are never exported and survive
// imports unchanged.
const (
	KeyLastSyncID        = "lastSyncId"
	KeyDirty             = "dirty"
	KeyLastError         = "lastError"
	KeyLastSyncTimestamp = "lastSyncTimestamp"
)

var reservedSettings = map[string]struct{}{
	KeyLastSyncID:        {},
	KeyDirty:             {},
	KeyLastError:         {},
	KeyLastSyncTimestamp: {},
}

// IsReservedSetting reports whether key is owned by the sync engine.
func IsReservedSetting(key string) bool {
	_, ok := reservedSettings[key]
	return ok
}

// ReservedSettings returns the current values of the engine-owned keys.
func (s *Store) ReservedSettings() (map[string][]byte, error) {
	out := make(map[string][]byte, len(reservedSettings))

	for k := range reservedSettings {
		v, err := s.Setting(k)
		if err != nil {
			return nil, err
		}

		if v != nil {
			out[k] = v
		}
	}

	return out, nil
}

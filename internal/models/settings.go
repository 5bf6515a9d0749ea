package models

import "fmt"

// SyncFrequency selects when the engine runs without being asked.
type SyncFrequency string

const (
	FrequencyInstant  SyncFrequency = "instant"  // push after every local write
	FrequencyInterval SyncFrequency = "interval" // periodic full sync
	FrequencyManual   SyncFrequency = "manual"   // only on explicit request
)

// ConflictPolicy records the user's preferred default resolution. The
// engine currently surfaces every conflict for explicit resolution and
// treats this as a preference for clients to act on.
type ConflictPolicy string

const (
	PolicyAsk    ConflictPolicy = "ask"
	PolicyLocal  ConflictPolicy = "local"
	PolicyRemote ConflictPolicy = "remote"
)

// Settings is the persisted runtime configuration.
type Settings struct {
	LocalStorageEnabled bool           `json:"local_storage_enabled"`
	RelaySyncEnabled    bool           `json:"relay_sync_enabled"`
	SyncFrequency       SyncFrequency  `json:"sync_frequency"`
	ConflictPolicy      ConflictPolicy `json:"conflict_policy"`
}

// DefaultSettings keeps the app fully local until the user opts in to
// relay mirroring.
func DefaultSettings() Settings {
	return Settings{
		LocalStorageEnabled: true,
		RelaySyncEnabled:    false,
		SyncFrequency:       FrequencyInterval,
		ConflictPolicy:      PolicyAsk,
	}
}

// Validate checks enum fields.
func (s Settings) Validate() error {
	switch s.SyncFrequency {
	case FrequencyInstant, FrequencyInterval, FrequencyManual:
	default:
		return fmt.Errorf("models: unknown sync frequency %q", s.SyncFrequency)
	}
	switch s.ConflictPolicy {
	case PolicyAsk, PolicyLocal, PolicyRemote:
	default:
		return fmt.Errorf("models: unknown conflict policy %q", s.ConflictPolicy)
	}
	return nil
}

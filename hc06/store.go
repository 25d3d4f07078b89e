package hc06

import "context"

//go:generate go tool mockgen -source=store.go -destination=mock_store.go -package=hc06

// SettingsStore persists the single canonical DeviceConfig record.
type SettingsStore interface {
	// Load returns the stored record, creating it with defaults if absent.
	Load(ctx context.Context) (DeviceConfig, error)
	// Save replaces the stored record.
	Save(ctx context.Context, cfg DeviceConfig) error
}

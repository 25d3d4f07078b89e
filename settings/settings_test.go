package settings_test

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"i4.energy/across/hc06ctl/hc06"
	"i4.energy/across/hc06ctl/settings"
)

func TestFileStoreCreatesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "settings.json")
	store := settings.NewFileStore(path)

	cfg, err := store.Load(context.Background())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg != hc06.DefaultDeviceConfig() {
		t.Errorf("expected defaults, got %+v", cfg)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("expected file to be created: %v", err)
	}
	var doc struct {
		Version int                        `json:"version"`
		Records map[string]json.RawMessage `json:"records"`
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if doc.Version != 1 {
		t.Errorf("expected version 1, got %d", doc.Version)
	}
	if len(doc.Records) != 1 {
		t.Fatalf("expected exactly one record, got %d", len(doc.Records))
	}
	if _, ok := doc.Records["1"]; !ok {
		t.Error("expected record id 1")
	}
}

func TestFileStoreSaveAndReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.json")
	ctx := context.Background()

	store := settings.NewFileStore(path)
	cfg, err := store.Load(ctx)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	cfg.Name = "Robot"
	cfg.BaudRate = 115200
	if err := store.Save(ctx, cfg); err != nil {
		t.Fatalf("Save: %v", err)
	}

	got, err := settings.NewFileStore(path).Load(ctx)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if got != cfg {
		t.Errorf("expected %+v, got %+v", cfg, got)
	}
	if _, err := os.Stat(path + ".tmp"); !os.IsNotExist(err) {
		t.Error("temporary file left behind")
	}
}

func TestFileStoreRejectsInvalidRecord(t *testing.T) {
	store := settings.NewFileStore(filepath.Join(t.TempDir(), "settings.json"))
	cfg := hc06.DefaultDeviceConfig()
	cfg.PIN = "12"

	err := store.Save(context.Background(), cfg)
	if !errors.Is(err, hc06.ErrInvalidArgument) {
		t.Fatalf("expected ErrInvalidArgument, got %v", err)
	}
}

func TestFileStoreCorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.json")
	if err := os.WriteFile(path, []byte("invalid json"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := settings.NewFileStore(path).Load(context.Background()); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestMemoryStore(t *testing.T) {
	ctx := context.Background()
	store := settings.NewMemoryStore()

	cfg, err := store.Load(ctx)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg != hc06.DefaultDeviceConfig() {
		t.Errorf("expected defaults, got %+v", cfg)
	}

	cfg.Role = hc06.RoleMaster
	if err := store.Save(ctx, cfg); err != nil {
		t.Fatalf("Save: %v", err)
	}
	got, _ := store.Load(ctx)
	if got.Role != hc06.RoleMaster {
		t.Errorf("expected master, got %s", got.Role)
	}
	if store.Saves() != 1 {
		t.Errorf("expected 1 save, got %d", store.Saves())
	}
}

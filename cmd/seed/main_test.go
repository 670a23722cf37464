package main

import (
	"os"
	"path/filepath"
	"testing"
)

func TestReadManifest_ShippedSeed(t *testing.T) {
	rs, err := readManifest(filepath.Join("..", "..", "configs", "seed.json"))
	if err != nil {
		t.Fatalf("readManifest: %v", err)
	}
	if len(rs) != 3 {
		t.Fatalf("expected 3 restaurants, got %d", len(rs))
	}
	for _, r := range rs {
		if r.ID == "" || r.Name == "" {
			t.Errorf("restaurant missing id or name: %+v", r)
		}
		if !r.Coordinate().Valid() {
			t.Errorf("%s: invalid coordinate", r.ID)
		}
		if r.ExpiryDate == nil {
			t.Errorf("%s: missing expiry_date", r.ID)
		}
	}
	if rs[0].Province != "DKI Jakarta" {
		t.Errorf("expected first seed in DKI Jakarta, got %q", rs[0].Province)
	}
}

func TestReadManifest_RejectsUnknownFields(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.json")
	if err := os.WriteFile(path, []byte(`[{"name":"x","lat":1}]`), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := readManifest(path); err == nil {
		t.Fatal("expected error for unknown field")
	}
}

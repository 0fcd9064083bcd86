package tokens

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestStore_SaveLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tokens.json")
	store := NewStore(path)

	want := Pair{
		Access:           "access-token",
		Refresh:          "refresh-token",
		AccessExpiresAt:  time.Date(2026, 8, 29, 10, 0, 0, 0, time.UTC),
		RefreshExpiresAt: time.Date(2026, 9, 23, 10, 0, 0, 0, time.UTC),
	}
	if err := store.Save(want); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	got := store.Load()
	if got == nil {
		t.Fatalf("Load() = nil after Save")
	}
	if got.Access != want.Access || got.Refresh != want.Refresh {
		t.Fatalf("Load() = %+v, want %+v", got, want)
	}
	if !got.AccessExpiresAt.Equal(want.AccessExpiresAt) || !got.RefreshExpiresAt.Equal(want.RefreshExpiresAt) {
		t.Fatalf("Load() expiries = %v/%v, want %v/%v",
			got.AccessExpiresAt, got.RefreshExpiresAt, want.AccessExpiresAt, want.RefreshExpiresAt)
	}
}

func TestStore_SaveRestrictsPermissions(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tokens.json")
	store := NewStore(path)

	if err := store.Save(Pair{Access: "a", Refresh: "r"}); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("stat token file: %v", err)
	}
	if perm := info.Mode().Perm(); perm != 0o600 {
		t.Fatalf("token file permissions = %o, want 600", perm)
	}
}

func TestStore_LoadMissingFileReturnsNil(t *testing.T) {
	store := NewStore(filepath.Join(t.TempDir(), "does-not-exist.json"))
	if got := store.Load(); got != nil {
		t.Fatalf("Load() = %+v, want nil for missing file", got)
	}
}

func TestStore_LoadMalformedFileReturnsNil(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tokens.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o600); err != nil {
		t.Fatalf("write malformed file: %v", err)
	}
	if got := NewStore(path).Load(); got != nil {
		t.Fatalf("Load() = %+v, want nil for malformed file", got)
	}
}

func TestStore_LoadEmptyTokensReturnsNil(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tokens.json")
	if err := os.WriteFile(path, []byte(`{"access":"","refresh":""}`), 0o600); err != nil {
		t.Fatalf("write file: %v", err)
	}
	if got := NewStore(path).Load(); got != nil {
		t.Fatalf("Load() = %+v, want nil for empty tokens", got)
	}
}

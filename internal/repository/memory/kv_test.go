package memory

import (
	"context"
	"errors"
	"testing"

	"github.com/arklim/social-platform-offline/internal/repository"
)

func TestStore_GetSetDelete(t *testing.T) {
	store := NewStore()
	ctx := context.Background()

	if _, err := store.Get(ctx, "missing"); !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	if err := store.Set(ctx, "a", "1"); err != nil {
		t.Fatalf("set: %v", err)
	}
	value, err := store.Get(ctx, "a")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if value != "1" {
		t.Fatalf("expected value 1, got %q", value)
	}

	if err := store.Set(ctx, "a", "2"); err != nil {
		t.Fatalf("overwrite: %v", err)
	}
	value, _ = store.Get(ctx, "a")
	if value != "2" {
		t.Fatalf("expected overwritten value, got %q", value)
	}

	if err := store.Delete(ctx, "a"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := store.Get(ctx, "a"); !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("expected ErrNotFound after delete, got %v", err)
	}

	// Deleting a missing key is a no-op.
	if err := store.Delete(ctx, "a"); err != nil {
		t.Fatalf("second delete: %v", err)
	}
}

func TestStore_KeysByPrefix(t *testing.T) {
	store := NewStore()
	ctx := context.Background()

	seed := map[string]string{
		"offline:rate:login:b@x.com": "1",
		"offline:rate:login:a@x.com": "1",
		"offline:cache:profile":      "1",
	}
	for k, v := range seed {
		if err := store.Set(ctx, k, v); err != nil {
			t.Fatalf("seed %s: %v", k, err)
		}
	}

	keys, err := store.Keys(ctx, "offline:rate:")
	if err != nil {
		t.Fatalf("keys: %v", err)
	}
	want := []string{"offline:rate:login:a@x.com", "offline:rate:login:b@x.com"}
	if len(keys) != len(want) {
		t.Fatalf("expected %d keys, got %v", len(want), keys)
	}
	for i := range want {
		if keys[i] != want[i] {
			t.Fatalf("expected sorted keys %v, got %v", want, keys)
		}
	}
}

func TestStore_DeleteMany(t *testing.T) {
	store := NewStore()
	ctx := context.Background()

	for _, k := range []string{"a", "b", "c"} {
		if err := store.Set(ctx, k, "1"); err != nil {
			t.Fatalf("seed %s: %v", k, err)
		}
	}

	if err := store.DeleteMany(ctx, []string{"a", "c", "missing"}); err != nil {
		t.Fatalf("delete many: %v", err)
	}
	if store.Len() != 1 {
		t.Fatalf("expected one key to remain, got %d", store.Len())
	}
	if _, err := store.Get(ctx, "b"); err != nil {
		t.Fatalf("expected b to survive: %v", err)
	}
}

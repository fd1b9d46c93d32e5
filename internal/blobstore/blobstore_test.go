package blobstore

import (
	"context"
	"testing"
)

func TestFSStoreRoundTrip(t *testing.T) {
	dir := t.TempDir()
	store, err := NewFSStore(dir)
	if err != nil {
		t.Fatalf("NewFSStore: %v", err)
	}
	ctx := context.Background()

	if _, ok, err := store.Get(ctx, "missing"); err != nil || ok {
		t.Fatalf("Get(missing) = (_, %v, %v), want (_, false, nil)", ok, err)
	}

	want := []byte("module source bytes")
	if err := store.Put(ctx, "abc123", want); err != nil {
		t.Fatalf("Put: %v", err)
	}
	got, ok, err := store.Get(ctx, "abc123")
	if err != nil || !ok {
		t.Fatalf("Get(abc123) = (_, %v, %v), want (_, true, nil)", ok, err)
	}
	if string(got) != string(want) {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestSQLiteStoreRoundTrip(t *testing.T) {
	store, err := OpenSQLiteStoreMemory()
	if err != nil {
		t.Fatalf("OpenSQLiteStoreMemory: %v", err)
	}
	defer store.Close()
	ctx := context.Background()

	if _, ok, err := store.Get(ctx, "missing"); err != nil || ok {
		t.Fatalf("Get(missing) = (_, %v, %v), want (_, false, nil)", ok, err)
	}

	want := []byte("module source bytes")
	if err := store.Put(ctx, "abc123", want); err != nil {
		t.Fatalf("Put: %v", err)
	}
	got, ok, err := store.Get(ctx, "abc123")
	if err != nil || !ok {
		t.Fatalf("Get(abc123) = (_, %v, %v), want (_, true, nil)", ok, err)
	}
	if string(got) != string(want) {
		t.Fatalf("got %q, want %q", got, want)
	}

	// Put again with the same key overwrites rather than erroring.
	if err := store.Put(ctx, "abc123", []byte("updated bytes")); err != nil {
		t.Fatalf("Put (update): %v", err)
	}
	got, _, _ = store.Get(ctx, "abc123")
	if string(got) != "updated bytes" {
		t.Fatalf("got %q after update, want %q", got, "updated bytes")
	}
}

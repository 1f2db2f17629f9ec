package memory

import (
	"bytes"
	"context"
	"errors"
	"testing"
)

func TestBlobStorePutObjectCopiesData(t *testing.T) {
	t.Parallel()

	store := NewBlobStore()
	payload := []byte("content")
	uri, err := store.PutObject(context.Background(), "snapshots/v1.json", "application/json", bytes.NewReader(payload))
	if err != nil {
		t.Fatalf("PutObject() error = %v", err)
	}
	if uri != "memory://snapshots/v1.json" {
		t.Fatalf("unexpected uri %s", uri)
	}
	got, ok := store.Object("snapshots/v1.json")
	if !ok || string(got) != "content" {
		t.Fatalf("Object() = %q, %v", got, ok)
	}
	got[0] = 'C'
	again, _ := store.Object("snapshots/v1.json")
	if string(again) != "content" {
		t.Fatalf("expected stored copy to be immutable, got %q", again)
	}
	if paths := store.Paths(); len(paths) != 1 || paths[0] != "snapshots/v1.json" {
		t.Fatalf("unexpected paths %v", paths)
	}
}

func TestBlobStoreErr(t *testing.T) {
	t.Parallel()

	store := NewBlobStore()
	store.Err = errors.New("quota exceeded")
	if _, err := store.PutObject(context.Background(), "x", "", bytes.NewReader(nil)); err == nil {
		t.Fatal("expected error")
	}
	if _, ok := store.Object("x"); ok {
		t.Fatal("failed put must not store")
	}
}

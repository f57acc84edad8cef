package blob

import (
	"bytes"
	"context"
	"io"
	"path/filepath"
	"testing"

	"github.com/OpenRedButtonProject/orb-core/internal/store"
)

func newTestStore(t *testing.T) (*Store, *store.Store) {
	t.Helper()
	dir := t.TempDir()
	meta, err := store.Open(filepath.Join(dir, "orb.db"))
	if err != nil {
		t.Fatalf("open sqlite store: %v", err)
	}
	t.Cleanup(func() { _ = meta.Close() })

	blobs, err := NewStore(filepath.Join(dir, "blobs"), meta)
	if err != nil {
		t.Fatalf("create blob store: %v", err)
	}
	return blobs, meta
}

func TestPutThenOpenRoundTripsBytes(t *testing.T) {
	blobs, _ := newTestStore(t)
	want := []byte("\x00\x01binary AIT section payload")

	meta, err := blobs.Put(context.Background(), PutInput{
		Kind:         "ait_section",
		OriginalName: "ait-0x0abc.bin",
		ContentType:  "application/octet-stream",
		Reader:       bytes.NewReader(want),
	})
	if err != nil {
		t.Fatalf("put: %v", err)
	}
	if meta.ID == "" || meta.DiskName != meta.ID {
		t.Fatalf("expected uuid id used as disk name, got %+v", meta)
	}
	if meta.SizeBytes != int64(len(want)) {
		t.Fatalf("expected size %d, got %d", len(want), meta.SizeBytes)
	}

	result, err := blobs.Open(context.Background(), meta.ID)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer result.File.Close()

	got, err := io.ReadAll(result.File)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if !bytes.Equal(got, want) {
		t.Fatalf("round-tripped bytes mismatch: got %q want %q", got, want)
	}
}

func TestPutDefaultsKindAndContentType(t *testing.T) {
	blobs, _ := newTestStore(t)

	meta, err := blobs.Put(context.Background(), PutInput{
		OriginalName: "unlabelled.xml",
		Reader:       bytes.NewReader([]byte("<ServiceDiscovery/>")),
	})
	if err != nil {
		t.Fatalf("put: %v", err)
	}
	if meta.Kind != "ait_payload" {
		t.Fatalf("expected default kind ait_payload, got %q", meta.Kind)
	}
	if meta.ContentType != defaultContentType {
		t.Fatalf("expected default content type, got %q", meta.ContentType)
	}
}

func TestPutRequiresOriginalName(t *testing.T) {
	blobs, _ := newTestStore(t)

	_, err := blobs.Put(context.Background(), PutInput{Reader: bytes.NewReader([]byte("x"))})
	if err == nil {
		t.Fatal("expected error for missing original name")
	}
}

func TestOpenUnknownIDReturnsNotFound(t *testing.T) {
	blobs, _ := newTestStore(t)

	_, err := blobs.Open(context.Background(), "does-not-exist")
	if err != store.ErrBlobNotFound {
		t.Fatalf("expected ErrBlobNotFound, got %v", err)
	}
}

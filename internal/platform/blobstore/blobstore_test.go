package blobstore

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"
)

func pdfMeta(owner string) BlobMetadata {
	return BlobMetadata{
		FileName:    "declaracao.pdf",
		ContentType: "application/pdf",
		OwnerID:     owner,
		Category:    CategoryDeclaration,
		Tags:        map[string]string{"type": "atestado"},
	}
}

func TestMemoryStore_UploadAndDownload(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	meta, err := s.Upload(ctx, pdfMeta("psy-1"), strings.NewReader("%PDF-1.3 body"))
	if err != nil {
		t.Fatalf("Upload: %v", err)
	}
	if meta.ID == "" || meta.Size != 13 {
		t.Errorf("unexpected metadata: %+v", meta)
	}
	if len(meta.Hash) != 64 {
		t.Errorf("expected hex sha256, got %q", meta.Hash)
	}

	rc, got, err := s.Download(ctx, meta.ID)
	if err != nil {
		t.Fatalf("Download: %v", err)
	}
	defer rc.Close()
	data, _ := io.ReadAll(rc)
	if string(data) != "%PDF-1.3 body" {
		t.Errorf("content = %q", data)
	}
	if got.Tags["type"] != "atestado" {
		t.Errorf("tags not kept: %v", got.Tags)
	}
}

func TestMemoryStore_UploadValidation(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	cases := []struct {
		name string
		mod  func(*BlobMetadata)
		want error
	}{
		{"no file name", func(m *BlobMetadata) { m.FileName = "" }, ErrMissingFileName},
		{"no owner", func(m *BlobMetadata) { m.OwnerID = "" }, ErrMissingOwner},
		{"bad category", func(m *BlobMetadata) { m.Category = "radiology" }, ErrInvalidCategory},
		{"bad content type", func(m *BlobMetadata) { m.ContentType = "image/png" }, ErrInvalidContentType},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			meta := pdfMeta("psy-1")
			tc.mod(&meta)
			_, err := s.Upload(ctx, meta, strings.NewReader("x"))
			if !errors.Is(err, tc.want) {
				t.Errorf("expected %v, got %v", tc.want, err)
			}
		})
	}
}

func TestMemoryStore_TooLarge(t *testing.T) {
	s := NewMemoryStore()
	big := strings.NewReader(strings.Repeat("a", MaxFileSize+1))
	if _, err := s.Upload(context.Background(), pdfMeta("psy-1"), big); !errors.Is(err, ErrFileTooLarge) {
		t.Fatalf("expected ErrFileTooLarge, got %v", err)
	}
}

func TestMemoryStore_NotFound(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	if _, _, err := s.Download(ctx, "missing"); !errors.Is(err, ErrBlobNotFound) {
		t.Errorf("Download: expected ErrBlobNotFound, got %v", err)
	}
	if _, err := s.GetMetadata(ctx, "missing"); !errors.Is(err, ErrBlobNotFound) {
		t.Errorf("GetMetadata: expected ErrBlobNotFound, got %v", err)
	}
	if err := s.Delete(ctx, "missing"); !errors.Is(err, ErrBlobNotFound) {
		t.Errorf("Delete: expected ErrBlobNotFound, got %v", err)
	}
}

func TestMemoryStore_Delete(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	meta, _ := s.Upload(ctx, pdfMeta("psy-1"), strings.NewReader("x"))
	if err := s.Delete(ctx, meta.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := s.GetMetadata(ctx, meta.ID); !errors.Is(err, ErrBlobNotFound) {
		t.Errorf("expected blob gone, got %v", err)
	}
}

func TestMemoryStore_ListByOwner(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	base := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	i := 0
	s.now = func() time.Time {
		i++
		return base.Add(time.Duration(i) * time.Minute)
	}

	var ids []string
	for n := 0; n < 3; n++ {
		m, _ := s.Upload(ctx, pdfMeta("psy-1"), strings.NewReader("x"))
		ids = append(ids, m.ID)
	}
	s.Upload(ctx, pdfMeta("psy-2"), strings.NewReader("x"))

	items, total, err := s.ListByOwner(ctx, "psy-1", CategoryDeclaration, 2, 0)
	if err != nil {
		t.Fatalf("ListByOwner: %v", err)
	}
	if total != 3 {
		t.Errorf("expected total 3, got %d", total)
	}
	if len(items) != 2 || items[0].ID != ids[2] || items[1].ID != ids[1] {
		t.Errorf("expected newest first, got %v", items)
	}

	items, _, _ = s.ListByOwner(ctx, "psy-1", "", 10, 5)
	if len(items) != 0 {
		t.Errorf("expected empty page past the end, got %d", len(items))
	}
}

package storage

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"

	"feed_notifier/internal/model"
)

func newTestDB(t *testing.T) *SQLite {
	t.Helper()
	s, err := NewSQLite(filepath.Join(t.TempDir(), "seen.db"))
	if err != nil {
		t.Fatalf("new sqlite: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func entry(id, updated string) model.FeedEntry {
	return model.FeedEntry{
		ID:      id,
		Updated: updated,
		URL:     "https://example.com/items/" + id,
		Title:   "Item " + id,
	}
}

func TestUnseen(t *testing.T) {
	tests := []struct {
		name   string
		stored []model.FeedEntry
		bucket []model.FeedEntry
		want   []model.FeedEntry
	}{
		{
			name:   "empty store passes everything",
			bucket: []model.FeedEntry{entry("1", "t1"), entry("2", "t1")},
			want:   []model.FeedEntry{entry("1", "t1"), entry("2", "t1")},
		},
		{
			name:   "seen entries removed, order kept",
			stored: []model.FeedEntry{entry("2", "t1"), entry("4", "t1")},
			bucket: []model.FeedEntry{entry("5", "t1"), entry("4", "t1"), entry("3", "t1"), entry("2", "t1"), entry("1", "t1")},
			want:   []model.FeedEntry{entry("5", "t1"), entry("3", "t1"), entry("1", "t1")},
		},
		{
			name:   "new updated value is a new entry",
			stored: []model.FeedEntry{entry("1", "t1")},
			bucket: []model.FeedEntry{entry("1", "t2")},
			want:   []model.FeedEntry{entry("1", "t2")},
		},
		{
			name:   "everything seen",
			stored: []model.FeedEntry{entry("1", "t1"), entry("2", "t2")},
			bucket: []model.FeedEntry{entry("2", "t2"), entry("1", "t1")},
			want:   []model.FeedEntry{},
		},
		{
			name:   "repeated version kept once",
			bucket: []model.FeedEntry{entry("1", "t1"), entry("2", "t1"), entry("1", "t1"), entry("1", "t2")},
			want:   []model.FeedEntry{entry("1", "t1"), entry("2", "t1"), entry("1", "t2")},
		},
		{
			name:   "repeat of a seen version dropped",
			stored: []model.FeedEntry{entry("1", "t1")},
			bucket: []model.FeedEntry{entry("1", "t1"), entry("1", "t1"), entry("2", "t1")},
			want:   []model.FeedEntry{entry("2", "t1")},
		},
		{
			name: "empty bucket",
			want: []model.FeedEntry{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			s := newTestDB(t)

			if err := s.Save(ctx, model.TagBucket{Tag: "go", Entries: tt.stored}); err != nil {
				t.Fatalf("save: %v", err)
			}

			got, err := s.Unseen(ctx, model.TagBucket{Tag: "go", Entries: tt.bucket})
			if err != nil {
				t.Fatalf("unseen: %v", err)
			}
			want := model.TagBucket{Tag: "go", Entries: tt.want}
			if diff := cmp.Diff(want, got); diff != "" {
				t.Errorf("Unseen mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestSaveRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := newTestDB(t)

	bucket := model.TagBucket{Tag: "go", Entries: []model.FeedEntry{entry("1", "t1"), entry("2", "t1")}}
	if err := s.Save(ctx, bucket); err != nil {
		t.Fatalf("save: %v", err)
	}

	got, err := s.Unseen(ctx, bucket)
	if err != nil {
		t.Fatalf("unseen: %v", err)
	}
	if !got.Empty() {
		t.Errorf("expected no unseen entries after save, got %d", len(got.Entries))
	}

	seen, err := s.ListSeen(ctx, "go")
	if err != nil {
		t.Fatalf("list seen: %v", err)
	}
	want := []model.SeenEntry{
		{Tag: "go", FeedEntry: entry("1", "t1")},
		{Tag: "go", FeedEntry: entry("2", "t1")},
	}
	if diff := cmp.Diff(want, seen); diff != "" {
		t.Errorf("ListSeen mismatch (-want +got):\n%s", diff)
	}
}

func TestSaveIsAtomic(t *testing.T) {
	ctx := context.Background()
	s := newTestDB(t)

	// The repeated (id, updated) pair violates the primary key on the third insert.
	bucket := model.TagBucket{Tag: "go", Entries: []model.FeedEntry{
		entry("1", "t1"),
		entry("2", "t1"),
		entry("1", "t1"),
		entry("3", "t1"),
	}}

	err := s.Save(ctx, bucket)
	var storeErr *StoreError
	if !errors.As(err, &storeErr) {
		t.Fatalf("expected StoreError, got %v", err)
	}
	if diff := cmp.Diff("insert", storeErr.Op); diff != "" {
		t.Errorf("op mismatch (-want +got):\n%s", diff)
	}

	seen, err := s.ListSeen(ctx, "go")
	if err != nil {
		t.Fatalf("list seen: %v", err)
	}
	if len(seen) != 0 {
		t.Errorf("expected rollback to leave no rows, got %d", len(seen))
	}

	got, err := s.Unseen(ctx, model.TagBucket{Tag: "go", Entries: []model.FeedEntry{entry("1", "t1"), entry("2", "t1")}})
	if err != nil {
		t.Fatalf("unseen: %v", err)
	}
	if diff := cmp.Diff(2, len(got.Entries)); diff != "" {
		t.Errorf("unseen count mismatch (-want +got):\n%s", diff)
	}
}

func TestTagsArePartitioned(t *testing.T) {
	ctx := context.Background()
	s := newTestDB(t)

	if err := s.Save(ctx, model.TagBucket{Tag: "go", Entries: []model.FeedEntry{entry("1", "t1")}}); err != nil {
		t.Fatalf("save: %v", err)
	}

	got, err := s.Unseen(ctx, model.TagBucket{Tag: "rust", Entries: []model.FeedEntry{entry("1", "t1")}})
	if err != nil {
		t.Fatalf("unseen: %v", err)
	}
	if diff := cmp.Diff([]model.FeedEntry{entry("1", "t1")}, got.Entries); diff != "" {
		t.Errorf("entry seen under another tag (-want +got):\n%s", diff)
	}

	// The same entry may be recorded under a second tag.
	if err := s.Save(ctx, got); err != nil {
		t.Fatalf("save under second tag: %v", err)
	}
}

func TestTagIsBoundNotInterpolated(t *testing.T) {
	ctx := context.Background()
	s := newTestDB(t)

	tag := `go"; DROP TABLE seen_entries; --`
	if err := s.Save(ctx, model.TagBucket{Tag: tag, Entries: []model.FeedEntry{entry("1", "t1")}}); err != nil {
		t.Fatalf("save: %v", err)
	}

	seen, err := s.ListSeen(ctx, tag)
	if err != nil {
		t.Fatalf("list seen: %v", err)
	}
	if diff := cmp.Diff(1, len(seen)); diff != "" {
		t.Errorf("seen count mismatch (-want +got):\n%s", diff)
	}
}

func TestSaveEmptyBucket(t *testing.T) {
	s := newTestDB(t)
	if err := s.Save(context.Background(), model.TagBucket{Tag: "go"}); err != nil {
		t.Fatalf("save empty: %v", err)
	}
}

func TestStoreErrorAfterClose(t *testing.T) {
	ctx := context.Background()
	s, err := NewSQLite(filepath.Join(t.TempDir(), "seen.db"))
	if err != nil {
		t.Fatalf("new sqlite: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	bucket := model.TagBucket{Tag: "go", Entries: []model.FeedEntry{entry("1", "t1")}}

	_, err = s.Unseen(ctx, bucket)
	var storeErr *StoreError
	if !errors.As(err, &storeErr) {
		t.Fatalf("Unseen: expected StoreError, got %v", err)
	}

	err = s.Save(ctx, bucket)
	if !errors.As(err, &storeErr) {
		t.Fatalf("Save: expected StoreError, got %v", err)
	}
}

func TestReopenKeepsRecords(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "seen.db")

	first, err := NewSQLite(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	bucket := model.TagBucket{Tag: "go", Entries: []model.FeedEntry{entry("1", "t1")}}
	if err := first.Save(ctx, bucket); err != nil {
		t.Fatalf("save: %v", err)
	}
	_ = first.Close()

	second, err := NewSQLite(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer func() { _ = second.Close() }()

	got, err := second.Unseen(ctx, bucket)
	if err != nil {
		t.Fatalf("unseen: %v", err)
	}
	if !got.Empty() {
		t.Errorf("expected entry to stay seen across runs, got %d unseen", len(got.Entries))
	}
}

// Ensure the Storage interface is satisfied.
var _ Storage = (*SQLite)(nil)

package storage

import (
	"context"
	"testing"
)

func newDocRepo(t *testing.T) *DocumentRepo {
	t.Helper()
	db, err := New(t.TempDir() + "/test.db")
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	t.Cleanup(func() {
		_ = db.Close()
	})
	if err := Migrate(db); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}
	return NewDocumentRepo(db)
}

func TestDocumentRepo_UpsertAssignsID(t *testing.T) {
	repo := newDocRepo(t)
	ctx := context.Background()

	doc := &Document{FilePath: "guides/setup.md", Title: "Setup", Hash: "h1"}
	if err := repo.Upsert(ctx, doc); err != nil {
		t.Fatalf("Upsert() error = %v", err)
	}
	if doc.ID == "" {
		t.Fatal("Upsert() did not assign an ID")
	}

	// Upserting the same path again keeps the ID and updates the hash.
	again := &Document{FilePath: "guides/setup.md", Title: "Setup", Hash: "h2"}
	if err := repo.Upsert(ctx, again); err != nil {
		t.Fatalf("Upsert() second error = %v", err)
	}
	if again.ID != doc.ID {
		t.Errorf("Upsert() changed ID: %s != %s", again.ID, doc.ID)
	}

	got, err := repo.GetByPath(ctx, "guides/setup.md")
	if err != nil {
		t.Fatalf("GetByPath() error = %v", err)
	}
	if got.Hash != "h2" {
		t.Errorf("hash = %s, want h2", got.Hash)
	}
}

func TestDocumentRepo_GetByPathNotFound(t *testing.T) {
	repo := newDocRepo(t)

	_, err := repo.GetByPath(context.Background(), "missing.md")
	if err != ErrNotFound {
		t.Errorf("GetByPath() error = %v, want ErrNotFound", err)
	}
}

func TestDocumentRepo_ListAllAndDelete(t *testing.T) {
	repo := newDocRepo(t)
	ctx := context.Background()

	for _, path := range []string{"b.md", "a.md"} {
		if err := repo.Upsert(ctx, &Document{FilePath: path, Hash: "h"}); err != nil {
			t.Fatalf("Upsert(%s) error = %v", path, err)
		}
	}

	docs, err := repo.ListAll(ctx)
	if err != nil {
		t.Fatalf("ListAll() error = %v", err)
	}
	if len(docs) != 2 || docs[0].FilePath != "a.md" {
		t.Fatalf("ListAll() = %+v, want 2 docs ordered by path", docs)
	}

	if err := repo.Delete(ctx, docs[0].ID); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	docs, err = repo.ListAll(ctx)
	if err != nil {
		t.Fatalf("ListAll() error = %v", err)
	}
	if len(docs) != 1 {
		t.Errorf("ListAll() after delete = %d docs, want 1", len(docs))
	}
}

package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/starford/othala/internal/apperr"
	"github.com/starford/othala/internal/models"
)

func testStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(context.Background(), filepath.Join(t.TempDir(), "othala.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func testSave(t *testing.T, slug string, c models.SaveContent) *models.Record {
	t.Helper()
	rec := models.New(models.KindSave, slug)
	if err := rec.Encode(&c); err != nil {
		t.Fatalf("encode save %q: %v", slug, err)
	}
	return rec
}

func TestOpenMigrates(t *testing.T) {
	s := testStore(t)
	for _, table := range []string{"records", "record_tags", "memberships", "record_refs", "meta"} {
		var n int
		if err := s.db.QueryRow(`SELECT count(*) FROM ` + table).Scan(&n); err != nil {
			t.Errorf("table %s missing: %v", table, err)
		}
	}
}

func TestPutGetRoundtrip(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	rec := testSave(t, "go-blog", models.SaveContent{
		URL:   "https://go.dev/blog",
		Title: "The Go Blog",
		Type:  models.TypeLink,
		Tags:  []string{"go", "reading"},
	})
	rec.Sync.Snapshot = []byte(`{"kind":"save","slug":"go-blog"}`)
	if err := s.Put(ctx, rec); err != nil {
		t.Fatalf("Put: %v", err)
	}

	got, err := s.Get(ctx, models.KindSave, "go-blog")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	c, err := got.SaveContent()
	if err != nil {
		t.Fatal(err)
	}
	if c.Title != "The Go Blog" || len(c.Tags) != 2 {
		t.Errorf("content did not survive: %+v", c)
	}
	if string(got.Sync.Snapshot) != `{"kind":"save","slug":"go-blog"}` {
		t.Errorf("snapshot column not restored: %q", got.Sync.Snapshot)
	}
}

func TestGetNotFound(t *testing.T) {
	s := testStore(t)
	_, err := s.Get(context.Background(), models.KindSave, "missing")
	if !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestPutRejectsInvalid(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	bad := models.New("bookmark", "x")
	if err := s.Put(ctx, bad); !errors.Is(err, apperr.ErrInvalid) {
		t.Errorf("unknown kind: err = %v, want ErrInvalid", err)
	}
	noSlug := models.New(models.KindSave, "")
	if err := s.Put(ctx, noSlug); !errors.Is(err, apperr.ErrInvalid) {
		t.Errorf("empty slug: err = %v, want ErrInvalid", err)
	}
}

func TestSubscribeSeesCreateUpdateDelete(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	var changes []Change
	s.Subscribe(func(c Change) { changes = append(changes, c) })

	rec := testSave(t, "watch-me", models.SaveContent{Title: "First"})
	if err := s.Put(ctx, rec); err != nil {
		t.Fatal(err)
	}
	if err := s.Put(ctx, rec); err != nil {
		t.Fatal(err)
	}
	if err := s.Delete(ctx, models.KindSave, "watch-me"); err != nil {
		t.Fatal(err)
	}

	if len(changes) != 3 {
		t.Fatalf("got %d changes, want 3", len(changes))
	}
	if !changes[0].Created || changes[0].Op != OpPut {
		t.Errorf("first change should be a creating put: %+v", changes[0])
	}
	if changes[1].Created {
		t.Errorf("second put should not be marked created: %+v", changes[1])
	}
	if changes[2].Op != OpDelete {
		t.Errorf("third change should be a delete: %+v", changes[2])
	}
}

func TestUpdateMutatesAtomically(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	if err := s.Put(ctx, testSave(t, "edit-me", models.SaveContent{Title: "Old"})); err != nil {
		t.Fatal(err)
	}

	got, err := s.Update(ctx, models.KindSave, "edit-me", func(r *models.Record) error {
		c, err := r.SaveContent()
		if err != nil {
			return err
		}
		c.Title = "New"
		r.Touch()
		return r.Encode(c)
	})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	c, _ := got.SaveContent()
	if c.Title != "New" {
		t.Errorf("title = %q, want New", c.Title)
	}

	if _, err := s.Update(ctx, models.KindSave, "missing", func(*models.Record) error { return nil }); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("updating a missing record: err = %v, want ErrNotFound", err)
	}
}

func TestUpdateRollsBackOnError(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	if err := s.Put(ctx, testSave(t, "keep", models.SaveContent{Title: "Original"})); err != nil {
		t.Fatal(err)
	}

	boom := errors.New("boom")
	_, err := s.Update(ctx, models.KindSave, "keep", func(r *models.Record) error {
		c, _ := r.SaveContent()
		c.Title = "Mutated"
		if err := r.Encode(c); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("err = %v, want boom", err)
	}
	got, _ := s.Get(ctx, models.KindSave, "keep")
	c, _ := got.SaveContent()
	if c.Title != "Original" {
		t.Errorf("failed update leaked: title = %q", c.Title)
	}
}

func TestReconcilePaths(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	// Insert through reconcile: current is nil.
	rec, err := s.Reconcile(ctx, models.KindSave, "incoming", func(cur *models.Record) (*models.Record, error) {
		if cur != nil {
			t.Error("expected nil current on first reconcile")
		}
		r := testSave(t, "incoming", models.SaveContent{Title: "Remote"})
		r.Sync.Status = models.StatusSynced
		return r, nil
	})
	if err != nil {
		t.Fatalf("Reconcile insert: %v", err)
	}
	if rec.Sync.Status != models.StatusSynced {
		t.Errorf("status = %s", rec.Sync.Status)
	}

	// Update through reconcile: current is present.
	_, err = s.Reconcile(ctx, models.KindSave, "incoming", func(cur *models.Record) (*models.Record, error) {
		if cur == nil {
			t.Fatal("expected existing record")
		}
		c, _ := cur.SaveContent()
		c.Title = "Remote v2"
		if err := cur.Encode(c); err != nil {
			return nil, err
		}
		return cur, nil
	})
	if err != nil {
		t.Fatalf("Reconcile update: %v", err)
	}

	// Delete through reconcile: return nil.
	if _, err := s.Reconcile(ctx, models.KindSave, "incoming", func(cur *models.Record) (*models.Record, error) {
		return nil, nil
	}); err != nil {
		t.Fatalf("Reconcile delete: %v", err)
	}
	if _, err := s.Get(ctx, models.KindSave, "incoming"); !errors.Is(err, apperr.ErrNotFound) {
		t.Error("record should be gone after reconcile returned nil")
	}

	// Reconcile of a missing record returning nil is a no-op.
	if _, err := s.Reconcile(ctx, models.KindSave, "ghost", func(cur *models.Record) (*models.Record, error) {
		return nil, nil
	}); err != nil {
		t.Fatalf("Reconcile no-op: %v", err)
	}
}

func TestListFilters(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	a := testSave(t, "a", models.SaveContent{Title: "A", Tags: []string{"go"}, Collections: []string{"reading"}})
	b := testSave(t, "b", models.SaveContent{Title: "B", Tags: []string{"rust"}})
	b.Sync.Status = models.StatusSynced
	col := models.New(models.KindCollection, "reading")
	if err := col.Encode(&models.CollectionContent{Name: "Reading"}); err != nil {
		t.Fatal(err)
	}
	for _, r := range []*models.Record{a, b, col} {
		if err := s.Put(ctx, r); err != nil {
			t.Fatal(err)
		}
	}

	got, err := s.List(ctx, Query{Kind: models.KindSave})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(got) != 2 {
		t.Errorf("kind filter: got %d, want 2", len(got))
	}

	got, _ = s.List(ctx, Query{Tag: "go"})
	if len(got) != 1 || got[0].Slug != "a" {
		t.Errorf("tag filter: %+v", slugs(got))
	}

	got, _ = s.List(ctx, Query{Collection: "reading"})
	if len(got) != 1 || got[0].Slug != "a" {
		t.Errorf("collection filter: %+v", slugs(got))
	}

	got, _ = s.List(ctx, Query{Status: models.StatusSynced})
	if len(got) != 1 || got[0].Slug != "b" {
		t.Errorf("status filter: %+v", slugs(got))
	}

	got, _ = s.List(ctx, Query{Kind: models.KindSave, Limit: 1})
	if len(got) != 1 {
		t.Errorf("limit: got %d, want 1", len(got))
	}

	n, err := s.Count(ctx, Query{Kind: models.KindSave})
	if err != nil {
		t.Fatalf("Count: %v", err)
	}
	if n != 2 {
		t.Errorf("count = %d, want 2 regardless of limit", n)
	}
}

func slugs(recs []*models.Record) []string {
	out := make([]string, len(recs))
	for i, r := range recs {
		out[i] = r.Slug
	}
	return out
}

func TestBacklinksFollowRefs(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	for _, src := range []string{"one", "two"} {
		if err := s.Put(ctx, testSave(t, src, models.SaveContent{Refs: []string{"target"}})); err != nil {
			t.Fatal(err)
		}
	}
	bl, err := s.Backlinks(ctx, "target")
	if err != nil {
		t.Fatalf("Backlinks: %v", err)
	}
	if len(bl) != 2 {
		t.Fatalf("got %d backlinks, want 2", len(bl))
	}

	if err := s.Delete(ctx, models.KindSave, "one"); err != nil {
		t.Fatal(err)
	}
	bl, _ = s.Backlinks(ctx, "target")
	if len(bl) != 1 || bl[0] != "two" {
		t.Errorf("after delete: %v", bl)
	}
}

func TestAnnotationsAttachToSave(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	if err := s.Put(ctx, testSave(t, "parent", models.SaveContent{Title: "Parent"})); err != nil {
		t.Fatal(err)
	}
	for i, slug := range []string{"note-1", "note-2"} {
		ann := models.New(models.KindAnnotation, slug)
		ann.CreatedAt += int64(i) // stable order
		if err := ann.Encode(&models.AnnotationContent{SaveSlug: "parent", Quote: "q", Note: "n"}); err != nil {
			t.Fatal(err)
		}
		if err := s.Put(ctx, ann); err != nil {
			t.Fatal(err)
		}
	}

	anns, err := s.Annotations(ctx, "parent")
	if err != nil {
		t.Fatalf("Annotations: %v", err)
	}
	if len(anns) != 2 {
		t.Fatalf("got %d annotations, want 2", len(anns))
	}

	// Annotation refs never show up as save backlinks.
	bl, err := s.Backlinks(ctx, "parent")
	if err != nil {
		t.Fatal(err)
	}
	if len(bl) != 0 {
		t.Errorf("annotations leaked into backlinks: %v", bl)
	}

	if err := s.Delete(ctx, models.KindAnnotation, "note-1"); err != nil {
		t.Fatal(err)
	}
	anns, _ = s.Annotations(ctx, "parent")
	if len(anns) != 1 || anns[0].Slug != "note-2" {
		t.Errorf("after delete: %v", slugs(anns))
	}
}

func TestWatermarkMonotonic(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	wm, err := s.Watermark(ctx)
	if err != nil || wm != 0 {
		t.Fatalf("fresh watermark = %d, %v", wm, err)
	}
	if err := s.SetWatermark(ctx, 1000); err != nil {
		t.Fatal(err)
	}
	if err := s.SetWatermark(ctx, 500); err != nil {
		t.Fatal(err)
	}
	wm, _ = s.Watermark(ctx)
	if wm != 1000 {
		t.Errorf("watermark moved backwards: %d", wm)
	}
}

func TestSettingsRoundtrip(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	got, err := s.Settings(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if got != models.DefaultSettings() {
		t.Errorf("fresh store should return defaults, got %+v", got)
	}

	want := models.Settings{
		LocalStorageEnabled: true,
		RelaySyncEnabled:    true,
		SyncFrequency:       models.FrequencyInstant,
		ConflictPolicy:      models.PolicyLocal,
	}
	if err := s.PutSettings(ctx, want); err != nil {
		t.Fatal(err)
	}
	got, _ = s.Settings(ctx)
	if got != want {
		t.Errorf("settings = %+v, want %+v", got, want)
	}

	bad := want
	bad.SyncFrequency = "sometimes"
	if err := s.PutSettings(ctx, bad); err == nil {
		t.Error("invalid settings should be rejected")
	}
}

func TestSeedSettingsOnlyOnce(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	seed := models.DefaultSettings()
	seed.RelaySyncEnabled = true
	seeded, err := s.SeedSettings(ctx, seed)
	if err != nil {
		t.Fatal(err)
	}
	if !seeded {
		t.Fatal("first seed should write")
	}

	got, _ := s.Settings(ctx)
	if !got.RelaySyncEnabled {
		t.Error("seed not applied")
	}

	// A second seed must not clobber the stored row.
	seed.RelaySyncEnabled = false
	seeded, err = s.SeedSettings(ctx, seed)
	if err != nil {
		t.Fatal(err)
	}
	if seeded {
		t.Error("second seed should be a no-op")
	}
	got, _ = s.Settings(ctx)
	if !got.RelaySyncEnabled {
		t.Error("second seed overwrote settings")
	}
}

func TestCountByStatus(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	one := testSave(t, "one", models.SaveContent{})
	two := testSave(t, "two", models.SaveContent{})
	two.Sync.Status = models.StatusConflict
	for _, r := range []*models.Record{one, two} {
		if err := s.Put(ctx, r); err != nil {
			t.Fatal(err)
		}
	}
	counts, err := s.CountByStatus(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if counts[models.StatusLocal] != 1 || counts[models.StatusConflict] != 1 {
		t.Errorf("counts = %v", counts)
	}
}

func TestSearchFallback(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	if err := s.Put(ctx, testSave(t, "s", models.SaveContent{Title: "Search Me", Body: "uniqueword appears here"})); err != nil {
		t.Fatal(err)
	}
	results, err := s.Search(ctx, "uniqueword", 10)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 1 || results[0].Slug != "s" {
		t.Errorf("search results = %+v, want 1 hit for s", results)
	}
}

func TestMemoryStore(t *testing.T) {
	s, err := Open(context.Background(), MemoryPath)
	if err != nil {
		t.Fatalf("Open memory store: %v", err)
	}
	defer s.Close()
	if err := s.Put(context.Background(), testSave(t, "ephemeral", models.SaveContent{Title: "Gone on close"})); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if _, err := s.Get(context.Background(), models.KindSave, "ephemeral"); err != nil {
		t.Errorf("Get: %v", err)
	}
}

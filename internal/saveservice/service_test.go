package saveservice

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/starford/othala/internal/apperr"
	"github.com/starford/othala/internal/models"
	"github.com/starford/othala/internal/relay"
	"github.com/starford/othala/internal/store"
	"github.com/starford/othala/internal/syncer"
	"github.com/starford/othala/internal/testutil"
	"github.com/starford/othala/internal/wire"
)

func testService(t *testing.T) (*Service, *store.Store, *relay.Memory, *syncer.Runner) {
	t.Helper()
	st := testutil.TestStore(t)
	kr := testutil.TestKeyring(t)
	mem := relay.NewMemory("mem://test")
	pool := relay.NewPool(testutil.Logger(), []relay.Client{mem}, relay.PoolConfig{})
	eng := syncer.New(testutil.Logger(), st, pool, kr, syncer.Config{})
	runner := syncer.NewRunner(testutil.Logger(), eng, time.Hour)
	return NewService(testutil.Logger(), st, kr, eng, runner), st, mem, runner
}

func enableRelay(t *testing.T, st *store.Store, freq models.SyncFrequency) {
	t.Helper()
	s := models.DefaultSettings()
	s.RelaySyncEnabled = true
	s.SyncFrequency = freq
	if err := st.PutSettings(context.Background(), s); err != nil {
		t.Fatalf("PutSettings: %v", err)
	}
}

// eventually polls fn every tick until it returns true or timeout elapses.
func eventually(t *testing.T, timeout, tick time.Duration, fn func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if fn() {
			return
		}
		time.Sleep(tick)
	}
	t.Error(msg)
}

func TestCreateSaveDerivesSlugFromTitle(t *testing.T) {
	svc, _, _, _ := testService(t)
	ctx := context.Background()

	rec, err := svc.CreateSave(ctx, SaveInput{URL: "https://go.dev/blog", Title: "The Go Blog"})
	if err != nil {
		t.Fatalf("CreateSave: %v", err)
	}
	if rec.Slug != "the-go-blog" {
		t.Errorf("slug = %q, want %q", rec.Slug, "the-go-blog")
	}
	if rec.Author != svc.id.PublicKey() {
		t.Errorf("author = %q, want own key", rec.Author)
	}
	if rec.Sync.Status != models.StatusLocal {
		t.Errorf("status = %q, want %q", rec.Sync.Status, models.StatusLocal)
	}
	c, err := rec.SaveContent()
	if err != nil {
		t.Fatalf("SaveContent: %v", err)
	}
	if c.Type != models.TypeLink {
		t.Errorf("type = %q, want %q", c.Type, models.TypeLink)
	}
	if !c.Inherit {
		t.Error("visibility should inherit when none was given")
	}
}

func TestCreateSaveRequiresURLForLinks(t *testing.T) {
	svc, _, _, _ := testService(t)

	_, err := svc.CreateSave(context.Background(), SaveInput{Title: "No URL"})
	if !errors.Is(err, apperr.ErrInvalid) {
		t.Fatalf("err = %v, want ErrInvalid", err)
	}

	rec, err := svc.CreateSave(context.Background(), SaveInput{
		Type: models.TypeNote, Title: "Scratch", Body: "just text",
	})
	if err != nil {
		t.Fatalf("CreateSave note: %v", err)
	}
	c, _ := rec.SaveContent()
	if c.Type != models.TypeNote {
		t.Errorf("type = %q, want %q", c.Type, models.TypeNote)
	}
}

func TestCreateSaveExplicitSlugTakenIsRejected(t *testing.T) {
	svc, _, _, _ := testService(t)
	ctx := context.Background()

	if _, err := svc.CreateSave(ctx, SaveInput{URL: "https://a.example", Slug: "pinned"}); err != nil {
		t.Fatalf("CreateSave: %v", err)
	}
	_, err := svc.CreateSave(ctx, SaveInput{URL: "https://b.example", Slug: "pinned"})
	if !errors.Is(err, apperr.ErrAlreadyExists) {
		t.Fatalf("err = %v, want ErrAlreadyExists", err)
	}
}

func TestCreateSaveDerivedSlugCollisionGetsSuffix(t *testing.T) {
	svc, _, _, _ := testService(t)
	ctx := context.Background()

	first, err := svc.CreateSave(ctx, SaveInput{URL: "https://a.example", Title: "Same Title"})
	if err != nil {
		t.Fatalf("CreateSave first: %v", err)
	}
	second, err := svc.CreateSave(ctx, SaveInput{URL: "https://b.example", Title: "Same Title"})
	if err != nil {
		t.Fatalf("CreateSave second: %v", err)
	}
	if first.Slug != "same-title" {
		t.Errorf("first slug = %q, want %q", first.Slug, "same-title")
	}
	if second.Slug == first.Slug || !strings.HasPrefix(second.Slug, "same-title-") {
		t.Errorf("second slug = %q, want suffixed variant of %q", second.Slug, first.Slug)
	}
}

func TestCreateSaveRejectsMalformedRecipient(t *testing.T) {
	svc, _, _, _ := testService(t)

	_, err := svc.CreateSave(context.Background(), SaveInput{
		URL:        "https://a.example",
		Visibility: models.VisibilityShared,
		Recipients: []string{"not-a-key"},
	})
	if !errors.Is(err, apperr.ErrInvalid) {
		t.Fatalf("err = %v, want ErrInvalid", err)
	}
}

func TestCreateSaveNormalizesTags(t *testing.T) {
	svc, _, _, _ := testService(t)

	rec, err := svc.CreateSave(context.Background(), SaveInput{
		URL:  "https://a.example",
		Tags: []string{"#Go", "go", "  Reading "},
	})
	if err != nil {
		t.Fatalf("CreateSave: %v", err)
	}
	c, _ := rec.SaveContent()
	if len(c.Tags) != 2 || c.Tags[0] != "go" || c.Tags[1] != "reading" {
		t.Errorf("tags = %v, want [go reading]", c.Tags)
	}
}

func TestVisibilityPolicyBlocksPinnedOverride(t *testing.T) {
	svc, _, _, _ := testService(t)
	ctx := context.Background()

	if _, err := svc.CreateCollection(ctx, CollectionInput{
		Slug: "work", Name: "Work", Visibility: models.VisibilityPrivate,
	}); err != nil {
		t.Fatalf("CreateCollection: %v", err)
	}

	_, err := svc.CreateSave(ctx, SaveInput{
		URL:         "https://a.example",
		Visibility:  models.VisibilityPublic,
		Collections: []string{"work"},
	})
	if !errors.Is(err, apperr.ErrInvalid) {
		t.Fatalf("err = %v, want ErrInvalid", err)
	}
	if err == nil || !strings.Contains(err.Error(), "work") {
		t.Errorf("error should name the blocking collection, got %v", err)
	}

	// The same pin passes once the collection allows overrides.
	if _, err := svc.UpdateCollection(ctx, "work", CollectionInput{
		Name: "Work", Visibility: models.VisibilityPrivate, AllowOverride: true,
	}); err != nil {
		t.Fatalf("UpdateCollection: %v", err)
	}
	if _, err := svc.CreateSave(ctx, SaveInput{
		URL:         "https://a.example",
		Visibility:  models.VisibilityPublic,
		Collections: []string{"work"},
	}); err != nil {
		t.Fatalf("CreateSave after allow_override: %v", err)
	}
}

func TestUpdateSaveMarksSyncedRecordEdited(t *testing.T) {
	svc, st, _, _ := testService(t)
	ctx := context.Background()

	rec, err := svc.CreateSave(ctx, SaveInput{URL: "https://a.example", Title: "A"})
	if err != nil {
		t.Fatalf("CreateSave: %v", err)
	}
	if _, err := st.Update(ctx, models.KindSave, rec.Slug, func(cur *models.Record) error {
		cur.Sync.Status = models.StatusSynced
		cur.Sync.RemoteUpdatedAt = time.Now().Unix()
		return nil
	}); err != nil {
		t.Fatalf("Update: %v", err)
	}

	got, err := svc.UpdateSave(ctx, rec.Slug, SaveInput{URL: "https://a.example", Title: "A, revised"})
	if err != nil {
		t.Fatalf("UpdateSave: %v", err)
	}
	if got.Sync.Status != models.StatusLocal {
		t.Errorf("status = %q, want %q after edit", got.Sync.Status, models.StatusLocal)
	}
	if got.Sync.RemoteUpdatedAt == 0 {
		t.Error("push baseline should survive the edit")
	}
}

func TestUpdateSaveRefusesForeignAuthor(t *testing.T) {
	svc, st, _, _ := testService(t)
	ctx := context.Background()

	rec := models.New(models.KindSave, "theirs")
	rec.Author = strings.Repeat("ab", 32)
	if err := rec.Encode(&models.SaveContent{URL: "https://a.example", Type: models.TypeLink}); err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if err := st.Put(ctx, rec); err != nil {
		t.Fatalf("Put: %v", err)
	}

	_, err := svc.UpdateSave(ctx, "theirs", SaveInput{URL: "https://b.example"})
	if !errors.Is(err, apperr.ErrInvalid) {
		t.Fatalf("err = %v, want ErrInvalid", err)
	}
}

func TestDeleteSaveCascadesAnnotations(t *testing.T) {
	svc, st, _, _ := testService(t)
	ctx := context.Background()

	rec, err := svc.CreateSave(ctx, SaveInput{URL: "https://a.example", Title: "Annotated"})
	if err != nil {
		t.Fatalf("CreateSave: %v", err)
	}
	ann1, err := svc.CreateAnnotation(ctx, AnnotationInput{SaveSlug: rec.Slug, Note: "first"})
	if err != nil {
		t.Fatalf("CreateAnnotation: %v", err)
	}
	if _, err := svc.CreateAnnotation(ctx, AnnotationInput{SaveSlug: rec.Slug, Quote: "second"}); err != nil {
		t.Fatalf("CreateAnnotation: %v", err)
	}

	if err := svc.DeleteSave(ctx, rec.Slug); err != nil {
		t.Fatalf("DeleteSave: %v", err)
	}
	if _, err := st.Get(ctx, models.KindSave, rec.Slug); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("save err = %v, want ErrNotFound", err)
	}
	if _, err := st.Get(ctx, models.KindAnnotation, ann1.Slug); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("annotation err = %v, want ErrNotFound", err)
	}
}

func TestCreateAnnotationRequiresParent(t *testing.T) {
	svc, _, _, _ := testService(t)

	_, err := svc.CreateAnnotation(context.Background(), AnnotationInput{SaveSlug: "missing", Note: "hi"})
	if !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestUpdateAnnotationKeepsParentBinding(t *testing.T) {
	svc, _, _, _ := testService(t)
	ctx := context.Background()

	rec, err := svc.CreateSave(ctx, SaveInput{URL: "https://a.example", Title: "Parent"})
	if err != nil {
		t.Fatalf("CreateSave: %v", err)
	}
	ann, err := svc.CreateAnnotation(ctx, AnnotationInput{SaveSlug: rec.Slug, Quote: "aside"})
	if err != nil {
		t.Fatalf("CreateAnnotation: %v", err)
	}

	got, err := svc.UpdateAnnotation(ctx, ann.Slug, "new quote", "new note")
	if err != nil {
		t.Fatalf("UpdateAnnotation: %v", err)
	}
	c, err := got.AnnotationContent()
	if err != nil {
		t.Fatalf("AnnotationContent: %v", err)
	}
	if c.SaveSlug != rec.Slug {
		t.Errorf("save_slug = %q, want %q", c.SaveSlug, rec.Slug)
	}
	if c.Quote != "new quote" || c.Note != "new note" {
		t.Errorf("content = %+v, want updated quote and note", c)
	}

	anns, err := svc.AnnotationsFor(ctx, rec.Slug)
	if err != nil {
		t.Fatalf("AnnotationsFor: %v", err)
	}
	if len(anns) != 1 {
		t.Fatalf("annotations = %d, want 1", len(anns))
	}
}

func TestCollectionMembershipLivesOnSave(t *testing.T) {
	svc, _, _, _ := testService(t)
	ctx := context.Background()

	if _, err := svc.CreateCollection(ctx, CollectionInput{Slug: "reading", Name: "Reading"}); err != nil {
		t.Fatalf("CreateCollection: %v", err)
	}
	rec, err := svc.CreateSave(ctx, SaveInput{URL: "https://a.example", Title: "Member"})
	if err != nil {
		t.Fatalf("CreateSave: %v", err)
	}

	if _, err := svc.AddToCollection(ctx, rec.Slug, "missing"); !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("add to missing collection err = %v, want ErrNotFound", err)
	}

	// Adding twice is idempotent.
	for i := 0; i < 2; i++ {
		if _, err := svc.AddToCollection(ctx, rec.Slug, "reading"); err != nil {
			t.Fatalf("AddToCollection: %v", err)
		}
	}
	got, err := svc.GetSave(ctx, rec.Slug)
	if err != nil {
		t.Fatalf("GetSave: %v", err)
	}
	c, _ := got.SaveContent()
	if len(c.Collections) != 1 || c.Collections[0] != "reading" {
		t.Errorf("collections = %v, want [reading]", c.Collections)
	}

	cols, err := svc.ListCollections(ctx)
	if err != nil {
		t.Fatalf("ListCollections: %v", err)
	}
	if len(cols) != 1 || cols[0].SaveCount != 1 {
		t.Errorf("overview = %+v, want one collection with one save", cols)
	}

	if _, err := svc.RemoveFromCollection(ctx, rec.Slug, "reading"); err != nil {
		t.Fatalf("RemoveFromCollection: %v", err)
	}
	got, _ = svc.GetSave(ctx, rec.Slug)
	c, _ = got.SaveContent()
	if len(c.Collections) != 0 {
		t.Errorf("collections = %v, want empty", c.Collections)
	}
}

func TestDeleteCollectionLeavesSavesAlone(t *testing.T) {
	svc, _, _, _ := testService(t)
	ctx := context.Background()

	if _, err := svc.CreateCollection(ctx, CollectionInput{Slug: "temp", Name: "Temp"}); err != nil {
		t.Fatalf("CreateCollection: %v", err)
	}
	rec, err := svc.CreateSave(ctx, SaveInput{
		URL: "https://a.example", Title: "Member", Collections: []string{"temp"},
	})
	if err != nil {
		t.Fatalf("CreateSave: %v", err)
	}

	if err := svc.DeleteCollection(ctx, "temp"); err != nil {
		t.Fatalf("DeleteCollection: %v", err)
	}
	got, err := svc.GetSave(ctx, rec.Slug)
	if err != nil {
		t.Fatalf("GetSave after collection delete: %v", err)
	}
	c, _ := got.SaveContent()
	if len(c.Collections) != 1 || c.Collections[0] != "temp" {
		t.Errorf("collections = %v, membership should dangle untouched", c.Collections)
	}
}

func TestArticleLifecycle(t *testing.T) {
	svc, _, _, _ := testService(t)
	ctx := context.Background()

	_, err := svc.CreateArticle(ctx, ArticleInput{Body: "no title"})
	if !errors.Is(err, apperr.ErrInvalid) {
		t.Fatalf("err = %v, want ErrInvalid for missing title", err)
	}

	rec, err := svc.CreateArticle(ctx, ArticleInput{Title: "Field Notes", Body: "# Notes"})
	if err != nil {
		t.Fatalf("CreateArticle: %v", err)
	}
	if rec.Slug != "field-notes" {
		t.Errorf("slug = %q, want %q", rec.Slug, "field-notes")
	}
	c, _ := rec.ArticleContent()
	if c.Visibility != models.VisibilityPrivate {
		t.Errorf("visibility = %q, articles should start private", c.Visibility)
	}

	if _, err := svc.UpdateArticle(ctx, rec.Slug, ArticleInput{Title: "Field Notes", Body: "# Notes v2"}); err != nil {
		t.Fatalf("UpdateArticle: %v", err)
	}
	recs, total, err := svc.ListArticles(ctx, 10, 0)
	if err != nil {
		t.Fatalf("ListArticles: %v", err)
	}
	if len(recs) != 1 || total != 1 {
		t.Errorf("list = %d items, total %d, want 1 and 1", len(recs), total)
	}

	if err := svc.DeleteArticle(ctx, rec.Slug); err != nil {
		t.Fatalf("DeleteArticle: %v", err)
	}
	if _, err := svc.GetArticle(ctx, rec.Slug); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestListSavesReportsTotalPastThepage(t *testing.T) {
	svc, _, _, _ := testService(t)
	ctx := context.Background()

	for _, title := range []string{"One", "Two", "Three"} {
		if _, err := svc.CreateSave(ctx, SaveInput{URL: "https://a.example/" + title, Title: title}); err != nil {
			t.Fatalf("CreateSave %q: %v", title, err)
		}
	}
	recs, total, err := svc.ListSaves(ctx, ListQuery{Limit: 2})
	if err != nil {
		t.Fatalf("ListSaves: %v", err)
	}
	if len(recs) != 2 {
		t.Errorf("page = %d records, want 2", len(recs))
	}
	if total != 3 {
		t.Errorf("total = %d, want 3", total)
	}
}

func TestListSavesFiltersByEffectiveVisibility(t *testing.T) {
	svc, _, _, _ := testService(t)
	ctx := context.Background()

	if _, err := svc.CreateCollection(ctx, CollectionInput{
		Name: "Showcase", Visibility: models.VisibilityPublic, AllowOverride: true,
	}); err != nil {
		t.Fatalf("CreateCollection: %v", err)
	}

	// Inherits public from the collection.
	inherited, err := svc.CreateSave(ctx, SaveInput{
		URL: "https://a.example", Collections: []string{"showcase"},
	})
	if err != nil {
		t.Fatalf("CreateSave inherited: %v", err)
	}
	// No membership, no pin: private by default.
	if _, err := svc.CreateSave(ctx, SaveInput{URL: "https://b.example"}); err != nil {
		t.Fatalf("CreateSave private: %v", err)
	}
	// Pinned unlisted, membership notwithstanding.
	if _, err := svc.CreateSave(ctx, SaveInput{
		URL: "https://c.example", Visibility: models.VisibilityUnlisted,
		Collections: []string{"showcase"},
	}); err != nil {
		t.Fatalf("CreateSave pinned: %v", err)
	}

	recs, total, err := svc.ListSaves(ctx, ListQuery{Visibility: models.VisibilityPublic})
	if err != nil {
		t.Fatalf("ListSaves public: %v", err)
	}
	if len(recs) != 1 || total != 1 {
		t.Fatalf("public = %d records, total %d, want 1 and 1", len(recs), total)
	}
	if recs[0].Slug != inherited.Slug {
		t.Errorf("public match = %q, want %q", recs[0].Slug, inherited.Slug)
	}

	if _, total, err = svc.ListSaves(ctx, ListQuery{Visibility: models.VisibilityPrivate}); err != nil || total != 1 {
		t.Errorf("private total = %d (err %v), want 1", total, err)
	}
	if _, total, err = svc.ListSaves(ctx, ListQuery{Visibility: models.VisibilityUnlisted}); err != nil || total != 1 {
		t.Errorf("unlisted total = %d (err %v), want 1", total, err)
	}

	if _, _, err := svc.ListSaves(ctx, ListQuery{Visibility: "loud"}); !errors.Is(err, apperr.ErrInvalid) {
		t.Errorf("err = %v, want ErrInvalid for unknown visibility", err)
	}
}

func TestInstantFrequencyPushesOnCreate(t *testing.T) {
	svc, st, mem, runner := testService(t)
	ctx := context.Background()

	enableRelay(t, st, models.FrequencyInstant)
	testutil.StartRunner(t, runner)

	rec, err := svc.CreateSave(ctx, SaveInput{
		URL: "https://go.dev/blog", Title: "Instant", Visibility: models.VisibilityPublic,
	})
	if err != nil {
		t.Fatalf("CreateSave: %v", err)
	}

	eventually(t, 5*time.Second, 20*time.Millisecond, func() bool {
		got, err := st.Get(ctx, models.KindSave, rec.Slug)
		return err == nil && got.Sync.Status == models.StatusSynced
	}, "record never reached synced after instant push")
	if mem.Len() == 0 {
		t.Error("relay received no events")
	}
}

func TestManualFrequencySkipsInstantPush(t *testing.T) {
	svc, st, mem, runner := testService(t)
	ctx := context.Background()

	enableRelay(t, st, models.FrequencyManual)
	testutil.StartRunner(t, runner)

	rec, err := svc.CreateSave(ctx, SaveInput{URL: "https://a.example", Title: "Waits"})
	if err != nil {
		t.Fatalf("CreateSave: %v", err)
	}
	time.Sleep(50 * time.Millisecond)

	got, err := st.Get(ctx, models.KindSave, rec.Slug)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Sync.Status != models.StatusLocal {
		t.Errorf("status = %q, want %q", got.Sync.Status, models.StatusLocal)
	}
	if mem.Len() != 0 {
		t.Errorf("relay has %d events, want 0", mem.Len())
	}
}

func TestSyncNowRejectedWhileDisabled(t *testing.T) {
	svc, _, _, runner := testService(t)
	testutil.StartRunner(t, runner)

	_, err := svc.SyncNow(context.Background())
	if !errors.Is(err, apperr.ErrInvalid) {
		t.Fatalf("err = %v, want ErrInvalid", err)
	}
}

func TestSyncNowDrainsPending(t *testing.T) {
	svc, st, mem, runner := testService(t)
	ctx := context.Background()

	if _, err := svc.CreateSave(ctx, SaveInput{URL: "https://a.example", Title: "Pending"}); err != nil {
		t.Fatalf("CreateSave: %v", err)
	}
	enableRelay(t, st, models.FrequencyManual)
	testutil.StartRunner(t, runner)

	rep, err := svc.SyncNow(ctx)
	if err != nil {
		t.Fatalf("SyncNow: %v", err)
	}
	if rep.Pushed != 1 {
		t.Errorf("pushed = %d, want 1", rep.Pushed)
	}
	if mem.Len() != 1 {
		t.Errorf("relay has %d events, want 1", mem.Len())
	}
}

func TestPublishRequiresRelaySync(t *testing.T) {
	svc, _, _, _ := testService(t)
	ctx := context.Background()

	rec, err := svc.CreateSave(ctx, SaveInput{URL: "https://a.example", Title: "Draft"})
	if err != nil {
		t.Fatalf("CreateSave: %v", err)
	}
	_, err = svc.PublishRecord(ctx, models.KindSave, rec.Slug)
	if !errors.Is(err, apperr.ErrInvalid) {
		t.Fatalf("err = %v, want ErrInvalid", err)
	}
}

func TestPublishListsRecordOnRelay(t *testing.T) {
	svc, st, mem, _ := testService(t)
	ctx := context.Background()

	enableRelay(t, st, models.FrequencyManual)
	rec, err := svc.CreateSave(ctx, SaveInput{
		URL: "https://a.example", Title: "Goes Public", Visibility: models.VisibilityPublic,
	})
	if err != nil {
		t.Fatalf("CreateSave: %v", err)
	}

	got, err := svc.PublishRecord(ctx, models.KindSave, rec.Slug)
	if err != nil {
		t.Fatalf("PublishRecord: %v", err)
	}
	if got.Sync.Status != models.StatusPublished {
		t.Errorf("status = %q, want %q", got.Sync.Status, models.StatusPublished)
	}
	events, err := mem.Query(ctx, wire.Filter{Kinds: []int{wire.KindSave}})
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(events) != 1 || !events[0].HasTag(wire.TagListed) {
		t.Fatalf("relay should hold one listed event, got %d", len(events))
	}
}

func TestResolveKeepLocalSchedulesPush(t *testing.T) {
	svc, st, _, runner := testService(t)
	ctx := context.Background()

	enableRelay(t, st, models.FrequencyManual)
	rec, err := svc.CreateSave(ctx, SaveInput{URL: "https://a.example", Title: "Contested"})
	if err != nil {
		t.Fatalf("CreateSave: %v", err)
	}
	if _, err := st.Reconcile(ctx, models.KindSave, rec.Slug, func(cur *models.Record) (*models.Record, error) {
		cur.Sync.Status = models.StatusConflict
		cur.Sync.RemoteUpdatedAt = time.Now().Unix()
		cur.Sync.Snapshot = []byte(`{"remote_updated_at":1,"content":{"url":"https://b.example","type":"link"}}`)
		return cur, nil
	}); err != nil {
		t.Fatalf("Reconcile: %v", err)
	}

	conflicts, err := svc.Conflicts(ctx)
	if err != nil {
		t.Fatalf("Conflicts: %v", err)
	}
	if len(conflicts) != 1 {
		t.Fatalf("conflicts = %d, want 1", len(conflicts))
	}

	testutil.StartRunner(t, runner)
	if _, err := svc.Resolve(ctx, models.KindSave, rec.Slug, syncer.KeepLocal); err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	eventually(t, 5*time.Second, 20*time.Millisecond, func() bool {
		got, err := st.Get(ctx, models.KindSave, rec.Slug)
		return err == nil && got.Sync.Status == models.StatusSynced
	}, "kept-local record never pushed after resolution")
}

func TestUpdateSettingsKicksFullSyncWhenEnabled(t *testing.T) {
	svc, st, mem, runner := testService(t)
	ctx := context.Background()

	rec, err := svc.CreateSave(ctx, SaveInput{URL: "https://a.example", Title: "Backlog"})
	if err != nil {
		t.Fatalf("CreateSave: %v", err)
	}
	testutil.StartRunner(t, runner)

	next := models.DefaultSettings()
	next.RelaySyncEnabled = true
	next.SyncFrequency = models.FrequencyManual
	if _, err := svc.UpdateSettings(ctx, next); err != nil {
		t.Fatalf("UpdateSettings: %v", err)
	}

	eventually(t, 5*time.Second, 20*time.Millisecond, func() bool {
		got, err := st.Get(ctx, models.KindSave, rec.Slug)
		return err == nil && got.Sync.Status == models.StatusSynced
	}, "backlog never drained after enabling relay sync")
	if mem.Len() != 1 {
		t.Errorf("relay has %d events, want 1", mem.Len())
	}

	bad := next
	bad.SyncFrequency = "hourly"
	if _, err := svc.UpdateSettings(ctx, bad); !errors.Is(err, apperr.ErrInvalid) {
		t.Errorf("err = %v, want ErrInvalid for unknown frequency", err)
	}
}

func TestSyncOverviewCombinesSettingsAndStatus(t *testing.T) {
	svc, st, _, _ := testService(t)
	ctx := context.Background()

	enableRelay(t, st, models.FrequencyInterval)
	if _, err := svc.CreateSave(ctx, SaveInput{URL: "https://a.example", Title: "One"}); err != nil {
		t.Fatalf("CreateSave: %v", err)
	}

	ov, err := svc.GetSyncOverview(ctx)
	if err != nil {
		t.Fatalf("GetSyncOverview: %v", err)
	}
	if !ov.Settings.RelaySyncEnabled {
		t.Error("settings should show relay sync enabled")
	}
	if ov.Status.Counts[models.StatusLocal] != 1 {
		t.Errorf("local count = %d, want 1", ov.Status.Counts[models.StatusLocal])
	}
	if len(ov.Status.Relays) != 1 {
		t.Errorf("relays = %v, want one entry", ov.Status.Relays)
	}
}

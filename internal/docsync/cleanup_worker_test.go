package docsync_test

import (
	"context"
	"errors"
	"slices"
	"strconv"
	"testing"

	"docsync/internal/cache"
	"docsync/internal/database"
	"docsync/internal/docsync"
	"docsync/internal/testutil"
)

func seedContent(t *testing.T, db *database.SQLiteDatabase, externalID string, syncTimestamp int64) *docsync.ContentRecord {
	t.Helper()
	rec := &docsync.ContentRecord{
		ExternalID:       externalID,
		Locale:           "en",
		Title:            externalID,
		RelativePathname: externalID + ".md",
		SourceHash:       "h-" + externalID,
		SyncTimestamp:    syncTimestamp,
	}
	if err := db.UpsertContent(context.Background(), rec); err != nil {
		t.Fatalf("UpsertContent() error = %v", err)
	}
	return rec
}

func seedRedirect(t *testing.T, db *database.SQLiteDatabase, source string, syncTimestamp int64) {
	t.Helper()
	rec := &docsync.RedirectRecord{SourcePath: source, TargetPath: "/target", Locale: "en", SyncTimestamp: syncTimestamp}
	if err := db.UpsertRedirect(context.Background(), rec); err != nil {
		t.Fatalf("UpsertRedirect() error = %v", err)
	}
}

func TestCleanupWorker_Delete(t *testing.T) {
	db := testutil.NewTestDatabase(t, testutil.FixedClock())
	inv := cache.NewMemory()
	ctx := context.Background()
	const passStart = 1000

	stale := seedContent(t, db, "stale", passStart-1)
	seedContent(t, db, "boundary", passStart)
	seedContent(t, db, "fresh", passStart+5)
	seedRedirect(t, db, "/old-rule", passStart-1)
	seedRedirect(t, db, "/new-rule", passStart)

	w := docsync.NewCleanupWorker(db, db, db, inv, docsync.CleanupDelete, docsync.NewNopLogger())
	res := w.Process(ctx, passStart)
	if res.Outcome != docsync.OutcomeSuccess || res.Processed != 1 {
		t.Fatalf("Process() = %+v, want success with 1 processed", res)
	}

	if rec, _ := db.FindContent(ctx, "stale", "en"); rec != nil {
		t.Error("stale record still present")
	}
	for _, id := range []string{"boundary", "fresh"} {
		if rec, _ := db.FindContent(ctx, id, "en"); rec == nil {
			t.Errorf("record %s removed, want kept", id)
		}
	}

	rules, err := db.ListRedirects(ctx, "")
	if err != nil {
		t.Fatalf("ListRedirects() error = %v", err)
	}
	if len(rules) != 1 || rules[0].SourcePath != "/new-rule" {
		t.Errorf("redirects after cleanup = %+v, want only /new-rule", rules)
	}

	if !slices.Equal(inv.Tags(), stale.CacheTags()) {
		t.Errorf("invalidated tags = %v, want %v", inv.Tags(), stale.CacheTags())
	}

	v, ok, err := db.GetState(ctx, docsync.StateLastCleanupTimestamp)
	if err != nil || !ok || v != strconv.Itoa(passStart) {
		t.Errorf("last cleanup timestamp = %q, %v, %v; want %d", v, ok, err, passStart)
	}
}

func TestCleanupWorker_Unpublish(t *testing.T) {
	db := testutil.NewTestDatabase(t, testutil.FixedClock())
	inv := cache.NewMemory()
	ctx := context.Background()
	const passStart = 1000

	seedContent(t, db, "stale", passStart-1)

	w := docsync.NewCleanupWorker(db, db, db, inv, docsync.CleanupUnpublish, docsync.NewNopLogger())
	if res := w.Process(ctx, passStart); res.Outcome != docsync.OutcomeSuccess || res.Processed != 1 {
		t.Fatalf("Process() = %+v, want success with 1 processed", res)
	}

	rec, err := db.FindContent(ctx, "stale", "en")
	if err != nil || rec == nil {
		t.Fatalf("FindContent() = %v, %v; want the unpublished record", rec, err)
	}
	if rec.Published {
		t.Error("stale record still published")
	}

	// A second pass leaves already unpublished records alone.
	inv.Reset()
	if res := w.Process(ctx, passStart+10); res.Processed != 0 {
		t.Errorf("second Process() processed %d, want 0", res.Processed)
	}
	if len(inv.Calls()) != 0 {
		t.Errorf("second pass invalidated %v", inv.Calls())
	}
}

func TestCleanupWorker_NothingStale(t *testing.T) {
	db := testutil.NewTestDatabase(t, testutil.FixedClock())
	inv := cache.NewMemory()
	seedContent(t, db, "fresh", 2000)

	w := docsync.NewCleanupWorker(db, db, db, inv, "", docsync.NewNopLogger())
	res := w.Process(context.Background(), 1000)
	if res.Outcome != docsync.OutcomeSuccess || res.Processed != 0 {
		t.Errorf("Process() = %+v, want success with nothing processed", res)
	}
	if len(inv.Calls()) != 0 {
		t.Errorf("InvalidateTags called %d times, want 0", len(inv.Calls()))
	}
}

func TestCleanupWorker_ClosedDatabaseSuspends(t *testing.T) {
	db := testutil.NewTestDatabase(t, testutil.FixedClock())
	w := docsync.NewCleanupWorker(db, db, db, cache.Nop{}, docsync.CleanupDelete, docsync.NewNopLogger())
	db.Close()

	res := w.Process(context.Background(), 1000)
	if res.Outcome != docsync.OutcomeSuspend || !errors.Is(res.Err, docsync.ErrStorageUnavailable) {
		t.Errorf("Process() = %+v, want suspend on storage failure", res)
	}
}

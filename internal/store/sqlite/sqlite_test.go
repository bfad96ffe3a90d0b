package sqlite

import (
	"regexp"
	"testing"
	"time"

	"github.com/ktnl/ktnl/internal/store"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(":memory:", "ktnl.test", "https://ktnl.test")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

var referenceShape = regexp.MustCompile(`^[a-z0-9]{16}$`)

func TestCreateFeedProducesReferenceAndSentinelEntry(t *testing.T) {
	db := openTestDB(t)

	reference, err := db.CreateFeed("My Newsletter", "")
	if err != nil {
		t.Fatalf("CreateFeed: %v", err)
	}

	if !referenceShape.MatchString(reference) {
		t.Errorf("reference %q does not match expected shape", reference)
	}

	exists, err := db.FeedExists(reference)
	if err != nil {
		t.Fatalf("FeedExists: %v", err)
	}
	if !exists {
		t.Fatal("feed should exist immediately after creation")
	}

	title, err := db.GetTitle(reference)
	if err != nil {
		t.Fatalf("GetTitle: %v", err)
	}
	if title != "My Newsletter" {
		t.Errorf("title = %q", title)
	}

	entries, err := db.FindEntriesByReference(reference)
	if err != nil {
		t.Fatalf("FindEntriesByReference: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("entries = %d, want 1 sentinel entry", len(entries))
	}
}

func TestCreateFeedWithSuppliedReferenceIsIdempotent(t *testing.T) {
	db := openTestDB(t)

	first, err := db.CreateFeed("Newsletter", "myreference000a")
	if err != nil {
		t.Fatalf("CreateFeed: %v", err)
	}
	if first != "myreference000a" {
		t.Fatalf("reference = %q, want the supplied one", first)
	}

	second, err := db.CreateFeed("Newsletter", "myreference000a")
	if err != nil {
		t.Fatalf("CreateFeed (retry): %v", err)
	}
	if second != first {
		t.Fatalf("retry returned %q, want %q", second, first)
	}

	entries, err := db.FindEntriesByReference(first)
	if err != nil {
		t.Fatalf("FindEntriesByReference: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("entries = %d after retried creation, want exactly 1 (no duplicate sentinel)", len(entries))
	}
}

func TestSaveEntryUnknownFeedRejected(t *testing.T) {
	db := openTestDB(t)

	err := db.SaveEntry("doesnotexist000", "title", "author", "content", time.Now().UTC())
	if err != store.ErrNotFound {
		t.Fatalf("err = %v, want store.ErrNotFound", err)
	}
}

func TestSaveEntryRoundTripsCreatedAt(t *testing.T) {
	db := openTestDB(t)

	reference, err := db.CreateFeed("Feed", "")
	if err != nil {
		t.Fatalf("CreateFeed: %v", err)
	}

	want := time.Date(2020, 5, 17, 12, 30, 0, 0, time.UTC)
	if err := db.SaveEntry(reference, "New entry", "Author", "content", want); err != nil {
		t.Fatalf("SaveEntry: %v", err)
	}

	entries, err := db.FindEntriesByReference(reference)
	if err != nil {
		t.Fatalf("FindEntriesByReference: %v", err)
	}

	var found bool
	for _, e := range entries {
		if e.Title == "New entry" {
			found = true
			if !e.CreatedAt.Equal(want) {
				t.Errorf("created_at = %v, want %v", e.CreatedAt, want)
			}
		}
	}
	if !found {
		t.Fatal("new entry not found")
	}
}

func TestFindEntriesByReferenceOrdersNewestFirst(t *testing.T) {
	db := openTestDB(t)

	reference, err := db.CreateFeed("Feed", "")
	if err != nil {
		t.Fatalf("CreateFeed: %v", err)
	}

	older := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	newer := time.Date(2021, 1, 1, 0, 0, 0, 0, time.UTC)

	if err := db.SaveEntry(reference, "Older", "A", "c", older); err != nil {
		t.Fatalf("SaveEntry: %v", err)
	}
	if err := db.SaveEntry(reference, "Newer", "A", "c", newer); err != nil {
		t.Fatalf("SaveEntry: %v", err)
	}

	entries, err := db.FindEntriesByReference(reference)
	if err != nil {
		t.Fatalf("FindEntriesByReference: %v", err)
	}

	// entries[0] is the sentinel welcome entry, stamped with the current
	// time by CreateFeed and so newer than both saved entries.
	if len(entries) != 3 {
		t.Fatalf("entries = %d, want 3 (sentinel + 2)", len(entries))
	}
	if entries[1].Title != "Newer" || entries[2].Title != "Older" {
		t.Errorf("entries[1..2] = %q, %q, want newest entry first", entries[1].Title, entries[2].Title)
	}
}

func TestGetTitleUnknownFeed(t *testing.T) {
	db := openTestDB(t)

	_, err := db.GetTitle("doesnotexist000")
	if err != store.ErrNotFound {
		t.Fatalf("err = %v, want store.ErrNotFound", err)
	}
}

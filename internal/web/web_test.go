package web

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/ktnl/ktnl/internal/store"
)

type fakeStore struct {
	store.Store
	feeds   map[string]string
	entries map[string][]store.Entry
}

func newFakeStore() *fakeStore {
	return &fakeStore{feeds: map[string]string{}, entries: map[string][]store.Entry{}}
}

func (f *fakeStore) GetTitle(reference string) (string, error) {
	title, ok := f.feeds[reference]
	if !ok {
		return "", store.ErrNotFound
	}
	return title, nil
}

func (f *fakeStore) FindEntriesByReference(reference string) ([]store.Entry, error) {
	return f.entries[reference], nil
}

func (f *fakeStore) CreateFeed(title, reference string) (string, error) {
	if reference == "" {
		reference = "abcdef0123456789"
	}
	f.feeds[reference] = title
	f.entries[reference] = []store.Entry{{ID: 1, Reference: reference, Title: "Welcome", Author: "Kill The Newsletter", Content: "hi", CreatedAt: time.Now().UTC()}}
	return reference, nil
}

func discardLog() logrus.FieldLogger {
	l := logrus.New()
	l.SetOutput(discardSink{})
	return l
}

type discardSink struct{}

func (discardSink) Write(p []byte) (int, error) { return len(p), nil }

func TestServeFeedNotFound(t *testing.T) {
	w := &Web{Store: newFakeStore(), EmailDomain: "ktnl.test", WebURL: "https://ktnl.test", Log: discardLog()}
	srv := httptest.NewServer(w.NewServer())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/feeds/doesnotexist.xml")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("status = %d, want 404", resp.StatusCode)
	}
}

func TestServeFeedRendersAtom(t *testing.T) {
	fs := newFakeStore()
	reference, _ := fs.CreateFeed("My Feed", "")

	w := &Web{Store: fs, EmailDomain: "ktnl.test", WebURL: "https://ktnl.test", Log: discardLog()}
	srv := httptest.NewServer(w.NewServer())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/feeds/" + reference + ".xml")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); !strings.Contains(ct, "atom+xml") {
		t.Errorf("content-type = %q", ct)
	}
}

func TestCreateFeedRequiresTitle(t *testing.T) {
	w := &Web{Store: newFakeStore(), EmailDomain: "ktnl.test", WebURL: "https://ktnl.test", Log: discardLog()}
	srv := httptest.NewServer(w.NewServer())
	defer srv.Close()

	resp, err := http.PostForm(srv.URL+"/feeds", url.Values{})
	if err != nil {
		t.Fatalf("POST: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", resp.StatusCode)
	}
}

func TestCreateFeedSucceeds(t *testing.T) {
	w := &Web{Store: newFakeStore(), EmailDomain: "ktnl.test", WebURL: "https://ktnl.test", Log: discardLog()}
	srv := httptest.NewServer(w.NewServer())
	defer srv.Close()

	resp, err := http.PostForm(srv.URL+"/feeds", url.Values{"title": {"My Newsletter"}})
	if err != nil {
		t.Fatalf("POST: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); !strings.Contains(ct, "text/html") {
		t.Errorf("content-type = %q", ct)
	}
}

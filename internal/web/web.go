// Package web is the HTTP collaborator: it serves each feed's Atom
// document and accepts feed-creation form submissions. Routing follows
// wansing/ulist/web/web.go's use of julienschmidt/httprouter.
package web

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/julienschmidt/httprouter"
	"github.com/sirupsen/logrus"

	"github.com/ktnl/ktnl/internal/atom"
	"github.com/ktnl/ktnl/internal/feedtemplate"
	"github.com/ktnl/ktnl/internal/store"
)

// Web holds everything an HTTP handler needs: the shared Feed Store and the
// process configuration it renders links against.
type Web struct {
	Store       store.Store
	EmailDomain string
	WebURL      string
	Log         logrus.FieldLogger
}

// NewServer builds the *http.Server-ready handler for the two routes this
// collaborator exposes.
func (web *Web) NewServer() http.Handler {
	router := httprouter.New()
	router.GET("/feeds/:slug", web.serveFeed)
	router.POST("/feeds", web.createFeed)
	return router
}

func (web *Web) serveFeed(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	reference := strings.TrimSuffix(ps.ByName("slug"), ".xml")

	title, err := web.Store.GetTitle(reference)
	if err == store.ErrNotFound {
		http.NotFound(w, r)
		return
	}
	if err != nil {
		web.Log.WithError(err).Error("storage failure serving feed")
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	entries, err := web.Store.FindEntriesByReference(reference)
	if err != nil {
		web.Log.WithError(err).Error("storage failure listing entries")
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	if len(entries) == 0 {
		http.NotFound(w, r)
		return
	}

	feedURL := fmt.Sprintf("%s/feeds/%s.xml", web.WebURL, reference)
	body, err := atom.Render(reference, title, feedURL, entries)
	if err != nil {
		web.Log.WithError(err).Error("failed to render atom feed")
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/atom+xml; charset=utf-8")
	w.Write(body) //nolint:errcheck
}

func (web *Web) createFeed(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "bad form", http.StatusBadRequest)
		return
	}

	title := r.FormValue("title")
	if title == "" {
		http.Error(w, "title is required", http.StatusBadRequest)
		return
	}

	// A caller-supplied reference (e.g. a client retrying a request whose
	// response it never saw) makes this call idempotent instead of minting
	// a duplicate feed.
	reference, err := web.Store.CreateFeed(title, r.FormValue("reference"))
	if err != nil {
		web.Log.WithError(err).Error("storage failure creating feed")
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	page, err := feedtemplate.RenderCreatedPage(feedtemplate.SentinelData{
		EmailDomain: web.EmailDomain,
		Reference:   reference,
		Title:       title,
		WebURL:      web.WebURL,
	})
	if err != nil {
		web.Log.WithError(err).Error("failed to render confirmation page")
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write([]byte(page)) //nolint:errcheck
}

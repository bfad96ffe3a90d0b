// Package atom renders a Feed's entries as an Atom 1.0 document. No
// third-party Atom/feed-generation library appears anywhere in the
// retrieved pack, so this is hand-rolled on top of encoding/xml, the way a
// minimal Go web service typically would.
package atom

import (
	"encoding/xml"
	"strconv"
	"time"

	"github.com/ktnl/ktnl/internal/store"
)

type feed struct {
	XMLName xml.Name `xml:"http://www.w3.org/2005/Atom feed"`
	Title   string   `xml:"title"`
	ID      string   `xml:"id"`
	Updated string   `xml:"updated"`
	Link    link     `xml:"link"`
	Entries []entry  `xml:"entry"`
}

type link struct {
	Href string `xml:"href,attr"`
	Rel  string `xml:"rel,attr,omitempty"`
}

type entry struct {
	Title     string `xml:"title"`
	ID        string `xml:"id"`
	Published string `xml:"published"`
	Updated   string `xml:"updated"`
	Author    author `xml:"author"`
	Content   content `xml:"content"`
}

type author struct {
	Name string `xml:"name"`
}

type content struct {
	Type string `xml:",attr"`
	Body string `xml:",chardata"`
}

// Render builds the Atom XML document for reference, title and its entries
// (newest first, as FindEntriesByReference already orders them). feedURL is
// the absolute URL of this feed's own Atom document.
func Render(reference, title, feedURL string, entries []store.Entry) ([]byte, error) {
	f := feed{
		Title: title,
		ID:    feedURL,
		Link:  link{Href: feedURL, Rel: "self"},
	}

	if len(entries) > 0 {
		f.Updated = entries[0].CreatedAt.Format(time.RFC3339)
	} else {
		f.Updated = time.Now().UTC().Format(time.RFC3339)
	}

	for _, e := range entries {
		published := e.CreatedAt.Format(time.RFC3339)
		f.Entries = append(f.Entries, entry{
			Title:     e.Title,
			ID:        feedURL + "#" + strconv.FormatInt(e.ID, 10),
			Published: published,
			Updated:   published,
			Author:    author{Name: e.Author},
			Content:   content{Type: "html", Body: e.Content},
		})
	}

	out, err := xml.MarshalIndent(f, "", "  ")
	if err != nil {
		return nil, err
	}

	return append([]byte(xml.Header), out...), nil
}

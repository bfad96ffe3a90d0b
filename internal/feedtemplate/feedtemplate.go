// Package feedtemplate renders the HTML bodies handed out at feed creation:
// the sentinel welcome entry stored in the feed itself, and the
// confirmation page shown to whoever just created the feed.
//
// Mirrors the original implementation's askama templates (SentinelTemplate,
// FeedCreatedTemplate): same two logical documents, rendered here with
// html/template since no ahead-of-time template engine appears anywhere in
// the retrieved pack.
package feedtemplate

import (
	"bytes"
	"html/template"
)

// SentinelData fills the welcome-entry template.
type SentinelData struct {
	EmailDomain string
	Reference   string
	Title       string
	WebURL      string
}

// CreatedData fills the feed-created confirmation page, embedding the
// rendered sentinel entry.
type CreatedData struct {
	SentinelData
	SentinelHTML template.HTML
}

var sentinelTmpl = template.Must(template.New("sentinel").Parse(`
<p>Your inbox <strong>{{.Title}}</strong> has been created.</p>
<p>Subscribe to this feed to receive its mail: <code>{{.WebURL}}/feeds/{{.Reference}}.xml</code></p>
<p>Send email to <code>{{.Reference}}@{{.EmailDomain}}</code> and it'll show up as an entry here.</p>
`))

var createdTmpl = template.Must(template.New("created").Parse(`
<h1>{{.Title}} inbox created!</h1>
<dl>
  <dt>Email</dt><dd>{{.Reference}}@{{.EmailDomain}}</dd>
  <dt>Feed</dt><dd><a href="{{.WebURL}}/feeds/{{.Reference}}.xml">{{.WebURL}}/feeds/{{.Reference}}.xml</a></dd>
</dl>
{{.SentinelHTML}}
`))

// RenderSentinel renders the sentinel entry's HTML content, stored verbatim
// as an Entry's content at feed creation.
func RenderSentinel(d SentinelData) (string, error) {
	var buf bytes.Buffer
	if err := sentinelTmpl.Execute(&buf, d); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// RenderCreatedPage renders the HTML page shown to the feed's creator.
func RenderCreatedPage(d SentinelData) (string, error) {
	sentinelHTML, err := RenderSentinel(d)
	if err != nil {
		return "", err
	}

	var buf bytes.Buffer
	err = createdTmpl.Execute(&buf, CreatedData{
		SentinelData: d,
		SentinelHTML: template.HTML(sentinelHTML), //nolint:gosec // our own rendered content
	})
	if err != nil {
		return "", err
	}
	return buf.String(), nil
}

// SentinelEntryTitle is the predictable title pattern spec.md §9 mandates.
func SentinelEntryTitle(feedTitle string) string {
	return feedTitle + " inbox created!"
}

// SentinelAuthor is the fixed author name of the sentinel entry.
const SentinelAuthor = "Kill The Newsletter"

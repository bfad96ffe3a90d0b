// Package entry turns a successful SMTP Envelope into a persisted Entry,
// per spec.md §4.4: address extraction, domain gating, and the Feed Store
// write. The address-extraction regex is compiled once at package init and
// reused for both the envelope rcpt and the parsed To header, per the
// teacher's and spec.md Design Note's "compile once, not per message" rule.
package entry

import (
	"regexp"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/ktnl/ktnl/internal/mail"
	"github.com/ktnl/ktnl/internal/store"
)

// emailAddressRe is the common, fixed "email regex": local-part@domain.
var emailAddressRe = regexp.MustCompile(`[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}`)

const invalidAddress = "invalid@email.address"

// Result reports what happened to an Envelope after projection.
type Result int

const (
	// ResultDiscarded: no Entry was persisted, no error occurred.
	ResultDiscarded Result = iota
	// ResultSaved: an Entry was persisted.
	ResultSaved
	// ResultUnknownFeed: well-formed message, but its Feed doesn't exist.
	ResultUnknownFeed
)

// Envelope mirrors the transient SMTP Envelope of spec.md §3.
type Envelope struct {
	Rcpt string
	Body string
}

// extractAddress returns the first email address found in s, or
// invalidAddress if none is found.
func extractAddress(s string) string {
	if m := emailAddressRe.FindString(s); m != "" {
		return m
	}
	return invalidAddress
}

// sanitizeAuthor drops everything from the first "<" onward and trims
// whitespace, so the stored author never contains a raw address.
func sanitizeAuthor(from string) string {
	if i := strings.IndexByte(from, '<'); i >= 0 {
		from = from[:i]
	}
	return strings.TrimSpace(from)
}

// localPart returns the substring of addr before its first "@".
func localPart(addr string) string {
	if i := strings.IndexByte(addr, '@'); i >= 0 {
		return addr[:i]
	}
	return addr
}

// Project validates env against emailDomain, parses its body, and persists
// the resulting Entry via st. It never returns an error for conditions
// spec.md §7 classifies as non-fatal (ParseFailure, DomainMismatch,
// UnknownFeed) — those are logged here at warn level and reported via the
// returned Result; err is reserved for StorageFailure, which the caller
// propagates as a session-level error.
func Project(env Envelope, emailDomain string, st store.Store, log logrus.FieldLogger) (Result, error) {
	if env.Rcpt == "" && env.Body == "" {
		return ResultDiscarded, nil
	}

	rcptAddr := extractAddress(env.Rcpt)

	parsed, err := mail.Parse([]byte(env.Body))
	if err != nil {
		log.WithError(err).Warn("discarding envelope: malformed mail")
		return ResultDiscarded, nil
	}

	toAddr := extractAddress(parsed.To)

	if !strings.HasSuffix(rcptAddr, emailDomain) && !strings.HasSuffix(toAddr, emailDomain) {
		log.WithFields(logrus.Fields{
			"rcpt_addr": rcptAddr,
			"to_addr":   toAddr,
		}).Warn("discarding envelope: domain mismatch")
		return ResultDiscarded, nil
	}

	reference := localPart(toAddr)
	author := sanitizeAuthor(parsed.From)

	createdAt, err := time.ParseInLocation(store.TimeLayout, parsed.Date, time.UTC)
	if err != nil {
		createdAt = time.Now().UTC()
	}

	err = st.SaveEntry(reference, parsed.Subject, author, parsed.Body, createdAt)
	if err == store.ErrNotFound {
		log.WithField("reference", reference).Warn("discarding envelope: unknown feed")
		return ResultUnknownFeed, nil
	}
	if err != nil {
		return ResultDiscarded, err
	}

	return ResultSaved, nil
}

// Package mail converts a raw DATA payload (RFC-5322, possibly multipart)
// into a ParsedMessage: chosen headers, a selected body, and a normalized
// date. Headers are read with net/mail and multipart bodies are walked with
// mime/multipart, the same stdlib-first approach wansing/ulist/mailutil
// takes for header and address parsing.
package mail

import (
	"bytes"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/mail"
	"strings"
	"time"

	"golang.org/x/text/encoding/htmlindex"
)

const (
	defaultSubject = "No subject"
	defaultTo      = "unknown@recipient.mail"
	defaultFrom    = "unknown@sender.mail"
)

// ParsedMessage is the structured result of parsing an Envelope's body.
type ParsedMessage struct {
	To      string
	From    string
	Subject string
	Date    string // "YYYY-MM-DD HH:MM:SS" UTC
	Body    string
}

// String renders a short, log-friendly summary, truncating the body preview
// to 50 bytes the way the original ParsedEmail::to_string did.
func (p ParsedMessage) String() string {
	body := p.Body
	if len(body) > 50 {
		body = body[:50]
	}
	return fmt.Sprintf("ParsedMessage{to: %s, subject: %s, date: %s, body[..50]: %s}", p.To, p.Subject, p.Date, body)
}

// mimeWordDecoder never errors: unrecognized charsets pass through as raw
// bytes, matching wansing/ulist/mailutil's TryMimeDecoder.
var mimeWordDecoder = &mime.WordDecoder{
	CharsetReader: func(charset string, input io.Reader) (io.Reader, error) {
		if enc, err := htmlindex.Get(charset); err == nil {
			return enc.NewDecoder().Reader(input), nil
		}
		return input, nil
	},
}

func decodeHeader(s string) string {
	decoded, err := mimeWordDecoder.DecodeHeader(s)
	if err != nil {
		return s
	}
	return decoded
}

// Parse converts a raw DATA buffer into a ParsedMessage. It returns an error
// (ParseFailure in spec.md §7 terms) for payloads net/mail cannot parse as a
// message at all, and for a multipart body whose sections cannot be read.
func Parse(raw []byte) (ParsedMessage, error) {
	msg, err := mail.ReadMessage(bytes.NewReader(raw))
	if err != nil {
		return ParsedMessage{}, fmt.Errorf("mail: %w", err)
	}

	header := msg.Header

	subject := defaultSubject
	if v := header.Get("Subject"); v != "" {
		subject = decodeHeader(v)
	}

	to := defaultTo
	if v := header.Get("To"); v != "" {
		to = decodeHeader(v)
	}

	from := defaultFrom
	if v := header.Get("From"); v != "" {
		from = decodeHeader(v)
	}

	body, err := selectBody(header.Get("Content-Type"), msg.Body)
	if err != nil {
		return ParsedMessage{}, fmt.Errorf("mail: %w", err)
	}

	date := normalizeDate(header.Get("Date"))

	return ParsedMessage{
		To:      to,
		From:    from,
		Subject: subject,
		Date:    date,
		Body:    body,
	}, nil
}

// selectBody implements spec.md §4.3's body-selection rule:
//  1. no subparts -> the single-part body
//  2. otherwise -> concatenate every text/html subpart's body
//  3. if none matched -> the first subpart's body
func selectBody(contentType string, body io.Reader) (string, error) {
	mediaType, params, err := mime.ParseMediaType(contentType)
	if err != nil || !strings.HasPrefix(mediaType, "multipart/") {
		raw, err := io.ReadAll(body)
		if err != nil {
			return "", err
		}
		return string(raw), nil
	}

	boundary := params["boundary"]
	if boundary == "" {
		raw, err := io.ReadAll(body)
		if err != nil {
			return "", err
		}
		return string(raw), nil
	}

	reader := multipart.NewReader(body, boundary)

	var htmlParts []string
	var firstPart string
	haveFirst := false

	for {
		part, err := reader.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", err
		}

		content, err := io.ReadAll(part)
		part.Close()
		if err != nil {
			return "", err
		}

		if !haveFirst {
			firstPart = string(content)
			haveFirst = true
		}

		partType := part.Header.Get("Content-Type")
		mediaType, _, _ := mime.ParseMediaType(partType)
		if strings.HasPrefix(mediaType, "text/html") {
			htmlParts = append(htmlParts, string(content))
		}
	}

	if len(htmlParts) > 0 {
		return strings.Join(htmlParts, ""), nil
	}
	return firstPart, nil
}

// normalizeDate parses the Date header, falling back to the current UTC
// time when parsing fails or yields the zero Unix instant, and renders the
// result as "YYYY-MM-DD HH:MM:SS".
func normalizeDate(raw string) string {
	t, err := mail.ParseDate(raw)
	if err != nil || t.Unix() == 0 {
		t = time.Now().UTC()
	}
	return t.UTC().Format("2006-01-02 15:04:05")
}

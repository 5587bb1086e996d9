package ingest

import (
	"bytes"
	"errors"
	"fmt"
	"html"
	"io"
	"strings"
	"time"

	_ "github.com/emersion/go-message/charset"
	"github.com/emersion/go-message/mail"
	"github.com/microcosm-cc/bluemonday"

	"github.com/spec-kit/helpdesk-service/internal/analysis"
	"github.com/spec-kit/helpdesk-service/internal/domain"
)

const maxBodyBytes = 1 << 20

// ParsedMessage is the subset of an email the engine uses.
type ParsedMessage struct {
	MessageID   string
	Subject     string
	SenderEmail string
	SenderName  string
	Date        time.Time
	Body        string
}

var htmlPolicy = bluemonday.StrictPolicy()

// Parse decodes a raw RFC 5322 message. Plain text parts win over HTML; HTML
// is stripped to text.
func Parse(data []byte) (*ParsedMessage, error) {
	reader, err := mail.CreateReader(bytes.NewReader(data))
	if err != nil && reader == nil {
		return nil, fmt.Errorf("read message: %w", err)
	}
	defer reader.Close()

	msg := &ParsedMessage{}
	header := reader.Header
	if id, err := header.MessageID(); err == nil {
		msg.MessageID = strings.TrimSpace(id)
	}
	if subject, err := header.Subject(); err == nil {
		msg.Subject = strings.TrimSpace(subject)
	} else {
		msg.Subject = strings.TrimSpace(header.Get("Subject"))
	}
	if from, err := header.AddressList("From"); err == nil && len(from) > 0 {
		msg.SenderEmail = from[0].Address
		msg.SenderName = from[0].Name
	} else {
		msg.SenderEmail = strings.TrimSpace(header.Get("From"))
	}
	if date, err := header.Date(); err == nil {
		msg.Date = date
	}

	var plain, htmlBody string
	for {
		part, err := reader.NextPart()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			if plain != "" || htmlBody != "" {
				break
			}
			return nil, fmt.Errorf("read part: %w", err)
		}
		inline, ok := part.Header.(*mail.InlineHeader)
		if !ok {
			continue
		}
		contentType, _, _ := inline.ContentType()
		body, err := io.ReadAll(io.LimitReader(part.Body, maxBodyBytes))
		if err != nil {
			return nil, fmt.Errorf("read body: %w", err)
		}
		switch {
		case plain == "" && (contentType == "text/plain" || contentType == ""):
			plain = strings.TrimSpace(string(body))
		case htmlBody == "" && contentType == "text/html":
			htmlBody = htmlToText(string(body))
		}
	}

	msg.Body = plain
	if msg.Body == "" {
		msg.Body = htmlBody
	}
	return msg, nil
}

func htmlToText(s string) string {
	stripped := html.UnescapeString(htmlPolicy.Sanitize(s))
	return strings.Join(strings.Fields(stripped), " ")
}

// BuildCandidate turns a parsed message into a scored candidate.
func BuildCandidate(raw RawMessage, msg *ParsedMessage, analyzer analysis.Analyzer) domain.Candidate {
	externalID := msg.MessageID
	if externalID == "" {
		externalID = raw.RemoteID
	}
	received := msg.Date
	if received.IsZero() {
		received = raw.ReceivedAt
	}
	score, label := analyzer.ScoreSentiment(msg.Body)
	return domain.Candidate{
		ExternalID:     externalID,
		Subject:        msg.Subject,
		SenderEmail:    msg.SenderEmail,
		SenderName:     msg.SenderName,
		Body:           msg.Body,
		ReceivedAt:     received,
		SentimentScore: score,
		SentimentLabel: label,
		Urgency:        analyzer.ScoreUrgency(msg.Subject, msg.Body),
	}
}

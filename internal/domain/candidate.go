package domain

import (
	"errors"
	"strings"
	"time"
)

// ErrMissingExternalID is returned when a candidate has no dedup key.
var ErrMissingExternalID = errors.New("candidate external id required")

// Candidate is a normalized inbound message awaiting ticket creation.
type Candidate struct {
	ExternalID     string
	Subject        string
	SenderEmail    string
	SenderName     string
	Body           string
	ReceivedAt     time.Time
	SentimentScore float64
	SentimentLabel string
	Urgency        Urgency
}

// NewCandidate validates and normalizes a candidate record.
func NewCandidate(c Candidate) (Candidate, error) {
	c.ExternalID = strings.TrimSpace(c.ExternalID)
	if c.ExternalID == "" {
		return Candidate{}, ErrMissingExternalID
	}
	c.Subject = strings.TrimSpace(c.Subject)
	if c.Subject == "" {
		c.Subject = "No Subject"
	}
	if strings.TrimSpace(c.Body) == "" {
		c.Body = "No content"
	}
	c.SenderEmail = strings.TrimSpace(c.SenderEmail)
	c.SenderName = strings.TrimSpace(c.SenderName)
	if c.SenderName == "" {
		c.SenderName = c.SenderEmail
	}
	switch {
	case c.SentimentScore > 1:
		c.SentimentScore = 1
	case c.SentimentScore < -1:
		c.SentimentScore = -1
	}
	if c.SentimentLabel == "" {
		c.SentimentLabel = "neutral"
	}
	if !c.Urgency.Valid() {
		c.Urgency = UrgencyNormal
	}
	if c.ReceivedAt.IsZero() {
		c.ReceivedAt = time.Now()
	}
	return c, nil
}

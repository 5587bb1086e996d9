package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewCandidateRequiresExternalID(t *testing.T) {
	_, err := NewCandidate(Candidate{ExternalID: "   ", Subject: "hi"})
	require.ErrorIs(t, err, ErrMissingExternalID)
}

func TestNewCandidateNormalizes(t *testing.T) {
	c, err := NewCandidate(Candidate{
		ExternalID:     " <m1@mail> ",
		SenderEmail:    "user@example.com",
		SentimentScore: -4,
		Urgency:        "whatever",
	})
	require.NoError(t, err)
	assert.Equal(t, "<m1@mail>", c.ExternalID)
	assert.Equal(t, "No Subject", c.Subject)
	assert.Equal(t, "No content", c.Body)
	assert.Equal(t, "user@example.com", c.SenderName)
	assert.Equal(t, -1.0, c.SentimentScore)
	assert.Equal(t, "neutral", c.SentimentLabel)
	assert.Equal(t, UrgencyNormal, c.Urgency)
	assert.False(t, c.ReceivedAt.IsZero())
}

func TestUrgencyPriority(t *testing.T) {
	assert.Equal(t, TicketPriorityUrgent, UrgencyUrgent.Priority())
	assert.Equal(t, TicketPriorityHigh, UrgencyHigh.Priority())
	assert.Equal(t, TicketPriorityMedium, UrgencyNormal.Priority())
}

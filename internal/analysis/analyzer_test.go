package analysis

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/spec-kit/helpdesk-service/internal/domain"
)

func TestScoreUrgency(t *testing.T) {
	a := NewKeywordAnalyzer()
	tests := []struct {
		name    string
		subject string
		body    string
		want    domain.Urgency
	}{
		{"urgent keyword in subject", "URGENT: printer", "please help", domain.UrgencyUrgent},
		{"urgent keyword in body", "printer", "the server is down", domain.UrgencyUrgent},
		{"three high keywords", "Important issue", "this problem needs attention", domain.UrgencyHigh},
		{"two high keywords stay normal", "Important", "small issue", domain.UrgencyNormal},
		{"plain request", "Question", "how do I reset my mailbox rules?", domain.UrgencyNormal},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, a.ScoreUrgency(tt.subject, tt.body))
		})
	}
}

func TestScoreSentiment(t *testing.T) {
	a := NewKeywordAnalyzer()

	score, label := a.ScoreSentiment("bad")
	assert.Zero(t, score)
	assert.Equal(t, LabelNeutral, label)

	score, label = a.ScoreSentiment("Thanks, the new laptop is great and working perfectly")
	assert.Greater(t, score, 0.1)
	assert.Equal(t, LabelPositive, label)

	score, label = a.ScoreSentiment("This is terrible, I am very frustrated with the awful VPN")
	assert.Less(t, score, -0.1)
	assert.GreaterOrEqual(t, score, -1.0)
	assert.Equal(t, LabelNegative, label)

	score, label = a.ScoreSentiment("The invoice number is 4411 for order 17 from March")
	assert.InDelta(t, 0, score, 0.1)
	assert.Equal(t, LabelNeutral, label)

	score, label = a.ScoreSentiment("The VPN is not good at all today")
	assert.Less(t, score, -0.1)
	assert.Equal(t, LabelNegative, label)
}

func TestLabelThresholds(t *testing.T) {
	assert.Equal(t, LabelNeutral, Label(0.1))
	assert.Equal(t, LabelPositive, Label(0.11))
	assert.Equal(t, LabelNeutral, Label(-0.1))
	assert.Equal(t, LabelNegative, Label(-0.11))
}

func TestInsights(t *testing.T) {
	a := NewKeywordAnalyzer()
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	got := a.Insights(InsightInput{
		Subject:        "Login failed",
		Body:           "The portal is slow and I cannot access my account",
		Status:         domain.TicketStatusOpen,
		CreatedAt:      now.Add(-25 * time.Hour),
		SentimentScore: -0.5,
		Now:            now,
	})
	assert.Equal(t, []string{
		InsightOpenOver24h,
		InsightFrustrated,
		InsightSecurity,
		InsightPerformance,
		InsightTechnicalFail,
	}, got)

	got = a.Insights(InsightInput{
		Subject:        "Thanks",
		Status:         domain.TicketStatusOpen,
		CreatedAt:      now.Add(-9 * time.Hour),
		SentimentScore: 0.6,
		Now:            now,
	})
	assert.Equal(t, []string{InsightOpenOver8h, InsightSatisfied}, got)

	got = a.Insights(InsightInput{Subject: "Hi", Status: domain.TicketStatusClosed, CreatedAt: now.Add(-48 * time.Hour), Now: now})
	assert.Empty(t, got)
}

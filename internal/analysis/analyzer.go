// Package analysis scores inbound messages for sentiment and urgency and
// derives short insight notes for staff.
package analysis

import (
	"strings"
	"time"

	"github.com/jonreiter/govader"

	"github.com/spec-kit/helpdesk-service/internal/domain"
)

// Sentiment labels.
const (
	LabelPositive = "positive"
	LabelNegative = "negative"
	LabelNeutral  = "neutral"
)

// Insight notes attached to tickets.
const (
	InsightOpenOver24h   = "Ticket has been open for more than 24 hours"
	InsightOpenOver8h    = "Ticket approaching 24-hour mark"
	InsightFrustrated    = "Customer appears frustrated"
	InsightSatisfied     = "Customer seems satisfied"
	InsightSecurity      = "Security-related issue detected"
	InsightPerformance   = "Performance issue identified"
	InsightTechnicalFail = "Technical error reported"
)

// InsightInput is what insight rules look at.
type InsightInput struct {
	Subject        string
	Body           string
	Status         domain.TicketStatus
	CreatedAt      time.Time
	SentimentScore float64
	Now            time.Time
}

// Analyzer is the pluggable scoring collaborator.
type Analyzer interface {
	ScoreSentiment(text string) (float64, string)
	ScoreUrgency(subject, body string) domain.Urgency
	Insights(in InsightInput) []string
}

var (
	urgentKeywords      = []string{"urgent", "emergency", "asap", "immediately", "critical", "broken", "down"}
	highKeywords        = []string{"important", "priority", "attention", "issue", "problem"}
	securityKeywords    = []string{"password", "login", "access"}
	performanceKeywords = []string{"slow", "performance", "lag"}
	errorKeywords       = []string{"error", "failed", "crash"}
)

// minSentimentLength is the shortest text that gets a non-neutral score.
const minSentimentLength = 10

// KeywordAnalyzer is the default Analyzer. Urgency and insights use keyword
// containment; sentiment is the VADER compound polarity.
type KeywordAnalyzer struct {
	vader *govader.SentimentIntensityAnalyzer
}

// NewKeywordAnalyzer loads the VADER lexicon once; reuse the result.
func NewKeywordAnalyzer() *KeywordAnalyzer {
	return &KeywordAnalyzer{vader: govader.NewSentimentIntensityAnalyzer()}
}

// ScoreSentiment returns a polarity in [-1,1] and its label.
func (a *KeywordAnalyzer) ScoreSentiment(text string) (float64, string) {
	text = strings.TrimSpace(text)
	if len(text) < minSentimentLength {
		return 0, LabelNeutral
	}
	score := clamp(a.vader.PolarityScores(text).Compound)
	return score, Label(score)
}

// Label maps a polarity score to its label.
func Label(score float64) string {
	switch {
	case score > 0.1:
		return LabelPositive
	case score < -0.1:
		return LabelNegative
	default:
		return LabelNeutral
	}
}

// ScoreUrgency applies the keyword rules: any urgent keyword wins, otherwise
// more than two high keywords.
func (a *KeywordAnalyzer) ScoreUrgency(subject, body string) domain.Urgency {
	text := strings.ToLower(subject + " " + body)
	if countContained(text, urgentKeywords) > 0 {
		return domain.UrgencyUrgent
	}
	if countContained(text, highKeywords) > 2 {
		return domain.UrgencyHigh
	}
	return domain.UrgencyNormal
}

// Insights derives notes from age, sentiment and content.
func (a *KeywordAnalyzer) Insights(in InsightInput) []string {
	insights := []string{}

	if in.Status == domain.TicketStatusOpen && !in.CreatedAt.IsZero() {
		now := in.Now
		if now.IsZero() {
			now = time.Now()
		}
		age := now.Sub(in.CreatedAt)
		switch {
		case age > 24*time.Hour:
			insights = append(insights, InsightOpenOver24h)
		case age > 8*time.Hour:
			insights = append(insights, InsightOpenOver8h)
		}
	}

	switch {
	case in.SentimentScore < -0.3:
		insights = append(insights, InsightFrustrated)
	case in.SentimentScore > 0.3:
		insights = append(insights, InsightSatisfied)
	}

	text := strings.ToLower(in.Subject + " " + in.Body)
	if countContained(text, securityKeywords) > 0 {
		insights = append(insights, InsightSecurity)
	}
	if countContained(text, performanceKeywords) > 0 {
		insights = append(insights, InsightPerformance)
	}
	if countContained(text, errorKeywords) > 0 {
		insights = append(insights, InsightTechnicalFail)
	}
	return insights
}

func countContained(text string, keywords []string) int {
	n := 0
	for _, keyword := range keywords {
		if strings.Contains(text, keyword) {
			n++
		}
	}
	return n
}

func clamp(v float64) float64 {
	switch {
	case v > 1:
		return 1
	case v < -1:
		return -1
	default:
		return v
	}
}

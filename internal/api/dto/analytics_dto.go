package dto

import (
	"time"

	"github.com/spec-kit/helpdesk-service/internal/domain"
)

// AnalyticsSummaryResponse is the dashboard payload.
type AnalyticsSummaryResponse struct {
	TotalTickets       int64                    `json:"total_tickets"`
	OpenTickets        int64                    `json:"open_tickets"`
	ClosedTickets      int64                    `json:"closed_tickets"`
	UnassignedOpen     int64                    `json:"unassigned_open"`
	AvgResolutionHours float64                  `json:"avg_resolution_hours"`
	AvgSentiment       float64                  `json:"avg_sentiment"`
	UrgencyCounts      map[domain.Urgency]int64 `json:"urgency_counts"`
	DailyVolume        []DailyVolume            `json:"daily_volume"`
	Workload           []StaffWorkload          `json:"workload"`
}

// DailyVolume is a point on the intake trend.
type DailyVolume struct {
	Day   time.Time `json:"day"`
	Count int64     `json:"count"`
}

// StaffWorkload summarises one staff member's tickets.
type StaffWorkload struct {
	Email              string   `json:"email"`
	Name               string   `json:"name"`
	Total              int64    `json:"total"`
	Closed             int64    `json:"closed"`
	AvgResolutionHours *float64 `json:"avg_resolution_hours"`
}

// NewAnalyticsSummaryResponse maps the overview.
func NewAnalyticsSummaryResponse(o *domain.AnalyticsOverview) AnalyticsSummaryResponse {
	resp := AnalyticsSummaryResponse{
		TotalTickets:       o.TotalTickets,
		OpenTickets:        o.OpenTickets,
		ClosedTickets:      o.ClosedTickets,
		UnassignedOpen:     o.UnassignedOpen,
		AvgResolutionHours: o.AvgResolutionHours,
		AvgSentiment:       o.AvgSentiment,
		UrgencyCounts:      o.UrgencyCounts,
		DailyVolume:        make([]DailyVolume, 0, len(o.DailyVolume)),
		Workload:           make([]StaffWorkload, 0, len(o.Workload)),
	}
	for _, p := range o.DailyVolume {
		resp.DailyVolume = append(resp.DailyVolume, DailyVolume{Day: p.Day, Count: p.Count})
	}
	for _, w := range o.Workload {
		resp.Workload = append(resp.Workload, StaffWorkload{
			Email:              w.Email,
			Name:               w.Name,
			Total:              w.Total,
			Closed:             w.Closed,
			AvgResolutionHours: w.AvgResolutionHours,
		})
	}
	return resp
}

// PersonalAnalyticsResponse is the caller's own performance payload.
type PersonalAnalyticsResponse struct {
	Email              string           `json:"email"`
	TotalAssigned      int64            `json:"total_assigned"`
	Open               int64            `json:"open"`
	Closed             int64            `json:"closed"`
	AvgResolutionHours *float64         `json:"avg_resolution_hours"`
	CompletionRate     float64          `json:"completion_rate"`
	Recent             []TicketResponse `json:"recent"`
}

// NewPersonalAnalyticsResponse maps personal stats.
func NewPersonalAnalyticsResponse(p *domain.PersonalStats) PersonalAnalyticsResponse {
	resp := PersonalAnalyticsResponse{
		Email:              p.Email,
		TotalAssigned:      p.Total,
		Open:               p.Open,
		Closed:             p.Closed,
		AvgResolutionHours: p.AvgResolutionHours,
		CompletionRate:     p.CompletionRate(),
		Recent:             make([]TicketResponse, 0, len(p.Recent)),
	}
	for i := range p.Recent {
		resp.Recent = append(resp.Recent, NewTicketResponse(&p.Recent[i]))
	}
	return resp
}

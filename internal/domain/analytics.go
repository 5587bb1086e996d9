package domain

import "time"

// VolumePoint counts tickets created on one day.
type VolumePoint struct {
	Day   time.Time
	Count int64
}

// WorkloadItem summarizes one staff member's ticket history.
type WorkloadItem struct {
	Email              string
	Name               string
	Total              int64
	Closed             int64
	AvgResolutionHours *float64
}

// AnalyticsOverview aggregates dashboard metrics.
type AnalyticsOverview struct {
	TotalTickets       int64
	OpenTickets        int64
	ClosedTickets      int64
	UnassignedOpen     int64
	AvgResolutionHours float64
	AvgSentiment       float64
	UrgencyCounts      map[Urgency]int64
	DailyVolume        []VolumePoint
	Workload           []WorkloadItem
}

// PersonalStats summarizes the tickets ever assigned to one staff member.
type PersonalStats struct {
	Email              string
	Total              int64
	Open               int64
	Closed             int64
	AvgResolutionHours *float64
	Recent             []Ticket
}

// CompletionRate is the closed share of assigned tickets, in percent.
func (p PersonalStats) CompletionRate() float64 {
	if p.Total == 0 {
		return 0
	}
	return float64(p.Closed) / float64(p.Total) * 100
}

package memory

import (
	"context"
	"sort"
	"time"

	"github.com/spec-kit/helpdesk-service/internal/domain"
)

type analyticsRepo struct {
	store *Store
}

func (r *analyticsRepo) Overview(_ context.Context, since time.Time) (*domain.AnalyticsOverview, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	st := r.store.data

	overview := &domain.AnalyticsOverview{UrgencyCounts: map[domain.Urgency]int64{}}
	daily := map[time.Time]int64{}
	type acc struct {
		total, closed int64
		hours         float64
	}
	perStaff := map[string]*acc{}

	var resolvedHours, sentiment float64
	for _, ticket := range st.tickets {
		overview.TotalTickets++
		sentiment += ticket.SentimentScore
		overview.UrgencyCounts[ticket.Urgency]++
		if ticket.IsOpen() {
			overview.OpenTickets++
			if ticket.AssignedTo == nil {
				overview.UnassignedOpen++
			}
		} else {
			overview.ClosedTickets++
		}
		hours := -1.0
		if !ticket.IsOpen() && ticket.ResolvedAt != nil {
			hours = ticket.ResolvedAt.Sub(ticket.CreatedAt).Hours()
			resolvedHours += hours
		}
		if !ticket.CreatedAt.Before(since) {
			day := ticket.CreatedAt.UTC().Truncate(24 * time.Hour)
			daily[day]++
		}
		if ticket.AssignedTo != nil {
			a := perStaff[*ticket.AssignedTo]
			if a == nil {
				a = &acc{}
				perStaff[*ticket.AssignedTo] = a
			}
			a.total++
			if hours >= 0 {
				a.closed++
				a.hours += hours
			}
		}
	}
	if overview.TotalTickets > 0 {
		overview.AvgSentiment = sentiment / float64(overview.TotalTickets)
	}
	if overview.ClosedTickets > 0 {
		overview.AvgResolutionHours = resolvedHours / float64(overview.ClosedTickets)
	}

	for day, count := range daily {
		overview.DailyVolume = append(overview.DailyVolume, domain.VolumePoint{Day: day, Count: count})
	}
	sort.Slice(overview.DailyVolume, func(i, j int) bool {
		return overview.DailyVolume[i].Day.Before(overview.DailyVolume[j].Day)
	})

	var members []domain.StaffMember
	for _, member := range st.staff {
		if member.Role == domain.StaffRoleStaff {
			members = append(members, member)
		}
	}
	sortStaff(members)
	for _, member := range members {
		item := domain.WorkloadItem{Email: member.Email, Name: member.Name}
		if a := perStaff[member.Email]; a != nil {
			item.Total = a.total
			item.Closed = a.closed
			if a.closed > 0 {
				avg := a.hours / float64(a.closed)
				item.AvgResolutionHours = &avg
			}
		}
		overview.Workload = append(overview.Workload, item)
	}
	return overview, nil
}

func (r *analyticsRepo) Personal(_ context.Context, email string) (*domain.PersonalStats, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	stats := &domain.PersonalStats{Email: email}
	var hours float64
	var resolved int64
	for _, ticket := range r.store.data.tickets {
		if ticket.Assignee() != email {
			continue
		}
		stats.Total++
		if ticket.IsOpen() {
			stats.Open++
			continue
		}
		stats.Closed++
		if ticket.ResolvedAt != nil {
			hours += ticket.ResolvedAt.Sub(ticket.CreatedAt).Hours()
			resolved++
		}
	}
	if resolved > 0 {
		avg := hours / float64(resolved)
		stats.AvgResolutionHours = &avg
	}
	return stats, nil
}

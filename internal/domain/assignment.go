package domain

// AssignmentStatus is the result kind of one assignment attempt.
type AssignmentStatus string

const (
	AssignmentAssigned         AssignmentStatus = "assigned"
	AssignmentAlreadyExists    AssignmentStatus = "already_exists"
	AssignmentNoStaffAvailable AssignmentStatus = "no_staff_available"
)

// AssignmentOutcome describes what the engine did with a candidate.
type AssignmentOutcome struct {
	Status   AssignmentStatus
	Assignee string
	Ticket   *Ticket
}

// Assigned reports whether a new ticket was created.
func (o *AssignmentOutcome) Assigned() bool {
	return o != nil && o.Status == AssignmentAssigned
}

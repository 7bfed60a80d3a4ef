package domain

// Status is the lifecycle state of a TransferObservation.
type Status string

// Status constants
const (
	StatusPending      Status = "pending"
	StatusLinked       Status = "linked"
	StatusManualReview Status = "manual_review"
	StatusIgnored      Status = "ignored"
)

// AllStatuses lists every status in lifecycle order.
var AllStatuses = []Status{StatusPending, StatusManualReview, StatusLinked, StatusIgnored}

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusLinked, StatusManualReview, StatusIgnored:
		return true
	}
	return false
}

// IsTerminal reports whether no further automatic transition can leave s.
func (s Status) IsTerminal() bool {
	return s == StatusLinked || s == StatusIgnored
}

// Trigger identifies what caused a status transition.
type Trigger string

// Trigger constants
const (
	TriggerEvaluation   Trigger = "evaluation"
	TriggerExpiration   Trigger = "expiration"
	TriggerManualLink   Trigger = "manual_link"
	TriggerManualIgnore Trigger = "manual_ignore"
)

// transitions maps (from, trigger) to the set of reachable statuses.
//
//	pending       --evaluation-->    linked | manual_review
//	manual_review --evaluation-->    linked | manual_review (explicit re-submission only)
//	manual_review --manual_link-->   linked
//	manual_review --manual_ignore--> ignored
//	pending|manual_review --expiration--> ignored
var transitions = map[Status]map[Trigger][]Status{
	StatusPending: {
		TriggerEvaluation: {StatusLinked, StatusManualReview, StatusPending},
		TriggerExpiration: {StatusIgnored},
	},
	StatusManualReview: {
		TriggerEvaluation:   {StatusLinked, StatusManualReview},
		TriggerManualLink:   {StatusLinked},
		TriggerManualIgnore: {StatusIgnored},
		TriggerExpiration:   {StatusIgnored},
	},
}

// CanTransition reports whether trigger may move an observation from one status to another.
// Terminal statuses have no outgoing transitions.
func CanTransition(from, to Status, trigger Trigger) bool {
	for _, s := range transitions[from][trigger] {
		if s == to {
			return true
		}
	}
	return false
}

// IsForward reports whether from -> to is allowed by any trigger, or is a no-op
// on a non-terminal status.
func IsForward(from, to Status) bool {
	if from == to {
		return !from.IsTerminal()
	}
	for _, targets := range transitions[from] {
		for _, s := range targets {
			if s == to {
				return true
			}
		}
	}
	return false
}

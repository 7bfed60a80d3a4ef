package domain

// Actor names for automatic transitions.
const (
	ActorEngine  = "engine"
	ActorSweeper = "sweeper"
)

// TransitionEvent records one status change of an observation.
// It is both the notifier payload and the audit record.
// Corresponds to transition_events table in PostgreSQL / ClickHouse.
type TransitionEvent struct {
	EventID         string  // uuid
	ObservationID   string  // FK to transfer_observations
	Signature       string  // transaction signature
	WalletID        string  // owning wallet
	OldStatus       Status  // status before
	NewStatus       Status  // status after
	ConfidenceScore float64 // score at transition time
	Trigger         Trigger // evaluation | expiration | manual_link | manual_ignore
	Actor           string  // engine | sweeper | reviewer id
	OccurredAt      int64   // ms
}

// Notifiable reports whether the external notifier should receive the event.
// Only resolutions (-> linked, -> ignored) are forwarded.
func (e *TransitionEvent) Notifiable() bool {
	return e.NewStatus == StatusLinked || e.NewStatus == StatusIgnored
}

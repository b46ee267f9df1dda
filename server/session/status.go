package session

// Status is the exclusive application state of a session.
type Status string

const (
	StatusUnregistered Status = "UNREGISTERED"
	StatusIdle         Status = "IDLE"
	StatusScanning     Status = "SCANNING"
	StatusSOSPending   Status = "SOS_PENDING"
	StatusSOSActive    Status = "SOS_ACTIVE"
	StatusDebriefing   Status = "DEBRIEFING"
	StatusMarketplace  Status = "MARKETPLACE"
)

// AllStatuses lists every status in lifecycle order.
var AllStatuses = []Status{
	StatusUnregistered,
	StatusIdle,
	StatusScanning,
	StatusSOSPending,
	StatusSOSActive,
	StatusDebriefing,
	StatusMarketplace,
}

// transitions is the set of legal status changes. Logout (to UNREGISTERED) is
// legal from every registered status.
var transitions = map[Status][]Status{
	StatusUnregistered: {StatusIdle},
	StatusIdle:         {StatusScanning, StatusSOSPending, StatusMarketplace, StatusUnregistered},
	StatusScanning:     {StatusIdle, StatusSOSPending, StatusMarketplace, StatusUnregistered},
	StatusSOSPending:   {StatusSOSActive, StatusDebriefing, StatusUnregistered},
	StatusSOSActive:    {StatusIdle, StatusUnregistered},
	StatusDebriefing:   {StatusIdle, StatusUnregistered},
	StatusMarketplace:  {StatusIdle, StatusScanning, StatusUnregistered},
}

// CanTransition reports whether a session may move from one status to another.
func CanTransition(from, to Status) bool {
	for _, allowed := range transitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// Registered reports whether s is past registration.
func (s Status) Registered() bool {
	return s != StatusUnregistered && s != ""
}

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	_, ok := transitions[s]
	return ok
}

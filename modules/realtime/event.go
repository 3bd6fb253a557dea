package realtime

// Event types sent to progress subscribers
const (
	EventProgress = "progress"
	EventComplete = "complete"
	EventFailed   = "failed"
	EventReset    = "reset"
)

// Event - one progress message for a session's subscribers
type Event struct {
	Type      string  `json:"type"`
	SessionID string  `json:"sessionId"`
	Index     int     `json:"index"`
	Total     int     `json:"total"`
	Fraction  float64 `json:"fraction"`
	Status    string  `json:"status,omitempty"`
	Message   string  `json:"message,omitempty"`
	RecordID  string  `json:"recordId,omitempty"`
}

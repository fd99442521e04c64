package dictate

// State is the coordinator's lifecycle phase. At most one dictation
// session is ever in flight.
type State int

const (
	// StateIdle means no hold is active and nothing is pending.
	StateIdle State = iota
	// StateCapturing means the hotkey is held and the microphone is open.
	StateCapturing
	// StateTranscribing means a clip is with the transcription worker.
	StateTranscribing
	// StateAborting is the transient phase while a superseded session
	// is being torn down.
	StateAborting
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateCapturing:
		return "capturing"
	case StateTranscribing:
		return "transcribing"
	case StateAborting:
		return "aborting"
	}
	return "unknown"
}

// StatusObserver receives coordinator status for surfacing in the tray
// and as notifications. Calls arrive from the coordinator goroutine and
// must not block.
type StatusObserver interface {
	StateChanged(State)
	Notice(title, message string)
}

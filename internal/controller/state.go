package controller

// State is the UI-facing phase of the controller
type State int

const (
	NoFile State = iota
	FileSelected
	Uploading
	Ready
	Processing
	Processed
	Error
)

func (s State) String() string {
	switch s {
	case NoFile:
		return "NoFile"
	case FileSelected:
		return "FileSelected"
	case Uploading:
		return "Uploading"
	case Ready:
		return "Ready"
	case Processing:
		return "Processing"
	case Processed:
		return "Processed"
	case Error:
		return "Error"
	default:
		return "Unknown"
	}
}

// Busy reports whether a request is in flight in this state
func (s State) Busy() bool {
	return s == Uploading || s == Processing
}

// transitions lists the allowed edges. Every state may return to NoFile
// ("start new file") and, once a file is known, to FileSelected (pick another).
var transitions = map[State][]State{
	NoFile:       {FileSelected},
	FileSelected: {Uploading, FileSelected},
	Uploading:    {Ready, Error, FileSelected},
	Ready:        {Processing, FileSelected},
	Processing:   {Processed, Error, FileSelected},
	Processed:    {Processing, FileSelected},
	Error:        {Uploading, Processing, FileSelected},
}

// CanTransition reports whether from -> to is a legal edge
func CanTransition(from, to State) bool {
	if to == NoFile {
		return true
	}
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

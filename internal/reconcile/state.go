package reconcile

// State is a step of one incremental run.
type State int

const (
	StateInit State = iota
	StateMarkerLoaded
	StateFetching
	StateReconciled
	StateMarkerSaved
	StateDone
	StateAborted
)

var stateNames = [...]string{
	StateInit:         "INIT",
	StateMarkerLoaded: "MARKER_LOADED",
	StateFetching:     "FETCHING",
	StateReconciled:   "RECONCILED",
	StateMarkerSaved:  "MARKER_SAVED",
	StateDone:         "DONE",
	StateAborted:      "ABORTED",
}

func (s State) String() string {
	if int(s) < len(stateNames) {
		return stateNames[s]
	}
	return "UNKNOWN"
}

// Terminal reports whether no further transition is possible.
func (s State) Terminal() bool {
	return s == StateDone || s == StateAborted
}

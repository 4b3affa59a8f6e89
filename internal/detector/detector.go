package detector

import "context"

// ProcessEntry is one row of the process table.
type ProcessEntry struct {
	PID     int32  `json:"pid"`
	Name    string `json:"name"`
	Cmdline string `json:"cmdline"`
}

// ProcessTable lists the processes currently running on the host.
// Implementations must be safe for concurrent use.
type ProcessTable interface {
	List(ctx context.Context) ([]ProcessEntry, error)
}

// Detector is a strategy that decides whether a process table entry
// belongs to a service. It must be safe for concurrent use.
type Detector interface {
	// Match reports whether e is a process of the detected service.
	Match(e ProcessEntry) bool
	// Describe returns a human-readable description of the detection method.
	Describe() string
}

// Alive reports whether any entry satisfies d.
func Alive(entries []ProcessEntry, d Detector) bool {
	if d == nil {
		return false
	}
	for _, e := range entries {
		if d.Match(e) {
			return true
		}
	}
	return false
}

// Matching returns the entries that satisfy d, in table order.
func Matching(entries []ProcessEntry, d Detector) []ProcessEntry {
	if d == nil {
		return nil
	}
	var out []ProcessEntry
	for _, e := range entries {
		if d.Match(e) {
			out = append(out, e)
		}
	}
	return out
}

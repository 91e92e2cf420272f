package access

import (
	"fmt"
	"strings"
)

// Level is the ordered access level a grant confers on a resource.
type Level string

const (
	LevelViewer    Level = "viewer"
	LevelReadOnly  Level = "read_only"
	LevelReadWrite Level = "read_write"
	LevelAdmin     Level = "admin"
)

// rank gives levels an explicit ordering. Comparisons always go through
// this table; the string values themselves carry no order.
var rank = map[Level]int{
	LevelViewer:    1,
	LevelReadOnly:  2,
	LevelReadWrite: 3,
	LevelAdmin:     4,
}

// Valid reports whether the level is one of the closed set.
func (l Level) Valid() bool {
	_, ok := rank[l]
	return ok
}

// AtLeast reports whether l confers at least the capabilities of min.
func (l Level) AtLeast(min Level) bool {
	lr, ok := rank[l]
	if !ok {
		return false
	}
	mr, ok := rank[min]
	if !ok {
		return false
	}
	return lr >= mr
}

// Less orders levels ascending.
func (l Level) Less(other Level) bool {
	return rank[l] < rank[other]
}

// ParseLevel normalises and validates a level string.
func ParseLevel(value string) (Level, error) {
	l := Level(strings.ToLower(strings.TrimSpace(value)))
	if !l.Valid() {
		return "", fmt.Errorf("unknown access level %q", value)
	}
	return l, nil
}

// Levels returns the closed set ascending, for display and validation messages.
func Levels() []Level {
	return []Level{LevelViewer, LevelReadOnly, LevelReadWrite, LevelAdmin}
}

// Package power decides how hard to drive the heating elements and is the
// only writer of the two element outputs.
//
// Decide is pure: it maps temperatures, the manual override and the safety
// limits to a Level. Controller wraps it in the periodic control loop.
package power

import (
	"math"
	"strings"
)

// Level is a discrete power setting. Auto is not a physical level; as an
// override it means "no override".
type Level int

const (
	Off Level = iota
	Low
	Medium
	High
	Auto
)

// String returns the lower-case level name.
func (l Level) String() string {
	switch l {
	case Off:
		return "off"
	case Low:
		return "low"
	case Medium:
		return "medium"
	case High:
		return "high"
	case Auto:
		return "auto"
	default:
		return "unknown"
	}
}

// Pins maps a level to the (low-wattage, high-wattage) element outputs.
// Auto and unknown levels map to both off.
func (l Level) Pins() (low, high bool) {
	switch l {
	case Low:
		return true, false
	case Medium:
		return false, true
	case High:
		return true, true
	default:
		return false, false
	}
}

// ParseLevel reads an override token: auto, off, low, med*, hi*.
func ParseLevel(token string) (Level, bool) {
	t := strings.ToLower(strings.TrimSpace(token))
	switch {
	case t == "auto":
		return Auto, true
	case t == "off":
		return Off, true
	case t == "low":
		return Low, true
	case strings.HasPrefix(t, "med"):
		return Medium, true
	case strings.HasPrefix(t, "hi"):
		return High, true
	default:
		return Auto, false
	}
}

// NoValue marks a temperature that is unknown or too old to trust.
const NoValue = -100.0

// Missing reports whether v is the NoValue sentinel (or NaN).
func Missing(v float64) bool {
	return v <= NoValue || math.IsNaN(v)
}

package layout

import (
	"strconv"
	"strings"
)

// This file defines unit-safe types and helpers for length and line-height.
// Layout works in CSS px; the canvas backend draws in the same numeric space
// and only font sizes cross over to points.

// Unit represents the original unit of a length value.
type Unit int

const (
	UnitNone Unit = iota // unit-less numbers like factors
	UnitPX               // CSS pixels
	UnitPT               // points
)

// Conversion constants between pt and px (CSS: 1px = 0.75pt).
const (
	PxToPt = 0.75
	PtToPx = 1.0 / PxToPt
)

// Conversion constants between pt and mm, used when a px value is handed to a
// backend that treats its canvas unit as millimetres.
const (
	PtToMm = 0.352777
	MmToPt = 1.0 / PtToMm
)

// Length preserves a numeric value with its unit.
type Length struct {
	Value float64 `json:"value"`
	Unit  Unit    `json:"unit"`
}

// To converts this length to target unit. Unit-less values are returned as-is.
func (l Length) To(target Unit) float64 {
	switch l.Unit {
	case UnitPX:
		if target == UnitPT {
			return l.Value * PxToPt
		}
		return l.Value
	case UnitPT:
		if target == UnitPX || target == UnitNone {
			return l.Value * PtToPx
		}
		return l.Value
	default:
		return l.Value
	}
}

func (l Length) ToPX() float64 { return l.To(UnitPX) }
func (l Length) ToPT() float64 { return l.To(UnitPT) }

// ParseLength parses "14px" / "10.5pt" / "14". A bare number is px.
func ParseLength(value string) (Length, bool) {
	v := strings.ToLower(strings.TrimSpace(value))
	if v == "" {
		return Length{}, false
	}
	unit := UnitPX
	num := v
	for _, suf := range []struct {
		s string
		u Unit
	}{{"px", UnitPX}, {"pt", UnitPT}} {
		if strings.HasSuffix(v, suf.s) {
			unit = suf.u
			num = strings.TrimSpace(strings.TrimSuffix(v, suf.s))
			break
		}
	}
	f, err := strconv.ParseFloat(num, 64)
	if err != nil {
		return Length{}, false
	}
	return Length{Value: f, Unit: unit}, true
}

// LineHeightPX computes the absolute line height in px for a factor of the font size.
// Non-positive factors fall back to 1.5x, the editor default.
func LineHeightPX(fontSizePx, factor float64) float64 {
	if factor <= 0 {
		factor = 1.5
	}
	return fontSizePx * factor
}

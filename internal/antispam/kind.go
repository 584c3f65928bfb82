// Package antispam implements the abuse detection, escalation, and
// enforcement pipeline: sliding per-user buffers, seven detectors, a
// cross-user mass-attack aggregator, a violation-point ledger with decay,
// and rate-limit-aware enforcement.
package antispam

import "strings"

// Kind identifies one detector. Mass variants carry a "mass_" prefix and
// are produced by the aggregator, never configured directly.
type Kind string

const (
	KindText         Kind = "text"
	KindImage        Kind = "image"
	KindMention      Kind = "mention"
	KindToken        Kind = "token"
	KindTimebase     Kind = "timebase"
	KindForward      Kind = "forward"
	KindTypingBypass Kind = "typing_bypass"
)

// Kinds lists all base detector kinds in dispatch-independent order.
var Kinds = []Kind{
	KindText, KindImage, KindMention, KindToken,
	KindTimebase, KindForward, KindTypingBypass,
}

// Mass returns the escalated variant of the kind.
func (k Kind) Mass() Kind {
	if k.IsMass() {
		return k
	}

	return Kind("mass_" + string(k))
}

// IsMass reports whether the kind is an escalated mass variant.
func (k Kind) IsMass() bool {
	return strings.HasPrefix(string(k), "mass_")
}

// Base strips the mass prefix, returning the underlying detector kind.
func (k Kind) Base() Kind {
	return Kind(strings.TrimPrefix(string(k), "mass_"))
}

// Valid reports whether the kind is one of the known base kinds.
func (k Kind) Valid() bool {
	for _, known := range Kinds {
		if k.Base() == known {
			return true
		}
	}

	return false
}

// kindLabels maps kinds to the human-readable labels used in alerts.
var kindLabels = map[Kind]string{
	KindText:         "Text Spam",
	KindImage:        "Media Flood",
	KindMention:      "Mention Flood",
	KindToken:        "Token Spam",
	KindTimebase:     "Timed Posting",
	KindForward:      "Forward Flood",
	KindTypingBypass: "Typing Bypass",
}

// kindColors maps kinds to alert accent colors.
var kindColors = map[Kind]int{
	KindText:         0xFF6B6B,
	KindImage:        0xFFB347,
	KindMention:      0x87CEEB,
	KindToken:        0x8B0000,
	KindTimebase:     0xDDA0DD,
	KindForward:      0x32CD32,
	KindTypingBypass: 0x20B2AA,
}

// Label returns the display label for the kind. Mass variants are marked
// explicitly since they describe coordinated activity.
func (k Kind) Label() string {
	label, ok := kindLabels[k.Base()]
	if !ok {
		label = string(k.Base())
	}

	if k.IsMass() {
		return "Coordinated " + label
	}

	return label
}

// Color returns the alert accent color for the kind. Mass variants always
// use the high-severity color.
func (k Kind) Color() int {
	if k.IsMass() {
		return 0x8B0000
	}

	if color, ok := kindColors[k]; ok {
		return color
	}

	return 0x808080
}

// Verdict is a positive detector result.
type Verdict struct {
	Kind  Kind
	Score float64
}

// Package profile holds the clone persona: who the system speaks and
// works as. The profile renders into the system instruction used for
// execution and conversational model calls, and persists as a session
// slice.
package profile

import (
	"fmt"
	"strings"
)

// Profile describes the persona.
type Profile struct {
	Name          string   `json:"name"`
	Personality   string   `json:"personality"`
	Background    string   `json:"background"`
	SpeakingStyle string   `json:"speaking_style"`
	Hobbies       []string `json:"hobbies,omitempty"`
}

// Default returns the out-of-the-box persona used until the user
// customizes theirs.
func Default() Profile {
	return Profile{
		Name:          "Nova",
		Personality:   "curious, direct, and pragmatic",
		Background:    "a digital clone assembled to run its owner's working life",
		SpeakingStyle: "concise and conversational, first person",
		Hobbies:       []string{"systems tinkering", "reading changelogs"},
	}
}

// SystemInstruction renders the persona into a system prompt.
func (p Profile) SystemInstruction() string {
	var b strings.Builder
	fmt.Fprintf(&b, "You are %s, %s.\n", p.Name, p.Background)
	fmt.Fprintf(&b, "Personality: %s.\n", p.Personality)
	fmt.Fprintf(&b, "Speaking style: %s.\n", p.SpeakingStyle)
	if len(p.Hobbies) > 0 {
		fmt.Fprintf(&b, "Interests: %s.\n", strings.Join(p.Hobbies, ", "))
	}
	b.WriteString("Stay in character. Act autonomously on the user's behalf.")
	return b.String()
}

// Valid reports whether the profile can be used as-is.
func (p Profile) Valid() bool {
	return strings.TrimSpace(p.Name) != ""
}

package profile

import "strings"

// Theme is the desktop appearance preference. The daemon only stores
// and serves it; rendering belongs to whatever front end drives the
// API. It persists as its own session slice.
type Theme struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Accent string `json:"accent"`
}

// DefaultTheme returns the stock appearance.
func DefaultTheme() Theme {
	return Theme{ID: "nebula", Name: "Sonoma Glass", Accent: "#06b6d4"}
}

// Valid reports whether the theme can be stored.
func (t Theme) Valid() bool {
	return strings.TrimSpace(t.ID) != ""
}

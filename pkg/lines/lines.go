// Package lines describes the regional rail lines that trainboard polls.
//
// A Line pairs a display name with the origin station used when querying the
// upstream arrivals API. Every query is made between the line's origin and a
// single interchange station (the hub), in one of two directions.
package lines

import (
	"fmt"
	"strings"
)

// DefaultHubStation is the interchange used as the other endpoint of every query.
const DefaultHubStation = "Market East"

// Line is a named route with a fixed origin station.
type Line struct {
	Origin string `json:"origin" yaml:"origin" toml:"origin" validate:"required"`
	Name   string `json:"name" yaml:"name" toml:"name" validate:"required"`
}

// Direction is the travel direction relative to the hub station.
type Direction int

const (
	// Inbound travels from the line's origin toward the hub.
	Inbound Direction = iota
	// Outbound travels from the hub toward the line's origin.
	Outbound
)

// Directions lists every direction in snapshot order.
var Directions = []Direction{Inbound, Outbound}

func (d Direction) String() string {
	switch d {
	case Inbound:
		return "inbound"
	case Outbound:
		return "outbound"
	default:
		return fmt.Sprintf("direction(%d)", int(d))
	}
}

// parseDirection accepts "inbound" or "outbound" in any case.
func parseDirection(s string) (Direction, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "inbound":
		return Inbound, nil
	case "outbound":
		return Outbound, nil
	default:
		return 0, fmt.Errorf("unknown direction %q", s)
	}
}

// MarshalText makes Direction usable as a JSON object key, as in the
// /awesome payload map.
func (d Direction) MarshalText() ([]byte, error) {
	if d != Inbound && d != Outbound {
		return nil, fmt.Errorf("invalid direction %d", int(d))
	}
	return []byte(d.String()), nil
}

func (d *Direction) UnmarshalText(b []byte) error {
	parsed, err := parseDirection(string(b))
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// Endpoints returns the (origin, destination) pair to query for a line in
// the given direction. Outbound runs hub→origin, inbound runs origin→hub.
func (l Line) Endpoints(d Direction, hub string) (from, to string) {
	if d == Outbound {
		return hub, l.Origin
	}
	return l.Origin, hub
}

// Default returns the built-in line list. The returned slice is a fresh copy.
func Default() []Line {
	out := make([]Line, len(defaultLines))
	copy(out, defaultLines)
	return out
}

var defaultLines = []Line{
	{Origin: "Airport Terminal E-F", Name: "Airport"},
	{Origin: "Chestnut Hill East", Name: "Chestnut Hill East"},
	{Origin: "Chestnut Hill West", Name: "Chestnut Hill West"},
	{Origin: "Fox Chase", Name: "Fox Chase"},
	{Origin: "Lansdale", Name: "Lansdale/Doylestown"},
	{Origin: "Manayunk", Name: "Manayunk/Norristown"},
	{Origin: "Elwyn Station", Name: "Media/Elwyn"},
	{Origin: "Malvern", Name: "Paoli/Thorndale"},
	{Origin: "Trenton", Name: "Trenton"},
	{Origin: "Warminster", Name: "Warminster"},
	{Origin: "West Trenton", Name: "West Trenton"},
	{Origin: "Wilmington", Name: "Wilmington/Newark"},
}

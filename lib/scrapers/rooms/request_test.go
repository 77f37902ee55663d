package rooms

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func validConfig() Config {
	return Config{
		BookingDate:    "2025-11-25",
		StartTime:      "14:00",
		DurationHours:  1.5,
		Attendees:      6,
		StudyGroupName: "B7",
		ProjectName:    "GLAM",
		Building:       "Sammy Ofer Centre",
	}
}

func TestNewRequestValid(t *testing.T) {
	req, err := NewRequest(validConfig())
	require.NoError(t, err)
	require.Equal(t, "B7 - GLAM", req.Title())
	require.Equal(t, 90, req.DurationMinutes())
	require.Equal(t, "25/11/2025", req.Date.Format(portalDateLayout))
	require.Equal(t, SammyOferCentre, req.Building)
}

func TestNewRequestRejections(t *testing.T) {
	testCases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"bad date", func(c *Config) { c.BookingDate = "25/11/2025" }},
		{"bad time", func(c *Config) { c.StartTime = "2pm" }},
		{"hour out of range", func(c *Config) { c.StartTime = "25:00" }},
		{"duration too short", func(c *Config) { c.DurationHours = 0.25 }},
		{"duration too long", func(c *Config) { c.DurationHours = 3.5 }},
		{"duration off the half-hour grid", func(c *Config) { c.DurationHours = 1.75 }},
		{"zero duration", func(c *Config) { c.DurationHours = 0 }},
		{"zero attendees", func(c *Config) { c.Attendees = 0 }},
		{"too many attendees", func(c *Config) { c.Attendees = 11 }},
		{"unknown building", func(c *Config) { c.Building = "Regent's Park" }},
		{"empty building", func(c *Config) { c.Building = "" }},
	}

	for _, c := range testCases {
		t.Run(c.name, func(t *testing.T) {
			cfg := validConfig()
			c.mutate(&cfg)
			_, err := NewRequest(cfg)
			require.ErrorIs(t, err, ErrInvalidRequest)
		})
	}
}

func TestNewRequestBoundaryValues(t *testing.T) {
	for _, d := range []float64{0.5, 1, 2.5, 3} {
		cfg := validConfig()
		cfg.DurationHours = d
		_, err := NewRequest(cfg)
		require.NoError(t, err, "duration %v", d)
	}
	for _, n := range []int{1, 10} {
		cfg := validConfig()
		cfg.Attendees = n
		_, err := NewRequest(cfg)
		require.NoError(t, err, "attendees %d", n)
	}
}

func TestBuildingCodes(t *testing.T) {
	// every known building maps to a distinct portal code
	seen := map[string]Building{}
	for _, b := range []Building{NorthBuilding, SammyOferCentre, SussexPlace} {
		code, err := b.Code()
		require.NoError(t, err)
		require.NotContains(t, seen, code)
		seen[code] = b
	}
	require.Equal(t, 3, len(seen))

	_, err := Building("The Shard").Code()
	require.ErrorIs(t, err, ErrInvalidRequest)
}

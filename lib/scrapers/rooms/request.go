// Package rooms drives the room-booking portal's multi-step form to a
// single terminal outcome.
package rooms

import (
	"errors"
	"fmt"
	"regexp"
	"time"

	"lbsassist/lib/timezone"
)

// ErrInvalidRequest is raised at construction time, before the
// automaton ever runs: an invalid request never reaches the portal.
var ErrInvalidRequest = errors.New("invalid booking request")

type Building string

const (
	NorthBuilding   Building = "North Building"
	SammyOferCentre Building = "Sammy Ofer Centre"
	SussexPlace     Building = "Sussex Place"
)

// portal-internal site codes; total and injective over exactly the
// three buildings, anything else is rejected
var buildingCodes = map[Building]string{
	NorthBuilding:   "NB",
	SammyOferCentre: "SOC",
	SussexPlace:     "Susx Plc",
}

func (b Building) Code() (string, error) {
	code, ok := buildingCodes[b]
	if !ok {
		return "", fmt.Errorf("%w: unknown building %q", ErrInvalidRequest, string(b))
	}
	return code, nil
}

const (
	minDurationHours = 0.5
	maxDurationHours = 3.0
	minAttendees     = 1
	maxAttendees     = 10
)

var startTimeRegex = regexp.MustCompile(`^([01]?\d|2[0-3]):([0-5]\d)$`)

// Config is the booking configuration as consumed from file; mapping
// raw values into a validated Request is the constructor's job.
type Config struct {
	BookingDate    string  `json:"booking_date"` // ISO date, e.g. 2025-11-25
	StartTime      string  `json:"start_time"`   // HH:MM
	DurationHours  float64 `json:"duration_hours"`
	Attendees      int     `json:"attendees"`
	StudyGroupName string  `json:"study_group_name"`
	ProjectName    string  `json:"project_name"`
	Building       string  `json:"building"`
}

type Request struct {
	Date          time.Time
	Start         string
	DurationHours float64
	Attendees     int
	GroupName     string
	ProjectName   string
	Building      Building
}

// NewRequest validates the raw configuration into a Request. Duration
// must lie in [0.5, 3.0] hours in half-hour steps, attendees in
// [1, 10], and the building must be one of the known three.
func NewRequest(cfg Config) (Request, error) {
	date, err := time.ParseInLocation("2006-01-02", cfg.BookingDate, timezone.Location)
	if err != nil {
		return Request{}, fmt.Errorf("%w: bad booking_date %q", ErrInvalidRequest, cfg.BookingDate)
	}
	if !startTimeRegex.MatchString(cfg.StartTime) {
		return Request{}, fmt.Errorf("%w: bad start_time %q", ErrInvalidRequest, cfg.StartTime)
	}

	d := cfg.DurationHours
	if d < minDurationHours || d > maxDurationHours {
		return Request{}, fmt.Errorf(
			"%w: duration %.1fh outside [%.1f, %.1f]",
			ErrInvalidRequest, d, minDurationHours, maxDurationHours,
		)
	}
	halves := d * 2
	if halves != float64(int(halves)) {
		return Request{}, fmt.Errorf("%w: duration %.2fh is not a half-hour step", ErrInvalidRequest, d)
	}

	if cfg.Attendees < minAttendees || cfg.Attendees > maxAttendees {
		return Request{}, fmt.Errorf(
			"%w: attendees %d outside [%d, %d]",
			ErrInvalidRequest, cfg.Attendees, minAttendees, maxAttendees,
		)
	}

	building := Building(cfg.Building)
	if _, err := building.Code(); err != nil {
		return Request{}, err
	}

	return Request{
		Date:          date,
		Start:         cfg.StartTime,
		DurationHours: d,
		Attendees:     cfg.Attendees,
		GroupName:     cfg.StudyGroupName,
		ProjectName:   cfg.ProjectName,
		Building:      building,
	}, nil
}

// Title is the booking title submitted to the portal.
func (r Request) Title() string {
	return fmt.Sprintf("%s - %s", r.GroupName, r.ProjectName)
}

// DurationMinutes is the value the portal's duration control expects.
func (r Request) DurationMinutes() int {
	return int(r.DurationHours * 60)
}

// Result is the confirmed outcome of a successful booking.
type Result struct {
	RoomName      string
	Date          time.Time
	Start         string
	DurationHours float64
	Title         string
}

package rooms

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"testing"
	"time"

	"lbsassist/lib/browser"
	"lbsassist/lib/telemetry"
	"lbsassist/lib/waiter"

	"github.com/PuerkitoBio/goquery"
	"github.com/stretchr/testify/require"
)

const bookingRoot = "https://lbsmobile.london.edu"

const landingPage = `<html><body>
	<a id="userBookings" href="/bookings">My bookings</a>
</body></html>`

const bookingsPage = `<html><body>
	<a class="toBookingPage" href="/bookings/new">Book a room</a>
</body></html>`

const bookingFormPage = `<html><body>
	<form action="/bookings/search" method="post">
		<input id="bookingdatepicker" name="bookingdate" type="text" value=""/>
		<select id="starthourbox" name="starthour"></select>
		<select id="startminutesbox" name="startminutes"></select>
		<select id="durationbox" name="duration">
			<option value="30">30 minutes</option>
			<option value="60">1 hour</option>
			<option value="90">1.5 hours</option>
			<option value="120">2 hours</option>
			<option value="150">2.5 hours</option>
			<option value="180">3 hours</option>
		</select>
		<input id="noofattendees" name="attendees" type="text" value=""/>
		<input id="meetingTitlebox" name="title" type="text" value=""/>
		<select id="sitebox" name="site">
			<option value="NB">North Building</option>
			<option value="SOC">Sammy Ofer Centre</option>
			<option value="Susx Plc">Sussex Place</option>
		</select>
		<button id="searchButton" type="submit">Search</button>
	</form>
</body></html>`

const resultsPage = `<html><body>
	<form action="/bookings/confirm" method="post">
		<div id="availblerooms">
			<input type="radio" class="selectedRoom" name="selectedroom" id="room-204" value="NB-204"/>
			<label for="room-204">NB Room 204</label>
			<input type="radio" class="selectedRoom" name="selectedroom" id="room-310" value="NB-310"/>
			<label for="room-310">NB Room 310</label>
		</div>
		<button id="bookButton" type="submit">Book</button>
	</form>
</body></html>`

const emptyResultsPage = `<html><body>
	<form action="/bookings/confirm" method="post">
		<div id="availblerooms"></div>
	</form>
</body></html>`

const successPage = `<html><body>
	<div id="bookingSuccessfulDialog">Booking successful</div>
</body></html>`

const rejectedPage = `<html><body>
	<div id="bookingFailedDialog">
		<p id="failedBookingMessage">Room already booked for this slot</p>
	</div>
</body></html>`

// fakePortal scripts the booking portal: navigations serve static
// pages, submissions are dispatched on the form action.
type fakePortal struct {
	pages    map[string]string
	onSubmit func(form browser.Form) (landURL, body string, err error)

	current *url.URL
	body    string
	submits []browser.Form
}

func (b *fakePortal) Navigate(ctx context.Context, target string) error {
	page, ok := b.pages[target]
	if !ok {
		return fmt.Errorf("no page scripted for %q", target)
	}
	u, err := url.Parse(target)
	if err != nil {
		return err
	}
	b.current = u
	b.body = page
	return nil
}

func (b *fakePortal) CurrentURL() *url.URL { return b.current }

func (b *fakePortal) Document() (*goquery.Document, error) {
	return goquery.NewDocumentFromReader(strings.NewReader(b.body))
}

func (b *fakePortal) Submit(ctx context.Context, form browser.Form) error {
	b.submits = append(b.submits, form)
	land, body, err := b.onSubmit(form)
	if err != nil {
		return err
	}
	u, err := url.Parse(land)
	if err != nil {
		return err
	}
	b.current = u
	b.body = body
	return nil
}

func (b *fakePortal) Cookies(u *url.URL) []*http.Cookie            { return nil }
func (b *fakePortal) SetCookies(u *url.URL, cookies []*http.Cookie) {}

func newFakePortal() *fakePortal {
	return &fakePortal{
		pages: map[string]string{
			bookingRoot:     landingPage,
			"/bookings":     bookingsPage,
			"/bookings/new": bookingFormPage,
		},
	}
}

func fastAutomatonOptions() Options {
	fast := waiter.Policy{
		Attempts:     2,
		InitialDelay: time.Millisecond,
		MaxDelay:     time.Millisecond,
		Multiplier:   1,
	}
	return Options{
		RootURL:     bookingRoot,
		ControlWait: fast,
		ResultsWait: fast,
		ConfirmWait: fast,
	}
}

func mustRequest(t *testing.T) Request {
	req, err := NewRequest(Config{
		BookingDate:    "2025-11-25",
		StartTime:      "14:00",
		DurationHours:  1.5,
		Attendees:      6,
		StudyGroupName: "B7",
		ProjectName:    "GLAM",
		Building:       "North Building",
	})
	require.NoError(t, err)
	return req
}

func TestAutomatonBooksFirstAvailableRoom(t *testing.T) {
	cleanup := telemetry.SetupForTesting(t, "test:lib/scrapers/rooms")
	defer cleanup()

	portal := newFakePortal()
	portal.onSubmit = func(form browser.Form) (string, string, error) {
		switch form.Action {
		case "/bookings/search":
			return "/bookings/search", resultsPage, nil
		case "/bookings/confirm":
			return "/bookings/confirm", successPage, nil
		}
		return "", "", fmt.Errorf("unexpected submit to %q", form.Action)
	}

	a := New(portal, fastAutomatonOptions())
	result, err := a.Run(context.Background(), mustRequest(t))
	require.NoError(t, err)
	require.Equal(t, StateDone, a.State())

	require.Equal(t, "NB Room 204", result.RoomName)
	require.Equal(t, "B7 - GLAM", result.Title)
	require.Equal(t, "14:00", result.Start)
	require.Equal(t, 1.5, result.DurationHours)

	require.Len(t, portal.submits, 2)
	search := portal.submits[0].Values
	require.Equal(t, "25/11/2025", search.Get("bookingdate"))
	require.Equal(t, "14", search.Get("starthour"))
	require.Equal(t, "00", search.Get("startminutes"))
	require.Equal(t, "90", search.Get("duration"))
	require.Equal(t, "6", search.Get("attendees"))
	require.Equal(t, "B7 - GLAM", search.Get("title"))
	require.Equal(t, "NB", search.Get("site"))

	confirm := portal.submits[1].Values
	require.Equal(t, "NB-204", confirm.Get("selectedroom"),
		"the first offered room in document order must be selected")
}

func TestAutomatonNoRoomsFound(t *testing.T) {
	cleanup := telemetry.SetupForTesting(t, "test:lib/scrapers/rooms")
	defer cleanup()

	portal := newFakePortal()
	portal.onSubmit = func(form browser.Form) (string, string, error) {
		return "/bookings/search", emptyResultsPage, nil
	}

	a := New(portal, fastAutomatonOptions())
	_, err := a.Run(context.Background(), mustRequest(t))
	require.ErrorIs(t, err, ErrNoRoomsFound)
	require.Equal(t, StateNoRoomsFound, a.State())

	// the slot is named so the operator can retry a different one
	require.Contains(t, err.Error(), "North Building")
	require.Contains(t, err.Error(), "25/11/2025")

	require.Len(t, portal.submits, 1, "nothing may be booked when no room is offered")
}

func TestAutomatonBookingRejected(t *testing.T) {
	cleanup := telemetry.SetupForTesting(t, "test:lib/scrapers/rooms")
	defer cleanup()

	portal := newFakePortal()
	portal.onSubmit = func(form browser.Form) (string, string, error) {
		switch form.Action {
		case "/bookings/search":
			return "/bookings/search", resultsPage, nil
		default:
			return "/bookings/confirm", rejectedPage, nil
		}
	}

	a := New(portal, fastAutomatonOptions())
	_, err := a.Run(context.Background(), mustRequest(t))
	require.ErrorIs(t, err, ErrBookingRejected)
	require.Contains(t, err.Error(), "Room already booked for this slot")
	require.Equal(t, StateFailed, a.State())
}

func TestAutomatonConfirmationNotObserved(t *testing.T) {
	cleanup := telemetry.SetupForTesting(t, "test:lib/scrapers/rooms")
	defer cleanup()

	portal := newFakePortal()
	// the confirm response never shows either dialog, and re-fetching
	// the page does not help
	portal.pages["/bookings/confirm"] = "<html><body></body></html>"
	portal.onSubmit = func(form browser.Form) (string, string, error) {
		switch form.Action {
		case "/bookings/search":
			return "/bookings/search", resultsPage, nil
		default:
			return "/bookings/confirm", "<html><body></body></html>", nil
		}
	}

	a := New(portal, fastAutomatonOptions())
	_, err := a.Run(context.Background(), mustRequest(t))
	require.ErrorIs(t, err, ErrConfirmationNotObserved)
	require.Equal(t, StateFailed, a.State())
}

func TestAutomatonIsSingleUse(t *testing.T) {
	cleanup := telemetry.SetupForTesting(t, "test:lib/scrapers/rooms")
	defer cleanup()

	portal := newFakePortal()
	portal.onSubmit = func(form browser.Form) (string, string, error) {
		switch form.Action {
		case "/bookings/search":
			return "/bookings/search", resultsPage, nil
		default:
			return "/bookings/confirm", successPage, nil
		}
	}

	a := New(portal, fastAutomatonOptions())
	_, err := a.Run(context.Background(), mustRequest(t))
	require.NoError(t, err)

	_, err = a.Run(context.Background(), mustRequest(t))
	require.ErrorIs(t, err, ErrAlreadyRan)
	require.Len(t, portal.submits, 2, "a second run must not touch the portal")
}

package rooms

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"lbsassist/lib/browser"
	"lbsassist/lib/htmlutil"
	"lbsassist/lib/waiter"

	"github.com/PuerkitoBio/goquery"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

var tracer = otel.Tracer("lbsassist.lib.scrapers.rooms")

var (
	// ErrNoRoomsFound is the non-exceptional terminal outcome when the
	// search returns an empty result set for the requested slot.
	ErrNoRoomsFound = errors.New("no rooms available for the requested slot")
	// ErrConfirmationNotObserved means the booking was submitted but
	// neither the success nor the failure dialog appeared within the
	// wait budget. The booking may or may not have gone through.
	ErrConfirmationNotObserved = errors.New("booking confirmation was not observed")
	// ErrBookingRejected carries the portal's own failure message.
	ErrBookingRejected = errors.New("portal rejected the booking")
	// ErrAlreadyRan: an automaton instance drives one booking, once.
	ErrAlreadyRan = errors.New("booking automaton already ran")
)

type State int

const (
	StateStart State = iota
	StateSelectDateTime
	StateSelectDuration
	StateSelectAttendees
	StateEnterGroupInfo
	StateSelectBuilding
	StateSearchRooms
	StateSelectFirstAvailable
	StateConfirm
	StateDone
	StateNoRoomsFound
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateStart:
		return "start"
	case StateSelectDateTime:
		return "select_date_time"
	case StateSelectDuration:
		return "select_duration"
	case StateSelectAttendees:
		return "select_attendees"
	case StateEnterGroupInfo:
		return "enter_group_info"
	case StateSelectBuilding:
		return "select_building"
	case StateSearchRooms:
		return "search_rooms"
	case StateSelectFirstAvailable:
		return "select_first_available"
	case StateConfirm:
		return "confirm"
	case StateDone:
		return "done"
	case StateNoRoomsFound:
		return "no_rooms_found"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// portal control ids, from the booking form markup
const (
	myBookingsSelector    = "#userBookings"
	toBookingSelector     = ".toBookingPage"
	datePickerSelector    = "#bookingdatepicker"
	startHourSelector     = "#starthourbox"
	startMinutesSelector  = "#startminutesbox"
	durationSelector      = "#durationbox"
	attendeesSelector     = "#noofattendees"
	titleSelector         = "#meetingTitlebox"
	siteSelector          = "#sitebox"
	resultsSelector       = "#availblerooms"
	roomRadioSelector     = "input.selectedRoom"
	bookButtonSelector    = "#bookButton"
	successDialogSelector = "#bookingSuccessfulDialog"
	failedDialogSelector  = "#bookingFailedDialog"
	failedMessageSelector = "#failedBookingMessage"
)

const portalDateLayout = "02/01/2006"

type Options struct {
	// RootURL is the booking portal's landing page.
	RootURL string
	// ControlWait gates each form control becoming available.
	ControlWait waiter.Policy
	// ResultsWait gates the room search results. The search is the
	// slowest step, so this gets the widest budget.
	ResultsWait waiter.Policy
	// ConfirmWait gates the success/failure dialog after submission.
	ConfirmWait waiter.Policy
}

// Automaton walks the booking form state machine from Start to exactly
// one of Done, NoRoomsFound or Failed. It is single-use: the browsing
// context it mutates cannot be rewound.
type Automaton struct {
	br    browser.Browser
	opts  Options
	state State
	ran   bool
}

func New(br browser.Browser, opts Options) *Automaton {
	if opts.ControlWait.Attempts == 0 {
		opts.ControlWait = waiter.Policy{
			Attempts:     4,
			InitialDelay: time.Second,
			MaxDelay:     time.Second * 5,
			Multiplier:   2,
		}
	}
	if opts.ResultsWait.Attempts == 0 {
		opts.ResultsWait = waiter.Policy{
			Attempts:     6,
			InitialDelay: time.Second * 2,
			MaxDelay:     time.Second * 15,
			Multiplier:   2,
		}
	}
	if opts.ConfirmWait.Attempts == 0 {
		opts.ConfirmWait = waiter.Policy{
			Attempts:     5,
			InitialDelay: time.Second,
			MaxDelay:     time.Second * 8,
			Multiplier:   2,
		}
	}
	return &Automaton{br: br, opts: opts, state: StateStart}
}

// State reports the machine's current (or terminal) state.
func (a *Automaton) State() State {
	return a.state
}

// Run executes the booking. Exactly one terminal state is reached:
// Done with a Result, NoRoomsFound (wrapping ErrNoRoomsFound), or
// Failed. Run refuses to execute twice on the same instance.
func (a *Automaton) Run(ctx context.Context, req Request) (Result, error) {
	ctx, span := tracer.Start(ctx, "Run")
	defer span.End()
	span.SetAttributes(
		attribute.String("building", string(req.Building)),
		attribute.String("date", req.Date.Format(portalDateLayout)),
		attribute.String("start", req.Start),
	)

	if a.ran {
		return Result{}, ErrAlreadyRan
	}
	a.ran = true

	result, err := a.run(ctx, req)
	switch {
	case err == nil:
		a.transition(ctx, StateDone)
	case errors.Is(err, ErrNoRoomsFound):
		a.transition(ctx, StateNoRoomsFound)
		span.RecordError(err)
	default:
		a.transition(ctx, StateFailed)
		span.RecordError(err)
		span.SetStatus(codes.Error, "booking failed")
	}
	return result, err
}

func (a *Automaton) transition(ctx context.Context, next State) {
	slog.DebugContext(ctx, "booking state transition",
		"from", a.state.String(), "to", next.String())
	a.state = next
}

func (a *Automaton) run(ctx context.Context, req Request) (Result, error) {
	if err := a.br.Navigate(ctx, a.opts.RootURL); err != nil {
		return Result{}, fmt.Errorf("failed to open booking portal: %w", err)
	}
	if err := a.followControl(ctx, myBookingsSelector, "my bookings control"); err != nil {
		return Result{}, err
	}
	if err := a.followControl(ctx, toBookingSelector, "new booking control"); err != nil {
		return Result{}, err
	}

	form, err := a.fillForm(ctx, req)
	if err != nil {
		return Result{}, err
	}

	a.transition(ctx, StateSearchRooms)
	if err := a.br.Submit(ctx, form); err != nil {
		return Result{}, fmt.Errorf("failed to submit room search: %w", err)
	}
	if err := a.waitRendered(ctx, resultsSelector, "room search results", a.opts.ResultsWait); err != nil {
		return Result{}, err
	}

	a.transition(ctx, StateSelectFirstAvailable)
	roomName, roomField, roomValue, err := a.firstAvailableRoom(req)
	if err != nil {
		return Result{}, err
	}

	a.transition(ctx, StateConfirm)
	if err := a.confirm(ctx, roomField, roomValue); err != nil {
		return Result{}, err
	}

	return Result{
		RoomName:      roomName,
		Date:          req.Date,
		Start:         req.Start,
		DurationHours: req.DurationHours,
		Title:         req.Title(),
	}, nil
}

// followControl waits for an anchor-like control to render, then
// navigates to its href.
func (a *Automaton) followControl(ctx context.Context, selector, what string) error {
	if err := a.waitRendered(ctx, selector, what, a.opts.ControlWait); err != nil {
		return err
	}
	doc, err := a.br.Document()
	if err != nil {
		return err
	}
	href, ok := doc.Find(selector).First().Attr("href")
	if !ok || href == "" {
		return fmt.Errorf("%s has no destination", what)
	}
	return a.br.Navigate(ctx, href)
}

// fillForm walks the SelectDateTime..SelectBuilding states, verifying
// each control is present before writing its value into the form.
func (a *Automaton) fillForm(ctx context.Context, req Request) (browser.Form, error) {
	if err := a.waitRendered(ctx, datePickerSelector, "booking form", a.opts.ControlWait); err != nil {
		return browser.Form{}, err
	}
	doc, err := a.br.Document()
	if err != nil {
		return browser.Form{}, err
	}
	form, err := browser.ParseForm(doc, "form")
	if err != nil {
		return browser.Form{}, fmt.Errorf("booking form not parseable: %w", err)
	}

	hour, minute := splitClock(req.Start)

	a.transition(ctx, StateSelectDateTime)
	if err := setControl(doc, form, datePickerSelector, req.Date.Format(portalDateLayout)); err != nil {
		return browser.Form{}, err
	}
	if err := setControl(doc, form, startHourSelector, hour); err != nil {
		return browser.Form{}, err
	}
	if err := setControl(doc, form, startMinutesSelector, minute); err != nil {
		return browser.Form{}, err
	}

	a.transition(ctx, StateSelectDuration)
	minutes := strconv.Itoa(req.DurationMinutes())
	if err := setOption(doc, form, durationSelector, minutes); err != nil {
		return browser.Form{}, err
	}

	a.transition(ctx, StateSelectAttendees)
	if err := setControl(doc, form, attendeesSelector, strconv.Itoa(req.Attendees)); err != nil {
		return browser.Form{}, err
	}

	a.transition(ctx, StateEnterGroupInfo)
	if err := setControl(doc, form, titleSelector, req.Title()); err != nil {
		return browser.Form{}, err
	}

	a.transition(ctx, StateSelectBuilding)
	code, err := req.Building.Code()
	if err != nil {
		return browser.Form{}, err
	}
	if err := setOption(doc, form, siteSelector, code); err != nil {
		return browser.Form{}, err
	}

	return form, nil
}

// firstAvailableRoom picks the first offered room radio in document
// order. Zero offered rooms is the NoRoomsFound outcome, not a fault.
func (a *Automaton) firstAvailableRoom(req Request) (name, field, value string, err error) {
	doc, err := a.br.Document()
	if err != nil {
		return "", "", "", err
	}

	radio := doc.Find(resultsSelector).Find(roomRadioSelector).First()
	if radio.Length() == 0 {
		radio = doc.Find(roomRadioSelector).First()
	}
	if radio.Length() == 0 {
		return "", "", "", fmt.Errorf(
			"%w: %s on %s at %s",
			ErrNoRoomsFound, string(req.Building),
			req.Date.Format(portalDateLayout), req.Start,
		)
	}

	field = radio.AttrOr("name", "selectedRoom")
	value = radio.AttrOr("value", "")
	if value == "" {
		return "", "", "", fmt.Errorf("room option carries no value")
	}

	name = roomLabel(doc, radio)
	if name == "" {
		name = value
	}
	return name, field, value, nil
}

// roomLabel resolves the human-readable room name for a radio, via its
// <label for=...> when present.
func roomLabel(doc *goquery.Document, radio *goquery.Selection) string {
	if id, ok := radio.Attr("id"); ok && id != "" {
		label := doc.Find(fmt.Sprintf("label[for=%q]", id))
		if label.Length() > 0 {
			return htmlutil.CleanText(label.Text())
		}
	}
	return htmlutil.CleanText(radio.Parent().Text())
}

// confirm submits the selected room and waits for the portal to show
// its verdict. No dialog within budget means the outcome is unknown.
func (a *Automaton) confirm(ctx context.Context, roomField, roomValue string) error {
	doc, err := a.br.Document()
	if err != nil {
		return err
	}
	form, err := browser.ParseForm(doc, "form")
	if err != nil {
		return fmt.Errorf("booking confirmation form not parseable: %w", err)
	}
	form.Values.Set(roomField, roomValue)

	if err := a.br.Submit(ctx, form); err != nil {
		return fmt.Errorf("failed to submit booking: %w", err)
	}

	err = a.waitRendered(
		ctx,
		successDialogSelector+", "+failedDialogSelector,
		"booking verdict dialog",
		a.opts.ConfirmWait,
	)
	if err != nil {
		if errors.Is(err, waiter.ErrExhausted) {
			return fmt.Errorf("%w: %v", ErrConfirmationNotObserved, err)
		}
		return err
	}

	doc, err = a.br.Document()
	if err != nil {
		return err
	}
	if doc.Find(successDialogSelector).Length() > 0 {
		return nil
	}
	message := htmlutil.CleanText(doc.Find(failedMessageSelector).Text())
	if message == "" {
		message = "no reason given"
	}
	return fmt.Errorf("%w: %s", ErrBookingRejected, message)
}

// waitRendered polls for the selector, re-fetching the current page
// between attempts since content may render late.
func (a *Automaton) waitRendered(ctx context.Context, selector, what string, p waiter.Policy) error {
	first := true
	return waiter.Await(ctx, what, p, func(ctx context.Context) (bool, error) {
		if !first {
			if err := a.br.Navigate(ctx, a.br.CurrentURL().String()); err != nil {
				return false, err
			}
		}
		first = false

		doc, err := a.br.Document()
		if err != nil {
			return false, err
		}
		return doc.Find(selector).Length() > 0, nil
	})
}

// setControl verifies the control exists on the page and writes its
// value into the form under the control's own field name.
func setControl(doc *goquery.Document, form browser.Form, selector, value string) error {
	sel := doc.Find(selector).First()
	if sel.Length() == 0 {
		return fmt.Errorf("booking control missing: %s", selector)
	}
	form.Values.Set(fieldName(sel, selector), value)
	return nil
}

// setOption is setControl for <select> controls: the value must be one
// of the offered options.
func setOption(doc *goquery.Document, form browser.Form, selector, value string) error {
	sel := doc.Find(selector).First()
	if sel.Length() == 0 {
		return fmt.Errorf("booking control missing: %s", selector)
	}
	option := sel.Find(fmt.Sprintf("option[value=%q]", value))
	if option.Length() == 0 {
		return fmt.Errorf("control %s offers no option %q", selector, value)
	}
	form.Values.Set(fieldName(sel, selector), value)
	return nil
}

func fieldName(sel *goquery.Selection, selector string) string {
	if name := sel.AttrOr("name", ""); name != "" {
		return name
	}
	// controls on this portal are addressed by id; fall back to it
	return sel.AttrOr("id", selector)
}

func splitClock(start string) (hour, minute string) {
	for i := 0; i < len(start); i++ {
		if start[i] == ':' {
			return start[:i], start[i+1:]
		}
	}
	return start, "00"
}

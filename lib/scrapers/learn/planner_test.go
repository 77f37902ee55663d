package learn

import (
	"strings"
	"testing"
	"time"

	"lbsassist/lib/telemetry"
	"lbsassist/lib/timezone"

	"github.com/PuerkitoBio/goquery"
	"github.com/stretchr/testify/require"
)

// agenda view as the portal renders it: day headings followed by item
// containers, each item carrying both the screen-reader full text and
// the visually formatted fragments
const agendaFixture = `
<html><body><div id="agenda">
	<div class="agenda-day">
		<h3 class="agenda-date"><span aria-hidden="true">Tuesday, 25 November 2025</span></h3>
	</div>
	<div class="agenda-event__container"><ul>
		<li class="agenda-event__item">
			<a href="/mod/assign/view.php?id=101">
				<i class="icon icon-assignment"></i>
				<span class="screenreader-only">Assignment Corporate Finance Problem Set 2, due Tuesday, 25 November 2025 16:00</span>
				<span class="agenda-event__title" aria-hidden="true">Corporate Finance Problem Set 2</span>
				<div class="agenda-event__time" aria-hidden="true">Due 16:00</div>
				<span class="screenreader-only">Calendar Corporate Finance</span>
			</a>
		</li>
		<li class="agenda-event__item">
			<a href="/mod/quiz/view.php?id=102">
				<i class="icon icon-quiz"></i>
				<span class="screenreader-only">Quiz Data Analytics Quiz 3, due Tuesday, 25 November 2025 09:00</span>
				<span class="agenda-event__title" aria-hidden="true">Data Analytics Quiz 3</span>
				<div class="agenda-event__time" aria-hidden="true">Due 09:00</div>
				<span class="screenreader-only">Calendar Data Analytics</span>
			</a>
		</li>
		<li class="agenda-event__item">
			<a href="/calendar/event?id=103">
				<i class="icon icon-calendar-month"></i>
				<span class="screenreader-only">Calendar event Study group sync, starts at Tuesday, 25 November 2025 18:00</span>
				<span class="agenda-event__title" aria-hidden="true">Study group sync</span>
				<div class="agenda-event__time" aria-hidden="true">Starts at 18:00</div>
				<div class="agenda-event__location" aria-hidden="true">NB Room 204</div>
				<span class="screenreader-only">Calendar Leadership Launch</span>
			</a>
		</li>
	</ul></div>

	<div class="agenda-day">
		<h3 class="agenda-date"><span aria-hidden="true">Friday, 28 November 2025</span></h3>
	</div>
	<div class="agenda-event__container"><ul>
		<li class="agenda-event__item">
			<a href="/mod/assign/view.php?id=101">
				<i class="icon icon-assignment"></i>
				<span class="screenreader-only">Assignment Corporate Finance Problem Set 2, due Tuesday, 25 November 2025 16:00</span>
				<span class="agenda-event__title" aria-hidden="true">Corporate Finance Problem Set 2</span>
				<div class="agenda-event__time" aria-hidden="true">Due 16:00</div>
				<span class="screenreader-only">Calendar Corporate Finance</span>
			</a>
		</li>
		<li class="agenda-event__item">
			<a href="/mod/quiz/view.php?id=104">
				<i class="icon icon-quiz"></i>
				<span class="agenda-event__title" aria-hidden="true">Strategy Readiness Check</span>
				<div class="agenda-event__time" aria-hidden="true">Due 14:30</div>
				<span class="screenreader-only">Calendar Strategy</span>
			</a>
		</li>
		<li class="agenda-event__item">
			<a href="/mod/assign/view.php?id=105">
				<span class="agenda-event__title" aria-hidden="true">Broken item without a deadline</span>
			</a>
		</li>
	</ul></div>

	<div class="agenda-day">
		<h3 class="agenda-date"><span aria-hidden="true">Wednesday, 3 December 2025</span></h3>
	</div>
	<div class="agenda-event__container"><ul>
		<li class="agenda-event__item">
			<a href="/mod/assign/view.php?id=106">
				<i class="icon icon-assignment"></i>
				<span class="screenreader-only">Assignment Marketing Plan Draft, due Wednesday, 3 December 2025 10:00</span>
				<span class="agenda-event__title" aria-hidden="true">Marketing Plan Draft</span>
				<div class="agenda-event__time" aria-hidden="true">Due 10:00</div>
				<span class="screenreader-only">Calendar Marketing</span>
			</a>
		</li>
	</ul></div>
</div></body></html>`

func parseFixture(t *testing.T, html string) *goquery.Document {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	require.NoError(t, err)
	return doc
}

func TestExtractAssignments(t *testing.T) {
	cleanup := telemetry.SetupForTesting(t, "test:lib/scrapers/learn")
	defer cleanup()

	doc := parseFixture(t, agendaFixture)
	got := ExtractAssignments(doc, testNow, 7)

	// the duplicate problem set collapses, the malformed item is
	// skipped, the December item falls outside the window
	require.Len(t, got, 4)

	// ascending by deadline
	require.Equal(t, "Data Analytics Quiz 3", got[0].Title)
	require.Equal(t, "Corporate Finance Problem Set 2", got[1].Title)
	require.Equal(t, "Study group sync", got[2].Title)
	require.Equal(t, "Strategy Readiness Check", got[3].Title)

	quiz := got[0]
	require.Equal(t, KindQuiz, quiz.Kind)
	require.Equal(t, "Data Analytics", quiz.Course)
	require.Equal(t, "/mod/quiz/view.php?id=102", quiz.URL)
	require.True(t, quiz.Due.Equal(
		time.Date(2025, time.November, 25, 9, 0, 0, 0, timezone.Location)))

	assignment := got[1]
	require.Equal(t, KindAssignment, assignment.Kind)
	require.Equal(t, "Corporate Finance", assignment.Course)

	// events keep their kind, course and location despite the
	// "Calendar event" full text sharing the course span prefix
	event := got[2]
	require.Equal(t, KindEvent, event.Kind)
	require.Equal(t, "Leadership Launch", event.Course)
	require.Equal(t, "NB Room 204", event.Location)
	require.True(t, event.Due.Equal(
		time.Date(2025, time.November, 25, 18, 0, 0, 0, timezone.Location)))

	// the readiness check has no full text: kind comes from the icon,
	// the deadline from the time fragment plus the day heading
	fallback := got[3]
	require.Equal(t, KindQuiz, fallback.Kind)
	require.Equal(t, "Strategy", fallback.Course)
	require.True(t, fallback.Due.Equal(
		time.Date(2025, time.November, 28, 14, 30, 0, 0, timezone.Location)))
}

func TestExtractAssignmentsWindowIsHalfOpen(t *testing.T) {
	cleanup := telemetry.SetupForTesting(t, "test:lib/scrapers/learn")
	defer cleanup()

	const fixture = `
<html><body>
	<div class="agenda-event__container"><ul>
		<li class="agenda-event__item">
			<span class="screenreader-only">Assignment At The Lower Bound, due 24 November 2025 12:00</span>
		</li>
		<li class="agenda-event__item">
			<span class="screenreader-only">Assignment Just Before The Upper Bound, due 1 December 2025 11:59</span>
		</li>
		<li class="agenda-event__item">
			<span class="screenreader-only">Assignment At The Upper Bound, due 1 December 2025 12:00</span>
		</li>
		<li class="agenda-event__item">
			<span class="screenreader-only">Assignment In The Past, due 23 November 2025 12:00</span>
		</li>
	</ul></div>
</body></html>`

	doc := parseFixture(t, fixture)
	got := ExtractAssignments(doc, testNow, 7)

	require.Len(t, got, 2)
	require.Equal(t, "At The Lower Bound", got[0].Title)
	require.Equal(t, "Just Before The Upper Bound", got[1].Title)
}

func TestExtractAssignmentsStableTieOrder(t *testing.T) {
	cleanup := telemetry.SetupForTesting(t, "test:lib/scrapers/learn")
	defer cleanup()

	const fixture = `
<html><body>
	<div class="agenda-event__container"><ul>
		<li class="agenda-event__item">
			<span class="screenreader-only">Assignment First In Document, due 25 November 2025 16:00</span>
		</li>
		<li class="agenda-event__item">
			<span class="screenreader-only">Assignment Second In Document, due 25 November 2025 16:00</span>
		</li>
	</ul></div>
</body></html>`

	doc := parseFixture(t, fixture)
	got := ExtractAssignments(doc, testNow, 7)

	require.Len(t, got, 2)
	require.Equal(t, "First In Document", got[0].Title)
	require.Equal(t, "Second In Document", got[1].Title)
}

func TestExtractAssignmentsEmptyDocument(t *testing.T) {
	cleanup := telemetry.SetupForTesting(t, "test:lib/scrapers/learn")
	defer cleanup()

	doc := parseFixture(t, "<html><body><p>nothing here</p></body></html>")
	require.Empty(t, ExtractAssignments(doc, testNow, 7))
}

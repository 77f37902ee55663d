package learn

import (
	"fmt"
	"log/slog"
	"regexp"
	"sort"
	"strings"
	"time"

	"lbsassist/lib/htmlutil"

	"github.com/PuerkitoBio/goquery"
)

type Kind string

const (
	KindAssignment Kind = "Assignment"
	KindQuiz       Kind = "Quiz"
	KindEvent      Kind = "Event"
)

// Assignment is one planner item resolved to an absolute deadline.
// Immutable once extracted.
type Assignment struct {
	Title    string
	Course   string
	Kind     Kind
	Due      time.Time
	Location string
	URL      string
}

// the screen-reader full text is the authoritative source for
// kind/title/due, e.g. "Quiz Finance Quiz 3, due Wednesday, 12
// November 2025 16:00"; the visually formatted fragments may omit
// information and are only a fallback
var fullTextRegex = regexp.MustCompile(
	`^(Assignment|Quiz|Calendar event|Event)[,:]?\s+(.+?),\s+(?:due|starts at)\s+(.+)$`,
)

const coursePrefix = "Calendar "

func kindFromWord(word string) Kind {
	switch word {
	case "Quiz":
		return KindQuiz
	case "Calendar event", "Event":
		return KindEvent
	}
	return KindAssignment
}

func kindFromIcon(item *goquery.Selection) Kind {
	icon := item.Find(locators.itemIcon).First()
	class := icon.AttrOr("class", "")
	switch {
	case strings.Contains(class, "icon-quiz"):
		return KindQuiz
	case strings.Contains(class, "icon-calendar-month"):
		return KindEvent
	default:
		return KindAssignment
	}
}

// groupDate resolves the date-group heading enclosing the item, or a
// zero time when the heading is missing or unparseable.
func groupDate(item *goquery.Selection, now time.Time) time.Time {
	container := item.Closest(locators.agendaContainer)
	if container.Length() == 0 {
		return time.Time{}
	}
	day := container.PrevAllFiltered(locators.agendaDay).First()
	if day.Length() == 0 {
		return time.Time{}
	}
	dateSel := locators.agendaDate.find(day).First()
	if dateSel.Length() == 0 {
		return time.Time{}
	}
	date, err := parseDate(htmlutil.CleanText(dateSel.Text()), now)
	if err != nil {
		return time.Time{}
	}
	return date
}

func extractCourse(item *goquery.Selection) string {
	course := "Unknown Course"
	item.Find(locators.itemCourse).EachWithBreak(func(_ int, span *goquery.Selection) bool {
		text := htmlutil.CleanText(span.Text())
		// the full-text span also starts with "Calendar" on event items
		if fullTextRegex.MatchString(text) {
			return true
		}
		if strings.HasPrefix(text, coursePrefix) {
			course = strings.TrimSpace(strings.TrimPrefix(text, coursePrefix))
			return false
		}
		return true
	})
	return course
}

// parseItem maps one planner item fragment to an Assignment. A nil
// return with a non-nil error marks the record malformed; the caller
// skips it and keeps going.
func parseItem(item *goquery.Selection, now time.Time) (Assignment, error) {
	heading := groupDate(item, now)

	var out Assignment
	out.Course = extractCourse(item)

	if link := item.Find(locators.itemLink).First(); link.Length() > 0 {
		out.URL = link.AttrOr("href", "")
	}
	if loc := locators.itemLocation.find(item).First(); loc.Length() > 0 {
		out.Location = htmlutil.CleanText(loc.Text())
	}

	// authoritative path: the screen-reader full text
	var fullText string
	item.Find(locators.itemFullText).EachWithBreak(func(_ int, span *goquery.Selection) bool {
		text := htmlutil.CleanText(span.Text())
		if fullTextRegex.MatchString(text) {
			fullText = text
			return false
		}
		return true
	})
	if fullText != "" {
		groups := fullTextRegex.FindStringSubmatch(fullText)
		due, err := parseWhen(groups[3], heading, now)
		if err != nil {
			return Assignment{}, fmt.Errorf("malformed due fragment: %w", err)
		}
		out.Kind = kindFromWord(groups[1])
		out.Title = groups[2]
		out.Due = due
		return out, nil
	}

	// fallback path: visible fragments
	title := locators.itemTitle.find(item).First()
	if title.Length() == 0 {
		return Assignment{}, fmt.Errorf("item has neither full text nor a title fragment")
	}
	out.Kind = kindFromIcon(item)
	out.Title = htmlutil.CleanText(title.Text())

	timeSel := locators.itemTime.find(item).First()
	if timeSel.Length() == 0 {
		return Assignment{}, fmt.Errorf("item %q has no time fragment", out.Title)
	}
	due, err := parseWhen(htmlutil.CleanText(timeSel.Text()), heading, now)
	if err != nil {
		return Assignment{}, fmt.Errorf("malformed time on %q: %w", out.Title, err)
	}
	out.Due = due
	return out, nil
}

// ExtractAssignments maps the agenda document's planner items into
// assignment records whose resolved deadline lies in the half-open
// window [now, now+windowDays). Output is sorted ascending by
// deadline, ties broken by document order. Malformed items are
// skipped; a document with no item container at all is an empty, valid
// result.
func ExtractAssignments(doc *goquery.Document, now time.Time, windowDays int) []Assignment {
	windowEnd := now.AddDate(0, 0, windowDays)

	var out []Assignment
	seen := map[string]bool{}

	doc.Find(locators.agendaItem).Each(func(i int, item *goquery.Selection) {
		record, err := parseItem(item, now)
		if err != nil {
			slog.Warn("skipping malformed planner item", "index", i, "err", err)
			return
		}

		if record.Due.Before(now) || !record.Due.Before(windowEnd) {
			return
		}

		// the agenda view repeats items across day groups
		key := fmt.Sprintf("%s|%s|%s", record.Title, record.Due.Format(time.RFC3339), record.Course)
		if seen[key] {
			return
		}
		seen[key] = true

		out = append(out, record)
	})

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Due.Before(out[j].Due)
	})
	return out
}

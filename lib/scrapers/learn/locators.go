package learn

import "github.com/PuerkitoBio/goquery"

// The portal's markup drifts between terms. Every field is located
// through a primary/fallback selector pair kept in a versioned table,
// so drift degrades to a skipped field or a placeholder instead of a
// broken traversal.
type fieldLocator struct {
	primary  string
	fallback string
}

func (l fieldLocator) find(sel *goquery.Selection) *goquery.Selection {
	found := sel.Find(l.primary)
	if found.Length() > 0 || l.fallback == "" {
		return found
	}
	return sel.Find(l.fallback)
}

type locatorTable struct {
	version string

	// planner agenda view
	agendaItem      string
	agendaContainer string
	agendaDay       string
	agendaDate      fieldLocator
	itemFullText    string // screen-reader full text, authoritative
	itemTitle       fieldLocator
	itemTime        fieldLocator
	itemLocation    fieldLocator
	itemLink        string
	itemIcon        string
	itemCourse      string // screen-reader "Calendar <course>" span

	// groups and roster
	groupAnchor string
	rosterName  fieldLocator

	// class list profile cards
	profileCard       string
	profileName       fieldLocator
	profileOrigin     fieldLocator
	profileEducation  fieldLocator
	profileOccupation fieldLocator
}

var locatorsV1 = locatorTable{
	version: "v1",

	agendaItem:      "li.agenda-event__item",
	agendaContainer: "div.agenda-event__container",
	agendaDay:       "div.agenda-day",
	agendaDate: fieldLocator{
		primary:  `h3.agenda-date span[aria-hidden="true"]`,
		fallback: "h3.agenda-date",
	},
	itemFullText: "span.screenreader-only",
	itemTitle: fieldLocator{
		primary:  "span.agenda-event__title",
		fallback: "a",
	},
	itemTime: fieldLocator{
		primary:  "div.agenda-event__time",
		fallback: "span.agenda-event__time",
	},
	itemLocation: fieldLocator{
		primary:  "div.agenda-event__location",
		fallback: "",
	},
	itemLink: "a",
	itemIcon: "i",

	itemCourse: "span.screenreader-only",

	groupAnchor: "a",
	rosterName: fieldLocator{
		primary:  "div.student_roster a.user_name",
		fallback: "a.user_name",
	},

	profileCard: "li.profile-box",
	profileName: fieldLocator{
		primary:  `h5[name="displayName"]`,
		fallback: `div[name="displayName"]`,
	},
	profileOrigin: fieldLocator{
		primary:  `div[name="nationality-country"]`,
		fallback: "",
	},
	profileEducation: fieldLocator{
		primary:  `div[name="education"]`,
		fallback: "",
	},
	profileOccupation: fieldLocator{
		primary:  `div[name="jobTitle-employerName"]`,
		fallback: "",
	},
}

// the active table; bump when the portal ships a redesign
var locators = locatorsV1

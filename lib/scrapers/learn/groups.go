package learn

import (
	"context"
	"log/slog"
	"strings"

	"lbsassist/lib/htmlutil"

	"github.com/PuerkitoBio/goquery"
)

// ProfilePlaceholder stands in for any profile field the roster does
// not expose, keeping the member schema stable for downstream
// consumers.
const ProfilePlaceholder = "TBD — needs access"

// the label distinguishing study groups from the portal's other group
// kinds (course groups, societies, ...)
const studyGroupLabel = "Study Group"

type Group struct {
	Name string
	Href string
}

// Member always carries all four fields; optional ones fall back to
// ProfilePlaceholder rather than being omitted.
type Member struct {
	Name               string
	Origin             string
	Education          string
	PreviousOccupation string
}

type Profile struct {
	Origin             string
	Education          string
	PreviousOccupation string
}

// FindStudyGroup picks the first group link labeled as a study group
// out of the groups page.
func FindStudyGroup(ctx context.Context, doc *goquery.Document) (Group, bool) {
	anchors := htmlutil.GetAnchors(ctx, doc.Find(locators.groupAnchor))
	for _, a := range anchors {
		if strings.Contains(a.Name, studyGroupLabel) {
			return Group{Name: a.Name, Href: a.Href}, true
		}
	}
	return Group{}, false
}

// ExtractMemberNames enumerates member name fragments from a group
// roster document, in document order. An absent roster container is
// an empty, valid result.
func ExtractMemberNames(doc *goquery.Document) []string {
	var names []string
	locators.rosterName.find(doc.Selection).Each(func(_ int, link *goquery.Selection) {
		name := htmlutil.CleanText(link.Text())
		if name != "" {
			names = append(names, name)
		}
	})
	return names
}

// ExtractProfiles reads the class-list companion document's profile
// cards into a name-keyed map. A card missing its name fragment is
// skipped; any other missing field becomes the placeholder so that
// one malformed card never aborts the rest.
func ExtractProfiles(doc *goquery.Document) map[string]Profile {
	profiles := map[string]Profile{}

	doc.Find(locators.profileCard).Each(func(i int, card *goquery.Selection) {
		nameSel := locators.profileName.find(card).First()
		if nameSel.Length() == 0 {
			slog.Warn("skipping profile card without a name", "index", i)
			return
		}
		name := htmlutil.CleanText(nameSel.Text())
		if name == "" {
			slog.Warn("skipping profile card with an empty name", "index", i)
			return
		}

		profiles[name] = Profile{
			Origin:             profileField(card, locators.profileOrigin),
			Education:          profileField(card, locators.profileEducation),
			PreviousOccupation: profileField(card, locators.profileOccupation),
		}
	})

	return profiles
}

func profileField(card *goquery.Selection, loc fieldLocator) string {
	sel := loc.find(card).First()
	if sel.Length() == 0 {
		return ProfilePlaceholder
	}
	text := htmlutil.CleanText(sel.Text())
	if text == "" {
		return ProfilePlaceholder
	}
	return text
}

// BuildMembers joins roster names with class-list profiles. Exact
// name matches win; otherwise a case-insensitive containment match is
// attempted (the roster and the class list disagree on middle names);
// members with no profile at all get placeholders across the board.
func BuildMembers(names []string, profiles map[string]Profile) []Member {
	members := make([]Member, 0, len(names))
	for _, name := range names {
		profile, ok := profiles[name]
		if !ok {
			profile, ok = partialMatch(name, profiles)
		}
		if !ok {
			profile = Profile{
				Origin:             ProfilePlaceholder,
				Education:          ProfilePlaceholder,
				PreviousOccupation: ProfilePlaceholder,
			}
		}
		members = append(members, Member{
			Name:               name,
			Origin:             profile.Origin,
			Education:          profile.Education,
			PreviousOccupation: profile.PreviousOccupation,
		})
	}
	return members
}

func partialMatch(name string, profiles map[string]Profile) (Profile, bool) {
	lower := strings.ToLower(name)
	for candidate, profile := range profiles {
		cl := strings.ToLower(candidate)
		if strings.Contains(cl, lower) || strings.Contains(lower, cl) {
			return profile, true
		}
	}
	return Profile{}, false
}

package learn

import (
	"context"
	"fmt"
	"strings"
	"time"

	"lbsassist/lib/browser"
	"lbsassist/lib/htmlutil"
	"lbsassist/lib/waiter"

	"github.com/PuerkitoBio/goquery"
	"github.com/hashicorp/golang-lru/v2/expirable"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

var tracer = otel.Tracer("lbsassist.scrapers.learn")

// Client drives the learning portal through an authenticated browsing
// context. Pages are cached briefly since the read-only workflow
// visits some of them more than once per run.
type Client struct {
	br    browser.Browser
	opts  ClientOptions
	cache *expirable.LRU[string, *goquery.Document]
}

type ClientOptions struct {
	// portal root, e.g. https://learning.london.edu
	RootURL string
	// wait budget applied to asynchronously rendered containers
	RenderWait waiter.Policy
}

func NewClient(b browser.Browser, opts ClientOptions) Client {
	if opts.RenderWait.Attempts == 0 {
		opts.RenderWait = waiter.Policy{
			Attempts:     4,
			InitialDelay: time.Second,
			MaxDelay:     5 * time.Second,
			Multiplier:   2,
		}
	}
	return Client{
		br:    b,
		opts:  opts,
		cache: expirable.NewLRU[string, *goquery.Document](64, nil, 15*time.Minute),
	}
}

// fetch navigates to the target and polls until readySelector has
// rendered. On exhaustion the last document is still returned along
// with the error, since an absent container may legitimately mean an
// empty result rather than a failure.
func (c Client) fetch(ctx context.Context, target, readySelector, what string) (*goquery.Document, error) {
	ctx, span := tracer.Start(ctx, "fetch")
	defer span.End()
	span.SetAttributes(
		attribute.String("target", target),
		attribute.String("ready_selector", readySelector),
	)

	if doc, ok := c.cache.Get(target); ok {
		span.SetStatus(codes.Ok, "CACHE HIT")
		return doc, nil
	}

	var doc *goquery.Document
	err := waiter.Await(ctx, what, c.opts.RenderWait, func(ctx context.Context) (bool, error) {
		err := c.br.Navigate(ctx, target)
		if err != nil {
			return false, err
		}
		d, err := c.br.Document()
		if err != nil {
			return false, err
		}
		doc = d
		return d.Find(readySelector).Length() > 0, nil
	})
	if err != nil {
		span.RecordError(err)
		return doc, err
	}

	c.cache.Add(target, doc)
	return doc, nil
}

// Agenda loads the planner's agenda view.
func (c Client) Agenda(ctx context.Context) (*goquery.Document, error) {
	return c.fetch(
		ctx,
		c.opts.RootURL+"/calendar#view_name=agenda",
		locators.agendaItem,
		"calendar agenda render",
	)
}

// GroupsPage loads the group membership listing.
func (c Client) GroupsPage(ctx context.Context) (*goquery.Document, error) {
	return c.fetch(
		ctx,
		c.opts.RootURL+"/groups",
		locators.groupAnchor,
		"groups page render",
	)
}

// GroupRoster opens the group's people tab and returns the roster
// document.
func (c Client) GroupRoster(ctx context.Context, group Group) (*goquery.Document, error) {
	ctx, span := tracer.Start(ctx, "GroupRoster")
	defer span.End()
	span.SetAttributes(attribute.String("group", group.Name))

	groupDoc, err := c.fetch(ctx, group.Href, locators.groupAnchor, "group page render")
	if err != nil {
		return nil, err
	}

	peopleHref, ok := findAnchorByLabel(ctx, groupDoc, "People", "Members")
	if !ok {
		span.SetStatus(codes.Error, "no people tab")
		return nil, fmt.Errorf("group %q has no people tab", group.Name)
	}

	return c.fetch(ctx, peopleHref, locators.rosterName.primary, "group roster render")
}

// ClassList opens the course's class-list tool (it renders inside an
// embedded frame) and returns the student profile document.
func (c Client) ClassList(ctx context.Context, courseHref string) (*goquery.Document, error) {
	ctx, span := tracer.Start(ctx, "ClassList")
	defer span.End()

	courseDoc, err := c.fetch(ctx, courseHref, "a", "course page render")
	if err != nil {
		return nil, err
	}

	toolHref, ok := findAnchorByLabel(ctx, courseDoc, "Class List")
	if !ok {
		span.SetStatus(codes.Error, "no class list tab")
		return nil, fmt.Errorf("course has no class list tab")
	}

	toolDoc, err := c.fetch(ctx, toolHref, "iframe, "+locators.profileCard, "class list tool render")
	if err != nil {
		return nil, err
	}

	// the tool usually embeds its content in a frame; follow it
	if frame := toolDoc.Find("iframe").First(); frame.Length() > 0 {
		src := frame.AttrOr("src", "")
		if src == "" {
			return nil, fmt.Errorf("class list frame has no source")
		}
		toolDoc, err = c.fetch(ctx, src, "a, "+locators.profileCard, "class list frame render")
		if err != nil {
			return nil, err
		}
	}

	// the student tab may need to be opened before cards render
	if toolDoc.Find(locators.profileCard).Length() == 0 {
		studentsHref, ok := findAnchorByLabel(ctx, toolDoc, "Students")
		if !ok {
			return nil, fmt.Errorf("class list has neither profiles nor a students tab")
		}
		return c.fetch(ctx, studentsHref, locators.profileCard, "student list render")
	}

	return toolDoc, nil
}

func findAnchorByLabel(ctx context.Context, doc *goquery.Document, labels ...string) (string, bool) {
	anchors := htmlutil.GetAnchors(ctx, doc.Find("a"))
	for _, label := range labels {
		for _, a := range anchors {
			if strings.Contains(a.Name, label) && a.Href != "" {
				return a.Href, true
			}
		}
	}
	return "", false
}

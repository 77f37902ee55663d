// Package studygroup orchestrates one read-only reporting run against
// the learning portal: authenticate, pull the week's planner, then
// resolve the operator's study group and its member profiles.
package studygroup

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"lbsassist/lib/browser"
	"lbsassist/lib/navigator"
	"lbsassist/lib/scrapers/learn"
	"lbsassist/lib/session"
	"lbsassist/lib/timezone"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

var tracer = otel.Tracer("lbsassist.services.studygroup")

type Config struct {
	// PortalURL is the learning portal root, e.g. https://learning.london.edu.
	PortalURL string `json:"portal_url"`
	// Domain keys the saved session and the authenticated-URL check.
	Domain string `json:"domain"`
	// CourseHref locates the course whose class list carries the
	// member profiles. Optional; without it profiles stay placeholders.
	CourseHref string `json:"course_href"`
	// WindowDays bounds the planner lookahead, default 7.
	WindowDays int `json:"window_days"`
	// LoginTimeoutSeconds bounds the manual login wait, default 300.
	LoginTimeoutSeconds int `json:"login_timeout_seconds"`
}

// Report is the run's complete output: upcoming work plus the resolved
// study group membership.
type Report struct {
	GeneratedAt time.Time
	GroupName   string
	Assignments []learn.Assignment
	Events      []learn.Assignment
	Members     []learn.Member
}

type Service struct {
	br    browser.Browser
	store session.Store
	cfg   Config
}

func New(br browser.Browser, store session.Store, cfg Config) Service {
	if cfg.WindowDays <= 0 {
		cfg.WindowDays = 7
	}
	return Service{br: br, store: store, cfg: cfg}
}

// Run performs the full reporting workflow. Authentication and
// planner extraction failures are fatal; a missing class list only
// degrades member profiles to placeholders.
func (s Service) Run(ctx context.Context, onProgress func(navigator.Progress)) (Report, error) {
	ctx, span := tracer.Start(ctx, "Run")
	defer span.End()

	nav := navigator.New(s.br, s.store, navigator.Options{
		RootURL:      s.cfg.PortalURL,
		Domain:       s.cfg.Domain,
		LoginTimeout: time.Duration(s.cfg.LoginTimeoutSeconds) * time.Second,
		OnProgress:   onProgress,
	})
	if err := nav.Authenticate(ctx); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "authentication failed")
		return Report{}, err
	}

	client := learn.NewClient(s.br, learn.ClientOptions{RootURL: s.cfg.PortalURL})
	now := timezone.Now()

	assignments, events, err := s.planner(ctx, client, now)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "planner extraction failed")
		return Report{}, err
	}

	groupName, members, err := s.group(ctx, client)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "group resolution failed")
		return Report{}, err
	}

	span.SetAttributes(
		attribute.Int("assignments", len(assignments)),
		attribute.Int("events", len(events)),
		attribute.Int("members", len(members)),
	)
	return Report{
		GeneratedAt: now,
		GroupName:   groupName,
		Assignments: assignments,
		Events:      events,
		Members:     members,
	}, nil
}

// planner pulls the agenda and splits extracted items into graded work
// and plain calendar events.
func (s Service) planner(ctx context.Context, client learn.Client, now time.Time) (assignments, events []learn.Assignment, err error) {
	doc, err := client.Agenda(ctx)
	if err != nil && doc == nil {
		return nil, nil, fmt.Errorf("failed to load agenda: %w", err)
	}
	if err != nil {
		// the container never rendered; an empty agenda looks the same,
		// so extract whatever the last document holds
		slog.WarnContext(ctx, "agenda render wait exhausted, extracting from last page", "err", err)
	}

	for _, item := range learn.ExtractAssignments(doc, now, s.cfg.WindowDays) {
		if item.Kind == learn.KindEvent {
			events = append(events, item)
		} else {
			assignments = append(assignments, item)
		}
	}
	return assignments, events, nil
}

// group resolves the study group, its roster, and fleshes members out
// with class-list profiles when the course is reachable.
func (s Service) group(ctx context.Context, client learn.Client) (string, []learn.Member, error) {
	groupsDoc, err := client.GroupsPage(ctx)
	if err != nil {
		return "", nil, fmt.Errorf("failed to load groups page: %w", err)
	}

	group, ok := learn.FindStudyGroup(ctx, groupsDoc)
	if !ok {
		return "", nil, fmt.Errorf("no study group membership found")
	}
	slog.InfoContext(ctx, "study group resolved", "group", group.Name)

	rosterDoc, err := client.GroupRoster(ctx, group)
	if err != nil {
		return "", nil, fmt.Errorf("failed to load roster for %q: %w", group.Name, err)
	}
	names := learn.ExtractMemberNames(rosterDoc)

	profiles := s.profiles(ctx, client)
	return group.Name, learn.BuildMembers(names, profiles), nil
}

// profiles loads class-list profiles. Any failure here is recoverable:
// the roster names still make a useful report.
func (s Service) profiles(ctx context.Context, client learn.Client) map[string]learn.Profile {
	if s.cfg.CourseHref == "" {
		slog.InfoContext(ctx, "no course configured, member profiles left unfilled")
		return nil
	}

	doc, err := client.ClassList(ctx, s.cfg.CourseHref)
	if err != nil {
		slog.WarnContext(ctx, "class list unavailable, member profiles left unfilled", "err", err)
		return nil
	}
	return learn.ExtractProfiles(doc)
}

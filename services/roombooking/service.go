// Package roombooking orchestrates one room booking run against the
// mobile portal: authenticate, then drive the booking form automaton
// to a single terminal outcome.
package roombooking

import (
	"context"
	"time"

	"lbsassist/lib/browser"
	"lbsassist/lib/navigator"
	"lbsassist/lib/scrapers/rooms"
	"lbsassist/lib/session"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

var tracer = otel.Tracer("lbsassist.services.roombooking")

type Config struct {
	// PortalURL is the booking portal root, e.g. https://lbsmobile.london.edu.
	PortalURL string `json:"portal_url"`
	// Domain keys the saved session and the authenticated-URL check.
	Domain string `json:"domain"`
	// LoginTimeoutSeconds bounds the manual login wait, default 300.
	LoginTimeoutSeconds int `json:"login_timeout_seconds"`
	// Booking holds the raw request fields; validated before any
	// portal traffic happens.
	Booking rooms.Config `json:"booking"`
}

type Service struct {
	br    browser.Browser
	store session.Store
	cfg   Config
}

func New(br browser.Browser, store session.Store, cfg Config) Service {
	return Service{br: br, store: store, cfg: cfg}
}

// Run validates the booking request, authenticates, and executes the
// automaton exactly once. Validation failures never reach the portal.
func (s Service) Run(ctx context.Context, onProgress func(navigator.Progress)) (rooms.Result, error) {
	ctx, span := tracer.Start(ctx, "Run")
	defer span.End()

	req, err := rooms.NewRequest(s.cfg.Booking)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "invalid booking request")
		return rooms.Result{}, err
	}

	nav := navigator.New(s.br, s.store, navigator.Options{
		RootURL:      s.cfg.PortalURL,
		Domain:       s.cfg.Domain,
		LoginTimeout: time.Duration(s.cfg.LoginTimeoutSeconds) * time.Second,
		OnProgress:   onProgress,
	})
	if err := nav.Authenticate(ctx); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "authentication failed")
		return rooms.Result{}, err
	}

	automaton := rooms.New(s.br, rooms.Options{RootURL: s.cfg.PortalURL})
	result, err := automaton.Run(ctx, req)
	if err != nil {
		span.RecordError(err)
		span.SetAttributes(attribute.String("terminal_state", automaton.State().String()))
		return rooms.Result{}, err
	}

	span.SetAttributes(
		attribute.String("terminal_state", automaton.State().String()),
		attribute.String("room", result.RoomName),
	)
	return result, nil
}

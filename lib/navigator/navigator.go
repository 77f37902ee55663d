// Package navigator establishes an authenticated browsing context:
// restore a saved session if the portal still accepts it, otherwise
// hold the run open while a human completes credential entry and MFA
// out of band.
package navigator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"lbsassist/lib/browser"
	"lbsassist/lib/session"
	"lbsassist/lib/timezone"
	"lbsassist/lib/waiter"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

var tracer = otel.Tracer("lbsassist.lib.navigator")

// ErrAuthTimeout is fatal: the operator did not complete the manual
// login within the budget.
var ErrAuthTimeout = errors.New("manual login was not completed in time")

type State int

const (
	StateUnauthenticated State = iota
	StateTryRestore
	StateNeedsLogin
	StateAwaitingMFA
	StateAuthenticated
	StateAuthTimeout
)

func (s State) String() string {
	switch s {
	case StateUnauthenticated:
		return "unauthenticated"
	case StateTryRestore:
		return "try_restore"
	case StateNeedsLogin:
		return "needs_login"
	case StateAwaitingMFA:
		return "awaiting_mfa"
	case StateAuthenticated:
		return "authenticated"
	case StateAuthTimeout:
		return "auth_timeout"
	}
	return "unknown"
}

// Progress is reported to the observer on every manual-login poll so
// a CLI can show elapsed/remaining time instead of appearing hung.
type Progress struct {
	State     State
	Elapsed   time.Duration
	Remaining time.Duration
}

// URL substrings that mark an identity-provider or login page. A URL
// carrying any of these is not an authenticated portal page.
var loginMarkers = []string{"login", "auth", "microsoft", "saml"}

type Options struct {
	// portal root, e.g. https://learning.london.edu
	RootURL string
	// login entry point, defaults to RootURL
	LoginURL string
	// target domain, both the session key and the authenticated-URL check
	Domain string
	// fixed poll interval during the manual login wait, default 2s
	PollInterval time.Duration
	// manual login budget, default 300s
	LoginTimeout time.Duration
	// optional observer for manual-login progress
	OnProgress func(Progress)
}

type Navigator struct {
	browser browser.Browser
	store   session.Store
	opts    Options
	state   State
}

func New(b browser.Browser, store session.Store, opts Options) *Navigator {
	if opts.LoginURL == "" {
		opts.LoginURL = opts.RootURL
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = 2 * time.Second
	}
	if opts.LoginTimeout <= 0 {
		opts.LoginTimeout = 300 * time.Second
	}
	return &Navigator{
		browser: b,
		store:   store,
		opts:    opts,
		state:   StateUnauthenticated,
	}
}

func (n *Navigator) State() State {
	return n.state
}

func (n *Navigator) setState(ctx context.Context, s State) {
	n.state = s
	slog.DebugContext(ctx, "navigator state", "state", s.String())
}

// Authenticated reports whether the browsing context currently sits
// on an authenticated page of the target domain: the URL belongs to
// the domain and carries no identity-provider marker.
func (n *Navigator) Authenticated() bool {
	u := n.browser.CurrentURL()
	if u == nil {
		return false
	}
	if !strings.Contains(strings.ToLower(u.Host), strings.ToLower(n.opts.Domain)) {
		return false
	}
	full := strings.ToLower(u.String())
	for _, marker := range loginMarkers {
		if strings.Contains(full, marker) {
			return false
		}
	}
	return true
}

// Authenticate drives the state machine to StateAuthenticated or
// fails. Once it returns nil the browsing context is usable by the
// extractors and the form automaton; the navigator does no further
// authentication work.
func (n *Navigator) Authenticate(ctx context.Context) error {
	ctx, span := tracer.Start(ctx, "Authenticate")
	defer span.End()
	span.SetAttributes(attribute.String("domain", n.opts.Domain))

	restored := n.tryRestore(ctx)
	if restored {
		n.setState(ctx, StateAuthenticated)
		span.SetAttributes(attribute.String("path", "restore"))
		return nil
	}

	n.setState(ctx, StateNeedsLogin)
	err := n.manualLogin(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "manual login failed")
		return err
	}

	n.setState(ctx, StateAuthenticated)
	span.SetAttributes(attribute.String("path", "manual"))
	return nil
}

func (n *Navigator) tryRestore(ctx context.Context) bool {
	ctx, span := tracer.Start(ctx, "tryRestore")
	defer span.End()

	n.setState(ctx, StateTryRestore)

	sess, ok := n.store.Load(ctx, n.opts.Domain)
	if !ok {
		span.SetAttributes(attribute.Bool("session_found", false))
		return false
	}
	span.SetAttributes(attribute.Bool("session_found", true))

	root, err := url.Parse(n.opts.RootURL)
	if err != nil {
		span.RecordError(err)
		return false
	}
	n.browser.SetCookies(root, sess.Cookies)

	err = n.browser.Navigate(ctx, n.opts.RootURL)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to reach portal root")
		return false
	}

	if !n.Authenticated() {
		slog.InfoContext(
			ctx, "saved session rejected by portal",
			"domain", n.opts.Domain,
			"landed", n.browser.CurrentURL().String(),
		)
		// rejected sessions are invalidated, never repaired in place
		err := n.store.Delete(ctx, n.opts.Domain)
		if err != nil {
			slog.WarnContext(ctx, "failed to drop rejected session", "err", err)
		}
		return false
	}

	slog.InfoContext(ctx, "session restored", "domain", n.opts.Domain)
	return true
}

func (n *Navigator) manualLogin(ctx context.Context) error {
	ctx, span := tracer.Start(ctx, "manualLogin")
	defer span.End()

	err := n.browser.Navigate(ctx, n.opts.LoginURL)
	if err != nil {
		return fmt.Errorf("failed to open login entry point: %w", err)
	}

	n.setState(ctx, StateAwaitingMFA)
	slog.InfoContext(
		ctx, "waiting for the operator to complete credentials and MFA",
		"url", n.opts.LoginURL,
		"timeout", n.opts.LoginTimeout,
	)

	start := timezone.Now()
	attempts := uint64(n.opts.LoginTimeout / n.opts.PollInterval)
	if attempts < 1 {
		attempts = 1
	}

	err = waiter.Await(ctx, "manual login", waiter.Policy{
		Attempts:     attempts,
		InitialDelay: n.opts.PollInterval,
		MaxDelay:     n.opts.PollInterval,
		Multiplier:   1,
	}, func(ctx context.Context) (bool, error) {
		elapsed := timezone.Now().Sub(start)
		n.observe(Progress{
			State:     StateAwaitingMFA,
			Elapsed:   elapsed,
			Remaining: n.opts.LoginTimeout - elapsed,
		})

		err := n.browser.Navigate(ctx, n.opts.RootURL)
		if err != nil {
			// transient while the operator is mid-flow, keep waiting
			slog.WarnContext(ctx, "poll navigation failed during manual login", "err", err)
			return false, nil
		}
		return n.Authenticated(), nil
	})
	if err != nil {
		if errors.Is(err, waiter.ErrExhausted) {
			n.setState(ctx, StateAuthTimeout)
			return fmt.Errorf("%w (budget %s)", ErrAuthTimeout, n.opts.LoginTimeout)
		}
		return err
	}

	n.persist(ctx)
	return nil
}

func (n *Navigator) persist(ctx context.Context) {
	root, err := url.Parse(n.opts.RootURL)
	if err != nil {
		slog.WarnContext(ctx, "failed to parse root url for cookie extraction", "err", err)
		return
	}
	cookies := n.browser.Cookies(root)
	err = n.store.Save(ctx, session.Session{
		Domain:  n.opts.Domain,
		Cookies: cookies,
	})
	if err != nil {
		// the run is still authenticated, only reuse is lost
		slog.WarnContext(ctx, "failed to persist session", "domain", n.opts.Domain, "err", err)
		return
	}
	slog.InfoContext(ctx, "session saved", "domain", n.opts.Domain, "cookies", len(cookies))
}

func (n *Navigator) observe(p Progress) {
	if n.opts.OnProgress != nil {
		n.opts.OnProgress(p)
	}
}

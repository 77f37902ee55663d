// Package browser owns the single mutable browsing context a run
// operates on: an HTTP client with a cookie jar, the URL the portal
// last left us on, and the last rendered document. Ownership is
// exclusive and non-reentrant for the lifetime of a run.
package browser

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"time"

	"lbsassist/lib/telemetry"

	cloudflarebp "github.com/DaRealFreak/cloudflare-bp-go"
	"github.com/PuerkitoBio/goquery"
	"github.com/go-resty/resty/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

var tracer = otel.Tracer("lbsassist.lib.browser")

const userAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/123.0.0.0 Safari/537.36"

// Form is an HTML form ready for submission: the resolved action URL,
// method and the accumulated field values.
type Form struct {
	Action string
	Method string
	Values url.Values
}

// Browser is the browsing context handed around between the
// navigator, the extractors and the form automaton. Implementations
// other than the HTTP one exist only in tests, which substitute a
// fake document provider.
type Browser interface {
	// Navigate fetches the target (resolved against the current URL
	// when relative), following redirects, and makes the resulting
	// page the current document.
	Navigate(ctx context.Context, target string) error
	// CurrentURL reports where the last navigation actually landed,
	// after redirects. Nil before the first navigation.
	CurrentURL() *url.URL
	// Document parses the current page. The parse is cached until the
	// next navigation or submission.
	Document() (*goquery.Document, error)
	// Submit sends the form and makes the response the current page.
	Submit(ctx context.Context, form Form) error
	// Cookies reports the jar's cookies for the given URL.
	Cookies(u *url.URL) []*http.Cookie
	// SetCookies injects cookies into the jar for the given URL.
	SetCookies(u *url.URL, cookies []*http.Cookie)
}

// HttpBrowser implements Browser over a resty client. It performs no
// scripting: it sees pages the way the portal serves them, which is
// why callers poll through the waiter for late-rendered content.
type HttpBrowser struct {
	http *resty.Client
	jar  http.CookieJar

	current *url.URL
	body    []byte
	doc     *goquery.Document
}

type Options struct {
	// tracer name for the instrumented resty client
	TracerName string
}

func New(opts Options) (*HttpBrowser, error) {
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, err
	}

	client := resty.New()
	client.SetCookieJar(jar)
	client.GetClient().Transport = cloudflarebp.AddCloudFlareByPass(client.GetClient().Transport)
	client.SetHeader("user-agent", userAgent)
	client.SetTimeout(time.Second * 30)

	name := opts.TracerName
	if name == "" {
		name = "browser/http"
	}
	telemetry.InstrumentResty(client, name)

	return &HttpBrowser{
		http: client,
		jar:  jar,
	}, nil
}

func (b *HttpBrowser) resolve(target string) (*url.URL, error) {
	ref, err := url.Parse(target)
	if err != nil {
		return nil, err
	}
	if ref.IsAbs() || b.current == nil {
		return ref, nil
	}
	return b.current.ResolveReference(ref), nil
}

func (b *HttpBrowser) Navigate(ctx context.Context, target string) error {
	ctx, span := tracer.Start(ctx, "Navigate")
	defer span.End()
	span.SetAttributes(attribute.String("target", target))

	link, err := b.resolve(target)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to parse target url")
		return err
	}

	res, err := b.http.R().
		SetContext(ctx).
		Get(link.String())
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to fetch")
		return err
	}

	b.setPage(finalURL(res, link), res.Body())
	span.SetAttributes(attribute.String("landed", b.current.String()))
	return nil
}

func (b *HttpBrowser) Submit(ctx context.Context, form Form) error {
	ctx, span := tracer.Start(ctx, "Submit")
	defer span.End()

	action, err := b.resolve(form.Action)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to parse form action")
		return err
	}
	span.SetAttributes(attribute.String("action", action.String()))

	method := form.Method
	if method == "" {
		method = http.MethodPost
	}

	req := b.http.R().SetContext(ctx)
	var res *resty.Response
	if method == http.MethodGet {
		query := action.Query()
		for k, vs := range form.Values {
			for _, v := range vs {
				query.Add(k, v)
			}
		}
		action.RawQuery = query.Encode()
		res, err = req.Get(action.String())
	} else {
		res, err = req.
			SetHeader("content-type", "application/x-www-form-urlencoded").
			SetBody(form.Values.Encode()).
			Post(action.String())
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to submit form")
		return err
	}

	b.setPage(finalURL(res, action), res.Body())
	span.SetAttributes(attribute.String("landed", b.current.String()))
	return nil
}

func finalURL(res *resty.Response, requested *url.URL) *url.URL {
	if res.RawResponse != nil && res.RawResponse.Request != nil &&
		res.RawResponse.Request.URL != nil {
		return res.RawResponse.Request.URL
	}
	return requested
}

func (b *HttpBrowser) setPage(u *url.URL, body []byte) {
	b.current = u
	b.body = body
	b.doc = nil
}

func (b *HttpBrowser) CurrentURL() *url.URL {
	return b.current
}

func (b *HttpBrowser) Document() (*goquery.Document, error) {
	if b.doc != nil {
		return b.doc, nil
	}
	if b.current == nil {
		return nil, fmt.Errorf("no page has been navigated to yet")
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewBuffer(b.body))
	if err != nil {
		return nil, err
	}
	b.doc = doc
	return doc, nil
}

func (b *HttpBrowser) Cookies(u *url.URL) []*http.Cookie {
	return b.jar.Cookies(u)
}

func (b *HttpBrowser) SetCookies(u *url.URL, cookies []*http.Cookie) {
	b.jar.SetCookies(u, cookies)
}

// ParseForm collects the named form's action, method and the default
// values of its input/select controls from the given document, so
// callers can overwrite fields and Submit.
func ParseForm(doc *goquery.Document, selector string) (Form, error) {
	sel := doc.Find(selector).First()
	if sel.Length() == 0 {
		return Form{}, fmt.Errorf("form not found: %s", selector)
	}

	method := http.MethodPost
	if strings.EqualFold(sel.AttrOr("method", "post"), "get") {
		method = http.MethodGet
	}
	form := Form{
		Action: sel.AttrOr("action", ""),
		Method: method,
		Values: url.Values{},
	}

	sel.Find("input").Each(func(_ int, input *goquery.Selection) {
		name := input.AttrOr("name", "")
		if name == "" {
			return
		}
		kind := input.AttrOr("type", "text")
		if kind == "radio" || kind == "checkbox" {
			if _, checked := input.Attr("checked"); !checked {
				return
			}
		}
		form.Values.Set(name, input.AttrOr("value", ""))
	})
	sel.Find("select").Each(func(_ int, slct *goquery.Selection) {
		name := slct.AttrOr("name", "")
		if name == "" {
			return
		}
		selected := slct.Find("option[selected]").First()
		if selected.Length() == 0 {
			selected = slct.Find("option").First()
		}
		if selected.Length() > 0 {
			form.Values.Set(name, selected.AttrOr("value", selected.Text()))
		}
	})
	sel.Find("textarea").Each(func(_ int, area *goquery.Selection) {
		name := area.AttrOr("name", "")
		if name == "" {
			return
		}
		form.Values.Set(name, area.Text())
	})

	return form, nil
}

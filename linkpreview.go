// Package linkpreview describes web resources for link previews.
//
// Description of a resource combines several metadata sources: Open Graph
// (http://ogp.me/) and Twitter Card tags found in the document head, plain
// <meta> author and description tags and icon links, and oEmbed
// (https://oembed.com/) description obtained either from the endpoint the
// document links to, or from the provider matched by resource url. Open Graph
// is the base, other sources only fill what is missing; Description.Sources
// lists sources that contributed.
//
// Engine also implements http.Handler. The endpoint accepts GET and POST
// requests with `content` as the main argument. It then returns a JSON encoded
// list of descriptions of urls found in content.
//
// Example:
//
//	?content=Check+this+out+https://www.youtube.com/watch?v=dQw4w9WgXcQ
//
// Will return:
//
//	Type: "application/json"
//
//	[
//		{
//			"type": "video.other",
//			"url": "https://www.youtube.com/watch?v=dQw4w9WgXcQ",
//			"title": "Rick Astley - Never Gonna Give You Up (Video)",
//			"site_name": "YouTube",
//			"image": {"url": "https://i.ytimg.com/vi/dQw4w9WgXcQ/maxresdefault.jpg"},
//			"embed": {"type": "video", "height": 270, "width": 480, "html": "<iframe ..."},
//			"sources": ["ogp", "twitter", "oembed"]
//		}
//	]
//
// Additionally you can supply `callback` to wrap the result in a JavaScript
// callback (JSONP), the type of this response would be
// "application/x-javascript"
//
// If an optional `markdown` boolean argument is set (markdown=true), then
// provided content is parsed as markdown formatted text and links are
// extracted in context-aware mode, i.e. preformatted text blocks are skipped.
//
// # Security
//
// Care should be taken when running this inside internal network since it may
// disclose internal endpoints. It is a good idea to run the service on
// a separate host in an isolated subnet.
package linkpreview

import (
	"bytes"
	"compress/zlib"
	"context"
	"io"
	"log"
	"mime"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/net/html/charset"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/artyom/oembed"
)

const defaultMaxBodySize = 1024 * 64 //64KB

// DefaultMaxResults is maximum number of urls to process if not configured by
// WithMaxResults function
const DefaultMaxResults = 20

const defaultOembedTimeout = 5 * time.Second

const defaultDescribeTimeout = 30 * time.Second

// Engine describes web resources. Engine must be created with New and is
// safe for concurrent use.
type Engine struct {
	HTTPClient     *http.Client
	Log            Logger
	Cache          Cache
	MaxBodySize    int64 // only this many bytes of html document are read
	FetchImageSize bool

	// Headers specify key-value pairs of extra headers to add to each
	// outgoing request made by Engine. Headers length must be even,
	// otherwise Headers are ignored.
	Headers []string

	pmap      *prefixMap // built from BlocklistPrefixes
	whitelist *router

	providers   []Provider
	noProviders bool
	router      *router // nil if provider lookup is disabled

	maxWidth, maxHeight int
	oembedTimeout       time.Duration
	describeTimeout     time.Duration // limits work shared by callers of Describe
	faviconProbe        bool

	maxResults int // max number of urls to process by ServeHTTP

	inFlight singleflight.Group
}

// New returns new initialized Engine. If no configuration functions provided,
// sane defaults would be used.
func New(conf ...ConfFunc) *Engine {
	e := &Engine{
		maxResults:      DefaultMaxResults,
		oembedTimeout:   defaultOembedTimeout,
		describeTimeout: defaultDescribeTimeout,
	}
	for _, f := range conf {
		e = f(e)
	}
	if e.HTTPClient == nil {
		e.HTTPClient = http.DefaultClient
	}
	if len(e.Headers)%2 != 0 {
		e.Headers = nil
	}
	if e.MaxBodySize == 0 {
		e.MaxBodySize = defaultMaxBodySize
	}
	if e.Log == nil {
		e.Log = log.New(io.Discard, "", 0)
	}
	if !e.noProviders {
		ps := e.providers
		if ps == nil {
			var err error
			if ps, err = DefaultProviders(); err != nil {
				panic(err)
			}
		}
		e.router = providersRouter(ps)
	}
	return e
}

// Describe returns description of resource at link. Describe never fails:
// if resource cannot be fetched or parsed, description is built from what is
// available, which is at least resource url.
func (e *Engine) Describe(ctx context.Context, link string) *Description {
	if e.pmap != nil && e.pmap.Match(link) {
		e.Log.Printf("Blocklisted %q", link)
		describeOutcomes.WithLabelValues("skipped").Inc()
		return basicDescription(link)
	}
	if e.whitelist != nil {
		if _, ok := e.whitelist.lookup(link); !ok {
			describeOutcomes.WithLabelValues("skipped").Inc()
			return basicDescription(link)
		}
	}
	if d, ok := e.cacheGet(ctx, link); ok {
		e.Log.Printf("Cache hit for %q", link)
		describeOutcomes.WithLabelValues("cached").Inc()
		return d
	}
	// ensure we don't have two in-flight outgoing requests for the same link;
	// the work is shared by all waiting callers, so it must not be bound to
	// the context of the one which started it
	ch := e.inFlight.DoChan(link, func() (interface{}, error) {
		wctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), e.describeTimeout)
		defer cancel()
		d := e.describe(wctx, link)
		if wctx.Err() != nil {
			// description may be incomplete
			return d, nil
		}
		e.cacheSet(wctx, link, d)
		return d, nil
	})
	select {
	case res := <-ch:
		return res.Val.(*Description)
	case <-ctx.Done():
		return basicDescription(link)
	}
}

func (e *Engine) describe(ctx context.Context, link string) *Description {
	resp, err := e.httpGet(ctx, link)
	if err == nil && (resp.StatusCode != http.StatusOK || resp.Header.Get("Content-Type") == "") {
		resp.Body.Close()
		err = errBadResponse{status: resp.Status}
	}
	if err != nil {
		e.Log.Printf("fetch %q: %v", link, err)
		describeOutcomes.WithLabelValues("unavailable").Inc()
		if e.router == nil {
			return basicDescription(link)
		}
		return e.finish(oembedOnly(e.describeOembed(ctx, link, ""), link))
	}
	defer resp.Body.Close()

	ct := resp.Header.Get("Content-Type")
	mediaType, _, err := mime.ParseMediaType(ct)
	if err != nil {
		e.Log.Printf("content type of %q: %v", link, err)
		describeOutcomes.WithLabelValues("other").Inc()
		return basicDescription(link)
	}
	switch {
	case mediaType == "text/html":
		body := resp.Body
		if resp.Header.Get("Content-Encoding") == "deflate" &&
			strings.HasSuffix(resp.Request.Host, "twitter.com") {
			// twitter sends unsolicited deflate-encoded responses
			// violating RFC; workaround this.
			// See https://golang.org/issues/18779 for background
			if body, err = zlib.NewReader(resp.Body); err != nil {
				return basicDescription(link)
			}
		}
		head, err := io.ReadAll(io.LimitReader(body, e.MaxBodySize))
		if err != nil {
			e.Log.Printf("read %q: %v", link, err)
			describeOutcomes.WithLabelValues("unavailable").Inc()
			return basicDescription(link)
		}
		describeOutcomes.WithLabelValues("html").Inc()
		d := e.parse(ctx, head, ct, link, resp.Request.URL)
		if len(d.Icon) == 0 && e.faviconProbe {
			if icon := e.probeFavicon(ctx, resp.Request.URL); icon != "" {
				d.Icon = map[string]string{"any": icon}
				d.addSource(SourceResource)
			}
		}
		if e.FetchImageSize {
			e.fillImageDimensions(ctx, d)
		}
		return e.finish(d)
	case strings.HasPrefix(mediaType, "image/") && len(mediaType) > len("image/"):
		describeOutcomes.WithLabelValues("image").Inc()
		d := imageDescription(link, resp.ContentLength)
		if e.FetchImageSize {
			if w, h, err := decodeDimensions(resp.Body, ct); err == nil {
				d.Embed.Width, d.Embed.Height = w, h
			}
		}
		return e.finish(d)
	}
	describeOutcomes.WithLabelValues("other").Inc()
	return basicDescription(link)
}

// finish normalizes description and records its sources in metrics
func (e *Engine) finish(d *Description) *Description {
	d.normalize()
	for _, s := range d.Sources {
		sourcesUsed.WithLabelValues(s).Inc()
	}
	return d
}

// Parse returns description of html document fetched from link; contentType
// is the value of Content-Type header document was served with, it is used to
// detect document encoding. Parse may call oEmbed endpoints.
func (e *Engine) Parse(ctx context.Context, document []byte, contentType, link string) *Description {
	base, err := url.Parse(link)
	if err != nil {
		base = nil
	}
	return e.finish(e.parse(ctx, document, contentType, link, base))
}

// parse extracts metadata from document and merges it with oEmbed
// description. Relative links found in document are resolved against base.
func (e *Engine) parse(ctx context.Context, document []byte, contentType, link string, base *url.URL) *Description {
	var r io.Reader = bytes.NewReader(document)
	if cr, err := charset.NewReader(r, contentType); err == nil {
		r = cr
	} else {
		r = bytes.NewReader(document)
	}
	tags := parseTags(r)
	tags.resolve(base)

	var (
		og *Description
		tw *twitterCard
		oe *oembedResult
	)
	var g errgroup.Group
	g.Go(func() error {
		og = openGraphDescribe(tags.og)
		tw = twitterDescribe(tags.twitter)
		return nil
	})
	g.Go(func() error {
		oe = e.describeOembed(ctx, link, tags.oembedLink)
		return nil
	})
	g.Wait()
	return merge(og, tw, tags.meta, oe, link)
}

// basicDescription is a description of resource that was not fetched
func basicDescription(link string) *Description {
	return &Description{Type: "website", URL: Values[string]{link}}
}

// imageDescription is a description of image served directly
func imageDescription(link string, size int64) *Description {
	d := &Description{
		Type:     "website",
		URL:      Values[string]{link},
		SiteName: Values[string]{"Image"},
		Embed:    &Embed{Type: oembed.TypePhoto, URL: link},
		Sources:  []string{SourceResource},
	}
	if size > 0 {
		d.Embed.Size = size
	}
	return d
}

type errBadResponse struct{ status string }

func (e errBadResponse) Error() string {
	if e.status == "" {
		return "bad response"
	}
	return "bad response: " + e.status
}

func (e *Engine) httpGet(ctx context.Context, URL string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, URL, nil)
	if err != nil {
		return nil, err
	}
	e.setHeaders(req)
	return e.HTTPClient.Do(req)
}

func (e *Engine) setHeaders(req *http.Request) {
	for i := 0; i < len(e.Headers); i += 2 {
		req.Header.Set(e.Headers[i], e.Headers[i+1])
	}
}

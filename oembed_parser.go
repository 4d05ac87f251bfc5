package linkpreview

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/artyom/oembed"
)

// maxOembedSize limits size of oEmbed response read
const maxOembedSize = 1 << 20

var (
	errOembedStatus  = errors.New("unexpected response status")
	errOembedPayload = errors.New("malformed payload")
	errOembedSchema  = errors.New("payload does not conform to oEmbed 1.0")
)

// oembedResult is the part of Description obtained from oEmbed provider
type oembedResult struct {
	SiteName  string
	URL       string // set for "link" type
	Thumbnail *Thumbnail
	Embed     *Embed // set for all types but "link"
}

// describeOembed fetches oEmbed description of resource. If link is not empty,
// it is used as oEmbed endpoint discovered from resource page, otherwise
// endpoint is looked up by resource url among configured providers. oEmbed is
// an optional source, so any failure results in an empty description.
func (e *Engine) describeOembed(ctx context.Context, resource, link string) *oembedResult {
	endpoint := e.oembedEndpoint(resource, link)
	if endpoint == "" {
		return new(oembedResult)
	}
	res, err := e.fetchOembed(ctx, endpoint)
	if err != nil {
		oembedRequests.WithLabelValues(oembedErrorLabel(err)).Inc()
		e.Log.Printf("oembed request to %q: %v", endpoint, err)
		return new(oembedResult)
	}
	oembedRequests.WithLabelValues("ok").Inc()
	return res
}

// oembedEndpoint returns url of oEmbed service call: discovered link with
// format and size arguments overridden, or service of provider matching
// resource.
func (e *Engine) oembedEndpoint(resource, link string) string {
	if link != "" {
		if u, err := url.Parse(link); err == nil {
			vals := u.Query()
			vals.Set("format", "json")
			setSizeArgs(vals, e.maxWidth, e.maxHeight)
			u.RawQuery = vals.Encode()
			return u.String()
		}
	}
	if s, ok := e.router.match(resource, e.maxWidth, e.maxHeight); ok {
		return s
	}
	return ""
}

func (e *Engine) fetchOembed(ctx context.Context, endpoint string) (*oembedResult, error) {
	ctx, cancel := context.WithTimeout(ctx, e.oembedTimeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	e.setHeaders(req)
	req.Header.Set("Accept", "application/json")
	client := *e.HTTPClient
	client.CheckRedirect = func(req *http.Request, via []*http.Request) error {
		if len(via) > 1 {
			return errors.New("stopped after 1 redirect")
		}
		return nil
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: %s", errOembedStatus, resp.Status)
	}
	b, err := io.ReadAll(io.LimitReader(resp.Body, maxOembedSize))
	if err != nil {
		return nil, err
	}
	return parseOembed(b)
}

// parseOembed decodes and validates oEmbed 1.0 json payload
func parseOembed(b []byte) (*oembedResult, error) {
	var p oembedPayload
	if err := json.Unmarshal(b, &p); err != nil {
		var typeErr *json.UnmarshalTypeError
		if errors.As(err, &typeErr) || errors.Is(err, errBadNumber) {
			return nil, fmt.Errorf("%w: %v", errOembedSchema, err)
		}
		return nil, fmt.Errorf("%w: %v", errOembedPayload, err)
	}
	if err := p.validate(); err != nil {
		return nil, err
	}
	return p.result(), nil
}

// oembedPayload is a response of oEmbed provider
// (https://oembed.com, section 2.3.4). Pointer fields are nil when attribute
// is missing.
type oembedPayload struct {
	Version         *string      `json:"version"`
	Type            oembed.Type  `json:"type"`
	Title           *string      `json:"title"`
	SiteName        *string      `json:"site_name"`
	ProviderName    *string      `json:"provider_name"`
	ProviderURL     *string      `json:"provider_url"`
	AuthorName      *string      `json:"author_name"`
	AuthorURL       *string      `json:"author_url"`
	HTML            *string      `json:"html"`
	URL             *string      `json:"url"`
	Width           oembedNumber `json:"width"`
	Height          oembedNumber `json:"height"`
	ThumbnailURL    *string      `json:"thumbnail_url"`
	ThumbnailWidth  oembedNumber `json:"thumbnail_width"`
	ThumbnailHeight oembedNumber `json:"thumbnail_height"`
	CacheAge        oembedNumber `json:"cache_age"`
}

func (p *oembedPayload) validate() error {
	fail := func(format string, args ...interface{}) error {
		return fmt.Errorf("%w: %s", errOembedSchema, fmt.Sprintf(format, args...))
	}
	if p.Version == nil || *p.Version != "1.0" {
		return fail("version must be \"1.0\"")
	}
	switch p.Type {
	case oembed.TypePhoto, oembed.TypeVideo, oembed.TypeLink, oembed.TypeRich:
	default:
		return fail("unsupported type %q", p.Type)
	}
	if p.URL != nil && !httpURL(*p.URL) {
		return fail("invalid url %q", *p.URL)
	}
	if p.ThumbnailURL != nil && !httpURL(*p.ThumbnailURL) {
		return fail("invalid thumbnail_url %q", *p.ThumbnailURL)
	}
	for name, n := range map[string]oembedNumber{
		"width":            p.Width,
		"thumbnail_width":  p.ThumbnailWidth,
		"thumbnail_height": p.ThumbnailHeight,
	} {
		if n.null || (n.set && n.value < 1) {
			return fail("invalid %s", name)
		}
	}
	if p.Height.set && !p.Height.null && p.Height.value < 1 {
		return fail("invalid height")
	}
	switch p.Type {
	case oembed.TypePhoto:
		if p.URL == nil {
			return fail("photo requires url")
		}
	case oembed.TypeVideo, oembed.TypeRich:
		if p.HTML == nil || *p.HTML == "" {
			return fail("%s requires html", p.Type)
		}
	}
	if p.Type != oembed.TypeLink && (!p.Width.set || !p.Height.set) {
		return fail("%s requires width and height", p.Type)
	}
	return nil
}

func (p *oembedPayload) result() *oembedResult {
	res := &oembedResult{SiteName: deref(p.SiteName)}
	if res.SiteName == "" {
		res.SiteName = deref(p.ProviderName)
	}
	if p.ThumbnailURL != nil {
		res.Thumbnail = &Thumbnail{
			URL:    *p.ThumbnailURL,
			Width:  p.ThumbnailWidth.int(),
			Height: p.ThumbnailHeight.int(),
		}
	}
	if p.Type == oembed.TypeLink {
		res.URL = deref(p.URL)
		return res
	}
	res.Embed = &Embed{
		Type:   p.Type,
		Height: p.Height.int(),
		Width:  p.Width.int(),
		URL:    deref(p.URL),
		HTML:   deref(p.HTML),
	}
	return res
}

var errBadNumber = errors.New("not a number")

// oembedNumber is a numeric attribute. Providers are known to send numbers as
// strings, e.g. "cache_age": "3153600000", such values are accepted.
type oembedNumber struct {
	value float64
	set   bool // attribute is present
	null  bool // attribute is explicit null
}

func (n *oembedNumber) UnmarshalJSON(b []byte) error {
	n.set = true
	if string(b) == "null" {
		n.null = true
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
		if err != nil {
			return fmt.Errorf("%w: %q", errBadNumber, s)
		}
		n.value = f
		return nil
	}
	if err := json.Unmarshal(b, &n.value); err != nil {
		return fmt.Errorf("%w: %s", errBadNumber, b)
	}
	return nil
}

func (n oembedNumber) int() int {
	if !n.set || n.null {
		return 0
	}
	return int(n.value)
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// httpURL reports whether s is an absolute http or https url
func httpURL(s string) bool {
	u, err := url.Parse(s)
	if err != nil {
		return false
	}
	switch u.Scheme {
	case "http", "https":
		return u.Host != ""
	}
	return false
}

func oembedErrorLabel(err error) string {
	switch {
	case errors.Is(err, errOembedStatus):
		return "status"
	case errors.Is(err, errOembedPayload):
		return "payload"
	case errors.Is(err, errOembedSchema):
		return "schema"
	}
	return "transport"
}

package linkpreview

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"image/png"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"
)

const articlePage = `<html><head>
<title>ignored</title>
<meta property="og:title" content="Article">
<meta property="og:type" content="article">
<meta property="og:image" content="/img.png">
<meta name="twitter:card" content="summary">
<meta name="twitter:creator" content="@jane">
<meta name="description" content="About things">
<link rel="icon" href="/favicon.png">
<link rel="alternate" type="application/json+oembed" href="/oembed?url=https%3A%2F%2Fexample.com%2Farticle">
</head><body><meta property="og:title" content="Body"></body></html>`

const articleOembed = `{"version":"1.0","type":"rich","html":"<div/>","width":400,"height":null,"provider_name":"Example"}`

const articleDescription = `{
	"type": "article",
	"url": "https://example.com/article",
	"title": "Article",
	"description": "About things",
	"site_name": "Example",
	"image": {"url": "/img.png"},
	"embed": {"type": "rich", "width": 400, "html": "<div/>"},
	"twitter": {"card": "summary", "creator_username": "@jane"},
	"icon": {"any": "https://example.com/favicon.png"},
	"sources": ["ogp", "oembed", "resource", "twitter"]
}`

func TestDescribe_html(t *testing.T) {
	e, _ := newTestEngine(t, map[string]page{
		"example.com/article": {contentType: "text/html; charset=utf-8", body: articlePage},
		"example.com/oembed":  {contentType: "application/json", body: articleOembed},
	}, WithoutProviders())
	jsonEqual(t, e.Describe(context.Background(), "https://example.com/article"), articleDescription)
}

func TestDescribe_imageDimensions(t *testing.T) {
	img := pngImage(t, 3, 2)
	e, _ := newTestEngine(t, map[string]page{
		"example.com/article": {contentType: "text/html", body: articlePage},
		"example.com/img.png": {contentType: "image/png", body: string(img)},
	}, WithoutProviders(), WithImageDimensions(true))
	d := e.Describe(context.Background(), "https://example.com/article")
	jsonEqual(t, d.Image, `{"url":"/img.png","width":3,"height":2}`)
}

func TestDescribe_image(t *testing.T) {
	img := pngImage(t, 3, 2)
	e, _ := newTestEngine(t, map[string]page{
		"images.example.com/cat.png": {contentType: "image/png", body: string(img)},
	}, WithImageDimensions(true))
	const link = "https://images.example.com/cat.png"
	jsonEqual(t, e.Describe(context.Background(), link), fmt.Sprintf(`{
		"type": "website",
		"url": %[1]q,
		"site_name": "Image",
		"embed": {"type": "photo", "url": %[1]q, "size": %[2]d, "width": 3, "height": 2},
		"sources": ["resource"]
	}`, link, len(img)))
}

func TestDescribe_unavailable(t *testing.T) {
	pages := map[string]page{
		"video.example.com/v/1": {contentType: "text/html", status: http.StatusForbidden, body: "forbidden"},
		"oembed.example.com/oembed": {contentType: "application/json",
			body: `{"version":"1.0","type":"video","html":"<iframe/>","width":480,"height":270,
				"provider_name":"Videos","thumbnail_url":"https://video.example.com/1.jpg"}`},
	}
	providers := WithProviders([]Provider{{
		Name: "Videos",
		URL:  "https://video.example.com/",
		Endpoints: []ProviderEndpoint{{
			Schemes: []string{"https://video.example.com/v/*"},
			URL:     "https://oembed.example.com/oembed",
		}},
	}})
	const link = "https://video.example.com/v/1"

	e, _ := newTestEngine(t, pages, providers)
	jsonEqual(t, e.Describe(context.Background(), link), `{
		"type": "website",
		"url": "https://video.example.com/v/1",
		"site_name": "Videos",
		"thumbnail": {"url": "https://video.example.com/1.jpg"},
		"embed": {"type": "video", "width": 480, "height": 270, "html": "<iframe/>"},
		"sources": ["oembed"]
	}`)

	e, _ = newTestEngine(t, pages, WithoutProviders())
	jsonEqual(t, e.Describe(context.Background(), link), `{"type":"website","url":"https://video.example.com/v/1"}`)
}

func TestDescribe_basic(t *testing.T) {
	e, _ := newTestEngine(t, map[string]page{
		"example.com/doc.pdf":  {contentType: "application/pdf", body: "%PDF-1.4"},
		"example.com/untyped":  {body: "data"},
		"example.com/badtype":  {contentType: "text/html; charset", body: "<html>"},
		"example.com/notfound": {contentType: "text/html", status: http.StatusNotFound},
	}, WithoutProviders())
	for _, link := range []string{
		"https://example.com/doc.pdf",
		"https://example.com/untyped",
		"https://example.com/badtype",
		"https://example.com/notfound",
		"https://unknown.example.org/",
	} {
		jsonEqual(t, e.Describe(context.Background(), link), fmt.Sprintf(`{"type":"website","url":%q}`, link))
	}
}

func TestDescribe_favicon(t *testing.T) {
	e, web := newTestEngine(t, map[string]page{
		"example.com/page":        {contentType: "text/html", body: `<html><head><meta name="description" content="D"></head></html>`},
		"example.com/favicon.ico": {contentType: "image/x-icon"},
	}, WithoutProviders(), WithFaviconProbe(true))
	d := e.Describe(context.Background(), "https://example.com/page")
	jsonEqual(t, d, `{
		"type": "website",
		"url": "https://example.com/page",
		"description": "D",
		"icon": {"any": "https://example.com/favicon.ico"},
		"sources": ["resource"]
	}`)
	if n := web.hitCount("example.com/favicon.ico"); n != 1 {
		t.Errorf("favicon probed %d times, want 1", n)
	}
}

func TestDescribe_skipped(t *testing.T) {
	e, web := newTestEngine(t, map[string]page{
		"example.com/article":      {contentType: "text/html", body: articlePage},
		"mail.example.com/private": {contentType: "text/html", body: articlePage},
	},
		WithoutProviders(),
		WithWhitelist([]string{"https://*.example.com/*"}),
		WithBlocklistPrefixes([]string{"https://mail.example.com/"}),
	)
	for _, link := range []string{
		"https://mail.example.com/private",
		"https://example.org/article",
	} {
		jsonEqual(t, e.Describe(context.Background(), link), fmt.Sprintf(`{"type":"website","url":%q}`, link))
	}
	if n := web.hitCount("mail.example.com/private"); n != 0 {
		t.Errorf("blocklisted url fetched %d times", n)
	}
	d := e.Describe(context.Background(), "https://example.com/article")
	if got := d.Title.First(); got != "Article" {
		t.Errorf("whitelisted url not described: %+v", d)
	}
}

func TestDescribe_cache(t *testing.T) {
	cache := &mapCache{m: make(map[string][]byte)}
	e, web := newTestEngine(t, map[string]page{
		"example.com/article": {contentType: "text/html", body: articlePage},
		"example.com/oembed":  {contentType: "application/json", body: articleOembed},
	}, WithoutProviders(), WithCache(cache))
	const link = "https://example.com/article"
	for i := 0; i < 2; i++ {
		jsonEqual(t, e.Describe(context.Background(), link), articleDescription)
	}
	if n := web.hitCount("example.com/article"); n != 1 {
		t.Errorf("page fetched %d times, want 1", n)
	}
	if _, ok := cache.m[cacheKey(link)]; !ok {
		t.Error("description was not cached")
	}
}

func TestDescribe_singleInFlightRequest(t *testing.T) {
	e, web := newTestEngine(t, map[string]page{
		"example.com/article": {contentType: "text/html", body: articlePage},
	}, WithoutProviders())
	web.delay = 10 * time.Millisecond
	var wg sync.WaitGroup
	barrier := make(chan struct{})
	for i := 0; i < 3; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-barrier
			e.Describe(context.Background(), "https://example.com/article")
		}()
	}
	// ensure multiple calls of Describe would be done as close to each
	// other as possible
	close(barrier)
	wg.Wait()
	if n := web.maxConcurrent(); n > 1 {
		t.Errorf("got %d concurrent requests for the same url", n)
	}
}

func TestDescribe_callerCancelDoesNotAffectOthers(t *testing.T) {
	cache := &mapCache{m: make(map[string][]byte)}
	e, web := newTestEngine(t, map[string]page{
		"example.com/article": {contentType: "text/html", body: articlePage},
		"example.com/oembed":  {contentType: "application/json", body: articleOembed},
	}, WithoutProviders(), WithCache(cache))
	web.delay = 30 * time.Millisecond
	const link = "https://example.com/article"

	done := make(chan struct{})
	go func() {
		defer close(done)
		ctx, cancel := context.WithTimeout(context.Background(), 40*time.Millisecond)
		defer cancel()
		e.Describe(ctx, link)
	}()
	time.Sleep(5 * time.Millisecond) // let the first caller start the request
	jsonEqual(t, e.Describe(context.Background(), link), articleDescription)
	<-done

	if n := web.hitCount("example.com/article"); n != 1 {
		t.Errorf("page fetched %d times, want 1", n)
	}
	d, ok := e.cacheGet(context.Background(), link)
	if !ok {
		t.Fatal("complete description was not cached")
	}
	jsonEqual(t, d, articleDescription)
}

func TestDescribe_timeoutNotCached(t *testing.T) {
	cache := &mapCache{m: make(map[string][]byte)}
	e, web := newTestEngine(t, map[string]page{
		"example.com/article": {contentType: "text/html", body: articlePage},
		"example.com/oembed":  {contentType: "application/json", body: articleOembed},
	}, WithoutProviders(), WithCache(cache), WithDescribeTimeout(45*time.Millisecond))
	web.delay = 30 * time.Millisecond
	const link = "https://example.com/article"
	if d := e.Describe(context.Background(), link); d.Embed != nil {
		t.Fatalf("oEmbed request should not complete in time: %+v", d.Embed)
	}
	if _, ok := e.cacheGet(context.Background(), link); ok {
		t.Error("description cut short by timeout must not be cached")
	}
}

func TestParse(t *testing.T) {
	e := New(WithoutProviders())
	// "Привет" in windows-1251
	doc := []byte("<html><head><meta property=\"og:title\" content=\"\xcf\xf0\xe8\xe2\xe5\xf2\"></head></html>")
	d := e.Parse(context.Background(), doc, "text/html; charset=windows-1251", "https://example.com/ru")
	jsonEqual(t, d, `{"type":"website","url":"https://example.com/ru","title":"Привет","sources":["ogp"]}`)
}

func TestHandler(t *testing.T) {
	e, _ := newTestEngine(t, map[string]page{
		"example.com/article": {contentType: "text/html", body: articlePage},
		"example.com/doc.pdf": {contentType: "application/pdf", body: "%PDF-1.4"},
	}, WithoutProviders())

	content := "see https://example.com/article and https://example.com/doc.pdf."
	w := httptest.NewRecorder()
	e.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/?content="+url.QueryEscape(content), nil))
	if w.Code != http.StatusOK {
		t.Fatalf("invalid status code: %v", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("unexpected content type %q", ct)
	}
	var result []*Description
	if err := json.Unmarshal(w.Body.Bytes(), &result); err != nil {
		t.Fatalf("result isn't JSON %v", w.Body.String())
	}
	if len(result) != 2 {
		t.Fatalf("invalid result length: %v", len(result))
	}
	if got := result[0].Title.First(); got != "Article" {
		t.Errorf("unexpected title of the first result: %q", got)
	}
	if got := result[1].URL.First(); got != "https://example.com/doc.pdf" {
		t.Errorf("unexpected url of the second result: %q", got)
	}
}

func TestHandler_markdownJSONP(t *testing.T) {
	e, _ := newTestEngine(t, map[string]page{
		"example.com/article": {contentType: "text/html", body: articlePage},
	}, WithoutProviders())

	form := url.Values{
		"content":  {"[article](https://example.com/article) and `https://example.com/code`"},
		"markdown": {"true"},
		"callback": {"cb"},
	}
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	w := httptest.NewRecorder()
	e.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("invalid status code: %v", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); ct != "application/x-javascript" {
		t.Errorf("unexpected content type %q", ct)
	}
	body := strings.TrimSpace(w.Body.String())
	if !strings.HasPrefix(body, "cb(") || !strings.HasSuffix(body, ")") {
		t.Fatalf("response is not wrapped in callback: %q", body)
	}
	var result []*Description
	if err := json.Unmarshal([]byte(body[len("cb("):len(body)-1]), &result); err != nil {
		t.Fatal(err)
	}
	if len(result) != 1 || result[0].Title.First() != "Article" {
		t.Errorf("unexpected result: %s", body)
	}
}

func TestHandler_badRequest(t *testing.T) {
	e := New(WithoutProviders())
	w := httptest.NewRecorder()
	e.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	if w.Code != http.StatusBadRequest {
		t.Errorf("request without content: got status %d", w.Code)
	}
	w = httptest.NewRecorder()
	e.ServeHTTP(w, httptest.NewRequest(http.MethodDelete, "/?content=x", nil))
	if w.Code != http.StatusMethodNotAllowed {
		t.Errorf("DELETE request: got status %d", w.Code)
	}
}

func pngImage(t *testing.T, width, height int) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, width, height))); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

// newTestEngine returns Engine which http client is connected to in-memory
// server responding with pages, keyed by host and path.
func newTestEngine(t *testing.T, pages map[string]page, conf ...ConfFunc) (*Engine, *fakeWeb) {
	t.Helper()
	web := &fakeWeb{
		pages:    pages,
		hits:     make(map[string]int),
		inFlight: make(map[string]int),
	}
	pp := newPipePool()
	t.Cleanup(func() { pp.Close() })
	go http.Serve(pp, web)
	client := &http.Client{
		Transport: &http.Transport{
			DialContext:    pp.DialContext,
			DialTLSContext: pp.DialContext,
		},
	}
	return New(append([]ConfFunc{WithHTTPClient(client)}, conf...)...), web
}

type page struct {
	contentType string
	status      int
	body        string
}

// fakeWeb is a http.Handler responding with pre-defined pages
type fakeWeb struct {
	pages map[string]page
	delay time.Duration

	mu          sync.Mutex
	hits        map[string]int
	inFlight    map[string]int
	concurrency int // max number of concurrent requests for the same page
}

func (f *fakeWeb) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	key := r.Host + r.URL.Path
	f.mu.Lock()
	f.hits[key]++
	f.inFlight[key]++
	if n := f.inFlight[key]; n > f.concurrency {
		f.concurrency = n
	}
	p, ok := f.pages[key]
	f.mu.Unlock()
	defer func() {
		f.mu.Lock()
		f.inFlight[key]--
		f.mu.Unlock()
	}()
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	if !ok {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}
	if p.contentType != "" {
		w.Header().Set("Content-Type", p.contentType)
	} else {
		w.Header()["Content-Type"] = nil
	}
	if p.status != 0 {
		w.WriteHeader(p.status)
	}
	io.WriteString(w, p.body)
}

func (f *fakeWeb) hitCount(key string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.hits[key]
}

func (f *fakeWeb) maxConcurrent() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.concurrency
}

type mapCache struct {
	mu sync.Mutex
	m  map[string][]byte
}

func (c *mapCache) Get(_ context.Context, key string) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	b, ok := c.m[key]
	if !ok {
		return nil, ErrCacheMiss
	}
	return b, nil
}

func (c *mapCache) Set(_ context.Context, key string, value []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.m[key] = value
	return nil
}

// pipePool implements net.Listener interface and provides a Dial() func to dial
// to this listener
type pipePool struct {
	m           sync.RWMutex
	closed      bool
	serverConns chan net.Conn
}

func newPipePool() *pipePool { return &pipePool{serverConns: make(chan net.Conn)} }

func (p *pipePool) Accept() (net.Conn, error) {
	c, ok := <-p.serverConns
	if !ok {
		return nil, errors.New("listener is closed")
	}
	return c, nil
}

func (p *pipePool) Close() error {
	p.m.Lock()
	defer p.m.Unlock()
	if !p.closed {
		close(p.serverConns)
		p.closed = true
	}
	return nil
}

func (p *pipePool) Addr() net.Addr { return phonyAddr{} }

func (p *pipePool) DialContext(ctx context.Context, network, addr string) (net.Conn, error) {
	p.m.RLock()
	defer p.m.RUnlock()
	if p.closed {
		return nil, errors.New("listener is closed")
	}
	c1, c2 := net.Pipe()
	select {
	case p.serverConns <- c1:
		return c2, nil
	case <-ctx.Done():
		c1.Close()
		c2.Close()
		return nil, ctx.Err()
	}
}

type phonyAddr struct{}

func (a phonyAddr) Network() string { return "pipe" }
func (a phonyAddr) String() string  { return "pipe" }

package linkpreview

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// iconSize returns key to store icon under: width part of the first size
// listed in sizes attribute ("32" for "32x32 64x64"), or "any" if sizes are
// not specified.
func iconSize(sizes string) string {
	fields := strings.Fields(strings.ToLower(sizes))
	if len(fields) == 0 {
		return "any"
	}
	w, _, _ := strings.Cut(fields[0], "x")
	if w == "" {
		return "any"
	}
	return w
}

// resolve makes icon and oEmbed discovery links absolute using base as
// document url.
func (t *pageTags) resolve(base *url.URL) {
	if base == nil {
		return
	}
	for size, href := range t.meta.Icon {
		t.meta.Icon[size] = resolveReference(base, href)
	}
	if t.oembedLink != "" {
		t.oembedLink = resolveReference(base, t.oembedLink)
	}
}

func resolveReference(base *url.URL, href string) string {
	u, err := url.Parse(href)
	if err != nil {
		return href
	}
	return base.ResolveReference(u).String()
}

// probeFavicon checks whether /favicon.ico exists on the document host and
// returns its url on success.
func (e *Engine) probeFavicon(ctx context.Context, base *url.URL) string {
	if base == nil || base.Host == "" {
		return ""
	}
	u := &url.URL{Scheme: base.Scheme, Host: base.Host, Path: "/favicon.ico"}
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, u.String(), nil)
	if err != nil {
		return ""
	}
	e.setHeaders(req)
	r, err := e.HTTPClient.Do(req)
	if err != nil {
		e.Log.Printf("favicon probe for %q: %v", u, err)
		return ""
	}
	defer r.Body.Close()
	if r.StatusCode == http.StatusOK {
		return u.String()
	}
	return ""
}

package linkpreview

import (
	"encoding/json"
	"io"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"github.com/gobwas/glob"
)

// Provider describes oEmbed provider as listed in
// https://oembed.com/providers.json
type Provider struct {
	Name      string             `json:"provider_name"`
	URL       string             `json:"provider_url"`
	Endpoints []ProviderEndpoint `json:"endpoints"`
}

// ProviderEndpoint is a single oEmbed service of provider. URL may have
// literal {format} placeholder.
type ProviderEndpoint struct {
	Schemes []string `json:"schemes,omitempty"`
	URL     string   `json:"url"`
	Formats []string `json:"formats,omitempty"`
}

// ParseProviders decodes r as content of https://oembed.com/providers.json
func ParseProviders(r io.Reader) ([]Provider, error) {
	var ps []Provider
	if err := json.NewDecoder(r).Decode(&ps); err != nil {
		return nil, err
	}
	return ps, nil
}

// route binds url scheme like "https://*.example.com/videos/*" to endpoint
type route struct {
	scheme   string
	endpoint string
}

// providerRoutes lists routes of every endpoint scheme; endpoint without
// schemes is routed by its provider url.
func providerRoutes(ps []Provider) []route {
	var routes []route
	for _, p := range ps {
		for _, ep := range p.Endpoints {
			if ep.URL == "" {
				continue
			}
			if len(ep.Schemes) == 0 {
				routes = append(routes, route{scheme: p.URL, endpoint: ep.URL})
				continue
			}
			for _, s := range ep.Schemes {
				routes = append(routes, route{scheme: s, endpoint: ep.URL})
			}
		}
	}
	return routes
}

// router matches urls against set of schemes. Schemes are kept in a tree
// keyed by domain labels starting from top level domain, so lookup cost
// depends on the number of labels in host, not on the number of schemes.
//
// router is never modified after newRouter returns and is safe for
// concurrent use.
type router struct {
	root *routeNode
}

type routeNode struct {
	subs     map[string]*routeNode
	endpoint string
	wildcard bool        // node was registered as *.domain
	any      bool        // any path matches
	paths    []glob.Glob // otherwise path should match one of these
}

func newRouteNode() *routeNode { return &routeNode{subs: make(map[string]*routeNode)} }

// reScheme splits scheme into optional wildcard, domain and path
var reScheme = regexp.MustCompile(`^https?://(?:www\.)?(?:(\*)\.)?([^/]+)(?:/(.*))?$`)

// newRouter builds router from routes. Schemes that cannot be parsed are
// skipped, as well as schemes with the same domain and path as the ones
// already added.
func newRouter(routes []route) *router {
	root := newRouteNode()
	seen := make(map[string]struct{})
	for _, r := range routes {
		m := reScheme.FindStringSubmatch(r.scheme)
		if m == nil {
			continue
		}
		wildcard, domain, path := m[1] != "", strings.ToLower(m[2]), m[3]
		key := domain + "/" + path
		if wildcard {
			key = "*." + key
		}
		if _, ok := seen[key]; ok {
			continue
		}
		var matcher glob.Glob
		if path != "" && path != "*" && strings.Contains(path, "*") {
			// only * is special: it matches any part of a single path
			// segment
			pattern := strings.ReplaceAll(glob.QuoteMeta("/"+path), `\*`, "*")
			g, err := glob.Compile(pattern, '/')
			if err != nil {
				continue
			}
			matcher = g
		}
		seen[key] = struct{}{}

		node := root
		labels := strings.Split(domain, ".")
		for i := len(labels) - 1; i >= 0; i-- {
			next, ok := node.subs[labels[i]]
			if !ok {
				next = newRouteNode()
				node.subs[labels[i]] = next
			}
			node = next
		}
		node.endpoint = strings.ReplaceAll(r.endpoint, "{format}", "json")
		// wildcard flag is sticky: a later plain route for the same
		// domain does not revoke subdomain matching of an earlier
		// *.domain route
		if wildcard {
			node.wildcard = true
		}
		if matcher == nil {
			node.any = true
		} else {
			node.paths = append(node.paths, matcher)
		}
	}
	return &router{root: root}
}

// providersRouter returns router matching resource urls to oEmbed endpoints
func providersRouter(ps []Provider) *router { return newRouter(providerRoutes(ps)) }

// lookup returns endpoint of the route matching rawURL. Leading "www." of host
// is ignored. Routes registered as *.domain also match one extra label in
// front of domain.
func (r *router) lookup(rawURL string) (endpoint string, found bool) {
	if r == nil {
		return "", false
	}
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return "", false
	}
	labels := strings.Split(strings.ToLower(u.Hostname()), ".")
	if len(labels) > 1 && labels[0] == "www" {
		labels = labels[1:]
	}
	node := r.root
	for i := len(labels) - 1; i >= 0; i-- {
		next, ok := node.subs[labels[i]]
		if !ok {
			if i == 0 && node.wildcard {
				break
			}
			return "", false
		}
		node = next
	}
	if node.endpoint == "" {
		return "", false
	}
	if node.any {
		return node.endpoint, true
	}
	path := u.EscapedPath()
	if path == "" {
		path = "/"
	}
	for _, g := range node.paths {
		if g.Match(path) {
			return node.endpoint, true
		}
	}
	return "", false
}

// match returns url of oEmbed service call describing resource, with optional
// maxwidth/maxheight arguments if they are positive.
func (r *router) match(resource string, maxWidth, maxHeight int) (string, bool) {
	endpoint, ok := r.lookup(resource)
	if !ok {
		return "", false
	}
	u, err := url.Parse(endpoint)
	if err != nil {
		return "", false
	}
	vals := u.Query()
	vals.Set("url", resource)
	vals.Set("format", "json")
	setSizeArgs(vals, maxWidth, maxHeight)
	u.RawQuery = vals.Encode()
	return u.String(), true
}

func setSizeArgs(vals url.Values, maxWidth, maxHeight int) {
	if maxWidth > 0 {
		vals.Set("maxwidth", strconv.Itoa(maxWidth))
	}
	if maxHeight > 0 {
		vals.Set("maxheight", strconv.Itoa(maxHeight))
	}
}

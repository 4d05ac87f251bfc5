package linkpreview

import (
	"net/http"
	"time"

	"github.com/bradfitz/gomemcache/memcache"
	"github.com/redis/go-redis/v9"
)

// ConfFunc is used to configure new Engine; such functions should be used as
// arguments to New function
type ConfFunc func(*Engine) *Engine

// WithHTTPClient configures engine to use provided http.Client for outgoing
// requests
func WithHTTPClient(client *http.Client) ConfFunc {
	return func(e *Engine) *Engine {
		if client != nil {
			e.HTTPClient = client
		}
		return e
	}
}

// WithLogger configures engine to use provided logger
func WithLogger(l Logger) ConfFunc {
	return func(e *Engine) *Engine {
		if l != nil {
			e.Log = l
		}
		return e
	}
}

// WithExtraHeaders configures engine to add extra headers to each outgoing
// http request
func WithExtraHeaders(hdr map[string]string) ConfFunc {
	headers := make([]string, 0, len(hdr)*2)
	for k, v := range hdr {
		headers = append(headers, k, v)
	}
	return func(e *Engine) *Engine {
		e.Headers = headers
		return e
	}
}

// WithMaxBodySize limits how many bytes of html document are read. Metadata
// past this limit is not seen.
func WithMaxBodySize(n int64) ConfFunc {
	return func(e *Engine) *Engine {
		if n > 0 {
			e.MaxBodySize = n
		}
		return e
	}
}

// WithProviders replaces default oEmbed providers table. Use ParseProviders to
// load table in https://oembed.com/providers.json format.
func WithProviders(ps []Provider) ConfFunc {
	return func(e *Engine) *Engine {
		e.providers = ps
		e.noProviders = false
		return e
	}
}

// WithoutProviders disables lookup of oEmbed endpoints by resource url. oEmbed
// endpoints discovered from documents are still used.
func WithoutProviders() ConfFunc {
	return func(e *Engine) *Engine {
		e.providers = nil
		e.noProviders = true
		return e
	}
}

// WithWhitelist configures engine to only fetch resources matching one of the
// provided url schemes, such as "https://*.example.com/articles/*"; other
// urls are described by their url alone.
func WithWhitelist(schemes []string) ConfFunc {
	routes := make([]route, 0, len(schemes))
	for _, s := range schemes {
		routes = append(routes, route{scheme: s, endpoint: s})
	}
	return func(e *Engine) *Engine {
		if len(routes) > 0 {
			e.whitelist = newRouter(routes)
		}
		return e
	}
}

// WithBlocklistPrefixes configures engine to skip fetching urls matching any
// provided prefix
func WithBlocklistPrefixes(prefixes []string) ConfFunc {
	var pmap *prefixMap
	if len(prefixes) > 0 {
		pmap = newPrefixMap(prefixes)
	}
	return func(e *Engine) *Engine {
		if pmap != nil {
			e.pmap = pmap
		}
		return e
	}
}

// WithEmbedSize sets maxwidth and maxheight arguments of oEmbed requests.
// Non-positive values are not sent.
func WithEmbedSize(maxWidth, maxHeight int) ConfFunc {
	return func(e *Engine) *Engine {
		e.maxWidth, e.maxHeight = maxWidth, maxHeight
		return e
	}
}

// WithOembedTimeout limits duration of a single oEmbed request.
func WithOembedTimeout(d time.Duration) ConfFunc {
	return func(e *Engine) *Engine {
		if d > 0 {
			e.oembedTimeout = d
		}
		return e
	}
}

// WithDescribeTimeout limits total duration of describing a single url,
// including oEmbed and image requests. Descriptions that hit this limit are
// not cached.
func WithDescribeTimeout(d time.Duration) ConfFunc {
	return func(e *Engine) *Engine {
		if d > 0 {
			e.describeTimeout = d
		}
		return e
	}
}

// WithImageDimensions configures engine whether to fetch image dimensions or
// not.
func WithImageDimensions(enable bool) ConfFunc {
	return func(e *Engine) *Engine {
		e.FetchImageSize = enable
		return e
	}
}

// WithFaviconProbe configures engine to check for /favicon.ico on the
// document host when document has no icon links.
func WithFaviconProbe(enable bool) ConfFunc {
	return func(e *Engine) *Engine {
		e.faviconProbe = enable
		return e
	}
}

// WithCache configures engine to cache descriptions in c
func WithCache(c Cache) ConfFunc {
	return func(e *Engine) *Engine {
		if c != nil {
			e.Cache = c
		}
		return e
	}
}

// WithMemcache configures engine to cache descriptions in memcached
func WithMemcache(client *memcache.Client) ConfFunc {
	return func(e *Engine) *Engine {
		if client != nil {
			e.Cache = &memcacheCache{client: client}
		}
		return e
	}
}

// WithRedis configures engine to cache descriptions in redis for ttl
// duration; zero ttl means keys do not expire.
func WithRedis(client redis.UniversalClient, ttl time.Duration) ConfFunc {
	return func(e *Engine) *Engine {
		if client != nil {
			e.Cache = &redisCache{client: client, ttl: ttl}
		}
		return e
	}
}

// WithMaxResults configures http handler to only process n first urls it
// finds. n must be positive.
func WithMaxResults(n int) ConfFunc {
	return func(e *Engine) *Engine {
		if n > 0 {
			e.maxResults = n
		}
		return e
	}
}

// Logger describes set of methods used by Engine for logging; standard lib
// *log.Logger implements this interface.
type Logger interface {
	Print(v ...interface{})
	Printf(format string, v ...interface{})
	Println(v ...interface{})
}

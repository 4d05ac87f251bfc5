// Implements a streaming scanner of document head that collects Open Graph
// and Twitter Card declarations, plain <meta> author/description, icons and
// oEmbed discovery link

package linkpreview

import (
	"io"
	"regexp"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// Tag is a single metadata declaration taken from a <meta> element, such as
// og:image:width. Key is the property name inside its namespace (image), Sub
// is an optional compound suffix (width), Value is the raw content.
type Tag struct {
	Key, Sub, Value string
}

// pageMeta holds non-namespaced metadata of the page
type pageMeta struct {
	Author      string
	Description string
	Icon        map[string]string // keyed by size ("32") or "any"
}

// pageTags is a result of document head scan; og and twitter tags are kept in
// document order.
type pageTags struct {
	og         []Tag
	twitter    []Tag
	meta       pageMeta
	oembedLink string
}

const oembedJSONType = "application/json+oembed"

// reNamespaced matches namespaced property names like og:image:secure_url
var reNamespaced = regexp.MustCompile(`^(og|twitter):([^:]*)(?::(.*))?$`)

// parseTags tokenizes html read from r until <body> start tag or end of input
// and collects metadata tags. Content of <script> is seen by tokenizer as raw
// text, so tags inside scripts are never reported. Tokenizer unescapes
// attribute values, entities like &amp; are decoded.
//
// Use NewReader from golang.org/x/net/html/charset to ensure data is properly
// encoded.
func parseTags(r io.Reader) *pageTags {
	tags := new(pageTags)
	z := html.NewTokenizer(r)
	for {
		switch z.Next() {
		case html.ErrorToken:
			// io.EOF or truncated input, either way report what was
			// collected so far
			return tags
		case html.StartTagToken, html.SelfClosingTagToken:
			name, hasAttr := z.TagName()
			switch atom.Lookup(name) {
			case atom.Body:
				return tags
			case atom.Meta:
				if hasAttr {
					tags.addMeta(tagAttrs(z))
				}
			case atom.Link:
				if hasAttr {
					tags.addLink(tagAttrs(z))
				}
			}
		}
	}
}

// tagAttrs returns attributes of the current tag; when attribute is repeated,
// the first one is used.
func tagAttrs(z *html.Tokenizer) map[string]string {
	attrs := make(map[string]string)
	for hasAttr := true; hasAttr; {
		var k, v []byte
		k, v, hasAttr = z.TagAttr()
		if _, ok := attrs[string(k)]; !ok {
			attrs[string(k)] = string(v)
		}
	}
	return attrs
}

func (t *pageTags) addMeta(attrs map[string]string) {
	property := attrs["property"]
	if property == "" {
		property = attrs["name"]
	}
	value := attrs["content"]
	if value == "" {
		value = attrs["value"]
	}
	if property == "" || value == "" {
		return
	}
	switch property {
	case "author":
		t.meta.Author = value
		return
	case "description":
		t.meta.Description = value
		return
	}
	m := reNamespaced.FindStringSubmatch(property)
	if m == nil {
		return
	}
	tag := Tag{Key: m[2], Sub: m[3], Value: value}
	switch m[1] {
	case "og":
		t.og = append(t.og, tag)
	case "twitter":
		t.twitter = append(t.twitter, tag)
	}
}

func (t *pageTags) addLink(attrs map[string]string) {
	href := strings.TrimSpace(attrs["href"])
	if href == "" {
		return
	}
	rel := strings.Fields(strings.ToLower(attrs["rel"]))
	for _, r := range rel {
		switch r {
		case "alternate", "alternative":
			if t.oembedLink == "" &&
				strings.EqualFold(strings.TrimSpace(attrs["type"]), oembedJSONType) {
				t.oembedLink = href
			}
		case "icon":
			if t.meta.Icon == nil {
				t.meta.Icon = make(map[string]string)
			}
			t.meta.Icon[iconSize(attrs["sizes"])] = href
		}
	}
}

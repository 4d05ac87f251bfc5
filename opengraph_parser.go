// Implements the Open Graph grammar ( http://ogp.me/ ): repeated properties,
// structured properties with sub-attributes and the object type taxonomy

package linkpreview

import (
	"strconv"
	"strings"
)

// ogProperty describes how a whitelisted og:* property is folded
type ogProperty struct {
	defaultSub string          // non-empty for structured properties
	subs       map[string]bool // allowed sub-attributes
}

func (p ogProperty) structured() bool { return p.defaultSub != "" }

var ogProperties = map[string]ogProperty{
	"title":       {},
	"type":        {},
	"url":         {},
	"description": {},
	"determiner":  {},
	"site_name":   {},
	"image":       {defaultSub: "url", subs: set("url", "secure_url", "type", "width", "height", "alt")},
	"video":       {defaultSub: "url", subs: set("url", "secure_url", "type", "width", "height", "alt", "duration")},
	"audio":       {defaultSub: "url", subs: set("url", "secure_url", "type")},
	"locale":      {defaultSub: "primary", subs: set("alternate")},
}

// ogNumericSubs are sub-attributes holding integers
var ogNumericSubs = set("width", "height", "duration", "age")

// ogTypes is the set of known object types
var ogTypes = set(
	"website",
	"article",
	"book",
	"profile",
	"photo",
	"place",
	"product",
	"books.author",
	"books.book",
	"books.genre",
	"business.business",
	"fitness.course",
	"fitness.unit",
	"fitness.weight",
	"game.achievement",
	"music.album",
	"music.playlist",
	"music.radio_station",
	"music.song",
	"product.group",
	"product.item",
	"restaurant.menu",
	"restaurant.menu_item",
	"restaurant.menu_section",
	"restaurant.restaurant",
	"video.episode",
	"video.movie",
	"video.other",
	"video.tv_show",
)

func set(keys ...string) map[string]bool {
	m := make(map[string]bool, len(keys))
	for _, k := range keys {
		m[k] = true
	}
	return m
}

// ogFold accumulates og:* tags
type ogFold struct {
	text    map[string]Values[string]
	objects map[string]Values[Object]
	used    bool
}

// openGraphDescribe folds og:* tags into Description. Sub-attribute tags only
// apply to the instance opened by the immediately preceding tag of the same
// property: og:image:width right after og:image (or its other sub-attributes)
// sets width of that image, the same tag anywhere else is dropped.
func openGraphDescribe(tags []Tag) *Description {
	f := &ogFold{
		text:    make(map[string]Values[string]),
		objects: make(map[string]Values[Object]),
	}
	var last string
	for _, tag := range tags {
		if f.add(tag, last) {
			last = tag.Key
			continue
		}
		last = ""
	}
	return f.description()
}

// add applies a single tag, last is a property of the previous successfully
// applied tag. It reports whether tag was applied.
func (f *ogFold) add(tag Tag, last string) bool {
	prop, ok := ogProperties[tag.Key]
	if !ok {
		return false
	}
	sub := tag.Sub
	if prop.structured() && sub == prop.defaultSub {
		sub = ""
	}
	if sub == "" {
		if prop.structured() {
			f.objects[tag.Key] = append(f.objects[tag.Key],
				Object{prop.defaultSub: {Text(tag.Value)}})
		} else {
			f.text[tag.Key] = append(f.text[tag.Key], tag.Value)
		}
		f.used = true
		return true
	}
	if !prop.subs[sub] || last != tag.Key {
		return false
	}
	val := Text(tag.Value)
	if ogNumericSubs[sub] {
		n, err := strconv.Atoi(strings.TrimSpace(tag.Value))
		if err != nil {
			return false
		}
		val = Int(n)
	}
	obj := *f.objects[tag.Key].Last()
	switch {
	case sub == "secure_url":
		if obj.Get("url") == "" {
			obj["url"] = Values[Scalar]{val}
		} else {
			obj["secure_url"] = Values[Scalar]{val}
		}
	case obj.Has(sub):
		obj[sub] = append(obj[sub], val)
	default:
		obj[sub] = Values[Scalar]{val}
	}
	return true
}

func (f *ogFold) description() *Description {
	d := &Description{
		URL:         f.text["url"],
		Title:       f.text["title"],
		Description: f.text["description"],
		SiteName:    f.text["site_name"],
		Determiner:  f.text["determiner"],
		Image:       f.objects["image"],
		Video:       f.objects["video"],
		Audio:       f.objects["audio"],
		Locale:      f.objects["locale"],
	}
	d.Type, d.CustomType = ogType(f.text["type"].First())
	if f.used {
		d.Sources = []string{SourceOpenGraph}
	}
	return d
}

// ogType maps og:type value to one of known types. Namespaced custom types
// like "flickr_photos:photo" are reported as custom type, while type is set
// from the part after the last colon if it is known, or to "custom".
func ogType(s string) (typ, custom string) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "website", ""
	}
	if idx := strings.LastIndexByte(s, ':'); idx >= 0 {
		if t := s[idx+1:]; ogTypes[t] {
			return t, s
		}
		return "custom", s
	}
	if ogTypes[s] {
		return s, ""
	}
	return "website", ""
}

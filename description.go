package linkpreview

import (
	"bytes"

	"github.com/artyom/oembed"
)

// Names of the sub-systems that may contribute to a Description, as listed in
// its Sources field.
const (
	SourceOpenGraph = "ogp"
	SourceTwitter   = "twitter"
	SourceResource  = "resource"
	SourceOembed    = "oembed"
)

// Description is the merged preview of a single resource. Open Graph
// properties that may repeat are kept as Values and encode either as a single
// value or as a list.
//
// Example of encoded Description:
//
//	{
//		"type": "video.movie",
//		"url": "http://www.imdb.com/title/tt0117500/",
//		"title": "The Rock",
//		"image": [
//			{"url": "http://ia.media-imdb.com/images/rock1.jpg", "width": 500},
//			{"url": "http://ia.media-imdb.com/images/rock2.jpg"}
//		],
//		"sources": ["ogp"]
//	}
type Description struct {
	Type        string         `json:"type"`
	CustomType  string         `json:"custom_type,omitempty"`
	URL         Values[string] `json:"url,omitempty"`
	Title       Values[string] `json:"title,omitempty"`
	Description Values[string] `json:"description,omitempty"`
	SiteName    Values[string] `json:"site_name,omitempty"`
	Determiner  Values[string] `json:"determiner,omitempty"`

	Image  Values[Object] `json:"image,omitempty"`
	Video  Values[Object] `json:"video,omitempty"`
	Audio  Values[Object] `json:"audio,omitempty"`
	Locale Values[Object] `json:"locale,omitempty"`

	Thumbnail *Thumbnail        `json:"thumbnail,omitempty"`
	Embed     *Embed            `json:"embed,omitempty"`
	App       map[string]*App   `json:"app,omitempty"`
	Player    *Media            `json:"player,omitempty"`
	Twitter   *TwitterMeta      `json:"twitter,omitempty"`
	Icon      map[string]string `json:"icon,omitempty"`
	Author    string            `json:"author,omitempty"`
	Sources   []string          `json:"sources,omitempty"`
}

// Empty reports whether d carries nothing but its type and url.
func (d *Description) Empty() bool {
	return d == nil || (len(d.Title) == 0 && len(d.Description) == 0 &&
		len(d.Image) == 0 && d.Embed == nil && d.Thumbnail == nil &&
		len(d.SiteName) == 0 && len(d.Sources) == 0)
}

func (d *Description) normalize() {
	for i, s := range d.Title {
		d.Title[i] = string(bytes.Join(bytes.Fields([]byte(s)), []byte{' '}))
	}
}

// addSource appends source name unless it is already listed.
func (d *Description) addSource(name string) {
	for _, s := range d.Sources {
		if s == name {
			return
		}
	}
	d.Sources = append(d.Sources, name)
}

// Thumbnail describes an image representing the resource, as reported by
// oEmbed provider.
type Thumbnail struct {
	URL    string `json:"url"`
	Width  int    `json:"width,omitempty"`
	Height int    `json:"height,omitempty"`
}

// Embed describes embeddable representation of the resource. Only fields with
// non-zero values are kept.
type Embed struct {
	Type   oembed.Type `json:"type,omitempty"`
	Height int         `json:"height,omitempty"`
	Width  int         `json:"width,omitempty"`
	URL    string      `json:"url,omitempty"`
	HTML   string      `json:"html,omitempty"`
	Size   int64       `json:"size,omitempty"` // content length, for images served directly
}

// Media is a Twitter card image or player.
type Media struct {
	URL    string `json:"url"`
	Width  int    `json:"width,omitempty"`
	Height int    `json:"height,omitempty"`
	Stream string `json:"stream,omitempty"`
	Alt    string `json:"alt,omitempty"`
}

func (m *Media) object() Object {
	o := Object{"url": {Text(m.URL)}}
	if m.Width != 0 {
		o["width"] = Values[Scalar]{Int(m.Width)}
	}
	if m.Height != 0 {
		o["height"] = Values[Scalar]{Int(m.Height)}
	}
	if m.Stream != "" {
		o["stream"] = Values[Scalar]{Text(m.Stream)}
	}
	if m.Alt != "" {
		o["alt"] = Values[Scalar]{Text(m.Alt)}
	}
	return o
}

// App describes a native application for one device, keyed by device name
// (iphone, ipad, googleplay) in Description.App.
type App struct {
	Name string `json:"name,omitempty"`
	ID   string `json:"id,omitempty"`
	URL  string `json:"url,omitempty"`
}

// TwitterMeta holds Twitter card type, site display name and Twitter
// identities of the site and of the content creator.
type TwitterMeta struct {
	Card            string `json:"card,omitempty"`
	Domain          string `json:"domain,omitempty"`
	SiteUsername    string `json:"site_username,omitempty"`
	SiteID          string `json:"site_id,omitempty"`
	CreatorUsername string `json:"creator_username,omitempty"`
	CreatorID       string `json:"creator_id,omitempty"`
}

func (t *TwitterMeta) empty() bool {
	return t == nil || *t == TwitterMeta{}
}

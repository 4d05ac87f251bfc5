// Implements Twitter Card markup parser
// ( https://developer.twitter.com/en/docs/twitter-for-websites/cards )

package linkpreview

import (
	"strconv"
	"strings"
)

// twitterCard holds twitter:* properties of the page
type twitterCard struct {
	Title       string
	Description string
	Meta        TwitterMeta
	Image       *Media
	Player      *Media
	App         map[string]*App // keyed by device
}

var twitterDevices = set("iphone", "ipad", "googleplay")

// twitterDescribe folds twitter:* tags. Unlike Open Graph, twitter grammar
// does not depend on the order of tags: image and player sub-attributes
// always apply to the single image/player of the card.
func twitterDescribe(tags []Tag) *twitterCard {
	card := new(twitterCard)
	for _, tag := range tags {
		switch tag.Key {
		case "card":
			card.Meta.Card = tag.Value
		case "title":
			card.Title = tag.Value
		case "description":
			card.Description = tag.Value
		case "domain":
			card.Meta.Domain = tag.Value
		case "site":
			switch tag.Sub {
			case "":
				card.Meta.SiteUsername = tag.Value
			case "id":
				card.Meta.SiteID = tag.Value
			}
		case "creator":
			switch tag.Sub {
			case "":
				card.Meta.CreatorUsername = tag.Value
			case "id":
				card.Meta.CreatorID = tag.Value
			}
		case "image":
			card.Image = mediaTag(card.Image, tag)
		case "player":
			card.Player = mediaTag(card.Player, tag)
		case "app":
			card.addApp(tag)
		}
	}
	// image or player without url are meaningless
	if card.Image != nil && card.Image.URL == "" {
		card.Image = nil
	}
	if card.Player != nil && card.Player.URL == "" {
		card.Player = nil
	}
	return card
}

func mediaTag(m *Media, tag Tag) *Media {
	if m == nil {
		m = new(Media)
	}
	switch tag.Sub {
	case "", "url", "src":
		m.URL = tag.Value
	case "width", "height":
		n, err := strconv.Atoi(strings.TrimSpace(tag.Value))
		if err != nil {
			return m
		}
		if tag.Sub == "width" {
			m.Width = n
		} else {
			m.Height = n
		}
	case "stream":
		m.Stream = tag.Value
	case "alt":
		m.Alt = tag.Value
	}
	return m
}

// addApp handles tags of twitter:app:{name,id,url}:{device} form
func (card *twitterCard) addApp(tag Tag) {
	property, device, ok := strings.Cut(tag.Sub, ":")
	if !ok || !twitterDevices[device] {
		return
	}
	switch property {
	case "name", "id", "url":
	default:
		return
	}
	if card.App == nil {
		card.App = make(map[string]*App)
	}
	app, ok := card.App[device]
	if !ok {
		app = new(App)
		card.App[device] = app
	}
	switch property {
	case "name":
		app.Name = tag.Value
	case "id":
		app.ID = tag.Value
	case "url":
		app.URL = tag.Value
	}
}

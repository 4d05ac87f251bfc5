package linkpreview

// merge combines partial descriptions into one. Open Graph description og is
// the base, every other source only fills fields that are still empty, in the
// following order:
//
//	url                      Open Graph, oEmbed, fallbackURL
//	site_name                oEmbed
//	description title image  Twitter card
//	description author icon  page meta tags
//	thumbnail embed          oEmbed
//	app player twitter       Twitter card
//
// Source name is added to Sources when it filled at least one field.
func merge(og *Description, tw *twitterCard, meta pageMeta, oe *oembedResult, fallbackURL string) *Description {
	d := og
	if d == nil {
		d = new(Description)
	}
	if tw == nil {
		tw = new(twitterCard)
	}
	if oe == nil {
		oe = new(oembedResult)
	}

	if len(d.URL) == 0 {
		switch {
		case oe.URL != "":
			d.URL = Values[string]{oe.URL}
			d.addSource(SourceOembed)
		case fallbackURL != "":
			d.URL = Values[string]{fallbackURL}
		}
	}

	if fillText(&d.SiteName, oe.SiteName) {
		d.addSource(SourceOembed)
	}

	if fillText(&d.Description, tw.Description) {
		d.addSource(SourceTwitter)
	}
	if fillText(&d.Title, tw.Title) {
		d.addSource(SourceTwitter)
	}
	if len(d.Image) == 0 && tw.Image != nil {
		d.Image = Values[Object]{tw.Image.object()}
		d.addSource(SourceTwitter)
	}

	if fillText(&d.Description, meta.Description) {
		d.addSource(SourceResource)
	}
	if d.Author == "" && meta.Author != "" {
		d.Author = meta.Author
		d.addSource(SourceResource)
	}
	if len(d.Icon) == 0 && len(meta.Icon) != 0 {
		d.Icon = meta.Icon
		d.addSource(SourceResource)
	}

	if d.Thumbnail == nil && oe.Thumbnail != nil {
		d.Thumbnail = oe.Thumbnail
		d.addSource(SourceOembed)
	}
	if d.Embed == nil && oe.Embed != nil {
		d.Embed = oe.Embed
		d.addSource(SourceOembed)
	}

	if len(d.App) == 0 && len(tw.App) != 0 {
		d.App = tw.App
		d.addSource(SourceTwitter)
	}
	if d.Player == nil && tw.Player != nil {
		d.Player = tw.Player
		d.addSource(SourceTwitter)
	}
	if d.Twitter.empty() && !tw.Meta.empty() {
		meta := tw.Meta
		d.Twitter = &meta
		d.addSource(SourceTwitter)
	}

	if d.Type == "" {
		d.Type = "website"
	}
	if len(d.Sources) == 0 {
		d.Sources = nil
	}
	return d
}

// fillText sets dst to a single value s if dst is empty and s is not. It
// reports whether dst was set.
func fillText(dst *Values[string], s string) bool {
	if len(*dst) != 0 || s == "" {
		return false
	}
	*dst = Values[string]{s}
	return true
}

// oembedOnly returns description of the resource that could not be fetched
// directly, built from its oEmbed description alone.
func oembedOnly(oe *oembedResult, link string) *Description {
	d := &Description{Type: "website", URL: Values[string]{link}}
	if oe == nil {
		return d
	}
	if fillText(&d.SiteName, oe.SiteName) {
		d.addSource(SourceOembed)
	}
	if oe.Thumbnail != nil {
		d.Thumbnail = oe.Thumbnail
		d.addSource(SourceOembed)
	}
	if oe.Embed != nil {
		d.Embed = oe.Embed
		d.addSource(SourceOembed)
	}
	return d
}

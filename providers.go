package linkpreview

import (
	"bytes"
	_ "embed"
)

// providersData is a subset of https://oembed.com/providers.json used when no
// other providers are configured with WithProviders
//
//go:embed providers.json
var providersData []byte

// DefaultProviders returns list of oEmbed providers used by default
func DefaultProviders() ([]Provider, error) {
	return ParseProviders(bytes.NewReader(providersData))
}

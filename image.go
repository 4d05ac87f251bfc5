package linkpreview

import (
	"context"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"net/http"
	"net/url"
	"strings"
)

// maxImageHeader limits how much of image is read to detect its dimensions
const maxImageHeader = 256 * 1024

// imageDimensions tries to retrieve enough of image to get its dimensions.
func (e *Engine) imageDimensions(ctx context.Context, imageURL string) (width, height int, err error) {
	switch {
	case strings.HasPrefix(imageURL, "http"):
	case strings.HasPrefix(imageURL, "//"):
		// most probably scheme-independent url, use http as fallback
		imageURL = "http:" + imageURL
	default:
		return 0, 0, errors.New("unsupported image url")
	}
	resp, err := e.httpGet(ctx, imageURL)
	if err != nil {
		return 0, 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		return 0, 0, errors.New(resp.Status)
	}
	return decodeDimensions(resp.Body, resp.Header.Get("Content-Type"))
}

// decodeDimensions reads image config from r if contentType is one of the
// supported image formats.
func decodeDimensions(r io.Reader, contentType string) (width, height int, err error) {
	switch ct := strings.ToLower(contentType); ct {
	case "image/jpeg", "image/png", "image/gif":
	default:
		// for broken servers responding with image/png;charset=UTF-8
		// (i.e. www.evernote.com)
		if strings.HasPrefix(ct, "image/jpeg") ||
			strings.HasPrefix(ct, "image/png") ||
			strings.HasPrefix(ct, "image/gif") {
			break
		}
		return 0, 0, fmt.Errorf("unsupported content-type %q", ct)
	}
	cfg, _, err := image.DecodeConfig(io.LimitReader(r, maxImageHeader))
	if err != nil {
		return 0, 0, err
	}
	return cfg.Width, cfg.Height, nil
}

// fillImageDimensions sets width and height of the first image of d if any of
// them is missing. Relative image urls are resolved against d url.
func (e *Engine) fillImageDimensions(ctx context.Context, d *Description) {
	if len(d.Image) == 0 {
		return
	}
	img := d.Image[0]
	if img.Has("width") && img.Has("height") {
		return
	}
	src := img.Get("url")
	if src == "" {
		return
	}
	if base, err := url.Parse(d.URL.First()); err == nil && base.IsAbs() {
		src = resolveReference(base, src)
	}
	width, height, err := e.imageDimensions(ctx, src)
	if err != nil {
		e.Log.Printf("dimensions detect for image %q: %v", src, err)
		return
	}
	img["width"] = Values[Scalar]{Int(width)}
	img["height"] = Values[Scalar]{Int(height)}
}

package linkpreview

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/artyom/httpflags"
	"golang.org/x/sync/errgroup"
)

// maxParallel limits number of urls described concurrently by ServeHTTP
const maxParallel = 8

func (e *Engine) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet, http.MethodPost:
	default:
		w.Header().Set("Allow", "GET, POST")
		http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
		return
	}
	args := struct {
		Content  string `flag:"content"`
		Callback string `flag:"callback"`
		Markdown bool   `flag:"markdown"`
	}{}
	if err := httpflags.Parse(&args, r); err != nil || args.Content == "" {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	var urls []string
	switch {
	case args.Markdown:
		urls = parseMarkdownURLs(args.Content, e.maxResults)
	default:
		urls = parseURLsMax(args.Content, e.maxResults)
	}

	ctx := r.Context()
	results := make([]*Description, len(urls))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxParallel)
	for i, link := range urls {
		i, link := i, link
		g.Go(func() error {
			results[i] = e.Describe(gctx, link)
			return nil
		})
	}
	g.Wait()
	if ctx.Err() != nil {
		return
	}

	if args.Callback != "" {
		w.Header().Set("Content-Type", "application/x-javascript")
		w.Header().Set("Access-Control-Allow-Origin", "*")
		io.WriteString(w, args.Callback+"(")
		json.NewEncoder(w).Encode(results)
		w.Write([]byte(")"))
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(results)
}

// Command describe prints link descriptions as JSON.
//
// Usage:
//
//	describe url https://example.com/article [more urls...]
//	describe file page.html --url https://example.com/article
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/Doist/linkpreview"
	"github.com/artyom/useragent"
	"github.com/spf13/cobra"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

type options struct {
	cache       string
	cacheTTL    time.Duration
	providers   string
	noProviders bool
	dimensions  bool
	favicon     bool
	timeout     time.Duration
	userAgent   string
	verbose     bool
}

func newRootCmd() *cobra.Command {
	opts := &options{}
	root := &cobra.Command{
		Use:   "describe",
		Short: "Describe web resources for link previews",
		Long: `Describe fetches web resources and prints their descriptions as JSON,
combining Open Graph, Twitter Card, html meta tags and oEmbed metadata.`,
		SilenceUsage: true,
	}
	pf := root.PersistentFlags()
	pf.StringVar(&opts.cache, "cache", "", "path to local cache database, disabled if empty")
	pf.DurationVar(&opts.cacheTTL, "cache-ttl", 24*time.Hour, "expiration time of cached descriptions")
	pf.StringVar(&opts.providers, "providers", "", "file with oEmbed providers in https://oembed.com/providers.json format")
	pf.BoolVar(&opts.noProviders, "no-providers", false, "disable lookup of oEmbed providers by url")
	pf.BoolVar(&opts.dimensions, "dimensions", false, "fetch image dimensions")
	pf.BoolVar(&opts.favicon, "favicon", false, "check for /favicon.ico if page has no icon links")
	pf.DurationVar(&opts.timeout, "timeout", 30*time.Second, "timeout for remote i/o")
	pf.StringVar(&opts.userAgent, "ua", "Mozilla/5.0 (compatible; linkpreview/1.0)", "User-Agent of outgoing requests")
	pf.BoolVarP(&opts.verbose, "verbose", "v", false, "log progress to stderr")

	root.AddCommand(newURLCmd(opts), newFileCmd(opts))
	return root
}

func newURLCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "url <url>...",
		Short: "Fetch and describe urls",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			engine, closeFn, err := opts.engine(cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer closeFn()
			out := make([]*linkpreview.Description, 0, len(args))
			for _, link := range args {
				out = append(out, engine.Describe(cmd.Context(), link))
			}
			return writeJSON(cmd.OutOrStdout(), out)
		},
	}
}

func newFileCmd(opts *options) *cobra.Command {
	var link, contentType string
	cmd := &cobra.Command{
		Use:   "file <path>",
		Short: "Describe html document read from file, - reads stdin",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var doc []byte
			var err error
			if args[0] == "-" {
				doc, err = io.ReadAll(cmd.InOrStdin())
			} else {
				doc, err = os.ReadFile(args[0])
			}
			if err != nil {
				return err
			}
			engine, closeFn, err := opts.engine(cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer closeFn()
			return writeJSON(cmd.OutOrStdout(), engine.Parse(cmd.Context(), doc, contentType, link))
		},
	}
	cmd.Flags().StringVar(&link, "url", "", "url document was fetched from, used to resolve relative links")
	cmd.Flags().StringVar(&contentType, "content-type", "text/html", "Content-Type document was served with")
	cmd.MarkFlagRequired("url")
	return cmd
}

// engine builds linkpreview.Engine from options. Returned function releases
// resources held by engine and must be called once engine is no longer used.
func (o *options) engine(stderr io.Writer) (*linkpreview.Engine, func(), error) {
	tr := http.DefaultTransport.(*http.Transport).Clone()
	client := &http.Client{
		Timeout:   o.timeout,
		Transport: useragent.Set(tr, o.userAgent),
	}
	conf := []linkpreview.ConfFunc{
		linkpreview.WithHTTPClient(client),
		linkpreview.WithImageDimensions(o.dimensions),
		linkpreview.WithFaviconProbe(o.favicon),
	}
	if o.verbose {
		logger := slog.New(slog.NewTextHandler(stderr, nil))
		conf = append(conf, linkpreview.WithLogger(slog.NewLogLogger(logger.Handler(), slog.LevelInfo)))
	}
	switch {
	case o.noProviders:
		conf = append(conf, linkpreview.WithoutProviders())
	case o.providers != "":
		f, err := os.Open(o.providers)
		if err != nil {
			return nil, nil, err
		}
		ps, err := linkpreview.ParseProviders(f)
		f.Close()
		if err != nil {
			return nil, nil, fmt.Errorf("%s: %w", o.providers, err)
		}
		conf = append(conf, linkpreview.WithProviders(ps))
	}
	closeFn := func() {}
	if o.cache != "" {
		cache, err := linkpreview.OpenBoltCache(o.cache, o.cacheTTL)
		if err != nil {
			return nil, nil, err
		}
		if n, err := cache.Cleanup(); err == nil && n > 0 && o.verbose {
			fmt.Fprintf(stderr, "removed %d expired cache entries\n", n)
		}
		conf = append(conf, linkpreview.WithCache(cache))
		closeFn = func() { cache.Close() }
	}
	return linkpreview.New(conf...), closeFn, nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

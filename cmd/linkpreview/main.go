// Command linkpreview implements http server exposing link description API
// endpoint
package main

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/cookiejar"
	"os"
	"strings"
	"time"

	"github.com/Doist/linkpreview"
	"github.com/artyom/autoflags"
	"github.com/artyom/useragent"
	"github.com/bradfitz/gomemcache/memcache"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"golang.org/x/net/publicsuffix"
)

func main() {
	args := struct {
		Listen         string        `flag:"listen,address to listen, set both -sslcert and -sslkey for HTTPS"`
		Metrics        string        `flag:"metrics,address to serve prometheus metrics on, disabled if empty"`
		Cert           string        `flag:"sslcert,path to certificate file (PEM format)"`
		Key            string        `flag:"sslkey,path to certificate file (PEM format)"`
		Cache          string        `flag:"cache,address of memcached, disabled if empty"`
		Redis          string        `flag:"redis,redis url (redis://host:port/db) to cache descriptions in, disabled if empty"`
		RedisTTL       time.Duration `flag:"redisTTL,expiration time of descriptions cached in redis"`
		Blocklist      string        `flag:"blocklist,file with url prefixes to blocklist, one per line"`
		Whitelist      string        `flag:"whitelist,file with url schemes (https://*.example.com/*) allowed to fetch, one per line"`
		Providers      string        `flag:"providers,file with oEmbed providers in https://oembed.com/providers.json format"`
		NoProviders    bool          `flag:"noProviders,disable lookup of oEmbed providers by url"`
		PrivateSubnets string        `flag:"privateSubnets,file with subnets in CIDR notation to block requests to, one per line"`
		GlobalOnly     bool          `flag:"globalOnly,allow only connections to global unicast IPs"`
		MaxWidth       int           `flag:"maxWidth,maximum width of oEmbed embeds"`
		MaxHeight      int           `flag:"maxHeight,maximum height of oEmbed embeds"`
		WithDimensions bool          `flag:"withDimensions,return image dimensions if possible (extra request to fetch image)"`
		Favicon        bool          `flag:"favicon,check for /favicon.ico if page has no icon links"`
		Timeout        time.Duration `flag:"timeout,timeout for remote i/o"`
		UserAgent      string        `flag:"ua,User-Agent of outgoing requests"`
		LogLevel       string        `flag:"loglevel,log level (debug, info, warn, error)"`
	}{
		Listen:    "localhost:8080",
		Metrics:   "localhost:9090",
		RedisTTL:  24 * time.Hour,
		Timeout:   30 * time.Second,
		UserAgent: "Mozilla/5.0 (compatible; linkpreview/1.0; +https://github.com/Doist/linkpreview)",
		LogLevel:  "info",
	}
	autoflags.Define(&args)
	flag.Parse()

	logger := newLogger(args.LogLevel)
	slog.SetDefault(logger)
	fatal := func(err error) {
		logger.Error("startup", "err", err)
		os.Exit(1)
	}

	if args.Timeout < 0 {
		args.Timeout = 0
	}
	jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		fatal(err)
	}
	var tr http.RoundTripper = &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}
	if args.PrivateSubnets != "" || args.GlobalOnly {
		var sn []*net.IPNet
		if args.PrivateSubnets != "" {
			if sn, err = readSubnets(args.PrivateSubnets); err != nil {
				fatal(err)
			}
		}
		tr = restrictedTransport(sn, args.GlobalOnly)
	}
	transport := tr.(*http.Transport)
	httpClient := &http.Client{
		CheckRedirect: failOnLoginPages,
		Timeout:       args.Timeout,
		Jar:           jar,
		Transport:     useragent.Set(transport, args.UserAgent),
	}

	configs := []linkpreview.ConfFunc{
		linkpreview.WithExtraHeaders(map[string]string{
			"Accept-Language": "en;q=1, *;q=0.5",
		}),
		linkpreview.WithLogger(slog.NewLogLogger(logger.Handler(), slog.LevelInfo)),
		linkpreview.WithHTTPClient(httpClient),
		linkpreview.WithImageDimensions(args.WithDimensions),
		linkpreview.WithFaviconProbe(args.Favicon),
		linkpreview.WithEmbedSize(args.MaxWidth, args.MaxHeight),
	}
	if args.Blocklist != "" {
		prefixes, err := readLines(args.Blocklist, func(b []byte) bool {
			return bytes.HasPrefix(b, []byte("http"))
		})
		if err != nil {
			fatal(err)
		}
		configs = append(configs, linkpreview.WithBlocklistPrefixes(prefixes))
	}
	if args.Whitelist != "" {
		schemes, err := readLines(args.Whitelist, func(b []byte) bool {
			return len(b) != 0 && b[0] != '#'
		})
		if err != nil {
			fatal(err)
		}
		configs = append(configs, linkpreview.WithWhitelist(schemes))
	}
	switch {
	case args.NoProviders:
		configs = append(configs, linkpreview.WithoutProviders())
	case args.Providers != "":
		ps, err := readProviders(args.Providers)
		if err != nil {
			fatal(err)
		}
		configs = append(configs, linkpreview.WithProviders(ps))
	}
	switch {
	case args.Redis != "":
		opts, err := redis.ParseURL(args.Redis)
		if err != nil {
			fatal(err)
		}
		client := redis.NewClient(opts)
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		err = client.Ping(ctx).Err()
		cancel()
		if err != nil {
			fatal(fmt.Errorf("redis: %w", err))
		}
		logger.Info("enable redis cache", "addr", opts.Addr, "db", opts.DB)
		configs = append(configs, linkpreview.WithRedis(client, args.RedisTTL))
	case args.Cache != "":
		logger.Info("enable memcached cache", "addr", args.Cache)
		configs = append(configs, linkpreview.WithMemcache(memcache.New(args.Cache)))
	}

	handler := linkpreview.New(configs...)
	if args.Metrics != "" {
		go func(addr string) {
			mux := http.NewServeMux()
			mux.Handle("/metrics", promhttp.Handler())
			logger.Error("metrics server", "err", http.ListenAndServe(addr, mux))
		}(args.Metrics)
	}
	go func() {
		// on a highly used system service can accumulate a lot of idle
		// connections occupying memory; force periodic close of them
		for range time.NewTicker(2 * time.Minute).C {
			transport.CloseIdleConnections()
		}
	}()

	srv := &http.Server{
		Addr:         args.Listen,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  30 * time.Second,
		Handler:      handler,
		ErrorLog:     slog.NewLogLogger(logger.Handler(), slog.LevelWarn),
	}
	logger.Info("listening", "addr", args.Listen)
	if args.Cert != "" && args.Key != "" {
		fatal(srv.ListenAndServeTLS(args.Cert, args.Key))
	} else {
		fatal(srv.ListenAndServe())
	}
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		fmt.Fprintf(os.Stderr, "invalid log level %s: %v, using info\n", level, err)
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}

func readProviders(name string) ([]linkpreview.Provider, error) {
	f, err := os.Open(name)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return linkpreview.ParseProviders(f)
}

// readLines returns lines of the named file for which keep returns true
func readLines(name string, keep func([]byte) bool) ([]string, error) {
	f, err := os.Open(name)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	s := bufio.NewScanner(io.LimitReader(f, 512*1024))
	var lines []string
	for s.Scan() {
		if b := bytes.TrimSpace(s.Bytes()); keep(b) {
			lines = append(lines, string(b))
		}
	}
	if err := s.Err(); err != nil {
		return nil, err
	}
	return lines, nil
}

func readSubnets(name string) ([]*net.IPNet, error) {
	lines, err := readLines(name, func(b []byte) bool { return len(b) != 0 && b[0] != '#' })
	if err != nil {
		return nil, err
	}
	subnets := make([]*net.IPNet, 0, len(lines))
	for _, s := range lines {
		_, n, err := net.ParseCIDR(s)
		if err != nil {
			return nil, err
		}
		subnets = append(subnets, n)
	}
	return subnets, nil
}

// restrictedTransport returns http.Transport that blocks attempts to connect
// to specified private subnets, if globalOnly specified, connections only
// allowed to IPs for which IsGlobalUnicast() is true.
func restrictedTransport(privateSubnets []*net.IPNet, globalOnly bool) *http.Transport {
	dialer := &net.Dialer{
		Timeout:   30 * time.Second,
		KeepAlive: 30 * time.Second,
	}
	dialFunc := func(ctx context.Context, network, address string) (net.Conn, error) {
		host, port, err := net.SplitHostPort(address)
		if err != nil {
			return nil, err
		}
		ips, err := net.DefaultResolver.LookupIP(ctx, "ip", host)
		if err != nil {
			return nil, err
		}
		if err := checkIPs(ips, privateSubnets, globalOnly); err != nil {
			return nil, err
		}
		return dialer.DialContext(ctx, network, net.JoinHostPort(ips[0].String(), port))
	}
	tr := http.DefaultTransport.(*http.Transport).Clone()
	tr.DialContext = dialFunc
	return tr
}

func checkIPs(ips []net.IP, privateSubnets []*net.IPNet, globalOnly bool) error {
	if len(ips) == 0 {
		return errors.New("no addresses to dial")
	}
	for _, ip := range ips {
		if globalOnly && !ip.IsGlobalUnicast() {
			return fmt.Errorf("dialing to non-global ip %v is prohibited", ip)
		}
		for _, subnet := range privateSubnets {
			if subnet.Contains(ip) {
				return fmt.Errorf("dialing to ip %v from subnet %v is prohibited", ip, subnet)
			}
		}
	}
	return nil
}

// failOnLoginPages can be used as http.Client.CheckRedirect to skip redirects
// to login pages of most commonly used services or most commonly named login
// pages. It also checks depth of redirect chain and stops on more then 5
// consecutive redirects.
func failOnLoginPages(req *http.Request, via []*http.Request) error {
	if len(via) >= 5 {
		return errors.New("stopped after 5 redirects")
	}
	if strings.Contains(strings.ToLower(req.URL.Host), "login") ||
		strings.Contains(strings.ToLower(req.URL.Path), "login") {
		return errWantLogin
	}
	u := *req.URL
	u.RawQuery, u.Fragment = "", ""
	if _, ok := loginPages[u.String()]; ok {
		return errWantLogin
	}
	return nil
}

var errWantLogin = errors.New("resource requires login")

// loginPages is a set of popular services' known login pages
var loginPages = map[string]struct{}{
	"https://bitbucket.org/account/signin/": {},
}

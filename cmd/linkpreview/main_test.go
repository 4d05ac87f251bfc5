package main

import (
	"net"
	"net/http"
	"net/url"
	"testing"
)

func TestFailOnLoginPages(t *testing.T) {
	table := []struct {
		url   string
		via   int
		login bool
		fail  bool
	}{
		{url: "https://example.com/article", via: 1},
		{url: "https://login.example.com/", via: 1, login: true, fail: true},
		{url: "https://example.com/Login?next=/", via: 1, login: true, fail: true},
		{url: "https://bitbucket.org/account/signin/?next=/repo", via: 1, login: true, fail: true},
		{url: "https://example.com/article", via: 5, fail: true},
	}
	for _, tt := range table {
		u, err := url.Parse(tt.url)
		if err != nil {
			t.Fatal(err)
		}
		err = failOnLoginPages(&http.Request{URL: u}, make([]*http.Request, tt.via))
		if (err != nil) != tt.fail {
			t.Errorf("%s with %d redirects: got error %v", tt.url, tt.via, err)
			continue
		}
		if tt.login && err != errWantLogin {
			t.Errorf("%s: got %v, want %v", tt.url, err, errWantLogin)
		}
	}
}

func TestCheckIPs(t *testing.T) {
	_, private, err := net.ParseCIDR("10.0.0.0/8")
	if err != nil {
		t.Fatal(err)
	}
	subnets := []*net.IPNet{private}
	table := []struct {
		ip         string
		globalOnly bool
		fail       bool
	}{
		{ip: "93.184.216.34"},
		{ip: "10.1.2.3", fail: true},
		{ip: "127.0.0.1"},
		{ip: "127.0.0.1", globalOnly: true, fail: true},
		{ip: "8.8.8.8", globalOnly: true},
	}
	for _, tt := range table {
		err := checkIPs([]net.IP{net.ParseIP(tt.ip)}, subnets, tt.globalOnly)
		if (err != nil) != tt.fail {
			t.Errorf("%s (globalOnly=%v): unexpected error state: %v", tt.ip, tt.globalOnly, err)
		}
	}
	if err := checkIPs(nil, nil, false); err == nil {
		t.Error("empty address list must be rejected")
	}
}

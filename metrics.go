package linkpreview

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	describeOutcomes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "linkpreview_describe_total",
		Help: "Number of described urls by outcome",
	}, []string{"outcome"})

	sourcesUsed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "linkpreview_sources_total",
		Help: "Number of descriptions each metadata source contributed to",
	}, []string{"source"})

	oembedRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "linkpreview_oembed_requests_total",
		Help: "Number of oEmbed requests by result",
	}, []string{"result"})
)

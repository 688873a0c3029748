package metrics

import "github.com/prometheus/client_golang/prometheus"

type Observer interface {
	Observe(val float64, labels ...string)

	// for now we will tightly couple to the prometheus collector type
	// the go otel metrics sdk also has a prometheus adapter that implements this interface.
	prometheus.Collector
}

type Metrics struct {
	MessagesCount       Observer
	CommandCount        Observer
	UnknownCommandCount Observer
	DeliveryCount       Observer
	InlineCount         Observer
	InlineDroppedCount  Observer
	Plugins             Observer
	HandlerLatency      Observer
	PlaygroundLatency   Observer
}

func (m Metrics) Collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.MessagesCount,
		m.CommandCount,
		m.UnknownCommandCount,
		m.DeliveryCount,
		m.InlineCount,
		m.InlineDroppedCount,
		m.Plugins,
		m.HandlerLatency,
		m.PlaygroundLatency,
	}
}

// Discard returns metrics which record nothing.
func Discard() *Metrics {
	return &Metrics{
		MessagesCount:       discard{},
		CommandCount:        discard{},
		UnknownCommandCount: discard{},
		DeliveryCount:       discard{},
		InlineCount:         discard{},
		InlineDroppedCount:  discard{},
		Plugins:             discard{},
		HandlerLatency:      discard{},
		PlaygroundLatency:   discard{},
	}
}

type discard struct{}

func (discard) Observe(val float64, labels ...string) {}
func (discard) Describe(chan<- *prometheus.Desc)      {}
func (discard) Collect(chan<- prometheus.Metric)      {}

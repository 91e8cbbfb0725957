package query

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
)

type metrics struct {
	fetches *prometheus.CounterVec
	dedup   prometheus.Counter
	hits    prometheus.Counter
	retries prometheus.Counter
}

func newMetrics(reg prometheus.Registerer) *metrics {
	m := &metrics{
		fetches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "calldesk",
			Subsystem: "query",
			Name:      "fetches_total",
			Help:      "Fetch functions executed, by resource.",
		}, []string{"resource"}),
		dedup: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "calldesk",
			Subsystem: "query",
			Name:      "dedup_total",
			Help:      "Reads that shared an in-flight fetch.",
		}),
		hits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "calldesk",
			Subsystem: "query",
			Name:      "cache_hits_total",
			Help:      "Reads answered from cached data.",
		}),
		retries: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "calldesk",
			Subsystem: "query",
			Name:      "retries_total",
			Help:      "Fetch attempts after the first one.",
		}),
	}
	if reg == nil {
		return m
	}

	m.fetches = register(reg, m.fetches)
	m.dedup = register(reg, m.dedup)
	m.hits = register(reg, m.hits)
	m.retries = register(reg, m.retries)
	return m
}

// register adds c to reg, reusing an identical collector that is already there.
func register[C prometheus.Collector](reg prometheus.Registerer, c C) C {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(C); ok {
				return existing
			}
		}
		panic(err)
	}
	return c
}

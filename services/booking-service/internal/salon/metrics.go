package salon

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var cacheLookups = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "booking_salon_config_cache_lookups_total",
	Help: "Salon config cache lookups by result.",
}, []string{"result"})

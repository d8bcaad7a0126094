package registry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel"
)

var tracer = otel.Tracer("github.com/yllada/vpn-registry/registry")

var (
	// importPasses counts remote import passes.
	// Labels: outcome (completed, cancelled)
	importPasses = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "vpn_registry",
		Subsystem: "import",
		Name:      "passes_total",
		Help:      "Remote import passes by outcome",
	}, []string{"outcome"})

	// importedProfiles counts per-profile results inside import passes.
	// Labels: result (imported, skipped, excluded, failed)
	importedProfiles = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "vpn_registry",
		Subsystem: "import",
		Name:      "profiles_total",
		Help:      "Profiles processed by remote import passes",
	}, []string{"result"})

	// importDuration measures complete import passes.
	importDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "vpn_registry",
		Subsystem: "import",
		Name:      "duration_seconds",
		Help:      "Duration of remote import passes",
		Buckets:   prometheus.DefBuckets,
	})

	// storeWrites counts writes issued by the registry.
	// Labels: store (local, remote, backup), op (save, remove), status (ok, error)
	storeWrites = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "vpn_registry",
		Subsystem: "store",
		Name:      "writes_total",
		Help:      "Store writes issued by the registry",
	}, []string{"store", "op", "status"})
)

func writeStatus(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

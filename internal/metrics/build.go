package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// BuildInfo is constant 1, labeled with the binary's build metadata.
var BuildInfo = prometheus.NewGaugeVec(
	prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "build_info",
		Help:      "Build metadata of the running server",
	},
	[]string{"version", "commit", "goversion"},
)

var buildOnce sync.Once

// RegisterBuildInfo registers BuildInfo and sets its single series.
func RegisterBuildInfo(version, commit, goVersion string) {
	buildOnce.Do(func() {
		prometheus.MustRegister(BuildInfo)
		BuildInfo.WithLabelValues(version, commit, goVersion).Set(1)
	})
}

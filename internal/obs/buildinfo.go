package obs

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	buildInfoOnce sync.Once

	buildInfo = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "dac_build_info",
			Help: "Version, commit and contract account of the running dacd.",
		},
		[]string{"version", "commit", "contract"},
	)
)

// InitBuildInfo publishes the single build_info series. Calling it again
// replaces the previous labels.
func InitBuildInfo(version, commit, contract string) {
	buildInfoOnce.Do(func() { prometheus.MustRegister(buildInfo) })
	buildInfo.Reset()
	buildInfo.WithLabelValues(version, commit, contract).Set(1)
}

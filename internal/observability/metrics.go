package observability

import (
	"errors"
	"net/http"

	grpcprom "github.com/grpc-ecosystem/go-grpc-middleware/providers/prometheus"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// AssetMetrics counts what happens to resumes and logos.
type AssetMetrics struct {
	Uploads        *prometheus.CounterVec
	Deletes        *prometheus.CounterVec
	UploadDuration *prometheus.HistogramVec
	Orphans        *prometheus.CounterVec
	StagedBytes    *prometheus.HistogramVec
}

func NewAssetMetrics(reg prometheus.Registerer) (*AssetMetrics, error) {
	m := &AssetMetrics{
		Uploads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "portal_asset_uploads_total",
			Help: "Asset upload attempts by kind and result.",
		}, []string{"kind", "result"}),
		Deletes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "portal_asset_deletes_total",
			Help: "Remote asset deletions by kind and result.",
		}, []string{"kind", "result"}),
		UploadDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "portal_asset_upload_duration_seconds",
			Help:    "Time spent uploading to the remote store.",
			Buckets: []float64{0.01, 0.1, 0.5, 1, 2.5, 5, 10, 30},
		}, []string{"kind"}),
		Orphans: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "portal_asset_orphans_total",
			Help: "Remote objects left unreferenced after a failed record write.",
		}, []string{"kind"}),
		StagedBytes: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "portal_asset_staged_bytes",
			Help:    "Size of staged uploads.",
			Buckets: prometheus.ExponentialBuckets(16<<10, 2, 10),
		}, []string{"kind"}),
	}

	for _, c := range []prometheus.Collector{m.Uploads, m.Deletes, m.UploadDuration, m.Orphans, m.StagedBytes} {
		if err := register(reg, c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// HTTPMetrics counts API requests.
type HTTPMetrics struct {
	Requests *prometheus.CounterVec
	Latency  *prometheus.HistogramVec
}

func NewHTTPMetrics(reg prometheus.Registerer) (*HTTPMetrics, error) {
	m := &HTTPMetrics{
		Requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "portal_http_requests_total",
			Help: "HTTP requests by method, route and status.",
		}, []string{"method", "route", "status"}),
		Latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "portal_http_request_duration_seconds",
			Help:    "HTTP request latency.",
			Buckets: []float64{0.001, 0.01, 0.1, 0.5, 1, 2.5, 5, 10},
		}, []string{"method", "route"}),
	}
	for _, c := range []prometheus.Collector{m.Requests, m.Latency} {
		if err := register(reg, c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// InitGRPCMetrics builds server metrics for the admin gRPC server.
func InitGRPCMetrics(reg prometheus.Registerer) (*grpcprom.ServerMetrics, error) {
	serverMetrics := grpcprom.NewServerMetrics(
		grpcprom.WithServerHandlingTimeHistogram(
			grpcprom.WithHistogramBuckets([]float64{0.001, 0.01, 0.1, 0.5, 1, 2.5, 5, 10}),
		),
	)
	if err := register(reg, serverMetrics); err != nil {
		return nil, err
	}
	return serverMetrics, nil
}

// Handler serves the /metrics endpoint for gatherer.
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

func register(reg prometheus.Registerer, c prometheus.Collector) error {
	if err := reg.Register(c); err != nil {
		// If already registered, that's okay (useful for testing)
		var are prometheus.AlreadyRegisteredError
		if !errors.As(err, &are) {
			return err
		}
	}
	return nil
}

package server

import (
	metrics "github.com/rcrowley/go-metrics"
)

const (
	rejectTooLarge  = "too_large"
	rejectMediaType = "media_type"
)

// serviceMetrics tracks upload and download activity.
type serviceMetrics struct {
	registry metrics.Registry

	uploads       metrics.Counter
	uploadBytes   metrics.Counter
	downloads     metrics.Counter
	downloadBytes metrics.Counter
	rejectedSize  metrics.Counter
	rejectedType  metrics.Counter
	requests      metrics.Timer
}

func newServiceMetrics(registry metrics.Registry) *serviceMetrics {
	if registry == nil {
		registry = metrics.NewRegistry()
	}
	return &serviceMetrics{
		registry:      registry,
		uploads:       metrics.NewRegisteredCounter("uploads.accepted", registry),
		uploadBytes:   metrics.NewRegisteredCounter("uploads.bytes", registry),
		downloads:     metrics.NewRegisteredCounter("downloads.served", registry),
		downloadBytes: metrics.NewRegisteredCounter("downloads.bytes", registry),
		rejectedSize:  metrics.NewRegisteredCounter("uploads.rejected."+rejectTooLarge, registry),
		rejectedType:  metrics.NewRegisteredCounter("uploads.rejected."+rejectMediaType, registry),
		requests:      metrics.NewRegisteredTimer("http.requests", registry),
	}
}

func (m *serviceMetrics) uploaded(size int64) {
	if m == nil {
		return
	}
	m.uploads.Inc(1)
	m.uploadBytes.Inc(size)
}

func (m *serviceMetrics) downloaded(size int64) {
	if m == nil {
		return
	}
	m.downloads.Inc(1)
	m.downloadBytes.Inc(size)
}

func (m *serviceMetrics) rejected(reason string) {
	if m == nil {
		return
	}
	switch reason {
	case rejectTooLarge:
		m.rejectedSize.Inc(1)
	case rejectMediaType:
		m.rejectedType.Inc(1)
	}
}

func (m *serviceMetrics) snapshot() map[string]map[string]any {
	if m == nil {
		return map[string]map[string]any{}
	}
	return m.registry.GetAll()
}

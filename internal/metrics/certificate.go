package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"certEngine/internal/certificate"
)

var (
	certificatesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "certengine",
			Subsystem: "certificate",
			Name:      "generated_total",
			Help:      "证书生成次数，按类型与结果（ok 或失败步骤）区分。",
		},
		[]string{"kind", "outcome"},
	)

	generationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "certengine",
			Subsystem: "certificate",
			Name:      "generation_seconds",
			Help:      "单张证书生成耗时（秒）。",
			Buckets:   []float64{.05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"kind"},
	)

	templateFallbacks = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "certengine",
			Subsystem: "certificate",
			Name:      "template_fallbacks_total",
			Help:      "使用内置默认字段或默认背景的次数。",
		},
		[]string{"kind", "part", "reason"},
	)
)

// ObserveCertificate records one generation attempt.
func ObserveCertificate(kind certificate.Kind, cert *certificate.Certificate, err error, elapsed time.Duration) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
		if step, ok := certificate.FailedStep(err); ok {
			outcome = string(step)
		}
	}
	certificatesTotal.WithLabelValues(string(kind), outcome).Inc()
	generationSeconds.WithLabelValues(string(kind)).Observe(elapsed.Seconds())
	if cert == nil {
		return
	}
	if r := cert.Template.FieldsFallback; r != certificate.FallbackNone {
		templateFallbacks.WithLabelValues(string(kind), "fields", string(r)).Inc()
	}
	if r := cert.Template.ImageFallback; r != certificate.FallbackNone {
		templateFallbacks.WithLabelValues(string(kind), "image", string(r)).Inc()
	}
}

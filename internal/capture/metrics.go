package capture

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const metricsNamespace = "rtspcap"

type metrics struct {
	framesQueued       prometheus.Counter
	buffersDropped     *prometheus.CounterVec
	picturesForwarded  prometheus.Counter
	decodeErrors       prometheus.Counter
	decoderRecreations prometheus.Counter
	captions           prometheus.Counter
	pacingDelay        prometheus.Histogram
}

func newMetrics(reg prometheus.Registerer, queueDepth func() float64) *metrics {
	f := promauto.With(reg)
	f.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: metricsNamespace,
		Name:      "queue_depth",
		Help:      "Frames waiting for the decode worker.",
	}, queueDepth)

	return &metrics{
		framesQueued: f.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "frames_queued_total",
			Help:      "Frames handed to the decode worker.",
		}),
		buffersDropped: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "buffers_dropped_total",
			Help:      "Incoming buffers dropped, by reason.",
		}, []string{"reason"}),
		picturesForwarded: f.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "pictures_forwarded_total",
			Help:      "Pictures delivered to the consumer.",
		}),
		decodeErrors: f.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "decode_errors_total",
			Help:      "Frames the decoder rejected.",
		}),
		decoderRecreations: f.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "decoder_recreations_total",
			Help:      "Decoders retired because the stream resolution changed.",
		}),
		captions: f.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "captions_total",
			Help:      "Caption updates decoded from SEI.",
		}),
		pacingDelay: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Name:      "pacing_delay_seconds",
			Help:      "Delay applied before forwarding a picture.",
			Buckets:   []float64{0, .005, .01, .02, .04, .08, .16, .32, .64, 1},
		}),
	}
}

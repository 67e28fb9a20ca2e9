package holepunch

import (
	"errors"

	"github.com/go-kit/kit/metrics"
	"github.com/go-kit/kit/metrics/discard"
	kitprometheus "github.com/go-kit/kit/metrics/prometheus"
	"github.com/prometheus/client_golang/prometheus"
)

const (
	// MetricsSubsystem 本包所有指标共享的子系统名
	MetricsSubsystem = "holepunch"
)

// Metrics 打洞指标
type Metrics struct {
	// 尝试结果（role, result, reason）
	Attempts metrics.Counter
	// 准入拒绝（reason）
	Rejections metrics.Counter
	// 进行中的尝试
	InFlight metrics.Gauge
	// Initiator 测得的中继 RTT
	RTTSeconds metrics.Histogram
	// 尝试耗时（result）
	DurationSeconds metrics.Histogram
	// 拨号结果（result）
	Dials metrics.Counter
}

// PrometheusMetrics 创建并向 reg 注册 Prometheus 指标
//
// 同名指标已注册时复用已有的收集器，多个服务实例可以共享同一个 reg。
func PrometheusMetrics(reg prometheus.Registerer, namespace string) (*Metrics, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	attempts := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: MetricsSubsystem,
		Name:      "attempts_total",
		Help:      "Number of finished hole punch attempts.",
	}, []string{"role", "result", "reason"})
	rejections := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: MetricsSubsystem,
		Name:      "rejections_total",
		Help:      "Number of hole punch requests rejected by admission control.",
	}, []string{"reason"})
	inflight := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: MetricsSubsystem,
		Name:      "inflight",
		Help:      "Number of hole punch attempts in progress.",
	}, []string{})
	rtt := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: MetricsSubsystem,
		Name:      "rtt_seconds",
		Help:      "Relay round trip time measured by the initiator.",
		Buckets:   []float64{.01, .025, .05, .1, .25, .5, 1, 2.5, 5},
	}, []string{})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: MetricsSubsystem,
		Name:      "duration_seconds",
		Help:      "Duration of hole punch attempts.",
		Buckets:   []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30},
	}, []string{"result"})
	dials := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: MetricsSubsystem,
		Name:      "dials_total",
		Help:      "Number of direct dials issued during hole punching.",
	}, []string{"result"})

	var err error
	if attempts, err = register(reg, attempts); err != nil {
		return nil, err
	}
	if rejections, err = register(reg, rejections); err != nil {
		return nil, err
	}
	if inflight, err = register(reg, inflight); err != nil {
		return nil, err
	}
	if rtt, err = register(reg, rtt); err != nil {
		return nil, err
	}
	if duration, err = register(reg, duration); err != nil {
		return nil, err
	}
	if dials, err = register(reg, dials); err != nil {
		return nil, err
	}

	return &Metrics{
		Attempts:        kitprometheus.NewCounter(attempts),
		Rejections:      kitprometheus.NewCounter(rejections),
		InFlight:        kitprometheus.NewGauge(inflight),
		RTTSeconds:      kitprometheus.NewHistogram(rtt),
		DurationSeconds: kitprometheus.NewHistogram(duration),
		Dials:           kitprometheus.NewCounter(dials),
	}, nil
}

// NopMetrics 返回丢弃所有数据的指标
func NopMetrics() *Metrics {
	return &Metrics{
		Attempts:        discard.NewCounter(),
		Rejections:      discard.NewCounter(),
		InFlight:        discard.NewGauge(),
		RTTSeconds:      discard.NewHistogram(),
		DurationSeconds: discard.NewHistogram(),
		Dials:           discard.NewCounter(),
	}
}

func register[C prometheus.Collector](reg prometheus.Registerer, c C) (C, error) {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(C); ok {
				return existing, nil
			}
		}
		return c, err
	}
	return c, nil
}

// ============================================================================
//                              记录
// ============================================================================

func (m *Metrics) attemptStarted() {
	m.InFlight.Add(1)
}

func (m *Metrics) attemptFinished(out Outcome) {
	m.InFlight.Add(-1)

	result := resultLabel(out.Succeeded())
	m.Attempts.With("role", out.Role.String(), "result", result, "reason", out.Reason.String()).Add(1)
	m.DurationSeconds.With("result", result).Observe(out.Duration.Seconds())
	if out.RTT > 0 {
		m.RTTSeconds.Observe(out.RTT.Seconds())
	}
}

func (m *Metrics) admissionRejected(reason Reason) {
	m.Rejections.With("reason", reason.String()).Add(1)
}

func (m *Metrics) dialFinished(err error) {
	m.Dials.With("result", resultLabel(err == nil)).Add(1)
}

func resultLabel(ok bool) string {
	if ok {
		return "success"
	}
	return "failure"
}

package utils

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// ControlMetrics exports controller state per tick. Each instance owns its
// registry so several runs can coexist in one process.
type ControlMetrics struct {
	Registry *prometheus.Registry

	output   *prometheus.GaugeVec
	integral *prometheus.GaugeVec
	dterm    *prometheus.GaugeVec
	windup   *prometheus.CounterVec
	ticks    prometheus.Counter
	loopTime prometheus.Gauge
	vcomp    prometheus.Gauge
	vbatt    prometheus.Gauge
	rxFrames *prometheus.CounterVec
}

func NewControlMetrics() *ControlMetrics {
	m := &ControlMetrics{
		Registry: prometheus.NewRegistry(),
		output: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "ratectrl_pid_output",
			Help: "Compensated PID output per axis.",
		}, []string{"axis"}),
		integral: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "ratectrl_integral",
			Help: "Integral accumulator per axis.",
		}, []string{"axis"}),
		dterm: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "ratectrl_dterm",
			Help: "Derivative term per axis after filtering.",
		}, []string{"axis"}),
		windup: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ratectrl_windup_ticks_total",
			Help: "Ticks where integration was frozen by saturation or transient windup.",
		}, []string{"axis"}),
		ticks: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ratectrl_ticks_total",
			Help: "Controller ticks executed.",
		}),
		loopTime: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "ratectrl_loop_time_seconds",
			Help: "Loop time passed to the last tick.",
		}),
		vcomp: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "ratectrl_voltage_compensation",
			Help: "Voltage compensation multiplier of the last tick.",
		}),
		vbatt: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "ratectrl_vbatt_filtered_volts",
			Help: "Filtered per-cell battery voltage.",
		}),
		rxFrames: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ratectrl_can_rx_frames_total",
			Help: "CAN frames received by frame name.",
		}, []string{"frame"}),
	}
	m.Registry.MustRegister(m.output, m.integral, m.dterm, m.windup,
		m.ticks, m.loopTime, m.vcomp, m.vbatt, m.rxFrames)
	return m
}

type AxisSample struct {
	Axis     string
	Output   float64
	Integral float64
	D        float64
	Windup   bool
}

func (m *ControlMetrics) ObserveTick(loopTimeS, vbatt, vcomp float64, axes []AxisSample) {
	m.ticks.Inc()
	m.loopTime.Set(loopTimeS)
	m.vbatt.Set(vbatt)
	m.vcomp.Set(vcomp)
	for _, a := range axes {
		m.output.WithLabelValues(a.Axis).Set(a.Output)
		m.integral.WithLabelValues(a.Axis).Set(a.Integral)
		m.dterm.WithLabelValues(a.Axis).Set(a.D)
		if a.Windup {
			m.windup.WithLabelValues(a.Axis).Inc()
		}
	}
}

func (m *ControlMetrics) ObserveFrame(name string) {
	m.rxFrames.WithLabelValues(name).Inc()
}

func (m *ControlMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{})
}

package room

import "github.com/prometheus/client_golang/prometheus"

// Metrics Prometheus-метрики движка. Нулевой *Metrics допустим: все методы no-op.
type Metrics struct {
	batches     prometheus.Counter
	points      prometheus.Counter
	discarded   prometheus.Counter
	duplicates  prometheus.Counter
	poseSamples prometheus.Counter
	surfaces    prometheus.Gauge
	state       prometheus.Gauge
	volume      prometheus.Gauge
}

// NewMetrics создаёт метрики и регистрирует их в reg (nil — глобальный регистр).
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	m := &Metrics{
		batches: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "roomscan",
			Name:      "scan_batches_total",
			Help:      "Число принятых батчей сканирования.",
		}),
		points: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "roomscan",
			Name:      "points_ingested_total",
			Help:      "Число точек, расширивших границы комнаты.",
		}),
		discarded: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "roomscan",
			Name:      "points_discarded_total",
			Help:      "Точки, отброшенные после подтверждения комнаты или из-за NaN/Inf.",
		}),
		duplicates: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "roomscan",
			Name:      "duplicate_surfaces_total",
			Help:      "Повторные регистрации поверхностей.",
		}),
		poseSamples: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "roomscan",
			Name:      "pose_samples_total",
			Help:      "Число выведенных поз наблюдателя.",
		}),
		surfaces: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "roomscan",
			Name:      "surfaces",
			Help:      "Число зарегистрированных поверхностей.",
		}),
		state: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "roomscan",
			Name:      "room_state",
			Help:      "Состояние комнаты: 0=scanning, 1=confirmed.",
		}),
		volume: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "roomscan",
			Name:      "room_volume_cubic_meters",
			Help:      "Объем текущих границ комнаты.",
		}),
	}
	reg.MustRegister(m.batches, m.points, m.discarded, m.duplicates, m.poseSamples, m.surfaces, m.state, m.volume)
	return m
}

func (m *Metrics) observeBatch(ingested, discarded int) {
	if m == nil {
		return
	}
	m.batches.Inc()
	m.points.Add(float64(ingested))
	m.discarded.Add(float64(discarded))
}

func (m *Metrics) observeDuplicate() {
	if m == nil {
		return
	}
	m.duplicates.Inc()
}

func (m *Metrics) observePose() {
	if m == nil {
		return
	}
	m.poseSamples.Inc()
}

func (m *Metrics) setSurfaces(n int) {
	if m == nil {
		return
	}
	m.surfaces.Set(float64(n))
}

func (m *Metrics) setState(s RoomState) {
	if m == nil {
		return
	}
	m.state.Set(float64(s))
}

func (m *Metrics) setVolume(v float64) {
	if m == nil {
		return
	}
	m.volume.Set(v)
}

package metrics

import (
	"errors"

	"rifas/internal/model"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	ResultOK = "ok"

	ReleaseSimple   = "simple"
	ReleaseFormal   = "formal"
	ReleaseExplicit = "explicit"
)

// Metrics 业务计数器；nil 接收者上的方法都是空操作
type Metrics struct {
	reservations *prometheus.CounterVec
	bookings     *prometheus.CounterVec
	installments *prometheus.CounterVec
	released     *prometheus.CounterVec
	sweeps       *prometheus.CounterVec
}

func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		reservations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "rifas_reservations_total",
			Help: "Ticket reservation attempts by result.",
		}, []string{"result"}),
		bookings: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "rifas_bookings_total",
			Help: "Public booking attempts by result.",
		}, []string{"result"}),
		installments: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "rifas_installments_total",
			Help: "Installment registrations by result.",
		}, []string{"result"}),
		released: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "rifas_released_tickets_total",
			Help: "Tickets returned to AVAILABLE by release kind.",
		}, []string{"kind"}),
		sweeps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "rifas_sweeps_total",
			Help: "Reservation sweeps by result.",
		}, []string{"result"}),
	}
	reg.MustRegister(m.reservations, m.bookings, m.installments, m.released, m.sweeps)
	return m
}

func (m *Metrics) ObserveReservation(err error) {
	if m != nil {
		m.reservations.WithLabelValues(Result(err)).Inc()
	}
}

func (m *Metrics) ObserveBooking(err error) {
	if m != nil {
		m.bookings.WithLabelValues(Result(err)).Inc()
	}
}

func (m *Metrics) ObserveInstallment(err error) {
	if m != nil {
		m.installments.WithLabelValues(Result(err)).Inc()
	}
}

func (m *Metrics) ObserveSweep(err error) {
	if m != nil {
		m.sweeps.WithLabelValues(Result(err)).Inc()
	}
}

func (m *Metrics) AddReleased(kind string, n int) {
	if m != nil && n > 0 {
		m.released.WithLabelValues(kind).Add(float64(n))
	}
}

// Result 把错误归类为低基数的标签值
func Result(err error) string {
	switch {
	case err == nil:
		return ResultOK
	case errors.Is(err, model.ErrBusy):
		return "busy"
	case errors.Is(err, model.ErrNotFound):
		return "not_found"
	case errors.Is(err, model.ErrNotAvailable):
		return "not_available"
	case errors.Is(err, model.ErrReservationInvalid):
		return "reservation_invalid"
	case errors.Is(err, model.ErrInvalidAmount):
		return "invalid_amount"
	case errors.Is(err, model.ErrAlreadySettled):
		return "already_settled"
	case errors.Is(err, model.ErrNoTickets):
		return "no_tickets"
	case errors.Is(err, model.ErrConflict):
		return "conflict"
	default:
		return "error"
	}
}

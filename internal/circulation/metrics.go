// internal/circulation/metrics.go
package circulation

import (
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
)

type metrics struct {
	borrows       metric.Int64Counter
	denials       metric.Int64Counter
	returns       metric.Int64Counter
	lateReturns   metric.Int64Counter
	overdueMarked metric.Int64Counter
	expired       metric.Int64Counter
	reservations  metric.Int64Counter
	notifyErrors  metric.Int64Counter
}

func newMetrics(meter metric.Meter) *metrics {
	return &metrics{
		borrows:       counter(meter, "circulation.borrows", "Books lent"),
		denials:       counter(meter, "circulation.borrow_denials", "Borrow requests rejected, by reason"),
		returns:       counter(meter, "circulation.returns", "Books returned"),
		lateReturns:   counter(meter, "circulation.late_returns", "Books returned after their due date"),
		overdueMarked: counter(meter, "circulation.overdue_marked", "Records moved to Overdue by the sweep"),
		expired:       counter(meter, "circulation.reservations_expired", "Reservations moved to Expired"),
		reservations:  counter(meter, "circulation.reservations", "Reservations placed"),
		notifyErrors:  counter(meter, "circulation.notify_errors", "Notices the sink failed to accept"),
	}
}

func counter(meter metric.Meter, name, description string) metric.Int64Counter {
	c, err := meter.Int64Counter(name, metric.WithDescription(description))
	if err != nil {
		return noop.Int64Counter{}
	}
	return c
}

// Package notify delivers what the services announce after commit: print
// jobs go to the print queue, order changes go to the kitchen displays.
package notify

import (
	"context"
	"encoding/json"
	"time"

	"github.com/comanda-pos/api/internal/enum"
	"github.com/comanda-pos/api/internal/printq"
	"github.com/comanda-pos/api/internal/service"
	"github.com/comanda-pos/api/internal/ws"
	"go.uber.org/zap"
)

const deliverTimeout = 5 * time.Second

// PrintQueue is satisfied by *printq.Publisher and *printq.LogPublisher.
type PrintQueue interface {
	Publish(ctx context.Context, routingKey, kind string, data any) error
}

// Dispatcher implements service.Notifier. Failures are logged and dropped;
// the transaction they follow has already committed.
type Dispatcher struct {
	print PrintQueue
	kds   ws.Broadcaster
	log   *zap.Logger
}

var _ service.Notifier = (*Dispatcher)(nil)

func NewDispatcher(pq PrintQueue, kds ws.Broadcaster, log *zap.Logger) *Dispatcher {
	if log == nil {
		log = zap.NewNop()
	}
	return &Dispatcher{print: pq, kds: kds, log: log.Named("notify")}
}

// detach keeps delivery alive when the request that triggered it has
// already been answered.
func detach(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), deliverTimeout)
}

func (d *Dispatcher) KitchenTicketRequested(ctx context.Context, t service.KitchenTicket) {
	ctx, cancel := detach(ctx)
	defer cancel()
	if err := d.print.Publish(ctx, printq.KitchenKey(t.Station), enum.PrintKitchenTicket, t); err != nil {
		d.log.Warn("kitchen ticket not queued",
			zap.Stringer("order_id", t.OrderID),
			zap.String("station", t.Station),
			zap.Error(err))
	}
}

func (d *Dispatcher) ReceiptRequested(ctx context.Context, r service.Receipt) {
	ctx, cancel := detach(ctx)
	defer cancel()
	if err := d.print.Publish(ctx, printq.ReceiptKey, enum.PrintCashReceipt, r); err != nil {
		d.log.Warn("receipt not queued", zap.Stringer("order_id", r.OrderID), zap.Error(err))
	}
}

// OrderChanged pushes ev to the displays of every station it touches, or to
// all displays when it names none.
func (d *Dispatcher) OrderChanged(ctx context.Context, ev service.OrderEvent) {
	payload, err := json.Marshal(ev)
	if err != nil {
		d.log.Warn("marshal order event", zap.String("type", ev.Type), zap.Error(err))
		return
	}
	msg := ws.Event{Type: ev.Type, Payload: payload}

	stations := ev.Stations
	if len(stations) == 0 {
		stations = []string{enum.StationAll}
	}

	ctx, cancel := detach(ctx)
	defer cancel()
	for _, st := range stations {
		if err := d.kds.Broadcast(ctx, st, msg); err != nil {
			d.log.Warn("order event not delivered",
				zap.String("type", ev.Type),
				zap.Stringer("order_id", ev.OrderID),
				zap.String("station", st),
				zap.Error(err))
		}
	}
}

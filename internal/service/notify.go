package service

import (
	"context"

	"github.com/comanda-pos/api/internal/database"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// KitchenTicket is one print job for one station.
type KitchenTicket struct {
	OrderID uuid.UUID    `json:"order_id"`
	TableID uuid.UUID    `json:"table_id"`
	Station string       `json:"station"`
	Lines   []TicketLine `json:"lines"`
}

type TicketLine struct {
	ItemID   uuid.UUID `json:"item_id"`
	Name     string    `json:"name"`
	Quantity int32     `json:"quantity"`
	Notes    string    `json:"notes,omitempty"`
}

// Receipt asks the cashier printer for a closing receipt.
type Receipt struct {
	OrderID    uuid.UUID       `json:"order_id"`
	TableID    uuid.UUID       `json:"table_id"`
	GrandTotal decimal.Decimal `json:"grand_total"`
	Paid       decimal.Decimal `json:"paid"`
}

// OrderEvent is broadcast to kitchen and floor displays.
type OrderEvent struct {
	Type     string               `json:"type"`
	OrderID  uuid.UUID            `json:"order_id"`
	TableID  uuid.UUID            `json:"table_id"`
	Status   database.OrderStatus `json:"status"`
	Stations []string             `json:"stations,omitempty"`
	Items    []database.OrderItem `json:"items,omitempty"`
}

// Notifier receives side effects after a transaction has committed.
// Implementations must not block the caller for long and must not fail it.
type Notifier interface {
	KitchenTicketRequested(ctx context.Context, t KitchenTicket)
	ReceiptRequested(ctx context.Context, r Receipt)
	OrderChanged(ctx context.Context, ev OrderEvent)
}

// NopNotifier drops every notification.
type NopNotifier struct{}

func (NopNotifier) KitchenTicketRequested(context.Context, KitchenTicket) {}
func (NopNotifier) ReceiptRequested(context.Context, Receipt)             {}
func (NopNotifier) OrderChanged(context.Context, OrderEvent)              {}

// deps is what every service shares.
type deps struct {
	pool     TxBeginner
	newStore NewStore
	notifier Notifier
	log      *zap.Logger
}

func newDeps(pool TxBeginner, newStore NewStore, notifier Notifier, log *zap.Logger) deps {
	if notifier == nil {
		notifier = NopNotifier{}
	}
	if log == nil {
		log = zap.NewNop()
	}
	return deps{pool: pool, newStore: newStore, notifier: notifier, log: log}
}

func (d deps) tx(ctx context.Context, fn func(Store) error) error {
	return inTx(ctx, d.pool, d.newStore, fn)
}

// itemStations lists the distinct stations of items, in first-seen order.
func itemStations(items []database.OrderItem) []string {
	seen := make(map[string]bool)
	var out []string
	for _, it := range items {
		st := stationOf(it)
		if !seen[st] {
			seen[st] = true
			out = append(out, st)
		}
	}
	return out
}

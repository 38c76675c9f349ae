package service

import (
	"context"
	"testing"

	"github.com/comanda-pos/api/internal/database"
	"github.com/comanda-pos/api/internal/enum"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTransfer(t *testing.T) {
	f := newFixture()
	svc := f.orders()
	ctx := context.Background()
	from, to := f.table("T1"), f.table("T2")
	order := f.openOrder(from)

	moved, err := svc.Transfer(ctx, order.ID, to.ID, f.user)
	require.NoError(t, err)
	assert.Equal(t, to.ID, moved.TableID)
	assert.Equal(t, database.TableStatusFree, f.db.tables[from.ID].Status)
	assert.Equal(t, database.TableStatusOccupied, f.db.tables[to.ID].Status)
	assert.Contains(t, f.db.auditActions(), enum.AuditOrderTransfer)
}

func TestTransfer_Rejects(t *testing.T) {
	f := newFixture()
	svc := f.orders()
	ctx := context.Background()
	t1, t2, t3 := f.table("T1"), f.table("T2"), f.table("T3")
	order := f.openOrder(t1)
	f.openOrder(t2)
	t3.Status = database.TableStatusBlocked
	f.db.tables[t3.ID] = t3

	_, err := svc.Transfer(ctx, order.ID, t2.ID, f.user)
	assert.ErrorIs(t, err, ErrTableOccupied)

	_, err = svc.Transfer(ctx, order.ID, t1.ID, f.user)
	assert.Equal(t, CodeInvalidMove, CodeOf(err))

	_, err = svc.Transfer(ctx, order.ID, t3.ID, f.user)
	assert.Equal(t, CodeInvalidMove, CodeOf(err))

	_, err = svc.Transfer(ctx, order.ID, uuid.New(), f.user)
	assert.ErrorIs(t, err, ErrNotFound)

	for _, status := range []database.OrderStatus{database.OrderStatusReady, database.OrderStatusDelivered} {
		order.Status = status
		f.db.orders[order.ID] = order
		_, err = svc.Transfer(ctx, order.ID, f.table("T-"+string(status)).ID, f.user)
		assert.ErrorIs(t, err, ErrOrderNotOpen, status)
	}

	order.Status = database.OrderStatusClosed
	f.db.orders[order.ID] = order
	_, err = svc.Transfer(ctx, order.ID, f.table("T4").ID, f.user)
	assert.ErrorIs(t, err, ErrAlreadyClosed)

	assert.Equal(t, t1.ID, f.db.orders[order.ID].TableID)
}

func TestTransferTable(t *testing.T) {
	f := newFixture()
	svc := f.orders()
	ctx := context.Background()
	from, to := f.table("T1"), f.table("T2")
	order := f.openOrder(from)

	moved, err := svc.TransferTable(ctx, from.ID, to.ID, f.user)
	require.NoError(t, err)
	assert.Equal(t, order.ID, moved.ID)
	assert.Equal(t, to.ID, moved.TableID)

	_, err = svc.TransferTable(ctx, from.ID, to.ID, f.user)
	assert.Equal(t, CodeInvalidMove, CodeOf(err), "nothing left on the source table")
}

func TestJoin(t *testing.T) {
	f := newFixture()
	svc := f.orders()
	ctx := context.Background()
	t1, t2 := f.table("T1"), f.table("T2")
	source := f.openOrder(t1)
	target := f.openOrder(t2)
	f.item(source, nil, "Fries", "3", 2, database.OrderItemStatusDelivered)
	f.item(target, nil, "Soup", "5", 1, database.OrderItemStatusNew)

	detail, err := svc.Join(ctx, source.ID, target.ID, f.user)
	require.NoError(t, err)
	assert.Len(t, detail.Items, 2)
	assert.True(t, detail.Order.Subtotal.Equal(d("11")))

	closed := f.db.orders[source.ID]
	assert.Equal(t, database.OrderStatusClosed, closed.Status)
	assert.True(t, closed.GrandTotal.IsZero())
	assert.Equal(t, "[JOIN->"+target.ID.String()+"]", closed.Notes.String)
	assert.Empty(t, f.db.itemsOf(source.ID))
	assert.Equal(t, database.TableStatusFree, f.db.tables[t1.ID].Status)
	assert.Equal(t, database.TableStatusOccupied, f.db.tables[t2.ID].Status)

	require.Len(t, f.notifier.events, 2)
	assert.Equal(t, enum.EventOrderClosed, f.notifier.events[0].Type)
}

func TestJoin_Rejects(t *testing.T) {
	f := newFixture()
	svc := f.orders()
	ctx := context.Background()
	a := f.openOrder(f.table("T1"))
	b := f.openOrder(f.table("T2"))

	_, err := svc.Join(ctx, a.ID, a.ID, f.user)
	assert.Equal(t, CodeInvalidMove, CodeOf(err))

	f.payment(a.ID, f.session(f.user).ID, "5")
	_, err = svc.Join(ctx, a.ID, b.ID, f.user)
	assert.ErrorIs(t, err, ErrHasPayments)

	c := f.openOrder(f.table("T3"))
	for _, status := range []database.OrderStatus{database.OrderStatusReady, database.OrderStatusDelivered} {
		c.Status = status
		f.db.orders[c.ID] = c
		_, err = svc.Join(ctx, c.ID, b.ID, f.user)
		assert.ErrorIs(t, err, ErrOrderNotOpen, "source %s", status)
		_, err = svc.Join(ctx, b.ID, c.ID, f.user)
		assert.ErrorIs(t, err, ErrOrderNotOpen, "target %s", status)
	}
	assert.Equal(t, database.OrderStatusOpen, f.db.orders[b.ID].Status)

	b.Status = database.OrderStatusVoid
	f.db.orders[b.ID] = b
	_, err = svc.Join(ctx, uuid.New(), b.ID, f.user)
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = svc.Join(ctx, a.ID, b.ID, f.user)
	assert.ErrorIs(t, err, ErrAlreadyClosed)
}

func TestSplit_PartialQuantityToAnotherTable(t *testing.T) {
	f := newFixture()
	svc := f.orders()
	ctx := context.Background()
	t1, t2 := f.table("T1"), f.table("T2")
	beer := f.product("Beer", "4.50", "bar")
	source := f.openOrder(t1)
	it := f.item(source, &beer, "Beer", "4.50", 5, database.OrderItemStatusDelivered)
	f.item(source, nil, "Fries", "3", 1, database.OrderItemStatusNew)

	res, err := svc.Split(ctx, SplitRequest{
		SourceOrderID: source.ID,
		TargetTableID: &t2.ID,
		Moves:         []ItemMove{{ItemID: it.ID, Quantity: 2}},
		UserID:        f.user,
	})
	require.NoError(t, err)

	assert.Equal(t, int32(3), f.db.items[it.ID].Quantity)
	assert.True(t, res.Source.Order.Subtotal.Equal(d("16.50")), res.Source.Order.Subtotal.String())

	require.Len(t, res.Target.Items, 1)
	cp := res.Target.Items[0]
	assert.Equal(t, int32(2), cp.Quantity)
	assert.True(t, cp.UnitPrice.Equal(it.UnitPrice))
	assert.Equal(t, it.Status, cp.Status)
	assert.Equal(t, it.ProductID, cp.ProductID)
	assert.Equal(t, t2.ID, res.Target.Order.TableID)
	assert.True(t, res.Target.Order.Subtotal.Equal(d("9")))
	assert.Equal(t, database.OrderStatusDelivered, res.Target.Order.Status)
	assert.Equal(t, "[SPLIT<-"+source.ID.String()+"]", res.Target.Order.Notes.String)
	assert.Equal(t, database.TableStatusOccupied, f.db.tables[t2.ID].Status)
}

func TestSplit_FullQuantityMovesTheItem(t *testing.T) {
	f := newFixture()
	svc := f.orders()
	ctx := context.Background()
	source := f.openOrder(f.table("T1"))
	a := f.item(source, nil, "Fries", "3", 2, database.OrderItemStatusNew)
	f.item(source, nil, "Soup", "5", 1, database.OrderItemStatusReady)

	res, err := svc.Split(ctx, SplitRequest{
		SourceOrderID: source.ID,
		Moves:         []ItemMove{{ItemID: a.ID, Quantity: 1}, {ItemID: a.ID, Quantity: 1}},
		Notes:         "separate check",
		UserID:        f.user,
	})
	require.NoError(t, err)
	require.Len(t, res.Target.Items, 1)
	assert.Equal(t, a.ID, res.Target.Items[0].ID)
	assert.Equal(t, source.TableID, res.Target.Order.TableID)
	assert.Equal(t, "separate check", res.Target.Order.Notes.String)
	assert.Equal(t, database.OrderStatusReady, res.Source.Order.Status)
	assert.True(t, res.Source.Order.Subtotal.Equal(d("5")))
}

func TestSplit_InvalidMoves(t *testing.T) {
	f := newFixture()
	svc := f.orders()
	ctx := context.Background()
	source := f.openOrder(f.table("T1"))
	other := f.openOrder(f.table("T2"))
	it := f.item(source, nil, "Fries", "3", 2, database.OrderItemStatusNew)
	foreign := f.item(other, nil, "Soup", "5", 1, database.OrderItemStatusNew)
	ordersBefore := len(f.db.orders)

	tests := []struct {
		name  string
		moves []ItemMove
		code  Code
	}{
		{"no moves", nil, CodeValidation},
		{"zero quantity", []ItemMove{{ItemID: it.ID, Quantity: 0}}, CodeValidation},
		{"too many", []ItemMove{{ItemID: it.ID, Quantity: 3}}, CodeInvalidMove},
		{"too many summed", []ItemMove{{ItemID: it.ID, Quantity: 2}, {ItemID: it.ID, Quantity: 1}}, CodeInvalidMove},
		{"foreign item", []ItemMove{{ItemID: foreign.ID, Quantity: 1}}, CodeInvalidMove},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Split(ctx, SplitRequest{SourceOrderID: source.ID, Moves: tt.moves, UserID: f.user})
			assert.Equal(t, tt.code, CodeOf(err))
		})
	}
	assert.Len(t, f.db.orders, ordersBefore)
	assert.Equal(t, int32(2), f.db.items[it.ID].Quantity)
}

func TestCopyItem_KeepsStamps(t *testing.T) {
	f := newFixture()
	order := f.openOrder(f.table("T1"))
	it := f.item(order, nil, "Fries", "3", 2, database.OrderItemStatusDelivered)
	it.StockAppliedAt = f.db.stamp()
	it.FiredAt = f.db.stamp()
	it.CostOverride.Valid = true

	target := uuid.New()
	p := copyItem(it, target, 1)
	assert.Equal(t, target, p.OrderID)
	assert.Equal(t, int32(1), p.Quantity)
	assert.Equal(t, it.StockAppliedAt, p.StockAppliedAt)
	assert.Equal(t, it.FiredAt, p.FiredAt)
	assert.True(t, p.CostOverride.Valid)
	assert.Equal(t, "[]", string(p.Modifiers))
}

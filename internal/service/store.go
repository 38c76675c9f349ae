package service

import (
	"context"

	"github.com/comanda-pos/api/internal/database"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// The store interfaces below are satisfied by *database.Queries (and its
// WithTx variant). Each component asks only for the slice it uses.

type TableStore interface {
	GetTable(ctx context.Context, id uuid.UUID) (database.DiningTable, error)
	GetTableForUpdate(ctx context.Context, id uuid.UUID) (database.DiningTable, error)
	UpdateTableStatus(ctx context.Context, arg database.UpdateTableStatusParams) (database.DiningTable, error)
	CountActiveOrdersByTable(ctx context.Context, arg database.CountActiveOrdersByTableParams) (int64, error)
}

type OrderStore interface {
	CreateOrder(ctx context.Context, arg database.CreateOrderParams) (database.Order, error)
	GetOrder(ctx context.Context, id uuid.UUID) (database.Order, error)
	GetOrderForUpdate(ctx context.Context, id uuid.UUID) (database.Order, error)
	GetActiveOrderByTable(ctx context.Context, tableID uuid.UUID) (database.Order, error)
	ListActiveOrders(ctx context.Context) ([]database.Order, error)
	UpdateOrderTotals(ctx context.Context, arg database.UpdateOrderTotalsParams) (database.Order, error)
	UpdateOrderStatus(ctx context.Context, arg database.UpdateOrderStatusParams) (database.Order, error)
	CloseOrder(ctx context.Context, arg database.CloseOrderParams) (database.Order, error)
	MoveOrderToTable(ctx context.Context, arg database.MoveOrderToTableParams) (database.Order, error)
}

type ItemStore interface {
	ListOrderItemsByOrder(ctx context.Context, orderID uuid.UUID) ([]database.OrderItem, error)
	ListOrderItemsByOrderForUpdate(ctx context.Context, orderID uuid.UUID) ([]database.OrderItem, error)
	GetOrderItem(ctx context.Context, id uuid.UUID) (database.OrderItem, error)
	GetOrderItemForUpdate(ctx context.Context, id uuid.UUID) (database.OrderItem, error)
	CreateOrderItem(ctx context.Context, arg database.CreateOrderItemParams) (database.OrderItem, error)
	UpdateOrderItemStatus(ctx context.Context, arg database.UpdateOrderItemStatusParams) (database.OrderItem, error)
	FireOrderItems(ctx context.Context, orderID uuid.UUID) ([]database.OrderItem, error)
	DeliverReadyItems(ctx context.Context, orderID uuid.UUID) ([]database.OrderItem, error)
	VoidOrderItems(ctx context.Context, orderID uuid.UUID) (int64, error)
	UpdateOrderItemQuantity(ctx context.Context, arg database.UpdateOrderItemQuantityParams) (database.OrderItem, error)
	UpdateOrderItemNotes(ctx context.Context, arg database.UpdateOrderItemNotesParams) (database.OrderItem, error)
	DeleteOrderItem(ctx context.Context, id uuid.UUID) error
	MoveOrderItems(ctx context.Context, arg database.MoveOrderItemsParams) (int64, error)
	MoveOrderItem(ctx context.Context, arg database.MoveOrderItemParams) (database.OrderItem, error)
	MarkOrderItemStockApplied(ctx context.Context, id uuid.UUID) (int64, error)
	ListStationQueue(ctx context.Context, arg database.ListStationQueueParams) ([]database.StationQueueRow, error)
}

type CatalogStore interface {
	GetProductForOrder(ctx context.Context, id uuid.UUID) (database.Product, error)
	ListModifierOptionsByIDs(ctx context.Context, arg database.ListModifierOptionsByIDsParams) ([]database.ModifierOption, error)
}

// RecipeStore is all the cost engine needs.
type RecipeStore interface {
	ListRecipeLines(ctx context.Context, productID uuid.UUID) ([]database.RecipeLine, error)
}

// LedgerStore is all ApplyMovement needs.
type LedgerStore interface {
	GetIngredientForUpdate(ctx context.Context, id uuid.UUID) (database.Ingredient, error)
	UpdateIngredientStock(ctx context.Context, arg database.UpdateIngredientStockParams) (database.Ingredient, error)
	CreateStockMovement(ctx context.Context, arg database.CreateStockMovementParams) (database.StockMovement, error)
}

// SaleDeductionStore is what ApplySaleDeductionsForOrder needs.
type SaleDeductionStore interface {
	LedgerStore
	RecipeStore
	MarkOrderItemStockApplied(ctx context.Context, id uuid.UUID) (int64, error)
}

type InventoryStore interface {
	LedgerStore
	RecipeStore
	GetIngredient(ctx context.Context, id uuid.UUID) (database.Ingredient, error)
	UpdateIngredientCost(ctx context.Context, arg database.UpdateIngredientCostParams) (database.Ingredient, error)
	ListLowStockIngredients(ctx context.Context) ([]database.Ingredient, error)
	ListActiveIngredients(ctx context.Context) ([]database.Ingredient, error)
	DeleteRecipeLines(ctx context.Context, productID uuid.UUID) error
	CreateRecipeLine(ctx context.Context, arg database.CreateRecipeLineParams) error
	ListStockMovements(ctx context.Context, limit int32) ([]database.StockMovement, error)
}

type PaymentStore interface {
	SumPaymentsByOrder(ctx context.Context, orderID uuid.UUID) (decimal.Decimal, error)
	CountPaymentsByOrder(ctx context.Context, orderID uuid.UUID) (int64, error)
	ListPaymentsByOrder(ctx context.Context, orderID uuid.UUID) ([]database.Payment, error)
	GetPaymentForUpdate(ctx context.Context, id uuid.UUID) (database.Payment, error)
	GetRefundByRef(ctx context.Context, ref string) (database.Payment, error)
	SumRefundsByParent(ctx context.Context, parentID uuid.UUID) (decimal.Decimal, error)
	CreatePayment(ctx context.Context, arg database.CreatePaymentParams) (database.Payment, error)
	CreatePayments(ctx context.Context, args []database.CreatePaymentParams) ([]database.Payment, error)
}

type CashStore interface {
	GetOpenCashSessionByUserForUpdate(ctx context.Context, userID uuid.UUID) (database.CashSession, error)
	GetCashSession(ctx context.Context, id uuid.UUID) (database.CashSession, error)
	GetCashSessionForUpdate(ctx context.Context, id uuid.UUID) (database.CashSession, error)
	CreateCashSession(ctx context.Context, arg database.CreateCashSessionParams) (database.CashSession, error)
	CloseCashSession(ctx context.Context, arg database.CloseCashSessionParams) (database.CashSession, error)
	SumPaymentsBySession(ctx context.Context, sessionID uuid.UUID) ([]database.PaymentMethodTotal, error)
}

type AuditStore interface {
	CreateAuditEvent(ctx context.Context, arg database.CreateAuditEventParams) error
}

// Store is the full tx-bound surface the services work against.
type Store interface {
	TableStore
	OrderStore
	ItemStore
	CatalogStore
	InventoryStore
	PaymentStore
	CashStore
	AuditStore
}

var _ Store = (*database.Queries)(nil)

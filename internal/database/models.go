package database

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/shopspring/decimal"
)

type OrderStatus string

const (
	OrderStatusOpen      OrderStatus = "open"
	OrderStatusReady     OrderStatus = "ready"
	OrderStatusDelivered OrderStatus = "delivered"
	OrderStatusClosed    OrderStatus = "closed"
	OrderStatusVoid      OrderStatus = "void"
)

// IsTerminal reports whether the order can no longer change.
func (s OrderStatus) IsTerminal() bool {
	return s == OrderStatusClosed || s == OrderStatusVoid
}

type OrderItemStatus string

const (
	OrderItemStatusNew       OrderItemStatus = "new"
	OrderItemStatusPending   OrderItemStatus = "pending" // legacy alias of new
	OrderItemStatusQueued    OrderItemStatus = "queued"
	OrderItemStatusInKitchen OrderItemStatus = "in_kitchen"
	OrderItemStatusReady     OrderItemStatus = "ready"
	OrderItemStatusDelivered OrderItemStatus = "delivered"
	OrderItemStatusVoid      OrderItemStatus = "void"
)

type TableStatus string

const (
	TableStatusFree     TableStatus = "free"
	TableStatusOccupied TableStatus = "occupied"
	TableStatusReserved TableStatus = "reserved"
	TableStatusBlocked  TableStatus = "blocked"
)

type MovementType string

const (
	MovementTypePurchase   MovementType = "purchase"
	MovementTypeSale       MovementType = "sale"
	MovementTypeAdjustment MovementType = "adjustment"
	MovementTypeWaste      MovementType = "waste"
	MovementTypeTransfer   MovementType = "transfer"
)

type PaymentMethod string

const (
	PaymentMethodCash     PaymentMethod = "cash"
	PaymentMethodCard     PaymentMethod = "card"
	PaymentMethodMPLink   PaymentMethod = "mp_link"
	PaymentMethodMPPoint  PaymentMethod = "mp_point"
	PaymentMethodTransfer PaymentMethod = "transfer"
	PaymentMethodOther    PaymentMethod = "other"
)

type CashSessionStatus string

const (
	CashSessionStatusOpen   CashSessionStatus = "open"
	CashSessionStatusClosed CashSessionStatus = "closed"
)

type DiningTable struct {
	ID        uuid.UUID   `json:"id"`
	AreaID    pgtype.UUID `json:"area_id"`
	Label     string      `json:"label"`
	Capacity  int32       `json:"capacity"`
	Status    TableStatus `json:"status"`
	UpdatedAt time.Time   `json:"updated_at"`
}

type Product struct {
	ID       uuid.UUID       `json:"id"`
	Name     string          `json:"name"`
	Price    decimal.Decimal `json:"price"`
	Station  pgtype.Text     `json:"station"`
	IsActive bool            `json:"is_active"`
}

type ModifierOption struct {
	ID         uuid.UUID       `json:"id"`
	GroupID    uuid.UUID       `json:"group_id"`
	GroupName  string          `json:"group_name"`
	Name       string          `json:"name"`
	PriceDelta decimal.Decimal `json:"price_delta"`
}

type Ingredient struct {
	ID          uuid.UUID       `json:"id"`
	Name        string          `json:"name"`
	Sku         pgtype.Text     `json:"sku"`
	Unit        string          `json:"unit"`
	StockQty    decimal.Decimal `json:"stock_qty"`
	MinQty      decimal.Decimal `json:"min_qty"`
	CostPerUnit decimal.Decimal `json:"cost_per_unit"`
	IsActive    bool            `json:"is_active"`
}

// RecipeLine is a product_ingredients row joined with its ingredient.
type RecipeLine struct {
	ProductID      uuid.UUID       `json:"product_id"`
	IngredientID   uuid.UUID       `json:"ingredient_id"`
	QtyPerUnit     decimal.Decimal `json:"qty_per_unit"`
	WasteFactor    decimal.Decimal `json:"waste_factor"`
	IngredientName string          `json:"ingredient_name"`
	IngredientUnit string          `json:"ingredient_unit"`
	StockQty       decimal.Decimal `json:"stock_qty"`
	CostPerUnit    decimal.Decimal `json:"cost_per_unit"`
}

type Order struct {
	ID            uuid.UUID          `json:"id"`
	TableID       uuid.UUID          `json:"table_id"`
	WaiterID      pgtype.UUID        `json:"waiter_id"`
	Guests        int32              `json:"guests"`
	Status        OrderStatus        `json:"status"`
	Notes         pgtype.Text        `json:"notes"`
	OpenedAt      time.Time          `json:"opened_at"`
	ClosedAt      pgtype.Timestamptz `json:"closed_at"`
	Subtotal      decimal.Decimal    `json:"subtotal"`
	DiscountTotal decimal.Decimal    `json:"discount_total"`
	ServiceTotal  decimal.Decimal    `json:"service_total"`
	GrandTotal    decimal.Decimal    `json:"grand_total"`
	UpdatedAt     time.Time          `json:"updated_at"`
}

type OrderItem struct {
	ID             uuid.UUID           `json:"id"`
	OrderID        uuid.UUID           `json:"order_id"`
	ProductID      pgtype.UUID         `json:"product_id"`
	ItemName       string              `json:"item_name"`
	Quantity       int32               `json:"quantity"`
	UnitPrice      decimal.Decimal     `json:"unit_price"`
	Notes          pgtype.Text         `json:"notes"`
	Station        pgtype.Text         `json:"station"`
	Status         OrderItemStatus     `json:"status"`
	Modifiers      json.RawMessage     `json:"modifiers"`
	CostOverride   decimal.NullDecimal `json:"cost_override"`
	StockAppliedAt pgtype.Timestamptz  `json:"stock_applied_at"`
	FiredAt        pgtype.Timestamptz  `json:"fired_at"`
	ReadyAt        pgtype.Timestamptz  `json:"ready_at"`
	DeliveredAt    pgtype.Timestamptz  `json:"delivered_at"`
	CreatedAt      time.Time           `json:"created_at"`
}

// StationQueueRow is an order item with the table it is served at, as shown
// on the kitchen display.
type StationQueueRow struct {
	OrderItem
	TableID    uuid.UUID `json:"table_id"`
	TableLabel string    `json:"table_label"`
}

type StockMovement struct {
	ID           uuid.UUID       `json:"id"`
	IngredientID uuid.UUID       `json:"ingredient_id"`
	Type         MovementType    `json:"type"`
	Qty          decimal.Decimal `json:"qty"`
	UnitCost     decimal.Decimal `json:"unit_cost"`
	Ref          pgtype.Text     `json:"ref"`
	Meta         json.RawMessage `json:"meta"`
	CreatedBy    pgtype.UUID     `json:"created_by"`
	CreatedAt    time.Time       `json:"created_at"`
}

type CashSession struct {
	ID            uuid.UUID           `json:"id"`
	OpenedBy      uuid.UUID           `json:"opened_by"`
	ClosedBy      pgtype.UUID         `json:"closed_by"`
	Status        CashSessionStatus   `json:"status"`
	OpeningFloat  decimal.Decimal     `json:"opening_float"`
	ExpectedTotal decimal.NullDecimal `json:"expected_total"`
	CountedTotal  decimal.NullDecimal `json:"counted_total"`
	DiffTotal     decimal.NullDecimal `json:"diff_total"`
	Notes         pgtype.Text         `json:"notes"`
	OpenedAt      time.Time           `json:"opened_at"`
	ClosedAt      pgtype.Timestamptz  `json:"closed_at"`
}

type Payment struct {
	ID              uuid.UUID       `json:"id"`
	OrderID         uuid.UUID       `json:"order_id"`
	SessionID       pgtype.UUID     `json:"session_id"`
	UserID          pgtype.UUID     `json:"user_id"`
	Method          PaymentMethod   `json:"method"`
	Amount          decimal.Decimal `json:"amount"`
	Ref             pgtype.Text     `json:"ref"`
	ParentPaymentID pgtype.UUID     `json:"parent_payment_id"`
	CreatedAt       time.Time       `json:"created_at"`
}

type PaymentMethodTotal struct {
	Method PaymentMethod   `json:"method"`
	Total  decimal.Decimal `json:"total"`
	Count  int64           `json:"count"`
}

type AuditEvent struct {
	ID        uuid.UUID       `json:"id"`
	UserID    pgtype.UUID     `json:"user_id"`
	Action    string          `json:"action"`
	Entity    string          `json:"entity"`
	EntityID  uuid.UUID       `json:"entity_id"`
	Meta      json.RawMessage `json:"meta"`
	CreatedAt time.Time       `json:"created_at"`
}

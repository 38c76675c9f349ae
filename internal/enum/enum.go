package enum

// ── Roles (carried in the JWT) ──

const (
	RoleWaiter  = "waiter"
	RoleKitchen = "kitchen"
	RoleCashier = "cashier"
	RoleManager = "manager"
	RoleAdmin   = "admin"
)

// ── Kitchen stations (free-form labels, no DB constraint) ──

const (
	StationAll     = "all"
	StationKitchen = "kitchen"
	StationBar     = "bar"
	StationGrill   = "grill"
)

// ── Audit actions ──

const (
	AuditOrderOpen       = "ORDER_OPEN"
	AuditOrderItemAdd    = "ORDER_ITEM_ADD"
	AuditOrderItemPatch  = "ORDER_ITEM_PATCH"
	AuditOrderItemDelete = "ORDER_ITEM_DELETE"
	AuditOrderTransfer   = "ORDER_TRANSFER"
	AuditOrderJoin       = "ORDER_JOIN"
	AuditOrderSplit      = "ORDER_SPLIT"
	AuditOrderVoid       = "ORDER_VOID"
	AuditOrderSettle     = "ORDER_SETTLE"
	AuditOrderClose      = "ORDER_CLOSE"
	AuditOrderFire       = "ORDER_FIRE"
	AuditItemStatus      = "ITEM_STATUS"
	AuditPaymentRefund   = "PAYMENT_REFUND"
	AuditSessionOpen     = "CASH_SESSION_OPEN"
	AuditSessionClose    = "CASH_SESSION_CLOSE"
	AuditStockPurchase   = "STOCK_PURCHASE"
	AuditStockAdjust     = "STOCK_ADJUST"
	AuditStockCount      = "STOCK_COUNT"
	AuditRecipeSet       = "RECIPE_SET"
)

// ── Realtime event types (websocket + relay) ──

const (
	EventOrderUpdated   = "order.updated"
	EventOrderClosed    = "order.closed"
	EventItemsFired     = "items.fired"
	EventItemStatus     = "item.status"
	EventPaymentCreated = "payment.created"
)

// ── Print jobs ──

const (
	PrintKitchenTicket = "kitchen_ticket"
	PrintCashReceipt   = "cash_receipt"
)

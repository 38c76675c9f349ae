package service

import "github.com/comanda-pos/api/internal/database"

// The kitchen path an item walks. pending is a legacy status that sits on
// the kitchen queue next to queued, so it advances like queued does.
var nextItemStatus = map[database.OrderItemStatus]database.OrderItemStatus{
	database.OrderItemStatusNew:       database.OrderItemStatusQueued,
	database.OrderItemStatusPending:   database.OrderItemStatusInKitchen,
	database.OrderItemStatusQueued:    database.OrderItemStatusInKitchen,
	database.OrderItemStatusInKitchen: database.OrderItemStatusReady,
	database.OrderItemStatusReady:     database.OrderItemStatusDelivered,
}

// normalizeItemStatus treats a missing status as new.
func normalizeItemStatus(s database.OrderItemStatus) database.OrderItemStatus {
	if s == "" {
		return database.OrderItemStatusNew
	}
	return s
}

func IsValidItemStatus(s database.OrderItemStatus) bool {
	switch s {
	case database.OrderItemStatusNew, database.OrderItemStatusPending, database.OrderItemStatusQueued,
		database.OrderItemStatusInKitchen, database.OrderItemStatusReady,
		database.OrderItemStatusDelivered, database.OrderItemStatusVoid:
		return true
	}
	return false
}

// IsTerminalItemStatus reports whether an item can no longer move.
func IsTerminalItemStatus(s database.OrderItemStatus) bool {
	return s == database.OrderItemStatusDelivered || s == database.OrderItemStatusVoid
}

// isPreKitchen reports whether the item has not been fired yet.
func isPreKitchen(s database.OrderItemStatus) bool {
	s = normalizeItemStatus(s)
	return s == database.OrderItemStatusNew || s == database.OrderItemStatusPending
}

// NextItemStatus is the single forward step from current.
func NextItemStatus(current database.OrderItemStatus) (database.OrderItemStatus, error) {
	current = normalizeItemStatus(current)
	next, ok := nextItemStatus[current]
	if !ok {
		return "", invalidTransition(current, "next")
	}
	return next, nil
}

// ValidateSetStatus checks a direct (manager) status change. Any listed
// status may be targeted, except that terminal items never move again.
// Re-asserting a terminal item's own status is accepted as a no-op.
func ValidateSetStatus(from, to database.OrderItemStatus) error {
	from = normalizeItemStatus(from)
	if !IsValidItemStatus(to) {
		return invalidTransition(from, to)
	}
	if IsTerminalItemStatus(from) && to != from {
		return invalidTransition(from, to)
	}
	return nil
}

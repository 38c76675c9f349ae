package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/comanda-pos/api/internal/database"
	"github.com/comanda-pos/api/internal/enum"
	"github.com/comanda-pos/api/internal/money"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// CashService opens and closes cashier shifts.
type CashService struct {
	deps
}

// NewCashService creates a new CashService.
func NewCashService(pool TxBeginner, newStore NewStore, log *zap.Logger) *CashService {
	return &CashService{deps: newDeps(pool, newStore, nil, log)}
}

// CloseSessionRequest is the drawer count at the end of a shift.
type CloseSessionRequest struct {
	SessionID    uuid.UUID
	CountedTotal decimal.Decimal
	Notes        string
	UserID       uuid.UUID
}

// SessionSummary is a session with its payments grouped by method.
type SessionSummary struct {
	Session  database.CashSession          `json:"session"`
	ByMethod []database.PaymentMethodTotal `json:"by_method"`
	Total    decimal.Decimal               `json:"total"`
	Expected decimal.Decimal               `json:"expected"`
}

// Open starts a session for userID. A user holds at most one open session.
func (s *CashService) Open(ctx context.Context, userID uuid.UUID, openingFloat decimal.Decimal) (*database.CashSession, error) {
	if openingFloat.IsNegative() {
		return nil, validationError("opening_float must be >= 0")
	}

	var session database.CashSession
	err := s.tx(ctx, func(store Store) error {
		_, err := store.GetOpenCashSessionByUserForUpdate(ctx, userID)
		switch {
		case err == nil:
			return ErrSessionAlreadyOpen
		case !errors.Is(err, pgx.ErrNoRows):
			return fmt.Errorf("get open session: %w", err)
		}

		session, err = store.CreateCashSession(ctx, database.CreateCashSessionParams{
			OpenedBy:     userID,
			OpeningFloat: money.Round2(openingFloat),
		})
		if isUniqueViolation(err) {
			return ErrSessionAlreadyOpen
		}
		if err != nil {
			return fmt.Errorf("create cash session: %w", err)
		}
		return audit(ctx, store, userID, enum.AuditSessionOpen, "cash_session", session.ID, map[string]any{
			"opening_float": session.OpeningFloat,
		})
	})
	if err != nil {
		return nil, err
	}
	return &session, nil
}

// Close counts the drawer: expected is the opening float plus every
// payment and refund recorded on the session.
func (s *CashService) Close(ctx context.Context, req CloseSessionRequest) (*database.CashSession, error) {
	if req.CountedTotal.IsNegative() {
		return nil, validationError("counted_total must be >= 0")
	}

	var session database.CashSession
	err := s.tx(ctx, func(store Store) error {
		var err error
		session, err = store.GetCashSessionForUpdate(ctx, req.SessionID)
		if err != nil {
			return lookupErr(err, "cash session")
		}
		if session.Status != database.CashSessionStatusOpen {
			return &Error{Code: CodeNoOpenSession, Message: "cash session is not open"}
		}
		totals, err := store.SumPaymentsBySession(ctx, session.ID)
		if err != nil {
			return fmt.Errorf("sum session payments: %w", err)
		}
		expected := money.Round2(session.OpeningFloat.Add(sumMethodTotals(totals)))
		counted := money.Round2(req.CountedTotal)

		session, err = store.CloseCashSession(ctx, database.CloseCashSessionParams{
			ID:            session.ID,
			ClosedBy:      pgUUID(req.UserID),
			ExpectedTotal: expected,
			CountedTotal:  counted,
			DiffTotal:     counted.Sub(expected),
			Notes:         pgText(req.Notes),
		})
		if err != nil {
			return fmt.Errorf("close cash session: %w", err)
		}
		return audit(ctx, store, req.UserID, enum.AuditSessionClose, "cash_session", session.ID, map[string]any{
			"expected": expected,
			"counted":  counted,
			"diff":     counted.Sub(expected),
		})
	})
	if err != nil {
		return nil, err
	}
	s.log.Info("cash session closed",
		zap.Stringer("session_id", session.ID),
		zap.String("diff", money.Format(session.DiffTotal.Decimal)),
	)
	return &session, nil
}

// Summary totals a session's payments by method.
func (s *CashService) Summary(ctx context.Context, sessionID uuid.UUID) (*SessionSummary, error) {
	var sum SessionSummary
	err := s.tx(ctx, func(store Store) error {
		session, err := store.GetCashSession(ctx, sessionID)
		if err != nil {
			return lookupErr(err, "cash session")
		}
		totals, err := store.SumPaymentsBySession(ctx, session.ID)
		if err != nil {
			return fmt.Errorf("sum session payments: %w", err)
		}
		total := sumMethodTotals(totals)
		sum = SessionSummary{
			Session:  session,
			ByMethod: totals,
			Total:    total,
			Expected: money.Round2(session.OpeningFloat.Add(total)),
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &sum, nil
}

func sumMethodTotals(totals []database.PaymentMethodTotal) decimal.Decimal {
	sum := decimal.Zero
	for _, t := range totals {
		sum = sum.Add(t.Total)
	}
	return money.Round2(sum)
}

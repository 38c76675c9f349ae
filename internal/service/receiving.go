package service

import (
	"context"
	"fmt"
	"time"

	"github.com/comanda-pos/api/internal/database"
	"github.com/comanda-pos/api/internal/receiving"
	"github.com/comanda-pos/api/internal/units"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// ReceiveNoteRequest is a supplier delivery note pasted as text. Without
// Apply the note is only parsed and matched.
type ReceiveNoteRequest struct {
	Text   string
	Ref    string
	Apply  bool
	UserID uuid.UUID
}

// ReceivedLine is a note line with its catalog match. Movement is set once
// the line has been booked; Skipped explains a matched line that was not.
type ReceivedLine struct {
	receiving.Line
	Match    receiving.Match         `json:"match"`
	UnitCost decimal.Decimal         `json:"unit_cost"`
	Movement *database.StockMovement `json:"movement,omitempty"`
	Skipped  string                  `json:"skipped,omitempty"`
}

type ReceiveResult struct {
	Date     *time.Time     `json:"date,omitempty"`
	Lines    []ReceivedLine `json:"lines"`
	Warnings []string       `json:"warnings"`
	Applied  int            `json:"applied"`
}

// ReceiveNote parses a delivery note and matches each line to an active
// ingredient. With Apply every matched line is booked as a purchase in a
// single transaction; any failing line rolls the whole note back.
// Unmatched and ambiguous lines are returned for manual entry.
func (s *InventoryService) ReceiveNote(ctx context.Context, req ReceiveNoteRequest) (*ReceiveResult, error) {
	note, err := receiving.ParseNote(req.Text, time.Now())
	if err != nil {
		return nil, validationError("%s", err)
	}

	var res *ReceiveResult
	err = s.tx(ctx, func(store Store) error {
		ings, err := store.ListActiveIngredients(ctx)
		if err != nil {
			return fmt.Errorf("list ingredients: %w", err)
		}
		m := receiving.NewMatcher(candidates(ings))

		res = &ReceiveResult{
			Date:     note.Date,
			Lines:    make([]ReceivedLine, 0, len(note.Lines)),
			Warnings: note.Warnings,
		}
		for i, line := range note.Lines {
			rl := ReceivedLine{Line: line, Match: m.Match(line.Description), UnitCost: line.UnitCost()}
			if req.Apply && rl.Match.Status == receiving.Matched {
				if err := receiveLine(ctx, store, req, i+1, &rl); err != nil {
					return fmt.Errorf("line %d: %w", i+1, err)
				}
				if rl.Movement != nil {
					res.Applied++
				}
			}
			res.Lines = append(res.Lines, rl)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if res.Applied > 0 {
		s.log.Info("delivery note booked",
			zap.Int("lines", len(res.Lines)),
			zap.Int("applied", res.Applied),
			zap.String("ref", req.Ref))
	}
	return res, nil
}

func receiveLine(ctx context.Context, store Store, req ReceiveNoteRequest, n int, rl *ReceivedLine) error {
	// A bare count only means something for ingredients kept in units.
	if rl.UOM == "" && rl.Match.Item.Unit != string(units.Unit) {
		rl.Skipped = "quantity has no unit"
		return nil
	}
	res, err := purchase(ctx, store, PurchaseRequest{
		IngredientID: rl.Match.Item.ID,
		Qty:          rl.Qty,
		UOM:          rl.UOM,
		UnitCost:     rl.UnitCost,
		CostUOM:      unitOr(rl.UOM, string(units.Unit)),
		Ref:          req.Ref,
		Meta:         map[string]any{"source": "delivery_note", "line": n, "raw": rl.Raw},
		UserID:       req.UserID,
	})
	if err != nil {
		return err
	}
	rl.Movement = &res.Movement
	return nil
}

func candidates(ings []database.Ingredient) []receiving.Candidate {
	out := make([]receiving.Candidate, len(ings))
	for i, ing := range ings {
		out[i] = receiving.Candidate{ID: ing.ID, Name: ing.Name, SKU: ing.Sku.String, Unit: ing.Unit}
	}
	return out
}

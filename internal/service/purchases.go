package service

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"billdesk/internal/domain"
	"billdesk/internal/ledger"
	"billdesk/internal/store"
)

// CreateGeneralPurchase records a purchase that never touches inventory.
func (s *Service) CreateGeneralPurchase(ctx context.Context, draft domain.PurchaseDraft) (domain.Purchase, error) {
	return s.createPurchase(ctx, draft, false)
}

// CreateTrackedPurchase records a purchase and adds every line to stock,
// creating inventory records for items seen for the first time.
func (s *Service) CreateTrackedPurchase(ctx context.Context, draft domain.PurchaseDraft) (domain.Purchase, error) {
	return s.createPurchase(ctx, draft, true)
}

func (s *Service) createPurchase(ctx context.Context, draft domain.PurchaseDraft, tracked bool) (domain.Purchase, error) {
	op := "purchase_general_create"
	category := domain.CategoryGeneral
	if tracked {
		op = "purchase_tracked_create"
		category = domain.CategoryTracked
	}

	draft = normalizePurchaseDraft(draft)
	if err := s.check(draft); err != nil {
		return domain.Purchase{}, s.finish(ctx, op, err)
	}

	purchase := domain.Purchase{
		DateTime: s.now(),
		Tracked:  tracked,
		Category: category,
	}
	items := make([]domain.PurchaseItem, 0, len(draft.Items))
	for i, line := range draft.Items {
		amount := line.Quantity.Mul(line.Rate)
		purchase.TotalAmount = purchase.TotalAmount.Add(amount)
		items = append(items, domain.PurchaseItem{
			SrNo:     i + 1,
			ItemName: line.ItemName,
			Quantity: line.Quantity,
			Rate:     line.Rate,
			Amount:   amount,
			Category: category,
			Tracked:  tracked,
		})
	}

	err := s.store.WithTx(ctx, func(ctx context.Context, tx store.Tx) error {
		id, err := tx.InsertPurchase(ctx, purchase)
		if err != nil {
			return err
		}
		purchase.ID = id
		if err := tx.InsertPurchaseItems(ctx, id, items); err != nil {
			return err
		}
		if tracked {
			for _, item := range items {
				_, err := s.ledger.Apply(ctx, tx, ledger.Movement{
					ItemName:  item.ItemName,
					Delta:     item.Quantity,
					Source:    domain.SourcePurchase,
					Reference: purchaseRef(id),
				})
				if err != nil {
					return err
				}
			}
		}

		stored, err := tx.ListPurchaseItems(ctx, id)
		if err != nil {
			return err
		}
		if sum := sumPurchaseItems(stored); !withinTolerance(sum, purchase.TotalAmount) {
			return fmt.Errorf("%w: purchase %d items sum to %s, total is %s", store.ErrConsistency, id, sum, purchase.TotalAmount)
		}
		purchase.Items = stored
		return nil
	})
	if err := s.finish(ctx, op, err); err != nil {
		return domain.Purchase{}, err
	}
	s.logger.Info("purchase created",
		slog.Int64("purchase_id", purchase.ID),
		slog.Bool("tracked", tracked),
		slog.String("total", purchase.TotalAmount.StringFixed(2)),
	)
	return purchase, nil
}

// EditPurchaseItem rewrites one purchase line and reconciles the parent
// total. For tracked lines the stock difference is applied; a rename moves
// the old quantity off the old item and the new quantity onto the new one.
// Only the rename may create a record. A same-item edit whose record was
// deleted leaves inventory alone.
func (s *Service) EditPurchaseItem(ctx context.Context, itemID int64, line domain.PurchaseLine) (domain.PurchaseItem, error) {
	line.ItemName = strings.TrimSpace(line.ItemName)
	if err := s.check(line); err != nil {
		return domain.PurchaseItem{}, s.finish(ctx, "purchase_item_edit", err)
	}

	var updated domain.PurchaseItem
	err := s.store.WithTx(ctx, func(ctx context.Context, tx store.Tx) error {
		old, err := tx.GetPurchaseItem(ctx, itemID)
		if err != nil {
			return err
		}
		updated = *old
		updated.ItemName = line.ItemName
		updated.Quantity = line.Quantity
		updated.Rate = line.Rate
		updated.Amount = line.Quantity.Mul(line.Rate)
		if err := tx.UpdatePurchaseItem(ctx, updated); err != nil {
			return err
		}

		if old.Tracked {
			ref := purchaseItemRef(itemID)
			var moves []ledger.Movement
			if ledger.NormalizeKey(old.ItemName) == ledger.NormalizeKey(updated.ItemName) {
				moves = []ledger.Movement{{ItemName: updated.ItemName, Delta: updated.Quantity.Sub(old.Quantity), Source: domain.SourcePurchaseEdit, Reference: ref}}
			} else {
				moves = []ledger.Movement{
					{ItemName: old.ItemName, Delta: old.Quantity.Neg(), Source: domain.SourcePurchaseEdit, Reference: ref},
					{ItemName: updated.ItemName, Delta: updated.Quantity, Source: domain.SourcePurchaseRename, Reference: ref},
				}
			}
			for _, mv := range moves {
				if _, err := s.ledger.Apply(ctx, tx, mv); err != nil {
					return err
				}
			}
		}
		return s.reconcilePurchase(ctx, tx, old.PurchaseID)
	})
	if err := s.finish(ctx, "purchase_item_edit", err); err != nil {
		return domain.PurchaseItem{}, err
	}
	s.logger.Info("purchase item edited", slog.Int64("item_id", itemID), slog.Int64("purchase_id", updated.PurchaseID))
	return updated, nil
}

func (s *Service) DeletePurchaseItem(ctx context.Context, itemID int64) error {
	err := s.store.WithTx(ctx, func(ctx context.Context, tx store.Tx) error {
		old, err := tx.GetPurchaseItem(ctx, itemID)
		if err != nil {
			return err
		}
		if err := tx.DeletePurchaseItem(ctx, itemID); err != nil {
			return err
		}
		if old.Tracked {
			_, err := s.ledger.Apply(ctx, tx, ledger.Movement{
				ItemName:  old.ItemName,
				Delta:     old.Quantity.Neg(),
				Source:    domain.SourcePurchaseDelete,
				Reference: purchaseItemRef(itemID),
			})
			if err != nil {
				return err
			}
		}
		return s.reconcilePurchase(ctx, tx, old.PurchaseID)
	})
	if err := s.finish(ctx, "purchase_item_delete", err); err != nil {
		return err
	}
	s.logger.Info("purchase item deleted", slog.Int64("item_id", itemID))
	return nil
}

// ListPurchaseLines returns the itemized purchase lines of the local day
// containing day, newest first.
func (s *Service) ListPurchaseLines(ctx context.Context, day time.Time) ([]domain.PurchaseLineView, error) {
	return s.store.ListPurchaseLines(ctx, s.dayWindow(day), 1000)
}

// reconcilePurchase sets the purchase total to the sum of its current items.
func (s *Service) reconcilePurchase(ctx context.Context, tx store.Tx, purchaseID int64) error {
	items, err := tx.ListPurchaseItems(ctx, purchaseID)
	if err != nil {
		return err
	}
	return tx.SetPurchaseTotal(ctx, purchaseID, sumPurchaseItems(items))
}

func sumPurchaseItems(items []domain.PurchaseItem) decimal.Decimal {
	sum := decimal.Zero
	for _, item := range items {
		sum = sum.Add(item.Amount)
	}
	return sum
}

func normalizePurchaseDraft(draft domain.PurchaseDraft) domain.PurchaseDraft {
	if draft.Items == nil {
		return draft
	}
	lines := make([]domain.PurchaseLine, len(draft.Items))
	for i, line := range draft.Items {
		line.ItemName = strings.TrimSpace(line.ItemName)
		lines[i] = line
	}
	draft.Items = lines
	return draft
}

func purchaseRef(id int64) string {
	return "purchase:" + strconv.FormatInt(id, 10)
}

func purchaseItemRef(id int64) string {
	return "purchase_item:" + strconv.FormatInt(id, 10)
}

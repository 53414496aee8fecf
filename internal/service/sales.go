package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/shopspring/decimal"

	"billdesk/internal/billno"
	"billdesk/internal/domain"
	"billdesk/internal/ledger"
	"billdesk/internal/store"
)

var (
	hundred = decimal.NewFromInt(100)
	// totalTolerance bounds the drift allowed between computed and persisted totals.
	totalTolerance = decimal.New(1, -6)
)

// ComputeTotals prices every line and applies the discount. Only the net
// total is rounded, to two places.
func ComputeTotals(lines []domain.SaleLine, discountPercent decimal.Decimal) domain.SaleTotals {
	totals := domain.SaleTotals{Amounts: make([]decimal.Decimal, 0, len(lines))}
	for _, line := range lines {
		amount := line.Quantity.Mul(line.Rate)
		totals.Amounts = append(totals.Amounts, amount)
		totals.Subtotal = totals.Subtotal.Add(amount)
	}
	totals.NetTotal = totals.Subtotal.Mul(hundred.Sub(discountPercent)).Div(hundred).Round(2)
	return totals
}

func (s *Service) CreateSale(ctx context.Context, draft domain.SaleDraft) (domain.Sale, error) {
	draft = normalizeSaleDraft(draft)
	if err := s.check(draft); err != nil {
		return domain.Sale{}, s.finish(ctx, "sale_create", err)
	}

	now := s.now()
	totals := ComputeTotals(draft.Items, draft.DiscountPercent)
	var sale domain.Sale
	err := s.store.WithTx(ctx, func(ctx context.Context, tx store.Tx) error {
		billID := draft.BillID
		if billID == "" {
			next, err := billno.Next(ctx, tx, now.In(s.location))
			if err != nil {
				return err
			}
			billID = next
		} else if _, err := tx.GetSale(ctx, billID); err == nil {
			return fmt.Errorf("%w: bill id %s already exists", store.ErrConsistency, billID)
		} else if !errors.Is(err, store.ErrNotFound) {
			return err
		}

		sale = saleFromDraft(draft, totals)
		sale.BillID = billID
		sale.DateTime = now
		if err := tx.InsertSale(ctx, sale); err != nil {
			return err
		}
		items, err := s.writeSaleLines(ctx, tx, sale, draft.Items, totals)
		if err != nil {
			return err
		}
		sale.Items = items

		if draft.CreateReminder {
			_, err := tx.InsertReminder(ctx, domain.ServiceReminder{
				BillID:         billID,
				CarNumber:      sale.CarNumber,
				CustomerName:   sale.CustomerName,
				MobileNumber:   sale.MobileNumber,
				ServiceDueDate: now.Add(s.reminderLead),
			})
			if err != nil {
				return fmt.Errorf("create reminder for %s: %w", billID, err)
			}
		}
		return nil
	})
	if err := s.finish(ctx, "sale_create", err); err != nil {
		return domain.Sale{}, err
	}

	s.logger.Info("sale created",
		slog.String("bill_id", sale.BillID),
		slog.String("net_total", sale.NetTotal.StringFixed(2)),
		slog.Int("lines", len(sale.Items)),
	)
	if draft.Share {
		s.shareBill(sale)
	}
	return sale, nil
}

// UpdateSale reverses every stored line of billID, then writes the draft as
// if it were new. The bill id and timestamp stay; no reminder is created.
func (s *Service) UpdateSale(ctx context.Context, billID string, draft domain.SaleDraft) (domain.Sale, error) {
	billID = strings.TrimSpace(billID)
	draft = normalizeSaleDraft(draft)
	if draft.BillID != "" && draft.BillID != billID {
		return domain.Sale{}, s.finish(ctx, "sale_update", fmt.Errorf("%w: bill id cannot be changed", store.ErrValidation))
	}
	if err := s.check(draft); err != nil {
		return domain.Sale{}, s.finish(ctx, "sale_update", err)
	}

	totals := ComputeTotals(draft.Items, draft.DiscountPercent)
	var sale domain.Sale
	err := s.store.WithTx(ctx, func(ctx context.Context, tx store.Tx) error {
		existing, err := tx.GetSale(ctx, billID)
		if err != nil {
			return err
		}
		old, err := tx.ListSaleItems(ctx, billID)
		if err != nil {
			return err
		}
		for _, item := range old {
			_, err := s.ledger.Apply(ctx, tx, ledger.Movement{
				ItemName:  item.ItemName,
				Delta:     item.Quantity,
				Source:    domain.SourceSaleReversal,
				Reference: billID,
			})
			if err != nil {
				return err
			}
		}
		if err := tx.DeleteSaleItems(ctx, billID); err != nil {
			return err
		}

		sale = saleFromDraft(draft, totals)
		sale.BillID = existing.BillID
		sale.DateTime = existing.DateTime
		sale.Edited = true
		if err := tx.UpdateSale(ctx, sale); err != nil {
			return err
		}
		items, err := s.writeSaleLines(ctx, tx, sale, draft.Items, totals)
		if err != nil {
			return err
		}
		sale.Items = items
		return nil
	})
	if err := s.finish(ctx, "sale_update", err); err != nil {
		return domain.Sale{}, err
	}
	s.logger.Info("sale updated", slog.String("bill_id", sale.BillID), slog.String("net_total", sale.NetTotal.StringFixed(2)))
	return sale, nil
}

// DeleteSale removes the sale and its items. Inventory taken by the sale is
// not returned to stock.
func (s *Service) DeleteSale(ctx context.Context, billID string) error {
	billID = strings.TrimSpace(billID)
	err := s.store.WithTx(ctx, func(ctx context.Context, tx store.Tx) error {
		return tx.DeleteSale(ctx, billID)
	})
	if err := s.finish(ctx, "sale_delete", err); err != nil {
		return err
	}
	s.logger.Info("sale deleted", slog.String("bill_id", billID))
	return nil
}

// writeSaleLines persists the lines of sale, takes them out of stock and
// checks the stored items still add up to the sale subtotal.
func (s *Service) writeSaleLines(ctx context.Context, tx store.Tx, sale domain.Sale, lines []domain.SaleLine, totals domain.SaleTotals) ([]domain.SaleItem, error) {
	items := make([]domain.SaleItem, 0, len(lines))
	for i, line := range lines {
		items = append(items, domain.SaleItem{
			BillID:   sale.BillID,
			SrNo:     i + 1,
			ItemName: line.ItemName,
			Quantity: line.Quantity,
			Rate:     line.Rate,
			Amount:   totals.Amounts[i],
		})
	}
	if err := tx.InsertSaleItems(ctx, sale.BillID, items); err != nil {
		return nil, err
	}
	for _, line := range lines {
		_, err := s.ledger.Apply(ctx, tx, ledger.Movement{
			ItemName:  line.ItemName,
			Delta:     line.Quantity.Neg(),
			Source:    domain.SourceSale,
			Reference: sale.BillID,
		})
		if err != nil {
			return nil, err
		}
	}

	stored, err := tx.ListSaleItems(ctx, sale.BillID)
	if err != nil {
		return nil, err
	}
	sum := decimal.Zero
	for _, item := range stored {
		sum = sum.Add(item.Amount)
	}
	if !withinTolerance(sum, sale.Subtotal) {
		return nil, fmt.Errorf("%w: bill %s items sum to %s, subtotal is %s", store.ErrConsistency, sale.BillID, sum, sale.Subtotal)
	}
	return stored, nil
}

func (s *Service) GetSale(ctx context.Context, billID string) (domain.Sale, error) {
	sale, err := s.store.GetSale(ctx, strings.TrimSpace(billID))
	if err != nil {
		return domain.Sale{}, err
	}
	if sale.Items == nil {
		items, err := s.store.ListSaleItems(ctx, sale.BillID)
		if err != nil {
			return domain.Sale{}, err
		}
		sale.Items = items
	}
	return *sale, nil
}

func (s *Service) SearchSales(ctx context.Context, field domain.SaleSearchField, term string, limit int) ([]domain.Sale, error) {
	if field == "" {
		field = domain.SearchByBillID
	}
	if !field.Valid() {
		return nil, fmt.Errorf("%w: unknown search field %q", store.ErrValidation, field)
	}
	if limit < 1 || limit > 200 {
		limit = 50
	}
	return s.store.SearchSales(ctx, field, strings.TrimSpace(term), limit)
}

// NextBillID previews the id the next sale created today would receive.
func (s *Service) NextBillID(ctx context.Context) (string, error) {
	return billno.Next(ctx, s.store, s.now().In(s.location))
}

func (s *Service) BillDocument(ctx context.Context, billID string) (domain.BillDocument, error) {
	sale, err := s.GetSale(ctx, billID)
	if err != nil {
		return domain.BillDocument{}, err
	}
	profile, err := s.BusinessProfile(ctx)
	if err != nil {
		return domain.BillDocument{}, err
	}
	return domain.NewBillDocument(sale, profile), nil
}

func (s *Service) shareBill(sale domain.Sale) {
	s.dispatcher.Submit("share_bill", func(ctx context.Context) error {
		profile, err := s.BusinessProfile(ctx)
		if err != nil {
			return err
		}
		msg := domain.OutboundMessage{
			CountryCode: profile.CountryCode,
			Number:      sale.MobileNumber,
			Body:        billCaption(sale),
		}
		if s.documents != nil {
			path, err := s.documents.Generate(ctx, domain.NewBillDocument(sale, profile))
			if err != nil && path == "" {
				return err
			}
			if err != nil {
				s.logger.Warn("bill pdf unavailable, sharing html", slog.String("bill_id", sale.BillID), slog.Any("error", err))
			}
			msg.AttachmentPath = path
		}
		return s.messenger.Send(ctx, msg)
	})
}

func billCaption(sale domain.Sale) string {
	return fmt.Sprintf("Invoice: %s\nCustomer Name: %s\nCar: %s (%s KM)\nCar Number: %s\nTotal: ₹%s\nThank you for your business!",
		sale.BillID, sale.CustomerName, sale.CarModel, sale.CarKM, sale.CarNumber, sale.NetTotal.StringFixed(2))
}

func saleFromDraft(draft domain.SaleDraft, totals domain.SaleTotals) domain.Sale {
	return domain.Sale{
		CustomerName:    draft.CustomerName,
		MobileNumber:    draft.MobileNumber,
		CarNumber:       draft.CarNumber,
		CarModel:        draft.CarModel,
		CarKM:           draft.CarKM,
		Subtotal:        totals.Subtotal,
		DiscountPercent: draft.DiscountPercent,
		NetTotal:        totals.NetTotal,
		Paid:            draft.Paid,
	}
}

func normalizeSaleDraft(draft domain.SaleDraft) domain.SaleDraft {
	draft.BillID = strings.TrimSpace(draft.BillID)
	draft.CustomerName = strings.TrimSpace(draft.CustomerName)
	draft.MobileNumber = strings.TrimSpace(draft.MobileNumber)
	draft.CarNumber = strings.TrimSpace(draft.CarNumber)
	draft.CarModel = strings.TrimSpace(draft.CarModel)
	draft.CarKM = strings.TrimSpace(draft.CarKM)
	lines := make([]domain.SaleLine, len(draft.Items))
	for i, line := range draft.Items {
		line.ItemName = strings.TrimSpace(line.ItemName)
		lines[i] = line
	}
	if draft.Items != nil {
		draft.Items = lines
	}
	return draft
}

func withinTolerance(a, b decimal.Decimal) bool {
	return a.Sub(b).Abs().LessThanOrEqual(totalTolerance)
}

package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"billdesk/internal/domain"
	"billdesk/internal/ledger"
	"billdesk/internal/store"
)

// AddExpenditure stores an expense numbered after the last one of the
// current local day.
func (s *Service) AddExpenditure(ctx context.Context, draft domain.ExpenditureDraft) (domain.Expenditure, error) {
	draft.Description = strings.TrimSpace(draft.Description)
	if err := s.check(draft); err != nil {
		return domain.Expenditure{}, s.finish(ctx, "expenditure_create", err)
	}

	exp := domain.Expenditure{
		DateTime:    s.now(),
		Description: draft.Description,
		Amount:      draft.Amount,
	}
	err := s.store.WithTx(ctx, func(ctx context.Context, tx store.Tx) error {
		last, err := tx.MaxExpenditureSrNo(ctx, s.dayWindow(exp.DateTime))
		if err != nil {
			return err
		}
		exp.SrNoDaily = last + 1
		id, err := tx.InsertExpenditure(ctx, exp)
		if err != nil {
			return err
		}
		exp.ID = id
		return nil
	})
	if err := s.finish(ctx, "expenditure_create", err); err != nil {
		return domain.Expenditure{}, err
	}
	return exp, nil
}

func (s *Service) UpdateExpenditure(ctx context.Context, id int64, draft domain.ExpenditureDraft) (domain.Expenditure, error) {
	draft.Description = strings.TrimSpace(draft.Description)
	if err := s.check(draft); err != nil {
		return domain.Expenditure{}, s.finish(ctx, "expenditure_update", err)
	}

	var exp domain.Expenditure
	err := s.store.WithTx(ctx, func(ctx context.Context, tx store.Tx) error {
		existing, err := tx.GetExpenditure(ctx, id)
		if err != nil {
			return err
		}
		exp = *existing
		exp.Description = draft.Description
		exp.Amount = draft.Amount
		return tx.UpdateExpenditure(ctx, exp)
	})
	if err := s.finish(ctx, "expenditure_update", err); err != nil {
		return domain.Expenditure{}, err
	}
	return exp, nil
}

func (s *Service) DeleteExpenditure(ctx context.Context, id int64) error {
	err := s.store.WithTx(ctx, func(ctx context.Context, tx store.Tx) error {
		return tx.DeleteExpenditure(ctx, id)
	})
	return s.finish(ctx, "expenditure_delete", err)
}

func (s *Service) ListExpenditures(ctx context.Context, day time.Time) ([]domain.Expenditure, error) {
	return s.store.ListExpenditures(ctx, s.dayWindow(day))
}

func (s *Service) ListInventory(ctx context.Context) ([]domain.InventoryRecord, error) {
	return s.store.ListInventory(ctx)
}

// DeleteInventoryRecord stops tracking an item. Its movement history is kept.
func (s *Service) DeleteInventoryRecord(ctx context.Context, id int64) error {
	err := s.store.WithTx(ctx, func(ctx context.Context, tx store.Tx) error {
		return tx.DeleteInventory(ctx, id)
	})
	if err := s.finish(ctx, "inventory_delete", err); err != nil {
		return err
	}
	s.logger.Info("inventory record deleted", slog.Int64("inventory_id", id))
	return nil
}

// ListMovements returns the stock card for itemName, newest first. An empty
// name lists movements of every item.
func (s *Service) ListMovements(ctx context.Context, itemName string, limit int) ([]domain.InventoryMovement, error) {
	if limit < 1 || limit > 1000 {
		limit = 200
	}
	return s.store.ListMovements(ctx, ledger.NormalizeKey(itemName), limit)
}

func (s *Service) ListDueReminders(ctx context.Context) ([]domain.ServiceReminder, error) {
	return s.store.ListDueReminders(ctx, s.now())
}

func (s *Service) MarkReminderNotified(ctx context.Context, id int64) error {
	err := s.store.WithTx(ctx, func(ctx context.Context, tx store.Tx) error {
		return tx.MarkReminderNotified(ctx, id)
	})
	return s.finish(ctx, "reminder_mark", err)
}

// SendReminder marks the reminder notified and queues the reminder message.
// Delivery is best effort; the reminder stays notified if sending fails.
func (s *Service) SendReminder(ctx context.Context, id int64) (domain.ServiceReminder, error) {
	var reminder domain.ServiceReminder
	err := s.store.WithTx(ctx, func(ctx context.Context, tx store.Tx) error {
		found, err := tx.GetReminder(ctx, id)
		if err != nil {
			return err
		}
		if err := tx.MarkReminderNotified(ctx, id); err != nil {
			return err
		}
		reminder = *found
		reminder.Notified = true
		return nil
	})
	if err := s.finish(ctx, "reminder_send", err); err != nil {
		return domain.ServiceReminder{}, err
	}

	s.dispatcher.Submit("send_reminder", func(ctx context.Context) error {
		profile, err := s.BusinessProfile(ctx)
		if err != nil {
			return err
		}
		return s.messenger.Send(ctx, domain.OutboundMessage{
			CountryCode: profile.CountryCode,
			Number:      reminder.MobileNumber,
			Body:        reminderText(reminder, profile, s.location),
		})
	})
	return reminder, nil
}

func reminderText(reminder domain.ServiceReminder, profile domain.BusinessProfile, loc *time.Location) string {
	business := strings.TrimSpace(profile.Name)
	if business == "" {
		business = "Service Center"
	}
	return fmt.Sprintf("🔔 Vehicle Service Reminder\nHello %s,\nThis is a reminder that the next service of your vehicle is due.\n🚗 Car Number: %s\n📅 Service Due Date: %s\nPlease contact us for booking.\nThank you!\n– %s",
		reminder.CustomerName, reminder.CarNumber, reminder.ServiceDueDate.In(loc).Format("02-01-2006"), business)
}

// BusinessProfile returns the stored profile, or the defaults when none has
// been saved yet.
func (s *Service) BusinessProfile(ctx context.Context) (domain.BusinessProfile, error) {
	profile, err := s.store.GetBusinessProfile(ctx)
	if errors.Is(err, store.ErrNotFound) {
		return domain.DefaultBusinessProfile(), nil
	}
	if err != nil {
		return domain.BusinessProfile{}, err
	}
	return *profile, nil
}

func (s *Service) SaveBusinessProfile(ctx context.Context, profile domain.BusinessProfile) (domain.BusinessProfile, error) {
	profile.Name = strings.TrimSpace(profile.Name)
	profile.Address = strings.TrimSpace(profile.Address)
	profile.Phone = strings.TrimSpace(profile.Phone)
	profile.OwnerName = strings.TrimSpace(profile.OwnerName)
	profile.LogoPath = strings.TrimSpace(profile.LogoPath)
	profile.CountryCode = strings.TrimSpace(profile.CountryCode)
	if profile.CountryCode == "" {
		profile.CountryCode = domain.DefaultBusinessProfile().CountryCode
	}
	if err := s.check(profile); err != nil {
		return domain.BusinessProfile{}, s.finish(ctx, "profile_save", err)
	}
	err := s.store.WithTx(ctx, func(ctx context.Context, tx store.Tx) error {
		return tx.SaveBusinessProfile(ctx, profile)
	})
	if err := s.finish(ctx, "profile_save", err); err != nil {
		return domain.BusinessProfile{}, err
	}
	return profile, nil
}

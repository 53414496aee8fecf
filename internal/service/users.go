package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"golang.org/x/crypto/bcrypt"

	"billdesk/internal/domain"
	"billdesk/internal/store"
)

// The methods below back the auth manager's user store.

func (s *Service) CreateUser(ctx context.Context, user domain.UserAccount) error {
	err := s.store.WithTx(ctx, func(ctx context.Context, tx store.Tx) error {
		return tx.CreateUser(ctx, user)
	})
	return s.finish(ctx, "user_create", err)
}

func (s *Service) ListUsers(ctx context.Context) ([]domain.UserAccount, error) {
	return s.store.ListUsers(ctx)
}

func (s *Service) UpdateUserPassword(ctx context.Context, username string, password string) error {
	return s.store.WithTx(ctx, func(ctx context.Context, tx store.Tx) error {
		return tx.UpdateUserPassword(ctx, username, password)
	})
}

func (s *Service) DeleteUser(ctx context.Context, username string) error {
	err := s.store.WithTx(ctx, func(ctx context.Context, tx store.Tx) error {
		return tx.DeleteUser(ctx, username)
	})
	return s.finish(ctx, "user_delete", err)
}

// EnsureDefaults seeds the business profile and an admin account on an empty
// store. An empty adminPassword falls back to the development default.
func (s *Service) EnsureDefaults(ctx context.Context, adminPassword string) error {
	if adminPassword == "" {
		adminPassword = "admin123"
		s.logger.Warn("using default admin credentials, set SEED_ADMIN_PASSWORD to override")
	}
	return s.store.WithTx(ctx, func(ctx context.Context, tx store.Tx) error {
		if _, err := tx.GetBusinessProfile(ctx); errors.Is(err, store.ErrNotFound) {
			if err := tx.SaveBusinessProfile(ctx, domain.DefaultBusinessProfile()); err != nil {
				return err
			}
		} else if err != nil {
			return err
		}

		users, err := tx.ListUsers(ctx)
		if err != nil {
			return err
		}
		if len(users) > 0 {
			return nil
		}
		hash, err := bcrypt.GenerateFromPassword([]byte(adminPassword), bcrypt.DefaultCost)
		if err != nil {
			return fmt.Errorf("hash seed password: %w", err)
		}
		s.logger.Info("seeding admin account", slog.String("username", "admin"))
		return tx.CreateUser(ctx, domain.UserAccount{
			Username:  "admin",
			Password:  string(hash),
			Role:      "admin",
			Active:    true,
			CreatedAt: s.now(),
		})
	})
}

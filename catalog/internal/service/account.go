package service

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/Astemirdum/library-catalog/catalog/internal/errs"
	"github.com/Astemirdum/library-catalog/catalog/internal/model"
	"github.com/Astemirdum/library-catalog/catalog/internal/repository"
	"github.com/Astemirdum/library-catalog/pkg/auth"
)

const tokenType = "Bearer"

func (s *Service) Register(ctx context.Context, req model.RegisterRequest, role model.Role) (model.AuthResponse, error) {
	req.Normalize()
	if !role.Valid() {
		return model.AuthResponse{}, errs.Validation("role must be Admin or Member")
	}
	hash, err := auth.HashPassword(req.Password, s.cfg.BcryptCost)
	if err != nil {
		return model.AuthResponse{}, errors.Wrap(err, "hash password")
	}

	now := s.clock()
	acc := model.Account{
		ID:           uuid.NewString(),
		Name:         req.Name,
		Email:        req.Email,
		PasswordHash: hash,
		Role:         role,
		IsActive:     true,
		Version:      1,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.repo.CreateAccount(ctx, &acc); err != nil {
		return model.AuthResponse{}, err
	}
	return s.authResponse(acc)
}

// Login answers every credential mismatch the same way.
func (s *Service) Login(ctx context.Context, req model.LoginRequest) (model.AuthResponse, error) {
	req.Normalize()
	acc, err := s.repo.GetAccountByEmail(ctx, req.Email)
	if err != nil {
		if errors.Is(err, errs.ErrAccountNotFound) {
			return model.AuthResponse{}, errs.ErrInvalidCredentials
		}
		return model.AuthResponse{}, err
	}
	if !acc.IsActive || !auth.VerifyPassword(acc.PasswordHash, req.Password) {
		return model.AuthResponse{}, errs.ErrInvalidCredentials
	}
	return s.authResponse(acc)
}

func (s *Service) authResponse(acc model.Account) (model.AuthResponse, error) {
	token, exp, err := s.tokens.Issue(auth.Principal{
		ID:    acc.ID,
		Name:  acc.Name,
		Email: acc.Email,
		Role:  string(acc.Role),
	})
	if err != nil {
		return model.AuthResponse{}, err
	}
	return model.AuthResponse{Token: token, Type: tokenType, ExpiresAt: exp, Account: acc}, nil
}

func (s *Service) Profile(ctx context.Context, userID string) (model.Account, error) {
	return s.repo.GetAccount(ctx, userID)
}

func (s *Service) UpdateProfile(ctx context.Context, userID string, req model.UpdateProfileRequest) (model.Account, error) {
	var updated model.Account
	err := s.runTx(ctx, "update-profile", func(ctx context.Context, tx repository.Tx) error {
		acc, err := tx.LockAccount(ctx, userID)
		if err != nil {
			return err
		}
		acc.Name = strings.TrimSpace(req.Name)
		acc.UpdatedAt = s.clock()
		if err := tx.SaveAccount(ctx, acc); err != nil {
			return err
		}
		updated = *acc
		return nil
	})
	return updated, err
}

func (s *Service) ChangePassword(ctx context.Context, userID string, req model.ChangePasswordRequest) error {
	hash, err := auth.HashPassword(req.NewPassword, s.cfg.BcryptCost)
	if err != nil {
		return errors.Wrap(err, "hash password")
	}
	return s.runTx(ctx, "change-password", func(ctx context.Context, tx repository.Tx) error {
		acc, err := tx.LockAccount(ctx, userID)
		if err != nil {
			return err
		}
		if !auth.VerifyPassword(acc.PasswordHash, req.CurrentPassword) {
			return errs.Validation("current password is incorrect")
		}
		acc.PasswordHash = hash
		acc.UpdatedAt = s.clock()
		return tx.SaveAccount(ctx, acc)
	})
}

package service

import (
	"context"

	"github.com/Astemirdum/library-catalog/catalog/internal/model"
)

// RecordLoanEvent stores a consumed event; redeliveries are no-ops.
func (s *Service) RecordLoanEvent(ctx context.Context, event model.LoanEvent) error {
	return s.repo.SaveLoanEvent(ctx, event)
}

func (s *Service) LoanStats(ctx context.Context) ([]model.UserStats, error) {
	return s.repo.LoanStats(ctx)
}

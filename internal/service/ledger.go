package service

import (
	"context"
	"fmt"

	"clubledger-backend/internal/domain"
	"clubledger-backend/internal/logger"
	"clubledger-backend/internal/metrics"
	"clubledger-backend/internal/repository"
)

type ledgerService struct {
	store repository.Store
}

func NewLedgerService(store repository.Store) LedgerService {
	return &ledgerService{store: store}
}

func (s *ledgerService) GetBalance(ctx context.Context, actor domain.Actor, childID string) (int, error) {
	child, err := loadVisibleChild(ctx, s.store.Repos(), actor, childID)
	if err != nil {
		return 0, err
	}
	return child.Balance, nil
}

func (s *ledgerService) GetTransactions(ctx context.Context, actor domain.Actor, childID string, page, pageSize int32) ([]domain.LedgerTransaction, int32, error) {
	repos := s.store.Repos()
	if _, err := loadVisibleChild(ctx, repos, actor, childID); err != nil {
		return nil, 0, err
	}
	return repos.Ledger.ListTransactions(ctx, childID, page, pageSize)
}

func (s *ledgerService) GetLedgerSummary(ctx context.Context, actor domain.Actor, childID string) (*domain.LedgerSummary, error) {
	repos := s.store.Repos()
	if _, err := loadVisibleChild(ctx, repos, actor, childID); err != nil {
		return nil, err
	}
	return repos.Ledger.GetSummary(ctx, childID)
}

// AuditBalances reports every child whose balance no longer equals its
// opening balance plus its journal.
func (s *ledgerService) AuditBalances(ctx context.Context) ([]domain.BalanceDrift, error) {
	logger.EnterMethod("ledgerService.AuditBalances")

	drifts, err := s.store.Repos().Ledger.ListDrift(ctx)
	if err != nil {
		logger.ExitMethodWithError("ledgerService.AuditBalances", err)
		return nil, err
	}
	metrics.LedgerDriftChildren.Set(float64(len(drifts)))
	for _, d := range drifts {
		logger.Error("Ledger drift detected",
			"childID", d.ChildID, "balance", d.Balance, "expected", d.Expected(),
			"openingBalance", d.OpeningBalance, "journalSum", d.JournalSum)
	}

	logger.ExitMethod("ledgerService.AuditBalances", "drifting", len(drifts))
	return drifts, nil
}

// loadVisibleChild resolves a child the actor may read: parents their own
// children, trainers and admins any child.
func loadVisibleChild(ctx context.Context, repos repository.Repositories, actor domain.Actor, childID string) (*domain.Child, error) {
	child, err := repos.Children.GetByID(ctx, childID)
	if err != nil {
		return nil, err
	}
	switch actor.Role {
	case domain.RoleAdmin, domain.RoleTrainer:
		return child, nil
	case domain.RoleParent:
		if child.ParentID == actor.UserID {
			return child, nil
		}
	}
	return nil, fmt.Errorf("child %s: %w", childID, domain.ErrForbidden)
}

// adjustAndJournal applies entry.Amount to the child's balance and appends the
// journal row carrying the resulting balance. repos must be bound to the
// caller's transaction so both writes commit together.
func adjustAndJournal(ctx context.Context, repos repository.Repositories, entry domain.LedgerTransaction) (int, error) {
	balance, err := repos.Children.AdjustBalance(ctx, entry.ChildID, entry.Amount)
	if err != nil {
		return 0, err
	}
	entry.BalanceAfter = balance
	if err := repos.Ledger.CreateTransaction(ctx, &entry); err != nil {
		return 0, fmt.Errorf("journal %s for child %s: %w", entry.Type, entry.ChildID, err)
	}
	return balance, nil
}

// recordAdjustment logs and counts a committed adjustment.
func recordAdjustment(kind string, txType domain.TransactionType, childID string, delta, balance int, args ...any) {
	metrics.BalanceAdjustmentsTotal.WithLabelValues(string(txType)).Inc()
	logger.Reconciliation(kind, childID, delta, balance, append([]any{"type", txType}, args...)...)
}

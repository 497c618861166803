// Package services orchestrates ledger mutations: persist first, then
// rebuild the user's insight cache, then push change signals.
package services

import (
	"context"
	"fmt"
	"log/slog"

	"finledger/internal/amqp"
	"finledger/internal/core"
)

// TransactionStore is the ledger write/read surface the service needs.
type TransactionStore interface {
	CreateTransaction(ctx context.Context, tx core.Transaction) (core.Transaction, error)
	UpdateTransaction(ctx context.Context, tx core.Transaction) (core.Transaction, error)
	DeleteTransaction(ctx context.Context, userID, id string) error
	GetTransaction(ctx context.Context, userID, id string) (core.Transaction, error)
	ListForUser(ctx context.Context, userID string) ([]core.Transaction, error)
}

// Recalculator rebuilds a user's insight cache after a mutation.
type Recalculator interface {
	Recalculate(ctx context.Context, userID string) (core.Snapshot, error)
}

// Broadcaster pushes a change signal to connected clients.
type Broadcaster interface {
	Publish(name, payload string)
}

// EventPublisher forwards mutation events to the message broker so
// out-of-process consumers can react. Optional.
type EventPublisher interface {
	PublishTransactionEvent(ctx context.Context, msg *amqp.TransactionEventMessage) error
}

// TransactionService applies the ordering contract for every mutation:
// the ledger write commits before any recalculation or notification runs.
// Post-commit failures are logged, never surfaced: the mutation is durable
// and the cache self-heals through the dirty check.
type TransactionService struct {
	store     TransactionStore
	insights  Recalculator
	hub       Broadcaster
	publisher EventPublisher
}

func NewTransactionService(store TransactionStore, insights Recalculator, hub Broadcaster, publisher EventPublisher) *TransactionService {
	return &TransactionService{
		store:     store,
		insights:  insights,
		hub:       hub,
		publisher: publisher,
	}
}

func (s *TransactionService) List(ctx context.Context, userID string) ([]core.Transaction, error) {
	return s.store.ListForUser(ctx, userID)
}

func (s *TransactionService) Get(ctx context.Context, userID, id string) (core.Transaction, error) {
	return s.store.GetTransaction(ctx, userID, id)
}

func (s *TransactionService) Create(ctx context.Context, tx core.Transaction) (core.Transaction, error) {
	if err := tx.Validate(); err != nil {
		return core.Transaction{}, err
	}

	created, err := s.store.CreateTransaction(ctx, tx)
	if err != nil {
		return core.Transaction{}, fmt.Errorf("create transaction: %w", err)
	}

	s.afterMutation(ctx, created.UserID, amqp.ActionCreated, created.ID)
	return created, nil
}

// Update replaces every mutable field of an existing transaction.
func (s *TransactionService) Update(ctx context.Context, tx core.Transaction) (core.Transaction, error) {
	if err := tx.Validate(); err != nil {
		return core.Transaction{}, err
	}

	updated, err := s.store.UpdateTransaction(ctx, tx)
	if err != nil {
		return core.Transaction{}, err
	}

	s.afterMutation(ctx, updated.UserID, amqp.ActionUpdated, updated.ID)
	return updated, nil
}

func (s *TransactionService) Delete(ctx context.Context, userID, id string) error {
	if err := s.store.DeleteTransaction(ctx, userID, id); err != nil {
		return err
	}

	s.afterMutation(ctx, userID, amqp.ActionDeleted, id)
	return nil
}

// afterMutation runs the post-commit sequence: recalculate, then notify.
func (s *TransactionService) afterMutation(ctx context.Context, userID, action, transactionID string) {
	if s.insights != nil {
		if _, err := s.insights.Recalculate(ctx, userID); err != nil {
			slog.ErrorContext(ctx, "Post-mutation recalculation failed",
				"user_id", userID, "action", action, "error", err)
		}
	}

	msg := amqp.NewTransactionEventMessage(userID, action, transactionID)

	if s.hub != nil {
		s.hub.Publish(msg.EventName(), "refresh")
	}

	if s.publisher != nil {
		if err := s.publisher.PublishTransactionEvent(ctx, msg); err != nil {
			slog.ErrorContext(ctx, "Failed to publish transaction event",
				"user_id", userID, "action", action, "error", err)
		}
	}
}

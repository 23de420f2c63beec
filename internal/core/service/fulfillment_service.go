package service

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/rl1809/stockkeeper/internal/core/domain"
	"github.com/rl1809/stockkeeper/internal/port"
)

var ErrDuplicateRequest = errors.New("duplicate request")

const idempotencyKeyPrefix = "fulfill:"

// Submitter hands a fulfillment to a worker and waits for the result.
type Submitter interface {
	Submit(ctx context.Context, orderID int64, location string) (*domain.Order, error)
}

type FulfillmentService struct {
	dispatcher  Submitter
	idempotency port.IdempotencyStore
	logger      *zap.Logger
}

// NewFulfillmentService builds the service. idempotency may be nil, in which
// case request ids are ignored.
func NewFulfillmentService(dispatcher Submitter, idempotency port.IdempotencyStore, logger *zap.Logger) *FulfillmentService {
	return &FulfillmentService{
		dispatcher:  dispatcher,
		idempotency: idempotency,
		logger:      logger,
	}
}

func (s *FulfillmentService) Fulfill(ctx context.Context, requestID string, orderID int64, location string) (*domain.Order, error) {
	if requestID == "" || s.idempotency == nil {
		return s.dispatcher.Submit(ctx, orderID, location)
	}

	key := idempotencyKeyPrefix + requestID
	ok, err := s.idempotency.Claim(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("idempotency check failed: %w", err)
	}
	if !ok {
		return nil, ErrDuplicateRequest
	}

	order, err := s.dispatcher.Submit(ctx, orderID, location)
	if err != nil {
		// A failed attempt may be retried under the same request id.
		if releaseErr := s.idempotency.Release(context.WithoutCancel(ctx), key); releaseErr != nil {
			s.logger.Error("release idempotency key", zap.String("key", key), zap.Error(releaseErr))
		}
		return nil, err
	}
	return order, nil
}

package jobs

import (
	"context"
	"log/slog"

	"github.com/hibiken/asynq"

	"github.com/odyssey-erp/odyssey-pos/internal/purchases"
)

// PurchaseSuggester drafts replenishment orders.
type PurchaseSuggester interface {
	GenerateSuggestedOrders(ctx context.Context, actorID int64) ([]purchases.Purchase, error)
}

// SuggestPurchasesJob drafts one purchase per supplier for products below minimum.
type SuggestPurchasesJob struct {
	Base
	Purchases PurchaseSuggester
}

// NewSuggestPurchasesJob wires dependencies for the suggestion handler.
func NewSuggestPurchasesJob(suggester PurchaseSuggester, base Base) *SuggestPurchasesJob {
	return &SuggestPurchasesJob{Base: base, Purchases: suggester}
}

// Handle processes TaskPurchasesSuggest tasks.
func (j *SuggestPurchasesJob) Handle(ctx context.Context, t *asynq.Task) (err error) {
	payload, err := decodePayload(t)
	if err != nil {
		return err
	}
	logger := j.logger(TaskPurchasesSuggest, payload)
	if payload.ActorID <= 0 {
		logger.Error("suggest purchases without actor")
		return asynq.SkipRetry
	}
	tracker := j.metrics().Track(TaskPurchasesSuggest)
	defer func() { err = tracker.End(err) }()

	drafts, err := j.Purchases.GenerateSuggestedOrders(ctx, payload.ActorID)
	if err != nil {
		logger.Error("generate suggested orders", slog.Any("error", err))
		return err
	}
	j.metrics().AddProcessed(TaskPurchasesSuggest, len(drafts))
	for _, d := range drafts {
		logger.Info("suggested purchase drafted",
			slog.String("code", d.Code),
			slog.Int64("supplier_id", d.SupplierID),
			slog.String("total", d.Total.StringFixed(2)))
	}
	return nil
}

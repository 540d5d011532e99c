package user

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"sales-crm/internal/database/models"
	"sales-crm/internal/logger"
	"sales-crm/internal/services/access"
)

// counterpart reports whether the two accounts are a client and its salesperson, in
// either direction.
func (h *UserHandler) counterpart(ctx context.Context, actor access.Actor, toAccountID int64) (bool, error) {
	var n int64
	q := h.db.WithContext(ctx).Model(&models.ClientProfile{}).
		Joins("JOIN employee_profiles ON employee_profiles.id = client_profiles.salesperson_id")
	switch {
	case actor.IsClient():
		q = q.Where("client_profiles.id = ? AND employee_profiles.account_id = ?", actor.Client.ID, toAccountID)
	case actor.HasTitle(models.TitleSalesperson):
		q = q.Where("client_profiles.account_id = ? AND employee_profiles.id = ?", toAccountID, actor.Employee.ID)
	default:
		return false, nil
	}
	if err := q.Count(&n).Error; err != nil {
		return false, fmt.Errorf("check feedback pair: %w", err)
	}
	return n > 0, nil
}

// GiveFeedback records a like or dislike from a client for its salesperson or from a
// salesperson for one of its clients.
func (h *UserHandler) GiveFeedback(ctx context.Context, actor access.Actor, toAccountID int64, positive bool) (*models.Feedback, error) {
	if err := access.Check(actor); err != nil {
		return nil, err
	}
	ok, err := h.counterpart(ctx, actor, toAccountID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrInvalidFeedback
	}

	fb := models.Feedback{
		FromAccountID: actor.Account.ID,
		ToAccountID:   toAccountID,
		CreatedAt:     time.Now().UTC(),
		IsPositive:    positive,
	}
	if err := h.db.WithContext(ctx).Create(&fb).Error; err != nil {
		return nil, fmt.Errorf("save feedback: %w", err)
	}
	logger.FromContext(ctx).Info("feedback recorded",
		zap.Int64("from", fb.FromAccountID), zap.Int64("to", fb.ToAccountID), zap.Bool("positive", positive))
	return &fb, nil
}

type FeedbackSummary struct {
	Positive int               `json:"positive"`
	Negative int               `json:"negative"`
	Entries  []models.Feedback `json:"entries"`
}

// ReceivedFeedback lists feedback addressed to the actor, newest first.
func (h *UserHandler) ReceivedFeedback(ctx context.Context, actor access.Actor) (*FeedbackSummary, error) {
	if err := access.Check(actor); err != nil {
		return nil, err
	}
	var entries []models.Feedback
	err := h.db.WithContext(ctx).
		Where("to_account_id = ?", actor.Account.ID).
		Order("created_at DESC").
		Find(&entries).Error
	if err != nil {
		return nil, fmt.Errorf("list feedback: %w", err)
	}

	summary := &FeedbackSummary{Entries: entries}
	for _, fb := range entries {
		if fb.IsPositive {
			summary.Positive++
		} else {
			summary.Negative++
		}
	}
	return summary, nil
}

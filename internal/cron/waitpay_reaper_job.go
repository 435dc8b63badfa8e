package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/vorobeishop/storefront-backend/pkg/logger"
)

const defaultPaymentWindow = 90 * time.Minute

// waitPayReaper is the slice of the order service the reaper job needs.
type waitPayReaper interface {
	ReapExpiredWaitPay(ctx context.Context, olderThan time.Duration) (int, error)
}

// WaitPayReaperJobParams configure the unpaid-order reaper.
type WaitPayReaperJobParams struct {
	Logger *logger.Logger
	Orders waitPayReaper
	// OlderThan is the payment window; groups unpaid past it are
	// cancelled. Defaults to 90 minutes.
	OlderThan time.Duration
}

// NewWaitPayReaperJob builds the cron job that cancels orders whose
// payment window elapsed without a screenshot or a confirmed gateway
// payment. The in-process timers already handle the common case; this job
// catches timers lost to a crash or deploy.
func NewWaitPayReaperJob(params WaitPayReaperJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Orders == nil {
		return nil, fmt.Errorf("order service required")
	}
	olderThan := params.OlderThan
	if olderThan <= 0 {
		olderThan = defaultPaymentWindow
	}
	return &waitPayReaperJob{
		logg:      params.Logger,
		orders:    params.Orders,
		olderThan: olderThan,
	}, nil
}

type waitPayReaperJob struct {
	logg      *logger.Logger
	orders    waitPayReaper
	olderThan time.Duration
}

func (j *waitPayReaperJob) Name() string { return "waitpay-reaper" }

func (j *waitPayReaperJob) Run(ctx context.Context) error {
	cancelled, err := j.orders.ReapExpiredWaitPay(ctx, j.olderThan)
	if err != nil {
		return fmt.Errorf("reap expired waitpay orders: %w", err)
	}
	logCtx := j.logg.WithFields(ctx, map[string]any{"count": cancelled})
	j.logg.Info(logCtx, "waitpay reap complete")
	return nil
}

package jobs

import (
	"context"
	"log"
	"time"

	"github.com/BigDeckClub/BigDeckAppV3-sub007/internal/price"
)

// PriceRefreshJob periodically re-checks cache freshness and triggers a
// refresh when the TTL has lapsed. The price service's single-flight makes
// overlap with manually triggered refreshes harmless.
type PriceRefreshJob struct {
	interval time.Duration
	priceSvc *price.Service
}

func NewPriceRefreshJob(interval time.Duration, priceSvc *price.Service) *PriceRefreshJob {
	return &PriceRefreshJob{
		interval: interval,
		priceSvc: priceSvc,
	}
}

func (j *PriceRefreshJob) Start(ctx context.Context) {
	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			j.run(ctx)
		}
	}
}

func (j *PriceRefreshJob) run(ctx context.Context) {
	if !j.priceSvc.Stale() {
		return
	}
	if err := j.priceSvc.Refresh(ctx); err != nil {
		log.Printf("price refresh job: %v", err)
	}
}

package reconciliation

import (
	"fmt"
	"time"

	"github.com/royaltyops/royaltyops/internal/shared"
)

// ValidateProcess checks that a batch may be processed into target as of now.
func ValidateProcess(batch Batch, progress Progress, target shared.Quarter, now time.Time) error {
	if !progress.CanProcess {
		detail := fmt.Errorf("%w: %s allocated", ErrNotReady, progress.Percent+"%")
		if batch.Status == BatchProcessed {
			detail = fmt.Errorf("%w: already processed", ErrNotReady)
		}
		return &ProcessError{Kind: KindNotReady, BatchID: batch.ID, Err: detail}
	}
	current := shared.QuarterOf(now)
	if !target.Valid() {
		return &ProcessError{Kind: KindInvalidPeriod, BatchID: batch.ID, Err: fmt.Errorf("%w: %w", ErrInvalidPeriod, shared.ErrInvalidQuarter)}
	}
	if target.Before(current) {
		return &ProcessError{Kind: KindInvalidPeriod, BatchID: batch.ID, Err: fmt.Errorf("%w: %s is before %s", ErrInvalidPeriod, target.Label(), current.Label())}
	}
	return nil
}

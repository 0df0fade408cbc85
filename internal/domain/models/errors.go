package models

import (
	"fmt"
	"time"
)

// NoDataError reports that zero trades were collected for a volume
// profile. A profile without a price range is undefined, so this is the
// one analyzer where an empty input window is a hard failure; the other
// analyzers return documented neutral/zero defaults instead.
type NoDataError struct {
	Symbol      string
	PeriodStart time.Time
	PeriodEnd   time.Time
}

func (e *NoDataError) Error() string {
	return fmt.Sprintf("no trades collected for %s in [%s, %s]",
		e.Symbol, e.PeriodStart.Format(time.RFC3339), e.PeriodEnd.Format(time.RFC3339))
}

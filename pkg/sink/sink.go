// Package sink performs the replace-all load of canonical records into the
// downstream store. The contract is store-agnostic; only the adapters know
// whether the store is a postgres table or a spreadsheet.
package sink

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/courtside-labs/crm-sync/pkg/common/models"
)

const batchIDLayout = "20060102_150405"

// Sink replaces the entire contents of the downstream store with records,
// stamped with a freshly generated batch id, and returns that id.
//
// The delete-then-insert cycle is not transactional in the general
// contract: a crash between the two steps leaves the store empty. Retrying
// the load converges to a correct end state, but readers polling mid-retry
// can observe the transient empty store.
type Sink interface {
	Name() string
	Load(ctx context.Context, records []models.CanonicalCustomerRecord) (string, error)
}

type SinkWriteError struct {
	Sink string
	Op   string
	Err  error
}

func (e SinkWriteError) Error() string {
	return fmt.Sprintf("sink %s: %s: %v", e.Sink, e.Op, e.Err)
}

func (e SinkWriteError) Unwrap() error {
	return e.Err
}

func IsSinkWriteError(err error) bool {
	var se SinkWriteError
	return errors.As(err, &se)
}

// NewBatchID derives a batch identifier from the current wall clock in the
// store's fixed time zone, second precision.
func NewBatchID(loc *time.Location) string {
	if loc == nil {
		loc = time.UTC
	}
	return time.Now().In(loc).Format(batchIDLayout)
}

func stampBatch(records []models.CanonicalCustomerRecord, batchID string) {
	for i := range records {
		records[i].BatchID = batchID
	}
}

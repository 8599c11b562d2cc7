package mutation

import (
	"context"

	"github.com/nater540/yggdrasil/record"
)

// persist commits every changed or destroyed record inside one transaction.
// Records touched by several changes are persisted once, in the order they
// were first referenced. Any failure aborts the whole transaction, so no
// partial graph is ever written.
//
// It returns the non-destroyed records that were touched.
func persist(ctx context.Context, store record.Store, changes []Change) ([]record.Record, error) {
	records := uniqueRecords(changes)
	if len(records) == 0 {
		return nil, nil
	}

	survivors := make([]record.Record, 0, len(records))
	err := store.Transaction(ctx, func(tx record.Tx) error {
		for _, rec := range records {
			if rec.MarkedForDestroy() {
				if err := tx.Delete(ctx, rec); err != nil {
					return err
				}
				continue
			}
			if err := tx.Save(ctx, rec); err != nil {
				return err
			}
			survivors = append(survivors, rec)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return survivors, nil
}

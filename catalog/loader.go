package catalog

import (
	"context"
	"sync"

	"github.com/graph-gophers/dataloader/v7"

	"github.com/meridian/stockledger/ledger"
)

// =============================================================================
// BATCH RESOLVER - Request-scoped two-phase reason resolution
// =============================================================================

// BatchResolver collapses many point lookups into one catalog call. Callers
// first Register every reason id they will need, then call Resolve once to
// fetch them all together.
//
// A resolver is scoped to a single request and must never be shared across
// requests.
type BatchResolver struct {
	loader *dataloader.Loader[ledger.ReasonID, *ledger.Reason]

	mu     sync.Mutex
	wanted map[ledger.ReasonID]dataloader.Thunk[*ledger.Reason]
}

func NewBatchResolver(catalog ledger.ReasonCatalog) *BatchResolver {
	var batchFn dataloader.BatchFunc[ledger.ReasonID, *ledger.Reason] = func(
		ctx context.Context, ids []ledger.ReasonID,
	) []*dataloader.Result[*ledger.Reason] {
		found, err := catalog.Reasons(ctx, ids)
		results := make([]*dataloader.Result[*ledger.Reason], len(ids))
		for i, id := range ids {
			if err != nil {
				results[i] = &dataloader.Result[*ledger.Reason]{Error: err}
				continue
			}
			// Unknown ids resolve to nil, mirroring Reasons' absence semantics.
			results[i] = &dataloader.Result[*ledger.Reason]{Data: found[id]}
		}
		return results
	}

	return &BatchResolver{
		loader: dataloader.NewBatchedLoader(batchFn),
		wanted: make(map[ledger.ReasonID]dataloader.Thunk[*ledger.Reason]),
	}
}

// Register records interest in a reason id. Cheap; duplicates are collapsed.
func (r *BatchResolver) Register(ctx context.Context, id ledger.ReasonID) {
	if id == "" {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.wanted[id]; !ok {
		r.wanted[id] = r.loader.Load(ctx, id)
	}
}

// Resolve fetches every registered id in one batched call and returns the
// found reasons. Unknown ids are absent from the result.
func (r *BatchResolver) Resolve(ctx context.Context) (map[ledger.ReasonID]*ledger.Reason, error) {
	r.mu.Lock()
	thunks := r.wanted
	r.wanted = make(map[ledger.ReasonID]dataloader.Thunk[*ledger.Reason])
	r.mu.Unlock()

	out := make(map[ledger.ReasonID]*ledger.Reason, len(thunks))
	for id, thunk := range thunks {
		reason, err := thunk()
		if err != nil {
			return nil, err
		}
		if reason != nil {
			out[id] = reason
		}
	}
	return out, nil
}

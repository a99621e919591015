package app

import (
	"context"
	"fmt"
	"sort"

	"coinwatch/internal/domain"
	"coinwatch/internal/ports"
)

// Reconciler diffs freshly normalized snapshots against persisted state and
// applies the minimal write-set. Orders are compared by key only: an id
// present in both the fresh fetch and the store is left untouched, new ids
// are inserted, vanished ids are deleted, all inside one transaction per
// exchange. Prices are replaced wholesale (last fetch wins) and filled
// orders are appended to the history ledger with insert-if-absent.
type Reconciler struct {
	store  ports.Store
	logger ports.Logger
}

// NewReconciler creates a reconciler over the given store.
func NewReconciler(store ports.Store, logger ports.Logger) (*Reconciler, error) {
	if store == nil || logger == nil {
		return nil, fmt.Errorf("missing required dependencies for Reconciler")
	}
	return &Reconciler{store: store, logger: logger}, nil
}

// Apply persists one exchange's snapshot. A storage failure rolls back that
// exchange's transaction and leaves previously stored rows intact; the
// caller retries on the next tick.
func (r *Reconciler) Apply(ctx context.Context, snap *domain.AccountSnapshot) error {
	if err := r.reconcileOrders(ctx, snap); err != nil {
		return err
	}

	// Price rows have no "still open" semantics; an empty payload is
	// treated as a failed fetch for prices and skipped rather than
	// wiping the mirror.
	if len(snap.Prices) > 0 {
		if err := r.store.ReplacePrices(ctx, snap.Exchange, snap.Prices); err != nil {
			return fmt.Errorf("reconcile prices for %s: %w", snap.Exchange, err)
		}
	}

	records := make([]domain.HistoryRecord, 0, len(snap.History))
	for _, o := range snap.History {
		if !o.IsFilled() {
			continue
		}
		records = append(records, domain.HistoryFromOrder(o))
	}
	inserted, err := r.store.InsertHistory(ctx, records)
	if err != nil {
		return fmt.Errorf("reconcile history for %s: %w", snap.Exchange, err)
	}
	if inserted > 0 {
		r.logger.Info(ctx, "New filled orders recorded", map[string]interface{}{
			"exchange": snap.Exchange, "count": inserted,
		})
	}
	return nil
}

func (r *Reconciler) reconcileOrders(ctx context.Context, snap *domain.AccountSnapshot) error {
	stored, err := r.store.OrderIDs(ctx, snap.Exchange)
	if err != nil {
		return fmt.Errorf("reconcile orders for %s: %w", snap.Exchange, err)
	}

	toAdd := make([]domain.Order, 0)
	for id, o := range snap.Orders {
		if _, ok := stored[id]; !ok {
			toAdd = append(toAdd, o)
		}
	}
	sort.Slice(toAdd, func(i, j int) bool { return toAdd[i].ID < toAdd[j].ID })

	toRemove := make([]string, 0)
	for id := range stored {
		if _, ok := snap.Orders[id]; !ok {
			toRemove = append(toRemove, id)
		}
	}
	sort.Strings(toRemove)

	if len(toAdd) == 0 && len(toRemove) == 0 {
		return nil
	}
	if err := r.store.ApplyOrderDiff(ctx, snap.Exchange, toAdd, toRemove); err != nil {
		return fmt.Errorf("reconcile orders for %s: %w", snap.Exchange, err)
	}
	return nil
}

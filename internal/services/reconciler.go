package services

import (
	"context"
	"errors"
	"fmt"

	"sales-engine/internal/domain"
	"sales-engine/pkg/logger"
)

// StockReconciler copies live Redis stock into the persisted store rows.
// It repairs rows left stale when a sale committed but its store update
// failed, or when stock was sold through another instance.
type StockReconciler struct {
	inventory domain.Inventory
	stores    domain.StoreCatalog
	log       logger.Logger
}

func NewStockReconciler(inventory domain.Inventory, stores domain.StoreCatalog, log logger.Logger) *StockReconciler {
	return &StockReconciler{
		inventory: inventory,
		stores:    stores,
		log:       log,
	}
}

// Reconcile returns the number of products whose persisted quantity was
// corrected. A store that fails is logged and skipped.
func (r *StockReconciler) Reconcile(ctx context.Context) (int, error) {
	ids, err := r.stores.StoreIDs(ctx)
	if err != nil {
		return 0, fmt.Errorf("list stores: %w", err)
	}

	corrected := 0
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return corrected, err
		}

		n, err := r.reconcileStore(ctx, id)
		if err != nil {
			r.log.Error("Failed to reconcile store", "store_id", id, "error", err)
			continue
		}
		corrected += n
	}
	return corrected, nil
}

func (r *StockReconciler) reconcileStore(ctx context.Context, storeID string) (int, error) {
	persisted, err := r.stores.GetStore(ctx, storeID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return 0, nil
		}
		return 0, err
	}

	var stale []domain.Product
	for _, p := range persisted.Products {
		live, err := r.inventory.GetProduct(ctx, storeID, p.ID)
		if errors.Is(err, domain.ErrNotFound) {
			r.log.Debug("Product has no live stock", "store_id", storeID, "product_id", p.ID)
			continue
		}
		if err != nil {
			return 0, fmt.Errorf("load product %s: %w", p.ID, err)
		}
		if live.Quantity != p.Quantity {
			r.log.Info("Correcting persisted stock", "store_id", storeID, "product_id", p.ID,
				"persisted", p.Quantity, "live", live.Quantity)
			stale = append(stale, *live)
		}
	}

	if len(stale) == 0 {
		return 0, nil
	}
	if err := r.stores.UpdateStore(ctx, &domain.Store{ID: storeID, Products: stale}); err != nil {
		return 0, err
	}
	return len(stale), nil
}

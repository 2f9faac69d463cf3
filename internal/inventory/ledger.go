package inventory

import (
	"context"
	"fmt"
	"sort"
)

// TxRepository exposes the product row operations available inside a transaction.
// GetProductForUpdate must take a row lock held until the transaction ends.
type TxRepository interface {
	GetProductForUpdate(ctx context.Context, id int64) (Product, error)
	UpdateProductStock(ctx context.Context, id int64, stock int) error
	InsertMovement(ctx context.Context, movement StockMovement) (StockMovement, error)
}

// RecordMovement is the only path that changes product stock. It re-reads the locked product
// row, applies the signed quantity and appends the kardex entry with both snapshots.
func RecordMovement(ctx context.Context, tx TxRepository, input MovementInput) (StockMovement, error) {
	if input.Quantity == 0 {
		return StockMovement{}, ErrInvalidQuantity
	}
	if !input.Type.Valid() {
		return StockMovement{}, ErrInvalidMovementType
	}
	product, err := tx.GetProductForUpdate(ctx, input.ProductID)
	if err != nil {
		return StockMovement{}, err
	}
	previous := product.Stock
	next := previous + input.Quantity
	if next < 0 {
		return StockMovement{}, ErrNegativeStock
	}
	if err := tx.UpdateProductStock(ctx, product.ID, next); err != nil {
		return StockMovement{}, fmt.Errorf("inventory: update stock: %w", err)
	}
	movement, err := tx.InsertMovement(ctx, StockMovement{
		ProductID:     product.ID,
		Type:          input.Type,
		Quantity:      input.Quantity,
		PreviousStock: previous,
		NewStock:      next,
		ReferenceID:   input.ReferenceID,
		Notes:         input.Notes,
		CreatedBy:     input.ActorID,
	})
	if err != nil {
		return StockMovement{}, fmt.Errorf("inventory: insert movement: %w", err)
	}
	return movement, nil
}

// LockProducts locks every distinct product in ascending id order and returns the rows.
// Multi-product operations call it first so concurrent carts acquire locks in the same order.
func LockProducts(ctx context.Context, tx TxRepository, ids []int64) (map[int64]Product, error) {
	unique := make([]int64, 0, len(ids))
	seen := make(map[int64]struct{}, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		unique = append(unique, id)
	}
	sort.Slice(unique, func(i, j int) bool { return unique[i] < unique[j] })
	products := make(map[int64]Product, len(unique))
	for _, id := range unique {
		product, err := tx.GetProductForUpdate(ctx, id)
		if err != nil {
			return nil, err
		}
		products[id] = product
	}
	return products, nil
}

// Replay folds movements (in creation order) from an empty stock and reports inconsistencies.
func Replay(productID int64, stock int, movements []StockMovement) KardexReport {
	report := KardexReport{ProductID: productID, Stock: stock, Entries: len(movements)}
	running := 0
	for _, m := range movements {
		if !m.Consistent() {
			report.BrokenEntryIDs = append(report.BrokenEntryIDs, m.ID)
		}
		if m.PreviousStock != running {
			report.DiscontinuityIDs = append(report.DiscontinuityIDs, m.ID)
		}
		running += m.Quantity
	}
	report.Replayed = running
	report.Consistent = running == stock && len(report.BrokenEntryIDs) == 0 && len(report.DiscontinuityIDs) == 0
	return report
}

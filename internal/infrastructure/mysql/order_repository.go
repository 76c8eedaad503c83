package mysql

import (
	"context"
	"database/sql"
	"fmt"

	"sales-engine/internal/domain"
)

type MySQLOrderRepository struct {
	db *sql.DB
}

func NewMySQLOrderRepository(db *sql.DB) *MySQLOrderRepository {
	return &MySQLOrderRepository{db: db}
}

func (r *MySQLOrderRepository) SaveOrder(ctx context.Context, order *domain.OrderRecord) (*domain.OrderRecord, error) {
	query := `
        INSERT INTO orders (id, store_id, product_id, buyer_id, quantity, amount,
                            sale_kind, sale_id, payment_ref, shipping_ref, created_at)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
    `
	_, err := r.db.ExecContext(ctx, query,
		order.ID, order.StoreID, order.ProductID, order.BuyerID, order.Quantity, order.Amount,
		string(order.SaleKind), order.SaleID, order.PaymentRef, order.ShippingRef, order.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("insert order %s: %w", order.ID, err)
	}

	saved := *order
	return &saved, nil
}

func (r *MySQLOrderRepository) OrdersByBuyer(ctx context.Context, buyerID string) ([]*domain.OrderRecord, error) {
	query := `
        SELECT id, store_id, product_id, buyer_id, quantity, amount,
               sale_kind, sale_id, payment_ref, shipping_ref, created_at
        FROM orders WHERE buyer_id = ?
        ORDER BY created_at ASC
    `

	rows, err := r.db.QueryContext(ctx, query, buyerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var orders []*domain.OrderRecord
	for rows.Next() {
		var order domain.OrderRecord
		var saleKind string

		err := rows.Scan(&order.ID, &order.StoreID, &order.ProductID, &order.BuyerID, &order.Quantity,
			&order.Amount, &saleKind, &order.SaleID, &order.PaymentRef, &order.ShippingRef, &order.CreatedAt)
		if err != nil {
			return nil, err
		}

		order.SaleKind = domain.SaleKind(saleKind)
		orders = append(orders, &order)
	}

	return orders, rows.Err()
}

package mysql

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/go-sql-driver/mysql"

	"sales-engine/internal/domain"
)

type MySQLStoreRepository struct {
	db  *sql.DB
	now func() time.Time
}

func NewMySQLStoreRepository(db *sql.DB) *MySQLStoreRepository {
	return &MySQLStoreRepository{db: db, now: time.Now}
}

// UpdateStore upserts the store row and every product it carries in one
// transaction.
func (r *MySQLStoreRepository) UpdateStore(ctx context.Context, store *domain.Store) (err error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if _, err = tx.ExecContext(ctx, `INSERT IGNORE INTO stores (id) VALUES (?)`, store.ID); err != nil {
		return fmt.Errorf("upsert store %s: %w", store.ID, err)
	}

	query := `
        INSERT INTO products (store_id, id, name, quantity, reserved, updated_at)
        VALUES (?, ?, ?, ?, ?, ?)
        ON DUPLICATE KEY UPDATE
            name = VALUES(name),
            quantity = VALUES(quantity),
            reserved = VALUES(reserved),
            updated_at = VALUES(updated_at)
    `
	updatedAt := r.now()
	for _, p := range store.Products {
		if _, err = tx.ExecContext(ctx, query, store.ID, p.ID, p.Name, p.Quantity, p.Reserved, updatedAt); err != nil {
			return fmt.Errorf("upsert product %s: %w", p.ID, err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func (r *MySQLStoreRepository) GetStore(ctx context.Context, storeID string) (*domain.Store, error) {
	query := `
        SELECT id, name, quantity, reserved
        FROM products WHERE store_id = ?
        ORDER BY id
    `

	rows, err := r.db.QueryContext(ctx, query, storeID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	store := &domain.Store{ID: storeID}
	for rows.Next() {
		p := domain.Product{StoreID: storeID}
		if err := rows.Scan(&p.ID, &p.Name, &p.Quantity, &p.Reserved); err != nil {
			return nil, err
		}
		store.Products = append(store.Products, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(store.Products) == 0 {
		return nil, domain.NewNotFoundError(fmt.Sprintf("store %s not found", storeID))
	}

	return store, nil
}

func (r *MySQLStoreRepository) StoreIDs(ctx context.Context) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT id FROM stores ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list stores: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

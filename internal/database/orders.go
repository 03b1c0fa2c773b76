// Package database persists swap orders in Postgres. The in-memory engine
// owns live swap state; rows here are the durable order intake record.
package database

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/interstellar-swap/relayer/internal/types"
)

// OrderRepository handles database operations for swap orders
type OrderRepository struct {
	db *sql.DB
}

// NewOrderRepository creates a new order repository
func NewOrderRepository(db *sql.DB) *OrderRepository {
	return &OrderRepository{db: db}
}

const orderColumns = `id, order_hash, hashlock, state, maker, maker_stellar_address,
	receiver, maker_asset, taker_asset, making_amount, taking_amount,
	safety_deposit, timelocks_packed, original_order, signature, extension,
	created_at, updated_at, error_message`

// CreateOrder creates a new swap order in the database
func (r *OrderRepository) CreateOrder(order *types.SwapOrder) error {
	query := `
		INSERT INTO swap_orders (
			order_hash, hashlock, state, maker, maker_stellar_address,
			receiver, maker_asset, taker_asset, making_amount, taking_amount,
			safety_deposit, timelocks_packed, original_order, signature,
			extension, created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17
		) RETURNING id`

	err := r.db.QueryRow(
		query,
		order.OrderHash,
		order.Hashlock,
		order.State,
		order.Maker,
		order.MakerStellarAddress,
		order.Receiver,
		order.MakerAsset,
		order.TakerAsset,
		order.MakingAmount.String(),
		order.TakingAmount.String(),
		order.SafetyDeposit.String(),
		order.TimelocksPacked,
		string(order.OriginalOrder),
		order.Signature,
		order.Extension,
		order.CreatedAt,
		order.UpdatedAt,
	).Scan(&order.ID)

	if err != nil {
		return fmt.Errorf("failed to create order: %w", err)
	}

	return nil
}

// GetOrderByHash retrieves an order by its order hash
func (r *OrderRepository) GetOrderByHash(orderHash string) (*types.SwapOrder, error) {
	query := `SELECT ` + orderColumns + ` FROM swap_orders WHERE order_hash = $1`
	return r.scanOrder(r.db.QueryRow(query, orderHash))
}

// GetOrderByHashlock retrieves an order by its hashlock, the cross-chain
// correlation key.
func (r *OrderRepository) GetOrderByHashlock(hashlock string) (*types.SwapOrder, error) {
	query := `SELECT ` + orderColumns + ` FROM swap_orders WHERE hashlock = $1`
	return r.scanOrder(r.db.QueryRow(query, hashlock))
}

// UpdateOrderState updates the state of an order
func (r *OrderRepository) UpdateOrderState(id int64, state types.SwapState) error {
	query := `UPDATE swap_orders SET state = $1, updated_at = $2 WHERE id = $3`

	_, err := r.db.Exec(query, state, time.Now(), id)
	if err != nil {
		return fmt.Errorf("failed to update order state: %w", err)
	}

	return nil
}

// UpdateOrderStateByHashlock updates the state of the order matching a
// hashlock. A miss is not an error: the chain can show escrows the API
// never accepted.
func (r *OrderRepository) UpdateOrderStateByHashlock(hashlock string, state types.SwapState) error {
	query := `UPDATE swap_orders SET state = $1, updated_at = $2 WHERE hashlock = $3`

	_, err := r.db.Exec(query, state, time.Now(), hashlock)
	if err != nil {
		return fmt.Errorf("failed to update order state: %w", err)
	}

	return nil
}

// GetActiveOrders returns all orders not yet in a terminal state
func (r *OrderRepository) GetActiveOrders() ([]*types.SwapOrder, error) {
	query := `SELECT ` + orderColumns + ` FROM swap_orders
		WHERE state NOT IN ('COMPLETED', 'CANCELLED')
		ORDER BY created_at DESC`

	rows, err := r.db.Query(query)
	if err != nil {
		return nil, fmt.Errorf("failed to query active orders: %w", err)
	}
	defer rows.Close()

	var orders []*types.SwapOrder
	for rows.Next() {
		order, err := r.scanOrder(rows)
		if err != nil {
			return nil, err
		}
		orders = append(orders, order)
	}

	return orders, rows.Err()
}

// GetOrdersByMaker returns orders for a specific maker
func (r *OrderRepository) GetOrdersByMaker(maker string) ([]*types.SwapOrder, error) {
	query := `SELECT ` + orderColumns + ` FROM swap_orders
		WHERE maker = $1
		ORDER BY created_at DESC`

	rows, err := r.db.Query(query, maker)
	if err != nil {
		return nil, fmt.Errorf("failed to query orders by maker: %w", err)
	}
	defer rows.Close()

	var orders []*types.SwapOrder
	for rows.Next() {
		order, err := r.scanOrder(rows)
		if err != nil {
			return nil, err
		}
		orders = append(orders, order)
	}

	return orders, rows.Err()
}

// SetOrderError sets an error message for an order
func (r *OrderRepository) SetOrderError(id int64, errorMsg string) error {
	query := `UPDATE swap_orders SET error_message = $1, updated_at = $2 WHERE id = $3`

	_, err := r.db.Exec(query, errorMsg, time.Now(), id)
	if err != nil {
		return fmt.Errorf("failed to set order error: %w", err)
	}

	return nil
}

// scanOrder scans a database row into a SwapOrder struct
func (r *OrderRepository) scanOrder(scanner interface {
	Scan(dest ...interface{}) error
}) (*types.SwapOrder, error) {
	order := &types.SwapOrder{}
	var makingAmountStr, takingAmountStr, safetyDepositStr string
	var originalOrderJSON string
	var errorMessage sql.NullString

	err := scanner.Scan(
		&order.ID,
		&order.OrderHash,
		&order.Hashlock,
		&order.State,
		&order.Maker,
		&order.MakerStellarAddress,
		&order.Receiver,
		&order.MakerAsset,
		&order.TakerAsset,
		&makingAmountStr,
		&takingAmountStr,
		&safetyDepositStr,
		&order.TimelocksPacked,
		&originalOrderJSON,
		&order.Signature,
		&order.Extension,
		&order.CreatedAt,
		&order.UpdatedAt,
		&errorMessage,
	)

	if err != nil {
		return nil, fmt.Errorf("failed to scan order: %w", err)
	}

	if order.MakingAmount, err = types.ParseBigInt(makingAmountStr); err != nil {
		return nil, fmt.Errorf("failed to parse making amount: %w", err)
	}

	if order.TakingAmount, err = types.ParseBigInt(takingAmountStr); err != nil {
		return nil, fmt.Errorf("failed to parse taking amount: %w", err)
	}

	if order.SafetyDeposit, err = types.ParseBigInt(safetyDepositStr); err != nil {
		return nil, fmt.Errorf("failed to parse safety deposit: %w", err)
	}

	order.OriginalOrder = []byte(originalOrderJSON)
	order.ErrorMessage = errorMessage.String

	return order, nil
}

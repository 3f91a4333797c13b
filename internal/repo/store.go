// Package repo implements the Postgres store behind the catalog, inventory,
// voucher and order services.
package repo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/noah-isme/proride-store/internal/catalog"
	"github.com/noah-isme/proride-store/internal/gift"
	"github.com/noah-isme/proride-store/internal/order"
	"github.com/noah-isme/proride-store/internal/voucher"
)

const uniqueViolation = "23505"

// ErrUnknownStockCode is returned when decrementing a code with no inventory row.
var ErrUnknownStockCode = errors.New("repo: unknown stock code")

// Store is the pgx-backed implementation of every domain store interface.
type Store struct {
	pool *pgxpool.Pool
}

// New wraps a connection pool.
func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// ListModels implements catalog.Querier.
func (s *Store) ListModels(ctx context.Context) ([]catalog.CarModel, error) {
	rows, err := s.pool.Query(ctx, `SELECT name, make FROM car_models ORDER BY make, name`)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (catalog.CarModel, error) {
		var m catalog.CarModel
		err := row.Scan(&m.Name, &m.Make)
		return m, err
	})
}

// ListProducts implements catalog.Querier. An empty variant lists every
// variant of the model.
func (s *Store) ListProducts(ctx context.Context, model, variant string) ([]catalog.Product, error) {
	rows, err := s.pool.Query(ctx, `
        SELECT code, model, variant, position, quantity_per_set, price_sen
        FROM product_catalog
        WHERE model = $1 AND ($2 = '' OR variant = $2)
        ORDER BY variant, position, code`, model, variant)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, scanProduct)
}

// GetProduct implements catalog.Querier.
func (s *Store) GetProduct(ctx context.Context, code string) (catalog.Product, error) {
	rows, err := s.pool.Query(ctx, `
        SELECT code, model, variant, position, quantity_per_set, price_sen
        FROM product_catalog
        WHERE code = $1`, code)
	if err != nil {
		return catalog.Product{}, err
	}
	p, err := pgx.CollectExactlyOneRow(rows, scanProduct)
	if errors.Is(err, pgx.ErrNoRows) {
		return catalog.Product{}, catalog.ErrProductNotFound
	}
	return p, err
}

// ListImages implements catalog.Querier.
func (s *Store) ListImages(ctx context.Context) ([]catalog.Image, error) {
	rows, err := s.pool.Query(ctx, `SELECT key, url FROM product_images ORDER BY key`)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (catalog.Image, error) {
		var img catalog.Image
		err := row.Scan(&img.Key, &img.URL)
		return img, err
	})
}

func scanProduct(row pgx.CollectableRow) (catalog.Product, error) {
	var p catalog.Product
	err := row.Scan(&p.Code, &p.Model, &p.Variant, &p.Position, &p.QuantityPerSet, &p.Price)
	return p, err
}

// StockLevels implements inventory.Store.
func (s *Store) StockLevels(ctx context.Context) (map[string]int, error) {
	rows, err := s.pool.Query(ctx, `SELECT code, quantity FROM inventory`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make(map[string]int)
	for rows.Next() {
		var (
			code string
			qty  int
		)
		if err := rows.Scan(&code, &qty); err != nil {
			return nil, err
		}
		out[code] = qty
	}
	return out, rows.Err()
}

// DecrementStock removes one unit of code, clamping at zero, and returns the
// remaining quantity.
func (s *Store) DecrementStock(ctx context.Context, code string) (int, error) {
	var remaining int
	err := s.pool.QueryRow(ctx, `
        UPDATE inventory
        SET quantity = GREATEST(quantity - 1, 0), updated_at = now()
        WHERE code = $1
        RETURNING quantity`, code).Scan(&remaining)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, fmt.Errorf("%w: %s", ErrUnknownStockCode, code)
	}
	return remaining, err
}

// SetStock implements inventory.Store.
func (s *Store) SetStock(ctx context.Context, code string, qty int) error {
	_, err := s.pool.Exec(ctx, `
        INSERT INTO inventory (code, quantity) VALUES ($1, $2)
        ON CONFLICT (code) DO UPDATE SET quantity = EXCLUDED.quantity, updated_at = now()`, code, qty)
	return err
}

const voucherColumns = `id::text, code, amount_sen, valid_from, valid_to, active, created_at`

func scanVoucher(row pgx.CollectableRow) (voucher.Voucher, error) {
	var v voucher.Voucher
	err := row.Scan(&v.ID, &v.Code, &v.Amount, &v.ValidFrom, &v.ValidTo, &v.Active, &v.CreatedAt)
	return v, err
}

// GetActiveVoucherByCode implements voucher.Querier.
func (s *Store) GetActiveVoucherByCode(ctx context.Context, code string) (voucher.Voucher, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+voucherColumns+` FROM vouchers WHERE code = $1 AND active`, code)
	if err != nil {
		return voucher.Voucher{}, err
	}
	v, err := pgx.CollectExactlyOneRow(rows, scanVoucher)
	if errors.Is(err, pgx.ErrNoRows) {
		return voucher.Voucher{}, voucher.ErrVoucherNotFound
	}
	return v, err
}

// ListVouchers implements voucher.Querier.
func (s *Store) ListVouchers(ctx context.Context) ([]voucher.Voucher, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+voucherColumns+` FROM vouchers ORDER BY valid_from DESC`)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, scanVoucher)
}

// CreateVoucher implements voucher.Querier.
func (s *Store) CreateVoucher(ctx context.Context, v voucher.Voucher) (voucher.Voucher, error) {
	rows, err := s.pool.Query(ctx, `
        INSERT INTO vouchers (code, amount_sen, valid_from, valid_to, active)
        VALUES ($1, $2, $3, $4, $5)
        RETURNING `+voucherColumns, v.Code, v.Amount, v.ValidFrom, v.ValidTo, v.Active)
	if err != nil {
		return voucher.Voucher{}, err
	}
	created, err := pgx.CollectExactlyOneRow(rows, scanVoucher)
	if isUniqueViolation(err) {
		return voucher.Voucher{}, voucher.ErrDuplicateCode
	}
	return created, err
}

// DeleteVoucher implements voucher.Querier.
func (s *Store) DeleteVoucher(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM vouchers WHERE id::text = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return voucher.ErrVoucherNotFound
	}
	return nil
}

// InsertOrder implements order.Store.
func (s *Store) InsertOrder(ctx context.Context, o order.Order) error {
	items, err := json.Marshal(o.Items)
	if err != nil {
		return err
	}
	gifts, err := json.Marshal(o.Gifts)
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx, `
        INSERT INTO orders (
            id, items, items_summary, subtotal_sen, shipping_sen, discount_sen, total_sen,
            courier_name, service_type, voucher_code, gifts,
            customer_name, customer_email, customer_phone, customer_address, customer_postcode,
            status, created_at
        ) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, NULLIF($10, ''), $11, $12, $13, $14, $15, $16, $17, $18)`,
		o.ID, items, o.ItemsSummary, o.Subtotal, o.Shipping, o.Discount, o.Total,
		o.CourierName, o.ServiceType, o.VoucherCode, gifts,
		o.Customer.Name, o.Customer.Email, o.Customer.Phone, o.Customer.Address, o.Customer.Postcode,
		string(o.Status), o.CreatedAt,
	)
	return err
}

const orderColumns = `
    id::text, items, items_summary, subtotal_sen, shipping_sen, discount_sen, total_sen,
    courier_name, service_type, COALESCE(voucher_code, ''), gifts,
    customer_name, customer_email, customer_phone, customer_address, customer_postcode,
    status, COALESCE(bill_code, ''), created_at, paid_at`

func scanOrder(row pgx.CollectableRow) (order.Order, error) {
	var (
		o            order.Order
		items, gifts []byte
		status       string
		paidAt       *time.Time
	)
	err := row.Scan(
		&o.ID, &items, &o.ItemsSummary, &o.Subtotal, &o.Shipping, &o.Discount, &o.Total,
		&o.CourierName, &o.ServiceType, &o.VoucherCode, &gifts,
		&o.Customer.Name, &o.Customer.Email, &o.Customer.Phone, &o.Customer.Address, &o.Customer.Postcode,
		&status, &o.BillCode, &o.CreatedAt, &paidAt,
	)
	if err != nil {
		return order.Order{}, err
	}
	if err := decodeOrderJSON(items, gifts, &o); err != nil {
		return order.Order{}, err
	}
	o.Status = order.Status(status)
	o.PaidAt = paidAt
	return o, nil
}

func decodeOrderJSON(items, gifts []byte, o *order.Order) error {
	if err := json.Unmarshal(items, &o.Items); err != nil {
		return fmt.Errorf("decode order items: %w", err)
	}
	var grants []gift.Grant
	if len(gifts) > 0 {
		if err := json.Unmarshal(gifts, &grants); err != nil {
			return fmt.Errorf("decode order gifts: %w", err)
		}
	}
	o.Gifts = grants
	return nil
}

// GetOrder implements order.Store.
func (s *Store) GetOrder(ctx context.Context, id string) (order.Order, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+orderColumns+` FROM orders WHERE id::text = $1`, strings.ToLower(id))
	if err != nil {
		return order.Order{}, err
	}
	o, err := pgx.CollectExactlyOneRow(rows, scanOrder)
	if errors.Is(err, pgx.ErrNoRows) {
		return order.Order{}, order.ErrNotFound
	}
	return o, err
}

// ListOrders implements order.Store, newest first.
func (s *Store) ListOrders(ctx context.Context, limit int) ([]order.Order, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+orderColumns+` FROM orders ORDER BY created_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, scanOrder)
}

// MarkPaid implements order.Store. Only pending orders change.
func (s *Store) MarkPaid(ctx context.Context, id, billCode string, at time.Time) (bool, error) {
	tag, err := s.pool.Exec(ctx, `
        UPDATE orders SET status = 'paid', bill_code = $2, paid_at = $3
        WHERE id::text = $1 AND status = 'pending_payment'`, strings.ToLower(id), billCode, at)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// MarkFailed implements order.Store. Only pending orders change.
func (s *Store) MarkFailed(ctx context.Context, id string) (bool, error) {
	tag, err := s.pool.Exec(ctx, `
        UPDATE orders SET status = 'failed'
        WHERE id::text = $1 AND status = 'pending_payment'`, strings.ToLower(id))
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}

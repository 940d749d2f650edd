package stock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

var (
	ErrNotFound = errors.New("not found")

	// ErrInsufficientStock is a business refusal, not an infrastructure
	// failure: the row was locked, the check ran, nothing was mutated.
	ErrInsufficientStock = errors.New("insufficient stock")

	// ErrLockTimeout marks a row lock that could not be acquired within
	// the transaction's lock_timeout. Retryable.
	ErrLockTimeout = errors.New("stock row lock timeout")
)

const defaultLockTimeout = 5 * time.Second

// DBPool matches the methods from *pgxpool.Pool that we use.
// This allows us to mock the database in tests.
type DBPool interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	BeginTx(ctx context.Context, txOptions pgx.TxOptions) (pgx.Tx, error)
}

type Repository interface {
	Get(ctx context.Context, productID string) (Record, error)
	CheckAvailability(ctx context.Context, productID string, quantity int) (bool, error)
	Reserve(ctx context.Context, productID string, quantity int) error
	Release(ctx context.Context, productID string, quantity int) error
	Create(ctx context.Context, productID string, initialAvailable int) error
}

type PostgresRepository struct {
	pool        DBPool
	lockTimeout time.Duration
}

func NewPostgresRepository(pool DBPool) *PostgresRepository {
	return &PostgresRepository{pool: pool, lockTimeout: defaultLockTimeout}
}

func (r *PostgresRepository) Get(ctx context.Context, productID string) (Record, error) {
	var rec Record
	row := r.pool.QueryRow(ctx, `
		SELECT product_id, available_stock, reserved_stock, updated_at
		FROM products_stock
		WHERE product_id=$1
	`, productID)
	if err := row.Scan(&rec.ProductID, &rec.Available, &rec.Reserved, &rec.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Record{}, ErrNotFound
		}
		return Record{}, err
	}
	return rec, nil
}

// CheckAvailability reads without locking. The answer is advisory: a
// concurrent order can invalidate it before Reserve runs, so Reserve
// re-checks under the row lock.
func (r *PostgresRepository) CheckAvailability(ctx context.Context, productID string, quantity int) (bool, error) {
	var available int
	err := r.pool.QueryRow(ctx, `
		SELECT available_stock FROM products_stock WHERE product_id=$1
	`, productID).Scan(&available)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("check availability for %s: %w", productID, err)
	}
	return available >= quantity, nil
}

// Reserve moves quantity from available to reserved for one product,
// or refuses with ErrInsufficientStock / ErrNotFound. The check and the
// update run under SELECT ... FOR UPDATE in one transaction, so rows of
// different products never serialize against each other.
func (r *PostgresRepository) Reserve(ctx context.Context, productID string, quantity int) error {
	if quantity <= 0 {
		return fmt.Errorf("reserve quantity must be positive, got %d", quantity)
	}

	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("begin reserve tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := setLockTimeout(ctx, tx, r.lockTimeout); err != nil {
		return err
	}

	var available int
	err = tx.QueryRow(ctx, `
		SELECT available_stock
		FROM products_stock
		WHERE product_id=$1
		FOR UPDATE
	`, productID).Scan(&available)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrNotFound
		}
		return fmt.Errorf("lock stock row for %s: %w", productID, mapLockError(err))
	}

	if available < quantity {
		return ErrInsufficientStock
	}

	_, err = tx.Exec(ctx, `
		UPDATE products_stock
		SET available_stock = available_stock - $2,
		    reserved_stock  = reserved_stock + $2,
		    updated_at = now()
		WHERE product_id=$1
	`, productID, quantity)
	if err != nil {
		return fmt.Errorf("apply reservation for %s: %w", productID, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit reservation for %s: %w", productID, err)
	}
	return nil
}

// Release is the atomic inverse of Reserve. It exists for saga
// compensation only and refuses to release more than is reserved.
func (r *PostgresRepository) Release(ctx context.Context, productID string, quantity int) error {
	if quantity <= 0 {
		return fmt.Errorf("release quantity must be positive, got %d", quantity)
	}

	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("begin release tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := setLockTimeout(ctx, tx, r.lockTimeout); err != nil {
		return err
	}

	var reserved int
	err = tx.QueryRow(ctx, `
		SELECT reserved_stock
		FROM products_stock
		WHERE product_id=$1
		FOR UPDATE
	`, productID).Scan(&reserved)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrNotFound
		}
		return fmt.Errorf("lock stock row for %s: %w", productID, mapLockError(err))
	}

	if reserved < quantity {
		return fmt.Errorf("release of %d exceeds reserved %d for product %s", quantity, reserved, productID)
	}

	_, err = tx.Exec(ctx, `
		UPDATE products_stock
		SET available_stock = available_stock + $2,
		    reserved_stock  = reserved_stock - $2,
		    updated_at = now()
		WHERE product_id=$1
	`, productID, quantity)
	if err != nil {
		return fmt.Errorf("apply release for %s: %w", productID, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit release for %s: %w", productID, err)
	}
	return nil
}

// Create seeds a product row if absent. Existing rows are left alone;
// the saga never calls this.
func (r *PostgresRepository) Create(ctx context.Context, productID string, initialAvailable int) error {
	if initialAvailable < 0 {
		return fmt.Errorf("initial stock must not be negative, got %d", initialAvailable)
	}
	_, err := r.pool.Exec(ctx, `
		INSERT INTO products_stock(product_id, available_stock, reserved_stock, updated_at)
		VALUES($1, $2, 0, now())
		ON CONFLICT (product_id) DO NOTHING
	`, productID, initialAvailable)
	if err != nil {
		return fmt.Errorf("create stock for %s: %w", productID, err)
	}
	return nil
}

func setLockTimeout(ctx context.Context, tx pgx.Tx, d time.Duration) error {
	// lock_timeout cannot be bound as a parameter; the value is our own.
	_, err := tx.Exec(ctx, fmt.Sprintf("SET LOCAL lock_timeout = '%dms'", d.Milliseconds()))
	if err != nil {
		return fmt.Errorf("set lock timeout: %w", err)
	}
	return nil
}

// mapLockError converts Postgres lock_not_available (55P03, raised when
// lock_timeout expires) into ErrLockTimeout so callers can treat it as
// retryable.
func mapLockError(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "55P03" {
		return fmt.Errorf("%w: %v", ErrLockTimeout, err)
	}
	return err
}

// Package repository содержит реализацию доступа к данным в PostgreSQL.
package repository

import (
	"context"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"

	"github.com/mmeshcher/khaman-storefront/internal/model"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// ErrUserExists возвращается при попытке создать пользователя с уже занятым email.
var (
	ErrUserExists = errors.New("user already exists")
	// ErrUserNotFound возвращается, если пользователь не найден.
	ErrUserNotFound = errors.New("user not found")
	// ErrProfileNotFound возвращается, если профиль лояльности отсутствует.
	ErrProfileNotFound = errors.New("profile not found")
	// ErrMenuItemNotFound возвращается по неизвестному идентификатору позиции меню.
	ErrMenuItemNotFound = errors.New("menu item not found")
	// ErrOrderNotFound возвращается по неизвестному идентификатору заказа.
	ErrOrderNotFound = errors.New("order not found")
)

// PostgresRepository предоставляет доступ к хранилищу данных в PostgreSQL.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRepository создаёт новый репозиторий и инициализирует схему БД через миграции.
func NewPostgresRepository(dsn string) (*PostgresRepository, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse pool config: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	r := &PostgresRepository{pool: pool}

	if err := r.runMigrations(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	return r, nil
}

func (r *PostgresRepository) runMigrations(ctx context.Context) error {
	db := stdlib.OpenDBFromPool(r.pool)
	defer db.Close()

	goose.SetBaseFS(migrationsFS)

	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("set dialect: %w", err)
	}

	if err := goose.UpContext(ctx, db, "migrations"); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}

	return nil
}

// Close закрывает пул соединений с БД.
func (r *PostgresRepository) Close() error {
	r.pool.Close()
	return nil
}

// CreateUser создаёт новую учётную запись.
func (r *PostgresRepository) CreateUser(ctx context.Context, email string, passwordHash []byte) (int64, error) {
	var id int64
	err := r.pool.QueryRow(ctx,
		`INSERT INTO users (email, password_hash) VALUES ($1, $2) RETURNING id`,
		email, passwordHash,
	).Scan(&id)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
			return 0, fmt.Errorf("%w: %s", ErrUserExists, email)
		}
		return 0, fmt.Errorf("create user: %w", err)
	}
	return id, nil
}

// GetUserByEmail возвращает учётную запись по email.
func (r *PostgresRepository) GetUserByEmail(ctx context.Context, email string) (*model.User, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT id, email, password_hash, created_at FROM users WHERE email = $1`,
		email,
	)

	var u model.User
	err := row.Scan(&u.ID, &u.Email, &u.PasswordHash, &u.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("get user: %w", err)
	}

	return &u, nil
}

// GetUserByID возвращает учётную запись по идентификатору.
func (r *PostgresRepository) GetUserByID(ctx context.Context, userID int64) (*model.User, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT id, email, password_hash, created_at FROM users WHERE id = $1`,
		userID,
	)

	var u model.User
	err := row.Scan(&u.ID, &u.Email, &u.PasswordHash, &u.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("get user: %w", err)
	}

	return &u, nil
}

// CreateProfile создаёт профиль лояльности. Повторный вызов для того же
// пользователя не изменяет существующий профиль.
func (r *PostgresRepository) CreateProfile(ctx context.Context, userID int64, displayName, email string) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO profiles (user_id, display_name, email) VALUES ($1, $2, $3)
		 ON CONFLICT (user_id) DO NOTHING`,
		userID, displayName, email,
	)
	if err != nil {
		return fmt.Errorf("create profile: %w", err)
	}
	return nil
}

// GetProfile возвращает профиль лояльности пользователя.
func (r *PostgresRepository) GetProfile(ctx context.Context, userID int64) (*model.UserProfile, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT user_id, display_name, email, reward_points, created_at
		 FROM profiles WHERE user_id = $1`,
		userID,
	)

	var p model.UserProfile
	err := row.Scan(&p.UserID, &p.DisplayName, &p.Email, &p.RewardPoints, &p.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrProfileNotFound
		}
		return nil, fmt.Errorf("get profile: %w", err)
	}

	return &p, nil
}

// IncrementPoints изменяет баланс баллов пользователя на delta. Значение delta
// может быть отрицательным; проверка достаточности баллов при списании
// выполняется до вызова, возврат при удалении награды не ограничивается.
func (r *PostgresRepository) IncrementPoints(ctx context.Context, userID int64, delta int64) error {
	cmdTag, err := r.pool.Exec(ctx,
		`UPDATE profiles SET reward_points = reward_points + $2 WHERE user_id = $1`,
		userID, delta,
	)
	if err != nil {
		return fmt.Errorf("increment points: %w", err)
	}
	if cmdTag.RowsAffected() == 0 {
		return ErrProfileNotFound
	}
	return nil
}

// ListMenuItems возвращает позиции меню, упорядоченные по идентификатору.
func (r *PostgresRepository) ListMenuItems(ctx context.Context) ([]model.MenuItem, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, name, price, image FROM menu_items ORDER BY id`,
	)
	if err != nil {
		return nil, fmt.Errorf("select menu items: %w", err)
	}
	defer rows.Close()

	var items []model.MenuItem
	for rows.Next() {
		var it model.MenuItem
		if err := rows.Scan(&it.ID, &it.Name, &it.PriceCents, &it.Image); err != nil {
			return nil, fmt.Errorf("scan menu item: %w", err)
		}
		items = append(items, it)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return items, nil
}

// GetMenuItem возвращает позицию меню по идентификатору.
func (r *PostgresRepository) GetMenuItem(ctx context.Context, id int64) (*model.MenuItem, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT id, name, price, image FROM menu_items WHERE id = $1`,
		id,
	)

	var it model.MenuItem
	err := row.Scan(&it.ID, &it.Name, &it.PriceCents, &it.Image)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrMenuItemNotFound
		}
		return nil, fmt.Errorf("get menu item: %w", err)
	}

	return &it, nil
}

// CreateOrder сохраняет заказ со снимком строк корзины и возвращает его идентификатор.
// userID равен nil для гостевого заказа.
func (r *PostgresRepository) CreateOrder(ctx context.Context, userID *int64, items []model.CartLine, totalCents, pointsEarned int64, status model.OrderStatus) (int64, error) {
	snapshot, err := json.Marshal(items)
	if err != nil {
		return 0, fmt.Errorf("marshal order items: %w", err)
	}

	var id int64
	err = r.pool.QueryRow(ctx,
		`INSERT INTO orders (user_id, items, total, points_earned, status)
		 VALUES ($1, $2, $3, $4, $5) RETURNING id`,
		userID, snapshot, totalCents, pointsEarned, string(status),
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("insert order: %w", err)
	}

	return id, nil
}

// PatchOrderUser привязывает заказ к учётной записи и переводит его из
// гостевого статуса в обычный.
func (r *PostgresRepository) PatchOrderUser(ctx context.Context, orderID, userID int64) error {
	cmdTag, err := r.pool.Exec(ctx,
		`UPDATE orders SET user_id = $2,
		        status = CASE WHEN status = $3 THEN $4 ELSE status END
		 WHERE id = $1`,
		orderID, userID, string(model.OrderStatusGuestPending), string(model.OrderStatusPending),
	)
	if err != nil {
		return fmt.Errorf("patch order: %w", err)
	}
	if cmdTag.RowsAffected() == 0 {
		return ErrOrderNotFound
	}
	return nil
}

// ListOrdersByUser возвращает заказы пользователя от новых к старым.
func (r *PostgresRepository) ListOrdersByUser(ctx context.Context, userID int64) ([]model.Order, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, user_id, items, total, points_earned, status, created_at
		 FROM orders
		 WHERE user_id = $1
		 ORDER BY created_at DESC`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("select orders: %w", err)
	}
	defer rows.Close()

	var orders []model.Order
	for rows.Next() {
		var (
			o        model.Order
			status   string
			snapshot []byte
		)
		if err := rows.Scan(&o.ID, &o.UserID, &snapshot, &o.TotalCents, &o.PointsEarned, &status, &o.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan order: %w", err)
		}

		if err := json.Unmarshal(snapshot, &o.Items); err != nil {
			return nil, fmt.Errorf("unmarshal order items: %w", err)
		}
		o.Status = model.OrderStatus(status)

		orders = append(orders, o)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return orders, nil
}

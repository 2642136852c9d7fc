package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"vehicle-registry/internal/models"
	"vehicle-registry/internal/registration"
)

// PostgresConfig describes how the store initialises its connection pool.
type PostgresConfig struct {
	DSN             string
	MaxConnections  int32
	MinConnections  int32
	MaxConnLifetime time.Duration
	MaxConnIdleTime time.Duration
	AcquireTimeout  time.Duration
	ApplicationName string
}

// PostgresOption mutates the pool configuration.
type PostgresOption func(*PostgresConfig)

// WithPoolLimits bounds the number of pooled connections.
func WithPoolLimits(maxConns, minConns int32) PostgresOption {
	return func(cfg *PostgresConfig) {
		if maxConns > 0 {
			cfg.MaxConnections = maxConns
		}
		if minConns >= 0 {
			cfg.MinConnections = minConns
		}
	}
}

// WithPoolDurations bounds connection lifetime and idle time.
func WithPoolDurations(lifetime, idle time.Duration) PostgresOption {
	return func(cfg *PostgresConfig) {
		if lifetime > 0 {
			cfg.MaxConnLifetime = lifetime
		}
		if idle > 0 {
			cfg.MaxConnIdleTime = idle
		}
	}
}

// WithAcquireTimeout bounds how long opening a connection may take.
func WithAcquireTimeout(timeout time.Duration) PostgresOption {
	return func(cfg *PostgresConfig) {
		if timeout > 0 {
			cfg.AcquireTimeout = timeout
		}
	}
}

// WithApplicationName sets the application_name reported to Postgres.
func WithApplicationName(name string) PostgresOption {
	return func(cfg *PostgresConfig) {
		cfg.ApplicationName = strings.TrimSpace(name)
	}
}

// PostgresStore persists vehicle records in a single table keyed by the
// normalized registration. The primary key is the uniqueness constraint the
// Conflict contract relies on.
type PostgresStore struct {
	pool *pgxpool.Pool
}

const vehiclesSchema = `
CREATE TABLE IF NOT EXISTS vehicles (
    reg          TEXT PRIMARY KEY,
    brand        TEXT NOT NULL DEFAULT '',
    model        TEXT NOT NULL DEFAULT '',
    year         INTEGER NOT NULL DEFAULT 0,
    price        DOUBLE PRECISION NOT NULL DEFAULT 0,
    kms          BIGINT NOT NULL DEFAULT 0,
    fuel         TEXT NOT NULL DEFAULT '',
    transmission TEXT NOT NULL DEFAULT '',
    owner        TEXT NOT NULL DEFAULT '',
    description  TEXT NOT NULL DEFAULT '',
    images       TEXT[] NOT NULL DEFAULT '{}',
    is_sold      BOOLEAN NOT NULL DEFAULT FALSE
);
CREATE INDEX IF NOT EXISTS vehicles_brand_model_idx ON vehicles (brand, model);
`

// NewPostgresStore opens a Postgres-backed store and ensures the vehicles
// schema exists.
func NewPostgresStore(ctx context.Context, dsn string, opts ...PostgresOption) (*PostgresStore, error) {
	cfg := PostgresConfig{DSN: strings.TrimSpace(dsn)}
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}
	if cfg.DSN == "" {
		return nil, fmt.Errorf("postgres dsn required")
	}

	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres config: %w", err)
	}
	if cfg.MaxConnections > 0 {
		poolCfg.MaxConns = cfg.MaxConnections
	}
	if cfg.MinConnections >= 0 {
		poolCfg.MinConns = cfg.MinConnections
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	if cfg.MaxConnIdleTime > 0 {
		poolCfg.MaxConnIdleTime = cfg.MaxConnIdleTime
	}
	if cfg.AcquireTimeout > 0 {
		poolCfg.ConnConfig.ConnectTimeout = cfg.AcquireTimeout
	}
	if cfg.ApplicationName != "" {
		if poolCfg.ConnConfig.RuntimeParams == nil {
			poolCfg.ConnConfig.RuntimeParams = make(map[string]string)
		}
		poolCfg.ConnConfig.RuntimeParams["application_name"] = cfg.ApplicationName
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("open postgres pool: %w", err)
	}
	store := &PostgresStore{pool: pool}
	if err := store.ensureSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return store, nil
}

func (s *PostgresStore) ensureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, vehiclesSchema); err != nil {
		return fmt.Errorf("ensure vehicles schema: %w", err)
	}
	return nil
}

// Close releases the connection pool, bounded by ctx.
func (s *PostgresStore) Close(ctx context.Context) error {
	if s == nil || s.pool == nil {
		return nil
	}
	done := make(chan struct{})
	go func() {
		s.pool.Close()
		close(done)
	}()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-done:
		return nil
	}
}

// Ping verifies database connectivity.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

const vehicleColumns = "reg, brand, model, year, price, kms, fuel, transmission, owner, description, images, is_sold"

func scanVehicle(row pgx.Row) (models.Vehicle, error) {
	var v models.Vehicle
	err := row.Scan(&v.Reg, &v.Brand, &v.Model, &v.Year, &v.Price, &v.Kms,
		&v.Fuel, &v.Transmission, &v.Owner, &v.Description, &v.Images, &v.IsSold)
	if v.Images == nil {
		v.Images = []string{}
	}
	return v, err
}

func (s *PostgresStore) ListVehicles(ctx context.Context, filter Filter) ([]models.Vehicle, error) {
	var (
		conditions []string
		args       []any
	)
	arg := func(value any) string {
		args = append(args, value)
		return fmt.Sprintf("$%d", len(args))
	}

	if query := strings.TrimSpace(filter.Query); query != "" {
		pattern := "%" + query + "%"
		regPattern := "%" + registration.Normalize(query) + "%"
		conditions = append(conditions, fmt.Sprintf("(brand ILIKE %s OR model ILIKE %s OR reg ILIKE %s)",
			arg(pattern), arg(pattern), arg(regPattern)))
	}
	if brand := strings.TrimSpace(filter.Brand); brand != "" {
		conditions = append(conditions, fmt.Sprintf("brand ILIKE %s", arg("%"+brand+"%")))
	}
	if filter.MaxPrice != nil {
		conditions = append(conditions, fmt.Sprintf("price <= %s", arg(*filter.MaxPrice)))
	}
	if filter.Sold != nil {
		conditions = append(conditions, fmt.Sprintf("is_sold = %s", arg(*filter.Sold)))
	}

	sql := "SELECT " + vehicleColumns + " FROM vehicles"
	if len(conditions) > 0 {
		sql += " WHERE " + strings.Join(conditions, " AND ")
	}
	sql += fmt.Sprintf(" ORDER BY reg LIMIT %s", arg(filter.EffectiveLimit()))

	rows, err := s.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("list vehicles: %w", err)
	}
	defer rows.Close()

	out := make([]models.Vehicle, 0)
	for rows.Next() {
		vehicle, err := scanVehicle(rows)
		if err != nil {
			return nil, fmt.Errorf("scan vehicle: %w", err)
		}
		out = append(out, vehicle)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list vehicles: %w", err)
	}
	return out, nil
}

func (s *PostgresStore) GetVehicle(ctx context.Context, reg string) (models.Vehicle, bool, error) {
	row := s.pool.QueryRow(ctx, "SELECT "+vehicleColumns+" FROM vehicles WHERE reg = $1", reg)
	vehicle, err := scanVehicle(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Vehicle{}, false, nil
		}
		return models.Vehicle{}, false, fmt.Errorf("get vehicle: %w", err)
	}
	return vehicle, true, nil
}

func (s *PostgresStore) CreateVehicle(ctx context.Context, vehicle models.Vehicle) (models.Vehicle, error) {
	images := vehicle.Images
	if images == nil {
		images = []string{}
	}
	_, err := s.pool.Exec(ctx, `
INSERT INTO vehicles (`+vehicleColumns+`)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
`, vehicle.Reg, vehicle.Brand, vehicle.Model, vehicle.Year, vehicle.Price, vehicle.Kms,
		vehicle.Fuel, vehicle.Transmission, vehicle.Owner, vehicle.Description, images, vehicle.IsSold)
	if err != nil {
		if isUniqueViolation(err) {
			return models.Vehicle{}, ErrDuplicateRegistration
		}
		return models.Vehicle{}, fmt.Errorf("insert vehicle: %w", err)
	}
	return vehicle, nil
}

func (s *PostgresStore) UpdateVehicle(ctx context.Context, reg string, update VehicleUpdate) (models.Vehicle, error) {
	var (
		assignments []string
		args        []any
	)
	set := func(column string, value any) {
		args = append(args, value)
		assignments = append(assignments, fmt.Sprintf("%s = $%d", column, len(args)))
	}
	if update.Brand != nil {
		set("brand", *update.Brand)
	}
	if update.Model != nil {
		set("model", *update.Model)
	}
	if update.Year != nil {
		set("year", *update.Year)
	}
	if update.Price != nil {
		set("price", *update.Price)
	}
	if update.Kms != nil {
		set("kms", *update.Kms)
	}
	if update.Fuel != nil {
		set("fuel", *update.Fuel)
	}
	if update.Transmission != nil {
		set("transmission", *update.Transmission)
	}
	if update.Owner != nil {
		set("owner", *update.Owner)
	}
	if update.Description != nil {
		set("description", *update.Description)
	}
	if len(assignments) == 0 {
		// An unknown registration outranks an empty update.
		var exists bool
		if err := s.pool.QueryRow(ctx, "SELECT EXISTS (SELECT 1 FROM vehicles WHERE reg = $1)", reg).Scan(&exists); err != nil {
			return models.Vehicle{}, fmt.Errorf("check vehicle: %w", err)
		}
		if !exists {
			return models.Vehicle{}, ErrNotFound
		}
		return models.Vehicle{}, ErrEmptyUpdate
	}

	args = append(args, reg)
	sql := fmt.Sprintf("UPDATE vehicles SET %s WHERE reg = $%d RETURNING %s",
		strings.Join(assignments, ", "), len(args), vehicleColumns)
	vehicle, err := scanVehicle(s.pool.QueryRow(ctx, sql, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Vehicle{}, ErrNotFound
		}
		return models.Vehicle{}, fmt.Errorf("update vehicle: %w", err)
	}
	return vehicle, nil
}

func (s *PostgresStore) MarkVehicleSold(ctx context.Context, reg string) (models.Vehicle, error) {
	row := s.pool.QueryRow(ctx,
		"UPDATE vehicles SET is_sold = TRUE WHERE reg = $1 RETURNING "+vehicleColumns, reg)
	vehicle, err := scanVehicle(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Vehicle{}, ErrNotFound
		}
		return models.Vehicle{}, fmt.Errorf("mark vehicle sold: %w", err)
	}
	return vehicle, nil
}

func (s *PostgresStore) DeleteVehicle(ctx context.Context, reg string) (models.Vehicle, error) {
	row := s.pool.QueryRow(ctx,
		"DELETE FROM vehicles WHERE reg = $1 RETURNING "+vehicleColumns, reg)
	vehicle, err := scanVehicle(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Vehicle{}, ErrNotFound
		}
		return models.Vehicle{}, fmt.Errorf("delete vehicle: %w", err)
	}
	return vehicle, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

var _ Repository = (*PostgresStore)(nil)

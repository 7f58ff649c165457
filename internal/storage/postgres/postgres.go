package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"task_service/internal/config"
	"task_service/internal/models"
	"task_service/internal/storage"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

type PostgresRepo struct {
	pool *pgxpool.Pool
}

func New(ctx context.Context, cfg *config.Config) (*PostgresRepo, error) {
	const op = "storage.postgres.New"

	dsn := dsn(cfg)

	poolConfig, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("%s: failed to parse config: %w", op, err)
	}

	poolConfig.MaxConns = 10
	poolConfig.MinConns = 2
	poolConfig.MaxConnLifetime = time.Hour
	poolConfig.MaxConnIdleTime = time.Minute * 30

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("%s: failed to create pool: %w", op, err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("%s: failed to ping database: %w", op, err)
	}

	return &PostgresRepo{pool: pool}, nil
}

func (r *PostgresRepo) SaveUser(ctx context.Context, email, username, passHash string) (models.User, error) {
	const op = "storage.postgres.SaveUser"

	query := `
		INSERT INTO users (id, email, username, password_hash, role)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, email, username, password_hash, is_verified, role;
	`

	row := r.pool.QueryRow(ctx, query, uuid.New(), email, username, passHash, models.RoleUser)

	u, err := scanUser(row)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return models.User{}, storage.ErrUserExists
		}

		return models.User{}, fmt.Errorf("%s: failed to save user: %w", op, err)
	}

	return u, nil
}

func (r *PostgresRepo) UserByUsername(ctx context.Context, username string) (models.User, error) {
	query := `
		SELECT id, email, username, password_hash, is_verified, role
		FROM users
		WHERE username = $1;
	`

	u, err := scanUser(r.pool.QueryRow(ctx, query, username))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.User{}, storage.ErrUserNotFound
		}

		return models.User{}, err
	}

	return u, nil
}

func (r *PostgresRepo) UserByID(ctx context.Context, id uuid.UUID) (models.User, error) {
	query := `
		SELECT id, email, username, password_hash, is_verified, role
		FROM users
		WHERE id = $1;
	`

	u, err := scanUser(r.pool.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return models.User{}, storage.ErrUserNotFound
	}

	return u, err
}

func (r *PostgresRepo) Users(ctx context.Context, skip, limit int) ([]models.User, error) {
	const op = "storage.postgres.Users"

	query := `
		SELECT id, email, username, password_hash, is_verified, role
		FROM users
		ORDER BY username
		OFFSET $1 LIMIT $2;
	`

	rows, err := r.pool.Query(ctx, query, skip, limit)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer rows.Close()

	var users []models.User

	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}

		users = append(users, u)
	}
	if rows.Err() != nil {
		return nil, fmt.Errorf("%s: %w", op, rows.Err())
	}

	return users, nil
}

// UpdateUser applies the non-nil fields and returns the updated row.
func (r *PostgresRepo) UpdateUser(ctx context.Context, id uuid.UUID, upd models.UserUpdate) (models.User, error) {
	const op = "storage.postgres.UpdateUser"

	query := `
		UPDATE users
		SET email       = COALESCE($1, email),
		    username    = COALESCE($2, username),
		    is_verified = COALESCE($3, is_verified)
		WHERE id = $4
		RETURNING id, email, username, password_hash, is_verified, role;
	`

	u, err := scanUser(r.pool.QueryRow(ctx, query, upd.Email, upd.Username, upd.IsVerified, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.User{}, storage.ErrUserNotFound
		}

		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return models.User{}, storage.ErrUserExists
		}

		return models.User{}, fmt.Errorf("%s: %w", op, err)
	}

	return u, nil
}

func (r *PostgresRepo) DeleteUser(ctx context.Context, id uuid.UUID) error {
	query := `DELETE FROM users WHERE id = $1`

	tag, err := r.pool.Exec(ctx, query, id)
	if err != nil {
		return err
	}

	if tag.RowsAffected() == 0 {
		return storage.ErrUserNotFound
	}

	return nil
}

func (r *PostgresRepo) SetEmailVerified(ctx context.Context, userID uuid.UUID) error {
	query := `UPDATE users SET is_verified = TRUE WHERE id = $1`

	tag, err := r.pool.Exec(ctx, query, userID)
	if err != nil {
		return err
	}

	if tag.RowsAffected() == 0 {
		return storage.ErrUserNotFound
	}

	return nil
}

func (r *PostgresRepo) SaveTask(ctx context.Context, name, description string) (models.Task, error) {
	const op = "storage.postgres.SaveTask"

	query := `
		INSERT INTO tasks (id, name, description, status)
		VALUES ($1, $2, $3, $4)
		RETURNING id, name, description, status, created_at;
	`

	t, err := scanTask(r.pool.QueryRow(ctx, query, uuid.New(), name, description, models.TaskStatusCreated))
	if err != nil {
		return models.Task{}, fmt.Errorf("%s: %w", op, err)
	}

	return t, nil
}

func (r *PostgresRepo) Task(ctx context.Context, id uuid.UUID) (models.Task, error) {
	query := `
		SELECT id, name, description, status, created_at
		FROM tasks
		WHERE id = $1;
	`

	t, err := scanTask(r.pool.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return models.Task{}, storage.ErrTaskNotFound
	}

	return t, err
}

// Tasks lists tasks ordered by creation time. An empty status means
// no filtering.
func (r *PostgresRepo) Tasks(ctx context.Context, skip, limit int, status models.TaskStatus) ([]models.Task, error) {
	const op = "storage.postgres.Tasks"

	query := `
		SELECT id, name, description, status, created_at
		FROM tasks
		WHERE $1 = '' OR status = $1
		ORDER BY created_at
		OFFSET $2 LIMIT $3;
	`

	rows, err := r.pool.Query(ctx, query, status, skip, limit)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer rows.Close()

	var tasks []models.Task

	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}

		tasks = append(tasks, t)
	}
	if rows.Err() != nil {
		return nil, fmt.Errorf("%s: %w", op, rows.Err())
	}

	return tasks, nil
}

func (r *PostgresRepo) UpdateTask(ctx context.Context, id uuid.UUID, name, description string, status models.TaskStatus) (models.Task, error) {
	query := `
		UPDATE tasks
		SET name = $1, description = $2, status = $3
		WHERE id = $4
		RETURNING id, name, description, status, created_at;
	`

	t, err := scanTask(r.pool.QueryRow(ctx, query, name, description, status, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return models.Task{}, storage.ErrTaskNotFound
	}

	return t, err
}

func (r *PostgresRepo) DeleteTask(ctx context.Context, id uuid.UUID) error {
	query := `DELETE FROM tasks WHERE id = $1`

	tag, err := r.pool.Exec(ctx, query, id)
	if err != nil {
		return err
	}

	if tag.RowsAffected() == 0 {
		return storage.ErrTaskNotFound
	}

	return nil
}

func (r *PostgresRepo) Close() {
	r.pool.Close()
}

func scanUser(row pgx.Row) (models.User, error) {
	var u models.User

	err := row.Scan(
		&u.ID,
		&u.Email,
		&u.Username,
		&u.PassHash,
		&u.IsVerified,
		&u.Role,
	)

	return u, err
}

func scanTask(row pgx.Row) (models.Task, error) {
	var t models.Task

	err := row.Scan(
		&t.ID,
		&t.Name,
		&t.Description,
		&t.Status,
		&t.CreatedAt,
	)

	return t, err
}

func dsn(cfg *config.Config) string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s database=%s sslmode=%s",
		cfg.Postgres.Host,
		cfg.Postgres.Port,
		cfg.Postgres.User,
		cfg.Postgres.Password,
		cfg.Postgres.DBName,
		cfg.Postgres.SSLMode,
	)
}

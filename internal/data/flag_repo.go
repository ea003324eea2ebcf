package data

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/clika/admin-api/internal/data/database"
	"github.com/clika/admin-api/internal/data/pgxutil"
	"github.com/clika/admin-api/internal/domain/model"
)

var (
	// ErrFlagNotFound is returned when a feature flag is not found.
	ErrFlagNotFound = errors.New("feature flag not found")
	// ErrFlagKeyExists is returned when attempting to create a flag with a duplicate key.
	ErrFlagKeyExists = errors.New("feature flag key already exists")
)

// FlagRepo provides database operations for feature flags.
type FlagRepo struct {
	DB           *sql.DB
	timeProvider TimeProvider
}

// NewFlagRepo creates a new FlagRepo with real time provider.
func NewFlagRepo(db *sql.DB) *FlagRepo {
	return &FlagRepo{DB: db, timeProvider: &RealTimeProvider{}}
}

// NewFlagRepoWithTimeProvider creates a new FlagRepo with a custom time provider (useful for tests).
func NewFlagRepoWithTimeProvider(db *sql.DB, tp TimeProvider) *FlagRepo {
	return &FlagRepo{DB: db, timeProvider: tp}
}

// Create inserts a new feature flag.
func (r *FlagRepo) Create(
	ctx context.Context,
	req *model.CreateFlagRequest,
) (*model.FeatureFlag, error) {
	if req == nil {
		return nil, errors.New("create flag request is required")
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}

	enabled := false
	if req.Enabled != nil {
		enabled = *req.Enabled
	}
	rules := model.FlagRules{}
	if req.Rules != nil {
		rules = *req.Rules
	}

	createdAt := r.timeProvider.Now().UTC()
	var out model.FeatureFlag
	if err := pgxutil.WithPgxConn(ctx, r.DB, func(conn *pgx.Conn) error {
		rows, err := conn.Query(ctx, `
			INSERT INTO feature_flags (
				key, description, enabled, rules, created_at, updated_at
			) VALUES (
				$1, $2, $3, $4, $5, $5
			) RETURNING `+flagColumnList,
			strings.TrimSpace(req.Key),
			req.Description,
			enabled,
			rules,
			createdAt,
		)
		if err != nil {
			return err
		}
		defer rows.Close()
		out, err = pgx.CollectOneRow(rows, pgx.RowToStructByName[model.FeatureFlag])
		return err
	}); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return nil, ErrFlagKeyExists
		}
		return nil, fmt.Errorf("failed to create feature flag: %w", err)
	}
	return &out, nil
}

// GetByKey retrieves a feature flag by its key.
func (r *FlagRepo) GetByKey(ctx context.Context, key string) (*model.FeatureFlag, error) {
	return r.getByQuery(ctx, flagGetByKeyQuery, "failed to get feature flag by key",
		strings.TrimSpace(key))
}

// GetByID retrieves a feature flag by ID.
func (r *FlagRepo) GetByID(ctx context.Context, id string) (*model.FeatureFlag, error) {
	return r.getByQuery(ctx, flagGetByIDQuery, "failed to get feature flag by ID", id)
}

// List retrieves feature flags with optional filters, ordered by key.
func (r *FlagRepo) List(
	ctx context.Context,
	opts model.FlagListOptions,
) ([]*model.FeatureFlag, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = 100
	}
	offset := max(opts.Offset, 0)

	queryOpts := []database.ListQueryOption{
		database.WithColumns(flagColumns()...),
		database.WithLimit(limit),
		database.WithOffset(offset),
		database.WithOrderBy("key", sortDirAsc),
	}
	if opts.Q != nil && strings.TrimSpace(*opts.Q) != "" {
		queryOpts = append(queryOpts, database.WithCondition(
			database.WhereCond("key", database.ILike, "%"+strings.TrimSpace(*opts.Q)+"%"),
		))
	}
	if opts.Enabled != nil {
		queryOpts = append(queryOpts, database.WithCondition(
			database.WhereCond("enabled", database.Equal, *opts.Enabled),
		))
	}
	query, args := database.BuildListQuery(
		database.NewListQueryOptions("feature_flags", queryOpts...),
	)

	var rowsOut []model.FeatureFlag
	if err := pgxutil.WithPgxConn(ctx, r.DB, func(conn *pgx.Conn) error {
		rows, err := conn.Query(ctx, query, args...)
		if err != nil {
			return err
		}
		defer rows.Close()
		rowsOut, err = pgx.CollectRows(rows, pgx.RowToStructByName[model.FeatureFlag])
		return err
	}); err != nil {
		return nil, fmt.Errorf("failed to list feature flags: %w", err)
	}
	res := make([]*model.FeatureFlag, len(rowsOut))
	for i := range rowsOut {
		res[i] = &rowsOut[i]
	}
	return res, nil
}

// Update updates fields of a feature flag, addressed by key.
func (r *FlagRepo) Update(
	ctx context.Context,
	key string,
	req model.UpdateFlagRequest,
) (*model.FeatureFlag, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	setParts := make([]string, 0, 4)
	args := make([]any, 0, 5)
	nextIdx := func() int { return len(args) + 1 }

	if req.Description != nil {
		setParts = append(setParts, fmt.Sprintf("description = $%d", nextIdx()))
		args = append(args, *req.Description)
	}
	if req.Enabled != nil {
		setParts = append(setParts, fmt.Sprintf("enabled = $%d", nextIdx()))
		args = append(args, *req.Enabled)
	}
	if req.Rules != nil {
		setParts = append(setParts, fmt.Sprintf("rules = $%d", nextIdx()))
		args = append(args, *req.Rules)
	}
	setParts = append(setParts, fmt.Sprintf("updated_at = $%d", nextIdx()))
	args = append(args, r.timeProvider.Now().UTC())
	args = append(args, strings.TrimSpace(key))

	query := "UPDATE feature_flags SET " + strings.Join(setParts, ", ") +
		" WHERE key = $" + strconv.Itoa(len(args)) +
		" RETURNING " + flagColumnList

	var out model.FeatureFlag
	err := pgxutil.WithPgxConn(ctx, r.DB, func(conn *pgx.Conn) error {
		rows, err := conn.Query(ctx, query, args...)
		if err != nil {
			return err
		}
		defer rows.Close()
		out, err = pgx.CollectOneRow(rows, pgx.RowToStructByName[model.FeatureFlag])
		return err
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrFlagNotFound
		}
		return nil, fmt.Errorf("failed to update feature flag: %w", err)
	}
	return &out, nil
}

// Delete deletes a feature flag by key.
func (r *FlagRepo) Delete(ctx context.Context, key string) (bool, error) {
	var rows int64
	err := pgxutil.WithPgxConn(ctx, r.DB, func(conn *pgx.Conn) error {
		ct, err := conn.Exec(ctx, `DELETE FROM feature_flags WHERE key = $1`,
			strings.TrimSpace(key))
		if err != nil {
			return err
		}
		rows = ct.RowsAffected()
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("failed to delete feature flag: %w", err)
	}
	return rows > 0, nil
}

const flagColumnList = `id, key, description, enabled, rules, created_at, updated_at`

const (
	flagGetByKeyQuery = `
		SELECT ` + flagColumnList + `
		FROM feature_flags
		WHERE key = $1`

	flagGetByIDQuery = `
		SELECT ` + flagColumnList + `
		FROM feature_flags
		WHERE id = $1`
)

func flagColumns() []string {
	return []string{
		"id",
		"key",
		"description",
		"enabled",
		"rules",
		"created_at",
		"updated_at",
	}
}

func (r *FlagRepo) getByQuery(
	ctx context.Context,
	q string,
	errMsg string,
	args ...any,
) (*model.FeatureFlag, error) {
	var flag model.FeatureFlag
	err := pgxutil.WithPgxConn(ctx, r.DB, func(conn *pgx.Conn) error {
		rows, err := conn.Query(ctx, q, args...)
		if err != nil {
			return err
		}
		defer rows.Close()
		flag, err = pgx.CollectOneRow(rows, pgx.RowToStructByName[model.FeatureFlag])
		return err
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) || isInvalidUUID(err) {
			return nil, ErrFlagNotFound
		}
		return nil, fmt.Errorf("%s: %w", errMsg, err)
	}
	return &flag, nil
}

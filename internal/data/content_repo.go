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
	// ErrContentNotFound is returned when a content item is not found.
	ErrContentNotFound = errors.New("content item not found")
	// ErrContentTransition is returned when a review request asks for a
	// status the workflow does not allow from the item's current status.
	ErrContentTransition = errors.New("content status transition not allowed")
)

const (
	sortDirAsc  = "ASC"
	sortDirDesc = "DESC"
)

// ContentRepo provides database operations for content items.
type ContentRepo struct {
	DB           *sql.DB
	timeProvider TimeProvider
}

// NewContentRepo creates a new ContentRepo with real time provider.
func NewContentRepo(db *sql.DB) *ContentRepo {
	return &ContentRepo{DB: db, timeProvider: &RealTimeProvider{}}
}

// NewContentRepoWithTimeProvider creates a new ContentRepo with a custom time provider (useful for tests).
func NewContentRepoWithTimeProvider(db *sql.DB, tp TimeProvider) *ContentRepo {
	return &ContentRepo{DB: db, timeProvider: tp}
}

// Create inserts a new content item in draft status.
func (r *ContentRepo) Create(
	ctx context.Context,
	req *model.CreateContentRequest,
) (*model.ContentItem, error) {
	if req == nil {
		return nil, errors.New("create content request is required")
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}

	createdAt := r.timeProvider.Now().UTC()
	var out model.ContentItem
	if err := pgxutil.WithPgxConn(ctx, r.DB, func(conn *pgx.Conn) error {
		rows, err := conn.Query(ctx, `
			INSERT INTO content_items (
				title, body, kind, status, author_id, publish_at, created_at, updated_at
			) VALUES (
				$1, $2, $3, $4, $5, $6, $7, $7
			) RETURNING `+contentColumnList,
			strings.TrimSpace(req.Title),
			req.Body,
			req.Kind,
			model.ContentStatusDraft,
			strings.TrimSpace(req.AuthorID),
			req.PublishAt,
			createdAt,
		)
		if err != nil {
			return err
		}
		defer rows.Close()
		out, err = pgx.CollectOneRow(rows, pgx.RowToStructByName[model.ContentItem])
		return err
	}); err != nil {
		return nil, fmt.Errorf("failed to create content item: %w", err)
	}
	return &out, nil
}

// GetByID retrieves a content item by ID.
func (r *ContentRepo) GetByID(ctx context.Context, id string) (*model.ContentItem, error) {
	var item model.ContentItem
	err := pgxutil.WithPgxConn(ctx, r.DB, func(conn *pgx.Conn) error {
		rows, err := conn.Query(ctx, contentGetByIDQuery, id)
		if err != nil {
			return err
		}
		defer rows.Close()
		item, err = pgx.CollectOneRow(rows, pgx.RowToStructByName[model.ContentItem])
		return err
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) || isInvalidUUID(err) {
			return nil, ErrContentNotFound
		}
		return nil, fmt.Errorf("failed to get content item by ID: %w", err)
	}
	return &item, nil
}

// List retrieves content items with optional filters and sorting.
func (r *ContentRepo) List(
	ctx context.Context,
	opts model.ContentListOptions,
) ([]*model.ContentItem, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = 50
	}
	offset := max(opts.Offset, 0)

	query, args := database.BuildListQuery(r.buildContentQueryOptions(opts, limit, offset))

	var rowsOut []model.ContentItem
	if err := pgxutil.WithPgxConn(ctx, r.DB, func(conn *pgx.Conn) error {
		rows, err := conn.Query(ctx, query, args...)
		if err != nil {
			return err
		}
		defer rows.Close()
		rowsOut, err = pgx.CollectRows(rows, pgx.RowToStructByName[model.ContentItem])
		return err
	}); err != nil {
		return nil, fmt.Errorf("failed to list content items: %w", err)
	}
	res := make([]*model.ContentItem, len(rowsOut))
	for i := range rowsOut {
		res[i] = &rowsOut[i]
	}
	return res, nil
}

// Update updates the editable fields of a content item.
func (r *ContentRepo) Update(
	ctx context.Context,
	id string,
	req model.UpdateContentRequest,
) (*model.ContentItem, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	setParts := make([]string, 0, 5)
	args := make([]any, 0, 6)
	nextIdx := func() int { return len(args) + 1 }

	if req.Title != nil {
		setParts = append(setParts, fmt.Sprintf("title = $%d", nextIdx()))
		args = append(args, strings.TrimSpace(*req.Title))
	}
	if req.Body != nil {
		setParts = append(setParts, fmt.Sprintf("body = $%d", nextIdx()))
		args = append(args, *req.Body)
	}
	if req.Kind != nil {
		setParts = append(setParts, fmt.Sprintf("kind = $%d", nextIdx()))
		args = append(args, *req.Kind)
	}
	if req.PublishAt != nil {
		setParts = append(setParts, fmt.Sprintf("publish_at = $%d", nextIdx()))
		args = append(args, (*req.PublishAt).UTC())
	}
	setParts = append(setParts, fmt.Sprintf("updated_at = $%d", nextIdx()))
	args = append(args, r.timeProvider.Now().UTC())
	args = append(args, id)

	query := "UPDATE content_items SET " + strings.Join(setParts, ", ") +
		" WHERE id = $" + strconv.Itoa(len(args)) +
		" RETURNING " + contentColumnList

	var out model.ContentItem
	err := pgxutil.WithPgxConn(ctx, r.DB, func(conn *pgx.Conn) error {
		rows, err := conn.Query(ctx, query, args...)
		if err != nil {
			return err
		}
		defer rows.Close()
		out, err = pgx.CollectOneRow(rows, pgx.RowToStructByName[model.ContentItem])
		return err
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) || isInvalidUUID(err) {
			return nil, ErrContentNotFound
		}
		return nil, fmt.Errorf("failed to update content item: %w", err)
	}
	return &out, nil
}

// Review moves a content item through the review workflow. The target
// status is checked against the item's current status inside the UPDATE
// so concurrent reviews cannot skip workflow edges.
func (r *ContentRepo) Review(
	ctx context.Context,
	id string,
	req model.ReviewContentRequest,
) (*model.ContentItem, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	current, err := r.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !current.Status.CanTransitionTo(req.Status) {
		return nil, fmt.Errorf(
			"%w: %s -> %s", ErrContentTransition, current.Status, req.Status,
		)
	}

	var out model.ContentItem
	err = pgxutil.WithPgxConn(ctx, r.DB, func(conn *pgx.Conn) error {
		rows, qErr := conn.Query(ctx, `
			UPDATE content_items
			SET status = $1, reviewer_id = $2, review_note = $3, updated_at = $4
			WHERE id = $5 AND status = $6
			RETURNING `+contentColumnList,
			req.Status,
			strings.TrimSpace(req.ReviewerID),
			req.Note,
			r.timeProvider.Now().UTC(),
			id,
			current.Status,
		)
		if qErr != nil {
			return qErr
		}
		defer rows.Close()
		out, qErr = pgx.CollectOneRow(rows, pgx.RowToStructByName[model.ContentItem])
		return qErr
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			// Row existed a moment ago, so the status moved underneath us.
			return nil, fmt.Errorf("%w: item status changed concurrently", ErrContentTransition)
		}
		return nil, fmt.Errorf("failed to review content item: %w", err)
	}
	return &out, nil
}

// Delete deletes a content item by ID.
func (r *ContentRepo) Delete(ctx context.Context, id string) (bool, error) {
	var rows int64
	err := pgxutil.WithPgxConn(ctx, r.DB, func(conn *pgx.Conn) error {
		ct, err := conn.Exec(ctx, `DELETE FROM content_items WHERE id = $1`, id)
		if err != nil {
			return err
		}
		rows = ct.RowsAffected()
		return nil
	})
	if err != nil {
		if isInvalidUUID(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to delete content item: %w", err)
	}
	return rows > 0, nil
}

const contentColumnList = `id, title, body, kind, status, author_id, reviewer_id, review_note, publish_at, created_at, updated_at`

const contentGetByIDQuery = `
	SELECT ` + contentColumnList + `
	FROM content_items
	WHERE id = $1`

func contentColumns() []string {
	return []string{
		"id",
		"title",
		"body",
		"kind",
		"status",
		"author_id",
		"reviewer_id",
		"review_note",
		"publish_at",
		"created_at",
		"updated_at",
	}
}

func (r *ContentRepo) buildContentQueryOptions(
	opts model.ContentListOptions,
	limit, offset int,
) *database.ListQueryOptions {
	queryOpts := []database.ListQueryOption{
		database.WithColumns(contentColumns()...),
		database.WithLimit(limit),
		database.WithOffset(offset),
	}

	if opts.Q != nil && strings.TrimSpace(*opts.Q) != "" {
		queryOpts = append(queryOpts, database.WithCondition(
			database.WhereCond("title", database.ILike, "%"+strings.TrimSpace(*opts.Q)+"%"),
		))
	}
	if len(opts.Statuses) > 0 {
		queryOpts = append(queryOpts, database.WithCondition(
			database.WhereCond("status", database.In, opts.Statuses),
		))
	}
	if opts.Kind != nil && strings.TrimSpace(*opts.Kind) != "" {
		queryOpts = append(queryOpts, database.WithCondition(
			database.WhereCond("kind", database.Equal, strings.TrimSpace(*opts.Kind)),
		))
	}
	if opts.AuthorID != nil && strings.TrimSpace(*opts.AuthorID) != "" {
		queryOpts = append(queryOpts, database.WithCondition(
			database.WhereCond("author_id", database.Equal, strings.TrimSpace(*opts.AuthorID)),
		))
	}

	sortCol, sortDir := contentSortOptions(opts.Sort, opts.Dir)
	queryOpts = append(queryOpts, database.WithOrderBy(sortCol, sortDir))

	return database.NewListQueryOptions("content_items", queryOpts...)
}

func contentSortOptions(sort, dir string) (string, string) {
	sortCol := "created_at"
	allowedSorts := map[string]bool{
		"created_at": true,
		"updated_at": true,
		"title":      true,
	}
	if allowedSorts[strings.ToLower(strings.TrimSpace(sort))] {
		sortCol = strings.ToLower(strings.TrimSpace(sort))
	}
	return sortCol, normalizeSortDir(dir)
}

func normalizeSortDir(dir string) string {
	if strings.EqualFold(strings.TrimSpace(dir), "asc") {
		return sortDirAsc
	}
	return sortDirDesc
}

// isInvalidUUID reports whether err is Postgres complaining about a
// malformed UUID literal. Callers treat those IDs as simply absent.
func isInvalidUUID(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "22P02"
}

package data

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5"
	"golang.org/x/net/publicsuffix"

	"github.com/clika/admin-api/internal/data/database"
	"github.com/clika/admin-api/internal/data/pgxutil"
	"github.com/clika/admin-api/internal/domain/model"
)

// ErrCampaignNotFound is returned when an ad campaign is not found.
var ErrCampaignNotFound = errors.New("campaign not found")

// CampaignRepo provides database operations for ad campaigns.
type CampaignRepo struct {
	DB           *sql.DB
	timeProvider TimeProvider
}

// NewCampaignRepo creates a new CampaignRepo with real time provider.
func NewCampaignRepo(db *sql.DB) *CampaignRepo {
	return &CampaignRepo{DB: db, timeProvider: &RealTimeProvider{}}
}

// NewCampaignRepoWithTimeProvider creates a new CampaignRepo with a custom time provider (useful for tests).
func NewCampaignRepoWithTimeProvider(db *sql.DB, tp TimeProvider) *CampaignRepo {
	return &CampaignRepo{DB: db, timeProvider: tp}
}

// Create inserts a new campaign in draft status. The landing domain column is
// derived from the landing URL here so it can never drift from it.
func (r *CampaignRepo) Create(
	ctx context.Context,
	req *model.CreateCampaignRequest,
) (*model.AdCampaign, error) {
	if req == nil {
		return nil, errors.New("create campaign request is required")
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}

	domain, err := LandingDomain(req.LandingURL)
	if err != nil {
		return nil, err
	}

	createdAt := r.timeProvider.Now().UTC()
	var out model.AdCampaign
	if err := pgxutil.WithPgxConn(ctx, r.DB, func(conn *pgx.Conn) error {
		rows, qErr := conn.Query(ctx, `
			INSERT INTO ad_campaigns (
				name, status, landing_url, landing_domain, budget_cents, advertiser_id,
				starts_at, ends_at, created_at, updated_at
			) VALUES (
				$1, $2, $3, $4, $5, $6, $7, $8, $9, $9
			) RETURNING `+campaignColumnList,
			strings.TrimSpace(req.Name),
			model.CampaignStatusDraft,
			strings.TrimSpace(req.LandingURL),
			domain,
			req.BudgetCents,
			strings.TrimSpace(req.AdvertiserID),
			req.StartsAt.UTC(),
			req.EndsAt,
			createdAt,
		)
		if qErr != nil {
			return qErr
		}
		defer rows.Close()
		out, qErr = pgx.CollectOneRow(rows, pgx.RowToStructByName[model.AdCampaign])
		return qErr
	}); err != nil {
		return nil, fmt.Errorf("failed to create campaign: %w", err)
	}
	return &out, nil
}

// GetByID retrieves a campaign by ID.
func (r *CampaignRepo) GetByID(ctx context.Context, id string) (*model.AdCampaign, error) {
	var out model.AdCampaign
	err := pgxutil.WithPgxConn(ctx, r.DB, func(conn *pgx.Conn) error {
		rows, err := conn.Query(ctx, campaignGetByIDQuery, id)
		if err != nil {
			return err
		}
		defer rows.Close()
		out, err = pgx.CollectOneRow(rows, pgx.RowToStructByName[model.AdCampaign])
		return err
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) || isInvalidUUID(err) {
			return nil, ErrCampaignNotFound
		}
		return nil, fmt.Errorf("failed to get campaign by ID: %w", err)
	}
	return &out, nil
}

// List retrieves campaigns with optional filters and sorting.
func (r *CampaignRepo) List(
	ctx context.Context,
	opts model.CampaignListOptions,
) ([]*model.AdCampaign, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = 50
	}
	offset := max(opts.Offset, 0)

	query, args := database.BuildListQuery(r.buildCampaignQueryOptions(opts, limit, offset))

	var rowsOut []model.AdCampaign
	if err := pgxutil.WithPgxConn(ctx, r.DB, func(conn *pgx.Conn) error {
		rows, err := conn.Query(ctx, query, args...)
		if err != nil {
			return err
		}
		defer rows.Close()
		rowsOut, err = pgx.CollectRows(rows, pgx.RowToStructByName[model.AdCampaign])
		return err
	}); err != nil {
		return nil, fmt.Errorf("failed to list campaigns: %w", err)
	}
	res := make([]*model.AdCampaign, len(rowsOut))
	for i := range rowsOut {
		res[i] = &rowsOut[i]
	}
	return res, nil
}

// Update updates fields of a campaign. Changing the landing URL re-derives
// the landing domain in the same statement.
func (r *CampaignRepo) Update(
	ctx context.Context,
	id string,
	req model.UpdateCampaignRequest,
) (*model.AdCampaign, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	setParts := make([]string, 0, 8)
	args := make([]any, 0, 9)
	nextIdx := func() int { return len(args) + 1 }

	if req.Name != nil {
		setParts = append(setParts, fmt.Sprintf("name = $%d", nextIdx()))
		args = append(args, strings.TrimSpace(*req.Name))
	}
	if req.Status != nil {
		setParts = append(setParts, fmt.Sprintf("status = $%d", nextIdx()))
		args = append(args, *req.Status)
	}
	if req.LandingURL != nil {
		domain, err := LandingDomain(*req.LandingURL)
		if err != nil {
			return nil, err
		}
		setParts = append(setParts, fmt.Sprintf("landing_url = $%d", nextIdx()))
		args = append(args, strings.TrimSpace(*req.LandingURL))
		setParts = append(setParts, fmt.Sprintf("landing_domain = $%d", nextIdx()))
		args = append(args, domain)
	}
	if req.BudgetCents != nil {
		setParts = append(setParts, fmt.Sprintf("budget_cents = $%d", nextIdx()))
		args = append(args, *req.BudgetCents)
	}
	if req.StartsAt != nil {
		setParts = append(setParts, fmt.Sprintf("starts_at = $%d", nextIdx()))
		args = append(args, (*req.StartsAt).UTC())
	}
	if req.EndsAt != nil {
		setParts = append(setParts, fmt.Sprintf("ends_at = $%d", nextIdx()))
		args = append(args, (*req.EndsAt).UTC())
	}
	setParts = append(setParts, fmt.Sprintf("updated_at = $%d", nextIdx()))
	args = append(args, r.timeProvider.Now().UTC())
	args = append(args, id)

	query := "UPDATE ad_campaigns SET " + strings.Join(setParts, ", ") +
		" WHERE id = $" + strconv.Itoa(len(args)) +
		" RETURNING " + campaignColumnList

	var out model.AdCampaign
	err := pgxutil.WithPgxConn(ctx, r.DB, func(conn *pgx.Conn) error {
		rows, err := conn.Query(ctx, query, args...)
		if err != nil {
			return err
		}
		defer rows.Close()
		out, err = pgx.CollectOneRow(rows, pgx.RowToStructByName[model.AdCampaign])
		return err
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) || isInvalidUUID(err) {
			return nil, ErrCampaignNotFound
		}
		return nil, fmt.Errorf("failed to update campaign: %w", err)
	}
	return &out, nil
}

// Delete deletes a campaign by ID.
func (r *CampaignRepo) Delete(ctx context.Context, id string) (bool, error) {
	var rows int64
	err := pgxutil.WithPgxConn(ctx, r.DB, func(conn *pgx.Conn) error {
		ct, err := conn.Exec(ctx, `DELETE FROM ad_campaigns WHERE id = $1`, id)
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
		return false, fmt.Errorf("failed to delete campaign: %w", err)
	}
	return rows > 0, nil
}

// LandingDomain extracts the registrable domain (eTLD+1) from a landing URL.
// Bare hosts without a public suffix, such as "localhost", keep the full host.
func LandingDomain(raw string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return "", fmt.Errorf("failed to parse landing URL: %w", err)
	}
	host := strings.ToLower(u.Hostname())
	if host == "" {
		return "", errors.New("landing URL must include a host")
	}
	domain, err := publicsuffix.EffectiveTLDPlusOne(host)
	if err != nil {
		return host, nil
	}
	return domain, nil
}

const campaignColumnList = `id, name, status, landing_url, landing_domain, budget_cents, advertiser_id, starts_at, ends_at, created_at, updated_at`

const campaignGetByIDQuery = `
	SELECT ` + campaignColumnList + `
	FROM ad_campaigns
	WHERE id = $1`

func campaignColumns() []string {
	return []string{
		"id",
		"name",
		"status",
		"landing_url",
		"landing_domain",
		"budget_cents",
		"advertiser_id",
		"starts_at",
		"ends_at",
		"created_at",
		"updated_at",
	}
}

func (r *CampaignRepo) buildCampaignQueryOptions(
	opts model.CampaignListOptions,
	limit, offset int,
) *database.ListQueryOptions {
	queryOpts := []database.ListQueryOption{
		database.WithColumns(campaignColumns()...),
		database.WithLimit(limit),
		database.WithOffset(offset),
	}

	if opts.Q != nil && strings.TrimSpace(*opts.Q) != "" {
		queryOpts = append(queryOpts, database.WithCondition(
			database.WhereCond("name", database.ILike, "%"+strings.TrimSpace(*opts.Q)+"%"),
		))
	}
	if len(opts.Statuses) > 0 {
		queryOpts = append(queryOpts, database.WithCondition(
			database.WhereCond("status", database.In, opts.Statuses),
		))
	}
	if opts.AdvertiserID != nil && strings.TrimSpace(*opts.AdvertiserID) != "" {
		queryOpts = append(queryOpts, database.WithCondition(
			database.WhereCond("advertiser_id", database.Equal, strings.TrimSpace(*opts.AdvertiserID)),
		))
	}
	if opts.LandingDomain != nil && strings.TrimSpace(*opts.LandingDomain) != "" {
		queryOpts = append(queryOpts, database.WithCondition(
			database.WhereCond("landing_domain", database.Equal,
				strings.ToLower(strings.TrimSpace(*opts.LandingDomain))),
		))
	}
	if opts.ActiveOn != nil {
		at := opts.ActiveOn.UTC()
		queryOpts = append(queryOpts,
			database.WithCondition(
				database.WhereCond("starts_at", database.LessThanOrEqual, at),
			),
			database.WithCondition(
				database.WhereRawCond("(ends_at IS NULL OR ends_at > $1)", at),
			),
		)
	}

	sortCol, sortDir := campaignSortOptions(opts.Sort, opts.Dir)
	queryOpts = append(queryOpts, database.WithOrderBy(sortCol, sortDir))

	return database.NewListQueryOptions("ad_campaigns", queryOpts...)
}

func campaignSortOptions(sort, dir string) (string, string) {
	sortCol := "created_at"
	allowedSorts := map[string]bool{
		"created_at": true,
		"name":       true,
		"starts_at":  true,
	}
	if allowedSorts[strings.ToLower(strings.TrimSpace(sort))] {
		sortCol = strings.ToLower(strings.TrimSpace(sort))
	}
	return sortCol, normalizeSortDir(dir)
}

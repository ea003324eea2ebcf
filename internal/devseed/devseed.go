// Package devseed populates a development database with sample CLIKA data:
// dashboard profiles for each role, a handful of content items, ad
// campaigns, and feature flags. Seeding is idempotent; existing rows are
// left alone.
package devseed

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/clika/admin-api/internal/data"
	domainauth "github.com/clika/admin-api/internal/domain/auth"
	"github.com/clika/admin-api/internal/domain/model"
	apperrors "github.com/clika/admin-api/internal/errors"
	"github.com/clika/admin-api/internal/service"
)

// Services bundles the dependencies needed for development seeding.
type Services struct {
	DB        *sql.DB
	profiles  *data.ProfileRepo
	content   *data.ContentRepo
	campaigns *data.CampaignRepo
	flags     *service.FlagService
}

// NewServices constructs all required repositories for seeding using the provided DB.
func NewServices(db *sql.DB) Services {
	return Services{
		DB:        db,
		profiles:  data.NewProfileRepo(db),
		content:   data.NewContentRepo(db),
		campaigns: data.NewCampaignRepo(db),
		flags: service.NewFlagService(service.FlagServiceOptions{
			Store: data.NewFlagRepo(db),
		}),
	}
}

// Run executes the full development seeding workflow against the provided DB.
func Run(ctx context.Context, svcs Services, logger *slog.Logger) error {
	profiles, failures := seedProfiles(ctx, svcs.profiles, logger)
	failures += seedContent(ctx, svcs.content, profiles, logger)
	failures += seedCampaigns(ctx, svcs.campaigns, profiles, logger)
	failures += seedFlags(ctx, svcs.flags, logger)

	if failures > 0 {
		return fmt.Errorf("%d seed errors; check logs", failures)
	}
	return nil
}

// seedProfiles creates one profile per dashboard role under a well-known
// user ID, so re-runs find the existing rows.
func seedProfiles(
	ctx context.Context,
	repo *data.ProfileRepo,
	logger *slog.Logger,
) (map[domainauth.Role]string, int) {
	seeds := []domainauth.Profile{
		{UserID: "dev-admin", DisplayName: "Dev Admin", Role: domainauth.RoleAdmin},
		{UserID: "dev-editor", DisplayName: "Dev Editor", Role: domainauth.RoleEditor},
		{UserID: "dev-reviewer", DisplayName: "Dev Reviewer", Role: domainauth.RoleReviewer},
		{UserID: "dev-advertiser", DisplayName: "Dev Advertiser", Role: domainauth.RoleAdvertiser},
		{UserID: "dev-analyst", DisplayName: "Dev Analyst", Role: domainauth.RoleAnalyst},
	}

	byRole := make(map[domainauth.Role]string, len(seeds))
	failures := 0
	for _, seed := range seeds {
		byRole[seed.Role] = seed.UserID
		created, err := repo.Insert(ctx, seed)
		if err != nil {
			if apperrors.IsProfileConflict(err) {
				if logger != nil {
					logger.InfoContext(ctx, "profile already exists", "user_id", seed.UserID)
				}
				continue
			}
			if logger != nil {
				logger.ErrorContext(ctx, "failed to create profile", "role", seed.Role, "error", err)
			}
			failures++
			continue
		}
		if logger != nil {
			logger.InfoContext(ctx, "created profile",
				"role", created.Role, "user_id", created.UserID)
		}
	}
	return byRole, failures
}

func seedContent(
	ctx context.Context,
	repo *data.ContentRepo,
	profiles map[domainauth.Role]string,
	logger *slog.Logger,
) int {
	author := profiles[domainauth.RoleEditor]
	if author == "" {
		author = "dev-editor"
	}
	publishAt := time.Now().Add(72 * time.Hour)

	items := []*model.CreateContentRequest{
		{
			Title:    "Season 12 kickoff",
			Body:     "The new season starts this weekend with double XP.",
			Kind:     model.ContentKindNews,
			AuthorID: author,
		},
		{
			Title:     "Weekend tournament",
			Body:      "Top 100 players win exclusive skins.",
			Kind:      model.ContentKindEvent,
			AuthorID:  author,
			PublishAt: &publishAt,
		},
		{
			Title:    "Starter pack sale",
			Body:     "50% off the starter pack for new players.",
			Kind:     model.ContentKindPromo,
			AuthorID: author,
		},
	}

	failures := 0
	for _, req := range items {
		if exists, err := contentExists(ctx, repo, req.Title); err != nil || exists {
			if err != nil {
				failures++
			}
			continue
		}
		if _, err := repo.Create(ctx, req); err != nil {
			if logger != nil {
				logger.ErrorContext(ctx, "failed to create content item", "title", req.Title, "error", err)
			}
			failures++
			continue
		}
		if logger != nil {
			logger.InfoContext(ctx, "created content item", "title", req.Title)
		}
	}
	return failures
}

func contentExists(ctx context.Context, repo *data.ContentRepo, title string) (bool, error) {
	existing, err := repo.List(ctx, model.ContentListOptions{Q: &title, Limit: 1})
	if err != nil {
		return false, err
	}
	return len(existing) > 0, nil
}

func seedCampaigns(
	ctx context.Context,
	repo *data.CampaignRepo,
	profiles map[domainauth.Role]string,
	logger *slog.Logger,
) int {
	advertiser := profiles[domainauth.RoleAdvertiser]
	if advertiser == "" {
		advertiser = "dev-advertiser"
	}
	now := time.Now()
	endsAt := now.Add(30 * 24 * time.Hour)

	campaigns := []*model.CreateCampaignRequest{
		{
			Name:         "Gem bundle launch",
			LandingURL:   "https://shop.clika.gg/gems",
			BudgetCents:  500_000,
			AdvertiserID: advertiser,
			StartsAt:     now,
			EndsAt:       &endsAt,
		},
		{
			Name:         "Cross-promo partner",
			LandingURL:   "https://partner.example.com/install",
			BudgetCents:  250_000,
			AdvertiserID: advertiser,
			StartsAt:     now,
		},
	}

	failures := 0
	for _, req := range campaigns {
		existing, err := repo.List(ctx, model.CampaignListOptions{Q: &req.Name, Limit: 1})
		if err != nil || len(existing) > 0 {
			if err != nil {
				failures++
			}
			continue
		}
		if _, err := repo.Create(ctx, req); err != nil {
			if logger != nil {
				logger.ErrorContext(ctx, "failed to create campaign", "name", req.Name, "error", err)
			}
			failures++
			continue
		}
		if logger != nil {
			logger.InfoContext(ctx, "created campaign", "name", req.Name)
		}
	}
	return failures
}

func seedFlags(ctx context.Context, svc *service.FlagService, logger *slog.Logger) int {
	enabled := true
	flags := []*model.CreateFlagRequest{
		{
			Key:         "lobby.new_layout",
			Description: "New lobby layout rollout",
			Enabled:     &enabled,
			Rules:       &model.FlagRules{RolloutPercent: 25},
		},
		{
			Key:         "shop.whale_offers",
			Description: "Premium offers for high-level players",
			Enabled:     &enabled,
			Rules: &model.FlagRules{
				Expression:     "player.level >= `30`",
				RolloutPercent: 100,
			},
		},
		{
			Key:         "matchmaking.v2",
			Description: "Second-generation matchmaking, off until load tested",
		},
	}

	failures := 0
	for _, req := range flags {
		created, err := createFlag(ctx, svc, req)
		if err != nil {
			if logger != nil {
				logger.ErrorContext(ctx, "failed to create flag", "key", req.Key, "error", err)
			}
			failures++
			continue
		}
		if logger != nil {
			msg := "flag already exists"
			if created {
				msg = "created flag"
			}
			logger.InfoContext(ctx, msg, "key", req.Key)
		}
	}
	return failures
}

func createFlag(ctx context.Context, svc *service.FlagService, req *model.CreateFlagRequest) (bool, error) {
	if _, err := svc.Create(ctx, req); err != nil {
		if errors.Is(err, data.ErrFlagKeyExists) || apperrors.IsConflict(err) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

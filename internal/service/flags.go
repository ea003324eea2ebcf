package service

import (
	"context"
	"hash/fnv"
	"log/slog"
	"strings"

	jmespath "github.com/jmespath-community/go-jmespath"

	"github.com/clika/admin-api/internal/domain/model"
	apperrors "github.com/clika/admin-api/internal/errors"
)

// FlagStore is the persistence surface the flag service needs.
type FlagStore interface {
	Create(ctx context.Context, req *model.CreateFlagRequest) (*model.FeatureFlag, error)
	GetByKey(ctx context.Context, key string) (*model.FeatureFlag, error)
	List(ctx context.Context, opts model.FlagListOptions) ([]*model.FeatureFlag, error)
	Update(ctx context.Context, key string, req model.UpdateFlagRequest) (*model.FeatureFlag, error)
	Delete(ctx context.Context, key string) (bool, error)
}

// FlagExpressionEvaluator validates and evaluates targeting expressions.
type FlagExpressionEvaluator interface {
	Validate(expr string) error
	Evaluate(expr string, data any) (any, error)
}

// jmespathEvaluator implements FlagExpressionEvaluator using go-jmespath.
type jmespathEvaluator struct{}

func (jmespathEvaluator) Validate(expr string) error {
	if strings.TrimSpace(expr) == "" {
		return nil
	}
	_, err := jmespath.Compile(expr)
	return err
}

func (jmespathEvaluator) Evaluate(expr string, data any) (any, error) {
	return jmespath.Search(expr, data)
}

// FlagService manages feature flags and decides which flags apply to a
// player. Targeting expressions are JMESPath predicates evaluated against a
// player context document assembled by the game backend.
type FlagService struct {
	store  FlagStore
	expr   FlagExpressionEvaluator
	logger *slog.Logger
}

// FlagServiceOptions configures a FlagService.
type FlagServiceOptions struct {
	Store     FlagStore
	Evaluator FlagExpressionEvaluator // defaults to the JMESPath evaluator
	Logger    *slog.Logger
}

// NewFlagService creates a FlagService.
func NewFlagService(opts FlagServiceOptions) *FlagService {
	ev := opts.Evaluator
	if ev == nil {
		ev = jmespathEvaluator{}
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &FlagService{store: opts.Store, expr: ev, logger: logger}
}

// Create validates the targeting expression before persisting the flag.
func (s *FlagService) Create(
	ctx context.Context,
	req *model.CreateFlagRequest,
) (*model.FeatureFlag, error) {
	if req == nil {
		return nil, apperrors.Validation("create flag request is required")
	}
	if req.Rules != nil {
		if err := s.expr.Validate(req.Rules.Expression); err != nil {
			return nil, apperrors.ValidationField("rules.expression", err.Error())
		}
	}
	return s.store.Create(ctx, req)
}

// Get retrieves a flag by key.
func (s *FlagService) Get(ctx context.Context, key string) (*model.FeatureFlag, error) {
	return s.store.GetByKey(ctx, key)
}

// List retrieves flags with optional filters.
func (s *FlagService) List(
	ctx context.Context,
	opts model.FlagListOptions,
) ([]*model.FeatureFlag, error) {
	return s.store.List(ctx, opts)
}

// Update validates the targeting expression before persisting the patch.
func (s *FlagService) Update(
	ctx context.Context,
	key string,
	req model.UpdateFlagRequest,
) (*model.FeatureFlag, error) {
	if req.Rules != nil {
		if err := s.expr.Validate(req.Rules.Expression); err != nil {
			return nil, apperrors.ValidationField("rules.expression", err.Error())
		}
	}
	return s.store.Update(ctx, key, req)
}

// Delete removes a flag by key.
func (s *FlagService) Delete(ctx context.Context, key string) (bool, error) {
	return s.store.Delete(ctx, key)
}

// EvaluateForPlayer decides whether a flag is on for a player. A disabled
// flag is always off. An unparseable or erroring expression fails closed.
func (s *FlagService) EvaluateForPlayer(
	ctx context.Context,
	key, playerID string,
	playerCtx any,
) (bool, error) {
	flag, err := s.store.GetByKey(ctx, key)
	if err != nil {
		return false, err
	}
	return s.evaluate(flag, playerID, playerCtx), nil
}

// EvaluateAll decides every flag for a player in one pass, keyed by flag key.
// Used by the game client bootstrap call.
func (s *FlagService) EvaluateAll(
	ctx context.Context,
	playerID string,
	playerCtx any,
) (map[string]bool, error) {
	flags, err := s.store.List(ctx, model.FlagListOptions{Limit: 1000})
	if err != nil {
		return nil, err
	}
	out := make(map[string]bool, len(flags))
	for _, flag := range flags {
		out[flag.Key] = s.evaluate(flag, playerID, playerCtx)
	}
	return out, nil
}

func (s *FlagService) evaluate(flag *model.FeatureFlag, playerID string, playerCtx any) bool {
	if !flag.Enabled {
		return false
	}
	if expr := strings.TrimSpace(flag.Rules.Expression); expr != "" {
		result, err := s.expr.Evaluate(expr, playerCtx)
		if err != nil {
			s.logger.Warn("flag expression evaluation failed",
				"flag", flag.Key, "error", err)
			return false
		}
		if !truthy(result) {
			return false
		}
	}
	return inRollout(flag.Key, playerID, flag.Rules.RolloutPercent)
}

// truthy follows JMESPath truthiness: null, false, empty strings, and empty
// collections are false.
func truthy(v any) bool {
	switch val := v.(type) {
	case nil:
		return false
	case bool:
		return val
	case string:
		return val != ""
	case []any:
		return len(val) > 0
	case map[string]any:
		return len(val) > 0
	default:
		return true
	}
}

// inRollout buckets a player 0-99 from a stable hash of flag key and player
// ID, so a player's bucket for a given flag never moves as the percentage
// ramps up.
func inRollout(key, playerID string, percent int) bool {
	if percent >= 100 {
		return true
	}
	if percent <= 0 {
		return false
	}
	h := fnv.New32a()
	h.Write([]byte(key))
	h.Write([]byte{':'})
	h.Write([]byte(playerID))
	return int(h.Sum32()%100) < percent
}

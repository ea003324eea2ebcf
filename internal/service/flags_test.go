package service

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clika/admin-api/internal/domain/model"
	apperrors "github.com/clika/admin-api/internal/errors"
)

// stubFlagStore is an in-memory FlagStore for service tests.
type stubFlagStore struct {
	flags map[string]*model.FeatureFlag
}

func newStubFlagStore(flags ...*model.FeatureFlag) *stubFlagStore {
	s := &stubFlagStore{flags: make(map[string]*model.FeatureFlag)}
	for _, f := range flags {
		s.flags[f.Key] = f
	}
	return s
}

func (s *stubFlagStore) Create(
	_ context.Context,
	req *model.CreateFlagRequest,
) (*model.FeatureFlag, error) {
	if err := req.Validate(); err != nil {
		return nil, apperrors.Validation(err.Error())
	}
	flag := &model.FeatureFlag{ID: fmt.Sprintf("id-%d", len(s.flags)+1), Key: req.Key}
	if req.Enabled != nil {
		flag.Enabled = *req.Enabled
	}
	if req.Rules != nil {
		flag.Rules = *req.Rules
	}
	s.flags[flag.Key] = flag
	return flag, nil
}

func (s *stubFlagStore) GetByKey(_ context.Context, key string) (*model.FeatureFlag, error) {
	flag, ok := s.flags[key]
	if !ok {
		return nil, apperrors.NotFoundf("feature flag %q not found", key)
	}
	return flag, nil
}

func (s *stubFlagStore) List(
	_ context.Context,
	_ model.FlagListOptions,
) ([]*model.FeatureFlag, error) {
	out := make([]*model.FeatureFlag, 0, len(s.flags))
	for _, f := range s.flags {
		out = append(out, f)
	}
	return out, nil
}

func (s *stubFlagStore) Update(
	_ context.Context,
	key string,
	req model.UpdateFlagRequest,
) (*model.FeatureFlag, error) {
	flag, ok := s.flags[key]
	if !ok {
		return nil, apperrors.NotFoundf("feature flag %q not found", key)
	}
	if req.Enabled != nil {
		flag.Enabled = *req.Enabled
	}
	if req.Rules != nil {
		flag.Rules = *req.Rules
	}
	return flag, nil
}

func (s *stubFlagStore) Delete(_ context.Context, key string) (bool, error) {
	_, ok := s.flags[key]
	delete(s.flags, key)
	return ok, nil
}

func enabledFlag(key, expr string, rollout int) *model.FeatureFlag {
	return &model.FeatureFlag{
		ID:      "id-" + key,
		Key:     key,
		Enabled: true,
		Rules:   model.FlagRules{Expression: expr, RolloutPercent: rollout},
	}
}

func TestFlagService_Create_RejectsBadExpression(t *testing.T) {
	svc := NewFlagService(FlagServiceOptions{Store: newStubFlagStore()})

	_, err := svc.Create(context.Background(), &model.CreateFlagRequest{
		Key:   "lobby.banner",
		Rules: &model.FlagRules{Expression: "player.level >=", RolloutPercent: 100},
	})
	require.Error(t, err)
	assert.True(t, apperrors.IsValidation(err))
	assert.Equal(t, "rules.expression", apperrors.GetField(err))
}

func TestFlagService_Create_AcceptsValidExpression(t *testing.T) {
	svc := NewFlagService(FlagServiceOptions{Store: newStubFlagStore()})

	flag, err := svc.Create(context.Background(), &model.CreateFlagRequest{
		Key:   "lobby.banner",
		Rules: &model.FlagRules{Expression: "player.level >= `10`", RolloutPercent: 100},
	})
	require.NoError(t, err)
	assert.Equal(t, "lobby.banner", flag.Key)
}

func TestFlagService_Update_RejectsBadExpression(t *testing.T) {
	store := newStubFlagStore(enabledFlag("lobby.banner", "", 100))
	svc := NewFlagService(FlagServiceOptions{Store: store})

	_, err := svc.Update(context.Background(), "lobby.banner", model.UpdateFlagRequest{
		Rules: &model.FlagRules{Expression: "[invalid", RolloutPercent: 50},
	})
	require.Error(t, err)
	assert.True(t, apperrors.IsValidation(err))
}

func TestFlagService_EvaluateForPlayer(t *testing.T) {
	playerCtx := map[string]any{
		"player": map[string]any{
			"id":      "p-1",
			"level":   float64(22),
			"country": "DE",
		},
	}

	tests := []struct {
		name string
		flag *model.FeatureFlag
		want bool
	}{
		{
			name: "disabled flag is off",
			flag: &model.FeatureFlag{Key: "f.disabled", Enabled: false,
				Rules: model.FlagRules{RolloutPercent: 100}},
			want: false,
		},
		{
			name: "empty expression targets everyone",
			flag: enabledFlag("f.everyone", "", 100),
			want: true,
		},
		{
			name: "matching expression",
			flag: enabledFlag("f.level", "player.level >= `10`", 100),
			want: true,
		},
		{
			name: "non-matching expression",
			flag: enabledFlag("f.high_level", "player.level >= `50`", 100),
			want: false,
		},
		{
			name: "expression selecting a value counts as truthy",
			flag: enabledFlag("f.country", "player.country", 100),
			want: true,
		},
		{
			name: "expression selecting missing field is falsy",
			flag: enabledFlag("f.missing", "player.vip_tier", 100),
			want: false,
		},
		{
			name: "zero rollout is off even when targeted",
			flag: enabledFlag("f.zero", "", 0),
			want: false,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := NewFlagService(FlagServiceOptions{Store: newStubFlagStore(tt.flag)})
			on, err := svc.EvaluateForPlayer(context.Background(), tt.flag.Key, "p-1", playerCtx)
			require.NoError(t, err)
			assert.Equal(t, tt.want, on)
		})
	}
}

func TestFlagService_EvaluateForPlayer_UnknownFlag(t *testing.T) {
	svc := NewFlagService(FlagServiceOptions{Store: newStubFlagStore()})

	_, err := svc.EvaluateForPlayer(context.Background(), "ghost", "p-1", nil)
	assert.True(t, apperrors.IsNotFound(err))
}

func TestFlagService_EvaluateAll(t *testing.T) {
	store := newStubFlagStore(
		enabledFlag("f.on", "", 100),
		enabledFlag("f.gated", "player.level >= `99`", 100),
		&model.FeatureFlag{Key: "f.off", Enabled: false},
	)
	svc := NewFlagService(FlagServiceOptions{Store: store})

	got, err := svc.EvaluateAll(context.Background(), "p-1", map[string]any{
		"player": map[string]any{"level": float64(5)},
	})
	require.NoError(t, err)
	assert.Equal(t, map[string]bool{
		"f.on":    true,
		"f.gated": false,
		"f.off":   false,
	}, got)
}

func TestInRollout_StableAndMonotonic(t *testing.T) {
	const players = 500
	onAt30 := 0
	for i := range players {
		playerID := fmt.Sprintf("player-%d", i)
		at30 := inRollout("lobby.banner", playerID, 30)
		at70 := inRollout("lobby.banner", playerID, 70)
		if at30 {
			onAt30++
			// raising the percentage never drops an included player
			assert.True(t, at70)
		}
		// same inputs always land in the same bucket
		assert.Equal(t, at30, inRollout("lobby.banner", playerID, 30))
	}
	// rough sanity on the bucket distribution
	assert.Greater(t, onAt30, players*15/100)
	assert.Less(t, onAt30, players*45/100)
}

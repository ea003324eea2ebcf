// Package mocks provides generated mock implementations for testing.
//
// This package uses go.uber.org/mock (gomock) to generate type-safe mocks
// for repository-facing interfaces. The mocks are generated using
// go:generate directives and provide a fluent API for setting up test
// expectations.
//
// To regenerate mocks after interface changes, run:
//
//	go generate ./internal/mocks
//
// Usage in tests:
//
//	ctrl := gomock.NewController(t)
//	defer ctrl.Finish()
//	store := mocks.NewMockFlagStore(ctrl)
//	store.EXPECT().GetByKey(gomock.Any(), "lobby.banner").Return(flag, nil)
package mocks

// Generate mock for FlagStore interface from internal/service package.
// This creates MockFlagStore with methods for all FlagStore interface methods:
// Create, GetByKey, List, Update, Delete
//go:generate go run go.uber.org/mock/mockgen@v0.6.0 -package=mocks -destination=flag_store_mock.go github.com/clika/admin-api/internal/service FlagStore

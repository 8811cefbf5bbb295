// Package mocks provides generated mock implementations of the session-bridge ports.
//
// This package uses go.uber.org/mock (gomock) to generate type-safe mocks for our port interfaces.
// The mocks are generated using go:generate directives and provide a fluent API for setting up test expectations.
//
// To regenerate mocks after interface changes, run:
//
//	go generate ./internal/mocks
//
// Usage in tests:
//
//	ctrl := gomock.NewController(t)
//	minter := mocks.NewMockSessionMinter(ctrl)
//	minter.EXPECT().MintSessionCredential(gomock.Any(), "id-token", gomock.Any()).Return(cred, nil)
package mocks

// Generate mocks for every interface in internal/ports:
// SessionMinter, IDTokenVerifier, RateLimiter, AuditSink
//go:generate go run go.uber.org/mock/mockgen@v0.6.0 -package=mocks -destination=ports_mock.go github.com/target/session-bridge/internal/ports SessionMinter,IDTokenVerifier,RateLimiter,AuditSink

// Package mocks provides mock implementations for testing the session subsystem.
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
//	dir := mocks.NewMockDirectory(ctrl)
//	dir.EXPECT().IsPrivileged(gomock.Any(), gomock.Any()).Return(true, nil)
package mocks

// Generate mocks for the session ports from internal/ports:
// IdentityProvider, Directory, CredentialStore, ChangeFeed, PrivilegeMatcher
//go:generate go run go.uber.org/mock/mockgen@v0.6.0 -package=mocks -destination=ports_mock.go github.com/target/storefront-admin/internal/ports IdentityProvider,Directory,CredentialStore,ChangeFeed,PrivilegeMatcher

package ports_test

import (
	"testing"

	"github.com/target/storefront-admin/internal/adapters/memory"
	"github.com/target/storefront-admin/internal/mocks"
	fakes "github.com/target/storefront-admin/internal/mocks/auth"
	"github.com/target/storefront-admin/internal/ports"
)

// This test only verifies that our doubles and in-memory adapters conform to the ports at compile time.
func TestDoublesImplementPorts(t *testing.T) {
	t.Helper()

	var _ ports.IdentityProvider = (*fakes.FakeIdentityProvider)(nil)
	var _ ports.PrivilegeMatcher = fakes.StaticPrivilegeMatcher{}
	var _ ports.IdentityProvider = (*mocks.MockIdentityProvider)(nil)
	var _ ports.Directory = (*mocks.MockDirectory)(nil)
	var _ ports.CredentialStore = (*mocks.MockCredentialStore)(nil)
	var _ ports.ChangeFeed = (*mocks.MockChangeFeed)(nil)
	var _ ports.PrivilegeMatcher = (*mocks.MockPrivilegeMatcher)(nil)
	var _ ports.CredentialStore = (*memory.CredentialStore)(nil)
	var _ ports.ChangeFeed = (*memory.ChangeHub)(nil)
}

package oidc_test

import (
	"context"
	"errors"
	"testing"

	"github.com/kyma-project/kyma-environment-broker/testing/e2e/skr-scenarios/common/gardener"
	"github.com/kyma-project/kyma-environment-broker/testing/e2e/skr-scenarios/internal/fixture"
	"github.com/kyma-project/kyma-environment-broker/testing/e2e/skr-scenarios/internal/oidc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateShootOIDCConfig(t *testing.T) {
	t.Run("should accept a shoot with the expected config", func(t *testing.T) {
		shoot := fixture.FixGardenerShoot(fixture.ShootName, fixture.FixOIDC0())

		assert.NoError(t, oidc.ValidateShootOIDCConfig(shoot, fixture.FixOIDC0()))
	})

	t.Run("should report a mismatch after the update was not applied", func(t *testing.T) {
		// given
		shoot := fixture.FixGardenerShoot(fixture.ShootName, fixture.FixOIDC0())

		// when
		err := oidc.ValidateShootOIDCConfig(shoot, fixture.FixOIDC1())

		// then
		var mismatch *oidc.MismatchError
		require.True(t, errors.As(err, &mismatch))
		assert.Contains(t, mismatch.Subject, fixture.ShootName)
		assert.Contains(t, mismatch.Details, `clientID: expected "foo-bar", got "abc-xyz"`)
	})

	t.Run("should report a shoot without OIDC config", func(t *testing.T) {
		u := fixture.FixShoot(fixture.ShootName, fixture.FixOIDC0())
		delete(u.Object, "spec")

		err := oidc.ValidateShootOIDCConfig(&gardener.Shoot{Unstructured: *u}, fixture.FixOIDC0())

		assert.ErrorContains(t, err, "oidcConfig is not set")
	})

	t.Run("should fail for an unknown shoot", func(t *testing.T) {
		err := oidc.ValidateShootOIDCConfig(nil, fixture.FixOIDC0())

		var mismatch *oidc.MismatchError
		assert.False(t, errors.As(err, &mismatch))
		assert.ErrorContains(t, err, "shoot is not known")
	})
}

type fakeDownloader struct {
	kubeconfig []byte
	err        error
}

func (f fakeDownloader) DownloadKubeconfig(context.Context, string) ([]byte, error) {
	return f.kubeconfig, f.err
}

func TestValidateKubeconfigOIDC(t *testing.T) {
	t.Run("should accept a kubeconfig using the expected issuer and client", func(t *testing.T) {
		downloader := fakeDownloader{kubeconfig: fixture.FixKubeconfig(fixture.FixOIDC1())}

		err := oidc.ValidateKubeconfigOIDC(context.Background(), downloader, fixture.InstanceID, fixture.FixOIDC1())

		assert.NoError(t, err)
	})

	t.Run("should report the exec args of a stale kubeconfig", func(t *testing.T) {
		// given
		downloader := fakeDownloader{kubeconfig: fixture.FixKubeconfig(fixture.FixOIDC0())}

		// when
		err := oidc.ValidateKubeconfigOIDC(context.Background(), downloader, fixture.InstanceID, fixture.FixOIDC1())

		// then
		var mismatch *oidc.MismatchError
		require.True(t, errors.As(err, &mismatch))
		require.Len(t, mismatch.Details, 1)
		assert.Equal(t, "user shoot--kyma--c-12345: issuer https://custom.ias.com, client abc-xyz", mismatch.Details[0])
	})

	t.Run("should fail when the download fails", func(t *testing.T) {
		downloader := fakeDownloader{err: errors.New("404 Not Found")}

		err := oidc.ValidateKubeconfigOIDC(context.Background(), downloader, fixture.InstanceID, fixture.FixOIDC0())

		var mismatch *oidc.MismatchError
		assert.False(t, errors.As(err, &mismatch))
		assert.ErrorContains(t, err, "404 Not Found")
	})
}

func TestValidateKubeconfigBytes(t *testing.T) {
	t.Run("should report a kubeconfig without exec users", func(t *testing.T) {
		raw := []byte("apiVersion: v1\nkind: Config\nusers:\n- name: admin\n  user:\n    token: abc\n")

		err := oidc.ValidateKubeconfigBytes(raw, fixture.FixOIDC0())

		assert.ErrorContains(t, err, "no user with exec credentials")
	})

	t.Run("should fail for malformed yaml", func(t *testing.T) {
		err := oidc.ValidateKubeconfigBytes([]byte("users: [\n"), fixture.FixOIDC0())

		assert.ErrorContains(t, err, "while unmarshaling kubeconfig")
	})
}

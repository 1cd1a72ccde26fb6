package skr

import (
	"context"
	"errors"
	"testing"

	"github.com/kyma-project/kyma-environment-broker/testing/e2e/skr-scenarios/internal/broker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const fixBindingKubeconfig = `apiVersion: v1
kind: Config
current-context: skr
clusters:
- name: skr
  cluster:
    server: https://api.c-12345.kyma.example.com
contexts:
- name: skr
  context:
    cluster: skr
    user: skr
users:
- name: skr
  user:
    token: binding-token
`

type fakeBinder struct {
	created   []string
	deleted   []string
	deleteErr error
}

func (f *fakeBinder) CreateBinding(_ context.Context, _, bindingID string, expirationSeconds int) (broker.Binding, error) {
	f.created = append(f.created, bindingID)
	return broker.Binding{Credentials: broker.BindingCredentials{Kubeconfig: fixBindingKubeconfig}}, nil
}

func (f *fakeBinder) DeleteBinding(_ context.Context, _, bindingID string) error {
	f.deleted = append(f.deleted, bindingID)
	return f.deleteErr
}

func TestClients(t *testing.T) {
	t.Run("should create one binding per instance", func(t *testing.T) {
		// given
		binder := &fakeBinder{}
		tracker := NewTracker()
		clients := NewClients(binder, tracker, fixLogger())

		// when
		k8sClient, err := clients.Client(context.Background(), fixInstanceID)
		require.NoError(t, err)
		dyn, err := clients.Dynamic(context.Background(), fixInstanceID)
		require.NoError(t, err)

		// then
		assert.NotNil(t, k8sClient)
		assert.NotNil(t, dyn)
		assert.Len(t, binder.created, 1)
		assert.Equal(t, binder.created, tracker.Bindings(fixInstanceID))
	})

	t.Run("should delete tracked bindings on release", func(t *testing.T) {
		// given
		binder := &fakeBinder{deleteErr: errors.New("binding not found")}
		tracker := NewTracker()
		clients := NewClients(binder, tracker, fixLogger())
		_, err := clients.Client(context.Background(), fixInstanceID)
		require.NoError(t, err)

		// when
		err = clients.Release(context.Background(), fixInstanceID)

		// then
		assert.ErrorContains(t, err, "binding not found")
		assert.Equal(t, binder.created, binder.deleted)
	})
}

// Copyright 2024 the vpn-operator contributors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     https://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package consumerctrl

import (
	"context"
	"testing"

	vpnv1 "github.com/beebs-dev/vpn-operator/apis/vpn/v1"
	"github.com/beebs-dev/vpn-operator/internal/alloc"
	"github.com/beebs-dev/vpn-operator/internal/vpnutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/runtime"
	"k8s.io/apimachinery/pkg/types"
	ctrl "sigs.k8s.io/controller-runtime"
	"sigs.k8s.io/controller-runtime/pkg/client/fake"
)

func newScheme(t *testing.T) *runtime.Scheme {
	t.Helper()
	scheme := runtime.NewScheme()
	require.NoError(t, vpnv1.AddToScheme(scheme))
	require.NoError(t, corev1.AddToScheme(scheme))
	return scheme
}

func TestReconcileNewConsumerGoesPending(t *testing.T) {
	scheme := newScheme(t)
	con := &vpnv1.Consumer{ObjectMeta: metav1.ObjectMeta{Name: "c0", Namespace: "default"}}
	c := fake.NewClientBuilder().WithScheme(scheme).WithObjects(con).WithStatusSubresource(con).Build()
	r := &Reconciler{Client: c}

	result, err := r.Reconcile(context.Background(), ctrl.Request{NamespacedName: types.NamespacedName{Name: "c0", Namespace: "default"}})
	require.NoError(t, err)
	assert.True(t, result.Requeue)

	var got vpnv1.Consumer
	require.NoError(t, c.Get(context.Background(), types.NamespacedName{Name: "c0", Namespace: "default"}, &got))
	assert.Equal(t, vpnv1.ConsumerPending, got.Status.Phase)
}

func TestReconcileAssignsProvider(t *testing.T) {
	scheme := newScheme(t)
	provider := &vpnv1.Provider{
		ObjectMeta: metav1.ObjectMeta{Name: "p0", Namespace: "default", UID: types.UID("p0-uid")},
		Spec:       vpnv1.ProviderSpec{MaxSlots: 1},
		Status:     vpnv1.ProviderStatus{Phase: vpnv1.ProviderReady},
	}
	con := &vpnv1.Consumer{
		ObjectMeta: metav1.ObjectMeta{Name: "c0", Namespace: "default", Finalizers: []string{vpnutil.FinalizerName}},
		Status:     vpnv1.ConsumerStatus{Phase: vpnv1.ConsumerPending},
	}
	c := fake.NewClientBuilder().WithScheme(scheme).WithObjects(provider, con).WithStatusSubresource(con).Build()
	r := &Reconciler{Client: c}

	result, err := r.Reconcile(context.Background(), ctrl.Request{NamespacedName: types.NamespacedName{Name: "c0", Namespace: "default"}})
	require.NoError(t, err)
	assert.True(t, result.Requeue)

	var got vpnv1.Consumer
	require.NoError(t, c.Get(context.Background(), types.NamespacedName{Name: "c0", Namespace: "default"}, &got))
	require.NotNil(t, got.Status.Provider)
	assert.Equal(t, "p0", got.Status.Provider.Name)
	assert.Equal(t, 0, got.Status.Provider.Slot)
}

func TestReconcileNoEligibleProvidersSurfacesErrNoProviders(t *testing.T) {
	scheme := newScheme(t)
	con := &vpnv1.Consumer{
		ObjectMeta: metav1.ObjectMeta{Name: "c0", Namespace: "default", Finalizers: []string{vpnutil.FinalizerName}},
		Status:     vpnv1.ConsumerStatus{Phase: vpnv1.ConsumerPending},
	}
	c := fake.NewClientBuilder().WithScheme(scheme).WithObjects(con).WithStatusSubresource(con).Build()
	r := &Reconciler{Client: c}

	_, err := r.Reconcile(context.Background(), ctrl.Request{NamespacedName: types.NamespacedName{Name: "c0", Namespace: "default"}})
	require.NoError(t, err)

	var got vpnv1.Consumer
	require.NoError(t, c.Get(context.Background(), types.NamespacedName{Name: "c0", Namespace: "default"}, &got))
	assert.Equal(t, vpnv1.ConsumerErrNoProviders, got.Status.Phase)
}

func TestReconcileProjectsSecretOnceAssigned(t *testing.T) {
	scheme := newScheme(t)
	provider := &vpnv1.Provider{
		ObjectMeta: metav1.ObjectMeta{Name: "p0", Namespace: "default", UID: types.UID("p0-uid")},
		Spec:       vpnv1.ProviderSpec{Secret: "creds", MaxSlots: 1},
		Status:     vpnv1.ProviderStatus{Phase: vpnv1.ProviderReady},
	}
	secret := &corev1.Secret{
		ObjectMeta: metav1.ObjectMeta{Name: "creds", Namespace: "default"},
		Data:       map[string][]byte{"config": []byte("vpn-config")},
	}
	reservation := &vpnv1.Reservation{
		ObjectMeta: metav1.ObjectMeta{Name: alloc.ReservationName("p0", 0), Namespace: "default"},
	}
	con := &vpnv1.Consumer{
		ObjectMeta: metav1.ObjectMeta{Name: "c0", Namespace: "default", Finalizers: []string{vpnutil.FinalizerName}},
		Status: vpnv1.ConsumerStatus{
			Phase: vpnv1.ConsumerWaiting,
			Provider: &vpnv1.AssignedProvider{
				Name: "p0", Namespace: "default", UID: "p0-uid", Slot: 0,
				Reservation: string(reservation.UID),
			},
		},
	}
	c := fake.NewClientBuilder().WithScheme(scheme).
		WithObjects(provider, secret, reservation, con).
		WithStatusSubresource(con).Build()
	r := &Reconciler{Client: c}

	_, err := r.Reconcile(context.Background(), ctrl.Request{NamespacedName: types.NamespacedName{Name: "c0", Namespace: "default"}})
	require.NoError(t, err)

	var projected corev1.Secret
	require.NoError(t, c.Get(context.Background(), types.NamespacedName{Name: "c0-p0-uid", Namespace: "default"}, &projected))
	assert.Equal(t, []byte("vpn-config"), projected.Data["config"])
}

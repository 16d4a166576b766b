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

package reservationctrl

import (
	"context"
	"testing"
	"time"

	vpnv1 "github.com/beebs-dev/vpn-operator/apis/vpn/v1"
	"github.com/beebs-dev/vpn-operator/internal/vpnutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
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
	return scheme
}

func TestReconcileNewReservationGoesPending(t *testing.T) {
	scheme := newScheme(t)
	res := &vpnv1.Reservation{
		ObjectMeta: metav1.ObjectMeta{Name: "p0-0", Namespace: "default"},
		Spec:       vpnv1.ReservationSpec{ConsumerName: "c0", ConsumerNamespace: "default", ConsumerUID: "c0-uid"},
	}
	c := fake.NewClientBuilder().WithScheme(scheme).WithObjects(res).WithStatusSubresource(res).Build()
	r := &Reconciler{Client: c}

	result, err := r.Reconcile(context.Background(), ctrl.Request{NamespacedName: types.NamespacedName{Name: "p0-0", Namespace: "default"}})
	require.NoError(t, err)
	assert.True(t, result.Requeue)

	var got vpnv1.Reservation
	require.NoError(t, c.Get(context.Background(), types.NamespacedName{Name: "p0-0", Namespace: "default"}, &got))
	assert.Equal(t, vpnv1.ReservationPending, got.Status.Phase)
	assert.True(t, vpnutil.HasFinalizer(&got))
}

func TestReconcileSelfDeletesWhenConsumerGone(t *testing.T) {
	scheme := newScheme(t)
	res := &vpnv1.Reservation{
		ObjectMeta: metav1.ObjectMeta{Name: "p0-0", Namespace: "default", Finalizers: []string{vpnutil.FinalizerName}},
		Spec:       vpnv1.ReservationSpec{ConsumerName: "gone", ConsumerNamespace: "default", ConsumerUID: "gone-uid"},
		Status:     vpnv1.ReservationStatus{Phase: vpnv1.ReservationActive},
	}
	c := fake.NewClientBuilder().WithScheme(scheme).WithObjects(res).WithStatusSubresource(res).Build()
	r := &Reconciler{Client: c}

	_, err := r.Reconcile(context.Background(), ctrl.Request{NamespacedName: types.NamespacedName{Name: "p0-0", Namespace: "default"}})
	require.NoError(t, err)

	var got vpnv1.Reservation
	err = c.Get(context.Background(), types.NamespacedName{Name: "p0-0", Namespace: "default"}, &got)
	if err == nil {
		// The finalizer keeps the object around, marked for deletion.
		assert.NotNil(t, got.DeletionTimestamp, "reservation should have been deleted")
	} else {
		assert.True(t, vpnutil.IsNotFoundRaw(err))
	}
}

func TestReconcileActiveHeartbeatSkipsFreshStatus(t *testing.T) {
	scheme := newScheme(t)
	consumer := &vpnv1.Consumer{ObjectMeta: metav1.ObjectMeta{Name: "c0", Namespace: "default", UID: types.UID("c0-uid")}}
	res := &vpnv1.Reservation{
		ObjectMeta: metav1.ObjectMeta{Name: "p0-0", Namespace: "default", Finalizers: []string{vpnutil.FinalizerName}},
		Spec:       vpnv1.ReservationSpec{ConsumerName: "c0", ConsumerNamespace: "default", ConsumerUID: "c0-uid"},
		Status:     vpnv1.ReservationStatus{Phase: vpnv1.ReservationActive, LastUpdated: time.Now().Format(time.RFC3339)},
	}
	c := fake.NewClientBuilder().WithScheme(scheme).WithObjects(res, consumer).WithStatusSubresource(res).Build()
	r := &Reconciler{Client: c}

	result, err := r.Reconcile(context.Background(), ctrl.Request{NamespacedName: types.NamespacedName{Name: "p0-0", Namespace: "default"}})
	require.NoError(t, err)
	assert.Equal(t, vpnutil.ProbeInterval, result.RequeueAfter)
}

func TestReconcileTerminatingAwaitsConsumerBeforeRemovingFinalizer(t *testing.T) {
	scheme := newScheme(t)
	now := metav1.Now()
	consumer := &vpnv1.Consumer{ObjectMeta: metav1.ObjectMeta{Name: "c0", Namespace: "default", UID: types.UID("c0-uid")}}
	res := &vpnv1.Reservation{
		ObjectMeta: metav1.ObjectMeta{
			Name: "p0-0", Namespace: "default",
			Finalizers:        []string{vpnutil.FinalizerName},
			DeletionTimestamp: &now,
		},
		Spec: vpnv1.ReservationSpec{ConsumerName: "c0", ConsumerNamespace: "default", ConsumerUID: "c0-uid"},
	}
	c := fake.NewClientBuilder().WithScheme(scheme).WithObjects(res, consumer).WithStatusSubresource(res).Build()
	r := &Reconciler{Client: c}

	result, err := r.Reconcile(context.Background(), ctrl.Request{NamespacedName: types.NamespacedName{Name: "p0-0", Namespace: "default"}})
	require.NoError(t, err)
	assert.True(t, result.Requeue, "finalizer must stay until the consumer is confirmed gone")

	var gotConsumer vpnv1.Consumer
	err = c.Get(context.Background(), types.NamespacedName{Name: "c0", Namespace: "default"}, &gotConsumer)
	assert.True(t, err != nil, "paired consumer should have been deleted")

	var got vpnv1.Reservation
	require.NoError(t, c.Get(context.Background(), types.NamespacedName{Name: "p0-0", Namespace: "default"}, &got))
	assert.True(t, vpnutil.HasFinalizer(&got), "finalizer removal is deferred to the next pass")
}

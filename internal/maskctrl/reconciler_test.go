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

package maskctrl

import (
	"context"
	"testing"

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

func TestReconcileNewMaskGoesPending(t *testing.T) {
	scheme := newScheme(t)
	mask := &vpnv1.Mask{ObjectMeta: metav1.ObjectMeta{Name: "m0", Namespace: "default"}}
	c := fake.NewClientBuilder().WithScheme(scheme).WithObjects(mask).WithStatusSubresource(mask).Build()
	r := &Reconciler{Client: c}

	result, err := r.Reconcile(context.Background(), ctrl.Request{NamespacedName: types.NamespacedName{Name: "m0", Namespace: "default"}})
	require.NoError(t, err)
	assert.True(t, result.Requeue)

	var got vpnv1.Mask
	require.NoError(t, c.Get(context.Background(), types.NamespacedName{Name: "m0", Namespace: "default"}, &got))
	assert.Equal(t, vpnv1.MaskPending, got.Status.Phase)
}

func TestReconcileCreatesChildConsumer(t *testing.T) {
	scheme := newScheme(t)
	mask := &vpnv1.Mask{
		ObjectMeta: metav1.ObjectMeta{Name: "m0", Namespace: "default", Finalizers: []string{vpnutil.FinalizerName}, UID: types.UID("m0-uid")},
		Spec:       vpnv1.MaskSpec{Providers: []string{"t1"}},
		Status:     vpnv1.MaskStatus{Phase: vpnv1.MaskPending},
	}
	c := fake.NewClientBuilder().WithScheme(scheme).WithObjects(mask).WithStatusSubresource(mask).Build()
	r := &Reconciler{Client: c}

	_, err := r.Reconcile(context.Background(), ctrl.Request{NamespacedName: types.NamespacedName{Name: "m0", Namespace: "default"}})
	require.NoError(t, err)

	var consumer vpnv1.Consumer
	require.NoError(t, c.Get(context.Background(), types.NamespacedName{Name: "m0", Namespace: "default"}, &consumer))
	assert.Equal(t, []string{"t1"}, consumer.Spec.Providers)

	var got vpnv1.Mask
	require.NoError(t, c.Get(context.Background(), types.NamespacedName{Name: "m0", Namespace: "default"}, &got))
	assert.Equal(t, vpnv1.MaskWaiting, got.Status.Phase)
}

func TestReconcileMirrorsActivePhase(t *testing.T) {
	scheme := newScheme(t)
	mask := &vpnv1.Mask{
		ObjectMeta: metav1.ObjectMeta{Name: "m0", Namespace: "default", Finalizers: []string{vpnutil.FinalizerName}, UID: types.UID("m0-uid")},
		Status:     vpnv1.MaskStatus{Phase: vpnv1.MaskWaiting},
	}
	consumer := &vpnv1.Consumer{
		ObjectMeta: metav1.ObjectMeta{
			Name: "m0", Namespace: "default",
			OwnerReferences: []metav1.OwnerReference{{UID: types.UID("m0-uid")}},
		},
		Status: vpnv1.ConsumerStatus{Phase: vpnv1.ConsumerActive},
	}
	c := fake.NewClientBuilder().WithScheme(scheme).WithObjects(mask, consumer).WithStatusSubresource(mask).Build()
	r := &Reconciler{Client: c}

	_, err := r.Reconcile(context.Background(), ctrl.Request{NamespacedName: types.NamespacedName{Name: "m0", Namespace: "default"}})
	require.NoError(t, err)

	var got vpnv1.Mask
	require.NoError(t, c.Get(context.Background(), types.NamespacedName{Name: "m0", Namespace: "default"}, &got))
	assert.Equal(t, vpnv1.MaskActive, got.Status.Phase)
}

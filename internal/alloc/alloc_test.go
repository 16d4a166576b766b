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

package alloc

import (
	"context"
	"testing"

	vpnv1 "github.com/beebs-dev/vpn-operator/apis/vpn/v1"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/runtime"
	"k8s.io/apimachinery/pkg/types"
	"sigs.k8s.io/controller-runtime/pkg/client/fake"
)

func newScheme(t *testing.T) *runtime.Scheme {
	t.Helper()
	scheme := runtime.NewScheme()
	require.NoError(t, vpnv1.AddToScheme(scheme))
	return scheme
}

func TestParseSlot(t *testing.T) {
	cases := []struct {
		name     string
		wantSlot int
		wantOK   bool
	}{
		{"provider-a-0", 0, true},
		{"provider-a-7", 7, true},
		{"provider-a-", 0, false},
		{"provider-a", 0, false},
		{"provider-a--1", 0, false},
	}
	for _, tc := range cases {
		slot, ok := ParseSlot(tc.name)
		assert.Equal(t, tc.wantOK, ok, tc.name)
		if ok {
			assert.Equal(t, tc.wantSlot, slot, tc.name)
		}
	}
}

func TestReservationNameRoundTrip(t *testing.T) {
	name := ReservationName("provider-a", 3)
	slot, ok := ParseSlot(name)
	require.True(t, ok)
	assert.Equal(t, 3, slot)
}

func TestAssignNoEligibleProviders(t *testing.T) {
	scheme := newScheme(t)
	c := fake.NewClientBuilder().WithScheme(scheme).Build()

	_, err := Assign(context.Background(), c, Request{Name: "c0", Namespace: "default", UID: "u0"})
	assert.ErrorIs(t, err, ErrNoProviders)
}

func TestAssignFindsFreeSlot(t *testing.T) {
	scheme := newScheme(t)
	provider := &vpnv1.Provider{
		ObjectMeta: metav1.ObjectMeta{Name: "p0", Namespace: "default", UID: types.UID("p0-uid")},
		Spec:       vpnv1.ProviderSpec{MaxSlots: 2},
		Status:     vpnv1.ProviderStatus{Phase: vpnv1.ProviderReady},
	}
	c := fake.NewClientBuilder().WithScheme(scheme).WithObjects(provider).Build()

	res, err := Assign(context.Background(), c, Request{Name: "c0", Namespace: "default", UID: "c0-uid"})
	require.NoError(t, err)
	require.NotNil(t, res)
	assert.Equal(t, "p0", res.Provider.Name)
	assert.Contains(t, []int{0, 1}, res.Slot)
}

func TestAssignSkipsOccupiedSlots(t *testing.T) {
	scheme := newScheme(t)
	provider := &vpnv1.Provider{
		ObjectMeta: metav1.ObjectMeta{Name: "p0", Namespace: "default", UID: types.UID("p0-uid")},
		Spec:       vpnv1.ProviderSpec{MaxSlots: 1},
		Status:     vpnv1.ProviderStatus{Phase: vpnv1.ProviderReady},
	}
	existing := &vpnv1.Reservation{
		ObjectMeta: metav1.ObjectMeta{
			Name:      ReservationName("p0", 0),
			Namespace: "default",
			OwnerReferences: []metav1.OwnerReference{
				ownerReference(provider),
			},
		},
		Spec: vpnv1.ReservationSpec{ConsumerName: "other", ConsumerNamespace: "default", ConsumerUID: "other-uid"},
	}
	otherConsumer := &vpnv1.Consumer{
		ObjectMeta: metav1.ObjectMeta{Name: "other", Namespace: "default", UID: types.UID("other-uid")},
	}
	c := fake.NewClientBuilder().WithScheme(scheme).WithObjects(provider, existing, otherConsumer).Build()

	res, err := Assign(context.Background(), c, Request{Name: "c1", Namespace: "default", UID: "c1-uid"})
	require.NoError(t, err)
	assert.Nil(t, res, "single-slot provider already occupied by a live Consumer should report no assignment")
}

func TestAssignPrunesDanglingReservation(t *testing.T) {
	scheme := newScheme(t)
	provider := &vpnv1.Provider{
		ObjectMeta: metav1.ObjectMeta{Name: "p0", Namespace: "default", UID: types.UID("p0-uid")},
		Spec:       vpnv1.ProviderSpec{MaxSlots: 1},
		Status:     vpnv1.ProviderStatus{Phase: vpnv1.ProviderReady},
	}
	dangling := &vpnv1.Reservation{
		ObjectMeta: metav1.ObjectMeta{
			Name:      ReservationName("p0", 0),
			Namespace: "default",
			OwnerReferences: []metav1.OwnerReference{
				ownerReference(provider),
			},
		},
		// ConsumerName references a Consumer that was never created: dangling.
		Spec: vpnv1.ReservationSpec{ConsumerName: "gone", ConsumerNamespace: "default", ConsumerUID: "gone-uid"},
	}
	c := fake.NewClientBuilder().WithScheme(scheme).WithObjects(provider, dangling).Build()

	res, err := Assign(context.Background(), c, Request{Name: "c2", Namespace: "default", UID: "c2-uid"})
	require.NoError(t, err)
	require.NotNil(t, res, "dangling reservation should be pruned and the slot reclaimed")
	assert.Equal(t, 0, res.Slot)
}

func TestAssignForceProviderUIDBypassesFilters(t *testing.T) {
	scheme := newScheme(t)
	// Pending phase would normally be filtered out, but ForceProviderUID
	// bypasses the phase/tag/namespace checks entirely.
	provider := &vpnv1.Provider{
		ObjectMeta: metav1.ObjectMeta{Name: "p0", Namespace: "default", UID: types.UID("p0-uid")},
		Spec:       vpnv1.ProviderSpec{MaxSlots: 1},
		Status:     vpnv1.ProviderStatus{Phase: vpnv1.ProviderPending},
	}
	c := fake.NewClientBuilder().WithScheme(scheme).WithObjects(provider).Build()

	res, err := Assign(context.Background(), c, Request{
		Name: "verify-c0", Namespace: "default", UID: "verify-uid",
		ForceProviderUID: "p0-uid",
	})
	require.NoError(t, err)
	require.NotNil(t, res)
	assert.Equal(t, "p0", res.Provider.Name)
}

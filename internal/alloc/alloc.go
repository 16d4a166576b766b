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

// Package alloc implements the distributed slot-allocation protocol shared
// by the Consumer reconciler's normal assignment path and the Provider
// reconciler's credential-verification path. There is no central mutex:
// mutual exclusion over a Provider's finite slot set is obtained by
// exploiting the object store's name-uniqueness-per-(namespace,kind)
// constraint as a compare-and-swap primitive.
package alloc

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	vpnv1 "github.com/beebs-dev/vpn-operator/apis/vpn/v1"
	"github.com/beebs-dev/vpn-operator/internal/vpnutil"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/types"
	"sigs.k8s.io/controller-runtime/pkg/client"
)

// Request describes the Consumer (or verify-Consumer) asking for a slot.
type Request struct {
	// Name, Namespace, UID identify the Consumer that will hold the slot.
	Name      string
	Namespace string
	UID       string

	// Providers is the set of tags the Consumer will accept (empty means
	// "any"), ignored entirely when ForceProviderUID is set.
	Providers []string

	// ForceProviderUID collapses eligibility to a single Provider
	// identified by UID, skipping phase/tag/namespace filters. Used only
	// by the verification path.
	ForceProviderUID string
}

// Result is the outcome of a successful allocation attempt.
type Result struct {
	Provider       *vpnv1.Provider
	Slot           int
	ReservationUID string
}

// ErrNoProviders is a sentinel returned when the eligible-providers set was
// empty before any slot-acquisition attempt. It is a visible user error,
// not a transient condition — callers should not retry without the
// eligibility inputs changing.
var ErrNoProviders = fmt.Errorf("no eligible providers")

// Assign runs the two-pass allocation protocol: list eligible providers,
// attempt to reserve a slot on each; if that fails, prune dangling
// Reservations cluster-wide and retry once. Returns ErrNoProviders if the
// eligibility set was empty from the start, or (nil, nil) if every
// eligible provider is at capacity or contended (the caller should set
// phase Waiting and requeue after the probe interval).
func Assign(ctx context.Context, c client.Client, req Request) (*Result, error) {
	providers, err := eligibleProviders(ctx, c, req)
	if err != nil {
		return nil, err
	}
	if len(providers) == 0 {
		return nil, ErrNoProviders
	}

	if res, err := tryAssign(ctx, c, req, providers); err != nil || res != nil {
		return res, err
	}

	pruned, err := Prune(ctx, c, req.ForceProviderUID)
	if err != nil {
		return nil, err
	}
	if !pruned {
		return nil, nil
	}

	providers, err = eligibleProviders(ctx, c, req)
	if err != nil {
		return nil, err
	}
	return tryAssign(ctx, c, req, providers)
}

// eligibleProviders lists Providers cluster-wide and applies the
// eligibility filters (phase, namespace, tags).
func eligibleProviders(ctx context.Context, c client.Client, req Request) ([]vpnv1.Provider, error) {
	var list vpnv1.ProviderList
	if err := c.List(ctx, &list); err != nil {
		return nil, vpnutil.Classify(err)
	}

	var out []vpnv1.Provider
	for _, p := range list.Items {
		if p.DeletionTimestamp != nil {
			continue
		}
		if req.ForceProviderUID != "" {
			if string(p.UID) == req.ForceProviderUID {
				out = append(out, p)
			}
			continue
		}
		if p.Status.Phase != vpnv1.ProviderReady && p.Status.Phase != vpnv1.ProviderActive {
			continue
		}
		if len(p.Spec.Namespaces) > 0 && !contains(p.Spec.Namespaces, req.Namespace) {
			continue
		}
		if len(req.Providers) > 0 && !intersects(p.Spec.Tags, req.Providers) {
			continue
		}
		out = append(out, p)
	}
	return out, nil
}

// tryAssign attempts to reserve a free slot on each candidate Provider in
// turn, returning the first successful assignment.
func tryAssign(ctx context.Context, c client.Client, req Request, providers []vpnv1.Provider) (*Result, error) {
	for i := range providers {
		p := &providers[i]
		// Advisory capacity filter: ActiveSlots may be stale. A miss here
		// is recovered by the prune-and-retry fallback in Assign.
		if req.ForceProviderUID == "" && p.Spec.MaxSlots > 0 && p.Status.ActiveSlots >= p.Spec.MaxSlots {
			continue
		}
		free, err := freeSlots(ctx, c, p)
		if err != nil {
			return nil, err
		}
		for _, slot := range free {
			uid, err := tryReserveSlot(ctx, c, p, slot, req)
			if err != nil {
				if vpnutil.IsConflict(err) {
					continue // slot already taken; try the next index
				}
				return nil, err
			}
			return &Result{Provider: p, Slot: slot, ReservationUID: uid}, nil
		}
	}
	return nil, nil
}

// tryReserveSlot attempts to CAS-create the Reservation for slot on p. A
// Conflict means the slot was already taken by a concurrent reconcile and
// is not an error.
func tryReserveSlot(ctx context.Context, c client.Client, p *vpnv1.Provider, slot int, req Request) (uid string, err error) {
	name := ReservationName(p.Name, slot)
	res := &vpnv1.Reservation{
		ObjectMeta: metav1.ObjectMeta{
			Name:       name,
			Namespace:  p.Namespace,
			Finalizers: []string{vpnutil.FinalizerName},
			OwnerReferences: []metav1.OwnerReference{
				ownerReference(p),
			},
		},
		Spec: vpnv1.ReservationSpec{
			ConsumerName:      req.Name,
			ConsumerNamespace: req.Namespace,
			ConsumerUID:       req.UID,
		},
	}
	if err := c.Create(ctx, res); err != nil {
		return "", vpnutil.Classify(err)
	}
	return string(res.UID), nil
}

func ownerReference(p *vpnv1.Provider) metav1.OwnerReference {
	controller := true
	return metav1.OwnerReference{
		APIVersion: vpnv1.SchemeGroupVersion.String(),
		Kind:       "Provider",
		Name:       p.Name,
		UID:        p.UID,
		Controller: &controller,
	}
}

// freeSlots returns the ascending list of unoccupied slot indices for p, by
// listing Reservations in p's namespace owned by p's UID and parsing their
// name suffix as the occupied index.
func freeSlots(ctx context.Context, c client.Client, p *vpnv1.Provider) ([]int, error) {
	occupied, err := occupiedSlots(ctx, c, p)
	if err != nil {
		return nil, err
	}
	var free []int
	for i := 0; i < p.Spec.MaxSlots; i++ {
		if !occupied[i] {
			free = append(free, i)
		}
	}
	return free, nil
}

func occupiedSlots(ctx context.Context, c client.Client, p *vpnv1.Provider) (map[int]bool, error) {
	var list vpnv1.ReservationList
	if err := c.List(ctx, &list, client.InNamespace(p.Namespace)); err != nil {
		return nil, vpnutil.Classify(err)
	}
	occupied := map[int]bool{}
	for _, r := range list.Items {
		if !ownedBy(r.OwnerReferences, p.UID) {
			continue
		}
		if slot, ok := ParseSlot(r.Name); ok {
			occupied[slot] = true
		}
	}
	return occupied, nil
}

// ReservationName formats the deterministic Reservation name for a given
// Provider name and slot index. ParseSlot is its left-inverse.
func ReservationName(providerName string, slot int) string {
	return fmt.Sprintf("%s-%d", providerName, slot)
}

// ParseSlot extracts the trailing "-N" slot index from a Reservation name.
// Names that don't end in a parseable non-negative integer are ignored (not
// an error): a malformed or manually-created Reservation simply never
// counts as occupying a slot.
func ParseSlot(reservationName string) (int, bool) {
	idx := strings.LastIndex(reservationName, "-")
	if idx < 0 || idx == len(reservationName)-1 {
		return 0, false
	}
	if idx > 0 && reservationName[idx-1] == '-' {
		// "name--N" is how ReservationName formats a negative slot index.
		return 0, false
	}
	slot, err := strconv.Atoi(reservationName[idx+1:])
	if err != nil || slot < 0 {
		return 0, false
	}
	return slot, true
}

func ownedBy(refs []metav1.OwnerReference, uid types.UID) bool {
	for _, r := range refs {
		if r.UID == uid {
			return true
		}
	}
	return false
}

func contains(ss []string, s string) bool {
	for _, v := range ss {
		if v == s {
			return true
		}
	}
	return false
}

func intersects(a, b []string) bool {
	set := make(map[string]struct{}, len(a))
	for _, v := range a {
		set[v] = struct{}{}
	}
	for _, v := range b {
		if _, ok := set[v]; ok {
			return true
		}
	}
	return false
}

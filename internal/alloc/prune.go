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

	vpnv1 "github.com/beebs-dev/vpn-operator/apis/vpn/v1"
	"github.com/beebs-dev/vpn-operator/internal/vpnutil"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	"k8s.io/apimachinery/pkg/types"
	"sigs.k8s.io/controller-runtime/pkg/client"
)

// Prune deletes Reservations whose referenced Consumer no longer exists or
// no longer carries the recorded UID (a dangling Reservation: the Consumer
// was deleted, or deleted and recreated, without the Reservation's
// finalizer-driven cleanup completing first). When providerUID is
// non-empty, only Reservations owned by that Provider are scanned — used
// to keep the verify path's retry cheap.
//
// It returns whether at least one Reservation was pruned, so the caller
// knows whether a retry of the allocation attempt is worthwhile.
func Prune(ctx context.Context, c client.Client, providerUID string) (bool, error) {
	var list vpnv1.ReservationList
	if err := c.List(ctx, &list); err != nil {
		return false, vpnutil.Classify(err)
	}

	pruned := false
	for i := range list.Items {
		r := &list.Items[i]
		if providerUID != "" && !ownedBy(r.OwnerReferences, types.UID(providerUID)) {
			continue
		}
		dangling, err := isDangling(ctx, c, r)
		if err != nil {
			return pruned, err
		}
		if !dangling {
			continue
		}
		if err := c.Delete(ctx, r); err != nil && !apierrors.IsNotFound(err) {
			return pruned, vpnutil.Classify(err)
		}
		pruned = true
	}
	return pruned, nil
}

// isDangling reports whether r's referenced Consumer is gone or has been
// replaced by a different object under the same name.
func isDangling(ctx context.Context, c client.Client, r *vpnv1.Reservation) (bool, error) {
	var consumer vpnv1.Consumer
	key := client.ObjectKey{Name: r.Spec.ConsumerName, Namespace: r.Spec.ConsumerNamespace}
	err := c.Get(ctx, key, &consumer)
	switch {
	case apierrors.IsNotFound(err):
		return true, nil
	case err != nil:
		return false, vpnutil.Classify(err)
	}
	return string(consumer.UID) != r.Spec.ConsumerUID, nil
}

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

// Package reservationctrl reconciles Reservation objects: the slot-level
// lock that bridges single-namespace owner-reference garbage collection
// into the two-namespace Provider/Consumer dependency.
package reservationctrl

import (
	"context"
	"time"

	vpnv1 "github.com/beebs-dev/vpn-operator/apis/vpn/v1"
	"github.com/beebs-dev/vpn-operator/internal/vpnutil"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	ctrl "sigs.k8s.io/controller-runtime"
	"sigs.k8s.io/controller-runtime/pkg/client"
)

// action is the outcome of determineAction: what the reconciler should do
// with the Reservation it just read.
type action int

const (
	actionNoOp action = iota
	actionPending
	actionTerminatingAwaitConsumer
	actionTerminatingRemoveFinalizer
	actionSelfDelete
	actionActiveHeartbeat
)

// Reconciler drives a single Reservation through its lifecycle.
type Reconciler struct {
	Client  client.Client
	Metrics *vpnutil.ControllerMetrics
}

// SetupWithManager registers the reconciler on mgr.
func (r *Reconciler) SetupWithManager(mgr ctrl.Manager) error {
	return ctrl.NewControllerManagedBy(mgr).
		Named("reservation").
		For(&vpnv1.Reservation{}).
		Complete(r)
}

func (r *Reconciler) Reconcile(ctx context.Context, req ctrl.Request) (ctrl.Result, error) {
	log := ctrl.LoggerFrom(ctx)

	var res vpnv1.Reservation
	if err := r.Client.Get(ctx, req.NamespacedName, &res); err != nil {
		return ctrl.Result{}, client.IgnoreNotFound(err)
	}

	start := time.Now()
	act, err := r.determineAction(ctx, &res)
	if r.Metrics != nil {
		r.Metrics.ObserveRead(res.Name, res.Namespace, actionLabel(act), time.Since(start))
	}
	if err != nil {
		log.Error(err, "determine action", "reservation", req.NamespacedName)
		return ctrl.Result{RequeueAfter: vpnutil.ErrorRequeueInterval}, nil
	}

	start = time.Now()
	result, err := r.apply(ctx, &res, act)
	if r.Metrics != nil {
		r.Metrics.ObserveWrite(res.Name, res.Namespace, actionLabel(act), time.Since(start))
		r.Metrics.ReconcileCounter.WithLabelValues(res.Name, res.Namespace).Inc()
		r.Metrics.ActionCounter.WithLabelValues(res.Name, res.Namespace, actionLabel(act)).Inc()
	}
	if err != nil {
		log.Error(err, "apply action", "reservation", req.NamespacedName, "action", actionLabel(act))
		return ctrl.Result{RequeueAfter: vpnutil.ErrorRequeueInterval}, nil
	}
	return result, nil
}

// determineAction inspects res and returns the single highest-priority
// action to take, without mutating anything.
func (r *Reconciler) determineAction(ctx context.Context, res *vpnv1.Reservation) (action, error) {
	if res.DeletionTimestamp != nil {
		gone, err := consumerGone(ctx, r.Client, res)
		if err != nil {
			return actionNoOp, err
		}
		if gone {
			return actionTerminatingRemoveFinalizer, nil
		}
		return actionTerminatingAwaitConsumer, nil
	}

	if !vpnutil.HasFinalizer(res) || res.Status.Phase == "" {
		return actionPending, nil
	}

	gone, err := consumerGone(ctx, r.Client, res)
	if err != nil {
		return actionNoOp, err
	}
	if gone {
		return actionSelfDelete, nil
	}
	return actionActiveHeartbeat, nil
}

// consumerGone reports whether res's paired Consumer no longer exists, or
// exists under a different uid than the one recorded at reservation time.
func consumerGone(ctx context.Context, c client.Client, res *vpnv1.Reservation) (bool, error) {
	var consumer vpnv1.Consumer
	key := client.ObjectKey{Name: res.Spec.ConsumerName, Namespace: res.Spec.ConsumerNamespace}
	err := c.Get(ctx, key, &consumer)
	switch {
	case apierrors.IsNotFound(err):
		return true, nil
	case err != nil:
		return false, vpnutil.Classify(err)
	}
	return string(consumer.UID) != res.Spec.ConsumerUID, nil
}

func (r *Reconciler) apply(ctx context.Context, res *vpnv1.Reservation, act action) (ctrl.Result, error) {
	switch act {
	case actionPending:
		if err := vpnutil.AddFinalizer(ctx, r.Client, res); err != nil {
			return ctrl.Result{}, err
		}
		if err := vpnutil.PatchStatus(ctx, r.Client, res, func(r *vpnv1.Reservation) {
			r.Status.Phase = vpnv1.ReservationPending
			r.Status.Message = vpnutil.MsgPending
		}); err != nil {
			return ctrl.Result{}, err
		}
		return ctrl.Result{Requeue: true}, nil

	case actionTerminatingAwaitConsumer:
		// The paired Consumer still exists: delete it, then requeue
		// without removing our own finalizer. The finalizer is only
		// dropped once the next pass observes the Consumer gone.
		if err := vpnutil.PatchStatus(ctx, r.Client, res, func(r *vpnv1.Reservation) {
			r.Status.Phase = vpnv1.ReservationTerminating
			r.Status.Message = vpnutil.MsgTerminating
		}); err != nil {
			return ctrl.Result{}, err
		}
		consumer := &vpnv1.Consumer{}
		consumer.Name = res.Spec.ConsumerName
		consumer.Namespace = res.Spec.ConsumerNamespace
		if err := r.Client.Delete(ctx, consumer); err != nil && !apierrors.IsNotFound(err) {
			return ctrl.Result{}, vpnutil.Classify(err)
		}
		return ctrl.Result{Requeue: true}, nil

	case actionTerminatingRemoveFinalizer:
		if err := vpnutil.RemoveFinalizer(ctx, r.Client, res); err != nil {
			return ctrl.Result{}, err
		}
		return ctrl.Result{}, nil

	case actionSelfDelete:
		if err := r.Client.Delete(ctx, res); err != nil && !apierrors.IsNotFound(err) {
			return ctrl.Result{}, vpnutil.Classify(err)
		}
		return ctrl.Result{}, nil

	case actionActiveHeartbeat:
		if res.Status.Phase == vpnv1.ReservationActive && !stale(res.Status.LastUpdated) {
			return ctrl.Result{RequeueAfter: vpnutil.ProbeInterval}, nil
		}
		if err := vpnutil.PatchStatus(ctx, r.Client, res, func(r *vpnv1.Reservation) {
			r.Status.Phase = vpnv1.ReservationActive
			r.Status.Message = vpnutil.MsgActive
		}); err != nil {
			return ctrl.Result{}, err
		}
		return ctrl.Result{RequeueAfter: vpnutil.ProbeInterval}, nil
	}

	return ctrl.Result{RequeueAfter: vpnutil.ProbeInterval}, nil
}

func stale(lastUpdated string) bool {
	if lastUpdated == "" {
		return true
	}
	t, err := time.Parse(time.RFC3339, lastUpdated)
	if err != nil {
		return true
	}
	return time.Since(t) >= vpnutil.ProbeInterval
}

func actionLabel(act action) string {
	switch act {
	case actionPending:
		return "pending"
	case actionTerminatingAwaitConsumer:
		return "terminating_await_consumer"
	case actionTerminatingRemoveFinalizer:
		return "terminating_remove_finalizer"
	case actionSelfDelete:
		return "self_delete"
	case actionActiveHeartbeat:
		return "active_heartbeat"
	default:
		return "noop"
	}
}

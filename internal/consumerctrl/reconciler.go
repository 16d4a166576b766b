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

// Package consumerctrl reconciles Consumer objects: the operator-internal
// holder of a Provider slot assignment.
package consumerctrl

import (
	"context"
	"fmt"
	"time"

	vpnv1 "github.com/beebs-dev/vpn-operator/apis/vpn/v1"
	"github.com/beebs-dev/vpn-operator/internal/alloc"
	"github.com/beebs-dev/vpn-operator/internal/vpnutil"
	corev1 "k8s.io/api/core/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	ctrl "sigs.k8s.io/controller-runtime"
	"sigs.k8s.io/controller-runtime/pkg/client"
)

type action int

const (
	actionNoOp action = iota
	actionDelete
	actionPending
	actionAssign
	actionReservationInvalid
	actionSecretProjection
	actionActiveHeartbeat
)

// Reconciler drives a single Consumer through its lifecycle.
type Reconciler struct {
	Client  client.Client
	Metrics *vpnutil.ControllerMetrics
}

func (r *Reconciler) SetupWithManager(mgr ctrl.Manager) error {
	return ctrl.NewControllerManagedBy(mgr).
		Named("consumer").
		For(&vpnv1.Consumer{}).
		Owns(&corev1.Secret{}).
		Complete(r)
}

func (r *Reconciler) Reconcile(ctx context.Context, req ctrl.Request) (ctrl.Result, error) {
	log := ctrl.LoggerFrom(ctx)

	var con vpnv1.Consumer
	if err := r.Client.Get(ctx, req.NamespacedName, &con); err != nil {
		return ctrl.Result{}, client.IgnoreNotFound(err)
	}

	start := time.Now()
	act, err := r.determineAction(ctx, &con)
	if r.Metrics != nil {
		r.Metrics.ObserveRead(con.Name, con.Namespace, actionLabel(act), time.Since(start))
	}
	if err != nil {
		log.Error(err, "determine action", "consumer", req.NamespacedName)
		return ctrl.Result{RequeueAfter: vpnutil.ErrorRequeueInterval}, nil
	}

	start = time.Now()
	result, err := r.apply(ctx, &con, act)
	if r.Metrics != nil {
		r.Metrics.ObserveWrite(con.Name, con.Namespace, actionLabel(act), time.Since(start))
		r.Metrics.ReconcileCounter.WithLabelValues(con.Name, con.Namespace).Inc()
		r.Metrics.ActionCounter.WithLabelValues(con.Name, con.Namespace, actionLabel(act)).Inc()
	}
	if err != nil {
		log.Error(err, "apply action", "consumer", req.NamespacedName, "action", actionLabel(act))
		return ctrl.Result{RequeueAfter: vpnutil.ErrorRequeueInterval}, nil
	}
	return result, nil
}

func (r *Reconciler) determineAction(ctx context.Context, con *vpnv1.Consumer) (action, error) {
	if con.DeletionTimestamp != nil {
		return actionDelete, nil
	}
	if !vpnutil.HasFinalizer(con) || con.Status.Phase == "" {
		return actionPending, nil
	}
	if con.Status.Provider == nil {
		return actionAssign, nil
	}

	invalid, err := reservationInvalid(ctx, r.Client, con)
	if err != nil {
		return actionNoOp, err
	}
	if invalid {
		return actionReservationInvalid, nil
	}

	secretName := projectedSecretName(con.Name, con.Status.Provider.UID)
	var secret corev1.Secret
	err = r.Client.Get(ctx, client.ObjectKey{Name: secretName, Namespace: con.Namespace}, &secret)
	if apierrors.IsNotFound(err) {
		return actionSecretProjection, nil
	}
	if err != nil {
		return actionNoOp, vpnutil.Classify(err)
	}

	return actionActiveHeartbeat, nil
}

// reservationInvalid reports whether the Reservation backing con's
// assignment is missing or uid-mismatched, meaning the assignment has been
// invalidated out from under the Consumer.
func reservationInvalid(ctx context.Context, c client.Client, con *vpnv1.Consumer) (bool, error) {
	ap := con.Status.Provider
	var res vpnv1.Reservation
	key := client.ObjectKey{Name: alloc.ReservationName(ap.Name, ap.Slot), Namespace: ap.Namespace}
	err := c.Get(ctx, key, &res)
	switch {
	case apierrors.IsNotFound(err):
		return true, nil
	case err != nil:
		return false, vpnutil.Classify(err)
	}
	return string(res.UID) != ap.Reservation, nil
}

func projectedSecretName(consumerName, providerUID string) string {
	return fmt.Sprintf("%s-%s", consumerName, providerUID)
}

func (r *Reconciler) apply(ctx context.Context, con *vpnv1.Consumer, act action) (ctrl.Result, error) {
	switch act {
	case actionDelete:
		if err := vpnutil.RemoveFinalizer(ctx, r.Client, con); err != nil {
			return ctrl.Result{}, err
		}
		return ctrl.Result{}, nil

	case actionPending:
		if err := vpnutil.AddFinalizer(ctx, r.Client, con); err != nil {
			return ctrl.Result{}, err
		}
		if err := vpnutil.PatchStatus(ctx, r.Client, con, func(c *vpnv1.Consumer) {
			c.Status.Phase = vpnv1.ConsumerPending
			c.Status.Message = vpnutil.MsgPending
		}); err != nil {
			return ctrl.Result{}, err
		}
		return ctrl.Result{Requeue: true}, nil

	case actionAssign:
		return r.applyAssign(ctx, con)

	case actionReservationInvalid:
		// The assignment has been invalidated beneath us: self-delete so
		// the owning Mask observes Consumer absence and recreates it.
		if err := r.Client.Delete(ctx, con); err != nil && !apierrors.IsNotFound(err) {
			return ctrl.Result{}, vpnutil.Classify(err)
		}
		return ctrl.Result{}, nil

	case actionSecretProjection:
		return r.applySecretProjection(ctx, con)

	case actionActiveHeartbeat:
		if con.Status.Phase == vpnv1.ConsumerActive && !stale(con.Status.LastUpdated) {
			return ctrl.Result{RequeueAfter: vpnutil.ProbeInterval}, nil
		}
		if err := vpnutil.PatchStatus(ctx, r.Client, con, func(c *vpnv1.Consumer) {
			c.Status.Phase = vpnv1.ConsumerActive
			c.Status.Message = vpnutil.MsgActive
		}); err != nil {
			return ctrl.Result{}, err
		}
		return ctrl.Result{RequeueAfter: vpnutil.ProbeInterval}, nil
	}

	return ctrl.Result{RequeueAfter: vpnutil.ProbeInterval}, nil
}

func (r *Reconciler) applyAssign(ctx context.Context, con *vpnv1.Consumer) (ctrl.Result, error) {
	req := alloc.Request{
		Name:      con.Name,
		Namespace: con.Namespace,
		UID:       string(con.UID),
		Providers: con.Spec.Providers,
	}
	if uid, ok := con.Labels[vpnutil.VerifyLabel]; ok {
		req.ForceProviderUID = uid
	}

	result, err := alloc.Assign(ctx, r.Client, req)
	switch {
	case err == alloc.ErrNoProviders:
		if perr := vpnutil.PatchStatus(ctx, r.Client, con, func(c *vpnv1.Consumer) {
			c.Status.Phase = vpnv1.ConsumerErrNoProviders
			c.Status.Message = vpnutil.MsgErrNoProviders
		}); perr != nil {
			return ctrl.Result{}, perr
		}
		return ctrl.Result{RequeueAfter: vpnutil.ProbeInterval}, nil
	case err != nil:
		return ctrl.Result{}, err
	case result == nil:
		if perr := vpnutil.PatchStatus(ctx, r.Client, con, func(c *vpnv1.Consumer) {
			c.Status.Phase = vpnv1.ConsumerWaiting
			c.Status.Message = vpnutil.MsgWaiting
		}); perr != nil {
			return ctrl.Result{}, perr
		}
		return ctrl.Result{RequeueAfter: vpnutil.ProbeInterval}, nil
	}

	if err := vpnutil.PatchStatus(ctx, r.Client, con, func(c *vpnv1.Consumer) {
		c.Status.Phase = vpnv1.ConsumerWaiting
		c.Status.Message = vpnutil.MsgWaiting
		c.Status.Provider = &vpnv1.AssignedProvider{
			Name:        result.Provider.Name,
			Namespace:   result.Provider.Namespace,
			UID:         string(result.Provider.UID),
			Slot:        result.Slot,
			Reservation: result.ReservationUID,
			Secret:      projectedSecretName(c.Name, string(result.Provider.UID)),
		}
	}); err != nil {
		return ctrl.Result{}, err
	}
	return ctrl.Result{Requeue: true}, nil
}

func (r *Reconciler) applySecretProjection(ctx context.Context, con *vpnv1.Consumer) (ctrl.Result, error) {
	ap := con.Status.Provider

	var provider vpnv1.Provider
	if err := r.Client.Get(ctx, client.ObjectKey{Name: ap.Name, Namespace: ap.Namespace}, &provider); err != nil {
		return ctrl.Result{}, vpnutil.Classify(err)
	}

	var src corev1.Secret
	if err := r.Client.Get(ctx, client.ObjectKey{Name: provider.Spec.Secret, Namespace: provider.Namespace}, &src); err != nil {
		return ctrl.Result{}, vpnutil.Classify(err)
	}

	controller := true
	projected := &corev1.Secret{
		ObjectMeta: metav1.ObjectMeta{
			Name:      projectedSecretName(con.Name, ap.UID),
			Namespace: con.Namespace,
			Labels: map[string]string{
				vpnutil.OwnerUIDLabel: ap.UID,
			},
			OwnerReferences: []metav1.OwnerReference{
				{
					APIVersion: vpnv1.SchemeGroupVersion.String(),
					Kind:       "Consumer",
					Name:       con.Name,
					UID:        con.UID,
					Controller: &controller,
				},
			},
		},
		Data: src.Data,
	}
	if err := r.Client.Create(ctx, projected); err != nil && !apierrors.IsAlreadyExists(err) {
		return ctrl.Result{}, vpnutil.Classify(err)
	}
	return ctrl.Result{Requeue: true}, nil
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
	case actionDelete:
		return "delete"
	case actionPending:
		return "pending"
	case actionAssign:
		return "assign"
	case actionReservationInvalid:
		return "reservation_invalid"
	case actionSecretProjection:
		return "secret_projection"
	case actionActiveHeartbeat:
		return "active_heartbeat"
	default:
		return "noop"
	}
}

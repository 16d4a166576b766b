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

// Package maskctrl reconciles Mask objects: the user-facing request for
// VPN credentials, each owning exactly one Consumer.
package maskctrl

import (
	"context"
	"time"

	vpnv1 "github.com/beebs-dev/vpn-operator/apis/vpn/v1"
	"github.com/beebs-dev/vpn-operator/internal/vpnutil"
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
	actionCreateConsumer
	actionPhaseMirror
)

// Reconciler drives a single Mask through its lifecycle.
type Reconciler struct {
	Client  client.Client
	Metrics *vpnutil.ControllerMetrics
}

func (r *Reconciler) SetupWithManager(mgr ctrl.Manager) error {
	return ctrl.NewControllerManagedBy(mgr).
		Named("mask").
		For(&vpnv1.Mask{}).
		Owns(&vpnv1.Consumer{}).
		Complete(r)
}

func (r *Reconciler) Reconcile(ctx context.Context, req ctrl.Request) (ctrl.Result, error) {
	log := ctrl.LoggerFrom(ctx)

	var mask vpnv1.Mask
	if err := r.Client.Get(ctx, req.NamespacedName, &mask); err != nil {
		return ctrl.Result{}, client.IgnoreNotFound(err)
	}

	start := time.Now()
	act, consumer, err := r.determineAction(ctx, &mask)
	if r.Metrics != nil {
		r.Metrics.ObserveRead(mask.Name, mask.Namespace, actionLabel(act), time.Since(start))
	}
	if err != nil {
		log.Error(err, "determine action", "mask", req.NamespacedName)
		return ctrl.Result{RequeueAfter: vpnutil.ErrorRequeueInterval}, nil
	}

	start = time.Now()
	result, err := r.apply(ctx, &mask, act, consumer)
	if r.Metrics != nil {
		r.Metrics.ObserveWrite(mask.Name, mask.Namespace, actionLabel(act), time.Since(start))
		r.Metrics.ReconcileCounter.WithLabelValues(mask.Name, mask.Namespace).Inc()
		r.Metrics.ActionCounter.WithLabelValues(mask.Name, mask.Namespace, actionLabel(act)).Inc()
	}
	if err != nil {
		log.Error(err, "apply action", "mask", req.NamespacedName, "action", actionLabel(act))
		return ctrl.Result{RequeueAfter: vpnutil.ErrorRequeueInterval}, nil
	}
	return result, nil
}

// determineAction returns the action to take and, when relevant, the
// Mask's child Consumer as already observed (nil if it does not exist).
func (r *Reconciler) determineAction(ctx context.Context, mask *vpnv1.Mask) (action, *vpnv1.Consumer, error) {
	if mask.DeletionTimestamp != nil {
		return actionDelete, nil, nil
	}
	if !vpnutil.HasFinalizer(mask) || mask.Status.Phase == "" {
		return actionPending, nil, nil
	}

	var consumer vpnv1.Consumer
	err := r.Client.Get(ctx, client.ObjectKey{Name: mask.Name, Namespace: mask.Namespace}, &consumer)
	if apierrors.IsNotFound(err) {
		return actionCreateConsumer, nil, nil
	}
	if err != nil {
		return actionNoOp, nil, vpnutil.Classify(err)
	}
	if !ownedByMask(&consumer, mask) {
		return actionCreateConsumer, nil, nil
	}
	return actionPhaseMirror, &consumer, nil
}

func ownedByMask(con *vpnv1.Consumer, mask *vpnv1.Mask) bool {
	for _, ref := range con.OwnerReferences {
		if ref.UID == mask.UID {
			return true
		}
	}
	return false
}

func (r *Reconciler) apply(ctx context.Context, mask *vpnv1.Mask, act action, consumer *vpnv1.Consumer) (ctrl.Result, error) {
	switch act {
	case actionDelete:
		if err := vpnutil.RemoveFinalizer(ctx, r.Client, mask); err != nil {
			return ctrl.Result{}, err
		}
		return ctrl.Result{}, nil

	case actionPending:
		if err := vpnutil.AddFinalizer(ctx, r.Client, mask); err != nil {
			return ctrl.Result{}, err
		}
		if err := vpnutil.PatchStatus(ctx, r.Client, mask, func(m *vpnv1.Mask) {
			m.Status.Phase = vpnv1.MaskPending
			m.Status.Message = vpnutil.MsgPending
		}); err != nil {
			return ctrl.Result{}, err
		}
		return ctrl.Result{Requeue: true}, nil

	case actionCreateConsumer:
		return r.applyCreateConsumer(ctx, mask)

	case actionPhaseMirror:
		return r.applyPhaseMirror(ctx, mask, consumer)
	}

	return ctrl.Result{RequeueAfter: vpnutil.ProbeInterval}, nil
}

func (r *Reconciler) applyCreateConsumer(ctx context.Context, mask *vpnv1.Mask) (ctrl.Result, error) {
	controller := true
	consumer := &vpnv1.Consumer{
		ObjectMeta: metav1.ObjectMeta{
			Name:      mask.Name,
			Namespace: mask.Namespace,
			OwnerReferences: []metav1.OwnerReference{
				{
					APIVersion: vpnv1.SchemeGroupVersion.String(),
					Kind:       "Mask",
					Name:       mask.Name,
					UID:        mask.UID,
					Controller: &controller,
				},
			},
		},
		Spec: vpnv1.ConsumerSpec{Providers: mask.Spec.Providers},
	}
	if uid, ok := mask.Labels[vpnutil.VerifyLabel]; ok {
		if consumer.Labels == nil {
			consumer.Labels = map[string]string{}
		}
		consumer.Labels[vpnutil.VerifyLabel] = uid
	}
	if err := r.Client.Create(ctx, consumer); err != nil && !apierrors.IsAlreadyExists(err) {
		return ctrl.Result{}, vpnutil.Classify(err)
	}
	if err := vpnutil.PatchStatus(ctx, r.Client, mask, func(m *vpnv1.Mask) {
		m.Status.Phase = vpnv1.MaskWaiting
		m.Status.Message = vpnutil.MsgWaiting
	}); err != nil {
		return ctrl.Result{}, err
	}
	return ctrl.Result{Requeue: true}, nil
}

func (r *Reconciler) applyPhaseMirror(ctx context.Context, mask *vpnv1.Mask, consumer *vpnv1.Consumer) (ctrl.Result, error) {
	want := mirrorPhase(consumer.Status.Phase)
	if mask.Status.Phase == want && !stale(mask.Status.LastUpdated) {
		return ctrl.Result{RequeueAfter: vpnutil.ProbeInterval}, nil
	}
	if err := vpnutil.PatchStatus(ctx, r.Client, mask, func(m *vpnv1.Mask) {
		m.Status.Phase = want
		m.Status.Message = mirrorMessage(want)
	}); err != nil {
		return ctrl.Result{}, err
	}
	return ctrl.Result{RequeueAfter: vpnutil.ProbeInterval}, nil
}

func mirrorPhase(consumerPhase vpnv1.ConsumerPhase) vpnv1.MaskPhase {
	switch consumerPhase {
	case vpnv1.ConsumerActive:
		return vpnv1.MaskActive
	case vpnv1.ConsumerErrNoProviders:
		return vpnv1.MaskErrNoProviders
	case vpnv1.ConsumerPending, vpnv1.ConsumerWaiting, vpnv1.ConsumerTerminating:
		return vpnv1.MaskWaiting
	default:
		return vpnv1.MaskWaiting
	}
}

func mirrorMessage(phase vpnv1.MaskPhase) string {
	switch phase {
	case vpnv1.MaskActive:
		return vpnutil.MsgActive
	case vpnv1.MaskErrNoProviders:
		return vpnutil.MsgErrNoProviders
	default:
		return vpnutil.MsgWaiting
	}
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
	case actionCreateConsumer:
		return "create_consumer"
	case actionPhaseMirror:
		return "phase_mirror"
	default:
		return "noop"
	}
}

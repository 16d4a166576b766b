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

// Package providerctrl reconciles Provider objects: publishing capacity
// and, optionally, proving that the underlying credentials actually
// establish a working VPN tunnel.
package providerctrl

import (
	"context"
	"fmt"
	"time"

	vpnv1 "github.com/beebs-dev/vpn-operator/apis/vpn/v1"
	"github.com/beebs-dev/vpn-operator/internal/vpnutil"
	corev1 "k8s.io/api/core/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"sigs.k8s.io/controller-runtime/pkg/client"

	ctrl "sigs.k8s.io/controller-runtime"
)

type actionKind int

const (
	actionNoOp actionKind = iota
	actionDelete
	actionPending
	actionAddFinalizer
	actionSecretNotFound
	actionVerifyCreateMask
	actionVerifyWaitMask
	actionVerifyCreatePod
	actionVerifyClassify
	actionVerifyRestart
	actionCapacityPublish
)

// plan is what determineAction decides to do, plus whatever it read along
// the way so apply doesn't need to re-fetch it.
type plan struct {
	kind      actionKind
	message   string
	secret    *corev1.Secret
	verifyPod *corev1.Pod
	outcome   verifyOutcome
}

// Reconciler drives a single Provider through its lifecycle.
type Reconciler struct {
	Client  client.Client
	Metrics *vpnutil.ControllerMetrics
}

func (r *Reconciler) SetupWithManager(mgr ctrl.Manager) error {
	return ctrl.NewControllerManagedBy(mgr).
		Named("provider").
		For(&vpnv1.Provider{}).
		Complete(r)
}

func (r *Reconciler) Reconcile(ctx context.Context, req ctrl.Request) (ctrl.Result, error) {
	log := ctrl.LoggerFrom(ctx)

	var provider vpnv1.Provider
	if err := r.Client.Get(ctx, req.NamespacedName, &provider); err != nil {
		return ctrl.Result{}, client.IgnoreNotFound(err)
	}

	start := time.Now()
	p, err := r.determineAction(ctx, &provider)
	if r.Metrics != nil {
		r.Metrics.ObserveRead(provider.Name, provider.Namespace, actionLabel(p.kind), time.Since(start))
	}
	if err != nil {
		log.Error(err, "determine action", "provider", req.NamespacedName)
		return ctrl.Result{RequeueAfter: vpnutil.ErrorRequeueInterval}, nil
	}

	start = time.Now()
	result, err := r.apply(ctx, &provider, p)
	if r.Metrics != nil {
		r.Metrics.ObserveWrite(provider.Name, provider.Namespace, actionLabel(p.kind), time.Since(start))
		r.Metrics.ReconcileCounter.WithLabelValues(provider.Name, provider.Namespace).Inc()
		r.Metrics.ActionCounter.WithLabelValues(provider.Name, provider.Namespace, actionLabel(p.kind)).Inc()
	}
	if err != nil {
		log.Error(err, "apply action", "provider", req.NamespacedName, "action", actionLabel(p.kind))
		return ctrl.Result{RequeueAfter: vpnutil.ErrorRequeueInterval}, nil
	}
	return result, nil
}

func verifyMaskName(provider *vpnv1.Provider) string {
	return provider.Name + vpnutil.VerifySuffix
}

func verifyPodName(provider *vpnv1.Provider) string {
	return provider.Name + vpnutil.VerifySuffix
}

func verifyEnabled(provider *vpnv1.Provider) bool {
	return provider.Spec.Verify == nil || provider.Spec.Verify.Skip == nil || !*provider.Spec.Verify.Skip
}

func verifyTimeout(provider *vpnv1.Provider) (time.Duration, error) {
	if provider.Spec.Verify == nil || provider.Spec.Verify.Timeout == "" {
		return vpnutil.DefaultVerifyTimeout, nil
	}
	d, err := time.ParseDuration(provider.Spec.Verify.Timeout)
	if err != nil {
		return 0, vpnutil.NewUserInputError(fmt.Sprintf("invalid verify.timeout: %v", err))
	}
	return d, nil
}

func verifyInterval(provider *vpnv1.Provider) (time.Duration, bool, error) {
	if provider.Spec.Verify == nil || provider.Spec.Verify.Interval == "" {
		return 0, false, nil
	}
	d, err := time.ParseDuration(provider.Spec.Verify.Interval)
	if err != nil {
		return 0, false, vpnutil.NewUserInputError(fmt.Sprintf("invalid verify.interval: %v", err))
	}
	return d, true, nil
}

func (r *Reconciler) determineAction(ctx context.Context, provider *vpnv1.Provider) (plan, error) {
	if provider.DeletionTimestamp != nil {
		return plan{kind: actionDelete}, nil
	}
	if provider.Status.Phase == "" {
		return plan{kind: actionPending}, nil
	}
	if !vpnutil.HasFinalizer(provider) {
		return plan{kind: actionAddFinalizer}, nil
	}

	var secret corev1.Secret
	err := r.Client.Get(ctx, client.ObjectKey{Name: provider.Spec.Secret, Namespace: provider.Namespace}, &secret)
	if apierrors.IsNotFound(err) {
		return plan{kind: actionSecretNotFound}, nil
	}
	if err != nil {
		return plan{}, vpnutil.Classify(err)
	}

	if verifyEnabled(provider) {
		if p, ok, err := r.planVerification(ctx, provider, &secret); err != nil {
			return plan{}, err
		} else if ok {
			return p, nil
		}
	}

	return plan{kind: actionCapacityPublish, secret: &secret}, nil
}

// planVerification returns (plan, true, nil) when the verification
// subgraph has something to do this pass, or (plan{}, false, nil) when
// verification is settled and capacity-publish should run instead.
func (r *Reconciler) planVerification(ctx context.Context, provider *vpnv1.Provider, secret *corev1.Secret) (plan, bool, error) {
	var mask vpnv1.Mask
	err := r.Client.Get(ctx, client.ObjectKey{Name: verifyMaskName(provider), Namespace: provider.Namespace}, &mask)
	switch {
	case apierrors.IsNotFound(err):
		if provider.Status.Phase == vpnv1.ProviderVerified || provider.Status.Phase == vpnv1.ProviderReady || provider.Status.Phase == vpnv1.ProviderActive {
			if restart, ok, err := r.planRestart(provider); err != nil {
				return plan{}, false, err
			} else if ok {
				return restart, true, nil
			}
			return plan{}, false, nil
		}
		return plan{kind: actionVerifyCreateMask}, true, nil
	case err != nil:
		return plan{}, false, vpnutil.Classify(err)
	}

	var pod corev1.Pod
	err = r.Client.Get(ctx, client.ObjectKey{Name: verifyPodName(provider), Namespace: provider.Namespace}, &pod)
	switch {
	case apierrors.IsNotFound(err):
		switch mask.Status.Phase {
		case vpnv1.MaskActive:
			return plan{kind: actionVerifyCreatePod, secret: secret}, true, nil
		case vpnv1.MaskErrNoProviders:
			return plan{kind: actionVerifyClassify, outcome: verifyFailed, message: "verify mask reported no eligible providers"}, true, nil
		default:
			return plan{kind: actionVerifyWaitMask, message: "Creating Mask"}, true, nil
		}
	case err != nil:
		return plan{}, false, vpnutil.Classify(err)
	}

	timeout, err := verifyTimeout(provider)
	if err != nil {
		return plan{}, false, err
	}
	outcome, msg := classifyPod(&pod, timeout, time.Now())
	switch outcome {
	case verifyPending, verifyRunning:
		return plan{kind: actionVerifyWaitMask, message: "Verifying"}, true, nil
	default:
		return plan{kind: actionVerifyClassify, outcome: outcome, message: msg, verifyPod: &pod}, true, nil
	}
}

func (r *Reconciler) planRestart(provider *vpnv1.Provider) (plan, bool, error) {
	interval, ok, err := verifyInterval(provider)
	if err != nil {
		return plan{}, false, err
	}
	if !ok {
		return plan{}, false, nil
	}
	last, err := time.Parse(time.RFC3339, provider.Status.LastVerified)
	if err != nil || time.Since(last) >= interval {
		return plan{kind: actionVerifyRestart}, true, nil
	}
	return plan{}, false, nil
}

func (r *Reconciler) apply(ctx context.Context, provider *vpnv1.Provider, p plan) (ctrl.Result, error) {
	switch p.kind {
	case actionDelete:
		return r.applyDelete(ctx, provider)

	case actionPending:
		if err := vpnutil.PatchStatus(ctx, r.Client, provider, func(pr *vpnv1.Provider) {
			pr.Status.Phase = vpnv1.ProviderPending
			pr.Status.Message = "Resource first appeared to the controller."
		}); err != nil {
			return ctrl.Result{}, err
		}
		if err := vpnutil.AddFinalizer(ctx, r.Client, provider); err != nil {
			return ctrl.Result{}, err
		}
		return ctrl.Result{Requeue: true}, nil

	case actionAddFinalizer:
		if err := vpnutil.AddFinalizer(ctx, r.Client, provider); err != nil {
			return ctrl.Result{}, err
		}
		return ctrl.Result{Requeue: true}, nil

	case actionSecretNotFound:
		if err := vpnutil.PatchStatus(ctx, r.Client, provider, func(pr *vpnv1.Provider) {
			pr.Status.Phase = vpnv1.ProviderErrSecretNotFound
			pr.Status.Message = fmt.Sprintf("secret %q not found", provider.Spec.Secret)
		}); err != nil {
			return ctrl.Result{}, err
		}
		return ctrl.Result{RequeueAfter: vpnutil.ErrorRequeueInterval}, nil

	case actionVerifyCreateMask:
		return r.applyVerifyCreateMask(ctx, provider)

	case actionVerifyWaitMask:
		if err := vpnutil.PatchStatus(ctx, r.Client, provider, func(pr *vpnv1.Provider) {
			pr.Status.Phase = vpnv1.ProviderVerifying
			pr.Status.Message = p.message
		}); err != nil {
			return ctrl.Result{}, err
		}
		return ctrl.Result{RequeueAfter: vpnutil.ProbeInterval}, nil

	case actionVerifyCreatePod:
		return r.applyVerifyCreatePod(ctx, provider, p.secret)

	case actionVerifyClassify:
		return r.applyVerifyClassify(ctx, provider, p)

	case actionVerifyRestart:
		return r.applyVerifyRestart(ctx, provider)

	case actionCapacityPublish:
		return r.applyCapacityPublish(ctx, provider)
	}

	return ctrl.Result{RequeueAfter: vpnutil.ProbeInterval}, nil
}

func (r *Reconciler) applyDelete(ctx context.Context, provider *vpnv1.Provider) (ctrl.Result, error) {
	pod := &corev1.Pod{}
	pod.Name, pod.Namespace = verifyPodName(provider), provider.Namespace
	if err := r.Client.Delete(ctx, pod); err != nil && !apierrors.IsNotFound(err) {
		return ctrl.Result{}, vpnutil.Classify(err)
	}
	mask := &vpnv1.Mask{}
	mask.Name, mask.Namespace = verifyMaskName(provider), provider.Namespace
	if err := r.Client.Delete(ctx, mask); err != nil && !apierrors.IsNotFound(err) {
		return ctrl.Result{}, vpnutil.Classify(err)
	}

	var consumers vpnv1.ConsumerList
	if err := r.Client.List(ctx, &consumers); err != nil {
		return ctrl.Result{}, vpnutil.Classify(err)
	}
	for i := range consumers.Items {
		con := &consumers.Items[i]
		if con.Status.Provider == nil || con.Status.Provider.UID != string(provider.UID) {
			continue
		}
		secretName := con.Status.Provider.Secret
		if err := vpnutil.PatchStatus(ctx, r.Client, con, func(c *vpnv1.Consumer) {
			c.Status.Provider = nil
			c.Status.Phase = vpnv1.ConsumerWaiting
			c.Status.Message = vpnutil.MsgWaiting
		}); err != nil {
			return ctrl.Result{}, err
		}
		if secretName != "" {
			secret := &corev1.Secret{}
			secret.Name, secret.Namespace = secretName, con.Namespace
			if err := r.Client.Delete(ctx, secret); err != nil && !apierrors.IsNotFound(err) {
				return ctrl.Result{}, vpnutil.Classify(err)
			}
		}
	}

	if err := vpnutil.RemoveFinalizer(ctx, r.Client, provider); err != nil {
		return ctrl.Result{}, err
	}
	return ctrl.Result{}, nil
}

func (r *Reconciler) applyVerifyCreateMask(ctx context.Context, provider *vpnv1.Provider) (ctrl.Result, error) {
	mask := &vpnv1.Mask{}
	mask.Name, mask.Namespace = verifyMaskName(provider), provider.Namespace
	mask.Labels = map[string]string{vpnutil.VerifyLabel: string(provider.UID)}
	if err := r.Client.Create(ctx, mask); err != nil && !apierrors.IsAlreadyExists(err) {
		return ctrl.Result{}, vpnutil.Classify(err)
	}
	if err := vpnutil.PatchStatus(ctx, r.Client, provider, func(pr *vpnv1.Provider) {
		pr.Status.Phase = vpnv1.ProviderVerifying
		pr.Status.Message = "Creating Mask"
	}); err != nil {
		return ctrl.Result{}, err
	}
	return ctrl.Result{Requeue: true}, nil
}

func (r *Reconciler) applyVerifyCreatePod(ctx context.Context, provider *vpnv1.Provider, secret *corev1.Secret) (ctrl.Result, error) {
	pod, err := buildVerifyPod(verifyPodName(provider), provider, secret)
	if err != nil {
		return ctrl.Result{}, vpnutil.NewUserInputError(fmt.Sprintf("build verify pod: %v", err))
	}
	if err := r.Client.Create(ctx, pod); err != nil && !apierrors.IsAlreadyExists(err) {
		return ctrl.Result{}, vpnutil.Classify(err)
	}
	if err := vpnutil.PatchStatus(ctx, r.Client, provider, func(pr *vpnv1.Provider) {
		pr.Status.Phase = vpnv1.ProviderVerifying
		pr.Status.Message = "Verifying"
	}); err != nil {
		return ctrl.Result{}, err
	}
	return ctrl.Result{Requeue: true}, nil
}

func (r *Reconciler) applyVerifyClassify(ctx context.Context, provider *vpnv1.Provider, p plan) (ctrl.Result, error) {
	if p.verifyPod != nil {
		if err := r.Client.Delete(ctx, p.verifyPod); err != nil && !apierrors.IsNotFound(err) {
			return ctrl.Result{}, vpnutil.Classify(err)
		}
	}
	mask := &vpnv1.Mask{}
	mask.Name, mask.Namespace = verifyMaskName(provider), provider.Namespace
	if err := r.Client.Delete(ctx, mask); err != nil && !apierrors.IsNotFound(err) {
		return ctrl.Result{}, vpnutil.Classify(err)
	}

	if p.outcome == verifyVerified {
		if err := vpnutil.PatchStatus(ctx, r.Client, provider, func(pr *vpnv1.Provider) {
			pr.Status.Phase = vpnv1.ProviderVerified
			pr.Status.Message = "Credentials verified"
			pr.Status.LastVerified = time.Now().UTC().Format(time.RFC3339)
		}); err != nil {
			return ctrl.Result{}, err
		}
		return ctrl.Result{Requeue: true}, nil
	}

	if err := vpnutil.PatchStatus(ctx, r.Client, provider, func(pr *vpnv1.Provider) {
		pr.Status.Phase = vpnv1.ProviderErrVerifyFailed
		pr.Status.Message = p.message
	}); err != nil {
		return ctrl.Result{}, err
	}
	return ctrl.Result{RequeueAfter: vpnutil.ErrorRequeueInterval}, nil
}

func (r *Reconciler) applyVerifyRestart(ctx context.Context, provider *vpnv1.Provider) (ctrl.Result, error) {
	return r.applyVerifyCreateMask(ctx, provider)
}

func (r *Reconciler) applyCapacityPublish(ctx context.Context, provider *vpnv1.Provider) (ctrl.Result, error) {
	var list vpnv1.ReservationList
	if err := r.Client.List(ctx, &list, client.InNamespace(provider.Namespace)); err != nil {
		return ctrl.Result{}, vpnutil.Classify(err)
	}
	active := 0
	for _, res := range list.Items {
		if ownedByProvider(res.OwnerReferences, provider) {
			active++
		}
	}
	if provider.Spec.MaxSlots > 0 && active > provider.Spec.MaxSlots {
		active = provider.Spec.MaxSlots
	}

	want := vpnv1.ProviderReady
	if active > 0 {
		want = vpnv1.ProviderActive
	}
	if provider.Status.Phase == want && provider.Status.ActiveSlots == active && !stale(provider.Status.LastUpdated) {
		return ctrl.Result{RequeueAfter: vpnutil.ProbeInterval}, nil
	}
	if err := vpnutil.PatchStatus(ctx, r.Client, provider, func(pr *vpnv1.Provider) {
		pr.Status.Phase = want
		pr.Status.ActiveSlots = active
		if want == vpnv1.ProviderActive {
			pr.Status.Message = vpnutil.MsgActive
		} else {
			pr.Status.Message = "Ready to accept Consumers"
		}
	}); err != nil {
		return ctrl.Result{}, err
	}
	return ctrl.Result{RequeueAfter: vpnutil.ProbeInterval}, nil
}

func ownedByProvider(refs []metav1.OwnerReference, provider *vpnv1.Provider) bool {
	for _, ref := range refs {
		if ref.UID == provider.UID {
			return true
		}
	}
	return false
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

func actionLabel(kind actionKind) string {
	switch kind {
	case actionDelete:
		return "delete"
	case actionPending:
		return "pending"
	case actionAddFinalizer:
		return "add_finalizer"
	case actionSecretNotFound:
		return "secret_not_found"
	case actionVerifyCreateMask:
		return "verify_create_mask"
	case actionVerifyWaitMask:
		return "verify_wait_mask"
	case actionVerifyCreatePod:
		return "verify_create_pod"
	case actionVerifyClassify:
		return "verify_classify"
	case actionVerifyRestart:
		return "verify_restart"
	case actionCapacityPublish:
		return "capacity_publish"
	default:
		return "noop"
	}
}

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

package providerctrl

import (
	"time"

	corev1 "k8s.io/api/core/v1"
)

// verifyOutcome is the result of classifying a verification Pod.
type verifyOutcome int

const (
	verifyPending verifyOutcome = iota
	verifyRunning
	verifyVerified
	verifyFailed
)

// classifyPod inspects pod against the timeout budget (measured from the
// pod's creation timestamp) and reports the verification outcome. A
// successful probe is not necessarily Pod phase Succeeded: the VPN
// container must be running and the probe container must have terminated
// with exit code 0. That combined container-status signal overrides the
// raw Pod phase.
func classifyPod(pod *corev1.Pod, timeout time.Duration, now time.Time) (verifyOutcome, string) {
	if vpnRunning(pod) && probeSucceeded(pod) {
		return verifyVerified, ""
	}

	switch pod.Status.Phase {
	case corev1.PodPending:
		if cond := scheduledCondition(pod); cond != nil && cond.Status == corev1.ConditionFalse {
			return verifyFailed, cond.Message
		}
		if overTimeout(pod, timeout, now) {
			return verifyFailed, "verification pod did not start within timeout"
		}
		return verifyPending, ""

	case corev1.PodRunning:
		if overTimeout(pod, timeout, now) {
			return verifyFailed, "verification pod did not connect within timeout"
		}
		return verifyRunning, ""

	case corev1.PodSucceeded:
		// Legacy fallback: treat a cleanly-exited pod as verified even
		// without the container-status signal above.
		return verifyVerified, ""

	default:
		return verifyFailed, "verification pod in unexpected phase " + string(pod.Status.Phase)
	}
}

func vpnRunning(pod *corev1.Pod) bool {
	for _, cs := range pod.Status.ContainerStatuses {
		if cs.Name == vpnContainerName {
			return cs.State.Running != nil
		}
	}
	return false
}

func probeSucceeded(pod *corev1.Pod) bool {
	for _, cs := range pod.Status.ContainerStatuses {
		if cs.Name == probeContainerName {
			return cs.State.Terminated != nil && cs.State.Terminated.ExitCode == 0
		}
	}
	return false
}

func scheduledCondition(pod *corev1.Pod) *corev1.PodCondition {
	for i := range pod.Status.Conditions {
		if pod.Status.Conditions[i].Type == corev1.PodScheduled {
			return &pod.Status.Conditions[i]
		}
	}
	return nil
}

func overTimeout(pod *corev1.Pod, timeout time.Duration, now time.Time) bool {
	created := pod.CreationTimestamp.Time
	if created.IsZero() {
		return false
	}
	return now.Sub(created) > timeout
}

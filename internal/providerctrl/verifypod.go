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
	"encoding/json"
	"sort"

	vpnv1 "github.com/beebs-dev/vpn-operator/apis/vpn/v1"
	"github.com/beebs-dev/vpn-operator/internal/vpnutil"
	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/runtime"
)

const (
	curlImage = "curlimages/curl:7.88.1"
	vpnImage  = "qmcgaw/gluetun:v3.32.0"
	ipService = "https://api.ipify.org"

	sharedVolumeName = "shared"
	sharedPath       = "/shared"
	ipFilePath       = sharedPath + "/ip"

	probeContainerName = "probe"
	vpnContainerName   = "vpn"
	initContainerName  = "init"

	probeScript = `#!/bin/sh
INITIAL_IP=$(cat $IP_FILE_PATH)
echo "Unmasked IP address is $INITIAL_IP"
IP=$(curl -s $IP_SERVICE)
while [ $? -ne 0 ] || [ "$IP" = "$INITIAL_IP" ]; do
    echo "Current IP address is $IP, sleeping for $SLEEP_TIME"
    sleep $SLEEP_TIME
    IP=$(curl -s $IP_SERVICE)
done
echo "VPN connected. Masked IP address: $IP"`
)

var sharedVolumeMount = corev1.VolumeMount{
	Name:      sharedVolumeName,
	MountPath: sharedPath,
}

// buildVerifyPod constructs the Pod used to prove a Provider's credential
// Secret actually establishes a VPN tunnel: an init container records the
// unmasked public IP, the VPN container (carrying the credential Secret as
// environment variables) brings the tunnel up, and a probe container polls
// the public IP until it changes.
func buildVerifyPod(name string, provider *vpnv1.Provider, secret *corev1.Secret) (*corev1.Pod, error) {
	init, err := mergeContainer(defaultInitContainer(), containerOverride(provider, func(o *vpnv1.VerifyContainerOverrides) *runtime.RawExtension { return o.Init }))
	if err != nil {
		return nil, err
	}
	vpn, err := mergeContainer(defaultVPNContainer(secret), containerOverride(provider, func(o *vpnv1.VerifyContainerOverrides) *runtime.RawExtension { return o.VPN }))
	if err != nil {
		return nil, err
	}
	probe, err := mergeContainer(defaultProbeContainer(), containerOverride(provider, func(o *vpnv1.VerifyContainerOverrides) *runtime.RawExtension { return o.Probe }))
	if err != nil {
		return nil, err
	}

	pod := &corev1.Pod{
		ObjectMeta: metav1.ObjectMeta{
			Name:      name,
			Namespace: provider.Namespace,
			Labels: map[string]string{
				vpnutil.AppLabel: vpnutil.ManagerName,
			},
		},
		Spec: corev1.PodSpec{
			RestartPolicy: corev1.RestartPolicyNever,
			InitContainers: []corev1.Container{
				init,
			},
			Containers: []corev1.Container{
				vpn,
				probe,
			},
			Volumes: []corev1.Volume{
				{
					Name:         sharedVolumeName,
					VolumeSource: corev1.VolumeSource{EmptyDir: &corev1.EmptyDirVolumeSource{}},
				},
			},
		},
	}

	if podOverride := podOverrideRaw(provider); podOverride != nil {
		return mergePodTemplate(pod, podOverride)
	}
	return pod, nil
}

func defaultInitContainer() corev1.Container {
	return corev1.Container{
		Name:            initContainerName,
		Image:           curlImage,
		ImagePullPolicy: corev1.PullIfNotPresent,
		Command:         []string{"curl", "-o", ipFilePath, "-s", ipService},
		VolumeMounts:    []corev1.VolumeMount{sharedVolumeMount},
	}
}

func defaultVPNContainer(secret *corev1.Secret) corev1.Container {
	var env []corev1.EnvVar
	keys := make([]string, 0, len(secret.Data))
	for k := range secret.Data {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, key := range keys {
		env = append(env, corev1.EnvVar{
			Name: key,
			ValueFrom: &corev1.EnvVarSource{
				SecretKeyRef: &corev1.SecretKeySelector{
					LocalObjectReference: corev1.LocalObjectReference{Name: secret.Name},
					Key:                  key,
				},
			},
		})
	}
	return corev1.Container{
		Name:            vpnContainerName,
		Image:           vpnImage,
		ImagePullPolicy: corev1.PullIfNotPresent,
		Env:             env,
		SecurityContext: &corev1.SecurityContext{
			Capabilities: &corev1.Capabilities{Add: []corev1.Capability{"NET_ADMIN"}},
		},
	}
}

func defaultProbeContainer() corev1.Container {
	return corev1.Container{
		Name:            probeContainerName,
		Image:           curlImage,
		ImagePullPolicy: corev1.PullIfNotPresent,
		Command:         []string{"sh", "-c", `echo "$PROBE_SCRIPT" | sh -`},
		Env: []corev1.EnvVar{
			{Name: "PROBE_SCRIPT", Value: probeScript},
			{Name: "IP_SERVICE", Value: ipService},
			{Name: "IP_FILE_PATH", Value: ipFilePath},
			{Name: "SLEEP_TIME", Value: "10s"},
		},
		VolumeMounts: []corev1.VolumeMount{sharedVolumeMount},
	}
}

func containerOverride(provider *vpnv1.Provider, pick func(*vpnv1.VerifyContainerOverrides) *runtime.RawExtension) *runtime.RawExtension {
	if provider.Spec.Verify == nil || provider.Spec.Verify.Overrides == nil || provider.Spec.Verify.Overrides.Containers == nil {
		return nil
	}
	return pick(provider.Spec.Verify.Overrides.Containers)
}

func podOverrideRaw(provider *vpnv1.Provider) *runtime.RawExtension {
	if provider.Spec.Verify == nil || provider.Spec.Verify.Overrides == nil {
		return nil
	}
	return provider.Spec.Verify.Overrides.Pod
}

// mergeContainer JSON deep-merges override onto base, returning the
// merged container. A nil override is a no-op.
func mergeContainer(base corev1.Container, override *runtime.RawExtension) (corev1.Container, error) {
	if override == nil || len(override.Raw) == 0 {
		return base, nil
	}
	baseJSON, err := json.Marshal(base)
	if err != nil {
		return base, err
	}
	merged, err := vpnutil.MergeJSON(baseJSON, override.Raw)
	if err != nil {
		return base, err
	}
	var out corev1.Container
	if err := json.Unmarshal(merged, &out); err != nil {
		return base, err
	}
	return out, nil
}

// mergePodTemplate JSON deep-merges a whole-pod override onto the
// controller-built template. Used for tweaking fields outside the three
// named containers (e.g. node selector, tolerations).
func mergePodTemplate(pod *corev1.Pod, override *runtime.RawExtension) (*corev1.Pod, error) {
	if len(override.Raw) == 0 {
		return pod, nil
	}
	baseJSON, err := json.Marshal(pod)
	if err != nil {
		return pod, err
	}
	merged, err := vpnutil.MergeJSON(baseJSON, override.Raw)
	if err != nil {
		return pod, err
	}
	var out corev1.Pod
	if err := json.Unmarshal(merged, &out); err != nil {
		return pod, err
	}
	return &out, nil
}

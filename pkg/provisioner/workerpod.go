/*
Copyright 2017 The Kubernetes Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package provisioner

import (
	"context"
	"fmt"

	corev1 "k8s.io/api/core/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
)

// workerPodSpec describes the one worker pod the launcher knows how to
// build: a single container running the in-pod "zfs-dataset-helper" CLI
// with a fixed argv, scheduled (when a node is known) onto a specific
// node.
type workerPodSpec struct {
	Namespace    string
	Name         string
	NodeName     string // empty: not yet bound to a node
	Action       Action
	Args         []string
	ContainerImg string
	PVCName      string                        // the owning PVC's object name, always set
	OwnerPVC     *corev1.PersistentVolumeClaim // nil for delete-action pods
}

// buildWorkerPod renders the Pod object for spec. Grounded on the
// teacher's NewCleanupJob: a privileged single-container pod, labeled
// for the watcher to find, restarting only on failure since a worker
// pod never needs to run more than once successfully.
func buildWorkerPod(s workerPodSpec) *corev1.Pod {
	privileged := true
	pod := &corev1.Pod{
		ObjectMeta: metav1.ObjectMeta{
			Name:      s.Name,
			Namespace: s.Namespace,
			Labels: map[string]string{
				LabelAction:  string(s.Action),
				LabelPVCName: s.PVCName,
			},
		},
		Spec: corev1.PodSpec{
			RestartPolicy: corev1.RestartPolicyOnFailure,
			Containers: []corev1.Container{
				{
					Name:  "zfs-dataset-helper",
					Image: s.ContainerImg,
					Args:  s.Args,
					SecurityContext: &corev1.SecurityContext{
						Privileged: &privileged,
					},
				},
			},
		},
	}
	if s.NodeName != "" {
		pod.Spec.NodeName = s.NodeName
	}
	if s.OwnerPVC != nil {
		pod.OwnerReferences = []metav1.OwnerReference{
			*metav1.NewControllerRef(s.OwnerPVC, corev1.SchemeGroupVersion.WithKind("PersistentVolumeClaim")),
		}
	}
	return pod
}

// launchWorkerPod submits the worker pod to the API server and returns
// its current phase. AlreadyExists is squashed to success — the
// launcher fetches the existing pod's phase instead, which is the
// idempotency hinge spec.md §4.3 describes: a retried reconcile for the
// same (PVC, action) never creates a second worker.
func launchWorkerPod(ctx context.Context, api APIUtil, s workerPodSpec) (corev1.PodPhase, error) {
	pod := buildWorkerPod(s)
	created, err := api.CreatePod(ctx, pod)
	if err == nil {
		return created.Status.Phase, nil
	}
	if !apierrors.IsAlreadyExists(err) {
		return "", fmt.Errorf("creating worker pod %s/%s: %w", s.Namespace, s.Name, err)
	}
	existing, getErr := api.GetPod(ctx, s.Namespace, s.Name)
	if getErr != nil {
		return "", fmt.Errorf("fetching existing worker pod %s/%s: %w", s.Namespace, s.Name, getErr)
	}
	return existing.Status.Phase, nil
}

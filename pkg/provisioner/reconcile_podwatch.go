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
	"time"

	corev1 "k8s.io/api/core/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
)

// syncWorkerPod implements the Worker-Pod Watcher (spec.md §4.5). It is
// invoked on pod MODIFIED events for pods carrying LabelAction; it is
// level-triggered and safe to run twice on the same terminal event
// (the annotation patch is idempotent and a repeat pod delete is a
// no-op NotFound).
func (c *Controller) syncWorkerPod(ctx context.Context, pod *corev1.Pod) reconcileOutcome {
	action, labeled := pod.Labels[LabelAction]
	if !labeled {
		return ok()
	}
	if pod.Status.Phase != corev1.PodSucceeded && pod.Status.Phase != corev1.PodFailed {
		return ok()
	}

	// The pod->PVC mapping goes through the label, independent of the
	// owner reference (which a delete-action pod need not carry) and
	// independent of any annotation state, per spec.md §5's ordering
	// guarantee: the watcher may observe this terminal event before the
	// reconciler that launched the pod has written its own results.
	pvcName, labeled := pod.Labels[LabelPVCName]
	if !labeled || pvcName == "" {
		return ok()
	}

	patch, err := annotationMergePatch(map[string]string{
		phaseAnnotationKey(Action(action)): string(pod.Status.Phase),
	})
	if err != nil {
		return fatal(err.Error())
	}
	if _, err := c.api.PatchPVC(ctx, pod.Namespace, pvcName, patch); err != nil && !apierrors.IsNotFound(err) {
		return retryAfter(2*time.Second, err.Error())
	}

	if err := c.api.DeletePod(ctx, pod.Namespace, pod.Name); err != nil && !apierrors.IsNotFound(err) {
		return retryAfter(2*time.Second, err.Error())
	}

	// Finalizer removal is this watcher's responsibility once a delete
	// worker reaches Succeeded, per spec.md §4.7 step 5.
	if Action(action) == ActionDelete && pod.Status.Phase == corev1.PodSucceeded {
		pvc, err := c.api.GetPVC(ctx, pod.Namespace, pvcName)
		if err != nil {
			if apierrors.IsNotFound(err) {
				return ok()
			}
			return retryAfter(2*time.Second, err.Error())
		}
		return c.removeFinalizer(ctx, pvc)
	}

	return ok()
}

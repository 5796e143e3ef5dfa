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
	"testing"

	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
)

func TestBuildWorkerPodLabelsAndScheduling(t *testing.T) {
	pvc := &corev1.PersistentVolumeClaim{
		ObjectMeta: metav1.ObjectMeta{Name: "data-0", Namespace: "default", UID: "u1"},
	}
	pod := buildWorkerPod(workerPodSpec{
		Namespace:    "kube-system",
		Name:         "pvc-u1-create",
		NodeName:     "node-7",
		Action:       ActionCreate,
		Args:         []string{"dataset", "create", "pool/data/pvc-u1", "/mnt/pvc-u1"},
		ContainerImg: "asteven/zfs-provisioner",
		PVCName:      pvc.Name,
		OwnerPVC:     pvc,
	})
	if pod.Labels[LabelAction] != string(ActionCreate) {
		t.Errorf("LabelAction = %q", pod.Labels[LabelAction])
	}
	if pod.Labels[LabelPVCName] != "data-0" {
		t.Errorf("LabelPVCName = %q", pod.Labels[LabelPVCName])
	}
	if pod.Spec.NodeName != "node-7" {
		t.Errorf("NodeName = %q", pod.Spec.NodeName)
	}
	if len(pod.OwnerReferences) != 1 || pod.OwnerReferences[0].Name != "data-0" {
		t.Errorf("OwnerReferences = %+v", pod.OwnerReferences)
	}
	if pod.Spec.RestartPolicy != corev1.RestartPolicyOnFailure {
		t.Errorf("RestartPolicy = %v, want OnFailure", pod.Spec.RestartPolicy)
	}
}

func TestBuildWorkerPodOmitsOwnerRefWhenPVCGone(t *testing.T) {
	pod := buildWorkerPod(workerPodSpec{
		Namespace: "kube-system",
		Name:      "pvc-u1-delete",
		Action:    ActionDelete,
		PVCName:   "data-0",
	})
	if len(pod.OwnerReferences) != 0 {
		t.Errorf("expected no owner references for a delete pod with no PVC, got %+v", pod.OwnerReferences)
	}
}

func TestLaunchWorkerPodIsIdempotent(t *testing.T) {
	api := NewFakeAPIUtil()
	ctx := context.Background()
	spec := workerPodSpec{
		Namespace:    "kube-system",
		Name:         "pvc-u1-create",
		Action:       ActionCreate,
		ContainerImg: "asteven/zfs-provisioner",
		PVCName:      "data-0",
	}

	first, err := launchWorkerPod(ctx, api, spec)
	if err != nil {
		t.Fatalf("launchWorkerPod: %v", err)
	}

	pod := api.Pods[podKey("kube-system", "pvc-u1-create")]
	pod.Status.Phase = corev1.PodSucceeded

	second, err := launchWorkerPod(ctx, api, spec)
	if err != nil {
		t.Fatalf("second launchWorkerPod: %v", err)
	}
	if first != corev1.PodPending {
		t.Errorf("first launch phase = %v, want Pending", first)
	}
	if second != corev1.PodSucceeded {
		t.Errorf("second launch phase = %v, want Succeeded", second)
	}
	if len(api.Pods) != 1 {
		t.Fatalf("expected exactly one worker pod to exist, got %d", len(api.Pods))
	}
}

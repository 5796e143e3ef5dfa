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

func workerPod(action Action, pvcName string, phase corev1.PodPhase) *corev1.Pod {
	return &corev1.Pod{
		ObjectMeta: metav1.ObjectMeta{
			Name:      "pvc-u1-" + string(action),
			Namespace: "kube-system",
			Labels: map[string]string{
				LabelAction:  string(action),
				LabelPVCName: pvcName,
			},
		},
		Status: corev1.PodStatus{Phase: phase},
	}
}

func TestSyncWorkerPodIgnoresUnlabeledPods(t *testing.T) {
	c, api := newTestController(t)
	pod := &corev1.Pod{ObjectMeta: metav1.ObjectMeta{Name: "unrelated", Namespace: "kube-system"}}
	if o := c.syncWorkerPod(context.Background(), pod); !o.isOK() {
		t.Fatalf("syncWorkerPod on an unlabeled pod = %+v, want ok", o)
	}
	if len(api.Pods) != 0 {
		t.Fatalf("syncWorkerPod should not touch unrelated pods")
	}
}

func TestSyncWorkerPodIgnoresNonTerminalPhase(t *testing.T) {
	c, api := newTestController(t)
	pod := workerPod(ActionCreate, "data-0", corev1.PodRunning)
	api.PVCs[podKey("kube-system", "data-0")] = basePVC("local-zfs", corev1.ClaimPending)
	if o := c.syncWorkerPod(context.Background(), pod); !o.isOK() {
		t.Fatalf("syncWorkerPod while pod still Running = %+v, want ok", o)
	}
	patched := api.PVCs[podKey("kube-system", "data-0")]
	if patched.Annotations[AnnPhaseCreate] != "" {
		t.Fatalf("should not record a phase annotation before the pod is terminal")
	}
}

func TestSyncWorkerPodRecordsPhaseAndDeletesPod(t *testing.T) {
	c, api := newTestController(t)
	pod := workerPod(ActionCreate, "data-0", corev1.PodSucceeded)
	api.Pods[podKey("kube-system", "pvc-u1-create")] = pod
	api.PVCs[podKey("kube-system", "data-0")] = basePVC("local-zfs", corev1.ClaimPending)

	o := c.syncWorkerPod(context.Background(), pod)
	if !o.isOK() {
		t.Fatalf("syncWorkerPod happy path = %+v, want ok", o)
	}

	patched := api.PVCs[podKey("kube-system", "data-0")]
	if patched.Annotations[AnnPhaseCreate] != string(corev1.PodSucceeded) {
		t.Fatalf("AnnPhaseCreate = %q, want Succeeded", patched.Annotations[AnnPhaseCreate])
	}
	if _, stillThere := api.Pods[podKey("kube-system", "pvc-u1-create")]; stillThere {
		t.Fatalf("expected the worker pod to be deleted once its terminal phase is recorded")
	}
}

func TestSyncWorkerPodRemovesFinalizerAfterSuccessfulDelete(t *testing.T) {
	c, api := newTestController(t)
	pod := workerPod(ActionDelete, "data-0", corev1.PodSucceeded)
	api.Pods[podKey("kube-system", "pvc-u1-delete")] = pod
	pvc := basePVC("local-zfs", corev1.ClaimBound)
	pvc.Finalizers = []string{FinalizerDatasetDelete}
	api.PVCs[podKey("kube-system", "data-0")] = pvc

	o := c.syncWorkerPod(context.Background(), pod)
	if !o.isOK() {
		t.Fatalf("syncWorkerPod after a successful destroy = %+v, want ok", o)
	}

	patched := api.PVCs[podKey("kube-system", "data-0")]
	if containsString(patched.Finalizers, FinalizerDatasetDelete) {
		t.Fatalf("expected the finalizer to be removed once the destroy worker succeeded")
	}
}

func TestSyncWorkerPodToleratesMissingPVC(t *testing.T) {
	c, api := newTestController(t)
	pod := workerPod(ActionCreate, "already-gone", corev1.PodFailed)
	api.Pods[podKey("kube-system", "pvc-u1-create")] = pod

	o := c.syncWorkerPod(context.Background(), pod)
	if !o.isOK() {
		t.Fatalf("syncWorkerPod when the PVC is already gone = %+v, want ok", o)
	}
}

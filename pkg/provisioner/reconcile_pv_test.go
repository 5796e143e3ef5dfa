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
	"testing"

	corev1 "k8s.io/api/core/v1"
)

func pvcWithCreateResult(phase corev1.PersistentVolumeClaimPhase, createPhase string) *corev1.PersistentVolumeClaim {
	pvc := basePVC("local-zfs", phase)
	results := Results{
		CreateDataset: &CreateDatasetResult{
			PVName:       "pvc-u1",
			PodName:      "pvc-u1-create",
			DatasetName:  "pool/data/local-zfs-provisioner/pvc-u1",
			MountPoint:   "/var/lib/local-zfs-provisioner/pvc-u1",
			SelectedNode: "node-1",
			Phase:        createPhase,
		},
	}
	encoded, err := encodeResults(results)
	if err != nil {
		panic(err)
	}
	pvc.Annotations[AnnResults] = encoded
	if createPhase != "" {
		pvc.Annotations[AnnPhaseCreate] = createPhase
	}
	return pvc
}

func TestSyncPublishPVWaitsForTerminalCreatePhase(t *testing.T) {
	c, api := newTestController(t)
	pvc := pvcWithCreateResult(corev1.ClaimPending, string(corev1.PodRunning))
	if o := c.syncPublishPV(context.Background(), pvc); !o.isOK() {
		t.Fatalf("syncPublishPV while create pod still running = %+v, want ok", o)
	}
	if len(api.PVs) != 0 {
		t.Fatalf("expected no PV yet, got %d", len(api.PVs))
	}
}

func TestSyncPublishPVFatalsOnFailedCreate(t *testing.T) {
	c, _ := newTestController(t)
	pvc := pvcWithCreateResult(corev1.ClaimPending, string(corev1.PodFailed))
	o := c.syncPublishPV(context.Background(), pvc)
	if !o.isFatal() {
		t.Fatalf("syncPublishPV after a failed create worker = %+v, want fatal", o)
	}
}

func TestSyncPublishPVHappyPath(t *testing.T) {
	c, api := newTestController(t)
	pvc := pvcWithCreateResult(corev1.ClaimPending, string(corev1.PodSucceeded))
	api.PVCs[podKey("default", "data-0")] = pvc

	o := c.syncPublishPV(context.Background(), pvc)
	if !o.isOK() {
		t.Fatalf("syncPublishPV happy path = %+v, want ok", o)
	}

	pv := api.PVs["pvc-u1"]
	if pv == nil {
		t.Fatalf("expected PV pvc-u1 to be created")
	}
	if pv.Spec.Local == nil || pv.Spec.Local.Path != "/var/lib/local-zfs-provisioner/pvc-u1" {
		t.Errorf("PV local path = %+v", pv.Spec.Local)
	}
	if pv.Spec.ClaimRef == nil || pv.Spec.ClaimRef.Name != "data-0" {
		t.Errorf("PV ClaimRef = %+v", pv.Spec.ClaimRef)
	}
	if pv.Spec.NodeAffinity == nil {
		t.Fatalf("expected node affinity to be set")
	}

	patched := api.PVCs[podKey("default", "data-0")]
	results, err := decodeResults(patched.Annotations)
	if err != nil {
		t.Fatalf("decodeResults: %v", err)
	}
	if results.CreatePV == nil || results.CreatePV.PVName != "pvc-u1" {
		t.Fatalf("expected create_pv result recorded, got %+v", results.CreatePV)
	}
}

func TestSyncPublishPVIsIdempotentOncePublished(t *testing.T) {
	c, api := newTestController(t)
	pvc := pvcWithCreateResult(corev1.ClaimPending, string(corev1.PodSucceeded))
	results, _ := decodeResults(pvc.Annotations)
	results.CreatePV = &CreatePVResult{PVName: "pvc-u1", Phase: "Bound"}
	encoded, _ := encodeResults(results)
	pvc.Annotations[AnnResults] = encoded

	o := c.syncPublishPV(context.Background(), pvc)
	if !o.isOK() {
		t.Fatalf("syncPublishPV on an already-published claim = %+v, want ok", o)
	}
	if len(api.PVs) != 0 {
		t.Fatalf("expected no new PV to be created, got %d", len(api.PVs))
	}
}

func TestSyncPublishPVFatalsOnMultipleAccessModes(t *testing.T) {
	c, _ := newTestController(t)
	pvc := pvcWithCreateResult(corev1.ClaimPending, string(corev1.PodSucceeded))
	pvc.Spec.AccessModes = []corev1.PersistentVolumeAccessMode{
		corev1.ReadWriteOnce, corev1.ReadOnlyMany,
	}
	o := c.syncPublishPV(context.Background(), pvc)
	if !o.isFatal() {
		t.Fatalf("syncPublishPV with multiple access modes = %+v, want fatal", o)
	}
}

func TestSyncPublishPVRetriesCreatePVWithinBudget(t *testing.T) {
	c, api := newTestController(t)
	c.config.CreatePVRetryCount = 3
	api.CreatePVErr = fmt.Errorf("apiserver unavailable")
	pvc := pvcWithCreateResult(corev1.ClaimPending, string(corev1.PodSucceeded))
	api.PVCs[podKey("default", "data-0")] = pvc

	o := c.syncPublishPV(context.Background(), pvc)
	if !o.isRetry() {
		t.Fatalf("first CreatePV failure = %+v, want retry", o)
	}
	if got := pvc.Annotations[AnnCreatePVAttempts]; got != "1" {
		t.Fatalf("AnnCreatePVAttempts after first failure = %q, want %q", got, "1")
	}
}

func TestSyncPublishPVFailsCreatePVAfterRetryBudgetExhausted(t *testing.T) {
	c, api := newTestController(t)
	c.config.CreatePVRetryCount = 2
	api.CreatePVErr = fmt.Errorf("apiserver unavailable")
	pvc := pvcWithCreateResult(corev1.ClaimPending, string(corev1.PodSucceeded))
	pvc.Annotations[AnnCreatePVAttempts] = "1"
	api.PVCs[podKey("default", "data-0")] = pvc

	o := c.syncPublishPV(context.Background(), pvc)
	if !o.isFatal() {
		t.Fatalf("CreatePV failure past retry budget = %+v, want fatal", o)
	}
}

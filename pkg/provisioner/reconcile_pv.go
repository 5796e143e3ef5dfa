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
	"strconv"
	"time"

	corev1 "k8s.io/api/core/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
)

// syncPublishPV implements the PV Publication Reconciler (spec.md
// §4.6). It is invoked on every PVC update event; it only acts once
// the create phase has reached a terminal state.
func (c *Controller) syncPublishPV(ctx context.Context, pvc *corev1.PersistentVolumeClaim) reconcileOutcome {
	if pvc.Status.Phase != corev1.ClaimPending {
		return ok()
	}

	scName := storageClassNameOf(pvc)

	createPhase, present := pvc.Annotations[AnnPhaseCreate]
	if !present {
		return ok()
	}
	if createPhase != string(corev1.PodSucceeded) && createPhase != string(corev1.PodFailed) {
		return ok()
	}
	if createPhase == string(corev1.PodFailed) {
		return fatalProvision(scName, "create worker pod reached Failed")
	}

	results, err := decodeResults(pvc.Annotations)
	if err != nil {
		return fatalProvision(scName, err.Error())
	}
	if results.CreateDataset == nil {
		// Terminal phase observed before results were written; the
		// watcher and the create reconciler raced. Retry shortly; the
		// create reconciler's own patch will land independently.
		return retryAfter(time.Second, "create results not yet recorded")
	}
	if results.CreatePV != nil {
		// Already published.
		return ok()
	}

	if len(pvc.Spec.AccessModes) != 1 {
		return fatalProvision(scName, "multiple access modes requested; only a single mode is supported")
	}

	entry := c.storageClasses.Get(scName)
	if entry == nil {
		return fatalProvision(scName, fmt.Sprintf("unknown StorageClass %q", scName))
	}

	storageReq := pvc.Spec.Resources.Requests[corev1.ResourceStorage]

	pv := &corev1.PersistentVolume{
		ObjectMeta: metav1.ObjectMeta{
			Name: results.CreateDataset.PVName,
		},
		Spec: corev1.PersistentVolumeSpec{
			Capacity: corev1.ResourceList{
				corev1.ResourceStorage: storageReq,
			},
			AccessModes:                   []corev1.PersistentVolumeAccessMode{pvc.Spec.AccessModes[0]},
			PersistentVolumeReclaimPolicy: corev1.PersistentVolumeReclaimPolicy(entry.ReclaimPolicy),
			StorageClassName:              entry.Name,
			VolumeMode:                    pvc.Spec.VolumeMode,
			PersistentVolumeSource: corev1.PersistentVolumeSource{
				Local: &corev1.LocalVolumeSource{
					Path: results.CreateDataset.MountPoint,
				},
			},
			NodeAffinity: &corev1.VolumeNodeAffinity{
				Required: &corev1.NodeSelector{
					NodeSelectorTerms: []corev1.NodeSelectorTerm{
						{
							MatchExpressions: []corev1.NodeSelectorRequirement{
								{
									Key:      "kubernetes.io/hostname",
									Operator: corev1.NodeSelectorOpIn,
									Values:   []string{results.CreateDataset.SelectedNode},
								},
							},
						},
					},
				},
			},
			ClaimRef: &corev1.ObjectReference{
				Kind:      "PersistentVolumeClaim",
				Namespace: pvc.Namespace,
				Name:      pvc.Name,
				UID:       pvc.UID,
			},
		},
	}

	_, err = c.api.CreatePV(ctx, pv)
	if err != nil && !apierrors.IsAlreadyExists(err) {
		return c.retryOrFailCreatePV(ctx, pvc, scName, err)
	}

	results.CreatePV = &CreatePVResult{PVName: pv.Name, Phase: "Bound"}
	encoded, err := encodeResults(results)
	if err != nil {
		return fatalProvision(scName, err.Error())
	}
	patch, err := annotationMergePatch(map[string]string{AnnResults: encoded})
	if err != nil {
		return fatalProvision(scName, err.Error())
	}
	if _, err := c.api.PatchPVC(ctx, pvc.Namespace, pvc.Name, patch); err != nil {
		return retryAfter(2*time.Second, err.Error())
	}
	return ok()
}

// retryOrFailCreatePV bounds how many times CreatePV itself is retried,
// independent of the workqueue's generic maxRetries budget. The attempt
// count is carried on the PVC as AnnCreatePVAttempts so it survives
// controller restarts; once Config.CreatePVRetryCount is exhausted the
// error becomes fatal rather than retrying forever.
func (c *Controller) retryOrFailCreatePV(ctx context.Context, pvc *corev1.PersistentVolumeClaim, scName string, createErr error) reconcileOutcome {
	attempts := 0
	if raw, ok := pvc.Annotations[AnnCreatePVAttempts]; ok {
		if n, err := strconv.Atoi(raw); err == nil {
			attempts = n
		}
	}
	attempts++

	if attempts >= c.config.CreatePVRetryCount {
		return fatalProvision(scName, fmt.Sprintf("creating PV failed after %d attempts: %v", attempts, createErr))
	}

	patch, err := annotationMergePatch(map[string]string{AnnCreatePVAttempts: strconv.Itoa(attempts)})
	if err != nil {
		return fatalProvision(scName, err.Error())
	}
	if _, err := c.api.PatchPVC(ctx, pvc.Namespace, pvc.Name, patch); err != nil {
		return retryAfter(c.config.CreatePVRetryInterval, err.Error())
	}
	return retryAfter(c.config.CreatePVRetryInterval, createErr.Error())
}

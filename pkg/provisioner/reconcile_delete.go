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
	"time"

	corev1 "k8s.io/api/core/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
)

// fatalDelete counts a terminal Dataset Delete Reconciler failure
// against zfs_provisioner_pv_delete_failed_total before returning the
// fatal outcome.
func fatalDelete(storageClass, reason string) reconcileOutcome {
	DeleteFailedTotal.WithLabelValues(storageClass).Inc()
	return fatal(reason)
}

// syncDelete implements the Dataset Delete Reconciler (spec.md §4.7).
// Invoked for a PVC carrying a DeletionTimestamp and this controller's
// finalizer.
func (c *Controller) syncDelete(ctx context.Context, pvc *corev1.PersistentVolumeClaim) reconcileOutcome {
	if !containsString(pvc.Finalizers, FinalizerDatasetDelete) {
		return ok()
	}

	scName := storageClassNameOf(pvc)
	entry := c.storageClasses.Get(scName)
	if entry == nil {
		return fatalDelete(scName, fmt.Sprintf("unknown StorageClass %q", scName))
	}

	if entry.ReclaimPolicy == ReclaimRetain {
		return c.removeFinalizer(ctx, pvc)
	}

	if _, alreadyLaunched := pvc.Annotations[AnnPhaseDelete]; alreadyLaunched {
		return ok()
	}

	results, err := decodeResults(pvc.Annotations)
	if err != nil {
		return fatalDelete(scName, err.Error())
	}
	if results.CreateDataset == nil {
		// Nothing was ever provisioned for this PVC.
		return c.removeFinalizer(ctx, pvc)
	}

	podName := podNameFor(results.CreateDataset.PVName, ActionDelete)
	args := []string{"dataset", "destroy", results.CreateDataset.DatasetName, results.CreateDataset.MountPoint}

	phase, err := launchWorkerPod(ctx, c.api, workerPodSpec{
		Namespace:    c.config.Namespace,
		Name:         podName,
		NodeName:     results.CreateDataset.SelectedNode,
		Action:       ActionDelete,
		Args:         args,
		ContainerImg: c.config.ContainerImage,
		PVCName:      pvc.Name,
	})
	if err != nil {
		return retryAfter(2*time.Second, err.Error())
	}

	if err := c.api.DeletePV(ctx, results.CreateDataset.PVName); err != nil && !apierrors.IsNotFound(err) {
		return retryAfter(2*time.Second, err.Error())
	}

	results.DeleteDataset = &DeleteDatasetResult{
		PodName:      podName,
		DatasetName:  results.CreateDataset.DatasetName,
		MountPoint:   results.CreateDataset.MountPoint,
		SelectedNode: results.CreateDataset.SelectedNode,
		Phase:        string(phase),
	}
	encoded, err := encodeResults(results)
	if err != nil {
		return fatalDelete(scName, err.Error())
	}
	patch, err := annotationMergePatch(map[string]string{
		AnnResults:     encoded,
		AnnPhaseDelete: string(phase),
	})
	if err != nil {
		return fatalDelete(scName, err.Error())
	}
	if _, err := c.api.PatchPVC(ctx, pvc.Namespace, pvc.Name, patch); err != nil {
		return retryAfter(2*time.Second, err.Error())
	}

	DeleteTotal.WithLabelValues(entry.Name).Inc()
	return ok()
}

// removeFinalizer drops FinalizerDatasetDelete from the PVC's
// finalizer list via a merge patch of the full (remaining) list.
func (c *Controller) removeFinalizer(ctx context.Context, pvc *corev1.PersistentVolumeClaim) reconcileOutcome {
	remaining := removeString(pvc.Finalizers, FinalizerDatasetDelete)
	patch, err := finalizerMergePatch(remaining)
	if err != nil {
		return fatal(err.Error())
	}
	if _, err := c.api.PatchPVC(ctx, pvc.Namespace, pvc.Name, patch); err != nil && !apierrors.IsNotFound(err) {
		return retryAfter(2*time.Second, err.Error())
	}
	return ok()
}

// ensureFinalizer adds FinalizerDatasetDelete if it is not already
// present, so the Dataset Delete Reconciler is guaranteed a chance to
// run before the PVC is garbage collected. Called once a PVC is known
// to belong to one of this controller's StorageClasses.
func (c *Controller) ensureFinalizer(ctx context.Context, pvc *corev1.PersistentVolumeClaim) reconcileOutcome {
	if containsString(pvc.Finalizers, FinalizerDatasetDelete) {
		return ok()
	}
	patch, err := finalizerMergePatch(append(append([]string(nil), pvc.Finalizers...), FinalizerDatasetDelete))
	if err != nil {
		return fatal(err.Error())
	}
	if _, err := c.api.PatchPVC(ctx, pvc.Namespace, pvc.Name, patch); err != nil {
		return retryAfter(2*time.Second, err.Error())
	}
	return ok()
}

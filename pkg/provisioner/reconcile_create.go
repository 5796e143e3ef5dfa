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

	"github.com/golang/glog"
	corev1 "k8s.io/api/core/v1"
)

// storageClassNameOf safely dereferences a PVC's nullable
// spec.storageClassName.
func storageClassNameOf(pvc *corev1.PersistentVolumeClaim) string {
	if pvc.Spec.StorageClassName == nil {
		return ""
	}
	return *pvc.Spec.StorageClassName
}

// fatalProvision counts a terminal Dataset Create/PV Publication
// Reconciler failure against zfs_provisioner_pvc_provision_failed_total
// before returning the fatal outcome.
func fatalProvision(storageClass, reason string) reconcileOutcome {
	ProvisionFailedTotal.WithLabelValues(storageClass).Inc()
	return fatal(reason)
}

// syncCreate implements the Dataset Create Reconciler (spec.md §4.4).
// It is invoked once per PVC add/resume/update event, serialized per
// PVC by the controller's claim workqueue.
func (c *Controller) syncCreate(ctx context.Context, pvc *corev1.PersistentVolumeClaim) reconcileOutcome {
	// Admission filter, in spec order.
	if pvc.Status.Phase != corev1.ClaimPending {
		return ok()
	}

	scName := storageClassNameOf(pvc)
	entry := c.storageClasses.Get(scName)
	if entry == nil {
		return fatalProvision(scName, fmt.Sprintf("unknown StorageClass %q", scName))
	}

	if _, alreadyLaunched := pvc.Annotations[AnnPhaseCreate]; alreadyLaunched {
		return ok()
	}

	var selectedNode string
	if entry.VolumeBindingMode == BindingWaitForFirstConsumer {
		node, present := pvc.Annotations[AnnSelectedNode]
		if !present {
			// Scheduler hasn't picked a node yet; not our turn, not an
			// error.
			return ok()
		}
		selectedNode = node
	} else {
		node, present := pvc.Annotations[AnnSelectedNode]
		if !present {
			return fatalProvision(scName, "Immediate binding mode requires a selected node but none was provided")
		}
		selectedNode = node
	}

	// Mode dispatch.
	if entry.Mode != ModeLocal {
		return fatalProvision(scName, fmt.Sprintf("unsupported StorageClass mode %q", entry.Mode))
	}

	pvName := pvNameForUID(string(pvc.UID))
	podName := podNameFor(pvName, ActionCreate)
	parentDataset := effectiveParentDataset(entry, &c.config)
	datasetName := datasetNameFor(parentDataset, pvName)
	mountPoint := mountPointFor(c.config.DatasetMountDir, pvName)

	args := []string{"dataset", "create"}
	storageReq := pvc.Spec.Resources.Requests[corev1.ResourceStorage]
	quotaBytes, quotaPresent, err := parseStorageRequestBytes(storageReq.String())
	if err != nil {
		glog.Warningf("pvc %s/%s: %v; creating dataset without a quota", pvc.Namespace, pvc.Name, err)
		quotaPresent = false
	}
	if quotaPresent {
		args = append(args, "--quota", strconv.FormatInt(quotaBytes, 10))
	}
	args = append(args, datasetName, mountPoint)

	phase, err := launchWorkerPod(ctx, c.api, workerPodSpec{
		Namespace:    c.config.Namespace,
		Name:         podName,
		NodeName:     selectedNode,
		Action:       ActionCreate,
		Args:         args,
		ContainerImg: c.config.ContainerImage,
		PVCName:      pvc.Name,
		OwnerPVC:     pvc,
	})
	if err != nil {
		return retryAfter(2*time.Second, err.Error())
	}

	results, err := decodeResults(pvc.Annotations)
	if err != nil {
		return fatalProvision(scName, err.Error())
	}
	results.CreateDataset = &CreateDatasetResult{
		PVName:       pvName,
		PodName:      podName,
		DatasetName:  datasetName,
		MountPoint:   mountPoint,
		SelectedNode: selectedNode,
		Phase:        string(phase),
	}
	encoded, err := encodeResults(results)
	if err != nil {
		return fatalProvision(scName, err.Error())
	}

	patch, err := annotationMergePatch(map[string]string{
		AnnResults:     encoded,
		AnnPhaseCreate: string(phase),
	})
	if err != nil {
		return fatalProvision(scName, err.Error())
	}
	if _, err := c.api.PatchPVC(ctx, pvc.Namespace, pvc.Name, patch); err != nil {
		return retryAfter(2*time.Second, err.Error())
	}

	ProvisionTotal.WithLabelValues(entry.Name).Inc()
	return ok()
}

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
	"fmt"
	"path"
)

// pvNameForUID derives the deterministic PV/dataset-stem name for a
// PVC. Same UID always yields the same name, across retries and
// controller restarts, per spec.md §3's naming invariant.
func pvNameForUID(uid string) string {
	return fmt.Sprintf("pvc-%s", uid)
}

// podNameFor derives the deterministic worker pod name for a given PV
// name and action, e.g. "pvc-u1-create".
func podNameFor(pvName string, action Action) string {
	return fmt.Sprintf("%s-%s", pvName, action)
}

// datasetNameFor derives the dataset's full ZFS path: the effective
// parent dataset (the StorageClass's override, or the cluster-wide
// default) joined with the PV name stem.
func datasetNameFor(parentDataset, pvName string) string {
	return path.Join(parentDataset, pvName)
}

// mountPointFor derives the on-node mount point for a dataset.
func mountPointFor(mountDir, pvName string) string {
	return path.Join(mountDir, pvName)
}

// effectiveParentDataset returns the StorageClass's parentDataset
// override if set, otherwise the cluster-wide default.
func effectiveParentDataset(entry *StorageClassEntry, cfg *Config) string {
	if entry.ParentDataset != "" {
		return entry.ParentDataset
	}
	return cfg.DefaultParentDataset
}

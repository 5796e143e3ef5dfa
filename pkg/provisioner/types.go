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
	"time"

	storagev1 "k8s.io/api/storage/v1"
)

const (
	// AnnResults carries the JSON-encoded results of each reconciler
	// phase, keyed by reconciler name.
	AnnResults = "zfs-provisioner/results"

	// AnnPhasePrefix is the common prefix of the per-action phase
	// annotations; the full key is AnnPhasePrefix+action.
	AnnPhasePrefix = "zfs-provisioner/dataset-phase-"

	// AnnPhaseCreate, AnnPhaseDelete, AnnPhaseResize are the three
	// phase annotations named in the data model. Resize is reserved
	// but unimplemented.
	AnnPhaseCreate = AnnPhasePrefix + "create"
	AnnPhaseDelete = AnnPhasePrefix + "delete"
	AnnPhaseResize = AnnPhasePrefix + "resize"

	// AnnSelectedNode is a read-only input written by the scheduler for
	// WaitForFirstConsumer StorageClasses.
	AnnSelectedNode = "volume.kubernetes.io/selected-node"

	// AnnCreatePVAttempts counts how many times the PV Publication
	// Reconciler has attempted CreatePV for this PVC. It is not removed
	// once CreatePV succeeds; results.create_pv is then populated and the
	// reconciler no longer reaches the code that reads it.
	AnnCreatePVAttempts = "zfs-provisioner/create-pv-attempts"

	// LabelAction is the label carried by every worker pod.
	LabelAction = "zfs-provisioner/action"

	// LabelPVCName names the PVC a worker pod belongs to. The watcher
	// keys off this label and does not read owner references, since a
	// delete-action pod is launched without an owner reference.
	LabelPVCName = "zfs-provisioner/pvc-name"

	// FinalizerDatasetDelete is held on a PVC until its dataset (if any
	// was ever created) has been reclaimed.
	FinalizerDatasetDelete = "zfs-provisioner/dataset-delete"
)

// Action names a worker pod's operation and the phase annotation it
// reports to.
type Action string

const (
	ActionCreate Action = "create"
	ActionDelete Action = "delete"
)

// ParameterMode names the StorageClass "mode" parameter.
type ParameterMode string

const (
	ModeLocal ParameterMode = "local"
	ModeNFS   ParameterMode = "nfs"
)

// ReclaimPolicy mirrors v1.PersistentVolumeReclaimPolicy's two
// supported values.
type ReclaimPolicy string

const (
	ReclaimDelete ReclaimPolicy = "Delete"
	ReclaimRetain ReclaimPolicy = "Retain"
)

// BindingMode mirrors storagev1.VolumeBindingMode's two values.
type BindingMode string

const (
	BindingImmediate            BindingMode = "Immediate"
	BindingWaitForFirstConsumer BindingMode = "WaitForFirstConsumer"
)

// StorageClassEntry is the cached, typed projection of a StorageClass
// this controller is responsible for.
type StorageClassEntry struct {
	Name                  string
	Provisioner           string
	ReclaimPolicy         ReclaimPolicy
	VolumeBindingMode     BindingMode
	AllowVolumeExpansion  bool
	Mode                  ParameterMode
	ParentDataset         string // empty means "use Config.DefaultParentDataset"
	MountOptions          []string

	// raw is the StorageClass object this entry was derived from, kept
	// around so a reconciler can consult fields this cache doesn't
	// project into its own typed form (e.g. a parameter this controller
	// doesn't yet interpret). Unexported: callers outside this package
	// only ever see the typed projection above.
	raw *storagev1.StorageClass
}

// CreateDatasetResult is the sub-result recorded by the Dataset Create
// Reconciler under results.create_dataset.
type CreateDatasetResult struct {
	PVName       string `json:"pv_name"`
	PodName      string `json:"pod_name"`
	DatasetName  string `json:"dataset_name"`
	MountPoint   string `json:"mount_point"`
	SelectedNode string `json:"selected_node"`
	Phase        string `json:"phase"`
}

// CreatePVResult is the sub-result recorded by the PV Publication
// Reconciler under results.create_pv.
type CreatePVResult struct {
	PVName string `json:"pv_name"`
	Phase  string `json:"phase"`
}

// DeleteDatasetResult is the sub-result recorded by the Dataset Delete
// Reconciler under results.delete_dataset.
type DeleteDatasetResult struct {
	PodName      string `json:"pod_name"`
	DatasetName  string `json:"dataset_name"`
	MountPoint   string `json:"mount_point"`
	SelectedNode string `json:"selected_node"`
	Phase        string `json:"phase"`
}

// Results is the decoded form of the AnnResults annotation. Fields are
// append-only: a reconciler only ever writes its own key.
type Results struct {
	CreateDataset *CreateDatasetResult `json:"create_dataset,omitempty"`
	CreatePV      *CreatePVResult      `json:"create_pv,omitempty"`
	DeleteDataset *DeleteDatasetResult `json:"delete_dataset,omitempty"`
}

// outcomeKind distinguishes the three reconcile outcome variants of
// SPEC_FULL.md §3.
type outcomeKind int

const (
	outcomeOK outcomeKind = iota
	outcomeRetry
	outcomeFatal
)

// reconcileOutcome is returned by every reconciler handler in place of
// the Python source's exception-based control flow (temporary-error /
// fatal-error raises).
type reconcileOutcome struct {
	kind       outcomeKind
	retryAfter time.Duration
	reason     string
}

func ok() reconcileOutcome {
	return reconcileOutcome{kind: outcomeOK}
}

func retryAfter(d time.Duration, reason string) reconcileOutcome {
	return reconcileOutcome{kind: outcomeRetry, retryAfter: d, reason: reason}
}

func fatal(reason string) reconcileOutcome {
	return reconcileOutcome{kind: outcomeFatal, reason: reason}
}

func (o reconcileOutcome) isOK() bool    { return o.kind == outcomeOK }
func (o reconcileOutcome) isRetry() bool { return o.kind == outcomeRetry }
func (o reconcileOutcome) isFatal() bool { return o.kind == outcomeFatal }

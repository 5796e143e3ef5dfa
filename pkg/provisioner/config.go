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

import "time"

// Config holds the process-wide, immutable configuration of the
// controller. A single value is built at startup and handed to the
// Controller; nothing here is mutated afterward.
type Config struct {
	// ProvisionerName is matched against a StorageClass's .provisioner
	// field to decide whether this controller is responsible for it.
	ProvisionerName string

	// Namespace is the default namespace worker pods are created in.
	Namespace string

	// DefaultParentDataset is the parent of per-PVC datasets, e.g.
	// "pool/data/local-zfs-provisioner". A StorageClass may override
	// this via its "parentDataset" parameter.
	DefaultParentDataset string

	// DatasetMountDir is the parent of per-PVC mount points on nodes,
	// e.g. "/var/lib/local-zfs-provisioner".
	DatasetMountDir string

	// ContainerImage is the image used for worker pods.
	ContainerImage string

	// Threadiness is the number of worker goroutines draining each
	// workqueue.
	Threadiness int

	// ResyncPeriod is how often informers do a full resync.
	ResyncPeriod time.Duration

	// CreatePVRetryCount bounds the number of times PV creation is
	// retried before the PV Publication Reconciler gives up and treats
	// the error as fatal.
	CreatePVRetryCount int

	// CreatePVRetryInterval is the delay carried on the retry outcome of
	// a failed PV creation. finishWorkItem does not read that delay: the
	// queue's rate limiter decides when the item is retried.
	CreatePVRetryInterval time.Duration

	// MetricsAddress and MetricsPath control where the Prometheus
	// handler is served.
	MetricsAddress string
	MetricsPath    string
}

// DefaultConfig returns a Config populated with the same defaults as
// the reference implementation.
func DefaultConfig() Config {
	return Config{
		ProvisionerName:        "asteven/zfs-provisioner",
		Namespace:              "kube-system",
		DefaultParentDataset:   "pool/data/local-zfs-provisioner",
		DatasetMountDir:        "/var/lib/local-zfs-provisioner",
		ContainerImage:         "asteven/zfs-provisioner",
		Threadiness:            2,
		ResyncPeriod:           15 * time.Minute,
		CreatePVRetryCount:     5,
		CreatePVRetryInterval:  2 * time.Second,
		MetricsAddress:         ":8080",
		MetricsPath:            "/metrics",
	}
}

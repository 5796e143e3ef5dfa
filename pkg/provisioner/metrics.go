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

import "github.com/prometheus/client_golang/prometheus"

// Subsystem is the Prometheus subsystem all of this controller's
// metrics are registered under.
const Subsystem = "zfs_provisioner"

const (
	APIServerRequestCreate = "create"
	APIServerRequestDelete = "delete"
	APIServerRequestPatch  = "patch"
	APIServerRequestGet    = "get"
)

var (
	// ProvisionTotal counts Dataset Create Reconciler launches and
	// ProvisionFailedTotal counts fatal Dataset Create/PV Publication
	// Reconciler outcomes, both labeled by StorageClass name.
	ProvisionTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Subsystem: Subsystem,
		Name:      "pvc_provision_total",
		Help:      "Total number of PVCs for which a create worker pod was launched.",
	}, []string{"storageclass"})

	ProvisionFailedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Subsystem: Subsystem,
		Name:      "pvc_provision_failed_total",
		Help:      "Total number of fatal Dataset Create/PV Publication reconcile outcomes.",
	}, []string{"storageclass"})

	// DeleteTotal counts Dataset Delete Reconciler launches and
	// DeleteFailedTotal counts its fatal outcomes, both labeled by
	// StorageClass name. A delete worker pod that reaches Failed is not
	// counted.
	DeleteTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Subsystem: Subsystem,
		Name:      "pv_delete_total",
		Help:      "Total number of PVs for which a delete worker pod was launched.",
	}, []string{"storageclass"})

	DeleteFailedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Subsystem: Subsystem,
		Name:      "pv_delete_failed_total",
		Help:      "Total number of fatal Dataset Delete reconcile outcomes.",
	}, []string{"storageclass"})

	// APIServerRequestsTotal, APIServerRequestsFailedTotal, and
	// APIServerRequestDurationSeconds instrument every call made through
	// APIUtil, labeled by verb (create/delete/patch/get).
	APIServerRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Subsystem: Subsystem,
		Name:      "apiserver_requests_total",
		Help:      "Total number of API server requests issued by the controller.",
	}, []string{"verb"})

	APIServerRequestsFailedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Subsystem: Subsystem,
		Name:      "apiserver_requests_failed_total",
		Help:      "Total number of failed API server requests issued by the controller.",
	}, []string{"verb"})

	APIServerRequestDurationSeconds = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Subsystem: Subsystem,
		Name:      "apiserver_request_duration_seconds",
		Help:      "Latency of API server requests issued by the controller.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"verb"})
)

// RegisterMetrics registers every collector above with reg. Called
// once at startup; a nil reg registers with prometheus's default
// registry.
func RegisterMetrics(reg prometheus.Registerer) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(
		ProvisionTotal,
		ProvisionFailedTotal,
		DeleteTotal,
		DeleteFailedTotal,
		APIServerRequestsTotal,
		APIServerRequestsFailedTotal,
		APIServerRequestDurationSeconds,
	)
}

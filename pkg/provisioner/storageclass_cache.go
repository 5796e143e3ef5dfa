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
	"sync"

	storagev1 "k8s.io/api/storage/v1"
)

// StorageClassCache is an in-memory, mutex-protected registry of the
// StorageClasses this controller is responsible for. Reconcilers only
// ever read it; the informer event handlers are the only writers.
type StorageClassCache struct {
	mutex   sync.Mutex
	entries map[string]*StorageClassEntry
}

// NewStorageClassCache returns an empty cache.
func NewStorageClassCache() *StorageClassCache {
	return &StorageClassCache{
		entries: make(map[string]*StorageClassEntry),
	}
}

// Get returns the cached entry for name, or nil if this controller
// does not own that StorageClass (or has not seen it yet).
func (c *StorageClassCache) Get(name string) *StorageClassEntry {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return c.entries[name]
}

// onAddOrUpdate inserts or refreshes the cached entry when the
// StorageClass's provisioner matches provisionerName. A StorageClass
// whose provisioner does not match is ignored (never cached, never
// evicted if it matched previously and later changed — that edge case
// does not occur in practice since .provisioner is immutable).
func (c *StorageClassCache) onAddOrUpdate(provisionerName string, sc *storagev1.StorageClass) {
	if sc.Provisioner != provisionerName {
		return
	}
	entry := entryFromStorageClass(sc)
	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.entries[sc.Name] = entry
}

// onDelete is intentionally a no-op: per SPEC_FULL.md/spec.md §4.1,
// deletion of a StorageClass is not mandated to evict the cache entry.
// Outstanding PVCs referencing a disappeared StorageClass fail the
// create reconciler with a non-retryable error the next time the cache
// genuinely lacks the entry (e.g. after a controller restart), not
// because this cache proactively forgot it.
func (c *StorageClassCache) onDelete(_ *storagev1.StorageClass) {}

func entryFromStorageClass(sc *storagev1.StorageClass) *StorageClassEntry {
	entry := &StorageClassEntry{
		Name:              sc.Name,
		Provisioner:       sc.Provisioner,
		ReclaimPolicy:     ReclaimDelete,
		VolumeBindingMode: BindingImmediate,
		Mode:              ModeLocal,
		raw:               sc,
	}
	if sc.ReclaimPolicy != nil && *sc.ReclaimPolicy == "Retain" {
		entry.ReclaimPolicy = ReclaimRetain
	}
	if sc.VolumeBindingMode != nil && *sc.VolumeBindingMode == "WaitForFirstConsumer" {
		entry.VolumeBindingMode = BindingWaitForFirstConsumer
	}
	if sc.AllowVolumeExpansion != nil {
		entry.AllowVolumeExpansion = *sc.AllowVolumeExpansion
	}
	if sc.Parameters != nil {
		if m, ok := sc.Parameters["mode"]; ok {
			entry.Mode = ParameterMode(m)
		}
		if p, ok := sc.Parameters["parentDataset"]; ok {
			entry.ParentDataset = p
		}
	}
	entry.MountOptions = append([]string(nil), sc.MountOptions...)
	return entry
}

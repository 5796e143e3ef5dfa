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

// Package zfsutil creates, mounts, and destroys ZFS datasets from
// inside a worker pod. This is the in-pod CLI contract's
// implementation layer (spec.md §6), built on github.com/simt2/go-zfs
// rather than shelling out to the zfs(8) binary directly.
package zfsutil

import (
	"context"
	"fmt"
	"strconv"

	"github.com/golang/glog"
	zfs "github.com/simt2/go-zfs"
)

// Interface is the dataset operations the in-pod CLI calls; New returns
// the implementation backed by github.com/simt2/go-zfs.
type Interface interface {
	// CreateDataset creates dataset if it does not already exist, sets
	// its mountpoint, and ensures it is mounted. If quotaBytes is zero,
	// no quota is set. Already-exists and already-mounted are both
	// treated as success.
	CreateDataset(ctx context.Context, dataset, mountpoint string, quotaBytes int64) error

	// DestroyDataset unmounts (if mounted) and recursively destroys
	// dataset. Already-absent is treated as success.
	DestroyDataset(ctx context.Context, dataset, mountpoint string) error
}

type libzfs struct{}

// New returns the real Interface, backed by github.com/simt2/go-zfs.
func New() Interface { return libzfs{} }

func (libzfs) CreateDataset(ctx context.Context, dataset, mountpoint string, quotaBytes int64) error {
	ds, err := zfs.GetDataset(dataset)
	if err != nil {
		ds, err = zfs.CreateFilesystem(dataset, map[string]string{"mountpoint": mountpoint})
		if err != nil {
			return fmt.Errorf("creating dataset %s: %w", dataset, err)
		}
	} else {
		glog.V(4).Infof("dataset %s already exists", dataset)
		if err := ds.SetProperty("mountpoint", mountpoint); err != nil {
			return fmt.Errorf("setting mountpoint on %s: %w", dataset, err)
		}
	}

	if quotaBytes > 0 {
		if err := ds.SetProperty("quota", strconv.FormatInt(quotaBytes, 10)); err != nil {
			return fmt.Errorf("setting quota on %s: %w", dataset, err)
		}
	}

	mounted, err := ds.GetProperty("mounted")
	if err != nil {
		return fmt.Errorf("checking mounted state of %s: %w", dataset, err)
	}
	if mounted != "yes" {
		if err := ds.Mount(false, nil); err != nil {
			return fmt.Errorf("mounting %s: %w", dataset, err)
		}
	}
	return nil
}

func (libzfs) DestroyDataset(ctx context.Context, dataset, mountpoint string) error {
	ds, err := zfs.GetDataset(dataset)
	if err != nil {
		glog.V(4).Infof("dataset %s already absent", dataset)
		return nil
	}
	if mounted, propErr := ds.GetProperty("mounted"); propErr == nil && mounted == "yes" {
		if err := ds.Unmount(false); err != nil {
			glog.Warningf("unmounting %s: %v (continuing to destroy)", dataset, err)
		}
	}
	if err := ds.Destroy(zfs.DestroyRecursive); err != nil {
		return fmt.Errorf("destroying dataset %s: %w", dataset, err)
	}
	return nil
}

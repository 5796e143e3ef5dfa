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

// Command zfs-dataset-helper is the in-pod CLI a worker pod runs. It
// implements the "dataset create" / "dataset destroy" contract of
// spec.md §6; the controller never calls this logic directly, it only
// renders the argv a worker pod runs.
package main

import (
	"context"
	"flag"
	"os"
	"strconv"

	"github.com/golang/glog"

	"github.com/jtgans/zfs-provisioner/pkg/zfsutil"
)

func main() {
	flag.Set("logtostderr", "true")
	flag.Parse()
	args := flag.Args()

	if len(args) < 1 || args[0] != "dataset" {
		glog.Errorf("usage: zfs-dataset-helper dataset create|destroy ...")
		os.Exit(2)
	}

	zfs := zfsutil.New()
	ctx := context.Background()

	switch {
	case len(args) >= 2 && args[1] == "create":
		os.Exit(runCreate(ctx, zfs, args[2:]))
	case len(args) >= 2 && args[1] == "destroy":
		os.Exit(runDestroy(ctx, zfs, args[2:]))
	default:
		glog.Errorf("usage: zfs-dataset-helper dataset create|destroy ...")
		os.Exit(2)
	}
}

// runCreate implements "dataset create [--quota <bytes>] <dataset> <mountpoint>".
func runCreate(ctx context.Context, zfs zfsutil.Interface, args []string) int {
	var quotaBytes int64
	if len(args) >= 2 && args[0] == "--quota" {
		v, err := strconv.ParseInt(args[1], 10, 64)
		if err != nil {
			glog.Errorf("invalid --quota value %q: %v", args[1], err)
			return 1
		}
		quotaBytes = v
		args = args[2:]
	}
	if len(args) != 2 {
		glog.Errorf("usage: dataset create [--quota <bytes>] <dataset> <mountpoint>")
		return 2
	}
	dataset, mountpoint := args[0], args[1]
	if err := zfs.CreateDataset(ctx, dataset, mountpoint, quotaBytes); err != nil {
		glog.Errorf("creating dataset %s: %v", dataset, err)
		return 1
	}
	return 0
}

// runDestroy implements "dataset destroy <dataset> <mountpoint>".
func runDestroy(ctx context.Context, zfs zfsutil.Interface, args []string) int {
	if len(args) != 2 {
		glog.Errorf("usage: dataset destroy <dataset> <mountpoint>")
		return 2
	}
	dataset, mountpoint := args[0], args[1]
	if err := zfs.DestroyDataset(ctx, dataset, mountpoint); err != nil {
		glog.Errorf("destroying dataset %s: %v", dataset, err)
		return 1
	}
	return 0
}

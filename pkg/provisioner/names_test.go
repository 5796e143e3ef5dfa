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

import "testing"

func TestNameDerivationIsDeterministic(t *testing.T) {
	uid := "u1"
	pvName := pvNameForUID(uid)
	if pvName != "pvc-u1" {
		t.Fatalf("pvNameForUID(%q) = %q, want pvc-u1", uid, pvName)
	}

	podName := podNameFor(pvName, ActionCreate)
	if podName != "pvc-u1-create" {
		t.Fatalf("podNameFor = %q, want pvc-u1-create", podName)
	}

	dataset := datasetNameFor("pool/data/local-zfs-provisioner", pvName)
	if dataset != "pool/data/local-zfs-provisioner/pvc-u1" {
		t.Fatalf("datasetNameFor = %q", dataset)
	}

	mount := mountPointFor("/var/lib/local-zfs-provisioner", pvName)
	if mount != "/var/lib/local-zfs-provisioner/pvc-u1" {
		t.Fatalf("mountPointFor = %q", mount)
	}

	// Same UID, called again, must produce identical names.
	if pvNameForUID(uid) != pvName {
		t.Fatalf("pvNameForUID not deterministic")
	}
}

func TestEffectiveParentDataset(t *testing.T) {
	cfg := &Config{DefaultParentDataset: "pool/data/default"}

	noOverride := &StorageClassEntry{}
	if got := effectiveParentDataset(noOverride, cfg); got != cfg.DefaultParentDataset {
		t.Fatalf("effectiveParentDataset (no override) = %q, want %q", got, cfg.DefaultParentDataset)
	}

	withOverride := &StorageClassEntry{ParentDataset: "pool/data/override"}
	if got := effectiveParentDataset(withOverride, cfg); got != "pool/data/override" {
		t.Fatalf("effectiveParentDataset (override) = %q", got)
	}
}

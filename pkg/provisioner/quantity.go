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

	"k8s.io/apimachinery/pkg/api/resource"
)

// parseStorageRequestBytes converts a storage request string (as found
// in a PVC's spec.resources.requests.storage) into a byte count,
// rounded up to the nearest whole byte. Both binary (Ki/Mi/Gi/Ti/Pi/Ei)
// and decimal (K/M/G/T/P/E) suffixes are accepted, since that is what
// resource.Quantity already parses.
//
// An empty string returns (0, false): the caller must omit --quota
// rather than pass a zero quota. A malformed string returns an error;
// the caller logs it and omits --quota, per spec.md §4.4 step 2 and
// §7's "Malformed storage request" policy.
func parseStorageRequestBytes(s string) (bytes int64, present bool, err error) {
	if s == "" {
		return 0, false, nil
	}
	q, err := resource.ParseQuantity(s)
	if err != nil {
		return 0, false, fmt.Errorf("parsing storage request %q: %w", s, err)
	}
	// Value() rounds up to the nearest integer representable in the
	// quantity's canonical suffix, which for byte-ish requests is
	// already whole bytes; RoundUp guards requests expressed with
	// fractional scale (e.g. "1.5Gi").
	q.RoundUp(resource.Scale(0))
	return q.Value(), true, nil
}

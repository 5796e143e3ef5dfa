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
	"encoding/json"
	"fmt"

	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
)

// decodeResults loads the results annotation from a PVC's annotation
// map. An absent or empty annotation decodes to a zero Results, not an
// error; readers must tolerate unknown keys, which encoding/json does
// by default when unmarshaling into a typed struct.
func decodeResults(annotations map[string]string) (Results, error) {
	raw, found := annotations[AnnResults]
	if !found || raw == "" {
		return Results{}, nil
	}
	var r Results
	if err := json.Unmarshal([]byte(raw), &r); err != nil {
		return Results{}, fmt.Errorf("decoding %s annotation: %w", AnnResults, err)
	}
	return r, nil
}

// encodeResults serializes Results back to its annotation string form.
func encodeResults(r Results) (string, error) {
	b, err := json.Marshal(r)
	if err != nil {
		return "", fmt.Errorf("encoding %s annotation: %w", AnnResults, err)
	}
	return string(b), nil
}

// annotationMergePatch builds the JSON merge patch body
// (types.MergePatchType) that sets exactly the given annotations,
// leaving every other field — including other annotations — untouched.
// This is the mechanism spec.md §4.2/§5 requires in place of a
// full-object replacement: "Writers MUST use server-side patching of
// metadata.annotations, not full-object replacement."
func annotationMergePatch(annotations map[string]string) ([]byte, error) {
	patch := map[string]interface{}{
		"metadata": map[string]interface{}{
			"annotations": annotations,
		},
	}
	b, err := json.Marshal(patch)
	if err != nil {
		return nil, fmt.Errorf("building annotation patch: %w", err)
	}
	return b, nil
}

// finalizerMergePatch builds the JSON merge patch body that replaces
// the full finalizer list. A merge patch cannot add/remove a single
// list element; the caller is expected to have read the current
// finalizer list (from the informer-cached object already in hand)
// and compute the desired list before calling this.
func finalizerMergePatch(finalizers []string) ([]byte, error) {
	if finalizers == nil {
		finalizers = []string{}
	}
	patch := map[string]interface{}{
		"metadata": map[string]interface{}{
			"finalizers": finalizers,
		},
	}
	b, err := json.Marshal(patch)
	if err != nil {
		return nil, fmt.Errorf("building finalizer patch: %w", err)
	}
	return b, nil
}

// phaseAnnotationKey returns the stable annotation key for an action's
// phase, e.g. "zfs-provisioner/dataset-phase-create".
func phaseAnnotationKey(action Action) string {
	return AnnPhasePrefix + string(action)
}

// removeString returns a copy of ss with every occurrence of s removed,
// preserving order. Used to compute the finalizer list after this
// controller's finalizer is released.
func removeString(ss []string, s string) []string {
	out := make([]string, 0, len(ss))
	for _, v := range ss {
		if v != s {
			out = append(out, v)
		}
	}
	return out
}

// containsString reports whether s is present in ss.
func containsString(ss []string, s string) bool {
	for _, v := range ss {
		if v == s {
			return true
		}
	}
	return false
}

// mergePatchDoc is the shape every patch this controller ever sends
// takes: a subset of metadata.annotations and/or metadata.finalizers.
type mergePatchDoc struct {
	Metadata struct {
		Annotations map[string]string `json:"annotations"`
		Finalizers  []string          `json:"finalizers"`
	} `json:"metadata"`
}

// applyMergePatch decodes a JSON merge patch built by
// annotationMergePatch/finalizerMergePatch and applies it to obj's
// metadata in place. It exists so FakeAPIUtil can emulate the
// apiserver's merge-patch semantics without a fake clientset.
func applyMergePatch(obj metav1.Object, patch []byte) error {
	var doc mergePatchDoc
	if err := json.Unmarshal(patch, &doc); err != nil {
		return fmt.Errorf("applying merge patch: %w", err)
	}
	if doc.Metadata.Annotations != nil {
		existing := obj.GetAnnotations()
		if existing == nil {
			existing = map[string]string{}
		}
		for k, v := range doc.Metadata.Annotations {
			existing[k] = v
		}
		obj.SetAnnotations(existing)
	}
	if doc.Metadata.Finalizers != nil {
		obj.SetFinalizers(doc.Metadata.Finalizers)
	}
	return nil
}

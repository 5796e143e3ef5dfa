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
	"context"
	"fmt"
	"time"

	corev1 "k8s.io/api/core/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/types"
	"k8s.io/client-go/kubernetes"
)

// APIUtil is the seam between the reconcilers and the Kubernetes API.
// Every API call the controller makes goes through it, which is what
// makes the reconcilers testable against a FakeAPIUtil instead of a
// real apiserver.
type APIUtil interface {
	CreatePod(ctx context.Context, pod *corev1.Pod) (*corev1.Pod, error)
	GetPod(ctx context.Context, namespace, name string) (*corev1.Pod, error)
	DeletePod(ctx context.Context, namespace, name string) error

	CreatePV(ctx context.Context, pv *corev1.PersistentVolume) (*corev1.PersistentVolume, error)
	DeletePV(ctx context.Context, name string) error

	GetPVC(ctx context.Context, namespace, name string) (*corev1.PersistentVolumeClaim, error)
	PatchPVC(ctx context.Context, namespace, name string, patch []byte) (*corev1.PersistentVolumeClaim, error)
}

var _ APIUtil = &apiUtil{}

type apiUtil struct {
	client kubernetes.Interface
}

// NewAPIUtil wraps a real clientset as an APIUtil.
func NewAPIUtil(client kubernetes.Interface) APIUtil {
	return &apiUtil{client: client}
}

func (u *apiUtil) instrument(verb string, start time.Time, err error) {
	APIServerRequestsTotal.WithLabelValues(verb).Inc()
	APIServerRequestDurationSeconds.WithLabelValues(verb).Observe(time.Since(start).Seconds())
	if err != nil {
		APIServerRequestsFailedTotal.WithLabelValues(verb).Inc()
	}
}

func (u *apiUtil) CreatePod(ctx context.Context, pod *corev1.Pod) (*corev1.Pod, error) {
	start := time.Now()
	out, err := u.client.CoreV1().Pods(pod.Namespace).Create(ctx, pod, metav1.CreateOptions{})
	u.instrument(APIServerRequestCreate, start, err)
	return out, err
}

func (u *apiUtil) GetPod(ctx context.Context, namespace, name string) (*corev1.Pod, error) {
	start := time.Now()
	out, err := u.client.CoreV1().Pods(namespace).Get(ctx, name, metav1.GetOptions{})
	u.instrument(APIServerRequestGet, start, err)
	return out, err
}

func (u *apiUtil) DeletePod(ctx context.Context, namespace, name string) error {
	start := time.Now()
	err := u.client.CoreV1().Pods(namespace).Delete(ctx, name, metav1.DeleteOptions{})
	u.instrument(APIServerRequestDelete, start, err)
	return err
}

func (u *apiUtil) CreatePV(ctx context.Context, pv *corev1.PersistentVolume) (*corev1.PersistentVolume, error) {
	start := time.Now()
	out, err := u.client.CoreV1().PersistentVolumes().Create(ctx, pv, metav1.CreateOptions{})
	u.instrument(APIServerRequestCreate, start, err)
	return out, err
}

func (u *apiUtil) DeletePV(ctx context.Context, name string) error {
	start := time.Now()
	err := u.client.CoreV1().PersistentVolumes().Delete(ctx, name, metav1.DeleteOptions{})
	u.instrument(APIServerRequestDelete, start, err)
	return err
}

func (u *apiUtil) GetPVC(ctx context.Context, namespace, name string) (*corev1.PersistentVolumeClaim, error) {
	start := time.Now()
	out, err := u.client.CoreV1().PersistentVolumeClaims(namespace).Get(ctx, name, metav1.GetOptions{})
	u.instrument(APIServerRequestGet, start, err)
	return out, err
}

func (u *apiUtil) PatchPVC(ctx context.Context, namespace, name string, patch []byte) (*corev1.PersistentVolumeClaim, error) {
	start := time.Now()
	out, err := u.client.CoreV1().PersistentVolumeClaims(namespace).Patch(ctx, name, types.MergePatchType, patch, metav1.PatchOptions{})
	u.instrument(APIServerRequestPatch, start, err)
	return out, err
}

// FakeAPIUtil is an in-memory APIUtil for unit tests, modeled on the
// teacher's FakeAPIUtil: plain maps instead of a fake clientset, plus a
// shouldFail switch so reconcilers' error paths can be exercised
// directly.
type FakeAPIUtil struct {
	Pods map[string]*corev1.Pod // key: namespace/name
	PVs  map[string]*corev1.PersistentVolume
	PVCs map[string]*corev1.PersistentVolumeClaim

	ShouldFail bool

	// CreatePVErr, when set, is returned by CreatePV in place of its
	// normal behavior, independent of ShouldFail. It lets tests drive
	// the PV Publication Reconciler's bounded-retry path without also
	// failing the PatchPVC call that records the retry count.
	CreatePVErr error
}

var _ APIUtil = &FakeAPIUtil{}

// NewFakeAPIUtil returns an empty FakeAPIUtil.
func NewFakeAPIUtil() *FakeAPIUtil {
	return &FakeAPIUtil{
		Pods: map[string]*corev1.Pod{},
		PVs:  map[string]*corev1.PersistentVolume{},
		PVCs: map[string]*corev1.PersistentVolumeClaim{},
	}
}

func podKey(namespace, name string) string { return namespace + "/" + name }

func (u *FakeAPIUtil) CreatePod(_ context.Context, pod *corev1.Pod) (*corev1.Pod, error) {
	if u.ShouldFail {
		return nil, fmt.Errorf("fake API failure")
	}
	key := podKey(pod.Namespace, pod.Name)
	if existing, found := u.Pods[key]; found {
		return nil, apierrors.NewAlreadyExists(corev1.Resource("pods"), existing.Name)
	}
	if pod.Status.Phase == "" {
		pod.Status.Phase = corev1.PodPending
	}
	u.Pods[key] = pod
	return pod, nil
}

func (u *FakeAPIUtil) GetPod(_ context.Context, namespace, name string) (*corev1.Pod, error) {
	if u.ShouldFail {
		return nil, fmt.Errorf("fake API failure")
	}
	pod, found := u.Pods[podKey(namespace, name)]
	if !found {
		return nil, apierrors.NewNotFound(corev1.Resource("pods"), name)
	}
	return pod, nil
}

func (u *FakeAPIUtil) DeletePod(_ context.Context, namespace, name string) error {
	if u.ShouldFail {
		return fmt.Errorf("fake API failure")
	}
	key := podKey(namespace, name)
	if _, found := u.Pods[key]; !found {
		return apierrors.NewNotFound(corev1.Resource("pods"), name)
	}
	delete(u.Pods, key)
	return nil
}

func (u *FakeAPIUtil) CreatePV(_ context.Context, pv *corev1.PersistentVolume) (*corev1.PersistentVolume, error) {
	if u.CreatePVErr != nil {
		return nil, u.CreatePVErr
	}
	if u.ShouldFail {
		return nil, fmt.Errorf("fake API failure")
	}
	if existing, found := u.PVs[pv.Name]; found {
		return nil, apierrors.NewAlreadyExists(corev1.Resource("persistentvolumes"), existing.Name)
	}
	u.PVs[pv.Name] = pv
	return pv, nil
}

func (u *FakeAPIUtil) DeletePV(_ context.Context, name string) error {
	if u.ShouldFail {
		return fmt.Errorf("fake API failure")
	}
	if _, found := u.PVs[name]; !found {
		return apierrors.NewNotFound(corev1.Resource("persistentvolumes"), name)
	}
	delete(u.PVs, name)
	return nil
}

func (u *FakeAPIUtil) GetPVC(_ context.Context, namespace, name string) (*corev1.PersistentVolumeClaim, error) {
	if u.ShouldFail {
		return nil, fmt.Errorf("fake API failure")
	}
	pvc, found := u.PVCs[podKey(namespace, name)]
	if !found {
		return nil, apierrors.NewNotFound(corev1.Resource("persistentvolumeclaims"), name)
	}
	return pvc, nil
}

func (u *FakeAPIUtil) PatchPVC(_ context.Context, namespace, name string, patch []byte) (*corev1.PersistentVolumeClaim, error) {
	if u.ShouldFail {
		return nil, fmt.Errorf("fake API failure")
	}
	pvc, found := u.PVCs[podKey(namespace, name)]
	if !found {
		return nil, apierrors.NewNotFound(corev1.Resource("persistentvolumeclaims"), name)
	}
	if err := applyMergePatch(pvc, patch); err != nil {
		return nil, err
	}
	return pvc, nil
}

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

package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/golang/glog"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/rest"
	"k8s.io/client-go/tools/clientcmd"

	"github.com/jtgans/zfs-provisioner/pkg/provisioner"
)

var (
	optVerbose         bool
	optDebug           bool
	optKubeconfig      string
	optProvisionerName string
	optNamespace       string
	optParentDataset   string
	optMountDir        string
	optContainerImage  string
	optMetricsAddress  string
	optMetricsPath     string
)

func main() {
	defaults := provisioner.DefaultConfig()

	flag.BoolVar(&optVerbose, "verbose", false, "enable info-level logging")
	flag.BoolVar(&optDebug, "debug", false, "enable debug-level logging")
	flag.StringVar(&optKubeconfig, "kubeconfig", "", "path to a kubeconfig; empty uses in-cluster config")
	flag.StringVar(&optProvisionerName, "provisioner-name", defaults.ProvisionerName, "provisioner name matched against StorageClass.provisioner")
	flag.StringVar(&optNamespace, "namespace", defaults.Namespace, "namespace worker pods are created in")
	flag.StringVar(&optParentDataset, "parent-dataset", defaults.DefaultParentDataset, "parent ZFS dataset for per-PVC datasets")
	flag.StringVar(&optMountDir, "mount-dir", defaults.DatasetMountDir, "parent mount directory for per-PVC datasets")
	flag.StringVar(&optContainerImage, "container-image", defaults.ContainerImage, "container image used for worker pods")
	flag.StringVar(&optMetricsAddress, "metrics-address", defaults.MetricsAddress, "address to serve /metrics on")
	flag.StringVar(&optMetricsPath, "metrics-path", defaults.MetricsPath, "path to serve metrics under")
	flag.Set("logtostderr", "true")
	flag.Parse()

	configureLogLevel()

	cfg := defaults
	cfg.ProvisionerName = optProvisionerName
	cfg.Namespace = optNamespace
	cfg.DefaultParentDataset = optParentDataset
	cfg.DatasetMountDir = optMountDir
	cfg.ContainerImage = optContainerImage
	cfg.MetricsAddress = optMetricsAddress
	cfg.MetricsPath = optMetricsPath

	client, err := buildClient(optKubeconfig)
	if err != nil {
		glog.Fatalf("building kubernetes client: %v", err)
	}

	provisioner.RegisterMetrics(nil)

	ctx, cancel := context.WithCancel(context.Background())
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		glog.Info("received shutdown signal")
		cancel()
	}()

	controller := provisioner.NewController(cfg, client)

	go func() {
		glog.Infof("serving metrics on %s%s", cfg.MetricsAddress, cfg.MetricsPath)
		http.Handle(cfg.MetricsPath, promhttp.Handler())
		if err := http.ListenAndServe(cfg.MetricsAddress, nil); err != nil {
			glog.Errorf("metrics server exited: %v", err)
		}
	}()

	if err := controller.Run(ctx); err != nil {
		glog.Fatalf("controller exited with error: %v", err)
	}
}

// configureLogLevel honors --verbose and --debug, falling back to
// ZFS_PROVISIONER_LOG_LEVEL when neither flag was given. There are no
// -v/-d short forms: -v is glog's own verbosity flag, and -d is not
// registered.
func configureLogLevel() {
	level := "0"
	switch {
	case optDebug:
		level = "4"
	case optVerbose:
		level = "2"
	default:
		if envLevel := os.Getenv("ZFS_PROVISIONER_LOG_LEVEL"); envLevel != "" {
			level = envLevel
		}
	}
	flag.Set("v", level)
}

// buildClient constructs a clientset from kubeconfigPath, or from the
// in-cluster config when kubeconfigPath is empty.
func buildClient(kubeconfigPath string) (kubernetes.Interface, error) {
	var restConfig *rest.Config
	var err error
	if kubeconfigPath != "" {
		restConfig, err = clientcmd.BuildConfigFromFlags("", kubeconfigPath)
	} else {
		restConfig, err = rest.InClusterConfig()
	}
	if err != nil {
		return nil, err
	}
	return kubernetes.NewForConfig(restConfig)
}

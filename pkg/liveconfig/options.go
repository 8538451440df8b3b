package liveconfig

import (
	"fmt"
	"time"

	"k8s.io/client-go/dynamic"
	"k8s.io/client-go/kubernetes"

	"github.com/emortalmc/live-config-parser/pkg/watcher"
)

// Source selects where game mode configs are loaded from.
type Source string

const (
	// SourceAuto uses the ConfigMap when a Kubernetes client is available, else the local path.
	SourceAuto       Source = "auto"
	SourceKubernetes Source = "kubernetes"
	SourceLocal      Source = "local"
	SourceCRD        Source = "crd"
)

const (
	DefaultNamespace     = "emortalmc"
	DefaultConfigMapName = "gamemodes"
	DefaultPath          = "./config/gamemodes"
)

// Options configures NewLiveConfigCollection.
type Options struct {
	Source        Source
	Namespace     string
	ConfigMapName string
	Path          string
	SyncTimeout   time.Duration

	// Clientset is required by the kubernetes source and enables it for auto.
	Clientset kubernetes.Interface
	// DynamicClient is required by the crd source.
	DynamicClient dynamic.Interface
}

// SetDefaults fills unset fields with their defaults.
func (o *Options) SetDefaults() {
	if o.Source == "" {
		o.Source = SourceAuto
	}
	if o.Namespace == "" {
		o.Namespace = DefaultNamespace
	}
	if o.ConfigMapName == "" {
		o.ConfigMapName = DefaultConfigMapName
	}
	if o.Path == "" {
		o.Path = DefaultPath
	}
	if o.SyncTimeout == 0 {
		o.SyncTimeout = watcher.DefaultSyncTimeout
	}
}

// Validate checks that the options describe a usable source.
func (o *Options) Validate() error {
	switch o.Source {
	case SourceAuto, SourceLocal:
	case SourceKubernetes:
		if o.Clientset == nil {
			return fmt.Errorf("source %s requires a Kubernetes client", o.Source)
		}
	case SourceCRD:
		if o.DynamicClient == nil {
			return fmt.Errorf("source %s requires a dynamic Kubernetes client", o.Source)
		}
	default:
		return fmt.Errorf("unknown source %q, must be one of auto, kubernetes, local, crd", o.Source)
	}

	if o.SyncTimeout < 0 {
		return fmt.Errorf("sync timeout must not be negative, got %s", o.SyncTimeout)
	}
	if (o.Source == SourceKubernetes || o.Source == SourceCRD) && o.Namespace == "" {
		return fmt.Errorf("namespace is required for source %s", o.Source)
	}
	if o.Source == SourceKubernetes && o.ConfigMapName == "" {
		return fmt.Errorf("ConfigMap name is required for source %s", o.Source)
	}
	if o.Source == SourceLocal && o.Path == "" {
		return fmt.Errorf("path is required for source %s", o.Source)
	}
	return nil
}

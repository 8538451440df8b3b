// Package v1alpha1 contains API definitions for the GameMode custom resource.
package v1alpha1

import (
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/runtime"
	"k8s.io/apimachinery/pkg/runtime/schema"
)

const (
	// GroupName is the API group name for live config resources.
	GroupName = "liveconfig.emortal.dev"
	// Version is the API version.
	Version = "v1alpha1"
	// GameModeResource is the plural resource name of GameMode.
	GameModeResource = "gamemodes"
	// GameModeCRDName is the name of the GameMode CustomResourceDefinition.
	GameModeCRDName = GameModeResource + "." + GroupName
)

var (
	// SchemeGroupVersion is the group version used to register live config objects.
	SchemeGroupVersion = schema.GroupVersion{Group: GroupName, Version: Version}
	// GameModeGVR identifies GameMode resources for dynamic clients.
	GameModeGVR = SchemeGroupVersion.WithResource(GameModeResource)
	// SchemeBuilder is the scheme builder for this API group.
	SchemeBuilder = runtime.NewSchemeBuilder(addKnownTypes)
	// AddToScheme adds types to the scheme.
	AddToScheme = SchemeBuilder.AddToScheme
)

// Resource takes an unqualified resource and returns a GroupResource.
func Resource(resource string) schema.GroupResource {
	return SchemeGroupVersion.WithResource(resource).GroupResource()
}

func addKnownTypes(scheme *runtime.Scheme) error {
	scheme.AddKnownTypes(SchemeGroupVersion,
		&GameMode{},
		&GameModeList{},
	)
	metav1.AddToGroupVersion(scheme, SchemeGroupVersion)
	return nil
}

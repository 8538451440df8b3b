// Package rbac verifies that the current identity may use the live config sources.
package rbac

import (
	"context"
	"errors"
	"fmt"
	"strings"

	authv1 "k8s.io/api/authorization/v1"
	apiextensionsv1 "k8s.io/apiextensions-apiserver/pkg/apis/apiextensions/v1"
	apiextensionsclientset "k8s.io/apiextensions-apiserver/pkg/client/clientset/clientset"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes"

	"github.com/emortalmc/live-config-parser/pkg/apis/liveconfig/v1alpha1"
	"github.com/emortalmc/live-config-parser/pkg/liveconfig"
)

var (
	// ErrMissingPermissions is returned when at least one required permission is denied.
	ErrMissingPermissions = errors.New("missing required RBAC permissions")
	// ErrCRDNotReady is returned when the GameMode CRD is missing or not established.
	ErrCRDNotReady = errors.New("GameMode CRD not ready")
)

// RequiredPermission represents a permission that needs to be verified
type RequiredPermission struct {
	APIGroup  string
	Resource  string
	Verb      string
	Namespace string // empty for cluster-scoped
}

func (p RequiredPermission) String() string {
	scope := "cluster-scoped"
	if p.Namespace != "" {
		scope = fmt.Sprintf("namespace=%s", p.Namespace)
	}
	resource := p.Resource
	if p.APIGroup != "" {
		resource += "." + p.APIGroup
	}
	return fmt.Sprintf("%s %s (%s)", p.Verb, resource, scope)
}

// WatchPermissions returns the permissions needed to watch game modes from source.
func WatchPermissions(source liveconfig.Source, namespace string) []RequiredPermission {
	switch source {
	case liveconfig.SourceKubernetes:
		return []RequiredPermission{
			{APIGroup: "", Resource: "configmaps", Verb: "get", Namespace: namespace},
			{APIGroup: "", Resource: "configmaps", Verb: "list", Namespace: namespace},
			{APIGroup: "", Resource: "configmaps", Verb: "watch", Namespace: namespace},
		}
	case liveconfig.SourceCRD:
		return []RequiredPermission{
			// Cluster-scoped permissions (CRDs)
			{APIGroup: "apiextensions.k8s.io", Resource: "customresourcedefinitions", Verb: "get", Namespace: ""},

			{APIGroup: v1alpha1.GroupName, Resource: v1alpha1.GameModeResource, Verb: "get", Namespace: namespace},
			{APIGroup: v1alpha1.GroupName, Resource: v1alpha1.GameModeResource, Verb: "list", Namespace: namespace},
			{APIGroup: v1alpha1.GroupName, Resource: v1alpha1.GameModeResource, Verb: "watch", Namespace: namespace},
		}
	default:
		return nil
	}
}

// PublishPermissions returns the permissions needed to push configs into a ConfigMap.
func PublishPermissions(namespace string) []RequiredPermission {
	return []RequiredPermission{
		{APIGroup: "", Resource: "configmaps", Verb: "get", Namespace: namespace},
		{APIGroup: "", Resource: "configmaps", Verb: "create", Namespace: namespace},
		{APIGroup: "", Resource: "configmaps", Verb: "update", Namespace: namespace},
	}
}

// VerifyPermissions checks that the current identity has every permission in perms.
func VerifyPermissions(ctx context.Context, clientset kubernetes.Interface, perms []RequiredPermission) error {
	var missingPermissions []string

	for _, perm := range perms {
		allowed, err := CheckPermission(ctx, clientset, perm)
		if err != nil {
			return fmt.Errorf("failed to check permission %s: %w", perm, err)
		}
		if !allowed {
			missingPermissions = append(missingPermissions, "  - "+perm.String())
		}
	}

	if len(missingPermissions) > 0 {
		return fmt.Errorf("%w:\n%s", ErrMissingPermissions, strings.Join(missingPermissions, "\n"))
	}
	return nil
}

// VerifyCRDExists checks if the GameMode CRD is installed and established
func VerifyCRDExists(ctx context.Context, client apiextensionsclientset.Interface) error {
	crd, err := client.ApiextensionsV1().CustomResourceDefinitions().Get(ctx, v1alpha1.GameModeCRDName, metav1.GetOptions{})
	if err != nil {
		return fmt.Errorf("%w: %s not found: %w", ErrCRDNotReady, v1alpha1.GameModeCRDName, err)
	}

	for _, condition := range crd.Status.Conditions {
		if condition.Type == apiextensionsv1.Established && condition.Status == apiextensionsv1.ConditionTrue {
			return nil
		}
	}

	return fmt.Errorf("%w: %s exists but is not established", ErrCRDNotReady, v1alpha1.GameModeCRDName)
}

// CheckPermission verifies if a specific permission is granted
func CheckPermission(ctx context.Context, clientset kubernetes.Interface, perm RequiredPermission) (bool, error) {
	sar := &authv1.SelfSubjectAccessReview{
		Spec: authv1.SelfSubjectAccessReviewSpec{
			ResourceAttributes: &authv1.ResourceAttributes{
				Verb:      perm.Verb,
				Group:     perm.APIGroup,
				Resource:  perm.Resource,
				Namespace: perm.Namespace,
			},
		},
	}

	result, err := clientset.AuthorizationV1().SelfSubjectAccessReviews().Create(ctx, sar, metav1.CreateOptions{})
	if err != nil {
		return false, err
	}

	return result.Status.Allowed, nil
}

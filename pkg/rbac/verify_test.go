package rbac_test

import (
	"context"
	"errors"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	authv1 "k8s.io/api/authorization/v1"
	apiextensionsv1 "k8s.io/apiextensions-apiserver/pkg/apis/apiextensions/v1"
	apiextensionsfake "k8s.io/apiextensions-apiserver/pkg/client/clientset/clientset/fake"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/runtime"
	"k8s.io/client-go/kubernetes/fake"
	k8stesting "k8s.io/client-go/testing"

	"github.com/emortalmc/live-config-parser/pkg/apis/liveconfig/v1alpha1"
	"github.com/emortalmc/live-config-parser/pkg/liveconfig"
	"github.com/emortalmc/live-config-parser/pkg/rbac"
)

// clientsetAllowing answers every access review with allowed(attributes).
func clientsetAllowing(allowed func(attrs *authv1.ResourceAttributes) bool) *fake.Clientset {
	clientset := fake.NewSimpleClientset()
	clientset.PrependReactor("create", "selfsubjectaccessreviews", func(action k8stesting.Action) (bool, runtime.Object, error) {
		createAction := action.(k8stesting.CreateAction)
		sar := createAction.GetObject().(*authv1.SelfSubjectAccessReview)
		sar.Status = authv1.SubjectAccessReviewStatus{
			Allowed: allowed(sar.Spec.ResourceAttributes),
		}
		return true, sar, nil
	})
	return clientset
}

func hasPermission(perms []rbac.RequiredPermission, group, resource, verb, namespace string) bool {
	for _, perm := range perms {
		if perm.APIGroup == group && perm.Resource == resource && perm.Verb == verb && perm.Namespace == namespace {
			return true
		}
	}
	return false
}

var _ = Describe("RBAC Verification", func() {
	Describe("WatchPermissions", func() {
		It("should require configmap get, list and watch for the kubernetes source", func() {
			perms := rbac.WatchPermissions(liveconfig.SourceKubernetes, "emortalmc")
			for _, verb := range []string{"get", "list", "watch"} {
				Expect(hasPermission(perms, "", "configmaps", verb, "emortalmc")).To(BeTrue(), "missing configmaps %s", verb)
			}
		})

		It("should require gamemode access and CRD get for the crd source", func() {
			perms := rbac.WatchPermissions(liveconfig.SourceCRD, "emortalmc")
			Expect(hasPermission(perms, "apiextensions.k8s.io", "customresourcedefinitions", "get", "")).To(BeTrue())
			for _, verb := range []string{"get", "list", "watch"} {
				Expect(hasPermission(perms, v1alpha1.GroupName, "gamemodes", verb, "emortalmc")).To(BeTrue(), "missing gamemodes %s", verb)
			}
		})

		It("should require nothing for the local source", func() {
			Expect(rbac.WatchPermissions(liveconfig.SourceLocal, "emortalmc")).To(BeEmpty())
		})
	})

	Describe("PublishPermissions", func() {
		It("should include configmap create and update", func() {
			perms := rbac.PublishPermissions("emortalmc")
			Expect(hasPermission(perms, "", "configmaps", "create", "emortalmc")).To(BeTrue())
			Expect(hasPermission(perms, "", "configmaps", "update", "emortalmc")).To(BeTrue())
		})
	})

	Describe("CheckPermission", func() {
		It("should return allowed for permitted actions", func() {
			clientset := clientsetAllowing(func(*authv1.ResourceAttributes) bool { return true })

			allowed, err := rbac.CheckPermission(context.Background(), clientset, rbac.RequiredPermission{
				Resource: "configmaps", Verb: "get", Namespace: "emortalmc",
			})
			Expect(err).NotTo(HaveOccurred())
			Expect(allowed).To(BeTrue())
		})

		It("should return denied for forbidden actions", func() {
			clientset := clientsetAllowing(func(*authv1.ResourceAttributes) bool { return false })

			allowed, err := rbac.CheckPermission(context.Background(), clientset, rbac.RequiredPermission{
				Resource: "configmaps", Verb: "delete", Namespace: "emortalmc",
			})
			Expect(err).NotTo(HaveOccurred())
			Expect(allowed).To(BeFalse())
		})
	})

	Describe("VerifyPermissions", func() {
		It("should succeed when everything is allowed", func() {
			clientset := clientsetAllowing(func(*authv1.ResourceAttributes) bool { return true })
			perms := rbac.WatchPermissions(liveconfig.SourceKubernetes, "emortalmc")

			Expect(rbac.VerifyPermissions(context.Background(), clientset, perms)).To(Succeed())
		})

		It("should list every missing permission", func() {
			clientset := clientsetAllowing(func(attrs *authv1.ResourceAttributes) bool {
				return attrs.Verb == "get"
			})
			perms := rbac.WatchPermissions(liveconfig.SourceKubernetes, "emortalmc")

			err := rbac.VerifyPermissions(context.Background(), clientset, perms)
			Expect(err).To(MatchError(rbac.ErrMissingPermissions))
			Expect(err.Error()).To(ContainSubstring("list configmaps (namespace=emortalmc)"))
			Expect(err.Error()).To(ContainSubstring("watch configmaps (namespace=emortalmc)"))
			Expect(err.Error()).NotTo(ContainSubstring("get configmaps"))
		})

		It("should fail when the review cannot be created", func() {
			clientset := fake.NewSimpleClientset()
			clientset.PrependReactor("create", "selfsubjectaccessreviews", func(k8stesting.Action) (bool, runtime.Object, error) {
				return true, nil, errors.New("connection refused")
			})

			err := rbac.VerifyPermissions(context.Background(), clientset, rbac.PublishPermissions("emortalmc"))
			Expect(err).To(MatchError(ContainSubstring("connection refused")))
		})
	})

	Describe("VerifyCRDExists", func() {
		newCRD := func(status apiextensionsv1.ConditionStatus) *apiextensionsv1.CustomResourceDefinition {
			return &apiextensionsv1.CustomResourceDefinition{
				ObjectMeta: metav1.ObjectMeta{Name: v1alpha1.GameModeCRDName},
				Status: apiextensionsv1.CustomResourceDefinitionStatus{
					Conditions: []apiextensionsv1.CustomResourceDefinitionCondition{
						{Type: apiextensionsv1.Established, Status: status},
					},
				},
			}
		}

		It("should succeed when the GameMode CRD exists and is established", func() {
			client := apiextensionsfake.NewSimpleClientset(newCRD(apiextensionsv1.ConditionTrue))
			Expect(rbac.VerifyCRDExists(context.Background(), client)).To(Succeed())
		})

		It("should fail when the CRD is not established", func() {
			client := apiextensionsfake.NewSimpleClientset(newCRD(apiextensionsv1.ConditionFalse))
			err := rbac.VerifyCRDExists(context.Background(), client)
			Expect(err).To(MatchError(rbac.ErrCRDNotReady))
			Expect(err.Error()).To(ContainSubstring("not established"))
		})

		It("should fail when the CRD is missing", func() {
			client := apiextensionsfake.NewSimpleClientset()
			Expect(rbac.VerifyCRDExists(context.Background(), client)).To(MatchError(rbac.ErrCRDNotReady))
		})
	})
})

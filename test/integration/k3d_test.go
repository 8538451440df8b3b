//go:build integration

package integration

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/gin-gonic/gin"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/emortalmc/live-config-parser/pkg/kubernetes"
	"github.com/emortalmc/live-config-parser/pkg/liveconfig"
	"github.com/emortalmc/live-config-parser/pkg/rbac"
	"github.com/emortalmc/live-config-parser/pkg/server"
	"github.com/emortalmc/live-config-parser/pkg/version"
)

func kubectl(k3dContext string, args ...string) error {
	cmd := exec.Command("kubectl", append(args, "--context", k3dContext)...)
	cmd.Stdout = GinkgoWriter
	cmd.Stderr = GinkgoWriter
	return cmd.Run()
}

var _ = Describe("K3D Integration Tests", func() {
	var (
		k3dContext    string
		namespace     string
		configMapName string
		configDir     string
		httpClient    *http.Client
		apiServer     *httptest.Server
		collection    *liveconfig.GameModeCollection
		cancel        context.CancelFunc
	)

	getJSON := func(path string, into interface{}) (int, error) {
		resp, err := httpClient.Get(apiServer.URL + path)
		if err != nil {
			return 0, err
		}
		defer resp.Body.Close()
		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return resp.StatusCode, err
		}
		if into != nil {
			if err := json.Unmarshal(body, into); err != nil {
				return resp.StatusCode, fmt.Errorf("decode %s: %w", body, err)
			}
		}
		return resp.StatusCode, nil
	}

	BeforeEach(func() {
		k3dContext = "k3d-liveconfig-test"
		namespace = "default"
		configMapName = fmt.Sprintf("gamemodes-it-%d", time.Now().UnixNano())
		httpClient = &http.Client{Timeout: 30 * time.Second}

		// Verify k3d cluster exists
		Expect(kubectl(k3dContext, "cluster-info")).To(Succeed(), "k3d cluster %s should be running", k3dContext)

		configDir = GinkgoT().TempDir()
		Expect(os.WriteFile(filepath.Join(configDir, "lobby.json"), []byte(`{"id":"lobby","enabled":true,"maxPlayers":50}`), 0o644)).To(Succeed())
		Expect(kubectl(k3dContext, "create", "configmap", configMapName, "-n", namespace, "--from-file="+configDir)).To(Succeed())

		restConfig, err := kubernetes.NewRestConfig(os.Getenv("KUBECONFIG"))
		Expect(err).NotTo(HaveOccurred())
		clients, err := kubernetes.NewClients(restConfig)
		Expect(err).NotTo(HaveOccurred())

		var ctx context.Context
		ctx, cancel = context.WithCancel(context.Background())
		Expect(rbac.VerifyPermissions(ctx, clients.Clientset, rbac.WatchPermissions(liveconfig.SourceKubernetes, namespace))).To(Succeed())

		collection, err = liveconfig.FromKubernetes(ctx, clients.Clientset, namespace, configMapName, nil)
		Expect(err).NotTo(HaveOccurred())

		gin.SetMode(gin.TestMode)
		handler := server.NewHandler(collection, version.Resolve(version.Dev, "", ""), nil)
		apiServer = httptest.NewServer(server.New(handler, nil).Handler())
	})

	AfterEach(func() {
		if apiServer != nil {
			apiServer.Close()
		}
		if collection != nil {
			_ = collection.Close()
		}
		if cancel != nil {
			cancel()
		}
		_ = kubectl(k3dContext, "delete", "configmap", configMapName, "-n", namespace, "--ignore-not-found")
	})

	It("should serve the configs of the ConfigMap", func() {
		var cfg struct {
			ID         string `json:"id"`
			MaxPlayers int    `json:"maxPlayers"`
		}
		status, err := getJSON("/v1/gamemodes/lobby", &cfg)
		Expect(err).NotTo(HaveOccurred())
		Expect(status).To(Equal(http.StatusOK))
		Expect(cfg.MaxPlayers).To(Equal(50))
	})

	It("should pick up ConfigMap changes", func() {
		patch := `{"data":{"lobby.json":"{\"id\":\"lobby\",\"enabled\":true,\"maxPlayers\":80}","parkour.json":"{\"id\":\"parkour\"}"}}`
		Expect(kubectl(k3dContext, "patch", "configmap", configMapName, "-n", namespace, "--type=merge", "-p", patch)).To(Succeed())

		Eventually(func() int {
			var body struct {
				Count int `json:"count"`
			}
			_, _ = getJSON("/v1/gamemodes", &body)
			return body.Count
		}, 30*time.Second, time.Second).Should(Equal(2))

		Eventually(func() int {
			var cfg struct {
				MaxPlayers int `json:"maxPlayers"`
			}
			_, _ = getJSON("/v1/gamemodes/lobby", &cfg)
			return cfg.MaxPlayers
		}, 30*time.Second, time.Second).Should(Equal(80))
	})

	It("should drop configs removed from the ConfigMap", func() {
		Expect(kubectl(k3dContext, "patch", "configmap", configMapName, "-n", namespace, "--type=json",
			"-p", `[{"op":"remove","path":"/data/lobby.json"}]`)).To(Succeed())

		Eventually(func() int {
			status, _ := getJSON("/v1/gamemodes/lobby", nil)
			return status
		}, 30*time.Second, time.Second).Should(Equal(http.StatusNotFound))
	})
})

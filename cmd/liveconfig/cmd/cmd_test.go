package cmd

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/emortalmc/live-config-parser/pkg/configs"
	"github.com/emortalmc/live-config-parser/pkg/liveconfig"
	"github.com/emortalmc/live-config-parser/pkg/version"
)

// run executes the root command with args and returns its output.
func run(args ...string) (string, error) {
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(append(args, "--log-level", "error"))
	err := rootCmd.Execute()
	return out.String(), err
}

func writeFiles(dir string, files map[string]string) {
	for name, contents := range files {
		Expect(os.WriteFile(filepath.Join(dir, name), []byte(contents), 0o644)).To(Succeed())
	}
}

var _ = Describe("Commands", func() {
	var dir string

	BeforeEach(func() {
		dir = GinkgoT().TempDir()
	})

	Describe("getEnvOrDefault", func() {
		It("should return the default for unset variables", func() {
			Expect(getEnvOrDefault("LIVECONFIG_NONEXISTENT_VAR", "default_value")).To(Equal("default_value"))
		})

		It("should return the environment value when set", func() {
			GinkgoT().Setenv("LIVECONFIG_TEST_VAR", "from-env")
			Expect(getEnvOrDefault("LIVECONFIG_TEST_VAR", "default_value")).To(Equal("from-env"))
		})
	})

	Describe("SetVersion", func() {
		It("should set the resolved version on the root command", func() {
			SetVersion("1.0.0", "abc123", "2024-01-01")
			DeferCleanup(SetVersion, version.Dev, "none", "unknown")

			Expect(rootCmd.Version).To(Equal("1.0.0"))
		})
	})

	Describe("version", func() {
		It("should print the environment version", func() {
			GinkgoT().Setenv(version.EnvCommitHash, "abc1234")

			out, err := run("version")
			Expect(err).NotTo(HaveOccurred())
			Expect(out).To(ContainSubstring("version: abc1234"))
			Expect(out).To(ContainSubstring("channel: development"))
		})
	})

	Describe("validate", func() {
		It("should accept a folder of valid configs", func() {
			writeFiles(dir, map[string]string{
				"lobby.json":      `{"id": "lobby"}`,
				"block_sumo.json": `{"id": "block_sumo", "matchmakerInfo": {"matchMethod": "COUNTDOWN", "rate": "PT0.5S"}}`,
				"notes.txt":       "not a config",
			})

			out, err := run("validate", dir)
			Expect(err).NotTo(HaveOccurred())
			Expect(out).To(ContainSubstring("2 game mode configs are valid"))
		})

		It("should report every invalid config", func() {
			writeFiles(dir, map[string]string{
				"broken.json":  `{"id": `,
				"invalid.json": `{"id": "invalid", "minPlayers": 4, "maxPlayers": 2}`,
				"lobby.json":   `{"id": "lobby"}`,
			})

			_, err := run("validate", dir)
			Expect(err).To(HaveOccurred())
			Expect(err.Error()).To(ContainSubstring("broken.json"))
			Expect(err.Error()).To(ContainSubstring("invalid.json"))
			Expect(err.Error()).NotTo(ContainSubstring("lobby.json"))
		})

		It("should reject duplicate ids", func() {
			writeFiles(dir, map[string]string{
				"a.json": `{"id": "lobby"}`,
				"b.json": `{"id": "lobby"}`,
			})

			_, err := run("validate", dir)
			Expect(err).To(MatchError(ContainSubstring("defined in both a.json and b.json")))
		})

		It("should fail for a missing folder", func() {
			_, err := run("validate", filepath.Join(dir, "missing"))
			Expect(err).To(HaveOccurred())
		})
	})

	Describe("list", func() {
		BeforeEach(func() {
			writeFiles(dir, map[string]string{
				"lobby.json":      `{"id": "lobby", "priority": 0, "maxPlayers": 50}`,
				"block_sumo.json": `{"id": "block_sumo", "priority": 1, "minPlayers": 2, "maxPlayers": 8}`,
			})
		})

		It("should print a table", func() {
			out, err := run("list", "--source", "local", "--path", dir, "-o", "table")
			Expect(err).NotTo(HaveOccurred())
			Expect(out).To(ContainSubstring("ID"))
			Expect(out).To(MatchRegexp(`block_sumo\s+false\s+1\s+2-8`))
		})

		It("should print json", func() {
			out, err := run("list", "--source", "local", "--path", dir, "-o", "json")
			Expect(err).NotTo(HaveOccurred())

			var gameModes []configs.GameModeConfig
			Expect(json.Unmarshal([]byte(out), &gameModes)).To(Succeed())
			Expect(gameModes).To(HaveLen(2))
			Expect(gameModes[0].ID).To(Equal("lobby"))
		})

		It("should print yaml", func() {
			out, err := run("list", "--source", "local", "--path", dir, "-o", "yaml")
			Expect(err).NotTo(HaveOccurred())
			Expect(out).To(ContainSubstring("id: block_sumo"))
			Expect(out).To(ContainSubstring("maxPlayers: 50"))
		})

		It("should reject unknown output formats", func() {
			_, err := run("list", "--source", "local", "--path", dir, "-o", "xml")
			Expect(err).To(MatchError(ContainSubstring("unknown output format")))
		})

		It("should fail when the folder is missing", func() {
			_, err := run("list", "--source", "local", "--path", filepath.Join(dir, "missing"), "-o", "table")
			Expect(err).To(MatchError(liveconfig.ErrSourceUnavailable))
		})
	})

	Describe("push", func() {
		It("should reject unknown targets", func() {
			_, err := run("push", dir, "--target", "s3")
			Expect(err).To(MatchError(ContainSubstring("unknown push target")))
			pushTarget = "configmap"
		})

		It("should require credentials when asked to", func() {
			GinkgoT().Setenv(envPublishUsername, "")
			GinkgoT().Setenv(envPublishSecret, "")

			_, err := run("push", dir, "--target", "configmap", "--require-credentials")
			Expect(err).To(MatchError(ContainSubstring("MAVEN_USERNAME and MAVEN_SECRET must be set")))
			requireCredentials = false
		})
	})

	Describe("checkCredentials", func() {
		It("should report present credentials", func() {
			GinkgoT().Setenv(envPublishUsername, "deploy")
			GinkgoT().Setenv(envPublishSecret, "hunter2")

			present, err := checkCredentials(true)
			Expect(err).NotTo(HaveOccurred())
			Expect(present).To(BeTrue())
		})

		It("should allow missing credentials unless required", func() {
			GinkgoT().Setenv(envPublishUsername, "")
			GinkgoT().Setenv(envPublishSecret, "")

			present, err := checkCredentials(false)
			Expect(err).NotTo(HaveOccurred())
			Expect(present).To(BeFalse())
		})
	})

	Describe("publishAnnotations", func() {
		It("should record the version but never the credentials", func() {
			GinkgoT().Setenv(envPublishUsername, "deploy")

			annotations := publishAnnotations(version.Info{Version: "1.2.0", Channel: version.ChannelRelease, Commit: "abc"}, true)
			Expect(annotations).To(HaveKeyWithValue(versionAnnotation, "1.2.0"))
			Expect(annotations).To(HaveKeyWithValue(commitAnnotation, "abc"))
			Expect(annotations).To(HaveKeyWithValue(publisherAnnotation, "true"))
			for _, value := range annotations {
				Expect(value).NotTo(Equal("deploy"))
			}
		})
	})

	Describe("formatUpdate", func() {
		It("should show id changes", func() {
			line := formatUpdate(liveconfig.ConfigUpdate[*configs.GameModeConfig]{
				Type:     liveconfig.UpdateTypeModify,
				FileName: "sumo.json",
				Config:   &configs.GameModeConfig{ID: "block_sumo"},
				Previous: &configs.GameModeConfig{ID: "sumo"},
			})
			Expect(line).To(Equal("modify sumo -> block_sumo (sumo.json)"))
		})

		It("should show creates", func() {
			line := formatUpdate(liveconfig.ConfigUpdate[*configs.GameModeConfig]{
				Type:     liveconfig.UpdateTypeCreate,
				FileName: "lobby.json",
				Config:   &configs.GameModeConfig{ID: "lobby"},
			})
			Expect(line).To(Equal("create lobby (lobby.json)"))
		})
	})
})

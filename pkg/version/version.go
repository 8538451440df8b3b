// Package version resolves the version of the build and the channel it is published to.
package version

import "os"

const (
	// Local is the version of builds without any version information.
	Local = "local"
	// Dev is the ldflags default and means "not set at build time".
	Dev = "dev"

	ChannelDevelopment = "development"
	ChannelRelease     = "release"
	ChannelLocal       = "local"

	EnvCommitHash     = "COMMIT_HASH_SHORT"
	EnvReleaseVersion = "RELEASE_VERSION"
)

// Info describes a resolved version.
type Info struct {
	Version string `json:"version"`
	// Channel is the publish target: development for commit builds, release for releases.
	Channel string `json:"channel"`
	Commit  string `json:"commit,omitempty"`
	Date    string `json:"date,omitempty"`
}

// Resolve picks the version from buildVersion when it was set at build time, else from
// COMMIT_HASH_SHORT, then RELEASE_VERSION, else Local.
func Resolve(buildVersion, commit, date string) Info {
	return resolve(buildVersion, commit, date, os.Getenv)
}

func resolve(buildVersion, commit, date string, getenv func(string) string) Info {
	info := Info{Commit: commit, Date: date}

	if hash := getenv(EnvCommitHash); hash != "" {
		info.Version, info.Channel = hash, ChannelDevelopment
	} else if release := getenv(EnvReleaseVersion); release != "" {
		info.Version, info.Channel = release, ChannelRelease
	} else {
		info.Version, info.Channel = Local, ChannelLocal
	}

	if buildVersion != "" && buildVersion != Dev {
		info.Version = buildVersion
		if info.Channel == ChannelLocal {
			info.Channel = ChannelRelease
		}
	}
	return info
}

package recipe

import (
	"fmt"
	"strings"

	"golang.org/x/mod/semver"

	"github.com/openfroyo/mongorecipe/pkg/engine"
)

// Strategy is an installation method for a given platform and release line.
type Strategy string

const (
	// LegacyTarball downloads a release tarball into /opt/local. Ubuntu 8.10 only.
	LegacyTarball Strategy = "legacy-tarball"

	// AptOneDotEight installs mongodb18-10gen from the 10gen repository.
	AptOneDotEight Strategy = "apt-1.8"

	// AptTwoDotSix is the 2.6 release line. Recognized but not implemented.
	AptTwoDotSix Strategy = "apt-2.6"

	// AptThreeDotZero is the 3.0 release line. Recognized but not implemented.
	AptThreeDotZero Strategy = "apt-3.0"

	// AptUpstreamDefault installs mongodb-10gen from the 10gen repository.
	AptUpstreamDefault Strategy = "apt-upstream-default"

	// AptThreeDotTwo installs the mongodb-org 3.2 packages from repo.mongodb.org.
	AptThreeDotTwo Strategy = "apt-3.2"
)

// SupportedDistro is the only distribution the recipe handles.
const SupportedDistro = "Ubuntu"

// DefaultAptVersion is installed when an apt strategy is chosen without a version.
const DefaultAptVersion = "2.4.5"

// DefaultTarballVersion is fetched when the tarball strategy runs without a version.
const DefaultTarballVersion = "1.4.4"

// supportedReleases lists the supported releases in ascending order.
var supportedReleases = []string{"8.10", "10.04", "12.04", "14.04"}

// releaseCodenames maps each supported release to its codename.
var releaseCodenames = map[string]string{
	"8.10":  "intrepid",
	"10.04": "lucid",
	"12.04": "precise",
	"14.04": "trusty",
}

// SupportedReleases returns the supported release strings in ascending order.
func SupportedReleases() []string {
	out := make([]string, len(supportedReleases))
	copy(out, supportedReleases)
	return out
}

// Implemented reports whether the builder can emit a graph for s.
func (s Strategy) Implemented() bool {
	switch s {
	case LegacyTarball, AptOneDotEight, AptUpstreamDefault, AptThreeDotTwo:
		return true
	}
	return false
}

// UsesApt reports whether s installs from an apt repository.
func (s Strategy) UsesApt() bool {
	return s != LegacyTarball && s != ""
}

// String implements fmt.Stringer.
func (s Strategy) String() string {
	return string(s)
}

// ParseStrategy parses a strategy name as printed by String.
func ParseStrategy(name string) (Strategy, error) {
	s := Strategy(strings.TrimSpace(name))
	switch s {
	case LegacyTarball, AptOneDotEight, AptTwoDotSix, AptThreeDotZero, AptUpstreamDefault, AptThreeDotTwo:
		return s, nil
	}
	return "", fmt.Errorf("unknown strategy %q", name)
}

// normalizeRelease reduces a release string to major.minor, so "12.04.5"
// becomes "12.04". It reports whether the result is a supported release.
func normalizeRelease(release string) (string, bool) {
	parts := strings.Split(strings.TrimSpace(release), ".")
	if len(parts) < 2 {
		return "", false
	}
	mm := parts[0] + "." + parts[1]
	_, ok := releaseCodenames[mm]
	return mm, ok
}

// CodenameFor returns the codename of a supported release, or "".
func CodenameFor(release string) string {
	mm, ok := normalizeRelease(release)
	if !ok {
		return ""
	}
	return releaseCodenames[mm]
}

// versionLine returns the semver major.minor of a MongoDB version, e.g. "v3.2".
// A version without an explicit minor ("3") has no line and returns "".
func versionLine(version string) (string, error) {
	v := "v" + strings.TrimPrefix(strings.TrimSpace(version), "v")
	if !semver.IsValid(v) {
		return "", engine.NewPermanentError(
			fmt.Sprintf("version %q is not a valid release number", version), nil,
		).WithCode(engine.ErrCodeInvalidVersion).WithDetail("version", version)
	}
	core, _, _ := strings.Cut(strings.TrimSuffix(v, semver.Build(v)), "-")
	if !strings.Contains(core, ".") {
		return "", nil
	}
	return semver.MajorMinor(v), nil
}

// SelectStrategy maps a platform and a requested version onto a strategy.
//
// The release is compared as a major.minor string against an explicit list;
// the version is parsed and dispatched on its exact major.minor, so "3.20"
// does not select the 3.2 strategy and a bare "3" falls to the default. An empty version means DefaultAptVersion
// on apt releases. Release 8.10 always selects LegacyTarball.
func SelectStrategy(distro, release, requestedVersion string) (Strategy, error) {
	mm, ok := normalizeRelease(release)
	if distro != SupportedDistro || !ok {
		return "", engine.NewPermanentError(
			fmt.Sprintf("unsupported platform %s %s", distro, release), nil,
		).WithCode(engine.ErrCodeUnsupportedPlatform).
			WithDetail("distro", distro).
			WithDetail("release", release).
			WithDetail("supported", SupportedReleases())
	}

	if mm == "8.10" {
		return LegacyTarball, nil
	}

	version := requestedVersion
	if strings.TrimSpace(version) == "" {
		version = DefaultAptVersion
	}

	line, err := versionLine(version)
	if err != nil {
		return "", err
	}

	switch line {
	case "v3.2":
		return AptThreeDotTwo, nil
	case "v3.0":
		return "", unimplemented(AptThreeDotZero, version)
	case "v2.6":
		return "", unimplemented(AptTwoDotSix, version)
	case "v1.8":
		return AptOneDotEight, nil
	default:
		return AptUpstreamDefault, nil
	}
}

// SelectFor selects a strategy using the distro id and release from facts.
func SelectFor(facts engine.FactProvider, requestedVersion string) (Strategy, error) {
	return SelectStrategy(facts.DistroID(), facts.DistroRelease(), requestedVersion)
}

func unimplemented(s Strategy, version string) error {
	return engine.NewPermanentError(
		fmt.Sprintf("strategy %s for version %s is not implemented", s, version), nil,
	).WithCode(engine.ErrCodeUnimplementedStrategy).
		WithDetail("strategy", string(s)).
		WithDetail("version", version)
}

// Profile holds the fixed per-strategy parameters of an apt installation.
type Profile struct {
	Strategy Strategy

	// ServiceName names the service, its config file and its upstart job.
	ServiceName string

	// ConfigTemplate renders /etc/<ServiceName>.conf.
	ConfigTemplate string

	// KeyID is the repository signing key; KeyExec names the import exec.
	KeyID   string
	KeyExec string

	// Packages are installed at the requested version. The first is aliased to "mongodb".
	Packages []string

	// Superseded packages are removed.
	Superseded []string

	// Series selects the repo.mongodb.org line; empty means the legacy 10gen repo.
	Series string
}

// PrimaryPackage returns the package aliased to "mongodb".
func (p Profile) PrimaryPackage() string {
	return p.Packages[0]
}

// ProfileFor returns the apt profile of s.
func ProfileFor(s Strategy) (Profile, bool) {
	switch s {
	case AptOneDotEight:
		return Profile{
			Strategy:       s,
			ServiceName:    "mongodb",
			ConfigTemplate: "mongodb.conf",
			KeyID:          "7F0CEB10",
			KeyExec:        "10gen apt-key",
			Packages:       []string{"mongodb18-10gen"},
			Superseded:     []string{"mongodb-10gen"},
		}, true
	case AptUpstreamDefault:
		return Profile{
			Strategy:       s,
			ServiceName:    "mongodb",
			ConfigTemplate: "mongodb.conf",
			KeyID:          "7F0CEB10",
			KeyExec:        "10gen apt-key",
			Packages:       []string{"mongodb-10gen"},
			Superseded:     []string{"mongodb18-10gen"},
		}, true
	case AptThreeDotTwo:
		return Profile{
			Strategy:       s,
			ServiceName:    "mongod",
			ConfigTemplate: "mongod.conf",
			KeyID:          "EA312927",
			KeyExec:        "mongodb-org apt-key",
			Packages: []string{
				"mongodb-org",
				"mongodb-org-server",
				"mongodb-org-shell",
				"mongodb-org-mongos",
				"mongodb-org-tools",
			},
			Superseded: []string{"mongodb-10gen", "mongodb18-10gen"},
			Series:     "3.2",
		}, true
	}
	return Profile{}, false
}

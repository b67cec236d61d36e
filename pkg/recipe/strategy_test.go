package recipe

import (
	"errors"
	"testing"

	"github.com/openfroyo/mongorecipe/pkg/engine"
)

func TestSelectStrategy(t *testing.T) {
	tests := []struct {
		name     string
		distro   string
		release  string
		version  string
		want     Strategy
		wantCode string
	}{
		{name: "intrepid ignores version", distro: "Ubuntu", release: "8.10", version: "3.2.10", want: LegacyTarball},
		{name: "intrepid without version", distro: "Ubuntu", release: "8.10", want: LegacyTarball},
		{name: "intrepid with garbage version", distro: "Ubuntu", release: "8.10", version: "latest", want: LegacyTarball},
		{name: "trusty 3.2", distro: "Ubuntu", release: "14.04", version: "3.2.10", want: AptThreeDotTwo},
		{name: "precise 3.2 with v prefix", distro: "Ubuntu", release: "12.04", version: "v3.2.0", want: AptThreeDotTwo},
		{name: "lucid 1.8", distro: "Ubuntu", release: "10.04", version: "1.8.5", want: AptOneDotEight},
		{name: "empty version uses apt default", distro: "Ubuntu", release: "12.04", want: AptUpstreamDefault},
		{name: "2.4 is upstream default", distro: "Ubuntu", release: "12.04", version: "2.4.5", want: AptUpstreamDefault},
		{name: "3.20 does not match 3.2", distro: "Ubuntu", release: "14.04", version: "3.20.1", want: AptUpstreamDefault},
		{name: "bare major 3 is upstream default", distro: "Ubuntu", release: "12.04", version: "3", want: AptUpstreamDefault},
		{name: "bare major 2 is upstream default", distro: "Ubuntu", release: "14.04", version: "2", want: AptUpstreamDefault},
		{name: "bare major 1 is upstream default", distro: "Ubuntu", release: "10.04", version: "v1", want: AptUpstreamDefault},
		{name: "3.0 prerelease unimplemented", distro: "Ubuntu", release: "14.04", version: "3.0.0-rc1", wantCode: engine.ErrCodeUnimplementedStrategy},
		{name: "point release of ubuntu", distro: "Ubuntu", release: "12.04.5", version: "3.2.1", want: AptThreeDotTwo},
		{name: "3.0 unimplemented", distro: "Ubuntu", release: "14.04", version: "3.0.7", wantCode: engine.ErrCodeUnimplementedStrategy},
		{name: "2.6 unimplemented", distro: "Ubuntu", release: "12.04", version: "2.6.12", wantCode: engine.ErrCodeUnimplementedStrategy},
		{name: "debian unsupported", distro: "Debian", release: "8.10", wantCode: engine.ErrCodeUnsupportedPlatform},
		{name: "lowercase distro unsupported", distro: "ubuntu", release: "14.04", wantCode: engine.ErrCodeUnsupportedPlatform},
		{name: "16.04 unsupported", distro: "Ubuntu", release: "16.04", version: "3.2.10", wantCode: engine.ErrCodeUnsupportedPlatform},
		{name: "release without minor", distro: "Ubuntu", release: "14", wantCode: engine.ErrCodeUnsupportedPlatform},
		{name: "invalid version", distro: "Ubuntu", release: "14.04", version: "three", wantCode: engine.ErrCodeInvalidVersion},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := SelectStrategy(tt.distro, tt.release, tt.version)
			if tt.wantCode != "" {
				if err == nil {
					t.Fatalf("SelectStrategy() = %s, want error %s", got, tt.wantCode)
				}
				if code := engine.CodeOf(err); code != tt.wantCode {
					t.Errorf("error code = %s, want %s (%v)", code, tt.wantCode, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("SelectStrategy() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("SelectStrategy() = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestSelectStrategy_EveryAptReleaseAgrees(t *testing.T) {
	for _, release := range []string{"10.04", "12.04", "14.04"} {
		got, err := SelectStrategy("Ubuntu", release, "3.2.10")
		if err != nil {
			t.Fatalf("%s: unexpected error %v", release, err)
		}
		if got != AptThreeDotTwo {
			t.Errorf("%s: got %s, want %s", release, got, AptThreeDotTwo)
		}
	}
}

func TestSelectStrategy_ErrorsMatchSentinels(t *testing.T) {
	_, err := SelectStrategy("Ubuntu", "14.04", "3.0.0")
	if !errors.Is(err, engine.ErrUnimplementedStrategy) {
		t.Errorf("expected ErrUnimplementedStrategy, got %v", err)
	}
	if !IsUnsupported(err) {
		t.Error("IsUnsupported() should be true for an unimplemented strategy")
	}

	_, err = SelectStrategy("Fedora", "14.04", "")
	if !errors.Is(err, engine.ErrUnsupportedPlatform) {
		t.Errorf("expected ErrUnsupportedPlatform, got %v", err)
	}
	if !engine.IsPermanent(err) {
		t.Error("unsupported platform should be permanent")
	}
}

func TestSelectFor(t *testing.T) {
	facts := engine.StaticFacts{ID: "Ubuntu", Release: "10.04", Codename: "lucid", Arch: "amd64"}
	got, err := SelectFor(facts, "1.8.2")
	if err != nil {
		t.Fatalf("SelectFor() error = %v", err)
	}
	if got != AptOneDotEight {
		t.Errorf("SelectFor() = %s, want %s", got, AptOneDotEight)
	}
}

func TestStrategy_Implemented(t *testing.T) {
	tests := []struct {
		s    Strategy
		want bool
	}{
		{LegacyTarball, true},
		{AptOneDotEight, true},
		{AptUpstreamDefault, true},
		{AptThreeDotTwo, true},
		{AptTwoDotSix, false},
		{AptThreeDotZero, false},
	}
	for _, tt := range tests {
		if got := tt.s.Implemented(); got != tt.want {
			t.Errorf("%s.Implemented() = %v, want %v", tt.s, got, tt.want)
		}
	}
}

func TestParseStrategy(t *testing.T) {
	for _, s := range []Strategy{LegacyTarball, AptOneDotEight, AptTwoDotSix, AptThreeDotZero, AptUpstreamDefault, AptThreeDotTwo} {
		got, err := ParseStrategy(s.String())
		if err != nil || got != s {
			t.Errorf("ParseStrategy(%q) = %s, %v", s, got, err)
		}
	}
	if _, err := ParseStrategy("apt-4.0"); err == nil {
		t.Error("expected error for unknown strategy")
	}
}

func TestCodenameFor(t *testing.T) {
	tests := map[string]string{
		"8.10":    "intrepid",
		"10.04":   "lucid",
		"12.04.5": "precise",
		"14.04":   "trusty",
		"16.04":   "",
	}
	for release, want := range tests {
		if got := CodenameFor(release); got != want {
			t.Errorf("CodenameFor(%q) = %q, want %q", release, got, want)
		}
	}
}

func TestProfileFor(t *testing.T) {
	p, ok := ProfileFor(AptThreeDotTwo)
	if !ok {
		t.Fatal("expected a profile for 3.2")
	}
	if p.ServiceName != "mongod" || p.KeyID != "EA312927" || p.PrimaryPackage() != "mongodb-org" {
		t.Errorf("unexpected 3.2 profile: %+v", p)
	}
	if len(p.Packages) != 5 || len(p.Superseded) != 2 {
		t.Errorf("3.2 profile: %d packages, %d superseded", len(p.Packages), len(p.Superseded))
	}

	p, ok = ProfileFor(AptOneDotEight)
	if !ok || p.PrimaryPackage() != "mongodb18-10gen" || p.Superseded[0] != "mongodb-10gen" {
		t.Errorf("unexpected 1.8 profile: %+v", p)
	}

	if _, ok := ProfileFor(LegacyTarball); ok {
		t.Error("tarball strategy has no apt profile")
	}
}

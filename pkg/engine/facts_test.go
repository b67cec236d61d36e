package engine

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestParseFacts(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    StaticFacts
		wantErr bool
	}{
		{
			name: "unquoted yaml release",
			input: `lsbdistid: Ubuntu
lsbdistrelease: 12.04
lsbdistcodename: precise
architecture: amd64
`,
			want: StaticFacts{ID: "Ubuntu", Release: "12.04", Codename: "precise", Arch: "amd64"},
		},
		{
			name:  "json",
			input: `{"lsbdistid":"Ubuntu","lsbdistrelease":"10.04","lsbdistcodename":"lucid","architecture":"i386"}`,
			want:  StaticFacts{ID: "Ubuntu", Release: "10.04", Codename: "lucid", Arch: "i386"},
		},
		{
			name:    "missing release",
			input:   "lsbdistid: Ubuntu\n",
			wantErr: true,
		},
		{
			name:    "malformed",
			input:   "lsbdistid: [",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseFacts([]byte(tt.input))
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseFacts() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				if CodeOf(err) != ErrCodeValidation {
					t.Errorf("Expected validation code, got %q", CodeOf(err))
				}
				return
			}
			if *got != tt.want {
				t.Errorf("ParseFacts() = %+v, want %+v", *got, tt.want)
			}
		})
	}
}

func TestLoadFactsFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "facts.yaml")
	content := "lsbdistid: Ubuntu\nlsbdistrelease: \"14.04\"\nlsbdistcodename: trusty\narchitecture: x86_64\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	facts, err := LoadFactsFile(path)
	if err != nil {
		t.Fatalf("LoadFactsFile() error = %v", err)
	}

	var p FactProvider = facts
	if p.DistroID() != "Ubuntu" || p.DistroRelease() != "14.04" || p.DistroCodename() != "trusty" {
		t.Errorf("unexpected facts: %+v", facts)
	}

	if _, err := LoadFactsFile(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("Expected error for missing file")
	}
}

func TestNormalizeArch(t *testing.T) {
	tests := map[string]string{
		"i386":   "i686",
		"i686":   "i686",
		"x86_64": "x86_64",
		"amd64":  "amd64",
		"":       "",
	}
	for in, want := range tests {
		if got := NormalizeArch(in); got != want {
			t.Errorf("NormalizeArch(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestSnapshot(t *testing.T) {
	sf := &StaticFacts{ID: "Ubuntu", Release: "12.04"}
	if got := Snapshot(sf); got != *sf {
		t.Errorf("Snapshot() = %+v", got)
	}
}

func TestEngineError_Is(t *testing.T) {
	err := NewPermanentError("bad platform", nil).WithCode(ErrCodeUnsupportedPlatform)

	if !errors.Is(err, ErrUnsupportedPlatform) {
		t.Error("Expected errors.Is to match the sentinel")
	}
	if errors.Is(err, ErrUnimplementedStrategy) {
		t.Error("Expected different codes not to match")
	}

	wrapped := errors.Join(errors.New("context"), err)
	if !errors.Is(wrapped, ErrUnsupportedPlatform) {
		t.Error("Expected match through wrapping")
	}
	if CodeOf(wrapped) != ErrCodeUnsupportedPlatform {
		t.Errorf("CodeOf() = %q", CodeOf(wrapped))
	}
}

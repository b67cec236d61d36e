package recipe

import (
	"errors"
	"strings"
	"testing"
	"testing/fstest"

	"gopkg.in/yaml.v3"

	"github.com/openfroyo/mongorecipe/pkg/engine"
)

func aptData(t *testing.T, s Strategy, opts InstallOptions) TemplateData {
	t.Helper()
	profile, ok := ProfileFor(s)
	if !ok {
		t.Fatalf("no profile for %s", s)
	}
	return TemplateData{
		Options:  opts,
		Profile:  profile,
		Facts:    trusty,
		Codename: "trusty",
		Arch:     "amd64",
	}
}

func TestTemplateRenderer_MongodConfIsYAML(t *testing.T) {
	opts := DefaultOptions(AptThreeDotTwo)
	opts.Auth = true
	opts.LogLevel = 2

	out, err := NewTemplateRenderer(nil).Render("mongod.conf", aptData(t, AptThreeDotTwo, opts))
	if err != nil {
		t.Fatalf("Render() error = %v", err)
	}

	var doc struct {
		Storage struct {
			DBPath  string `yaml:"dbPath"`
			Journal struct {
				Enabled bool `yaml:"enabled"`
			} `yaml:"journal"`
		} `yaml:"storage"`
		SystemLog struct {
			Path      string `yaml:"path"`
			Verbosity int    `yaml:"verbosity"`
		} `yaml:"systemLog"`
		Net struct {
			Port   int    `yaml:"port"`
			BindIP string `yaml:"bindIp"`
		} `yaml:"net"`
		Security struct {
			Authorization string `yaml:"authorization"`
		} `yaml:"security"`
	}
	if err := yaml.Unmarshal([]byte(out), &doc); err != nil {
		t.Fatalf("rendered mongod.conf is not YAML: %v\n%s", err, out)
	}

	if doc.Storage.DBPath != "/var/lib/mongodb" || !doc.Storage.Journal.Enabled {
		t.Errorf("storage = %+v", doc.Storage)
	}
	if doc.SystemLog.Path != "/var/log/mongodb/mongod.log" || doc.SystemLog.Verbosity != 2 {
		t.Errorf("systemLog = %+v", doc.SystemLog)
	}
	if doc.Net.Port != 27017 || doc.Net.BindIP != "127.0.0.1" {
		t.Errorf("net = %+v", doc.Net)
	}
	if doc.Security.Authorization != "enabled" {
		t.Errorf("security = %+v", doc.Security)
	}
}

func TestTemplateRenderer_MongodbConf(t *testing.T) {
	opts := DefaultOptions(AptUpstreamDefault)
	opts.Journal = false
	opts.Verbose = true
	opts.CPULogging = true

	out, err := NewTemplateRenderer(nil).Render("mongodb.conf", aptData(t, AptUpstreamDefault, opts))
	if err != nil {
		t.Fatalf("Render() error = %v", err)
	}
	for _, line := range []string{
		"dbpath=/var/lib/mongodb",
		"logpath=/var/log/mongodb/mongodb.log",
		"bind_ip=127.0.0.1",
		"nojournal=true",
		"cpu=true",
		"verbose=true",
		"v=true",
	} {
		if !strings.Contains(out, line+"\n") {
			t.Errorf("mongodb.conf missing %q:\n%s", line, out)
		}
	}
	if strings.Contains(out, "\njournal=true") {
		t.Error("journal should be disabled")
	}
}

func TestTemplateRenderer_Upstart(t *testing.T) {
	out, err := NewTemplateRenderer(nil).Render("upstart", aptData(t, AptThreeDotTwo, DefaultOptions(AptThreeDotTwo)))
	if err != nil {
		t.Fatalf("Render() error = %v", err)
	}
	if !strings.Contains(out, "--config /etc/mongod.conf") {
		t.Errorf("upstart job should point at mongod.conf:\n%s", out)
	}
}

func TestTemplateRenderer_Errors(t *testing.T) {
	tests := []struct {
		name     string
		fsys     fstest.MapFS
		template string
	}{
		{name: "missing", fsys: fstest.MapFS{}, template: "mongod.conf"},
		{name: "parse failure", fsys: fstest.MapFS{"bad.tmpl": {Data: []byte("{{if}}")}}, template: "bad"},
		{name: "unknown field", fsys: fstest.MapFS{"bad.tmpl": {Data: []byte("{{.Options.Replset}}")}}, template: "bad"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewTemplateRenderer(tt.fsys).Render(tt.template, TemplateData{})
			if !errors.Is(err, engine.ErrTemplateRender) {
				t.Fatalf("expected ErrTemplateRender, got %v", err)
			}
			var ee *engine.EngineError
			if !errors.As(err, &ee) || ee.Details["template"] != tt.template {
				t.Errorf("error should name the template, got %v", err)
			}
		})
	}
}

func TestOverlayFS(t *testing.T) {
	overlay := OverlayFS{
		Dir:  fstest.MapFS{"upstart.tmpl": {Data: []byte("custom job for {{.Profile.ServiceName}}\n")}},
		Base: DefaultTemplates(),
	}
	r := NewTemplateRenderer(overlay)
	data := aptData(t, AptThreeDotTwo, DefaultOptions(AptThreeDotTwo))

	out, err := r.Render("upstart", data)
	if err != nil {
		t.Fatalf("Render() error = %v", err)
	}
	if out != "custom job for mongod\n" {
		t.Errorf("overlay not used: %q", out)
	}

	if _, err := r.Render("mongodb.list", data); err != nil {
		t.Errorf("base template should still render: %v", err)
	}
}

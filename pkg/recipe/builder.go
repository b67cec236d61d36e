package recipe

import (
	"fmt"
	"path"
	"strings"

	"github.com/openfroyo/mongorecipe/pkg/engine"
)

// DefaultHook is the caller-owned task runner step the service is ordered before.
var DefaultHook = engine.ExecKey("rake tasks")

// PackageAlias is the alias every strategy gives its primary package.
const PackageAlias = "mongodb"

// Builder emits the resource graph for a strategy.
type Builder struct {
	// Renderer produces file content. Nil means the built-in templates.
	Renderer Renderer

	// Hook is the downstream step the service must precede. Zero means DefaultHook.
	Hook engine.Key
}

// NewBuilder returns a builder using the built-in templates and DefaultHook.
func NewBuilder() *Builder {
	return &Builder{}
}

func (b *Builder) renderer() Renderer {
	if b.Renderer == nil {
		return NewTemplateRenderer(nil)
	}
	return b.Renderer
}

func (b *Builder) hook() engine.Key {
	if b.Hook.IsZero() {
		return DefaultHook
	}
	return b.Hook
}

// Build declares every resource of strategy s and validates the result:
// every exec is guarded, every edge endpoint resolves and there is no cycle.
func (b *Builder) Build(s Strategy, opts InstallOptions, facts engine.FactProvider) (*engine.Graph, error) {
	if !s.Implemented() {
		return nil, unimplemented(s, opts.Version)
	}
	if sf, ok := facts.(*engine.StaticFacts); facts == nil || (ok && sf == nil) {
		return nil, engine.NewPermanentError("builder has no facts", nil).WithCode(engine.ErrCodeValidation)
	}

	g := engine.NewGraph()
	hook := g.Anchor(b.hook())
	snapshot := engine.Snapshot(facts)

	var err error
	if s == LegacyTarball {
		err = b.buildTarball(g, hook, opts, snapshot)
	} else {
		err = b.buildApt(g, hook, s, opts, snapshot)
	}
	if err != nil {
		return nil, err
	}

	if _, err := engine.NewDAGBuilder().Build(g); err != nil {
		return nil, err
	}
	return g, nil
}

// buildTarball declares the download-and-extract install used on Ubuntu 8.10.
func (b *Builder) buildTarball(g *engine.Graph, hook engine.Key, opts InstallOptions, facts engine.StaticFacts) error {
	arch := engine.NormalizeArch(facts.Arch)
	tarball := fmt.Sprintf("mongodb-linux-%s-%s", arch, opts.Version)
	installDir := "/opt/local/mongo-" + opts.Version

	g.Directory("/data", engine.Attributes{})
	dbDir := g.Directory(opts.DBPath, engine.Attributes{})
	logDir := g.Directory(opts.LogPath, engine.Attributes{})
	optLocal := g.Directory("/opt/local", engine.Attributes{})
	requireParents(g)

	wget := g.Package("wget", engine.Attributes{Ensure: engine.EnsureInstalled})

	install := g.Exec("install_mongodb", engine.Attributes{
		Command: strings.Join([]string{
			fmt.Sprintf("wget http://downloads.mongodb.org/linux/%s.tgz", tarball),
			fmt.Sprintf("tar xzf %s.tgz", tarball),
			fmt.Sprintf("mv %s %s", tarball, installDir),
		}, " && "),
		Cwd:     "/tmp",
		Creates: installDir + "/bin/mongod",
	})
	g.Require(install, optLocal, wget)

	content, err := b.renderer().Render("mongo.init", TemplateData{
		Options:    opts,
		Facts:      facts,
		Arch:       arch,
		Tarball:    tarball,
		InstallDir: installDir,
	})
	if err != nil {
		return err
	}

	initScript := g.File("/etc/init.d/mongodb", engine.Attributes{
		Ensure:   engine.EnsurePresent,
		Mode:     "744",
		Source:   "mongo.init",
		Content:  content,
		Checksum: "md5",
	})

	svc := g.Service("mongodb", engine.Attributes{
		Ensure: engine.EnsureRunning,
		Enable: true,
	})
	g.Before(initScript, svc)
	g.Require(svc, dbDir, logDir, install)
	g.Before(svc, hook)

	return nil
}

// buildApt declares the repository, package and upstart resources of an apt strategy.
func (b *Builder) buildApt(g *engine.Graph, hook engine.Key, s Strategy, opts InstallOptions, facts engine.StaticFacts) error {
	profile, ok := ProfileFor(s)
	if !ok {
		return unimplemented(s, opts.Version)
	}

	codename := facts.Codename
	if codename == "" {
		codename = CodenameFor(facts.Release)
	}
	data := TemplateData{
		Options:  opts,
		Profile:  profile,
		Facts:    facts,
		Codename: codename,
		Arch:     engine.NormalizeArch(facts.Arch),
	}

	rendered := make(map[string]string, 3)
	for _, name := range []string{"mongodb.list", profile.ConfigTemplate, "upstart"} {
		content, err := b.renderer().Render(name, data)
		if err != nil {
			return err
		}
		rendered[name] = content
	}

	sourceList := g.File("/etc/apt/sources.list.d/mongodb.list", engine.Attributes{
		Ensure:  engine.EnsurePresent,
		Mode:    "644",
		Source:  "mongodb.list",
		Content: rendered["mongodb.list"],
	})

	aptKey := g.Exec(profile.KeyExec, engine.Attributes{
		Command: "apt-key adv --keyserver keyserver.ubuntu.com --recv " + profile.KeyID,
		Unless:  "apt-key list | grep " + profile.KeyID,
	})

	aptUpdate := g.Exec("apt-get update", engine.Attributes{
		Command: "apt-get update",
		Unless:  fmt.Sprintf("apt-cache madison %s | grep -qF -- '%s'", profile.PrimaryPackage(), opts.Version),
	})
	g.Require(aptUpdate, sourceList, aptKey)

	packages := make([]engine.Key, 0, len(profile.Packages)+len(profile.Superseded))
	for i, name := range profile.Packages {
		attrs := engine.Attributes{Ensure: engine.EnsureInstalled, Version: opts.Version}
		if i == 0 {
			attrs.Alias = PackageAlias
		}
		pkg := g.Package(name, attrs)
		g.Require(pkg, aptUpdate)
		packages = append(packages, pkg)
	}

	// Superseded names are removed independently of the new packages.
	for _, name := range profile.Superseded {
		packages = append(packages, g.Package(name, engine.Attributes{Ensure: engine.EnsureAbsent}))
	}

	svcName := profile.ServiceName
	conf := g.File("/etc/"+svcName+".conf", engine.Attributes{
		Ensure:  engine.EnsurePresent,
		Mode:    "644",
		Source:  profile.ConfigTemplate,
		Content: rendered[profile.ConfigTemplate],
	})
	g.Require(conf, engine.PackageKey(PackageAlias))

	upstart := g.File("/etc/init/"+svcName+".conf", engine.Attributes{
		Ensure:  engine.EnsurePresent,
		Mode:    "644",
		Source:  "upstart",
		Content: rendered["upstart"],
	})

	initLink := g.File("/etc/init.d/"+svcName, engine.Attributes{
		Ensure: engine.EnsureLink,
		Target: "/lib/init/upstart-job",
	})

	svc := g.Service(svcName, engine.Attributes{
		Ensure:   engine.EnsureRunning,
		Enable:   true,
		Provider: "base",
		Start:    "initctl start " + svcName,
		Stop:     "initctl stop " + svcName,
		Restart:  "initctl restart " + svcName,
		Status:   fmt.Sprintf("initctl status %s | grep running", svcName),
	})

	g.Before(conf, svc)
	g.Notify(conf, svc)
	g.Before(upstart, svc)
	g.Before(initLink, svc)
	g.Require(svc, packages...)
	g.Require(svc, conf, upstart)
	g.Before(svc, hook)

	return nil
}

// requireParents makes each declared directory require its declared parent.
func requireParents(g *engine.Graph) {
	for _, d := range g.Declarations() {
		if d.Kind != engine.KindDirectory {
			continue
		}
		parent := engine.DirectoryKey(path.Dir(d.Name))
		if parent.Name == d.Name {
			continue
		}
		if _, ok := g.Get(parent); ok {
			g.Require(d.Key(), parent)
		}
	}
}

// Package recipe declares the resources that install, configure and run
// MongoDB on an Ubuntu host.
//
// A run has three steps. SelectStrategy maps the host's distribution and
// release plus the requested version onto a Strategy. MergeOptions overlays
// caller overrides on the strategy's defaults. Builder.Build then emits an
// engine.Graph: directories, packages, guarded execs, rendered files and the
// service, connected by require, before and notify edges. The service is
// always ordered before a hook step owned by the caller (Exec[rake tasks]
// unless configured otherwise).
//
// Recipe.Run wraps the three steps with logging, metrics and tracing:
//
//	facts := engine.StaticFacts{ID: "Ubuntu", Release: "14.04", Codename: "trusty", Arch: "amd64"}
//	version := "3.2.10"
//	res, err := recipe.New(facts).Run(ctx, recipe.Overrides{Version: &version})
//
// File contents come from text/template files embedded in the package. A
// directory of replacement templates can be layered on top with OverlayFS.
package recipe

package commands

import (
	"context"
	"errors"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/openfroyo/mongorecipe/pkg/policy"
	"github.com/openfroyo/mongorecipe/pkg/telemetry"
)

func newWatchCommand() *cobra.Command {
	var (
		rf          recipeFlags
		metricsAddr string
		recordDB    string
		debounce    time.Duration
	)

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Rebuild the graph whenever the recipe changes",
		Long: `Watch rebuilds the resource graph each time the recipe file, its facts
file, its script or its templates change, and reloads site policies when
a policy file changes. Metrics are served over HTTP while it runs.`,
		Example: `  mongorecipe watch -f recipe.cue --metrics-addr :9090 --record runs.db`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			lr, err := loadRecipe(ctx, &rf)
			if err != nil {
				return err
			}

			tel, err := newTelemetry(metricsAddr)
			if err != nil {
				return err
			}
			defer tel.Shutdown(context.Background())
			ctx = tel.WithContext(ctx)

			if srv := tel.Metrics.StartMetricsServer(); srv != nil {
				log.Info().Str("address", metricsAddr).Msg("Serving metrics")
				defer shutdownServer(srv)
			}

			paths := policyPaths(lr.Config, nil)
			eng, err := newPolicyEngine(ctx, tel, paths)
			if err != nil {
				return err
			}
			defer eng.Close()
			if len(paths) > 0 {
				if err := eng.Watch(ctx, paths); err != nil {
					return err
				}
			}

			fsw, err := fsnotify.NewWatcher()
			if err != nil {
				return err
			}
			defer fsw.Close()

			w := &recipeWatcher{flags: &rf, dbPath: recordDB, engine: eng, metrics: tel.Metrics}
			w.use(fsw, lr)
			w.rebuild(ctx)

			var reload <-chan time.Time
			var timer *time.Timer
			for {
				select {
				case <-ctx.Done():
					if timer != nil {
						timer.Stop()
					}
					return nil

				case event, ok := <-fsw.Events:
					if !ok {
						return nil
					}
					if !w.relevant(event) {
						continue
					}
					log.Debug().Str("file", event.Name).Str("op", event.Op.String()).Msg("Recipe input changed")
					if timer == nil {
						timer = time.NewTimer(debounce)
					} else {
						timer.Reset(debounce)
					}
					reload = timer.C

				case <-reload:
					reload = nil
					w.reload(ctx, fsw)

				case err, ok := <-fsw.Errors:
					if !ok {
						return nil
					}
					log.Warn().Err(err).Msg("Watcher error")
				}
			}
		},
	}

	rf.register(cmd)
	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", ":9090", "metrics listen address (empty disables)")
	cmd.Flags().StringVar(&recordDB, "record", "", "history database to record each rebuild in")
	cmd.Flags().DurationVar(&debounce, "debounce", 300*time.Millisecond, "quiet period before rebuilding")

	return cmd
}

// recipeWatcher rebuilds a recipe from its current inputs.
type recipeWatcher struct {
	flags   *recipeFlags
	dbPath  string
	engine  *policy.Engine
	metrics *telemetry.Metrics

	current *loadedRecipe
	files   map[string]bool
	dirs    []string
}

// use makes lr current and watches its inputs.
func (w *recipeWatcher) use(fsw *fsnotify.Watcher, lr *loadedRecipe) {
	w.current = lr
	w.files = make(map[string]bool)
	w.dirs = nil

	inputs := append([]string{}, lr.Sources...)
	inputs = append(inputs, lr.Config.FactsFile, lr.Config.Script)
	for _, f := range inputs {
		if f == "" || f == "inline" {
			continue
		}
		abs, err := filepath.Abs(f)
		if err != nil {
			continue
		}
		w.files[abs] = true
		w.add(fsw, filepath.Dir(abs))
	}
	if lr.Config.Templates != "" {
		if abs, err := filepath.Abs(lr.Config.Templates); err == nil {
			w.dirs = append(w.dirs, abs)
			w.add(fsw, abs)
		}
	}
}

func (w *recipeWatcher) add(fsw *fsnotify.Watcher, dir string) {
	if err := fsw.Add(dir); err != nil {
		log.Warn().Err(err).Str("path", dir).Msg("Failed to watch directory")
	}
}

// relevant reports whether event touches a recipe input.
func (w *recipeWatcher) relevant(event fsnotify.Event) bool {
	if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) &&
		!event.Has(fsnotify.Remove) && !event.Has(fsnotify.Rename) {
		return false
	}
	abs, err := filepath.Abs(event.Name)
	if err != nil {
		return false
	}
	if w.files[abs] || (strings.HasSuffix(abs, ".cue") && w.inSourceDir(abs)) {
		return true
	}
	for _, dir := range w.dirs {
		if strings.HasPrefix(abs, dir+string(filepath.Separator)) {
			return true
		}
	}
	return false
}

func (w *recipeWatcher) inSourceDir(abs string) bool {
	for _, src := range w.current.Sources {
		if s, err := filepath.Abs(src); err == nil && filepath.Dir(s) == filepath.Dir(abs) {
			return true
		}
	}
	return false
}

// reload re-reads the recipe. A broken edit keeps the previous recipe.
func (w *recipeWatcher) reload(ctx context.Context, fsw *fsnotify.Watcher) {
	lr, err := loadRecipe(ctx, w.flags)
	if err != nil {
		w.metrics.RecordConfigReload("error")
		log.Error().Err(err).Msg("Recipe reload failed, keeping previous recipe")
		return
	}
	w.metrics.RecordConfigReload("ok")
	w.use(fsw, lr)
	w.rebuild(ctx)
}

// rebuild runs the current recipe, checks it and optionally records it.
func (w *recipeWatcher) rebuild(ctx context.Context) {
	lr := w.current
	startedAt := time.Now()
	res, runErr := newRecipe(lr).Run(ctx, lr.Overrides)

	var result *policy.PolicyResult
	if runErr == nil {
		var err error
		result, err = evaluateResult(ctx, w.engine, res, "watch")
		if err != nil {
			log.Error().Err(err).Msg("Policy evaluation failed")
		}
	}

	if w.dbPath != "" {
		if _, err := recordRun(ctx, w.dbPath, lr, res, runErr, result, startedAt); err != nil {
			log.Error().Err(err).Msg("Failed to record run")
		}
	}

	if runErr != nil {
		log.Error().Err(runErr).Msg("Rebuild failed")
		return
	}

	event := log.Info().
		Str("run_id", res.ID).
		Str("strategy", res.Strategy.String()).
		Int("declarations", res.Graph.Len()).
		Int("depth", res.Execution.Depth)
	if result != nil {
		event = event.Bool("allowed", result.Allowed).Int("violations", len(result.Violations))
	}
	event.Msg("Graph rebuilt")
}

func shutdownServer(srv *http.Server) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Warn().Err(err).Msg("Metrics server shutdown failed")
	}
}

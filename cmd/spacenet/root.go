package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"spacenet/internal/blob"
	"spacenet/internal/config"
	"spacenet/internal/core"
	"spacenet/internal/dataset"
	"spacenet/internal/logging"
	"spacenet/pkg/domain"
)

// app holds what commands share. The store and blob store open lazily so
// commands that only inspect the model never touch a backend.
type app struct {
	stdout   io.Writer
	stderr   io.Writer
	cfgPath  string
	cfg      config.Config
	logger   *slog.Logger
	model    core.Model
	registry *prometheus.Registry
	store    domain.PersistentStore
	service  *core.Service
	blobs    blob.Store
}

func newRootCmd(stdout, stderr io.Writer) *cobra.Command {
	a := &app{stdout: stdout, stderr: stderr}
	root := &cobra.Command{
		Use:           "spacenet",
		Short:         "SpaceNet schema, mapping and persistence tool",
		Long:          `spacenet validates, stores and exports SpaceNet nodes, edges, elements and resources.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.init()
		},
		PersistentPostRunE: func(cmd *cobra.Command, _ []string) error {
			return a.close()
		},
	}
	root.SetOut(stdout)
	root.SetErr(stderr)
	root.PersistentFlags().StringVar(&a.cfgPath, "config", "", "YAML configuration file (SPACENET_* variables override it)")

	root.AddCommand(
		newCheckCmd(a),
		newOpenAPICmd(a),
		newDDLCmd(a),
		newSeedCmd(a),
		newExportCmd(a),
		newImportCmd(a),
		newCreateCmd(a),
		newGetCmd(a),
		newListCmd(a),
		newUpdateCmd(a),
		newDeleteCmd(a),
	)
	return root
}

// init loads configuration and builds the model. Either failing is fatal.
func (a *app) init() error {
	cfg, err := config.Load(a.cfgPath)
	if err != nil {
		return err
	}
	level, err := logging.ParseLevel(cfg.Log.Level)
	if err != nil {
		return err
	}
	a.cfg = cfg
	a.logger = logging.NewWithWriter(a.stderr, level)
	model, err := core.NewModel()
	if err != nil {
		return fmt.Errorf("build model: %w", err)
	}
	a.model = model
	return nil
}

func (a *app) openService(ctx context.Context) (*core.Service, error) {
	if a.service != nil {
		return a.service, nil
	}
	store, err := core.OpenPersistentStore(ctx, a.cfg.Storage, a.model.Encoder, core.NewDefaultRulesEngine())
	if err != nil {
		return nil, err
	}
	a.registry = prometheus.NewRegistry()
	metrics, err := core.NewPrometheusMetricsRecorder(a.cfg.Metrics.Namespace, a.registry)
	if err != nil {
		return nil, err
	}
	a.store = store
	a.service = core.NewService(store, a.model,
		core.WithLogger(a.logger),
		core.WithMetricsRecorder(metrics),
		core.WithAuditRecorder(core.NewLogAuditRecorder(a.logger)),
	)
	a.logger.Debug("store opened", "driver", a.cfg.Storage.Driver)
	return a.service, nil
}

func (a *app) openExporter(ctx context.Context) (*dataset.Exporter, error) {
	service, err := a.openService(ctx)
	if err != nil {
		return nil, err
	}
	if a.blobs == nil {
		blobs, err := blob.Open(ctx, a.cfg.Blob)
		if err != nil {
			return nil, err
		}
		a.blobs = blobs
	}
	return dataset.NewExporter(service, a.blobs, dataset.WithLogger(a.logger)), nil
}

// close reports operation counters at debug level and releases the store.
func (a *app) close() error {
	if a.registry != nil {
		if families, err := a.registry.Gather(); err == nil {
			for _, mf := range families {
				for _, m := range mf.GetMetric() {
					if c := m.GetCounter(); c != nil {
						attrs := []any{"metric", mf.GetName(), "value", c.GetValue()}
						for _, l := range m.GetLabel() {
							attrs = append(attrs, l.GetName(), l.GetValue())
						}
						a.logger.Debug("metric", attrs...)
					}
				}
			}
		}
	}
	if closer, ok := a.store.(io.Closer); ok {
		return closer.Close()
	}
	return nil
}

package main

import (
	"context"
	"fmt"
	"math/rand/v2"
	"net/http"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"spreadsim/internal/admin"
	"spreadsim/internal/config"
	"spreadsim/internal/logging"
	"spreadsim/internal/model"
	"spreadsim/internal/sim"
	"spreadsim/internal/steering"
	"spreadsim/internal/store"
)

var (
	runPrintOnly  bool
	runConfigPath string
	runSchemaPath string
	runLogFile    string
	runAdminAddr  string
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the ensemble spread simulation",
	Long:  "run executes the configured ensemble, optionally steered over TCP, and writes yearly statistics and output rasters.",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(runConfigPath, runSchemaPath)
		if err != nil {
			return err
		}

		logger := logging.New()
		ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer cancel()
		ctx = logging.NewContext(ctx, logger)

		st, err := store.NewFileStore(cfg.DataDir)
		if err != nil {
			return err
		}
		susceptible, err := st.ReadInt(cfg.Rasters.Susceptible)
		if err != nil {
			return fmt.Errorf("susceptible raster: %w", err)
		}
		infected, err := st.ReadInt(cfg.Rasters.Infected)
		if err != nil {
			return fmt.Errorf("infected raster: %w", err)
		}
		total, err := st.ReadInt(cfg.Rasters.Total)
		if err != nil {
			return fmt.Errorf("total raster: %w", err)
		}

		seed := cfg.Seed
		if seed == 0 {
			seed = rand.Uint64()
			logger.Info("generated random seed", "seed", seed)
		}

		kernels, err := buildKernels(cfg, susceptible.Rows, susceptible.Cols, seed)
		if err != nil {
			return err
		}

		writer, artifact, cleanup, err := newWriters(runPrintOnly, runLogFile)
		if err != nil {
			return err
		}
		defer cleanup()

		var session *steering.Session
		if cfg.Steering.Host != "" {
			timeout, err := time.ParseDuration(cfg.Steering.Timeout)
			if err != nil {
				return fmt.Errorf("steering timeout: %w", err)
			}
			addr := fmt.Sprintf("%s:%d", cfg.Steering.Host, cfg.Steering.Port)
			session, err = steering.Dial(addr, timeout)
			if err != nil {
				return fmt.Errorf("steering connect: %w", err)
			}
			defer session.Close()
			logger.Info("steering attached", "addr", addr)
		}

		scfg, err := schedulerConfig(cfg, uuid.NewString(), seed)
		if err != nil {
			return err
		}

		scheduler := sim.NewScheduler(scfg, susceptible, infected, total, kernels, st, writer, artifact, session)

		for _, plan := range cfg.Treatments.Plans {
			app, err := sim.ParseTreatmentApplication(plan.Application)
			if err != nil {
				return err
			}
			ratio, err := st.ReadFloat(plan.Map)
			if err != nil {
				return fmt.Errorf("treatment raster %q: %w", plan.Map, err)
			}
			scheduler.Treatments().Add(ratio, plan.Year, app)
		}

		if session != nil {
			go session.Run(ctx)
		}
		if runAdminAddr != "" {
			srv := admin.NewServer(scheduler)
			go func() {
				logger.Info("admin UI listening", "addr", runAdminAddr)
				if err := srv.Start(ctx, runAdminAddr); err != nil && err != http.ErrServerClosed {
					logger.Error("admin server failed", "err", err)
				}
			}()
		}

		return scheduler.Run(ctx)
	},
}

// seriesNames reads a list file of raster names relative to the data dir.
func seriesNames(dataDir, file string) ([]string, error) {
	if file == "" {
		return nil, nil
	}
	return store.ReadNames(filepath.Join(dataDir, file))
}

// schedulerConfig maps the YAML configuration onto the scheduler's view,
// resolving the raster series list files.
func schedulerConfig(cfg *config.SimulationConfig, sessionID string, seed uint64) (sim.SchedulerConfig, error) {
	weatherNames, err := seriesNames(cfg.DataDir, cfg.Weather.CoefficientSeries)
	if err != nil {
		return sim.SchedulerConfig{}, fmt.Errorf("coefficient series: %w", err)
	}
	moistureNames, err := seriesNames(cfg.DataDir, cfg.Weather.MoistureSeries)
	if err != nil {
		return sim.SchedulerConfig{}, fmt.Errorf("moisture series: %w", err)
	}
	temperatureNames, err := seriesNames(cfg.DataDir, cfg.Weather.TemperatureSeries)
	if err != nil {
		return sim.SchedulerConfig{}, fmt.Errorf("temperature series: %w", err)
	}
	var lethalNames []string
	if cfg.Lethal.Enabled {
		lethalNames, err = seriesNames(cfg.DataDir, cfg.Lethal.Series)
		if err != nil {
			return sim.SchedulerConfig{}, fmt.Errorf("lethal series: %w", err)
		}
	}
	application, err := sim.ParseTreatmentApplication(cfg.Treatments.Application)
	if err != nil {
		return sim.SchedulerConfig{}, err
	}

	return sim.SchedulerConfig{
		SessionID: sessionID,

		Start:  sim.NewDate(cfg.StartYear, 1, 1),
		End:    sim.NewDate(cfg.EndYear, 12, 31),
		Step:   sim.StepUnit(cfg.Step),
		Season: sim.Season{From: cfg.Season.StartMonth, To: cfg.Season.EndMonth},

		Runs:    cfg.Runs,
		Threads: cfg.Threads,
		Seed:    seed,
		Rate:    cfg.Rate,

		WeatherMode:      sim.WeatherMode(cfg.Weather.Mode),
		WeatherNames:     weatherNames,
		MoistureNames:    moistureNames,
		TemperatureNames: temperatureNames,

		LethalEnabled:     cfg.Lethal.Enabled,
		LethalTemperature: cfg.Lethal.Temperature,
		LethalMonth:       cfg.Lethal.Month,
		LethalNames:       lethalNames,

		MortalityEnabled:   cfg.Mortality.Enabled,
		MortalityRate:      cfg.Mortality.Rate,
		FirstMortalityYear: cfg.Mortality.FirstYear,

		TreatmentsEnabled:    len(cfg.Treatments.Plans) > 0,
		TreatmentMonth:       cfg.Treatments.Month,
		TreatmentApplication: application,

		EWRes: cfg.EWResolution,
		NSRes: cfg.NSResolution,

		SeriesBasename:      cfg.Output.SeriesBasename,
		SeriesAsSingleRun:   cfg.Output.SeriesAsSingleRun,
		StdDevBasename:      cfg.Output.StdDevBasename,
		ProbabilityBasename: cfg.Output.ProbabilityBasename,
		DeadBasename:        cfg.Output.DeadBasename,

		FinalMeanName:        cfg.Output.FinalMean,
		FinalStdDevName:      cfg.Output.FinalStdDev,
		FinalProbabilityName: cfg.Output.FinalProbability,

		SpreadRatePath: cfg.Output.SpreadRateFile,
		OutsidePath:    cfg.Output.OutsideFile,
	}, nil
}

// buildKernels builds one dispersal kernel per realization. Each run gets
// its own seeded kernel so runs stay independent.
func buildKernels(cfg *config.SimulationConfig, rows, cols int, seed uint64) ([]model.Kernel, error) {
	kernels := make([]model.Kernel, cfg.Runs)
	for i := 0; i < cfg.Runs; i++ {
		kseed := seed + uint64(cfg.Runs) + uint64(3*i)
		natural, err := buildKernel(cfg, cfg.Kernel, rows, cols, kseed)
		if err != nil {
			return nil, err
		}
		if !cfg.Anthropogenic.Enabled {
			kernels[i] = natural
			continue
		}
		anthro, err := buildKernel(cfg, cfg.Anthropogenic.KernelSpec, rows, cols, kseed+1)
		if err != nil {
			return nil, err
		}
		kernels[i] = model.NewSwitchKernel(natural, anthro, cfg.Anthropogenic.Gamma, kseed+2)
	}
	return kernels, nil
}

func buildKernel(cfg *config.SimulationConfig, spec config.KernelSpec, rows, cols int, seed uint64) (model.Kernel, error) {
	kind, err := model.ParseKernelType(spec.Type)
	if err != nil {
		return nil, err
	}
	switch kind {
	case model.KernelUniform:
		return model.NewUniformKernel(rows, cols, seed), nil
	case model.KernelNone:
		return nil, fmt.Errorf("kernel type %q cannot disperse", spec.Type)
	}
	dir, directed, err := model.ParseDirection(spec.Direction)
	if err != nil {
		return nil, err
	}
	return model.NewRadialKernel(cfg.EWResolution, cfg.NSResolution, kind, spec.Scale, dir, directed, spec.Kappa, seed), nil
}

func init() {
	runCmd.Flags().BoolVar(&runPrintOnly, "print-only", false, "Print statistics to STDOUT instead of writing to DB")
	runCmd.Flags().StringVar(&runConfigPath, "config", "config/spreadsim.yaml", "Path to simulation configuration YAML")
	runCmd.Flags().StringVar(&runSchemaPath, "schema", "schemas/spreadsim.cue", "Path to CUE schema file")
	runCmd.Flags().StringVar(&runLogFile, "log-file", "", "Path to export statistics log (JSONL)")
	runCmd.Flags().StringVar(&runAdminAddr, "admin", ":8080", "Admin UI listen address (empty to disable)")
}

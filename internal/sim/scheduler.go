// Scheduler orchestrating the stochastic ensemble and steering commands
package sim

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"runtime"
	"sync"
	"time"

	"spreadsim/internal/logging"
	"spreadsim/internal/model"
	"spreadsim/internal/raster"
	"spreadsim/internal/stats"
	"spreadsim/internal/steering"
	"spreadsim/internal/store"
)

// pausedPoll is how long the scheduler sleeps between queue polls while
// it has nothing to simulate.
const pausedPoll = 100 * time.Millisecond

// WeatherMode selects how the per-step weather coefficient is obtained.
type WeatherMode string

// Supported weather modes.
const (
	WeatherNone        WeatherMode = "none"
	WeatherCoefficient WeatherMode = "coefficient"
	WeatherMoisture    WeatherMode = "moisture_temperature"
)

// SchedulerConfig carries everything the ensemble loop needs.
type SchedulerConfig struct {
	SessionID string

	Start  Date
	End    Date
	Step   StepUnit
	Season Season

	Runs    int
	Threads int
	Seed    uint64
	Rate    float64

	WeatherMode      WeatherMode
	WeatherNames     []string
	MoistureNames    []string
	TemperatureNames []string

	LethalEnabled     bool
	LethalTemperature float64
	LethalMonth       int
	LethalNames       []string

	MortalityEnabled   bool
	MortalityRate      float64
	FirstMortalityYear int

	TreatmentsEnabled    bool
	TreatmentMonth       int
	TreatmentApplication TreatmentApplication

	EWRes float64
	NSRes float64

	SeriesBasename      string
	SeriesAsSingleRun   bool
	StdDevBasename      string
	ProbabilityBasename string
	DeadBasename        string

	FinalMeanName        string
	FinalStdDevName      string
	FinalProbabilityName string

	SpreadRatePath string
	OutsidePath    string
}

func (c SchedulerConfig) years() int { return c.End.Year - c.Start.Year + 1 }

// Event records a processed steering command for the admin view.
type Event struct {
	Timestamp time.Time `json:"ts"`
	Type      string    `json:"type"`
	Details   string    `json:"details"`
}

// Status is a point-in-time snapshot of the loop for the admin view.
type Status struct {
	SessionID      string `json:"session_id"`
	Current        Date   `json:"current"`
	Target         Date   `json:"target"`
	LastCheckpoint int    `json:"last_checkpoint"`
	Running        bool   `json:"running"`
	Steering       bool   `json:"steering"`
	Runs           int    `json:"runs"`
	Infected       int64  `json:"infected"`
}

// Scheduler drives the whole ensemble: it polls the steering queue, buffers
// sub-steps, closes years in one batch, checkpoints, and emits outputs.
type Scheduler struct {
	cfg         SchedulerConfig
	runs        []*Realization
	total       *raster.Grid[int]
	trackers    []*SpreadRate
	checkpoints *CheckpointStore
	treatments  *Treatments
	lethalTemps []*raster.Grid[float64]

	st       store.Store
	writer   StatsWriter
	artifact ArtifactWriter
	session  *steering.Session

	basename      string
	useTreatments bool

	mu      sync.Mutex
	current Date
	target  Date
	events  []Event
	now     func() time.Time
}

// NewScheduler builds the ensemble from the initial host rasters. kernels
// must hold one kernel per run; total is the host capacity raster shared
// by all runs.
func NewScheduler(cfg SchedulerConfig, susceptible, infected, total *raster.Grid[int], kernels []model.Kernel, st store.Store, w StatsWriter, aw ArtifactWriter, session *steering.Session) *Scheduler {
	s := &Scheduler{
		cfg:         cfg,
		total:       total,
		checkpoints: NewCheckpointStore(cfg.Start.Year, cfg.End.Year),
		treatments:  &Treatments{},
		st:          st,
		writer:      w,
		artifact:    aw,
		session:     session,
		basename:    cfg.SeriesBasename,
		// steering always enables treatments so plans loaded over the
		// wire take effect
		useTreatments: cfg.TreatmentsEnabled || session != nil,
		current:       cfg.Start,
		target:        cfg.End,
		now:           time.Now,
	}
	if session != nil {
		s.target = cfg.Start
	}
	for i := 0; i < cfg.Runs; i++ {
		engine := model.NewSporulation(susceptible.Rows, susceptible.Cols, cfg.Seed+uint64(i))
		s.runs = append(s.runs, NewRealization(i, susceptible, infected, engine, kernels[i]))
		s.trackers = append(s.trackers, NewSpreadRate(infected, cfg.EWRes, cfg.NSRes, cfg.years()))
	}
	s.checkpoints.SaveInitial(cfg.Start, s.runs)
	return s
}

// Treatments exposes the schedule so callers can seed preplanned plans.
func (s *Scheduler) Treatments() *Treatments { return s.treatments }

// Status returns a snapshot for the admin view.
func (s *Scheduler) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	// read from the checkpoint snapshot: the live grids may be mid-batch
	var infected int64
	if s.checkpoints.Last() >= 0 {
		infected = s.checkpoints.MeanInfected(s.checkpoints.Last())
	}
	return Status{
		SessionID:      s.cfg.SessionID,
		Current:        s.current,
		Target:         s.target,
		LastCheckpoint: s.checkpoints.Last(),
		Running:        s.target.After(s.cfg.Start) && !s.current.After(s.target),
		Steering:       s.session != nil,
		Runs:           len(s.runs),
		Infected:       infected,
	}
}

// Events returns a copy of all recorded steering events.
func (s *Scheduler) Events() []Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	events := make([]Event, len(s.events))
	copy(events, s.events)
	return events
}

func (s *Scheduler) logEvent(t, details string) {
	s.mu.Lock()
	s.events = append(s.events, Event{Timestamp: s.now().UTC(), Type: t, Details: details})
	s.mu.Unlock()
}

func (s *Scheduler) setCurrent(d Date) {
	s.mu.Lock()
	s.current = d
	s.mu.Unlock()
}

func (s *Scheduler) setTarget(d Date) {
	s.mu.Lock()
	s.target = d
	s.mu.Unlock()
}

func (s *Scheduler) notify(msg string) {
	if s.session == nil {
		return
	}
	if err := s.session.Notify(msg); err != nil {
		s.logEvent("notify_error", err.Error())
	}
}

// forEachRun applies fn to every run, at most Threads at a time.
func (s *Scheduler) forEachRun(fn func(run int)) {
	threads := s.cfg.Threads
	if threads <= 0 {
		threads = runtime.NumCPU()
	}
	sem := make(chan struct{}, threads)
	var wg sync.WaitGroup
	for i := range s.runs {
		wg.Add(1)
		sem <- struct{}{}
		go func(run int) {
			defer wg.Done()
			fn(run)
			<-sem
		}(i)
	}
	wg.Wait()
}

// allInfected reports whether any realization has run out of susceptible
// hosts; a single saturated run ends the whole ensemble.
func (s *Scheduler) allInfected() bool {
	for _, r := range s.runs {
		if r.AllInfected() {
			return true
		}
	}
	return false
}

// stepCoefficient loads the weather coefficient for one global sub-step.
func (s *Scheduler) stepCoefficient(step int) (*raster.Grid[float64], error) {
	switch s.cfg.WeatherMode {
	case WeatherCoefficient:
		if step >= len(s.cfg.WeatherNames) {
			return nil, fmt.Errorf("not enough weather rasters: step %d of %d", step, len(s.cfg.WeatherNames))
		}
		return s.st.ReadFloat(s.cfg.WeatherNames[step])
	case WeatherMoisture:
		if step >= len(s.cfg.MoistureNames) || step >= len(s.cfg.TemperatureNames) {
			return nil, fmt.Errorf("not enough moisture/temperature rasters for step %d", step)
		}
		moisture, err := s.st.ReadFloat(s.cfg.MoistureNames[step])
		if err != nil {
			return nil, err
		}
		temperature, err := s.st.ReadFloat(s.cfg.TemperatureNames[step])
		if err != nil {
			return nil, err
		}
		moisture.Mul(temperature)
		return moisture, nil
	}
	return nil, nil
}

// Run executes the control loop until the end date is reached, a Stop
// command arrives, or the context is cancelled. Final outputs are written
// on every exit path except errors.
func (s *Scheduler) Run(ctx context.Context) error {
	log := logging.FromContext(ctx)
	log.Info("starting scheduler",
		"session", s.cfg.SessionID,
		"start", s.cfg.Start.String(), "end", s.cfg.End.String(),
		"runs", s.cfg.Runs, "step", string(s.cfg.Step),
		"steering", s.session != nil)

	if s.cfg.LethalEnabled {
		for _, name := range s.cfg.LethalNames {
			g, err := s.st.ReadFloat(name)
			if err != nil {
				return fmt.Errorf("load lethal temperature: %w", err)
			}
			s.lethalTemps = append(s.lethalTemps, g)
		}
	}

	var unresolvedSteps []int
	var unresolvedDates []Date
	afterCheckpoint := false
	syncPending := false
	informedLast := false
	currentStep := 0
	lastDay := s.current.LastDay(s.cfg.Step)

loop:
	for {
		var cmd steering.Command
		if s.session != nil {
			cmd = s.session.Queue().Pop()
		}
		if cmd.Kind != steering.None {
			log.Debug("steering command", "cmd", cmd.Kind.String())
			s.logEvent("command", cmd.Kind.String())
		}
		switch cmd.Kind {
		case steering.Play:
			s.setTarget(s.cfg.End)
		case steering.Pause:
			s.setTarget(s.current)
		case steering.StepForward:
			end := s.current.NextYearEnd()
			if end.After(s.cfg.End) {
				end = s.cfg.End
			}
			s.setTarget(end)
		case steering.StepBack:
			if s.checkpoints.Last()-1 >= 0 {
				s.mu.Lock()
				d, err := s.checkpoints.Restore(s.checkpoints.Last()-1, s.runs)
				s.mu.Unlock()
				if err != nil {
					return err
				}
				s.setCurrent(d)
				s.setTarget(d)
				currentStep = stepsUntil(s.cfg.Start, d, s.cfg.Step)
				unresolvedSteps = unresolvedSteps[:0]
				unresolvedDates = unresolvedDates[:0]
				afterCheckpoint = true
				informedLast = false
				log.Info("stepped back", "date", d.String())
			}
		case steering.GoTo:
			index := cmd.Year
			switch {
			case index < 0 || index >= s.checkpoints.Len():
				// silently ignored, matching the wire protocol contract
			case index <= s.checkpoints.Last():
				s.mu.Lock()
				d, err := s.checkpoints.Restore(index, s.runs)
				s.mu.Unlock()
				if err != nil {
					return err
				}
				s.setCurrent(d)
				s.setTarget(d)
				currentStep = stepsUntil(s.cfg.Start, d, s.cfg.Step)
				unresolvedSteps = unresolvedSteps[:0]
				unresolvedDates = unresolvedDates[:0]
				afterCheckpoint = true
				informedLast = false
				log.Info("went to checkpoint", "index", index, "date", d.String())
			default:
				s.setTarget(NewDate(cmd.Year+s.cfg.Start.Year-1, 12, 31))
			}
		case steering.LoadData:
			tr, err := s.st.ReadFloat(cmd.Name)
			if err != nil {
				log.Error("loading treatment failed", "name", cmd.Name, "err", err)
				break
			}
			s.treatments.ClearAfterYear(cmd.Year)
			s.treatments.Add(tr, cmd.Year, s.cfg.TreatmentApplication)
			log.Info("loaded treatment", "name", cmd.Name, "year", cmd.Year)
		case steering.ChangeName:
			s.basename = cmd.Name
			log.Info("base name changed", "basename", s.basename)
		case steering.SyncRuns:
			syncPending = true
		case steering.Stop:
			log.Info("stop received")
			break loop
		}

		lastName := ""
		if s.target.After(s.cfg.Start) && !s.current.After(s.target) {
			unresolvedSteps = append(unresolvedSteps, currentStep)
			unresolvedDates = append(unresolvedDates, s.current)
			lastDay = s.current.LastDay(s.cfg.Step)

			if s.allInfected() {
				log.Warn("all susceptible hosts are infected in a realization")
				break loop
			}

			if s.current.IsYearEnd(s.cfg.Step) && !afterCheckpoint {
				name, err := s.closeYear(ctx, unresolvedSteps, unresolvedDates, lastDay, &syncPending)
				if err != nil {
					return err
				}
				lastName = name
				unresolvedSteps = unresolvedSteps[:0]
				unresolvedDates = unresolvedDates[:0]
			}
			afterCheckpoint = false
			s.setCurrent(s.current.Next(s.cfg.Step))
			currentStep++
			if s.current.After(s.cfg.End) {
				if s.session == nil {
					break loop
				}
				if !informedLast {
					s.notify("info:last:" + lastName)
					informedLast = true
				}
			}
		} else {
			select {
			case <-ctx.Done():
				log.Info("context cancelled, stopping scheduler")
				break loop
			case <-time.After(pausedPoll):
			}
		}
	}

	if err := s.finalOutputs(ctx, lastDay); err != nil {
		return err
	}
	log.Info("simulation ended", "date", s.current.String())
	return nil
}

// closeYear simulates all buffered sub-steps in one batch, saves the
// year's checkpoint, applies mortality, records spread rates and writes
// the per-year outputs. It returns the name of the series raster written,
// if any.
func (s *Scheduler) closeYear(ctx context.Context, steps []int, dates []Date, lastDay Date, syncPending *bool) (string, error) {
	log := logging.FromContext(ctx)
	simYear := dates[len(dates)-1].Year - s.cfg.Start.Year

	if s.cfg.LethalEnabled && simYear >= len(s.lethalTemps) {
		return "", fmt.Errorf("not enough temperatures: year %d of %d", simYear, len(s.lethalTemps))
	}

	// shared per-step weather, loaded once for all runs
	coefficients := make([]*raster.Grid[float64], len(steps))
	for i, step := range steps {
		coef, err := s.stepCoefficient(step)
		if err != nil {
			return "", err
		}
		coefficients[i] = coef
	}
	useWeather := s.cfg.WeatherMode == WeatherCoefficient || s.cfg.WeatherMode == WeatherMoisture

	s.forEachRun(func(run int) {
		r := s.runs[run]
		if s.cfg.MortalityEnabled {
			for len(r.Cohorts) <= simYear {
				r.AddCohort()
			}
		}
		lethalityDone := false
		treatmentsDone := false
		for i, date := range dates {
			if s.cfg.LethalEnabled && !lethalityDone && date.Month == s.cfg.LethalMonth {
				r.RemoveBelowLethal(s.lethalTemps[simYear], s.cfg.LethalTemperature)
				lethalityDone = true
			}
			if s.useTreatments && !treatmentsDone && date.Month == s.cfg.TreatmentMonth {
				s.treatments.ApplyHost(date.Year, r.Infected, r.Susceptible)
				if s.cfg.MortalityEnabled {
					s.treatments.ApplyCohorts(date.Year, r.Cohorts)
				}
				treatmentsDone = true
			}
			if !s.cfg.Season.Contains(date.Month) {
				continue
			}
			r.Step(s.total, useWeather, coefficients[i], s.cfg.Rate)
		}
	})

	s.mu.Lock()
	s.checkpoints.Save(dates[len(dates)-1], s.runs)
	s.mu.Unlock()

	if s.cfg.MortalityEnabled && simYear >= s.cfg.FirstMortalityYear-1 {
		s.forEachRun(func(run int) {
			s.runs[run].Mortality(s.cfg.MortalityRate, s.cfg.FirstMortalityYear)
		})
	}

	if s.cfg.SpreadRatePath != "" {
		s.forEachRun(func(run int) {
			s.trackers[run].Compute(simYear, s.runs[run].Infected)
		})
	}

	trackers := s.trackers
	if *syncPending {
		// all runs continue from run 0's state
		for _, r := range s.runs[1:] {
			r.Susceptible.CopyFrom(s.runs[0].Susceptible)
			r.Infected.CopyFrom(s.runs[0].Infected)
		}
		*syncPending = false
		trackers = s.trackers[:1]
		log.Info("runs synced", "year", dates[len(dates)-1].Year)
	}
	if s.cfg.SpreadRatePath != "" {
		if err := s.writeSpreadRates(trackers, simYear+1); err != nil {
			return "", err
		}
	}

	if err := s.emitYearStats(dates[len(dates)-1], simYear, lastDay); err != nil {
		return "", err
	}

	return s.yearOutputs(ctx, lastDay)
}

func (s *Scheduler) writeSpreadRates(trackers []*SpreadRate, years int) error {
	f, err := os.Create(s.cfg.SpreadRatePath)
	if err != nil {
		return err
	}
	if err := WriteSpreadRateCSV(f, s.cfg.Start.Year, years, trackers); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func (s *Scheduler) emitYearStats(date Date, simYear int, lastDay Date) error {
	if s.writer == nil {
		return nil
	}
	rows := make([]stats.YearStats, 0, len(s.runs))
	for i, r := range s.runs {
		row := stats.YearStats{
			SessionID:         s.cfg.SessionID,
			Run:               i,
			Year:              date.Year,
			Susceptible:       int64(r.Susceptible.Sum()),
			Infected:          int64(r.Infected.Sum()),
			InfectedCells:     int64(r.Infected.CountPositive()),
			OutsideDispersers: int64(len(r.Outside)),
			Timestamp:         lastDay.Time(),
		}
		if s.cfg.SpreadRatePath != "" {
			row.RateN, row.RateS, row.RateE, row.RateW = s.trackers[i].YearRate(simYear)
		}
		rows = append(rows, row)
	}
	if bw, ok := s.writer.(batchStatsWriter); ok {
		return bw.WriteBatch(rows)
	}
	for _, row := range rows {
		if err := s.writer.Write(row); err != nil {
			return err
		}
	}
	return nil
}

// yearOutputs writes the per-year series rasters and sends steering
// notifications for them.
func (s *Scheduler) yearOutputs(ctx context.Context, lastDay Date) (string, error) {
	log := logging.FromContext(ctx)
	lastName := ""

	infected := make([]*raster.Grid[int], len(s.runs))
	for i, r := range s.runs {
		infected[i] = r.Infected
	}

	var mean *raster.Grid[int]
	if (s.basename != "" && !s.cfg.SeriesAsSingleRun) || s.cfg.StdDevBasename != "" {
		mean = EnsembleMean(infected)
	}
	if s.basename != "" {
		// the name always carries the year end, even for seasonal spread
		name := ArtifactName(s.basename, lastDay)
		out := mean
		if s.cfg.SeriesAsSingleRun {
			out = s.runs[0].Infected
		}
		if err := saveIntArtifact(s.st, s.artifact, s.cfg.SessionID, name, seriesKind(s.cfg.SeriesAsSingleRun), lastDay, out); err != nil {
			return "", err
		}
		s.notify("output:" + name + "|")
		lastName = name
		log.Debug("output raster written", "name", name)
	}
	if s.cfg.StdDevBasename != "" {
		name := ArtifactName(s.cfg.StdDevBasename, lastDay)
		sd := EnsembleStdDev(infected, mean)
		if err := saveFloatArtifact(s.st, s.artifact, s.cfg.SessionID, name, stats.ArtifactStdDev, lastDay, sd); err != nil {
			return "", err
		}
		log.Debug("output raster written", "name", name)
	}
	if s.cfg.ProbabilityBasename != "" {
		name := ArtifactName(s.cfg.ProbabilityBasename, lastDay)
		prob := EnsembleProbability(infected)
		if err := saveIntArtifact(s.st, s.artifact, s.cfg.SessionID, name, stats.ArtifactProbability, lastDay, prob); err != nil {
			return "", err
		}
		s.notify("output:" + name + "|")
		log.Debug("output raster written", "name", name)
	}
	// the dead series is a single-run artifact: it only makes sense when
	// the whole series follows realization 0
	if s.cfg.MortalityEnabled && s.cfg.SeriesAsSingleRun && s.cfg.DeadBasename != "" {
		name := ArtifactName(s.cfg.DeadBasename, lastDay)
		if err := saveIntArtifact(s.st, s.artifact, s.cfg.SessionID, name, stats.ArtifactSingleRun, lastDay, s.runs[0].Dead); err != nil {
			return "", err
		}
		log.Debug("output raster written", "name", name)
	}
	return lastName, nil
}

func seriesKind(singleRun bool) string {
	if singleRun {
		return stats.ArtifactSingleRun
	}
	return stats.ArtifactMean
}

// finalOutputs writes the end-of-simulation aggregates and the outside
// disperser export.
func (s *Scheduler) finalOutputs(ctx context.Context, lastDay Date) error {
	log := logging.FromContext(ctx)

	infected := make([]*raster.Grid[int], len(s.runs))
	for i, r := range s.runs {
		infected[i] = r.Infected
	}

	var mean *raster.Grid[int]
	if s.cfg.FinalMeanName != "" || s.cfg.FinalStdDevName != "" {
		mean = EnsembleMean(infected)
	}
	if s.cfg.FinalMeanName != "" {
		if err := saveIntArtifact(s.st, s.artifact, s.cfg.SessionID, s.cfg.FinalMeanName, stats.ArtifactMean, lastDay, mean); err != nil {
			return err
		}
		log.Info("final output raster written", "name", s.cfg.FinalMeanName)
	}
	if s.cfg.FinalStdDevName != "" {
		sd := EnsembleStdDev(infected, mean)
		if err := saveFloatArtifact(s.st, s.artifact, s.cfg.SessionID, s.cfg.FinalStdDevName, stats.ArtifactStdDev, lastDay, sd); err != nil {
			return err
		}
		log.Info("final output raster written", "name", s.cfg.FinalStdDevName)
	}
	if s.cfg.FinalProbabilityName != "" {
		prob := EnsembleProbability(infected)
		if err := saveIntArtifact(s.st, s.artifact, s.cfg.SessionID, s.cfg.FinalProbabilityName, stats.ArtifactProbability, lastDay, prob); err != nil {
			return err
		}
		log.Info("final output raster written", "name", s.cfg.FinalProbabilityName)
	}
	if s.cfg.OutsidePath != "" {
		if err := s.writeOutside(); err != nil {
			return err
		}
		log.Info("outside dispersers written", "path", s.cfg.OutsidePath)
	}
	return nil
}

// outsideRecord is one escaped disperser in the JSONL export.
type outsideRecord struct {
	Run  int        `json:"run"`
	Cell model.Cell `json:"cell"`
}

func (s *Scheduler) writeOutside() error {
	f, err := os.Create(s.cfg.OutsidePath)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(f)
	for i, r := range s.runs {
		for _, cell := range r.Outside {
			if err := enc.Encode(outsideRecord{Run: i, Cell: cell}); err != nil {
				f.Close()
				return err
			}
		}
	}
	return f.Close()
}

// stepsUntil counts sub-steps from start to d.
func stepsUntil(start, d Date, unit StepUnit) int {
	n := 0
	for cur := start; cur.Before(d); cur = cur.Next(unit) {
		n++
	}
	return n
}

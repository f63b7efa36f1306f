package sim

import (
	"context"
	"io"
	"net"
	"strings"
	"sync"
	"testing"
	"time"

	"spreadsim/internal/model"
	"spreadsim/internal/raster"
	"spreadsim/internal/stats"
	"spreadsim/internal/steering"
	"spreadsim/internal/store"
)

// stayKernel keeps every disperser on its release cell, which makes
// control-flow tests independent of dispersal randomness.
type stayKernel struct{}

func (stayKernel) Draw(row, col int) (int, int) { return row, col }

// MockStatsWriter collects rows in memory.
type MockStatsWriter struct {
	mu   sync.Mutex
	rows []stats.YearStats
}

func (m *MockStatsWriter) Write(row stats.YearStats) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rows = append(m.rows, row)
	return nil
}

func (m *MockStatsWriter) Rows() []stats.YearStats {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]stats.YearStats(nil), m.rows...)
}

// MockArtifactWriter collects artifact records in memory.
type MockArtifactWriter struct {
	mu   sync.Mutex
	rows []stats.Artifact
}

func (m *MockArtifactWriter) WriteArtifact(row stats.Artifact) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rows = append(m.rows, row)
	return nil
}

func (m *MockArtifactWriter) Rows() []stats.Artifact {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]stats.Artifact(nil), m.rows...)
}

func testConfig() SchedulerConfig {
	return SchedulerConfig{
		SessionID:   "test-session",
		Start:       NewDate(2000, 1, 1),
		End:         NewDate(2002, 12, 31),
		Step:        StepMonth,
		Season:      Season{From: 1, To: 12},
		Runs:        2,
		Threads:     2,
		Seed:        42,
		Rate:        0.5,
		WeatherMode: WeatherNone,
		EWRes:       100,
		NSRes:       100,
	}
}

type testEnv struct {
	sched  *Scheduler
	store  *store.MemStore
	stats  *MockStatsWriter
	arts   *MockArtifactWriter
	server net.Conn
	done   chan error
	cancel context.CancelFunc
}

func startScheduler(t *testing.T, cfg SchedulerConfig, steered bool) *testEnv {
	t.Helper()
	sus := raster.New[int](3, 3)
	sus.Fill(10)
	inf := raster.New[int](3, 3)
	inf.Set(1, 1, 1)
	total := sus.Clone()
	total.Add(inf)

	kernels := make([]model.Kernel, cfg.Runs)
	for i := range kernels {
		kernels[i] = stayKernel{}
	}

	env := &testEnv{
		store: store.NewMemStore(),
		stats: &MockStatsWriter{},
		arts:  &MockArtifactWriter{},
		done:  make(chan error, 1),
	}

	ctx, cancel := context.WithCancel(context.Background())
	env.cancel = cancel
	t.Cleanup(cancel)

	var sess *steering.Session
	if steered {
		client, server := net.Pipe()
		env.server = server
		sess = steering.NewSession(client, 0)
		go sess.Run(ctx)
		// drain notifications so Notify never blocks on the pipe
		go io.Copy(io.Discard, server)
		t.Cleanup(func() { sess.Close() })
	}

	env.sched = NewScheduler(cfg, sus, inf, total, kernels, env.store, env.stats, env.arts, sess)
	go func() { env.done <- env.sched.Run(ctx) }()
	return env
}

func (e *testEnv) send(t *testing.T, frames string) {
	t.Helper()
	if _, err := e.server.Write([]byte(frames)); err != nil {
		t.Fatalf("steering write: %v", err)
	}
}

func (e *testEnv) wait(t *testing.T, what string, pred func(Status) bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if pred(e.sched.Status()) {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s, status %+v", what, e.sched.Status())
}

func (e *testEnv) waitDone(t *testing.T) error {
	t.Helper()
	select {
	case err := <-e.done:
		return err
	case <-time.After(10 * time.Second):
		t.Fatal("scheduler did not finish")
		return nil
	}
}

// cloneRun copies run 0's rasters under the scheduler lock.
func (e *testEnv) cloneRun() (sus, inf *raster.Grid[int]) {
	e.sched.mu.Lock()
	defer e.sched.mu.Unlock()
	return e.sched.runs[0].Susceptible.Clone(), e.sched.runs[0].Infected.Clone()
}

func TestRunsToCompletionUnsteered(t *testing.T) {
	env := startScheduler(t, testConfig(), false)
	if err := env.waitDone(t); err != nil {
		t.Fatalf("Run: %v", err)
	}

	cs := env.sched.checkpoints
	if cs.Len() != 4 {
		t.Errorf("checkpoint arena = %d slots, want 4", cs.Len())
	}
	if cs.Last() != 3 {
		t.Errorf("last checkpoint = %d, want 3", cs.Last())
	}
	if got := cs.DateAt(3).Year; got != 2002 {
		t.Errorf("final checkpoint year = %d, want 2002", got)
	}

	rows := env.stats.Rows()
	if len(rows) != 3*2 {
		t.Fatalf("stats rows = %d, want 6 (3 years x 2 runs)", len(rows))
	}
	if rows[0].Year != 2000 || rows[len(rows)-1].Year != 2002 {
		t.Errorf("stats year range %d..%d", rows[0].Year, rows[len(rows)-1].Year)
	}
}

func TestSteeredStartsPaused(t *testing.T) {
	env := startScheduler(t, testConfig(), true)

	time.Sleep(300 * time.Millisecond)
	st := env.sched.Status()
	if st.Running {
		t.Error("steered scheduler should start paused")
	}
	if st.Current != NewDate(2000, 1, 1) {
		t.Errorf("current = %s, want start date", st.Current)
	}

	env.send(t, "cmd:stop;")
	if err := env.waitDone(t); err != nil {
		t.Fatalf("Run: %v", err)
	}
}

func TestPauseIsIdempotent(t *testing.T) {
	env := startScheduler(t, testConfig(), true)

	env.send(t, "cmd:pause;cmd:pause;")
	time.Sleep(300 * time.Millisecond)
	st := env.sched.Status()
	if st.Running || st.Current != NewDate(2000, 1, 1) {
		t.Errorf("pause while paused changed state: %+v", st)
	}

	env.send(t, "cmd:play;")
	env.wait(t, "end of simulation", func(s Status) bool { return s.LastCheckpoint == 3 })
	env.send(t, "cmd:stop;")
	if err := env.waitDone(t); err != nil {
		t.Fatalf("Run: %v", err)
	}
}

func TestStepForwardClosesOneYear(t *testing.T) {
	env := startScheduler(t, testConfig(), true)

	env.send(t, "cmd:stepf;")
	env.wait(t, "first year closed", func(s Status) bool {
		return s.LastCheckpoint == 1 && !s.Running
	})
	if got := env.sched.Status().Current; got != NewDate(2001, 1, 1) {
		t.Errorf("current after step = %s, want 2001-01-01", got)
	}

	env.send(t, "cmd:stop;")
	env.waitDone(t)
}

func TestStepBackRestoresBitForBit(t *testing.T) {
	env := startScheduler(t, testConfig(), true)

	env.send(t, "cmd:stepf;")
	env.wait(t, "year 2000 closed", func(s Status) bool {
		return s.LastCheckpoint == 1 && !s.Running
	})
	wantSus, wantInf := env.cloneRun()

	env.send(t, "cmd:stepf;")
	env.wait(t, "year 2001 closed", func(s Status) bool {
		return s.LastCheckpoint == 2 && !s.Running
	})

	env.send(t, "cmd:stepb;")
	env.wait(t, "step back to year 2000", func(s Status) bool {
		return s.LastCheckpoint == 1 && !s.Running
	})

	gotSus, gotInf := env.cloneRun()
	if !gotSus.Equal(wantSus) {
		t.Error("susceptible raster differs after step back")
	}
	if !gotInf.Equal(wantInf) {
		t.Error("infected raster differs after step back")
	}

	env.send(t, "cmd:stop;")
	env.waitDone(t)
}

func TestGoToSecondTimeIsNoop(t *testing.T) {
	env := startScheduler(t, testConfig(), true)

	env.send(t, "cmd:stepf;")
	env.wait(t, "year 2000 closed", func(s Status) bool { return s.LastCheckpoint == 1 && !s.Running })
	env.send(t, "cmd:stepf;")
	env.wait(t, "year 2001 closed", func(s Status) bool { return s.LastCheckpoint == 2 && !s.Running })

	env.send(t, "goto:1;")
	env.wait(t, "back at checkpoint 1", func(s Status) bool { return s.LastCheckpoint == 1 && !s.Running })
	firstSus, firstInf := env.cloneRun()
	firstStatus := env.sched.Status()

	env.send(t, "goto:1;")
	time.Sleep(300 * time.Millisecond)
	secondSus, secondInf := env.cloneRun()
	secondStatus := env.sched.Status()

	if !firstSus.Equal(secondSus) || !firstInf.Equal(secondInf) {
		t.Error("repeated goto changed ensemble state")
	}
	if firstStatus.Current != secondStatus.Current || firstStatus.LastCheckpoint != secondStatus.LastCheckpoint {
		t.Errorf("repeated goto changed status: %+v vs %+v", firstStatus, secondStatus)
	}

	env.send(t, "cmd:stop;")
	env.waitDone(t)
}

func TestGoToOutOfRangeIgnored(t *testing.T) {
	env := startScheduler(t, testConfig(), true)

	env.send(t, "goto:99;")
	time.Sleep(300 * time.Millisecond)
	st := env.sched.Status()
	if st.Running || st.Current != NewDate(2000, 1, 1) || st.LastCheckpoint != 0 {
		t.Errorf("out-of-range goto changed state: %+v", st)
	}

	env.send(t, "cmd:stop;")
	env.waitDone(t)
}

func TestGoToForwardRunsAhead(t *testing.T) {
	env := startScheduler(t, testConfig(), true)

	env.send(t, "goto:2;")
	env.wait(t, "two years simulated", func(s Status) bool {
		return s.LastCheckpoint == 2 && !s.Running
	})

	env.send(t, "cmd:stop;")
	env.waitDone(t)
}

func TestSyncRunsConvergence(t *testing.T) {
	cfg := testConfig()
	cfg.Runs = 3
	env := startScheduler(t, cfg, true)

	env.send(t, "sync;cmd:stepf;")
	env.wait(t, "year closed after sync", func(s Status) bool {
		return s.LastCheckpoint == 1 && !s.Running
	})

	env.sched.mu.Lock()
	base := env.sched.runs[0]
	for _, r := range env.sched.runs[1:] {
		if !r.Infected.Equal(base.Infected) || !r.Susceptible.Equal(base.Susceptible) {
			t.Errorf("run %d not synced to run 0", r.ID)
		}
	}
	env.sched.mu.Unlock()

	env.send(t, "cmd:stop;")
	env.waitDone(t)
}

func TestServerDisconnectStopsScheduler(t *testing.T) {
	env := startScheduler(t, testConfig(), true)

	env.server.Close()
	if err := env.waitDone(t); err != nil {
		t.Fatalf("Run after disconnect: %v", err)
	}
}

func TestAllInfectedStopsEarly(t *testing.T) {
	cfg := testConfig()
	sus := raster.New[int](2, 2)
	sus.Fill(10)
	inf := raster.New[int](2, 2)
	inf.Set(0, 0, 1)
	total := sus.Clone()
	total.Add(inf)

	sched := NewScheduler(cfg, sus, inf, total, []model.Kernel{stayKernel{}, stayKernel{}}, store.NewMemStore(), nil, nil, nil)
	// one saturated realization ends the whole ensemble, even while the
	// other still has susceptible hosts
	sched.runs[1].Susceptible.Fill(0)
	if err := sched.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if sched.checkpoints.Last() != 0 {
		t.Errorf("checkpoint = %d, want 0 (stopped before closing a year)", sched.checkpoints.Last())
	}
}

func TestLethalWithoutTemperaturesFails(t *testing.T) {
	cfg := testConfig()
	cfg.LethalEnabled = true
	cfg.LethalMonth = 1
	cfg.LethalTemperature = -5

	env := startScheduler(t, cfg, false)
	err := env.waitDone(t)
	if err == nil || !strings.Contains(err.Error(), "not enough temperatures") {
		t.Fatalf("Run error = %v, want not enough temperatures", err)
	}
}

func TestYearOutputsWritten(t *testing.T) {
	cfg := testConfig()
	cfg.End = NewDate(2000, 12, 31)
	cfg.SeriesBasename = "inf"
	cfg.StdDevBasename = "sd"
	cfg.ProbabilityBasename = "prob"
	cfg.FinalMeanName = "final"
	cfg.FinalProbabilityName = "final_prob"

	env := startScheduler(t, cfg, false)
	if err := env.waitDone(t); err != nil {
		t.Fatalf("Run: %v", err)
	}

	for _, name := range []string{"inf_2000_12_31", "prob_2000_12_31", "final", "final_prob"} {
		if _, err := env.store.ReadInt(name); err != nil {
			t.Errorf("missing output raster %q", name)
		}
	}
	if _, err := env.store.ReadFloat("sd_2000_12_31"); err != nil {
		t.Errorf("missing stddev raster: %v", err)
	}

	kinds := map[string]bool{}
	for _, a := range env.arts.Rows() {
		kinds[a.Kind] = true
	}
	for _, k := range []string{stats.ArtifactMean, stats.ArtifactStdDev, stats.ArtifactProbability} {
		if !kinds[k] {
			t.Errorf("no artifact of kind %q recorded", k)
		}
	}
}

func TestChangeNameAffectsSeries(t *testing.T) {
	cfg := testConfig()
	cfg.SeriesBasename = "inf"
	env := startScheduler(t, cfg, true)

	env.send(t, "name:alt;cmd:stepf;")
	env.wait(t, "year closed with new name", func(s Status) bool {
		return s.LastCheckpoint == 1 && !s.Running
	})

	if _, err := env.store.ReadInt("alt_2000_12_31"); err != nil {
		t.Errorf("series not written under changed basename: %v", err)
	}

	env.send(t, "cmd:stop;")
	env.waitDone(t)
}

func TestLoadDataTreatmentApplied(t *testing.T) {
	cfg := testConfig()
	cfg.TreatmentMonth = 1
	env := startScheduler(t, cfg, true)

	ratio := raster.New[float64](3, 3)
	ratio.Fill(1.0)
	env.store.Floats["plan_2000"] = ratio

	env.send(t, "load:2000:plan_2000;cmd:stepf;")
	env.wait(t, "treated year closed", func(s Status) bool {
		return s.LastCheckpoint == 1 && !s.Running
	})

	env.sched.mu.Lock()
	infected := env.sched.runs[0].Infected.Sum()
	env.sched.mu.Unlock()
	if infected != 0 {
		t.Errorf("infected after full treatment = %d, want 0", infected)
	}

	env.send(t, "cmd:stop;")
	env.waitDone(t)
}

func TestLoadDataReloadReplacesPlan(t *testing.T) {
	cfg := testConfig()
	cfg.TreatmentMonth = 1
	env := startScheduler(t, cfg, true)

	half := raster.New[float64](3, 3)
	half.Fill(0.5)
	env.store.Floats["plan_a"] = half
	env.store.Floats["plan_b"] = half

	env.send(t, "load:2000:plan_a;load:2000:plan_b;cmd:stepf;")
	env.wait(t, "treated year closed", func(s Status) bool {
		return s.LastCheckpoint == 1 && !s.Running
	})

	// the second load replaces the first, so the ratio acts once:
	// an uninfected corner cell keeps 10 - 10*0.5 = 5 susceptible hosts
	sus, _ := env.cloneRun()
	if got := sus.At(0, 0); got != 5 {
		t.Errorf("susceptible after reloaded plan = %d, want 5", got)
	}

	env.send(t, "cmd:stop;")
	env.waitDone(t)
}

func TestLoadDataUsesConfiguredApplication(t *testing.T) {
	cfg := testConfig()
	cfg.TreatmentMonth = 1
	cfg.TreatmentApplication = AllInfectedInCell
	env := startScheduler(t, cfg, true)

	half := raster.New[float64](3, 3)
	half.Fill(0.5)
	env.store.Floats["plan_2000"] = half

	env.send(t, "load:2000:plan_2000;cmd:stepf;")
	env.wait(t, "treated year closed", func(s Status) bool {
		return s.LastCheckpoint == 1 && !s.Running
	})

	// all_infected_in_cell clears every infected host in treated cells;
	// ratio_to_all at 0.5 would have left the single infected host alone
	env.sched.mu.Lock()
	infected := env.sched.runs[0].Infected.Sum()
	env.sched.mu.Unlock()
	if infected != 0 {
		t.Errorf("infected after all_infected_in_cell plan = %d, want 0", infected)
	}

	env.send(t, "cmd:stop;")
	env.waitDone(t)
}

func TestDeadSeriesRequiresSingleRunMode(t *testing.T) {
	cfg := testConfig()
	cfg.End = NewDate(2000, 12, 31)
	cfg.MortalityEnabled = true
	cfg.MortalityRate = 0.5
	cfg.FirstMortalityYear = 1
	cfg.DeadBasename = "dead"

	env := startScheduler(t, cfg, false)
	if err := env.waitDone(t); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if _, err := env.store.ReadInt("dead_2000_12_31"); err == nil {
		t.Error("dead series written without single-run series mode")
	}

	cfg.SeriesAsSingleRun = true
	env = startScheduler(t, cfg, false)
	if err := env.waitDone(t); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if _, err := env.store.ReadInt("dead_2000_12_31"); err != nil {
		t.Errorf("dead series missing in single-run mode: %v", err)
	}
}

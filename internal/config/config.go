// YAML config loader with CUE validation integration
package config

import (
	"fmt"
	"log/slog"
	"os"

	"gopkg.in/yaml.v3"
)

// Season limits sporulation to a range of calendar months.
type Season struct {
	StartMonth int `yaml:"start_month"`
	EndMonth   int `yaml:"end_month"`
}

// Rasters names the host rasters loaded from the store.
type Rasters struct {
	Infected    string `yaml:"infected"`
	Susceptible string `yaml:"susceptible"`
	Total       string `yaml:"total"`
}

// Weather selects how environmental coefficients modulate spread.
// Mode is one of none, coefficient, or moisture_temperature. The series
// fields name list files with one raster name per sub-step.
type Weather struct {
	Mode              string `yaml:"mode"`
	CoefficientSeries string `yaml:"coefficient_series"`
	MoistureSeries    string `yaml:"moisture_series"`
	TemperatureSeries string `yaml:"temperature_series"`
}

// KernelSpec describes a dispersal kernel.
type KernelSpec struct {
	Type      string  `yaml:"type"`
	Scale     float64 `yaml:"scale"`
	Direction string  `yaml:"direction"`
	Kappa     float64 `yaml:"kappa"`
}

// AnthroKernel is the optional long-distance kernel. Gamma is the
// probability of using the natural kernel instead.
type AnthroKernel struct {
	Enabled    bool    `yaml:"enabled"`
	KernelSpec `yaml:",inline"`
	Gamma      float64 `yaml:"gamma"`
}

// Lethal configures once-a-year removal of infection in cells whose
// temperature drops below the threshold.
type Lethal struct {
	Enabled     bool    `yaml:"enabled"`
	Temperature float64 `yaml:"temperature"`
	Month       int     `yaml:"month"`
	Series      string  `yaml:"series"`
}

// Mortality configures host die-off of aged infection cohorts.
type Mortality struct {
	Enabled   bool    `yaml:"enabled"`
	Rate      float64 `yaml:"rate"`
	FirstYear int     `yaml:"first_year"`
}

// TreatmentPlan applies a named ratio raster at the end of a year.
type TreatmentPlan struct {
	Map         string `yaml:"map"`
	Year        int    `yaml:"year"`
	Application string `yaml:"application"`
}

// Treatments schedules host removal plans. Application is the mode used
// for plans loaded over the steering connection; plans listed here may
// override it per plan.
type Treatments struct {
	Month       int             `yaml:"month"`
	Application string          `yaml:"application"`
	Plans       []TreatmentPlan `yaml:"plans"`
}

// Steering configures the outbound control connection. An empty host
// disables steering and the run plays straight through.
type Steering struct {
	Host    string `yaml:"host"`
	Port    int    `yaml:"port"`
	Timeout string `yaml:"timeout"`
}

// Output names the artifacts written as years close. Empty names
// disable the corresponding artifact.
type Output struct {
	SeriesBasename      string `yaml:"series_basename"`
	SeriesAsSingleRun   bool   `yaml:"series_as_single_run"`
	StdDevBasename      string `yaml:"stddev_basename"`
	ProbabilityBasename string `yaml:"probability_basename"`
	DeadBasename        string `yaml:"dead_basename"`
	FinalMean           string `yaml:"final_mean"`
	FinalStdDev         string `yaml:"final_stddev"`
	FinalProbability    string `yaml:"final_probability"`
	SpreadRateFile      string `yaml:"spread_rate_file"`
	OutsideFile         string `yaml:"outside_file"`
}

// SimulationConfig is the root configuration for an ensemble run.
type SimulationConfig struct {
	DataDir string `yaml:"data_dir"`

	StartYear int    `yaml:"start_year"`
	EndYear   int    `yaml:"end_year"`
	Step      string `yaml:"step"`
	Season    Season `yaml:"season"`

	Runs    int     `yaml:"runs"`
	Threads int     `yaml:"threads"`
	Seed    uint64  `yaml:"seed"`
	Rate    float64 `yaml:"reproductive_rate"`

	EWResolution float64 `yaml:"ew_resolution"`
	NSResolution float64 `yaml:"ns_resolution"`

	Rasters       Rasters      `yaml:"rasters"`
	Weather       Weather      `yaml:"weather"`
	Kernel        KernelSpec   `yaml:"kernel"`
	Anthropogenic AnthroKernel `yaml:"anthropogenic"`
	Lethal        Lethal       `yaml:"lethal"`
	Mortality     Mortality    `yaml:"mortality"`
	Treatments    Treatments   `yaml:"treatments"`
	Steering      Steering     `yaml:"steering"`
	Output        Output       `yaml:"output"`
}

// Load loads YAML config and validates it against a CUE schema.
func Load(configPath, cueSchemaPath string) (*SimulationConfig, error) {
	if err := ValidateWithCue(configPath, cueSchemaPath); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, err
	}
	var cfg SimulationConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	applyDefaults(&cfg)
	if err := check(&cfg); err != nil {
		return nil, err
	}

	slog.Debug("loaded configuration", "path", configPath, "runs", cfg.Runs, "years", cfg.EndYear-cfg.StartYear+1)

	return &cfg, nil
}

func applyDefaults(cfg *SimulationConfig) {
	if cfg.Step == "" {
		cfg.Step = "week"
	}
	if cfg.Season.StartMonth == 0 {
		cfg.Season.StartMonth = 1
	}
	if cfg.Season.EndMonth == 0 {
		cfg.Season.EndMonth = 12
	}
	if cfg.Runs == 0 {
		cfg.Runs = 1
	}
	if cfg.Threads == 0 {
		cfg.Threads = 1
	}
	if cfg.Weather.Mode == "" {
		cfg.Weather.Mode = "none"
	}
	if cfg.Steering.Port == 0 {
		cfg.Steering.Port = 14000
	}
	if cfg.Steering.Timeout == "" {
		cfg.Steering.Timeout = "10s"
	}
}

// check enforces the cross-field rules CUE cannot express well.
func check(cfg *SimulationConfig) error {
	if cfg.EndYear < cfg.StartYear {
		return fmt.Errorf("end_year %d before start_year %d", cfg.EndYear, cfg.StartYear)
	}
	if cfg.Weather.Mode == "coefficient" && cfg.Weather.CoefficientSeries == "" {
		return fmt.Errorf("weather mode %q requires coefficient_series", cfg.Weather.Mode)
	}
	if cfg.Weather.Mode == "moisture_temperature" && (cfg.Weather.MoistureSeries == "" || cfg.Weather.TemperatureSeries == "") {
		return fmt.Errorf("weather mode %q requires moisture_series and temperature_series", cfg.Weather.Mode)
	}
	if cfg.Lethal.Enabled && cfg.Lethal.Series == "" {
		return fmt.Errorf("lethal removal requires a temperature series")
	}
	for _, p := range cfg.Treatments.Plans {
		if p.Year < cfg.StartYear || p.Year > cfg.EndYear {
			return fmt.Errorf("treatment year %d outside %d..%d", p.Year, cfg.StartYear, cfg.EndYear)
		}
	}
	if cfg.Output.DeadBasename != "" && (!cfg.Mortality.Enabled || !cfg.Output.SeriesAsSingleRun) {
		return fmt.Errorf("dead_basename requires mortality and series_as_single_run")
	}
	return nil
}

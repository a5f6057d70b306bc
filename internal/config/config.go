package config

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
)

const (
	LogFormatConsole = "console"
	LogFormatJSON    = "json"
)

// Config holds every setting of a benchmark invocation. It is built once by
// Parse and passed by value afterwards.
type Config struct {
	ModelFile  string `flag:"model_file"`
	ParamsFile string `flag:"params_file"`
	ModelDir   string `flag:"model_dir"`

	BatchSize  int `flag:"batch_size" validate:"min=1"`
	Warmup     int `flag:"warmup" validate:"min=0"`
	Repeats    int `flag:"repeats" validate:"min=0"`
	QueueCount int `flag:"queues" validate:"min=0"`

	Backend     string `flag:"backend" validate:"required"`
	Device      string `flag:"device" validate:"omitempty,oneof=host cuda"`
	GPUMemoryMB int    `flag:"gpu_mem_mb" validate:"min=0"`
	DeviceID    int    `flag:"device_id" validate:"min=0"`

	LogLevel  string `flag:"log_level"`
	LogFormat string `flag:"log_format" validate:"oneof=console json"`

	ReportPath    string `flag:"report"`
	ServerAddr    string `flag:"server"`
	Dataset       string `flag:"dataset"`
	HistoryPath   string `flag:"history"`
	MetricsListen string `flag:"metrics_listen"`
	EnableOTel    bool   `flag:"otel"`
	CPUProfile    string `flag:"cpuprofile"`
}

func Default() Config {
	return Config{
		BatchSize:   1,
		Warmup:      0,
		Repeats:     1,
		QueueCount:  4,
		Backend:     "cpu",
		GPUMemoryMB: 500,
		DeviceID:    0,
		LogLevel:    "info",
		LogFormat:   LogFormatConsole,
		Dataset:     "batchstream_results",
	}
}

// NewFlagSet binds the flags of cfg to a new flag set. Flag defaults come
// from the current values of cfg.
func NewFlagSet(name string, cfg *Config) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)

	fs.StringVar(&cfg.ModelFile, "model_file", cfg.ModelFile, "Path to the model structure file")
	fs.StringVar(&cfg.ParamsFile, "params_file", cfg.ParamsFile, "Path to the model parameters file")
	fs.StringVar(&cfg.ModelDir, "model_dir", cfg.ModelDir, "Path to a combined model directory (superseded by model_file)")

	fs.IntVar(&cfg.BatchSize, "batch_size", cfg.BatchSize, "First dimension of the synthesized input")
	fs.IntVar(&cfg.Warmup, "warmup", cfg.Warmup, "Untimed iterations before measurement")
	fs.IntVar(&cfg.Repeats, "repeats", cfg.Repeats, "Timed iterations per queue")
	fs.IntVar(&cfg.QueueCount, "queues", cfg.QueueCount, "Number of execution queues to benchmark")

	fs.StringVar(&cfg.Backend, "backend", cfg.Backend, "Engine backend (cpu, paddle)")
	fs.StringVar(&cfg.Device, "device", cfg.Device, "Device runtime (host, cuda); empty selects the backend default")
	fs.IntVar(&cfg.GPUMemoryMB, "gpu_mem_mb", cfg.GPUMemoryMB, "Initial device memory pool in MB")
	fs.IntVar(&cfg.DeviceID, "device_id", cfg.DeviceID, "Device index")

	fs.StringVar(&cfg.LogLevel, "log_level", cfg.LogLevel, "Log level (debug, info, warn, error)")
	fs.StringVar(&cfg.LogFormat, "log_format", cfg.LogFormat, "Log format (console, json)")

	fs.StringVar(&cfg.ReportPath, "report", cfg.ReportPath, "Write results as an Arrow IPC stream to this path (- for stdout)")
	fs.StringVar(&cfg.ServerAddr, "server", cfg.ServerAddr, "Longbow Flight server address to publish results to")
	fs.StringVar(&cfg.Dataset, "dataset", cfg.Dataset, "Dataset name for published results")
	fs.StringVar(&cfg.HistoryPath, "history", cfg.HistoryPath, "Append results to this SQLite database")
	fs.StringVar(&cfg.MetricsListen, "metrics_listen", cfg.MetricsListen, "Address to serve /metrics and /health on")
	fs.BoolVar(&cfg.EnableOTel, "otel", cfg.EnableOTel, "Enable OpenTelemetry tracing (stdout)")
	fs.StringVar(&cfg.CPUProfile, "cpuprofile", cfg.CPUProfile, "Write cpu profile to file")

	return fs
}

// Parse builds a validated Config from command line arguments.
func Parse(name string, args []string, output io.Writer) (Config, error) {
	cfg := Default()
	fs := NewFlagSet(name, &cfg)
	if output != nil {
		fs.SetOutput(output)
	}
	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}
	if fs.NArg() > 0 {
		return Config{}, fmt.Errorf("unexpected arguments: %v", fs.Args())
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		return f.Tag.Get("flag")
	})
	return v
}

func (c *Config) Validate() error {
	if c.ModelFile == "" && c.ModelDir == "" {
		return fmt.Errorf("no model: set model_file and params_file, or model_dir")
	}
	if c.ModelFile != "" && c.ParamsFile == "" {
		return fmt.Errorf("model_file %s given without params_file", c.ModelFile)
	}
	if err := validate.Struct(c); err != nil {
		return describe(err)
	}
	if _, err := zerolog.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("invalid log_level: %q", c.LogLevel)
	}
	if c.ServerAddr != "" && c.Dataset == "" {
		return fmt.Errorf("dataset must be set when publishing to %s", c.ServerAddr)
	}
	return nil
}

// describe turns the first field error into a flag-level message.
func describe(err error) error {
	var errs validator.ValidationErrors
	if !errors.As(err, &errs) || len(errs) == 0 {
		return err
	}
	fe := errs[0]
	switch fe.Tag() {
	case "required":
		return fmt.Errorf("%s must not be empty", fe.Field())
	case "min":
		return fmt.Errorf("invalid %s: %v (must be at least %s)", fe.Field(), fe.Value(), fe.Param())
	case "oneof":
		return fmt.Errorf("invalid %s: %q (must be one of %s)", fe.Field(), fe.Value(), fe.Param())
	}
	return fmt.Errorf("invalid %s: %v (%s)", fe.Field(), fe.Value(), fe.Tag())
}

// DeviceKind resolves the device runtime, defaulting to cuda for the paddle
// backend and host otherwise.
func (c *Config) DeviceKind() string {
	if c.Device != "" {
		return c.Device
	}
	if strings.EqualFold(c.Backend, "paddle") {
		return "cuda"
	}
	return "host"
}

// Level returns the parsed log level, falling back to info.
func (c *Config) Level() zerolog.Level {
	lvl, err := zerolog.ParseLevel(c.LogLevel)
	if err != nil || lvl == zerolog.NoLevel {
		return zerolog.InfoLevel
	}
	return lvl
}

// ModelSuperseded reports whether a model_dir was given that the model file
// pair overrides.
func (c *Config) ModelSuperseded() bool {
	return c.ModelDir != "" && c.ModelFile != ""
}

package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/javajack/xlpivot"
	"github.com/javajack/xlpivot/memquery"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
	"gopkg.in/yaml.v3"
)

// Config is the YAML file every command reads.
type Config struct {
	Log     LogConfig                 `yaml:"log"`
	Dataset *memquery.Dataset         `yaml:"dataset"`
	Pivots  []xlpivot.PivotDefinition `yaml:"pivots"`
	Filters []xlpivot.GlobalFilter    `yaml:"filters"`
}

type LogConfig struct {
	Level zapcore.Level `yaml:"level"`
	// Path is "stderr", "stdout", "/dev/null" or a file path.
	Path string `yaml:"path"`
	// Mode is "append", "truncate" or "rotate"; it applies to file paths only.
	Mode string `yaml:"mode"`
}

func loadConfig(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	conf := &Config{Log: LogConfig{Level: zapcore.WarnLevel, Path: "stderr"}}
	if err := yaml.NewDecoder(f).Decode(conf); err != nil {
		return nil, fmt.Errorf("decode config %q: %w", path, err)
	}
	if conf.Dataset == nil {
		return nil, fmt.Errorf("config %q: dataset is required", path)
	}
	return conf, nil
}

func openLogFile(conf LogConfig) (zapcore.WriteSyncer, error) {
	switch conf.Path {
	case "", "stderr":
		return zapcore.Lock(os.Stderr), nil
	case "stdout":
		return zapcore.Lock(os.Stdout), nil
	case "/dev/null":
		return zapcore.AddSync(io.Discard), nil
	}
	switch conf.Mode {
	case "rotate":
		if _, err := os.Stat(filepath.Dir(conf.Path)); err != nil {
			return nil, err
		}
		return zapcore.AddSync(&lumberjack.Logger{
			Filename:   conf.Path,
			MaxSize:    5, // megabytes
			MaxBackups: 3,
			MaxAge:     28, // days
		}), nil
	case "truncate":
		f, err := os.OpenFile(conf.Path, os.O_WRONLY|os.O_TRUNC|os.O_CREATE, 0644)
		if err != nil {
			return nil, err
		}
		return zapcore.AddSync(f), nil
	case "", "append":
		f, err := os.OpenFile(conf.Path, os.O_WRONLY|os.O_APPEND|os.O_CREATE, 0644)
		if err != nil {
			return nil, err
		}
		return zapcore.AddSync(f), nil
	}
	return nil, fmt.Errorf("invalid log mode %q", conf.Mode)
}

func newLogger(conf LogConfig) (*zap.Logger, error) {
	ws, err := openLogFile(conf)
	if err != nil {
		return nil, err
	}
	encoder := zapcore.NewConsoleEncoder(zap.NewDevelopmentEncoderConfig())
	return zap.New(zapcore.NewCore(encoder, ws, conf.Level)), nil
}

// session wires the stores of one command run.
type session struct {
	logger    *zap.Logger
	pivots    *xlpivot.PivotStore
	filters   *xlpivot.FilterStore
	evaluator *xlpivot.Evaluator
}

func newSession(path string, doc *xlpivot.Document) (*session, error) {
	conf, err := loadConfig(path)
	if err != nil {
		return nil, err
	}
	logger, err := newLogger(conf.Log)
	if err != nil {
		return nil, err
	}
	opts := []xlpivot.Option{xlpivot.WithLogger(logger)}
	pivots, err := xlpivot.NewPivotStore(conf.Dataset, opts...)
	if err != nil {
		return nil, err
	}
	for i := range conf.Pivots {
		if err := pivots.Register(&conf.Pivots[i]); err != nil {
			return nil, err
		}
	}
	if doc != nil {
		opts = append(opts, xlpivot.WithDocument(doc))
	}
	filters := xlpivot.NewFilterStore(pivots, opts...)
	for _, f := range conf.Filters {
		if _, res := filters.Add(f); !res.IsAccepted() {
			return nil, fmt.Errorf("filter %q: %s", f.Label, res.Reason)
		}
	}
	return &session{
		logger:    logger,
		pivots:    pivots,
		filters:   filters,
		evaluator: xlpivot.NewEvaluator(pivots, filters, opts...),
	}, nil
}

// evaluate runs a formula, and once more after background label lookups
// so relational headers show their names.
func (s *session) evaluate(ctx context.Context, formula string) (any, error) {
	if _, err := s.evaluator.Evaluate(ctx, formula); err != nil {
		return nil, err
	}
	s.pivots.WaitLabels()
	return s.evaluator.Evaluate(ctx, formula)
}

package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"FinCast/internal/domain/models"
	applogger "FinCast/pkg/logger"
)

// JSONForecastSink writes one <symbol>.json prediction record per
// instrument, plus the fitted model under models/ when enabled.
type JSONForecastSink struct {
	dir        string
	saveModels bool
	l          *applogger.Logger
}

func NewJSONForecastSink(dir string, saveModels bool, l *applogger.Logger) *JSONForecastSink {
	if l == nil {
		l = applogger.Nop()
	}
	return &JSONForecastSink{dir: dir, saveModels: saveModels, l: l}
}

func (s *JSONForecastSink) SaveRun(ctx context.Context, run *models.RunSummary) error {
	if run == nil || len(run.Results) == 0 {
		return nil
	}
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}
	modelDir := filepath.Join(s.dir, "models")
	if s.saveModels {
		if err := os.MkdirAll(modelDir, 0o755); err != nil {
			return fmt.Errorf("create model dir: %w", err)
		}
	}
	for _, sym := range run.Symbols() {
		if err := ctx.Err(); err != nil {
			return err
		}
		r := run.Results[sym]
		b, err := json.Marshal(r.Prediction())
		if err != nil {
			return fmt.Errorf("marshal %s: %w", sym, err)
		}
		if err := writeFileAtomic(filepath.Join(s.dir, sym+".json"), b); err != nil {
			return err
		}
		if s.saveModels && len(r.FittedModel) > 0 {
			if err := writeFileAtomic(filepath.Join(modelDir, sym+".json"), r.FittedModel); err != nil {
				return err
			}
		}
		s.l.Debug("saved predictions", applogger.String("symbol", sym))
	}
	s.l.Info("json predictions written", applogger.String("dir", s.dir), applogger.Int("symbols", len(run.Results)))
	return nil
}

// writeFileAtomic writes to a temp file in the same directory and renames
// it so readers never see a partial record.
func writeFileAtomic(path string, b []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp: %w", err)
	}
	if _, err := tmp.Write(b); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("write %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("close %s: %w", path, err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("rename %s: %w", path, err)
	}
	return nil
}

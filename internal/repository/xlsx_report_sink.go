package repository

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/xuri/excelize/v2"

	"FinCast/internal/domain/models"
)

const (
	forecastSheet = "Forecasts"
	failureSheet  = "Failures"
)

// XLSXReportSink writes a workbook per run with one forecast row per
// instrument and one row per failure.
type XLSXReportSink struct {
	dir string
}

func NewXLSXReportSink(dir string) *XLSXReportSink {
	return &XLSXReportSink{dir: dir}
}

// Path returns where the report of runID is written.
func (s *XLSXReportSink) Path(runID string) string {
	return filepath.Join(s.dir, "report-"+runID+".xlsx")
}

func (s *XLSXReportSink) SaveRun(_ context.Context, run *models.RunSummary) error {
	if run == nil {
		return nil
	}
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("create report dir: %w", err)
	}
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", forecastSheet); err != nil {
		return err
	}
	horizon := 0
	for _, r := range run.Results {
		if r.Horizon > horizon {
			horizon = r.Horizon
		}
	}
	header := []interface{}{"symbol", "model", "model_name", "mae"}
	for k := 1; k <= horizon; k++ {
		header = append(header, fmt.Sprintf("t+%d", k))
	}
	if err := f.SetSheetRow(forecastSheet, "A1", &header); err != nil {
		return err
	}
	for i, sym := range run.Symbols() {
		r := run.Results[sym]
		row := []interface{}{r.Symbol, r.Model, r.ModelName, r.MAE}
		for _, v := range r.Forecast {
			row = append(row, v)
		}
		if err := setRow(f, forecastSheet, i+2, row); err != nil {
			return err
		}
	}

	if _, err := f.NewSheet(failureSheet); err != nil {
		return err
	}
	if err := f.SetSheetRow(failureSheet, "A1", &[]interface{}{"symbol", "kind", "state", "message"}); err != nil {
		return err
	}
	for i, fl := range run.Failures {
		if err := setRow(f, failureSheet, i+2, []interface{}{fl.Symbol, fl.Kind, fl.State, fl.Message}); err != nil {
			return err
		}
	}

	if err := f.SaveAs(s.Path(run.RunID)); err != nil {
		return fmt.Errorf("save report: %w", err)
	}
	return nil
}

func setRow(f *excelize.File, sheet string, row int, values []interface{}) error {
	cell, err := excelize.CoordinatesToCellName(1, row)
	if err != nil {
		return err
	}
	return f.SetSheetRow(sheet, cell, &values)
}

package repository

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"FinCast/internal/domain/models"
	domrepo "FinCast/internal/domain/repository"
	applogger "FinCast/pkg/logger"
	"FinCast/pkg/util"
)

// polygonFrame is one symbol of a pandas "split" export of polygon aggregates.
type polygonFrame struct {
	Columns []string            `json:"columns"`
	Index   []json.RawMessage   `json:"index"`
	Data    [][]json.RawMessage `json:"data"`
}

const timestampColumn = "timestamp"

// JSONBarStore serves series read from a directory of polygon JSON exports.
// Files are read once on first use.
type JSONBarStore struct {
	dir     string
	minRows int
	l       *applogger.Logger

	once   sync.Once
	err    error
	series map[string]models.Series
}

// NewJSONBarStore reads dir lazily. Series with minRows or fewer rows are
// excluded.
func NewJSONBarStore(dir string, minRows int, l *applogger.Logger) *JSONBarStore {
	if l == nil {
		l = applogger.Nop()
	}
	return &JSONBarStore{dir: dir, minRows: minRows, l: l}
}

func (s *JSONBarStore) Symbols(ctx context.Context) ([]string, error) {
	if err := s.load(ctx); err != nil {
		return nil, err
	}
	out := make([]string, 0, len(s.series))
	for sym := range s.series {
		out = append(out, sym)
	}
	sort.Strings(out)
	return out, nil
}

func (s *JSONBarStore) LatestSeries(ctx context.Context, symbol string, n int) (models.Series, error) {
	if err := s.load(ctx); err != nil {
		return models.Series{}, err
	}
	series, ok := s.series[symbol]
	if !ok {
		return models.Series{}, fmt.Errorf("series %s: %w", symbol, domrepo.ErrNotFound)
	}
	return series.Tail(n), nil
}

func (s *JSONBarStore) load(ctx context.Context) error {
	s.once.Do(func() {
		s.series, s.err = s.readDir(ctx)
	})
	return s.err
}

func (s *JSONBarStore) readDir(ctx context.Context) (map[string]models.Series, error) {
	start := time.Now()
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("read json dir: %w", err)
	}
	out := make(map[string]models.Series)
	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		path := filepath.Join(s.dir, e.Name())
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", path, err)
		}
		if len(bytes.TrimSpace(b)) == 0 {
			s.l.Warn("skipping empty file", applogger.String("file", e.Name()))
			continue
		}
		frames, err := DecodePolygon(b)
		if err != nil {
			s.l.Error("json decode failed", applogger.String("file", e.Name()), applogger.Error(err))
			continue
		}
		for sym, series := range frames {
			if series.Len() <= s.minRows {
				s.l.Info("series excluded",
					applogger.String("symbol", sym),
					applogger.Int("rows", series.Len()),
					applogger.Int("required", s.minRows+1),
				)
				continue
			}
			if _, dup := out[sym]; dup {
				s.l.Warn("duplicate symbol, keeping last file", applogger.String("symbol", sym), applogger.String("file", e.Name()))
			}
			out[sym] = series
		}
	}
	s.l.Info("json bars loaded",
		applogger.String("dir", s.dir),
		applogger.Int("symbols", len(out)),
		applogger.Duration("duration_ms", time.Since(start)),
	)
	return out, nil
}

// DecodePolygon parses {symbol: {columns, index, data}} into series. Column
// names lose their spaces, non-numeric cells are left out of the observation,
// and timestamps come from the timestamp column or else from the index.
func DecodePolygon(b []byte) (map[string]models.Series, error) {
	var raw map[string]polygonFrame
	if err := json.Unmarshal(b, &raw); err != nil {
		return nil, err
	}
	out := make(map[string]models.Series, len(raw))
	for sym, f := range raw {
		series, err := f.series(sym)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", sym, err)
		}
		out[sym] = series
	}
	return out, nil
}

func (f polygonFrame) series(symbol string) (models.Series, error) {
	cols := make([]string, len(f.Columns))
	tsCol := -1
	for i, c := range f.Columns {
		cols[i] = strings.ReplaceAll(c, " ", "")
		if cols[i] == timestampColumn {
			tsCol = i
		}
	}

	s := models.Series{
		Symbol:       symbol,
		Observations: make([]models.Observation, 0, len(f.Data)),
	}
	stamps := make([]time.Time, 0, len(f.Data))
	for r, row := range f.Data {
		if len(row) != len(cols) {
			return models.Series{}, fmt.Errorf("row %d has %d cells, want %d", r, len(row), len(cols))
		}
		obs := make(models.Observation, len(cols))
		for i, cell := range row {
			if i == tsCol {
				continue
			}
			var n json.Number
			if err := json.Unmarshal(cell, &n); err != nil {
				continue
			}
			if v, err := n.Float64(); err == nil {
				obs[cols[i]] = v
			}
		}
		s.Observations = append(s.Observations, obs)

		var ts time.Time
		var ok bool
		if tsCol >= 0 {
			ts, ok = util.ParseTimestamp(row[tsCol])
		} else if r < len(f.Index) {
			ts, ok = util.ParseTimestamp(f.Index[r])
		}
		// Small integers are a positional index, not epochs.
		if ok && ts.Year() >= 1990 {
			stamps = append(stamps, ts)
		}
	}
	if len(stamps) == len(s.Observations) {
		s.Timestamps = stamps
	}
	return s, nil
}

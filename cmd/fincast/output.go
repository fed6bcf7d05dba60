package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"FinCast/internal/domain/models"
)

func printJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func printSummary(w io.Writer, s *models.RunSummary) error {
	if outFormat == "json" {
		return printJSON(w, s)
	}
	fmt.Fprintf(w, "run %s: %d forecasted, %d failed in %s\n\n",
		s.RunID, s.Succeeded(), len(s.Failures), s.FinishedAt.Sub(s.StartedAt).Round(1e6))

	results := make([]*models.ForecastResult, 0, len(s.Results))
	for _, sym := range s.Symbols() {
		results = append(results, s.Results[sym])
	}
	if err := printResults(w, results); err != nil {
		return err
	}
	if len(s.Failures) == 0 {
		return nil
	}
	fmt.Fprintln(w)
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "SYMBOL\tKIND\tSTATE\tMESSAGE")
	for _, f := range s.Failures {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", f.Symbol, f.Kind, f.State, f.Message)
	}
	return tw.Flush()
}

func printResults(w io.Writer, results []*models.ForecastResult) error {
	if outFormat == "json" {
		return printJSON(w, results)
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "SYMBOL\tMODEL\tMAE\tNEXT\tLAST")
	for _, r := range results {
		next, last := "-", "-"
		if n := len(r.Forecast); n > 0 {
			next = fmt.Sprintf("%g", r.Forecast[0])
			last = fmt.Sprintf("%g", r.Forecast[n-1])
		}
		model := r.ModelName
		if len(r.Warnings) > 0 {
			model += " (" + strings.Join(r.Warnings, "; ") + ")"
		}
		fmt.Fprintf(tw, "%s\t%s\t%.4f\t%s\t%s\n", r.Symbol, model, r.MAE, next, last)
	}
	return tw.Flush()
}

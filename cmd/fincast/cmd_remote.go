package main

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"FinCast/internal/domain/models"
	xhttp "FinCast/pkg/http"
)

var remoteTimeout time.Duration

var triggerCmd = &cobra.Command{
	Use:   "trigger [SYMBOL...]",
	Short: "Ask a running service to start a forecast run",
	Long: `Trigger posts to /api/runs on the service given by --server. The run
happens in the background; use "fincast latest" to read the results.`,
	RunE: runTrigger,
}

var latestCmd = &cobra.Command{
	Use:   "latest [SYMBOL]",
	Short: "Show the latest stored forecasts from a running service",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runLatest,
}

func init() {
	rootCmd.AddCommand(triggerCmd, latestCmd)
	rootCmd.PersistentFlags().DurationVar(&remoteTimeout, "timeout", 10*time.Second, "Timeout for requests to the service")
}

// envelope mirrors the service's JSON response wrapper.
type envelope struct {
	Status  int             `json:"status"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

func newRemoteClient() *xhttp.Client {
	return xhttp.NewClient(xhttp.WithTimeout(remoteTimeout), xhttp.WithUserAgent("fincast-cli"))
}

func apiURL(path string) string {
	return strings.TrimRight(serverURL, "/") + path
}

func runTrigger(cmd *cobra.Command, args []string) error {
	symbols := make([]string, 0, len(args))
	for _, a := range args {
		symbols = append(symbols, strings.ToUpper(a))
	}
	client := newRemoteClient()
	var resp envelope
	err := client.SendAndParse(cmd.Context(), &xhttp.RequestOptions{
		Method:  xhttp.MethodPost,
		URL:     apiURL("/api/runs"),
		Headers: map[string]string{"Content-Type": "application/json"},
		Body:    map[string][]string{"symbols": symbols},
	}, &resp)
	if err != nil {
		return fmt.Errorf("trigger run: %w", err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), resp.Message)
	return nil
}

func runLatest(cmd *cobra.Command, args []string) error {
	client := newRemoteClient()
	path := "/api/forecasts"
	if len(args) == 1 {
		path += "/" + strings.ToUpper(args[0])
	}
	var resp envelope
	if err := client.SendAndParse(cmd.Context(), &xhttp.RequestOptions{
		Method: xhttp.MethodGet,
		URL:    apiURL(path),
	}, &resp); err != nil {
		return fmt.Errorf("fetch forecasts: %w", err)
	}

	var results []*models.ForecastResult
	if len(args) == 1 {
		var r models.ForecastResult
		if err := json.Unmarshal(resp.Data, &r); err != nil {
			return fmt.Errorf("decode forecast: %w", err)
		}
		results = append(results, &r)
	} else {
		var list xhttp.ListDataResponse
		list.Rows = &results
		if err := json.Unmarshal(resp.Data, &list); err != nil {
			return fmt.Errorf("decode forecasts: %w", err)
		}
	}
	return printResults(cmd.OutOrStdout(), results)
}

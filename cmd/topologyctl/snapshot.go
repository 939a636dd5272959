package main

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/spf13/cobra"
)

func httpClient() *http.Client {
	return &http.Client{Timeout: 10 * time.Second}
}

func getJSON(path string, out any) error {
	resp, err := httpClient().Get(serverAddr + path)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("admin api error %d: %s", resp.StatusCode, string(body))
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func newSnapshotCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "snapshot",
		Short: "Show a summary of the currently published snapshot",
		RunE: func(cmd *cobra.Command, args []string) error {
			var out map[string]any
			if err := getJSON("/snapshot", &out); err != nil {
				return err
			}
			encoded, _ := json.MarshalIndent(out, "", "  ")
			fmt.Println(string(encoded))
			return nil
		},
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "subgraph [id]",
		Short: "Show one subgraph's view",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var out map[string]any
			if err := getJSON("/snapshot/subgraphs/"+args[0], &out); err != nil {
				return err
			}
			encoded, _ := json.MarshalIndent(out, "", "  ")
			fmt.Println(string(encoded))
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "deployment [id]",
		Short: "Show one deployment's view",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var out map[string]any
			if err := getJSON("/snapshot/deployments/"+args[0], &out); err != nil {
				return err
			}
			encoded, _ := json.MarshalIndent(out, "", "  ")
			fmt.Println(string(encoded))
			return nil
		},
	})

	return cmd
}

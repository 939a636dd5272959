package main

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/spf13/cobra"
)

func newRefreshCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "refresh",
		Short: "Trigger an out-of-band refresh of the network snapshot",
		RunE: func(cmd *cobra.Command, args []string) error {
			// A refresh can legitimately take as long as the server-side
			// deadline allows; don't cut it off at the default client timeout.
			client := &http.Client{Timeout: 90 * time.Second}
			resp, err := client.Post(serverAddr+"/refresh", "application/json", nil)
			if err != nil {
				return fmt.Errorf("request failed: %w", err)
			}
			defer resp.Body.Close()

			if resp.StatusCode >= 400 {
				body, _ := io.ReadAll(resp.Body)
				return fmt.Errorf("admin api error %d: %s", resp.StatusCode, string(body))
			}
			var out map[string]string
			if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
				return err
			}
			fmt.Println(out["status"])
			return nil
		},
	}
}

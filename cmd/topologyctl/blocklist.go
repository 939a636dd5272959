package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/spf13/cobra"
)

func postJSON(path string, body any, out any) error {
	encoded, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}
	resp, err := httpClient().Post(serverAddr+path, "application/json", bytes.NewReader(encoded))
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		respBody, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("admin api error %d: %s", resp.StatusCode, string(respBody))
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func deleteReq(path string) error {
	req, err := http.NewRequest(http.MethodDelete, serverAddr+path, nil)
	if err != nil {
		return err
	}
	resp, err := httpClient().Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		respBody, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("admin api error %d: %s", resp.StatusCode, string(respBody))
	}
	return nil
}

func printJSON(v any) {
	encoded, _ := json.MarshalIndent(v, "", "  ")
	fmt.Println(string(encoded))
}

func newBlocklistCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "blocklist",
		Short: "Manage the operator blocklists (requires a blocklist store)",
	}

	var reason string

	addrCmd := &cobra.Command{
		Use:   "addresses",
		Short: "List blocklisted indexer addresses",
		RunE: func(cmd *cobra.Command, args []string) error {
			var out map[string]any
			if err := getJSON("/blocklist/addresses", &out); err != nil {
				return err
			}
			printJSON(out)
			return nil
		},
	}
	addrAddCmd := &cobra.Command{
		Use:   "add [address]",
		Short: "Blocklist an indexer address",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return postJSON("/blocklist/addresses", map[string]string{
				"address": args[0],
				"reason":  reason,
			}, nil)
		},
	}
	addrAddCmd.Flags().StringVar(&reason, "reason", "", "why this entry is blocklisted")
	addrCmd.AddCommand(addrAddCmd)
	addrCmd.AddCommand(&cobra.Command{
		Use:   "remove [address]",
		Short: "Remove an indexer address from the blocklist",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return deleteReq("/blocklist/addresses/" + args[0])
		},
	})

	var hostReason string
	hostCmd := &cobra.Command{
		Use:   "hosts",
		Short: "List blocklisted IP networks",
		RunE: func(cmd *cobra.Command, args []string) error {
			var out map[string]any
			if err := getJSON("/blocklist/hosts", &out); err != nil {
				return err
			}
			printJSON(out)
			return nil
		},
	}
	hostAddCmd := &cobra.Command{
		Use:   "add [cidr]",
		Short: "Blocklist an IP network (CIDR)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return postJSON("/blocklist/hosts", map[string]string{
				"cidr":   args[0],
				"reason": hostReason,
			}, nil)
		},
	}
	hostAddCmd.Flags().StringVar(&hostReason, "reason", "", "why this entry is blocklisted")
	hostCmd.AddCommand(hostAddCmd)
	hostCmd.AddCommand(&cobra.Command{
		Use:   "remove [cidr]",
		Short: "Remove an IP network from the blocklist",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return deleteReq("/blocklist/hosts?cidr=" + url.QueryEscape(args[0]))
		},
	})

	var poiBlock uint64
	poiCmd := &cobra.Command{
		Use:   "pois",
		Short: "List forbidden proof-of-indexing entries",
		RunE: func(cmd *cobra.Command, args []string) error {
			var out map[string]any
			if err := getJSON("/blocklist/pois", &out); err != nil {
				return err
			}
			printJSON(out)
			return nil
		},
	}
	poiAddCmd := &cobra.Command{
		Use:   "add [deployment] [forbidden-poi]",
		Short: "Forbid a proof-of-indexing value for a deployment at a block",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return postJSON("/blocklist/pois", map[string]any{
				"deployment":   args[0],
				"block":        poiBlock,
				"forbiddenPoi": args[1],
			}, nil)
		},
	}
	poiAddCmd.Flags().Uint64Var(&poiBlock, "block", 0, "block number the POI is checked at")
	poiCmd.AddCommand(poiAddCmd)
	poiCmd.AddCommand(&cobra.Command{
		Use:   "remove [deployment] [block]",
		Short: "Remove a forbidden POI entry",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return deleteReq("/blocklist/pois/" + args[0] + "/" + args[1])
		},
	})

	cmd.AddCommand(addrCmd, hostCmd, poiCmd)
	return cmd
}

package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/spf13/cobra"

	"github.com/hwkim3330/webxr/hub"
)

var (
	flagServer  string
	flagRawJSON bool
)

var roomsCmd = &cobra.Command{
	Use:   "rooms",
	Short: "List the rooms of a running server",
	Long: `List the rooms of a running server.

Examples:
  webxr-signal rooms
  webxr-signal rooms --server http://relay.example.com:3000
  webxr-signal rooms --json`,
	RunE: func(cmd *cobra.Command, args []string) error {
		rooms, err := fetchRooms(cmd, flagServer)
		if err != nil {
			return err
		}
		if flagRawJSON {
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(rooms)
		}
		renderRooms(cmd.OutOrStdout(), rooms)
		return nil
	},
}

func init() {
	roomsCmd.Flags().StringVarP(&flagServer, "server", "s", "http://localhost:3000", "base URL of the signaling server")
	roomsCmd.Flags().BoolVar(&flagRawJSON, "json", false, "print the raw JSON list")
}

func fetchRooms(cmd *cobra.Command, server string) ([]hub.RoomInfo, error) {
	url := strings.TrimRight(server, "/") + "/rooms"
	req, err := http.NewRequestWithContext(cmd.Context(), http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}

	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch rooms: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("fetch rooms: %s: %s", resp.Status, strings.TrimSpace(string(body)))
	}

	var payload struct {
		Rooms []hub.RoomInfo `json:"rooms"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("decode rooms: %w", err)
	}
	return payload.Rooms, nil
}

func renderRooms(w io.Writer, rooms []hub.RoomInfo) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)
	t.Style().Format.Footer = text.FormatDefault
	t.AppendHeader(table.Row{"Room", "Publisher", "Subscribers"})

	clients := 0
	for _, r := range rooms {
		publisher := "-"
		if r.HasPublisher {
			publisher = "yes"
			clients++
		}
		clients += r.Subscribers
		t.AppendRow(table.Row{r.ID, publisher, r.Subscribers})
	}
	t.AppendFooter(table.Row{fmt.Sprintf("%d rooms", len(rooms)), "", fmt.Sprintf("%d clients", clients)})
	t.Render()
}

package commands

import (
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/marmos91/stowd/internal/cli/output"
	"github.com/marmos91/stowd/pkg/apiclient"
)

var (
	statusOutput string
	statusAPIURL string
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show server status",
	Long: `Display the running server's state through the admin API: listener
address, uptime, store health, indexed files and live connections.

Examples:
  # Check status using the configured API port
  stowd status

  # Query another instance
  stowd status --api-url http://10.0.0.5:8080

  # Output as JSON
  stowd status --output json`,
	RunE: runStatus,
}

func init() {
	statusCmd.Flags().StringVar(&statusAPIURL, "api-url", "", "Admin API URL (default: http://localhost:<api.port>)")
	statusCmd.Flags().StringVarP(&statusOutput, "output", "o", "table", "Output format (table|json|yaml)")
}

// ServerStatus is the status command result.
type ServerStatus struct {
	Address           string         `json:"address" yaml:"address"`
	Uptime            string         `json:"uptime" yaml:"uptime"`
	StoreType         string         `json:"store_type" yaml:"store_type"`
	StoreHealthy      bool           `json:"store_healthy" yaml:"store_healthy"`
	StoreLatency      string         `json:"store_latency,omitempty" yaml:"store_latency,omitempty"`
	FilesIndexed      int            `json:"files_indexed" yaml:"files_indexed"`
	ActiveConnections int            `json:"active_connections" yaml:"active_connections"`
	Sessions          []SessionState `json:"sessions" yaml:"sessions"`
}

// SessionState is one live connection.
type SessionState struct {
	ConnectionID uint64 `json:"connection_id" yaml:"connection_id"`
	ClientIP     string `json:"client_ip" yaml:"client_ip"`
	State        string `json:"state" yaml:"state"`
	IdleFor      string `json:"idle_for" yaml:"idle_for"`
}

// Headers implements output.TableRenderer.
func (s ServerStatus) Headers() []string {
	return []string{"Connection", "Client", "State", "Idle"}
}

// Rows implements output.TableRenderer.
func (s ServerStatus) Rows() [][]string {
	rows := make([][]string, 0, len(s.Sessions))
	for _, sess := range s.Sessions {
		rows = append(rows, []string{strconv.FormatUint(sess.ConnectionID, 10), sess.ClientIP, sess.State, sess.IdleFor})
	}
	return rows
}

func runStatus(cmd *cobra.Command, args []string) error {
	format, err := output.ParseFormat(statusOutput)
	if err != nil {
		return err
	}
	base, err := apiURL(statusAPIURL)
	if err != nil {
		return err
	}

	client := apiclient.New(base)
	st, err := client.Status(cmd.Context())
	if err != nil {
		return fmt.Errorf("server is not reachable at %s: %w", base, err)
	}

	result := ServerStatus{
		Address:           st.Address,
		Uptime:            st.UptimeDuration().String(),
		StoreType:         st.StoreType,
		FilesIndexed:      st.FilesIndexed,
		ActiveConnections: st.ActiveConnections,
		Sessions:          make([]SessionState, 0, len(st.Sessions)),
	}
	if health, err := client.Ready(cmd.Context()); err == nil {
		result.StoreHealthy = true
		result.StoreLatency = health.Latency
	}
	now := time.Now()
	for _, sess := range st.Sessions {
		result.Sessions = append(result.Sessions, SessionState{
			ConnectionID: sess.ConnectionID,
			ClientIP:     sess.ClientIP,
			State:        sess.State,
			IdleFor:      now.Sub(sess.LastActive).Round(time.Millisecond).String(),
		})
	}

	printer := output.NewPrinter(cmd.OutOrStdout(), format, false)
	if format != output.FormatTable {
		return printer.Print(result)
	}

	health := "healthy"
	if !result.StoreHealthy {
		health = "unhealthy"
	}
	if err := output.PrintKeyValues(cmd.OutOrStdout(), [][2]string{
		{"Address", result.Address},
		{"Uptime", result.Uptime},
		{"Store", fmt.Sprintf("%s (%s)", result.StoreType, health)},
		{"Files", strconv.Itoa(result.FilesIndexed)},
		{"Connections", strconv.Itoa(result.ActiveConnections)},
	}); err != nil {
		return err
	}
	if len(result.Sessions) == 0 {
		return nil
	}
	_, _ = fmt.Fprintln(cmd.OutOrStdout())
	return printer.Print(result)
}

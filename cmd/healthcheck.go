package cmd

import (
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"
)

var healthcheckCmd = &cobra.Command{
	Use:   "healthcheck",
	Short: "Check that the local facade answers /health",
	Long:  `Exit non-zero unless the facade on FACADE_PORT is healthy. Meant for container health checks.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := runHealthcheck(cfg.Port); err != nil {
			return fmt.Errorf("healthcheck failed: %w", err)
		}
		printer.Success("facade is healthy")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(healthcheckCmd)
}

// runHealthcheck performs a health check against the local server
func runHealthcheck(port string) error {
	client := &http.Client{
		Timeout: 2 * time.Second,
	}

	resp, err := client.Get(fmt.Sprintf("http://127.0.0.1:%s/health", port))
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health endpoint returned status: %d", resp.StatusCode)
	}

	return nil
}

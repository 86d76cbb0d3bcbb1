package cli

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
)

const defaultNotifierYAML = `# AgriFlow notifier config
# Priority: CLI flag > environment > this file > default.

kafka_brokers: "localhost:9092"
events_topic:  "agriflow.events"
dlq_topic:     "agriflow.events.dlq"
group_id:      "agriflow-notifier"
log_level:     "info"

notify_channel: "email"   # log | email | webhook
notify_to:      "farmer@example.com"
max_attempts:     3
delivery_timeout: "30s"

# --- Local (MailHog) ---
smtp_host: "localhost"
smtp_port: 1025
smtp_from: "noreply@agriflow.dev"
# smtp_username: ""
# smtp_password: ""

# notify_webhook_url: "https://hooks.example.com/agriflow"

# Deliveries per minute per channel, shared through Redis (0 = disabled).
# redis_addr: "localhost:6379"
rate_limit: 0

metrics_addr: ":9094"
# otel_endpoint: "localhost:4318"  # uncomment to enable OpenTelemetry tracing
`

func newInitCmd(service, defaultYAML string) *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a default config file",
		Long: fmt.Sprintf(`Write default configuration for %s.

If --config is given the file is written to that path.
Otherwise it is written to ~/.agriflow/%s.yaml.
Fails if the file already exists unless --force is passed.`, service, service),
		RunE: func(_ *cobra.Command, _ []string) error {
			dest := cfgFile
			if dest == "" {
				home, err := os.UserHomeDir()
				if err != nil {
					return fmt.Errorf("home dir: %w", err)
				}
				dest = filepath.Join(home, ".agriflow", service+".yaml")
			}

			if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
				return fmt.Errorf("mkdir: %w", err)
			}
			if !force {
				if _, err := os.Stat(dest); err == nil {
					return fmt.Errorf("%s already exists (use --force to overwrite)", dest)
				} else if !errors.Is(err, os.ErrNotExist) {
					return fmt.Errorf("stat %s: %w", dest, err)
				}
			}
			if err := os.WriteFile(dest, []byte(defaultYAML), 0o644); err != nil {
				return fmt.Errorf("write config: %w", err)
			}
			fmt.Printf("config written to %s\n", dest)
			return nil
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "overwrite existing config file")
	return cmd
}

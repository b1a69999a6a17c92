package cli

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/tollgate/tollgate/internal/domain"
)

func newInitCmd() *cobra.Command {
	var (
		storeDriver string
		force       bool
	)

	cmd := &cobra.Command{
		Use:   "init [path]",
		Short: "Generate a .tollgate.yaml configuration file",
		Long:  "Create a .tollgate.yaml with the default settings and a commented example component.",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := "."
			if len(args) > 0 {
				path = args[0]
			}

			absPath, err := filepath.Abs(path)
			if err != nil {
				return fmt.Errorf("resolving path: %w", err)
			}

			dest := filepath.Join(absPath, domain.ConfigFileName)

			if !force {
				if _, err := os.Stat(dest); err == nil {
					return fmt.Errorf("%s already exists (use --force to overwrite)", domain.ConfigFileName)
				}
			}

			if storeDriver != domain.StoreBadger && storeDriver != domain.StoreMemory {
				return fmt.Errorf("unknown store driver %q (valid: badger, memory)", storeDriver)
			}

			content, err := generateConfig(storeDriver)
			if err != nil {
				return err
			}

			if err := os.WriteFile(dest, content, 0o644); err != nil {
				return fmt.Errorf("writing config: %w", err)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Created %s\n", domain.ConfigFileName)
			return nil
		},
	}

	cmd.Flags().StringVar(&storeDriver, "store", domain.StoreBadger, "Store driver (badger, memory)")
	cmd.Flags().BoolVar(&force, "force", false, "Overwrite existing .tollgate.yaml")

	return cmd
}

func generateConfig(storeDriver string) ([]byte, error) {
	cfg := domain.DefaultConfig()
	cfg.Store.Driver = storeDriver
	cfg.Notifications.Sinks = []domain.SinkConfig{
		{Name: "log", Type: domain.SinkLog},
		{Name: "journal", Type: domain.SinkJournal, Path: ".tollgate/events.jsonl"},
	}

	var buf bytes.Buffer
	buf.WriteString("# tollgate configuration\n\n")
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(cfg); err != nil {
		return nil, fmt.Errorf("encoding config: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("encoding config: %w", err)
	}

	buf.WriteString(`
# components:
#   - id: go-yaml
#     upstream: go-yaml/yaml
#     version: v3.0.1
#     monitor: [releases, advisories]
#     profile: default
`)
	return buf.Bytes(), nil
}

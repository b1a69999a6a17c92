package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tollgate/tollgate/internal/adapters/outbound/notify"
	"github.com/tollgate/tollgate/internal/adapters/outbound/tui"
	"github.com/tollgate/tollgate/internal/domain"
)

func newEventsCmd(flags *rootFlags) *cobra.Command {
	var (
		sinkName    string
		componentID string
		limit       int
		jsonOutput  bool
	)

	cmd := &cobra.Command{
		Use:   "events",
		Short: "Show events recorded by a journal sink",
		Long:  "Read the events a journal notification sink has recorded, newest last.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := loadConfig(flags)
			if err != nil {
				return err
			}
			path, err := journalPath(cfg, sinkName)
			if err != nil {
				return err
			}
			events, err := notify.ReadJournal(path)
			if err != nil {
				return fmt.Errorf("reading journal: %w", err)
			}

			if componentID != "" {
				kept := events[:0]
				for _, e := range events {
					if e.Component == componentID {
						kept = append(kept, e)
					}
				}
				events = kept
			}
			if limit > 0 && len(events) > limit {
				events = events[len(events)-limit:]
			}

			if jsonOutput {
				if events == nil {
					events = []domain.Event{}
				}
				return renderJSON(cmd, events)
			}
			fmt.Fprint(cmd.OutOrStdout(), tui.RenderEvents(events))
			return nil
		},
	}

	cmd.Flags().StringVar(&sinkName, "sink", "", "Journal sink to read (defaults to the first one configured)")
	cmd.Flags().StringVar(&componentID, "component", "", "Only show events for this component")
	cmd.Flags().IntVar(&limit, "limit", 50, "Show at most this many of the latest events (0 for all)")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output events as JSON")

	return cmd
}

func journalPath(cfg domain.Config, name string) (string, error) {
	for _, s := range cfg.Notifications.Sinks {
		if s.Type != domain.SinkJournal {
			continue
		}
		if name == "" || s.Name == name {
			return s.Path, nil
		}
	}
	if name != "" {
		return "", fmt.Errorf("no journal sink named %q: %w", name, domain.ErrNotFound)
	}
	return "", errors.New("no journal sink configured")
}

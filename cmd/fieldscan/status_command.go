package main

import (
	"fmt"
	"io"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"fieldscan/internal/api"
	"fieldscan/internal/preflight"
	"fieldscan/internal/queue"
)

type statusView struct {
	Agent  *api.AgentStatus   `json:"agent,omitempty"`
	Queue  map[string]int     `json:"queue"`
	Checks []preflight.Result `json:"checks"`
}

func newStatusCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show agent, queue and connectivity status",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			client, err := ctx.remoteClient(ctx.cliLogger())
			if err != nil {
				return err
			}

			view := statusView{Checks: preflight.RunAll(cmd.Context(), cfg, client)}
			if agentClient := ctx.agentClient(cmd.Context()); agentClient != nil {
				status, err := agentClient.Status(cmd.Context())
				if err != nil {
					return err
				}
				view.Agent = status
				view.Queue = status.QueueStats
			} else {
				err := ctx.withStore(func(store *queue.Store) error {
					counts, err := store.CountByStatus(cmd.Context())
					if err != nil {
						return err
					}
					view.Queue = api.FromCounts(counts)
					return nil
				})
				if err != nil {
					return err
				}
			}

			if ctx.JSONMode() {
				return writeJSON(cmd, view)
			}
			renderStatus(cmd.OutOrStdout(), view, cfg.Remote.BaseURL)
			return nil
		},
	}
}

func renderStatus(out io.Writer, view statusView, remoteURL string) {
	green := color.New(color.FgGreen).SprintFunc()
	red := color.New(color.FgRed).SprintFunc()

	pairs := [][2]string{{"Remote", remoteURL}}
	if view.Agent == nil {
		pairs = append(pairs, [2]string{"Agent", red("not running")})
	} else {
		a := view.Agent
		online := red("offline")
		if a.Online {
			online = green("online")
		}
		pairs = append(pairs,
			[2]string{"Agent", green(fmt.Sprintf("running (pid %d)", a.PID))},
			[2]string{"Connectivity", online},
			[2]string{"Sync state", a.Sync.State},
			[2]string{"Auto sync", yesNo(a.AutoSync)},
			[2]string{"Can sync", yesNo(a.CanSync)},
		)
		if a.Sync.IsSyncing {
			pairs = append(pairs, [2]string{"Progress", fmt.Sprintf("%d/%d", a.Sync.Progress, a.Sync.Total)})
		}
		if a.Sync.Error != "" {
			pairs = append(pairs, [2]string{"Last error", red(a.Sync.Error)})
		}
		if a.Sync.LastFinishedAt != "" {
			pairs = append(pairs, [2]string{"Last sync", formatDisplayTime(a.Sync.LastFinishedAt)})
		}
	}
	for _, key := range api.SortedStatuses(view.Queue) {
		pairs = append(pairs, [2]string{"Queue " + key, fmt.Sprintf("%d", view.Queue[key])})
	}
	fmt.Fprint(out, renderKeyValues(pairs))

	rows := make([][]string, 0, len(view.Checks))
	for _, check := range view.Checks {
		state := green("ok")
		if !check.Passed {
			state = red("fail")
		}
		rows = append(rows, []string{check.Name, state, check.Detail})
	}
	if len(rows) > 0 {
		fmt.Fprint(out, renderTable([]string{"Check", "State", "Detail"}, rows, nil))
	}
}

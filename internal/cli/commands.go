package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"

	mirrorapp "github.com/osvaldoandrade/pkgmirror/internal/app/mirror"
	"github.com/osvaldoandrade/pkgmirror/internal/app/reconcile"
	snapshotapp "github.com/osvaldoandrade/pkgmirror/internal/app/snapshot"
	"github.com/osvaldoandrade/pkgmirror/internal/domain"
	"github.com/spf13/cobra"
)

func newSyncCmd(opts *RootOptions) *cobra.Command {
	var push bool
	var channels []string
	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Reconcile the cache tree with today's snapshots",
		RunE: func(cmd *cobra.Command, _ []string) error {
			selected, err := opts.Config.SelectChannels(channels)
			if err != nil {
				return err
			}
			rt := newRuntime(opts, cmd.ErrOrStderr())
			defer rt.Close()

			service, err := rt.syncService(push)
			if err != nil {
				return err
			}
			var sink reconcile.Sink
			if !opts.JSONOutput {
				sink = newConsoleSink(cmd.ErrOrStderr())
			}
			report, syncErr := service.Sync(cmd.Context(), selected, mirrorapp.SyncOptions{Push: push, Sink: sink})
			if err := writeSyncReport(cmd, report, opts.JSONOutput); err != nil {
				return err
			}
			return syncErr
		},
	}
	cmd.Flags().BoolVar(&push, "push", false, "Publish the cache tree once every channel converged")
	cmd.Flags().StringArrayVar(&channels, "channel", nil, "Channel to reconcile (repeatable, default all)")
	return cmd
}

func newStatusCmd(opts *RootOptions) *cobra.Command {
	var channels []string
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Report drift between the cache tree and today's snapshots",
		RunE: func(cmd *cobra.Command, _ []string) error {
			selected, err := opts.Config.SelectChannels(channels)
			if err != nil {
				return err
			}
			rt := newRuntime(opts, cmd.ErrOrStderr())
			defer rt.Close()

			service := mirrorapp.NewStatusService(rt.engine)
			statuses, err := service.Status(cmd.Context(), selected, nil)
			if err != nil {
				return err
			}
			if err := writeStatusResult(cmd, statuses, opts.JSONOutput); err != nil {
				return err
			}
			for _, status := range statuses {
				if status.Err != nil {
					return fmt.Errorf("%s: %w", status.Result.Channel, status.Err)
				}
			}
			return nil
		},
	}
	cmd.Flags().StringArrayVar(&channels, "channel", nil, "Channel to inspect (repeatable, default all)")
	return cmd
}

func newSnapshotCmd(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "snapshot",
		Short: "Inspect daily package snapshots",
		RunE:  runHelp,
	}
	cmd.AddCommand(newSnapshotShowCmd(opts), newSnapshotDiffCmd(opts))
	return cmd
}

func newSnapshotShowCmd(opts *RootOptions) *cobra.Command {
	var date string
	var list bool
	cmd := &cobra.Command{
		Use:   "show <channel>",
		Short: "Show a channel snapshot, building today's when it is not cached",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			channel, err := opts.Config.FindChannel(args[0])
			if err != nil {
				return err
			}
			rt := newRuntime(opts, cmd.ErrOrStderr())
			defer rt.Close()

			var snap domain.Snapshot
			if strings.TrimSpace(date) == "" {
				snap, err = rt.store.Load(cmd.Context(), channel)
			} else {
				snap, err = rt.store.LoadDate(cmd.Context(), channel, date)
			}
			if err != nil {
				return err
			}
			return writeSnapshotResult(cmd, channel, snap, list, opts.JSONOutput)
		},
	}
	cmd.Flags().StringVar(&date, "date", "", "Read the cached snapshot of this day (YYYYMMDD)")
	cmd.Flags().BoolVar(&list, "list", false, "List every package record")
	return cmd
}

func newSnapshotDiffCmd(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "diff <channel> <from> <to>",
		Short: "Show how a channel moved between two cached days",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			channel, err := opts.Config.FindChannel(args[0])
			if err != nil {
				return err
			}
			rt := newRuntime(opts, cmd.ErrOrStderr())
			defer rt.Close()

			result, err := rt.diffService().Diff(cmd.Context(), channel, args[1], args[2])
			if err != nil {
				return err
			}
			return writeDiffResult(cmd, result, opts.JSONOutput)
		},
	}
}

func newHistoryCmd(opts *RootOptions) *cobra.Command {
	var limit int
	var runID string
	cmd := &cobra.Command{
		Use:   "history",
		Short: "List journaled reconciliation runs",
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt := newRuntime(opts, cmd.ErrOrStderr())
			defer rt.Close()

			journal, err := rt.openJournal()
			if err != nil {
				return err
			}
			service := mirrorapp.NewHistoryService(journal)
			if strings.TrimSpace(runID) != "" {
				detail, err := service.Run(cmd.Context(), runID)
				if err != nil {
					return err
				}
				return writeRunDetail(cmd, detail, opts.JSONOutput)
			}
			runs, err := service.Runs(cmd.Context(), limit)
			if err != nil {
				return err
			}
			return writeRuns(cmd, runs, opts.JSONOutput)
		},
	}
	cmd.Flags().IntVar(&limit, "limit", mirrorapp.DefaultHistoryLimit, "Number of runs to list")
	cmd.Flags().StringVar(&runID, "run", "", "Show the events of one run")
	return cmd
}

type driftOutput struct {
	Kind       string `json:"kind"`
	SubChannel string `json:"sub_channel"`
	Name       string `json:"name"`
	Version    string `json:"version,omitempty"`
	Tag        string `json:"tag,omitempty"`
}

type channelOutput struct {
	Channel        string        `json:"channel"`
	RunID          string        `json:"run_id,omitempty"`
	Status         string        `json:"status"`
	Passes         int           `json:"passes"`
	SnapshotDate   string        `json:"snapshot_date,omitempty"`
	SnapshotDigest string        `json:"snapshot_digest,omitempty"`
	Drifts         []driftOutput `json:"drifts"`
	Error          string        `json:"error,omitempty"`
}

type publishOutput struct {
	Date      string   `json:"date"`
	Committed []string `json:"committed"`
	Tags      []string `json:"tags"`
	Patched   int      `json:"patched"`
}

type syncOutput struct {
	Channels  []channelOutput `json:"channels"`
	Failed    []string        `json:"failed,omitempty"`
	Published bool            `json:"published"`
	Publish   *publishOutput  `json:"publish,omitempty"`
}

type snapshotOutput struct {
	Channel  string                            `json:"channel"`
	Date     string                            `json:"date"`
	Digest   string                            `json:"digest"`
	Packages map[string][]domain.PackageRecord `json:"packages,omitempty"`
	Counts   map[string]int                    `json:"counts"`
}

type diffOutput struct {
	Channel string          `json:"channel"`
	From    string          `json:"from"`
	To      string          `json:"to"`
	Patch   json.RawMessage `json:"patch"`
}

type runOutput struct {
	ID             string `json:"id"`
	Channel        string `json:"channel"`
	Architecture   string `json:"architecture"`
	Status         string `json:"status"`
	StartedAt      string `json:"started_at"`
	FinishedAt     string `json:"finished_at,omitempty"`
	Passes         int    `json:"passes"`
	Drifts         int    `json:"drifts"`
	SnapshotDate   string `json:"snapshot_date,omitempty"`
	SnapshotDigest string `json:"snapshot_digest,omitempty"`
	Error          string `json:"error,omitempty"`
}

type eventOutput struct {
	Seq        int    `json:"seq"`
	Kind       string `json:"kind"`
	Pass       int    `json:"pass"`
	SubChannel string `json:"sub_channel,omitempty"`
	Name       string `json:"name,omitempty"`
	Version    string `json:"version,omitempty"`
	Tag        string `json:"tag,omitempty"`
	DriftKind  string `json:"drift_kind,omitempty"`
	Action     string `json:"action,omitempty"`
	ExitCode   int    `json:"exit_code"`
	RecordedAt string `json:"recorded_at"`
}

type runDetailOutput struct {
	Run    runOutput     `json:"run"`
	Events []eventOutput `json:"events"`
}

const timeLayout = "2006-01-02T15:04:05.999Z07:00"

func writeSyncReport(cmd *cobra.Command, report mirrorapp.SyncReport, asJSON bool) error {
	out := cmd.OutOrStdout()
	if asJSON {
		payload := syncOutput{
			Channels:  make([]channelOutput, 0, len(report.Channels)),
			Failed:    report.Failed,
			Published: report.Published,
		}
		for _, channel := range report.Channels {
			payload.Channels = append(payload.Channels, newChannelOutput(channel.RunID, channel.Status(), channel.Result, channel.Err))
		}
		if report.Published {
			payload.Publish = &publishOutput{
				Date:      report.Publish.Date,
				Committed: nonNil(report.Publish.Committed),
				Tags:      nonNil(report.Publish.Tags),
				Patched:   report.Publish.Patched,
			}
		}
		return writeJSON(out, payload)
	}

	ui := newRenderer(out, asJSON)
	for _, channel := range report.Channels {
		line := fmt.Sprintf("%s %s passes=%d drifts=%d", channel.Result.Channel, colorStatus(ui, channel.Status()), channel.Result.Passes, len(channel.Result.Drifts))
		if channel.RunID != "" {
			line += " " + ui.dim(channel.RunID)
		}
		if _, err := fmt.Fprintln(out, line); err != nil {
			return err
		}
		for _, drift := range channel.Result.Unresolved {
			if _, err := fmt.Fprintf(out, "  %s %s\n", colorDrift(ui, drift.Kind), drift); err != nil {
				return err
			}
		}
	}
	if !report.Published {
		return nil
	}
	if err := writeKV(out, ui, "Published", report.Publish.Date); err != nil {
		return err
	}
	if err := writeKV(out, ui, "Committed", listOrNone(ui, report.Publish.Committed)); err != nil {
		return err
	}
	if err := writeKV(out, ui, "Tags", listOrNone(ui, report.Publish.Tags)); err != nil {
		return err
	}
	return writeKV(out, ui, "Patched", fmt.Sprintf("%d", report.Publish.Patched))
}

func writeStatusResult(cmd *cobra.Command, statuses []mirrorapp.ChannelStatus, asJSON bool) error {
	out := cmd.OutOrStdout()
	if asJSON {
		payload := make([]channelOutput, 0, len(statuses))
		for _, status := range statuses {
			payload = append(payload, newChannelOutput("", inspectStatus(status), status.Result, status.Err))
		}
		return writeJSON(out, payload)
	}

	ui := newRenderer(out, asJSON)
	for _, status := range statuses {
		summary := ui.ok("clean")
		switch {
		case status.Err != nil:
			summary = ui.err("error: " + status.Err.Error())
		case len(status.Result.Drifts) > 0:
			summary = ui.warn(fmt.Sprintf("%d drift(s)", len(status.Result.Drifts)))
		}
		if _, err := fmt.Fprintf(out, "%s %s %s\n", status.Result.Channel, summary, ui.dim(status.Result.SnapshotDate)); err != nil {
			return err
		}
		for _, drift := range status.Result.Drifts {
			if _, err := fmt.Fprintf(out, "  %s %s\n", colorDrift(ui, drift.Kind), drift); err != nil {
				return err
			}
		}
	}
	return nil
}

func writeSnapshotResult(cmd *cobra.Command, channel domain.Channel, snap domain.Snapshot, list, asJSON bool) error {
	out := cmd.OutOrStdout()
	subs := make([]string, 0, len(snap.Packages))
	counts := make(map[string]int, len(snap.Packages))
	for sub, records := range snap.Packages {
		subs = append(subs, sub)
		counts[sub] = len(records)
	}
	sort.Strings(subs)

	if asJSON {
		payload := snapshotOutput{
			Channel: channel.String(),
			Date:    snap.Date,
			Digest:  snap.Digest,
			Counts:  counts,
		}
		if list {
			payload.Packages = snap.Packages
		}
		return writeJSON(out, payload)
	}

	ui := newRenderer(out, asJSON)
	if err := writeKV(out, ui, "Channel", channel.String()); err != nil {
		return err
	}
	if err := writeKV(out, ui, "Date", snap.Date); err != nil {
		return err
	}
	if err := writeKV(out, ui, "Digest", snap.Digest); err != nil {
		return err
	}
	for _, sub := range subs {
		if err := writeKV(out, ui, sub, fmt.Sprintf("%d packages", counts[sub])); err != nil {
			return err
		}
		if !list {
			continue
		}
		for _, record := range snap.Packages[sub] {
			if _, err := fmt.Fprintf(out, "  %s %s\n", record.Name, ui.dim(record.Version)); err != nil {
				return err
			}
		}
	}
	return nil
}

func writeDiffResult(cmd *cobra.Command, result snapshotapp.DiffResult, asJSON bool) error {
	out := cmd.OutOrStdout()
	if asJSON {
		return writeJSON(out, diffOutput{
			Channel: result.Channel.String(),
			From:    result.From,
			To:      result.To,
			Patch:   rawJSON(result.Patch),
		})
	}
	if _, err := out.Write(result.Patch); err != nil {
		return err
	}
	if len(result.Patch) > 0 && result.Patch[len(result.Patch)-1] != '\n' {
		if _, err := fmt.Fprintln(out); err != nil {
			return err
		}
	}
	return nil
}

func writeRuns(cmd *cobra.Command, runs []domain.Run, asJSON bool) error {
	out := cmd.OutOrStdout()
	if asJSON {
		payload := make([]runOutput, 0, len(runs))
		for _, run := range runs {
			payload = append(payload, newRunOutput(run))
		}
		return writeJSON(out, payload)
	}

	ui := newRenderer(out, asJSON)
	for _, run := range runs {
		if _, err := fmt.Fprintf(out, "%s %s %s %s passes=%d drifts=%d\n",
			run.ID,
			run.StartedAt.Format(timeLayout),
			run.Channel,
			colorStatus(ui, run.Status),
			run.Passes,
			run.Drifts,
		); err != nil {
			return err
		}
	}
	return nil
}

func writeRunDetail(cmd *cobra.Command, detail mirrorapp.RunDetail, asJSON bool) error {
	out := cmd.OutOrStdout()
	if asJSON {
		payload := runDetailOutput{
			Run:    newRunOutput(detail.Run),
			Events: make([]eventOutput, 0, len(detail.Events)),
		}
		for _, event := range detail.Events {
			payload.Events = append(payload.Events, eventOutput{
				Seq:        event.Seq,
				Kind:       event.Kind,
				Pass:       event.Pass,
				SubChannel: event.SubChannel,
				Name:       event.Name,
				Version:    event.Version,
				Tag:        event.Tag,
				DriftKind:  event.DriftKind,
				Action:     event.Action,
				ExitCode:   event.ExitCode,
				RecordedAt: event.RecordedAt.Format(timeLayout),
			})
		}
		return writeJSON(out, payload)
	}

	ui := newRenderer(out, asJSON)
	run := detail.Run
	if err := writeKV(out, ui, "Run", run.ID); err != nil {
		return err
	}
	if err := writeKV(out, ui, "Channel", fmt.Sprintf("%s/%s", run.Channel, run.Architecture)); err != nil {
		return err
	}
	if err := writeKV(out, ui, "Status", colorStatus(ui, run.Status)); err != nil {
		return err
	}
	if err := writeKV(out, ui, "Started", run.StartedAt.Format(timeLayout)); err != nil {
		return err
	}
	if run.Finished() {
		if err := writeKV(out, ui, "Finished", run.FinishedAt.Format(timeLayout)); err != nil {
			return err
		}
	}
	if err := writeKV(out, ui, "Snapshot", fmt.Sprintf("%s %s", run.SnapshotDate, ui.dim(run.SnapshotDigest))); err != nil {
		return err
	}
	if run.Error != "" {
		if err := writeKV(out, ui, "Error", ui.err(run.Error)); err != nil {
			return err
		}
	}
	for _, event := range detail.Events {
		line := fmt.Sprintf("%4d pass=%d %s", event.Seq, event.Pass, event.Kind)
		if event.Name != "" {
			line += fmt.Sprintf(" %s/%s", event.SubChannel, event.Name)
		}
		if event.Version != "" {
			line += " " + event.Version
		}
		if event.DriftKind != "" {
			line += " " + colorDrift(ui, domain.DriftKind(event.DriftKind))
		}
		if event.Action != "" {
			line += fmt.Sprintf(" %s exit=%d", event.Action, event.ExitCode)
		}
		if _, err := fmt.Fprintln(out, line); err != nil {
			return err
		}
	}
	return nil
}

func newChannelOutput(runID string, status domain.RunStatus, result reconcile.Result, err error) channelOutput {
	drifts := result.Drifts
	if len(result.Unresolved) > 0 {
		drifts = result.Unresolved
	}
	output := channelOutput{
		Channel:        result.Channel.String(),
		RunID:          runID,
		Status:         string(status),
		Passes:         result.Passes,
		SnapshotDate:   result.SnapshotDate,
		SnapshotDigest: result.SnapshotDigest,
		Drifts:         make([]driftOutput, 0, len(drifts)),
	}
	for _, drift := range drifts {
		output.Drifts = append(output.Drifts, driftOutput{
			Kind:       string(drift.Kind),
			SubChannel: drift.SubChannel,
			Name:       drift.Name,
			Version:    drift.Version,
			Tag:        drift.Tag,
		})
	}
	if err != nil {
		output.Error = err.Error()
	}
	return output
}

func newRunOutput(run domain.Run) runOutput {
	output := runOutput{
		ID:             run.ID,
		Channel:        run.Channel,
		Architecture:   run.Architecture,
		Status:         string(run.Status),
		StartedAt:      run.StartedAt.Format(timeLayout),
		Passes:         run.Passes,
		Drifts:         run.Drifts,
		SnapshotDate:   run.SnapshotDate,
		SnapshotDigest: run.SnapshotDigest,
		Error:          run.Error,
	}
	if run.Finished() {
		output.FinishedAt = run.FinishedAt.Format(timeLayout)
	}
	return output
}

// inspectStatus maps a read-only inspection onto run statuses: drift that a
// sync would have to repair reads as unresolved.
func inspectStatus(status mirrorapp.ChannelStatus) domain.RunStatus {
	switch {
	case status.Err != nil:
		return domain.RunFailed
	case len(status.Result.Drifts) > 0:
		return domain.RunUnresolved
	default:
		return domain.RunConverged
	}
}

func writeJSON(out io.Writer, payload any) error {
	encoder := json.NewEncoder(out)
	encoder.SetIndent("", "  ")
	return encoder.Encode(payload)
}

func writeKV(out io.Writer, ui renderer, key, value string) error {
	_, err := fmt.Fprintf(out, "%s: %s\n", ui.key(key), value)
	return err
}

func listOrNone(ui renderer, values []string) string {
	if len(values) == 0 {
		return ui.dim("(none)")
	}
	return strings.Join(values, ", ")
}

func nonNil(values []string) []string {
	if values == nil {
		return []string{}
	}
	return values
}

func rawJSON(data []byte) json.RawMessage {
	if len(data) == 0 {
		return nil
	}
	return json.RawMessage(data)
}

func runHelp(cmd *cobra.Command, _ []string) error {
	return cmd.Help()
}

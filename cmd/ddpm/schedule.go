package main

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/goccy/go-json"
	"github.com/urfave/cli/v3"

	"github.com/samcharles93/ddpm/internal/schedule"
)

type scheduleRow struct {
	T        int     `json:"t"`
	Beta     float64 `json:"beta"`
	Alpha    float64 `json:"alpha"`
	AlphaBar float64 `json:"alpha_bar"`
}

func scheduleCmd() *cli.Command {
	var (
		every  int64
		asJSON bool
	)
	return &cli.Command{
		Name:  "schedule",
		Usage: "Print the variance schedule",
		Flags: append(scheduleFlags(),
			&cli.Int64Flag{
				Name:        "every",
				Usage:       "print every n-th timestep (the last one is always printed)",
				Value:       100,
				Destination: &every,
			},
			&cli.BoolFlag{
				Name:        "json",
				Usage:       "emit JSON instead of a table",
				Destination: &asJSON,
			},
		),
		Action: func(ctx context.Context, cmd *cli.Command) error {
			applyEngineConfig(cmd, fileConfig)
			mode, err := schedule.ParseMode(scheduleMode)
			if err != nil {
				return err
			}
			s, err := schedule.New(int(timesteps), betaMin, betaMax, mode)
			if err != nil {
				return err
			}
			rows := scheduleRows(s, int(every))
			w := cmd.Root().Writer
			if asJSON {
				return json.NewEncoder(w).Encode(rows)
			}
			return writeScheduleTable(w, rows)
		},
	}
}

func scheduleRows(s *schedule.Schedule, every int) []scheduleRow {
	if every <= 0 {
		every = 1
	}
	var rows []scheduleRow
	last := s.Len() - 1
	for t := 0; t <= last; t++ {
		if t%every != 0 && t != last {
			continue
		}
		rows = append(rows, scheduleRow{T: t, Beta: s.Beta(t), Alpha: s.Alpha(t), AlphaBar: s.AlphaBar(t)})
	}
	return rows
}

func writeScheduleTable(w io.Writer, rows []scheduleRow) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', tabwriter.AlignRight)
	_, _ = fmt.Fprintln(tw, "t\tbeta\talpha\talpha_bar\t")
	for _, r := range rows {
		_, _ = fmt.Fprintf(tw, "%d\t%.6g\t%.6g\t%.6g\t\n", r.T, r.Beta, r.Alpha, r.AlphaBar)
	}
	return tw.Flush()
}

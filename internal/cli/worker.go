package cli

import (
	"github.com/spf13/cobra"

	"github.com/next-trace/scg-message-publisher/internal/bootstrap"
	"github.com/next-trace/scg-message-publisher/worker"
)

func newWorkerCommand(o *rootOptions) *cobra.Command {
	valid := append(bootstrap.WorkerNames(), bootstrap.WorkerAll)

	return &cobra.Command{
		Use:       "worker <kafka|sns|sqs|all>",
		Short:     "Consume a destination and log each message",
		Long:      `Runs one consumer worker, or all of them concurrently, until SIGINT or SIGTERM.`,
		Args:      cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
		ValidArgs: valid,
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := o.load(cmd)
			if err != nil {
				return err
			}

			app, err := e.app()
			if err != nil {
				return err
			}
			defer app.Close()

			runners, err := app.Runners(args[0])
			if err != nil {
				return err
			}

			return worker.RunAll(cmd.Context(), runners...)
		},
	}
}

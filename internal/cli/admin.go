package cli

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

const (
	outputJSON = "json"
	outputYAML = "yaml"
)

func newAdminCommand(o *rootOptions) *cobra.Command {
	admin := &cobra.Command{
		Use:   "admin",
		Short: "Provision and inspect destinations",
	}

	admin.PersistentFlags().StringVarP(&o.output, "output", "o", outputJSON, "output format: json, yaml")

	admin.AddCommand(
		newKafkaTopicCommand(o),
		newSNSTopicCommand(o),
		newSQSAttributesCommand(o),
		newSQSPurgeCommand(o),
	)

	return admin
}

func newKafkaTopicCommand(o *rootOptions) *cobra.Command {
	var (
		partitions  int32
		replication int16
	)

	cmd := &cobra.Command{
		Use:   "kafka-topic <name>",
		Short: "Create a Kafka topic unless it exists",
		Args:  cobra.ExactArgs(1),
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

			created, err := app.EnsureKafkaTopic(cmd.Context(), args[0], partitions, replication)
			if err != nil {
				return err
			}

			return o.print(cmd.OutOrStdout(), map[string]any{"topic": args[0], "created": created})
		},
	}

	cmd.Flags().Int32Var(&partitions, "partitions", 3, "number of partitions")
	cmd.Flags().Int16Var(&replication, "replication", 1, "replication factor")

	return cmd
}

func newSNSTopicCommand(o *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "sns-topic <name>",
		Short: "Create an SNS topic and print its ARN",
		Args:  cobra.ExactArgs(1),
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

			arn, err := app.CreateSNSTopic(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			return o.print(cmd.OutOrStdout(), map[string]any{"topic": args[0], "topicArn": arn})
		},
	}
}

func newSQSAttributesCommand(o *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "sqs-attributes",
		Short: "Print message counts of the configured SQS queue",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			e, err := o.load(cmd)
			if err != nil {
				return err
			}

			app, err := e.app()
			if err != nil {
				return err
			}
			defer app.Close()

			attrs, err := app.SQSAttributes(cmd.Context())
			if err != nil {
				return err
			}

			return o.print(cmd.OutOrStdout(), attrs)
		},
	}
}

func newSQSPurgeCommand(o *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "sqs-purge",
		Short: "Delete every message in the configured SQS queue",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			e, err := o.load(cmd)
			if err != nil {
				return err
			}

			app, err := e.app()
			if err != nil {
				return err
			}
			defer app.Close()

			if err := app.PurgeSQS(cmd.Context()); err != nil {
				return err
			}

			_, err = fmt.Fprintf(cmd.OutOrStdout(), "purged %s\n", e.cfg.SQS.QueueURL)

			return err
		},
	}
}

// print renders v in the selected output format. YAML goes through the JSON
// form so both formats use the same field names.
func (o *rootOptions) print(w io.Writer, v any) error {
	switch o.output {
	case outputJSON, "":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")

		return enc.Encode(v)
	case outputYAML:
		b, err := json.Marshal(v)
		if err != nil {
			return err
		}

		var generic any
		if err := json.Unmarshal(b, &generic); err != nil {
			return err
		}

		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)

		if err := enc.Encode(generic); err != nil {
			return err
		}

		return enc.Close()
	default:
		return fmt.Errorf("unknown output format %q, want %s or %s", o.output, outputJSON, outputYAML)
	}
}

package cmd

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"mail-agent/internal/cli"
	"mail-agent/internal/email"
	"mail-agent/internal/llm"
)

func newSuggestCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "suggest <message-id>",
		Short: "Draft casual, professional and detailed replies to a message",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withMailbox(cmd, opts, func(s *session) error {
				raw, err := s.gateway.GetMessage(s.ctx, args[0])
				if err != nil {
					return fmt.Errorf("failed to get message %s: %w", args[0], err)
				}
				msg := email.ParseMessage(raw)

				model, err := llm.New(s.cfg.LLMSettings(), s.logger)
				if err != nil {
					return fmt.Errorf("failed to create model client: %w", err)
				}

				spinner := cli.NewProgressSpinner("Drafting replies", opts.quiet || !isTerminal(cmd.ErrOrStderr()), cmd.ErrOrStderr())
				spinner.Start()
				suggestions, err := model.GenerateReplyOptions(s.ctx, msg)
				spinner.Stop()

				if errors.Is(err, llm.ErrNoSuggestions) {
					return fmt.Errorf("%w: configure llm.provider to draft replies", err)
				}
				if err != nil {
					return err
				}
				return s.formatter.PrintSuggestions(suggestions)
			})
		},
	}
}

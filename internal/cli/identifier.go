package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/JonMunkholm/secmaster/internal/identifier"
)

// NewIdentifierCommand creates the identifier command.
func NewIdentifierCommand(rootOpts *RootOptions) *cobra.Command {
	var (
		count int
		seed  int64
		check string
	)

	cmd := &cobra.Command{
		Use:   "identifier <figi|cusip|sedol|isin>",
		Short: "Generate identifiers with valid check digits",
		Long: `Generate random identifiers of one kind. With --check, print the
check digit for a body instead.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			f := newFormatter(rootOpts, cmd.OutOrStdout(), cmd.ErrOrStderr())

			kind, err := identifier.ParseKind(args[0])
			if err != nil {
				return f.Fail(ExitCommandError, err)
			}

			if check != "" {
				id, err := identifier.Complete(kind, strings.ToUpper(strings.TrimSpace(check)))
				if err != nil {
					return f.Fail(ExitCommandError, err)
				}
				return f.Success([]string{id}, func(w io.Writer) { fmt.Fprintln(w, id) })
			}

			if count < 1 {
				return f.Fail(ExitCommandError, fmt.Errorf("-n must be at least 1, got %d", count))
			}
			ids, err := identifier.GenerateN(kind, count, newRand(seed))
			if err != nil {
				return f.Fail(ExitCommandError, err)
			}
			return f.Success(ids, func(w io.Writer) {
				for _, id := range ids {
					fmt.Fprintln(w, id)
				}
			})
		},
	}

	cmd.Flags().IntVarP(&count, "count", "n", 1, "number of identifiers")
	cmd.Flags().Int64Var(&seed, "seed", 0, "random seed (0 = random)")
	cmd.Flags().StringVar(&check, "check", "", "body to complete with its check digit")

	return cmd
}

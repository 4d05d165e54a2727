package cmd

import (
	"fmt"
	"io"

	"github.com/jaffee/commandeer"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/flatlake/flatlake"
)

// CheckMain holds config for the check subcommand.
type CheckMain struct {
	Contracts string `help:"Directory of schema contract JSON files."`
	Derive    bool   `help:"Print the full derivable column set for each contract."`
	Sep       string `help:"Separator for derived column names: dot or underscore."`

	stdout io.Writer
}

// NewCheckMain gets a CheckMain with defaults.
func NewCheckMain() *CheckMain {
	return &CheckMain{Contracts: "contracts", Sep: "dot"}
}

// Run loads and compiles every contract in the directory so that
// structural problems surface before any data flows.
func (m *CheckMain) Run() error {
	reg := flatlake.NewDirRegistry(m.Contracts)
	versions, err := reg.Versions()
	if err != nil {
		return err
	}
	if len(versions) == 0 {
		return errors.Errorf("no contracts found in %s", m.Contracts)
	}

	var namer flatlake.Namer
	switch m.Sep {
	case "dot":
		namer = flatlake.DotNamer
	case "underscore":
		namer = flatlake.UnderscoreNamer
	default:
		return errors.Errorf("unknown separator %q", m.Sep)
	}

	bad := 0
	for _, version := range versions {
		c, err := reg.Load(version)
		if err != nil {
			bad++
			fmt.Fprintf(m.stdout, "%s: INVALID: %v\n", version, err)
			continue
		}
		fmt.Fprintf(m.stdout, "%s: ok (%d input fields, %d output columns)\n",
			version, len(c.Input), len(c.Output))
		if m.Derive {
			cols, err := c.DeriveColumns(namer)
			if err != nil {
				return errors.Wrapf(err, "deriving columns for %s", version)
			}
			for _, col := range cols {
				fmt.Fprintf(m.stdout, "  %s %s (from %s)\n", col.Name, col.Type, col.Source)
			}
		}
	}
	if bad > 0 {
		return errors.Errorf("%d of %d contracts are invalid", bad, len(versions))
	}
	return nil
}

// NewCheckCommand returns a new cobra command wrapping CheckMain.
func NewCheckCommand(stdin io.Reader, stdout, stderr io.Writer) *cobra.Command {
	main := NewCheckMain()
	main.stdout = stdout
	checkCommand := &cobra.Command{
		Use:   "check",
		Short: "check - validate a directory of schema contracts",
		Long: `Loads and compiles every contract so that shape problems (colliding
flattened names, unresolvable columns) are caught before any run.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return main.Run()
		},
	}
	if err := commandeer.Flags(checkCommand.Flags(), main); err != nil {
		panic(err)
	}
	return checkCommand
}

func init() {
	subcommandFns["check"] = NewCheckCommand
}

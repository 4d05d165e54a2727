package cmd

import (
	"io"
	"log"
	"time"

	"github.com/jaffee/commandeer"
	"github.com/spf13/cobra"

	"github.com/flatlake/flatlake/ingest"
)

// RunMain is wrapped by NewRunCommand and only exported for testing
// purposes.
var RunMain *ingest.Main

// NewRunCommand returns a new cobra command wrapping RunMain.
func NewRunCommand(stdin io.Reader, stdout, stderr io.Writer) *cobra.Command {
	var err error
	RunMain = ingest.NewMain()
	runCommand := &cobra.Command{
		Use:   "run",
		Short: "run - transform JSON objects under a prefix into columnar lake files",
		Long: `Reads every object under the input prefix, holds each record to the
named schema contract, flattens it, and writes the Parquet output back to
the store under deterministic keys.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			start := time.Now()
			err = RunMain.Run()
			if err != nil {
				return err
			}
			log.Println("Done: ", time.Since(start))
			return nil
		},
	}
	flags := runCommand.Flags()
	err = commandeer.Flags(flags, RunMain)
	if err != nil {
		panic(err)
	}
	return runCommand
}

func init() {
	subcommandFns["run"] = NewRunCommand
}

package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/glyph-ai/glyph/pkg/api"
	"github.com/glyph-ai/glyph/pkg/apierror"
)

var version = "dev"

func main() {
	api.Version = version

	root := &cobra.Command{
		Use:           "glyph",
		Short:         "Glyph — extract text from PDFs and images with Mistral OCR",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.AddCommand(
		newExtractCmd(),
		newStatsCmd(),
	)

	if err := root.Execute(); err != nil {
		if !errorAlreadyReported(err) {
			fmt.Fprintln(os.Stderr, "Error:", err)
		}
		os.Exit(apierror.ExitCode(err))
	}
}

// reportedError wraps an error whose message has already been printed,
// so main only has to set the exit code.
type reportedError struct{ err error }

func (e reportedError) Error() string { return e.err.Error() }
func (e reportedError) Unwrap() error { return e.err }

func errorAlreadyReported(err error) bool {
	_, ok := err.(reportedError)
	return ok
}

package cli

import (
	"fmt"
	"os"

	"github.com/randalmurphal/orc/internal/orcerr"
)

// printError prints an error to stderr, preferring the structured
// What/Why/Fix shape of an *orcerr.Error when available.
func printError(err error) {
	var oe *orcerr.Error
	if orcerr.As(err, &oe) {
		fmt.Fprintf(os.Stderr, "Error: %s\n", oe.What)
		if oe.Why != "" {
			fmt.Fprintf(os.Stderr, "  %s\n", oe.Why)
		}
		if oe.Fix != "" {
			fmt.Fprintf(os.Stderr, "  Fix: %s\n", oe.Fix)
		}
		if verbose {
			fmt.Fprintf(os.Stderr, "  Code: %s\n", oe.Code)
			if oe.Cause != nil {
				fmt.Fprintf(os.Stderr, "  Cause: %v\n", oe.Cause)
			}
		}
		return
	}
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
}

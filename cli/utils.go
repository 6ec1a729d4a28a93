package cli

import (
	"fmt"
	"os"

	"github.com/htreeio/hashtree/internal/colors"
	"github.com/htreeio/hashtree/internal/engine"
	"github.com/htreeio/hashtree/internal/hconfig"
	"github.com/htreeio/hashtree/internal/herrors"
	"github.com/htreeio/hashtree/internal/htypes"
)

// openEngine loads the merged config and opens the local index over it,
// the one call every command makes before doing anything else.
func openEngine() (*engine.HashTree, error) {
	cfg, err := hconfig.Load()
	if err != nil {
		return nil, err
	}
	return engine.Open(cfg)
}

// exitCodeFor maps an herrors.Kind to the process exit code spec §6/§7
// wants a host CLI to use: 0 on success, a small distinct non-zero code
// per kind otherwise.
func exitCodeFor(err error) int {
	if err == nil {
		return 0
	}
	switch herrors.KindOf(err) {
	case herrors.NotFound:
		return 2
	case herrors.Corrupt:
		return 3
	case herrors.InvalidContent:
		return 4
	case herrors.InvalidArgument:
		return 5
	case herrors.QuotaExceeded:
		return 6
	case herrors.Io:
		return 7
	default:
		return 1
	}
}

// printErr writes err to stderr in a human-readable, colorized form.
func printErr(err error) {
	fmt.Fprintf(os.Stderr, "%s %v\n", colors.ErrorText("error:"), err)
}

func parsePriority(s string) (htypes.Priority, error) {
	switch s {
	case "", "own":
		return htypes.PriorityOwn, nil
	case "followed":
		return htypes.PriorityFollowed, nil
	case "other":
		return htypes.PriorityOther, nil
	default:
		return 0, herrors.New("cli.parsePriority", herrors.InvalidArgument,
			fmt.Errorf("unknown priority %q, want own|followed|other", s))
	}
}

package commands

import (
	"io"
	"log/slog"
	"os"

	"github.com/alecthomas/kong"

	foundationerrors "git.home.luguber.info/inful/repobuilder/internal/foundation/errors"
	"git.home.luguber.info/inful/repobuilder/internal/version"
)

// Execute parses args, runs the selected command and returns the process exit code.
func Execute(args []string, stdout io.Writer) int {
	cli := &CLI{}
	g := &Global{Logger: slog.Default(), Stdout: stdout}
	defer g.Close()

	parser, err := kong.New(cli,
		kong.Name("repobuilder"),
		kong.Description("Detect the build system of source repositories, build them, and cache the outcome."),
		kong.UsageOnError(),
		kong.Vars{"version": version.String()},
		kong.Writers(stdout, os.Stderr),
	)
	if err != nil {
		return foundationerrors.NewCLIErrorAdapter(false, g.Logger).
			HandleError(foundationerrors.InternalError("build command line").WithCause(err).Build())
	}

	kctx, err := parser.Parse(args)
	if err != nil {
		return foundationerrors.NewCLIErrorAdapter(false, g.Logger).
			HandleError(foundationerrors.WrapError(err, foundationerrors.CategoryValidation, "invalid arguments").Build())
	}

	err = kctx.Run(g, cli)
	return foundationerrors.NewCLIErrorAdapter(cli.Verbose, g.Logger).HandleError(err)
}

package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/jzelinskie/cobrautil/v2/cobraotel"
	"github.com/jzelinskie/cobrautil/v2/cobrazerolog"
	"github.com/spf13/cobra"

	log "github.com/treosh/lightci/internal/logging"
	"github.com/treosh/lightci/pkg/releases"
	"github.com/treosh/lightci/pkg/runtime"
)

// RegisterRootFlags registers the persistent flags every subcommand
// inherits: logging, tracing, release checking, and runtime tuning.
func RegisterRootFlags(cmd *cobra.Command) {
	cobrazerolog.New().RegisterFlags(cmd.PersistentFlags())
	cobraotel.New(cmd.Use).RegisterFlags(cmd.PersistentFlags())
	releases.RegisterFlags(cmd.PersistentFlags())
	runtime.RegisterFlags(cmd.PersistentFlags())
}

// NewRootCommand creates the root from which every lightci command hangs.
func NewRootCommand(programName string) *cobra.Command {
	return &cobra.Command{
		Use:           programName,
		Short:         "Audit web performance in continuous integration",
		Long:          "Collects performance audits of web pages, asserts budgets against the results, and uploads reports for tracking over time",
		Example:       UsageExample(programName),
		SilenceErrors: true,
		SilenceUsage:  true,
	}
}

// UsageExample creates an example usage string with the provided program name.
func UsageExample(programName string) string {
	return fmt.Sprintf(`	%[1]s:
		%[3]s collect --url https://example.com

	%[2]s:
		%[3]s autorun --static-dir ./dist --num-runs 5
`,
		color.YellowString("Audit a live page"),
		color.GreenString("Audit a built site end to end"),
		programName,
	)
}

// SignalContextWithGracePeriod returns a context canceled on SIGINT or
// SIGTERM. A non-zero grace period delays the cancellation after the first
// signal; a second signal cuts the grace period short.
func SignalContextWithGracePeriod(ctx context.Context, gracePeriod time.Duration) context.Context {
	ctx, cancel := context.WithCancel(ctx)
	signalctx, _ := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-signalctx.Done()
		if ctx.Err() == nil {
			log.Ctx(ctx).Info().Msg("received interrupt")
			if gracePeriod > 0 {
				interruptGrace, _ := signal.NotifyContext(context.Background(), os.Interrupt)
				graceTimer := time.NewTimer(gracePeriod)
				log.Ctx(ctx).Info().Stringer("timeout", gracePeriod).Msg("starting shutdown grace period")
				select {
				case <-graceTimer.C:
				case <-interruptGrace.Done():
					log.Ctx(ctx).Warn().Msg("interrupted shutdown grace period")
				}
			}
		}
		cancel()
	}()
	return ctx
}

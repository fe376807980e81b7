package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"time"

	"github.com/MakeNowJust/heredoc/v2"
	"github.com/apex/log"
	"github.com/dustin/go-humanize"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
	"gopkg.in/yaml.v3"

	"github.com/daimatz/jvmsandbox/pkg/sandbox"
	"github.com/daimatz/jvmsandbox/pkg/workspace"
)

// batchRequest is one entry of a batch file.
type batchRequest struct {
	Op     string         `yaml:"op"`
	Params map[string]any `yaml:"params"`
}

type batchResult struct {
	Op      string           `json:"op"`
	Result  any              `json:"result,omitempty"`
	Failure *sandbox.Failure `json:"failure,omitempty"`
}

func loadBatch(path string) ([]batchRequest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var reqs []batchRequest
	if err := yaml.Unmarshal(data, &reqs); err != nil {
		return nil, errors.Wrapf(err, "failed to parse batch file %s", path)
	}
	for i, r := range reqs {
		if r.Op == "" {
			return nil, errors.Errorf("%s: request %d has no op", path, i)
		}
	}
	return reqs, nil
}

// runBatch runs reqs in order against one environment, so state left by
// an earlier request (initialized classes, static fields) is seen by the
// later ones.
func runBatch(p *sandbox.Provider, reqs []batchRequest) ([]batchResult, error) {
	var (
		out        []batchResult
		failed     int
		iterations int64
	)
	start := time.Now()
	for _, r := range reqs {
		res, err := p.Dispatch(r.Op, r.Params)
		br := batchResult{Op: r.Op, Result: res}
		if err != nil {
			var f *sandbox.Failure
			if !errors.As(err, &f) {
				return nil, err
			}
			br.Failure = f
			failed++
			iterations += f.IterationsUsed
		} else if ir, ok := res.(*sandbox.InvokeResult); ok {
			iterations += ir.IterationsUsed
		}
		out = append(out, br)
	}
	log.WithFields(log.Fields{
		"requests":   len(reqs),
		"failed":     failed,
		"iterations": humanize.Comma(iterations),
		"took":       time.Since(start).Round(time.Millisecond),
	}).Info("batch done")
	return out, nil
}

var batchCmd = &cobra.Command{
	Use:   "batch <file>",
	Short: "Run a YAML list of operations in one environment",
	Example: heredoc.Doc(`
		❯ cat requests.yaml
		- op: run-static-initializer
		  params: {className: com.example.Keys}
		- op: invoke-static-method
		  params: {className: com.example.Decoder, methodName: decode, methodDescriptor: (I)I, args: [1]}
		❯ jvmsandbox batch -w app.jar requests.yaml
		# rerun whenever the workspace changes on disk
		❯ jvmsandbox batch -w build/classes requests.yaml --watch`),
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		watch, _ := cmd.Flags().GetBool("watch")

		reqs, err := loadBatch(args[0])
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
		defer stop()

		h, err := openHost(ctx)
		if err != nil {
			return err
		}
		defer h.Close()

		run := func() error {
			results, err := runBatch(h.provider, reqs)
			if err != nil {
				return err
			}
			return writeJSON(os.Stdout, results)
		}
		if err := run(); err != nil {
			return err
		}
		if !watch && !h.conf.Workspace.Watch {
			return nil
		}

		changed := make(chan struct{}, 1)
		unsubscribe := h.ws.Subscribe(func(ev workspace.Event) {
			if ev.Kind != workspace.Changed {
				return
			}
			select {
			case changed <- struct{}{}:
			default:
			}
		})
		defer unsubscribe()

		log.Info("watching workspace, press Ctrl+C to stop")
		g, ctx := errgroup.WithContext(ctx)
		g.Go(func() error { return h.ws.Watch(ctx) })
		g.Go(func() error {
			for {
				select {
				case <-ctx.Done():
					return nil
				case <-changed:
					fmt.Fprintln(os.Stderr, colorField("workspace changed, rerunning"))
					if err := run(); err != nil {
						return err
					}
				}
			}
		})
		return g.Wait()
	},
}

func init() {
	batchCmd.Flags().Bool("watch", false, "rerun the batch whenever the workspace changes")
}

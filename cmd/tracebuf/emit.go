package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/tracebuf"
	"github.com/m-mizutani/tracebuf/trace"
	"github.com/urfave/cli/v3"
)

func emitCommand() *cli.Command {
	return &cli.Command{
		Name:  "emit",
		Usage: "Send sample traces to a collector",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "endpoint",
				Value:   tracebuf.DefaultEndpoint,
				Sources: cli.EnvVars("TRACEBUF_ENDPOINT"),
				Usage:   "Collector base URL",
			},
			&cli.StringFlag{
				Name:     "credential",
				Sources:  cli.EnvVars("TRACEBUF_CREDENTIAL"),
				Usage:    "Bearer credential",
				Required: true,
			},
			&cli.IntFlag{
				Name:    "count",
				Value:   3,
				Sources: cli.EnvVars("TRACEBUF_EMIT_COUNT"),
				Usage:   "Number of traces to emit",
			},
			&cli.DurationFlag{
				Name:    "flush-interval",
				Sources: cli.EnvVars("TRACEBUF_FLUSH_INTERVAL"),
				Usage:   "Periodic batch flush interval (0 disables)",
			},
			&cli.StringFlag{
				Name:    "dead-letter-dir",
				Sources: cli.EnvVars("TRACEBUF_DEAD_LETTER_DIR"),
				Usage:   "Directory receiving traces that could not be delivered",
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			opts := []tracebuf.Option{
				tracebuf.WithEndpoint(cmd.String("endpoint")),
				tracebuf.WithFlushInterval(cmd.Duration("flush-interval")),
				tracebuf.WithLogger(slog.Default()),
			}
			if dir := cmd.String("dead-letter-dir"); dir != "" {
				opts = append(opts, tracebuf.WithDeadLetter(trace.NewFileRepository(dir)))
			}

			client, err := tracebuf.New(cmd.String("credential"), opts...)
			if err != nil {
				return err
			}

			emitErr := emitTraces(client, cmd.Int("count"))
			if err := client.Shutdown(ctx); err != nil {
				return err
			}
			return emitErr
		},
	}
}

// emitTraces records n sample traces, each with a generation, a span, an
// event and a score, and finishes them.
func emitTraces(client *tracebuf.Client, n int) error {
	for i := range n {
		tr, err := client.StartTrace(fmt.Sprintf("sample-%d", i+1),
			trace.WithMetadata(map[string]any{"source": "tracebuf emit"}),
		)
		if err != nil {
			return goerr.Wrap(err, "failed to start trace")
		}

		start := time.Now()
		span, err := tr.AddSpan(trace.SpanInput{Name: "retrieve", StartTime: start})
		if err != nil {
			return goerr.Wrap(err, "failed to add span", goerr.V("trace_id", tr.ID()))
		}
		if err := span.Finish(); err != nil {
			return goerr.Wrap(err, "failed to finish span", goerr.V("trace_id", tr.ID()))
		}

		gen, err := tr.AddGeneration(trace.GenerationInput{
			Name:   "completion",
			Input:  "What is the capital of France?",
			Output: "Paris.",
			Model:  "sample-model",
			Usage:  &trace.Usage{PromptTokens: 10, CompletionTokens: 5},
		})
		if err != nil {
			return goerr.Wrap(err, "failed to add generation", goerr.V("trace_id", tr.ID()))
		}
		if err := gen.SubmitScore(trace.Score{Value: 1, Reason: "correct"}); err != nil {
			return goerr.Wrap(err, "failed to submit score", goerr.V("trace_id", tr.ID()))
		}

		if err := tr.LogEvent(trace.EventInput{Message: "answered"}); err != nil {
			return goerr.Wrap(err, "failed to log event", goerr.V("trace_id", tr.ID()))
		}
		if err := tr.Finish(); err != nil {
			return goerr.Wrap(err, "failed to finish trace", goerr.V("trace_id", tr.ID()))
		}
	}
	return nil
}

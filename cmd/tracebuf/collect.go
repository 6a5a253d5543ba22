package main

import (
	"context"
	"fmt"
	"strings"

	"cloud.google.com/go/storage"
	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/tracebuf/trace"
	"github.com/urfave/cli/v3"
)

func collectCommand() *cli.Command {
	return &cli.Command{
		Name:  "collect",
		Usage: "Run a collector that stores delivered traces",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "addr",
				Value:   ":18900",
				Sources: cli.EnvVars("TRACEBUF_COLLECT_ADDR"),
				Usage:   "Server listen address",
			},
			&cli.StringFlag{
				Name:     "credential",
				Sources:  cli.EnvVars("TRACEBUF_CREDENTIAL"),
				Usage:    "Bearer credential clients must present",
				Required: true,
			},
			&cli.StringFlag{
				Name:    "dir",
				Sources: cli.EnvVars("TRACEBUF_COLLECT_DIR"),
				Usage:   "Local directory to store trace JSON files",
			},
			&cli.StringFlag{
				Name:    "gcs",
				Sources: cli.EnvVars("TRACEBUF_COLLECT_GCS"),
				Usage:   "Google Cloud Storage location (gs://bucket/prefix/)",
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			dir := cmd.String("dir")
			gcs := cmd.String("gcs")

			if dir == "" && gcs == "" {
				return fmt.Errorf("either --dir or --gcs must be specified")
			}
			if dir != "" && gcs != "" {
				return fmt.Errorf("--dir and --gcs are mutually exclusive")
			}

			var (
				src  traceSource
				repo trace.Repository
			)
			if dir != "" {
				src = newLocalSource(dir)
				repo = trace.NewFileRepository(dir)
			} else {
				bucket, prefix, err := parseGSURI(gcs)
				if err != nil {
					return err
				}
				client, err := storage.NewClient(ctx)
				if err != nil {
					return goerr.Wrap(err, "failed to create Cloud Storage client")
				}
				defer func() { _ = client.Close() }()

				src = newCSSource(client, bucket, prefix)
				repo = trace.NewCloudStorageRepository(client, bucket, prefix)
			}

			s, err := newServer(
				withAddr(cmd.String("addr")),
				withCredential(cmd.String("credential")),
				withSource(src),
				withRepository(repo),
			)
			if err != nil {
				return err
			}
			return s.start(ctx)
		},
	}
}

// parseGSURI splits gs://bucket/prefix into its bucket and prefix. A
// non-empty prefix always ends with a slash.
func parseGSURI(uri string) (bucket, prefix string, err error) {
	rest, ok := strings.CutPrefix(uri, "gs://")
	if !ok {
		return "", "", goerr.New("Cloud Storage URI must start with gs://", goerr.V("uri", uri))
	}

	bucket, prefix, _ = strings.Cut(rest, "/")
	if bucket == "" {
		return "", "", goerr.New("bucket name is empty", goerr.V("uri", uri))
	}
	if prefix != "" && !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}
	return bucket, prefix, nil
}

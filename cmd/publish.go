package main

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/sells-group/district-poi/internal/publish"
)

var publishCmd = &cobra.Command{
	Use:   "publish",
	Short: "Upload the output tree to S3-compatible object storage",
	RunE:  runPublish,
}

func init() {
	publishCmd.Flags().String("dir", "", "directory to upload (default output.dir)")
	publishCmd.Flags().Int("concurrency", 4, "parallel uploads")
	rootCmd.AddCommand(publishCmd)
}

func runPublish(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := cfg.Validate("publish"); err != nil {
		return err
	}
	dir, _ := cmd.Flags().GetString("dir")
	if dir == "" {
		dir = cfg.Output.Dir
	}
	concurrency, _ := cmd.Flags().GetInt("concurrency")

	client, err := publish.NewClient(cfg.Publish)
	if err != nil {
		return err
	}

	p := publish.New(client, cfg.Publish.Bucket, cfg.Publish.Prefix, publish.WithConcurrency(concurrency))
	res, err := p.Publish(ctx, dir)
	if err != nil {
		return err
	}

	fmt.Printf("Uploaded %d objects (%d bytes) to %s/%s\n", res.Objects, res.Bytes, client.EndpointURL(), cfg.Publish.Bucket)
	return nil
}

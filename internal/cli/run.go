package cli

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/lorekeeper/segmenter/internal/config"
	"github.com/lorekeeper/segmenter/internal/event"
	"github.com/lorekeeper/segmenter/internal/segment"
)

// RunCmd creates the run command: one segmentation pass driven by a
// trigger event read from a file or stdin.
func RunCmd(env *Env) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run [event-file]",
		Short: "Segment one uploaded session from a trigger event",
		Long: `Run one segmentation pass for the audio object named in a trigger event.

The event is a JSON object carrying at least "audio_filename"; any other
fields are passed through unchanged into the response. With no argument
(or "-") the event is read from stdin. The response JSON is written to
stdout for the next pipeline step.`,
		Example: `  segmenter run trigger.json
  cat trigger.json | segmenter run`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSegment(cmd, env, args)
		},
	}
	return cmd
}

// runSegment executes one event-driven segmentation run.
func runSegment(cmd *cobra.Command, env *Env, args []string) error {
	data, err := readEvent(cmd, args)
	if err != nil {
		return err
	}

	req, err := event.Parse(data)
	if err != nil {
		return err
	}

	cfg, err := env.ConfigLoader.Load()
	if err != nil {
		return err
	}

	resp, err := segmentEvent(cmd.Context(), env, cfg, req)
	if err != nil {
		return err
	}

	fmt.Fprintln(env.Stdout, string(resp))
	return nil
}

// readEvent loads the trigger payload from the argument file, or stdin
// when no file (or "-") is given.
func readEvent(cmd *cobra.Command, args []string) ([]byte, error) {
	if len(args) == 1 && args[0] != "-" {
		data, err := os.ReadFile(args[0]) // #nosec G304 -- user-specified event file
		if err != nil {
			if os.IsNotExist(err) {
				return nil, fmt.Errorf("%w: %s", ErrFileNotFound, args[0])
			}
			return nil, fmt.Errorf("read event file: %w", err)
		}
		return data, nil
	}
	data, err := io.ReadAll(cmd.InOrStdin())
	if err != nil {
		return nil, fmt.Errorf("read event from stdin: %w", err)
	}
	return data, nil
}

// segmentEvent runs the engine for one parsed trigger and encodes the
// response. Shared by the run command and the HTTP trigger endpoint.
func segmentEvent(ctx context.Context, env *Env, cfg config.Config, req event.Request) ([]byte, error) {
	bucket := cfg.Bucket
	if req.Bucket != "" {
		bucket = req.Bucket
	}

	store, err := env.StoreFactory.NewStore(cfg, bucket)
	if err != nil {
		return nil, err
	}
	reporter, err := env.ReporterFactory.NewReporter(cfg)
	if err != nil {
		return nil, err
	}
	ffmpegPath, err := env.FFmpegResolver.Resolve(cfg.FFmpegPath)
	if err != nil {
		return nil, err
	}
	segmenter, err := env.SegmenterFactory.NewSegmenter(cfg, ffmpegPath, store, reporter)
	if err != nil {
		return nil, err
	}

	report, err := segmenter.Run(ctx, req.AudioFilename, req.SessionID)
	if err != nil {
		return nil, err
	}

	return req.Response(bucket, segmentsFromReport(report))
}

// segmentsFromReport converts the engine's report into response segment
// references, ordered by index.
func segmentsFromReport(report *segment.Report) []event.Segment {
	segments := make([]event.Segment, len(report.Keys))
	for i, key := range report.Keys {
		plan := report.Plans[i]
		segments[i] = event.Segment{
			Key:          key,
			Index:        plan.Index,
			Count:        len(report.Plans),
			StartSeconds: plan.Start.Seconds(),
			EndSeconds:   plan.End().Seconds(),
		}
	}
	return segments
}

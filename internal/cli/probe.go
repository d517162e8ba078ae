package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/lorekeeper/segmenter/internal/format"
	"github.com/lorekeeper/segmenter/internal/probe"
	"github.com/lorekeeper/segmenter/internal/segment"
)

// ProbeCmd creates the probe command: duration diagnosis for a stored
// object without segmenting it.
func ProbeCmd(env *Env) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "probe <object-key>",
		Short: "Measure a stored audio object",
		Long: `Measure the duration of a stored audio object and report which probe
tier answered and which strategy a segmentation run would use. Useful
for diagnosing uploads that segment slowly or imprecisely.`,
		Example: `  segmenter probe uploads/Session3f2a-recording.wav`,
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runProbe(cmd, env, args[0])
		},
	}
	return cmd
}

func runProbe(cmd *cobra.Command, env *Env, key string) error {
	cfg, err := env.ConfigLoader.Load()
	if err != nil {
		return err
	}

	store, err := env.StoreFactory.NewStore(cfg, cfg.Bucket)
	if err != nil {
		return err
	}
	ffmpegPath, err := env.FFmpegResolver.Resolve(cfg.FFmpegPath)
	if err != nil {
		return err
	}

	scratch, err := os.MkdirTemp(scratchRoot(cfg), "probe_")
	if err != nil {
		return fmt.Errorf("create scratch directory: %w", err)
	}
	defer func() { _ = os.RemoveAll(scratch) }()

	prober, err := env.ProberFactory.NewProber(cfg, ffmpegPath, store, scratch)
	if err != nil {
		return err
	}

	est, err := prober.Probe(cmd.Context(), key)
	if err != nil {
		return err
	}

	fmt.Fprintf(env.Stdout, "key:      %s\n", key)
	fmt.Fprintf(env.Stdout, "duration: %s\n", format.Duration(est.Duration))
	fmt.Fprintf(env.Stdout, "tier:     %s\n", est.Tier)
	if est.SourceSize == probe.SizeUnknown {
		fmt.Fprintf(env.Stdout, "size:     unknown\n")
	} else {
		fmt.Fprintf(env.Stdout, "size:     %s\n", format.Size(est.SourceSize))
	}
	fmt.Fprintf(env.Stdout, "strategy: %s\n", segment.SelectStrategy(est))
	return nil
}

package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/lorekeeper/segmenter/internal/config"
	"github.com/lorekeeper/segmenter/internal/event"
	"github.com/lorekeeper/segmenter/internal/lang"
	"github.com/lorekeeper/segmenter/internal/transcribe"
)

// TranscribeCmd creates the transcribe command: hand finished segments to
// the transcription API and store the text next to them.
func TranscribeCmd(env *Env) *cobra.Command {
	var (
		parallel int
		language string
		prompt   string
		bucket   string
	)

	cmd := &cobra.Command{
		Use:   "transcribe [segment-key...]",
		Short: "Transcribe stored segments to text",
		Long: `Transcribe stored audio segments and upload one text object per
segment, named so the reassembly stage can order the pieces
(session_02_of_04.m4a becomes session_02_of_04.txt).

Segment keys come from the arguments, or from a run response JSON read
on stdin, so one run's output pipes straight into this command. The
uploaded text keys are written to stdout in segment order.`,
		Example: `  segmenter run trigger.json | segmenter transcribe
  segmenter transcribe seg/night3_01_of_02.m4a seg/night3_02_of_02.m4a
  segmenter transcribe -l pt-BR --prompt "Moonsea campaign, DM Robin" seg/night3_01_of_02.m4a`,
		Args: cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTranscribe(cmd, env, args, parallel, language, prompt, bucket)
		},
	}

	cmd.Flags().IntVarP(&parallel, "parallel", "p", transcribe.MaxRecommendedParallel,
		"Max concurrent API requests (1-10)")
	cmd.Flags().StringVarP(&language, "language", "l", "",
		"Audio language hint (ISO 639-1 code, e.g. en, fr, pt-BR)")
	cmd.Flags().StringVar(&prompt, "prompt", "",
		"Context prompt for domain vocabulary, such as campaign and character names")
	cmd.Flags().StringVar(&bucket, "bucket", "",
		"Override the store bucket the segments live in")

	return cmd
}

// clampParallel constrains the concurrent request count to the range the
// runner accepts.
func clampParallel(n int) int {
	if n < 1 {
		return 1
	}
	if n > transcribe.MaxRecommendedParallel {
		return transcribe.MaxRecommendedParallel
	}
	return n
}

// runTranscribe transcribes one batch of stored segments.
func runTranscribe(cmd *cobra.Command, env *Env, args []string, parallel int, language, prompt, bucket string) error {
	if err := lang.Validate(language); err != nil {
		return err
	}

	keys := args
	if len(keys) == 0 {
		// No keys on the command line: consume a run response from stdin.
		data, err := readEvent(cmd, nil)
		if err != nil {
			return err
		}
		handoff, err := event.ParseHandoff(data)
		if err != nil {
			return err
		}
		keys = handoff.Keys
		if bucket == "" {
			bucket = handoff.Bucket
		}
	}
	if len(keys) == 0 {
		return fmt.Errorf("no segments to transcribe")
	}

	cfg, err := env.ConfigLoader.Load()
	if err != nil {
		return err
	}
	if cfg.OpenAIKey == "" {
		return fmt.Errorf("%w (set it with: export %s=sk-...)", ErrAPIKeyMissing, config.EnvOpenAIKey)
	}
	if bucket == "" {
		bucket = cfg.Bucket
	}

	store, err := env.StoreFactory.NewStore(cfg, bucket)
	if err != nil {
		return err
	}

	transcriber, err := env.TranscriberFactory.NewBatchTranscriber(
		cfg, store, clampParallel(parallel), lang.BaseCode(language), prompt)
	if err != nil {
		return err
	}

	fmt.Fprintf(env.Stderr, "Transcribing %d segments...\n", len(keys))
	textKeys, err := transcriber.Run(cmd.Context(), keys)
	if err != nil {
		return err
	}

	for _, key := range textKeys {
		fmt.Fprintln(env.Stdout, key)
	}
	fmt.Fprintln(env.Stderr, "Transcription complete")
	return nil
}

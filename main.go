package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	cfg "github.com/maastricht-university/transcript-pipeline/config"
	"github.com/maastricht-university/transcript-pipeline/orchestrator"
)

func main() {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		fmt.Fprintln(os.Stderr, "warning: reading .env:", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	v := cfg.NewViper()
	var configPath string

	root := &cobra.Command{
		Use:           "pipeline",
		Short:         "Windowed transcription and subtitle translation for lecture recordings",
		SilenceUsage: true,
	}
	pf := root.PersistentFlags()
	pf.StringVar(&configPath, "config", "", "config file (default config/$CONFIG_ENV/config.yaml)")
	pf.String("log-level", "", "log level (debug, info, warn, error)")
	pf.String("data", "", "data directory of the file store")
	pf.String("store", "", "store driver: file or postgres")
	pf.String("dsn", "", "postgres connection string")
	pf.String("listen", "", "serve progress events over websocket on this address, e.g. :8090")
	bind(v, pf.Lookup("log-level"), "pipeline.log_level")
	bind(v, pf.Lookup("data"), "paths.data")
	bind(v, pf.Lookup("store"), "store.driver")
	bind(v, pf.Lookup("dsn"), "store.dsn")
	bind(v, pf.Lookup("listen"), "progress.listen_addr")

	load := func(cmd *cobra.Command) (*app, error) {
		c, err := cfg.Load(configPath)
		if err != nil {
			return nil, fmt.Errorf("load config: %w", err)
		}
		cfg.Overlay(c, v)
		return newApp(cmd.Context(), c)
	}

	root.AddCommand(transcribeCmd(v, load), translateCmd(v, load), exportCmd(load))
	return root
}

type loader func(cmd *cobra.Command) (*app, error)

func transcribeCmd(v *viper.Viper, load loader) *cobra.Command {
	var args orchestrator.TranscribeArgs
	var durationSec float64

	cmd := &cobra.Command{
		Use:   "transcribe <audio>",
		Short: "Recognize an audio file window by window and store the transcript",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, pos []string) error {
			a, err := load(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			args.Source = pos[0]
			args.DurationMs = int64(durationSec * 1000)
			if args.MediaID == "" {
				args.MediaID = "media-" + uuid.NewString()
			}
			tr, err := a.pipeline.Transcribe(cmd.Context(), args)
			if err != nil {
				return err
			}
			fmt.Printf("media %s: %d segments, %d words, language %s\n", args.MediaID, len(tr.Segments), tr.WordCount, tr.Language)
			return nil
		},
	}
	f := cmd.Flags()
	f.StringVar(&args.MediaID, "media-id", "", "media id (default: generated)")
	f.StringVar(&args.Language, "language", "auto", "spoken language, or auto to detect")
	f.Float64Var(&durationSec, "duration", 0, "audio duration in seconds (0 = single window)")
	f.String("recognizer", "", "recognizer service base URL")
	f.String("provider", "", "preferred recognizer execution provider (cuda, cpu, ...)")
	f.Int("window", 0, "window length in seconds")
	f.Int("overlap-ms", 0, "overlap between windows in ms")
	bind(v, f.Lookup("recognizer"), "services.recognizer.url")
	bind(v, f.Lookup("provider"), "services.recognizer.provider")
	bind(v, f.Lookup("window"), "chunking.window_seconds")
	bind(v, f.Lookup("overlap-ms"), "chunking.overlap_ms")
	return cmd
}

func translateCmd(v *viper.Viper, load loader) *cobra.Command {
	var args orchestrator.TranslateArgs

	cmd := &cobra.Command{
		Use:   "translate",
		Short: "Translate the subtitle track of a media item into another language",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := load(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			doc, err := a.pipeline.Translate(cmd.Context(), args)
			if err != nil {
				return err
			}
			m := doc.Translation
			fmt.Printf("media %s: %d/%d segments translated to %s (coverage %.1f%%)\n",
				doc.MediaID, m.TranslatedSegments, m.TotalSegments, m.TargetLang, m.Coverage*100)
			return nil
		},
	}
	f := cmd.Flags()
	f.StringVar(&args.MediaID, "media-id", "", "media id")
	f.StringVar(&args.TargetLang, "to", "", "target language (default translate.target_lang)")
	f.String("llm", "", "text generation backend: openai or gemini")
	f.String("model", "", "model name for the selected backend")
	f.Int("concurrency", 0, "batches in flight")
	_ = cmd.MarkFlagRequired("media-id")
	bind(v, f.Lookup("llm"), "services.llm")
	bind(v, f.Lookup("concurrency"), "translate.concurrency")
	cmd.PreRun = func(cmd *cobra.Command, _ []string) {
		if m, _ := cmd.Flags().GetString("model"); m != "" {
			llm, _ := cmd.Flags().GetString("llm")
			if llm == "" {
				llm = v.GetString("services.llm")
			}
			if strings.EqualFold(llm, "gemini") {
				v.Set("services.gemini.model", m)
			} else {
				v.Set("services.openai.model", m)
			}
		}
	}
	return cmd
}

func exportCmd(load loader) *cobra.Command {
	var args orchestrator.ExportArgs

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write transcript and subtitle tracks as txt, srt and vtt files",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := load(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			res, err := a.pipeline.Export(cmd.Context(), args)
			if err != nil {
				return err
			}
			fmt.Println(res.Dir)
			for _, f := range res.Files {
				fmt.Println("  " + filepath.Base(f))
			}
			return nil
		},
	}
	f := cmd.Flags()
	f.StringVar(&args.MediaID, "media-id", "", "media id")
	f.StringVar(&args.Dir, "out", "", "parent directory (default paths.outputs)")
	f.StringVar(&args.Name, "name", "", "name used for the export directory")
	_ = cmd.MarkFlagRequired("media-id")
	return cmd
}

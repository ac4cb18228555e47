package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/MimeLyc/ytsub-pipeline/internal/llm"
	"github.com/MimeLyc/ytsub-pipeline/internal/processor"
	"github.com/MimeLyc/ytsub-pipeline/internal/service"
	"github.com/MimeLyc/ytsub-pipeline/internal/subtitle"
	"github.com/MimeLyc/ytsub-pipeline/pkg/file"
)

// pageSource is the watch page given either as a URL argument or through
// --page-file ("-" reads stdin).
type pageSource struct {
	file string
}

func (p *pageSource) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&p.file, "page-file", "", "Read the watch page HTML from a file (- for stdin) instead of downloading it")
}

func (p *pageSource) load(ctx context.Context, pipeline *service.Pipeline, args []string, stdin io.Reader) (string, error) {
	switch {
	case p.file == "-":
		data, err := io.ReadAll(stdin)
		return string(data), err
	case p.file != "":
		data, err := os.ReadFile(p.file)
		if err != nil {
			return "", fmt.Errorf("read page: %w", err)
		}
		return string(data), nil
	case len(args) == 1:
		return pipeline.LoadPage(ctx, args[0])
	default:
		return "", fmt.Errorf("provide a watch page URL or --page-file")
	}
}

func newTracksCommand(cc *commandContext) *cobra.Command {
	var page pageSource

	cmd := &cobra.Command{
		Use:   "tracks [watch-url]",
		Short: "List the caption tracks of a video",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			app, err := cc.buildApp(ctx, false)
			if err != nil {
				return err
			}
			blob, err := page.load(ctx, app.pipeline, args, cmd.InOrStdin())
			if err != nil {
				return err
			}
			info, err := app.pipeline.Inspect(blob)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			v := info.Video
			fmt.Fprintf(out, "%s (%s)\n", v.Title, v.VideoID)
			fmt.Fprintf(out, "by %s, %s, %s views\n", v.Author,
				(time.Duration(v.LengthSeconds) * time.Second).String(), humanize.Comma(v.ViewCount))
			if len(info.Tracks) == 0 {
				fmt.Fprintln(out, "No captions available")
				return nil
			}

			rows := make([][]string, 0, len(info.Tracks))
			for _, t := range info.Tracks {
				kind := t.Kind
				if kind == "" {
					kind = "manual"
				}
				rows = append(rows, []string{t.LanguageCode, t.Name, kind, strconv.FormatBool(t.IsTranslatable)})
			}
			fmt.Fprintln(out, renderTable([]string{"Language", "Name", "Kind", "Translatable"}, rows, nil))
			return nil
		},
	}
	page.register(cmd)
	return cmd
}

func newDownloadCommand(cc *commandContext) *cobra.Command {
	var (
		page       pageSource
		req        service.DownloadRequest
		format     string
		outputDir  string
		toStdout   bool
		operation  string
		provider   string
		target     string
		style      string
		noFixes    bool
		noGrammar  bool
		noPreserve bool
	)

	cmd := &cobra.Command{
		Use:   "download [watch-url]",
		Short: "Download a caption track, optionally translated or LLM-processed",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			app, err := cc.buildApp(ctx, operation != "")
			if err != nil {
				return err
			}
			defer app.Close()

			if req.Page, err = page.load(ctx, app.pipeline, args, cmd.InOrStdin()); err != nil {
				return err
			}
			req.Format = subtitle.Format(format)
			if operation != "" {
				op, ok := processor.ParseOperation(operation)
				if !ok {
					return fmt.Errorf("--process must be optimize or translate")
				}
				opts := processor.NewOptions().
					WithTargetLanguage(target).
					WithFixErrors(!noFixes).
					WithImproveGrammar(!noGrammar).
					WithPreserveMeaning(!noPreserve)
				if style != "" {
					opts.WithStyle(style)
				}
				req.Process = &service.ProcessRequest{Operation: op, Provider: llm.Provider(provider), Options: opts}
			}

			result, err := app.pipeline.Download(ctx, req)
			if err != nil {
				return err
			}

			if toStdout {
				_, err := io.WriteString(cmd.OutOrStdout(), result.Content)
				return err
			}
			if outputDir == "" {
				outputDir = app.cfg.System.OutputDir
			}
			outPath := filepath.Join(outputDir, result.Filename)
			if err := file.WriteText(outPath, result.Content); err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s (%d cues, %s)\n",
				outPath, result.SubtitleCount, humanize.Bytes(uint64(len(result.Content))))
			if result.FailedCues > 0 {
				fmt.Fprintf(cmd.OutOrStdout(), "%d cues could not be processed and kept their original text\n", result.FailedCues)
			}
			return nil
		},
	}

	page.register(cmd)
	flags := cmd.Flags()
	flags.StringVarP(&req.Language, "lang", "l", "", "Caption language (default: first available track)")
	flags.StringVarP(&format, "format", "f", string(subtitle.FormatSRT), "Output format: srt, vtt, lrc, txt or json")
	flags.StringVar(&req.TranslateTo, "translate-to", "", "Ask YouTube for a machine translation into this language")
	flags.BoolVar(&req.Bilingual, "bilingual", false, "Merge the original and --translate-to tracks into two-line cues")
	flags.Float64Var(&req.Offset, "offset", 0, "Shift every cue by this many seconds")
	flags.BoolVar(&req.IncludeTimestamps, "timestamps", false, "Prefix txt output lines with their start time")
	flags.StringVarP(&outputDir, "output-dir", "o", "", "Directory to write to (default: OUTPUT_DIR)")
	flags.BoolVar(&toStdout, "stdout", false, "Print the subtitle instead of writing a file")
	flags.StringVar(&operation, "process", "", "Run an LLM pass over the cues: optimize or translate")
	flags.StringVar(&provider, "provider", "", "LLM provider (default: LLM_PROVIDER)")
	flags.StringVar(&target, "target", "", "Target language for --process translate")
	flags.StringVar(&style, "style", "", "Optimize style, e.g. natural, formal, casual")
	flags.BoolVar(&noFixes, "no-fix-errors", false, "Do not ask the model to fix transcription errors")
	flags.BoolVar(&noGrammar, "no-grammar", false, "Do not ask the model to improve grammar")
	flags.BoolVar(&noPreserve, "no-preserve-meaning", false, "Allow the model to rephrase freely")
	return cmd
}

func newConvertCommand(cc *commandContext) *cobra.Command {
	var (
		to         string
		output     string
		offset     float64
		timestamps bool
	)

	cmd := &cobra.Command{
		Use:   "convert <subtitle-file>",
		Short: "Convert an SRT, WebVTT or timed-text XML file to another format",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := cc.loadConfig(cmd.Context()); err != nil {
				return err
			}
			input := args[0]
			format, err := subtitle.ParseFormat(to)
			if err != nil {
				return err
			}

			cues, err := readCues(input)
			if err != nil {
				return err
			}
			if offset != 0 {
				cues = subtitle.AdjustTiming(cues, offset)
			}

			if output == "" {
				output = file.ReplaceExt(input, format.Ext())
			}
			if filepath.Clean(output) == filepath.Clean(input) {
				return fmt.Errorf("output would overwrite %s; pass --output", input)
			}
			if err := subtitle.WriteFile(output, cues, format, subtitle.ConvertOptions{IncludeTimestamps: timestamps}); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s (%d cues)\n", output, len(cues))
			return nil
		},
	}

	flags := cmd.Flags()
	flags.StringVarP(&to, "to", "t", string(subtitle.FormatVTT), "Output format: srt, vtt, lrc, txt or json")
	flags.StringVarP(&output, "output", "o", "", "Output path (default: input with the new extension)")
	flags.Float64Var(&offset, "offset", 0, "Shift every cue by this many seconds")
	flags.BoolVar(&timestamps, "timestamps", false, "Prefix txt output lines with their start time")
	return cmd
}

func readCues(path string) ([]subtitle.Cue, error) {
	if strings.EqualFold(filepath.Ext(path), ".xml") {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		return subtitle.ParseTimedText(string(data))
	}
	f, err := subtitle.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return f.Cues, nil
}

func newProvidersCommand(cc *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "providers",
		Short: "Show the configured LLM providers",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := cc.buildApp(cmd.Context(), false)
			if err != nil {
				return err
			}

			configs := app.processor.Configs()
			rows := make([][]string, 0, len(configs))
			for _, p := range llm.Providers {
				c := configs[p].Masked()
				name := string(p)
				if p == app.cfg.LLM.DefaultProvider {
					name += " (default)"
				}
				key := c.APIKey
				if key == "" {
					key = "-"
				}
				rows = append(rows, []string{name, c.Model, c.BaseURL, key, strconv.Itoa(c.MaxTokens)})
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable(
				[]string{"Provider", "Model", "Base URL", "API Key", "Max Tokens"}, rows,
				[]columnAlignment{alignLeft, alignLeft, alignLeft, alignLeft, alignRight}))
			fmt.Fprintf(cmd.OutOrStdout(), "Settings file: %s\n", app.settings.Path())
			return nil
		},
	}
}

func newTestConnectionCommand(cc *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "test-connection [provider]",
		Short: "Send a probe prompt to an LLM provider",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			app, err := cc.buildApp(ctx, true)
			if err != nil {
				return err
			}
			defer app.Close()

			provider := app.cfg.LLM.DefaultProvider
			if len(args) == 1 {
				p, ok := llm.ParseProvider(args[0])
				if !ok {
					return fmt.Errorf("unsupported provider %q", args[0])
				}
				provider = p
			}

			if !app.processor.TestConnection(ctx, provider) {
				return fmt.Errorf("%s: connection test failed", provider)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: OK\n", provider)
			return nil
		},
	}
}

func newUsageCommand(cc *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "usage",
		Short: "Show LLM request and token totals",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			app, err := cc.buildApp(ctx, true)
			if err != nil {
				return err
			}
			defer app.Close()

			stats, err := app.processor.UsageStats(ctx)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderUsage(stats))
			return nil
		},
	}
}

func renderUsage(stats processor.UsageStats) string {
	names := make([]string, 0, len(stats.ProviderStats))
	for name := range stats.ProviderStats {
		names = append(names, name)
	}
	sort.Strings(names)

	rows := make([][]string, 0, len(names)+1)
	for _, name := range names {
		u := stats.ProviderStats[name]
		rows = append(rows, []string{name, humanize.Comma(u.Requests), humanize.Comma(u.Tokens)})
	}
	rows = append(rows, []string{"total", humanize.Comma(stats.TotalRequests), humanize.Comma(stats.TotalTokens)})
	return renderTable([]string{"Provider", "Requests", "Tokens"}, rows,
		[]columnAlignment{alignLeft, alignRight, alignRight})
}

package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"go.aimuz.me/basar/camera"
	"go.aimuz.me/basar/config"
	"go.aimuz.me/basar/internal/app"
	"go.aimuz.me/basar/internal/types"
	"go.aimuz.me/basar/session"
	"go.aimuz.me/basar/speech"
)

// ─────────────────────────────────────────────────────────────────────────────
// snap
// ─────────────────────────────────────────────────────────────────────────────

type snapOptions struct {
	mode    string
	image   string
	speak   bool
	json    bool
	timeout time.Duration
}

func newSnapCmd(flags *globalFlags) *cobra.Command {
	opts := &snapOptions{}
	cmd := &cobra.Command{
		Use:   "snap",
		Short: "Capture one frame, send it for perception and print the result",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runSnap(cmd, flags, opts)
		},
	}
	cmd.Flags().StringVarP(&opts.mode, "mode", "m", "detect", "perception mode: detect or read")
	cmd.Flags().StringVarP(&opts.image, "image", "i", "", "use this image instead of the camera")
	cmd.Flags().BoolVar(&opts.speak, "speak", false, "narrate the result")
	cmd.Flags().BoolVar(&opts.json, "json", false, "print the result as JSON")
	cmd.Flags().DurationVar(&opts.timeout, "timeout", 30*time.Second, "overall timeout")
	return cmd
}

func runSnap(cmd *cobra.Command, flags *globalFlags, opts *snapOptions) error {
	mode, err := types.ParseMode(opts.mode)
	if err != nil {
		return err
	}
	if mode == types.ModeIdle {
		return fmt.Errorf("snap needs a mode, got %q", opts.mode)
	}

	cfg, closeLog, err := loadConfig(flags, "")
	if err != nil {
		return err
	}
	defer closeLog()

	camCfg := app.CameraConfig(cfg.Capture.Camera)
	if opts.image != "" {
		camCfg.Kind = camera.KindFile
		camCfg.Path = opts.image
	}
	src, err := camera.New(camCfg)
	if err != nil {
		return err
	}
	defer camera.Close(src)

	p, err := app.NewPerception(cfg, nil)
	if err != nil {
		return err
	}
	defer p.Close()

	ctx, cancel := context.WithTimeout(cmd.Context(), opts.timeout)
	defer cancel()

	frame, err := src.Frame(ctx)
	if err != nil {
		return fmt.Errorf("capture frame: %w", err)
	}
	res, err := p.Client.Submit(ctx, mode, frame)
	if err != nil {
		return fmt.Errorf("submit frame: %w", err)
	}
	res.Mode = mode

	if opts.json {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		if err := enc.Encode(res); err != nil {
			return err
		}
	} else if err := printResult(cmd.OutOrStdout(), res); err != nil {
		return err
	}

	if !opts.speak {
		return nil
	}
	text := spokenText(res)
	if text == "" {
		return nil
	}
	speaker, err := app.NewSpeaker(cfg)
	if err != nil {
		return err
	}
	locale := cfg.Narration.Locale
	if mode == types.ModeReading && cfg.Narration.DetectLanguage {
		if l := app.ControllerConfig(cfg).ReadingLocale(text); l != "" {
			locale = l
		}
	}
	narrator := session.NewNarrator(speaker, cfg.Narration.Locale)
	return narrator.Speak(ctx, session.NarrationRequest{Text: text, Locale: locale})
}

func printResult(w io.Writer, res types.Result) error {
	var b strings.Builder
	switch res.Kind {
	case types.ResultDetection:
		for _, o := range res.Objects {
			fmt.Fprintf(&b, "- %s\n", o.Caption())
		}
		if res.Summary != "" {
			fmt.Fprintln(&b, res.Summary)
		}
	default:
		if t := strings.TrimSpace(res.Text); t != "" {
			fmt.Fprintln(&b, t)
		}
	}
	if b.Len() == 0 {
		msg := res.Message
		if msg == "" {
			msg = "(nothing found)"
		}
		fmt.Fprintln(&b, msg)
	}
	_, err := io.WriteString(w, b.String())
	return err
}

func spokenText(res types.Result) string {
	if res.Kind == types.ResultText {
		return strings.TrimSpace(res.Text)
	}
	if len(res.Objects) == 0 {
		return ""
	}
	if res.Summary != "" {
		return res.Summary
	}
	captions := make([]string, 0, len(res.Objects))
	for _, o := range res.Objects {
		captions = append(captions, o.Caption())
	}
	return strings.Join(captions, ", ")
}

// ─────────────────────────────────────────────────────────────────────────────
// voices
// ─────────────────────────────────────────────────────────────────────────────

func newVoicesCmd(flags *globalFlags) *cobra.Command {
	var engineName, locale string
	cmd := &cobra.Command{
		Use:   "voices",
		Short: "List the voices of the speech engine",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, closeLog, err := loadConfig(flags, "")
			if err != nil {
				return err
			}
			defer closeLog()

			if engineName == "" {
				engineName = cfg.Narration.Engine
			}
			engine, err := speech.New(engineName)
			if err != nil {
				return err
			}
			voices, err := engine.Voices(cmd.Context())
			if err != nil {
				return fmt.Errorf("list voices: %w", err)
			}

			out := cmd.OutOrStdout()
			if locale != "" {
				v, ok := speech.SelectVoice(voices, locale)
				if !ok {
					_, err := fmt.Fprintf(out, "no %s voice, %s uses its default\n", locale, engine.Name())
					return err
				}
				voices = []speech.Voice{v}
			}

			tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tLOCALE\tNAME")
			for _, v := range voices {
				fmt.Fprintf(tw, "%s\t%s\t%s\n", v.ID, v.Locale, v.Name)
			}
			return tw.Flush()
		},
	}
	cmd.Flags().StringVar(&engineName, "engine", "", "speech engine: auto, say, espeak-ng or console")
	cmd.Flags().StringVar(&locale, "locale", "", "show only the voice chosen for this locale")
	return cmd
}

// ─────────────────────────────────────────────────────────────────────────────
// config
// ─────────────────────────────────────────────────────────────────────────────

func newConfigCmd(flags *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect or create the configuration file",
	}

	var force bool
	initCmd := &cobra.Command{
		Use:   "init",
		Short: "Write the default configuration",
		RunE: func(cmd *cobra.Command, _ []string) error {
			path := flags.configPath
			if path == "" {
				p, err := config.Path()
				if err != nil {
					return err
				}
				path = p
			}
			if _, err := os.Stat(path); err == nil && !force {
				return fmt.Errorf("%s already exists (use --force to overwrite)", path)
			} else if err != nil && !errors.Is(err, os.ErrNotExist) {
				return fmt.Errorf("stat config: %w", err)
			}

			written, err := config.DefaultConfig().Save(path)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), written)
			return err
		},
	}
	initCmd.Flags().BoolVar(&force, "force", false, "overwrite an existing file")

	showCmd := &cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(flags.configPath)
			if err != nil {
				return err
			}
			cfg.Perception.APIKey = redact(cfg.Perception.APIKey)
			cfg.Perception.OpenAI.APIKey = redact(cfg.Perception.OpenAI.APIKey)
			data, err := cfg.Encode()
			if err != nil {
				return err
			}
			_, err = cmd.OutOrStdout().Write(data)
			return err
		},
	}

	pathCmd := &cobra.Command{
		Use:   "path",
		Short: "Print the default configuration file path",
		RunE: func(cmd *cobra.Command, _ []string) error {
			path, err := config.Path()
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), path)
			return err
		},
	}

	cmd.AddCommand(initCmd, showCmd, pathCmd)
	return cmd
}

func redact(secret string) string {
	if len(secret) <= 8 {
		return strings.Repeat("*", len(secret))
	}
	return secret[:4] + "…" + secret[len(secret)-4:]
}

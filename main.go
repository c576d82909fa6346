package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/disintegration/imaging"
	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	defaults := defaultConfig()

	rootCmd := &cobra.Command{
		Use:   "course_select [flags] [command]",
		Short: "Log in to the graduate course portal and grab a seat",
		Long: `course_select logs in to the graduate course selection portal, solving the
arithmetic CAPTCHA with OCR, then requests the configured courses until one
of them is no longer full. It always logs out before exiting.`,
		TraverseChildren: true,
		SilenceUsage:     true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSelect(cmd)
		},
	}

	// Persistent flags override the config file and the environment, but
	// only when set explicitly.
	pf := rootCmd.PersistentFlags()
	pf.String("config", "", "YAML config file")
	pf.String("env-file", ".env", "dotenv file loaded into the environment when present")
	pf.StringP("username", "u", "", "portal username")
	pf.String("password-sm3", "", "SM3 hex digest of the password")
	pf.String("password", "", "plaintext password, hashed locally (prefer --password-sm3)")
	pf.StringArrayP("course", "c", nil, "course task id to select (repeatable or comma-separated)")
	pf.Int("max-attempts", defaults.MaxAttempts, "login attempts before giving up")
	pf.Int("max-transport-errors", defaults.MaxTransportErrors, "consecutive network errors tolerated while polling")
	pf.StringP("browser", "b", defaults.Browser, "browser to impersonate: chrome, firefox")
	pf.DurationP("timeout", "t", defaults.Timeout, "per-request timeout")
	pf.BoolP("verbose", "v", false, "debug logging to stderr")
	pf.BoolP("json", "j", false, "print the final report as JSON")
	pf.String("base-url", defaults.Site.BaseURL, "portal base URL")
	pf.String("captcha-backend", defaults.Captcha.Backend, "captcha recognizer: tesseract, 2captcha, anticaptcha")
	pf.String("captcha-key", "", "API key for a remote captcha backend")

	rootCmd.AddCommand(newRunCmd())
	rootCmd.AddCommand(newHashPasswordCmd())
	rootCmd.AddCommand(newSolveCmd())
	rootCmd.AddCommand(newProbeCmd())

	return rootCmd
}

func newRunCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Log in, poll the courses and log out (default)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSelect(cmd)
		},
	}
}

func newHashPasswordCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "hash-password",
		Short: "Print the SM3 digest of a password read from stdin",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			pw, err := readPassword(cmd.InOrStdin(), cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			if pw == "" {
				return fmt.Errorf("empty password")
			}
			fmt.Fprintln(cmd.OutOrStdout(), passwordDigest(pw))
			return nil
		},
	}
}

func newSolveCmd() *cobra.Command {
	var savePath string
	cmd := &cobra.Command{
		Use:   "solve <image>",
		Short: "Run the captcha solver on a saved challenge image",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSolve(cmd, args[0], savePath)
		},
	}
	cmd.Flags().StringVarP(&savePath, "save", "s", "", "write the binarized image here (format from extension)")
	return cmd
}

func newProbeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "probe",
		Short: "Check that the portal is reachable and report the login state of a fresh session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runProbe(cmd)
		},
	}
}

// configFromCmd loads the layered configuration for cmd.
func configFromCmd(cmd *cobra.Command) (*Config, error) {
	fs := cmd.Flags()
	configPath, err := fs.GetString("config")
	if err != nil {
		return nil, err
	}
	envFile, err := fs.GetString("env-file")
	if err != nil {
		return nil, err
	}
	return loadConfig(loadOptions{configPath: configPath, envFile: envFile, flags: fs})
}

func newLogger(w io.Writer, verbose bool) *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

func runSelect(cmd *cobra.Command) error {
	cfg, err := configFromCmd(cmd)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	logger := newLogger(cmd.ErrOrStderr(), cfg.Verbose)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	run, err := newRunner(cfg, runnerOptions{stdout: cmd.OutOrStdout(), logger: logger})
	if err != nil {
		return err
	}
	logger.Info("starting", "user", cfg.Username, "courses", cfg.Courses, "backend", cfg.Captcha.Backend)

	report, runErr := run.Run(ctx)
	if err := formatReport(cmd.OutOrStdout(), report, cfg.JSON); err != nil {
		return err
	}
	if errors.Is(runErr, context.Canceled) {
		logger.Info("interrupted")
		return nil
	}
	return runErr
}

func runSolve(cmd *cobra.Command, imagePath, savePath string) error {
	cfg, err := configFromCmd(cmd)
	if err != nil {
		return err
	}
	if err := cfg.Captcha.validate(); err != nil {
		return err
	}
	raw, err := os.ReadFile(imagePath)
	if err != nil {
		return fmt.Errorf("read image: %w", err)
	}
	recognizer, err := newRecognizer(cfg.Captcha)
	if err != nil {
		return err
	}

	solver := newCaptchaSolver(recognizer, cfg.Captcha, newLogger(cmd.ErrOrStderr(), cfg.Verbose))
	ch, solveErr := solver.Inspect(cmd.Context(), raw)
	if savePath != "" && ch.Binarized != nil {
		if err := imaging.Save(ch.Binarized, savePath); err != nil {
			return fmt.Errorf("save binarized image: %w", err)
		}
	}
	if err := formatChallenge(cmd.OutOrStdout(), ch, solveErr, cfg.JSON); err != nil {
		return err
	}
	return solveErr
}

func runProbe(cmd *cobra.Command) error {
	cfg, err := configFromCmd(cmd)
	if err != nil {
		return err
	}
	if err := cfg.Site.validate(); err != nil {
		return err
	}
	logger := newLogger(cmd.ErrOrStderr(), cfg.Verbose)
	session, err := newSession(sessionOptions{
		baseURL: cfg.Site.BaseURL,
		profile: getProfile(cfg.Browser),
		timeout: cfg.Timeout,
		logger:  logger,
	})
	if err != nil {
		return err
	}

	ok, err := newProbe(session, cfg.Site).IsAuthenticated(cmd.Context())
	if err != nil {
		return fmt.Errorf("portal unreachable: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "portal reachable at %s, authenticated: %v\n", cfg.Site.BaseURL, ok)
	return nil
}

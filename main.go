package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"runtime/debug"
	"time"

	gphotosuploader "github.com/gphotosuploader/google-photos-api-client-go/v3"
	"github.com/spf13/cobra"

	"github.com/ccfrost/albumsync/internal/config"
	"github.com/ccfrost/albumsync/internal/gphotos"
	"github.com/ccfrost/albumsync/internal/logging"
	"github.com/ccfrost/albumsync/internal/progress"
	"github.com/ccfrost/albumsync/internal/runner"
	"github.com/ccfrost/albumsync/internal/statestore"
)

const albumsync = "albumsync"

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"

	logger = logging.New()
)

func main() {
	var configPath, cacheDir string
	var cfg config.Config

	rootCmd := cobra.Command{
		Use:   albumsync,
		Short: "Mirror a local photo tree into Google Photos albums",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			var err error
			cfg, err = config.Load(configPath)
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			return nil
		},
	}
	{
		defaultConfigPath, err := config.DefaultConfigPath()
		if err != nil {
			fmt.Fprintln(os.Stderr, "error: unable to determine default config path:", err)
			os.Exit(1)
		}
		rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", defaultConfigPath, "Path to the configuration file")

		defaultCacheDir, err := DefaultCacheDir()
		if err != nil {
			fmt.Fprintln(os.Stderr, "error: unable to determine default cache dir:", err)
			os.Exit(1)
		}
		rootCmd.PersistentFlags().StringVar(&cacheDir, "cache-dir", defaultCacheDir, "Dir to store cache and token files")
	}

	versionCmd := cobra.Command{
		Use:   "version",
		Short: "Print the version number of albumsync",
		Run: func(cmd *cobra.Command, args []string) {
			if version == "dev" || commit == "none" {
				if info, ok := debug.ReadBuildInfo(); ok {
					if version == "dev" && info.Main.Version != "" && info.Main.Version != "(devel)" {
						version = info.Main.Version
					}
					modified := false
					for _, setting := range info.Settings {
						switch setting.Key {
						case "vcs.revision":
							if commit == "none" {
								commit = setting.Value
							}
						case "vcs.modified":
							modified = setting.Value == "true"
						case "vcs.time":
							if date == "unknown" {
								date = setting.Value
							}
						}
					}
					if modified {
						commit += " (dirty)"
					}
				}
			}
			fmt.Printf("Client:\t%s\n", albumsync)
			fmt.Printf("Version:\t%s\n", version)
			fmt.Printf("Go version:\t%s\n", runtime.Version())
			fmt.Printf("Git commit:\t%s\n", commit)
			fmt.Printf("Built:\t%s\n", date)
			fmt.Printf("OS/Arch:\t%s/%s\n", runtime.GOOS, runtime.GOARCH)
		},
	}
	rootCmd.AddCommand(&versionCmd)

	var noResume bool
	var parallelism int
	var deadline time.Duration
	runCmd := cobra.Command{
		Use:   "run",
		Short: "Scan a local directory and upload it to Google Photos, mirroring it as albums",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			root, err := cmd.Flags().GetString("root")
			if err != nil || root == "" {
				return fmt.Errorf("missing required --root flag")
			}
			if err := cfg.GooglePhotos.Validate(); err != nil {
				return fmt.Errorf("invalid config: %w", err)
			}
			if cmd.Flags().Changed("parallelism") {
				cfg.Run.Parallelism = parallelism
			}
			if cmd.Flags().Changed("deadline") {
				cfg.Run.Deadline = deadline
			}

			ctx := context.Background()
			httpClient, err := gphotos.AuthenticatedHTTPClient(ctx, cfg.GooglePhotos, cacheDir)
			if err != nil {
				return fmt.Errorf("authenticating with google photos: %w", err)
			}
			libClient, err := gphotosuploader.NewClient(httpClient)
			if err != nil {
				return fmt.Errorf("creating google photos client: %w", err)
			}
			client := gphotos.NewClient(libClient, httpClient)

			store := statestore.New(statestore.DefaultPath(cacheDir))
			reporter := progress.NewTerminal(logger)
			r := runner.New(client, store, reporter, logger)

			outcome := r.Run(ctx, root, !noResume, cfg)
			for _, f := range outcome.Failures {
				fmt.Fprintf(os.Stderr, "failed: %s: %v\n", f.Path, f.Err)
			}
			if !outcome.Succeeded {
				return outcome.Err
			}
			return nil
		},
	}
	runCmd.Flags().StringP("root", "r", "", "Source directory to mirror (required)")
	runCmd.Flags().BoolVar(&noResume, "no-resume", false, "Ignore prior upload state for skip decisions; still persists progress")
	runCmd.Flags().IntVar(&parallelism, "parallelism", 0, "Override the number of album directories uploaded concurrently")
	runCmd.Flags().DurationVar(&deadline, "deadline", 0, "Override the overall run deadline, e.g. 6h")
	rootCmd.AddCommand(&runCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

// DefaultCacheDir returns the default cache directory.
func DefaultCacheDir() (string, error) {
	dir, err := os.UserCacheDir()
	if err != nil {
		return "", fmt.Errorf("unable to determine user cache dir: %w", err)
	}
	return filepath.Join(dir, albumsync), nil
}

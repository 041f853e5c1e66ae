package main

import (
	"context"
	"fmt"

	"github.com/getsavvyinc/ghinstall"
	"github.com/getsavvyinc/ghinstall/config"
	"github.com/getsavvyinc/ghinstall/fetch"
	"github.com/getsavvyinc/ghinstall/logger"
	"github.com/getsavvyinc/ghinstall/release"
	"github.com/spf13/cobra"
)

// installFlags collects the raw CLI input before validation.
type installFlags struct {
	downloadFilename string
	downloadPath     string
	extractPath      string
	installPath      string
	githubOwner      string
	githubRepo       string
	githubRelease    string
	releaseType      string
	queryType        string
	assetsFromTag    bool
}

func newRootCmd(cfg *config.Config) *cobra.Command {
	var flags installFlags

	cmd := &cobra.Command{
		Use:   "ghinstall",
		Short: "Install a GitHub release artifact to a target directory",
		Long: `ghinstall resolves a GitHub release tag for a repository, downloads either
the source archive or a pattern-matched binary asset, and installs it to a
target directory. Source archives are extracted and their contents relocated;
binary assets are moved into place and marked executable.`,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			// Flag and argument errors are reported with usage before RunE
			// runs; errors from here on are operational and get no usage dump.
			cmd.SilenceUsage = true
			return run(cmd.Context(), cfg, flags)
		},
	}

	cmd.Flags().StringVarP(&flags.downloadFilename, "download-filename", "f", cfg.DownloadFilename, "downloaded filename, or asset regex in binary mode")
	cmd.Flags().StringVar(&flags.downloadPath, "download-path", cfg.DownloadPath, "scratch download directory")
	cmd.Flags().StringVar(&flags.extractPath, "extract-path", cfg.ExtractPath, "scratch extraction directory")
	cmd.Flags().StringVarP(&flags.installPath, "install-path", "i", "", "final install directory (required)")
	cmd.Flags().StringVarP(&flags.githubOwner, "github-owner", "o", "", "repository owner (required)")
	cmd.Flags().StringVarP(&flags.githubRepo, "github-repo", "r", "", "repository name (required)")
	cmd.Flags().StringVar(&flags.githubRelease, "github-release", "", "explicit release tag (skips resolution)")
	cmd.Flags().StringVarP(&flags.releaseType, "release-type", "t", string(ghinstall.ReleaseTypeSource), "artifact type: source or binary")
	cmd.Flags().StringVarP(&flags.queryType, "query-type", "q", string(release.QueryLatestRelease), "tag resolution endpoint: releases/latest or tags")
	cmd.Flags().BoolVar(&flags.assetsFromTag, "assets-from-tag", false, "in binary mode, match assets of the resolved tag's release instead of the latest release")

	_ = cmd.MarkFlagRequired("install-path")
	_ = cmd.MarkFlagRequired("github-owner")
	_ = cmd.MarkFlagRequired("github-repo")

	return cmd
}

func run(ctx context.Context, cfg *config.Config, flags installFlags) error {
	releaseType, err := ghinstall.ParseReleaseType(flags.releaseType)
	if err != nil {
		return err
	}
	queryType, err := release.ParseQueryType(flags.queryType)
	if err != nil {
		return err
	}

	fetcher := fetch.NewFetcher(
		fetch.WithRetries(cfg.Fetch.Retries),
		fetch.WithRetryWait(cfg.Fetch.RetryWait),
	)

	tag := flags.githubRelease
	if tag == "" {
		logger.Info("resolving release for %s/%s via %s", flags.githubOwner, flags.githubRepo, queryType)
		getter := release.NewGetter(flags.githubOwner, flags.githubRepo,
			release.WithFetcher(fetcher),
			release.WithQueryType(queryType),
		)
		tag, err = getter.Resolve(ctx)
		if err != nil {
			return fmt.Errorf("resolve release: %w", err)
		}
		logger.Info("resolved release %s", tag)
	}

	req := ghinstall.InstallRequest{
		Owner:            flags.githubOwner,
		Repo:             flags.githubRepo,
		ReleaseTag:       tag,
		ReleaseType:      releaseType,
		DownloadFilename: flags.downloadFilename,
		DownloadPath:     flags.downloadPath,
		ExtractPath:      flags.extractPath,
		InstallPath:      flags.installPath,
		AssetsFromTag:    flags.assetsFromTag,
	}

	installer := ghinstall.NewInstaller(ghinstall.WithFetcher(fetcher))
	if err := installer.Install(ctx, req); err != nil {
		return err
	}

	logger.Info("installed %s/%s %s to %s", flags.githubOwner, flags.githubRepo, tag, flags.installPath)
	return nil
}

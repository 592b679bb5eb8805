package commands

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"
	"github.com/uzx-v/renewbot/lib/hfspace"
	"github.com/uzx-v/renewbot/lib/osutil"
	"github.com/uzx-v/renewbot/lib/serviceutil"
)

var spaceFlags struct {
	token         string
	name          string
	image         string
	githubRepo    string
	githubToken   string
	githubBranch  string
	backupHour    string
	keepBackups   string
	backupPass    string
	cfTunnelToken string
}

func init() {
	f := spaceCmd.Flags()
	f.StringVar(&spaceFlags.token, "hf-token", "", "Hugging Face token, falls back to $HF_TOKEN.")
	f.StringVar(&spaceFlags.name, "name", "uk", "Name of the space to provision.")
	f.StringVar(&spaceFlags.image, "image", "", "Docker image the space runs.")
	f.StringVar(&spaceFlags.githubRepo, "github-repo", "", "Repository the space backs up to.")
	f.StringVar(&spaceFlags.githubToken, "github-token", "", "Token for the backup repository.")
	f.StringVar(&spaceFlags.githubBranch, "github-branch", "main", "Branch the space backs up to.")
	f.StringVar(&spaceFlags.backupHour, "backup-hour", "4", "Hour of day to run backups.")
	f.StringVar(&spaceFlags.keepBackups, "keep-backups", "5", "How many backups to keep.")
	f.StringVar(&spaceFlags.backupPass, "backup-pass", "", "Optional backup encryption password.")
	f.StringVar(&spaceFlags.cfTunnelToken, "cf-tunnel-token", "", "Optional cloudflare tunnel token.")
	spaceCmd.MarkFlagRequired("image")
	spaceCmd.MarkFlagRequired("github-repo")
	spaceCmd.MarkFlagRequired("github-token")
	rootCmd.AddCommand(spaceCmd)
}

const spaceReadmeTemplate = `---
title: %s
emoji: ⚡
colorFrom: red
colorTo: yellow
sdk: docker
pinned: false
---`

var spaceCmd = &cobra.Command{
	Use:   "space --image <image> --github-repo <owner/repo> --github-token <token>",
	Short: "Provisions a Hugging Face space running the status monitor image.",
	Run: func(cmd *cobra.Command, args []string) {
		token := osutil.EnvOr("HF_TOKEN", spaceFlags.token)
		if token == "" {
			serviceutil.Fatal("no hugging face token", fmt.Errorf("pass --hf-token or set $HF_TOKEN"))
		}

		secrets := map[string]string{
			"GITHUB_TOKEN":  spaceFlags.githubToken,
			"GITHUB_REPO":   spaceFlags.githubRepo,
			"GITHUB_BRANCH": spaceFlags.githubBranch,
			"BACKUP_HOUR":   spaceFlags.backupHour,
			"KEEP_BACKUPS":  spaceFlags.keepBackups,
		}
		if spaceFlags.backupPass != "" {
			secrets["BACKUP_PASS"] = spaceFlags.backupPass
		}
		if spaceFlags.cfTunnelToken != "" {
			secrets["CF_TUNNEL_TOKEN"] = spaceFlags.cfTunnelToken
		}

		client := hfspace.NewClient(hfspace.Options{Token: token})
		fullName, err := client.Provision(cmd.Context(), hfspace.ProvisionOptions{
			SpaceName: spaceFlags.name,
			Secrets:   secrets,
			Files: []hfspace.File{
				{Path: "README.md", Content: fmt.Sprintf(spaceReadmeTemplate, spaceFlags.name)},
				{Path: "Dockerfile", Content: fmt.Sprintf("FROM %s", spaceFlags.image)},
			},
			Recreate: true,
		})
		if err != nil {
			serviceutil.Fatal("failed to provision space", err)
		}
		slog.Info("space provisioned", "space", fullName)
	},
}

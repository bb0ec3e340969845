// Command setup provisions the blog's hosting: project creation, environment
// variables, and git-sourced deployments, with a local journal of every run.
package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/Sharknia/tuum-prism/internal/deploy"
	"github.com/spf13/cobra"
)

var (
	flagTeamID     string
	flagJournalDir string

	flagProjectName string
	flagFramework   string
	flagRepo        string

	flagProject    string
	flagSecret     bool
	flagTargets    []string
	flagRepoID     string
	flagRef        string
	flagProduction bool
	flagWait       bool

	flagLimit int
)

var rootCmd = &cobra.Command{
	Use:   "setup",
	Short: "Provision hosting for the blog frontend",
	Long: `setup talks to the hosting provider to create the project, sync
environment variables, and trigger deployments. Every deployment is recorded
in a local git journal.

The access token is read from VERCEL_TOKEN.`,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagTeamID, "team", os.Getenv("VERCEL_TEAM_ID"), "Team id (optional)")
	rootCmd.PersistentFlags().StringVar(&flagJournalDir, "journal", "./data/deploy-journal", "Directory of the deployment journal")

	projectCmd.Flags().StringVar(&flagProjectName, "name", "tuum-prism", "Project name")
	projectCmd.Flags().StringVar(&flagFramework, "framework", "nextjs", "Framework preset")
	projectCmd.Flags().StringVar(&flagRepo, "repo", "", "GitHub repository (owner/name) to link")
	rootCmd.AddCommand(projectCmd)

	envCmd.Flags().StringVar(&flagProject, "project", "tuum-prism", "Project id or name")
	envCmd.Flags().BoolVar(&flagSecret, "secret", false, "Store values encrypted")
	envCmd.Flags().StringSliceVar(&flagTargets, "targets", []string{"production", "preview"}, "Deployment targets")
	rootCmd.AddCommand(envCmd)

	deployCmd.Flags().StringVar(&flagProject, "project", "tuum-prism", "Project name")
	deployCmd.Flags().StringVar(&flagRepoID, "repo-id", "", "Numeric id of the linked GitHub repository")
	deployCmd.Flags().StringVar(&flagRef, "ref", "main", "Git ref to deploy")
	deployCmd.Flags().BoolVar(&flagProduction, "production", false, "Deploy to production")
	deployCmd.Flags().BoolVar(&flagWait, "wait", true, "Wait for the deployment to finish")
	rootCmd.AddCommand(deployCmd)

	domainCmd.PersistentFlags().StringVar(&flagProject, "project", "tuum-prism", "Project id or name")
	domainCmd.AddCommand(domainAddCmd, domainListCmd, domainRemoveCmd)
	rootCmd.AddCommand(domainCmd)

	historyCmd.Flags().IntVar(&flagLimit, "limit", 10, "Number of entries to show")
	rootCmd.AddCommand(historyCmd)
}

func newClient() (*deploy.Client, error) {
	token := strings.TrimSpace(os.Getenv("VERCEL_TOKEN"))
	if token == "" {
		return nil, fmt.Errorf("VERCEL_TOKEN is not set")
	}
	return deploy.NewClient(token, flagTeamID), nil
}

var projectCmd = &cobra.Command{
	Use:   "project",
	Short: "Create the hosting project",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newClient()
		if err != nil {
			return err
		}

		ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
		defer cancel()

		var repo *deploy.GitRepository
		if flagRepo != "" {
			repo = &deploy.GitRepository{Type: "github", Repo: flagRepo}
		}
		project, err := client.CreateProject(ctx, flagProjectName, flagFramework, repo)
		if err != nil {
			return err
		}
		fmt.Printf("created project %s (%s)\n", project.Name, project.ID)
		return nil
	},
}

var envCmd = &cobra.Command{
	Use:   "env KEY=VALUE [KEY=VALUE...]",
	Short: "Sync environment variables to the project",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newClient()
		if err != nil {
			return err
		}

		envType := "plain"
		if flagSecret {
			envType = "encrypted"
		}
		vars := make([]deploy.EnvVariable, 0, len(args))
		for _, arg := range args {
			key, value, ok := strings.Cut(arg, "=")
			if !ok || key == "" {
				return fmt.Errorf("invalid variable %q, expected KEY=VALUE", arg)
			}
			vars = append(vars, deploy.EnvVariable{
				Key:    key,
				Value:  value,
				Target: flagTargets,
				Type:   envType,
			})
		}

		ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
		defer cancel()

		if err := client.UpsertEnv(ctx, flagProject, vars); err != nil {
			return err
		}
		fmt.Printf("synced %d variables to %s\n", len(vars), flagProject)
		return nil
	},
}

var deployCmd = &cobra.Command{
	Use:   "deploy",
	Short: "Trigger a deployment from the linked repository",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newClient()
		if err != nil {
			return err
		}
		if flagRepoID == "" {
			return fmt.Errorf("--repo-id is required")
		}

		ctx, cancel := context.WithTimeout(cmd.Context(), 15*time.Minute)
		defer cancel()

		deployment, err := client.CreateDeployment(ctx, flagProject, flagRepoID, flagRef, flagProduction)
		if err != nil {
			return err
		}
		fmt.Printf("deployment %s queued (%s)\n", deployment.ID, deployment.URL)

		if flagWait {
			deployment, err = client.WaitForDeployment(ctx, deployment.ID, 5*time.Second)
			if err != nil {
				return err
			}
			fmt.Printf("deployment %s is %s\n", deployment.ID, deployment.ReadyState)
		}

		target := "preview"
		if flagProduction {
			target = "production"
		}
		journal := deploy.NewJournal(flagJournalDir)
		hash, err := journal.Append(deploy.Record{
			ProjectName:  flagProject,
			DeploymentID: deployment.ID,
			URL:          deployment.URL,
			Target:       target,
		})
		if err != nil {
			return fmt.Errorf("record deployment: %w", err)
		}
		fmt.Printf("journaled as %s\n", hash)
		return nil
	},
}

var domainCmd = &cobra.Command{
	Use:   "domain",
	Short: "Manage the project's domains",
}

var domainAddCmd = &cobra.Command{
	Use:   "add DOMAIN",
	Short: "Attach a domain to the project",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		name := strings.ToLower(strings.TrimSpace(args[0]))
		for _, label := range strings.Split(name, ".") {
			if !deploy.ValidDomainLabel(label) {
				return fmt.Errorf("invalid domain %q", name)
			}
		}

		client, err := newClient()
		if err != nil {
			return err
		}
		ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
		defer cancel()

		domain, err := client.AddDomain(ctx, flagProject, name)
		if err != nil {
			return err
		}
		fmt.Printf("added %s to %s (verified: %v)\n", domain.Name, flagProject, domain.Verified)
		return nil
	},
}

var domainListCmd = &cobra.Command{
	Use:   "list",
	Short: "List the project's domains",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newClient()
		if err != nil {
			return err
		}
		ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
		defer cancel()

		domains, err := client.ListDomains(ctx, flagProject)
		if err != nil {
			return err
		}
		if len(domains) == 0 {
			fmt.Println("no domains attached")
			return nil
		}
		for _, d := range domains {
			verified := "unverified"
			if d.Verified {
				verified = "verified"
			}
			fmt.Printf("%-40s %s\n", d.Name, verified)
		}
		return nil
	},
}

var domainRemoveCmd = &cobra.Command{
	Use:   "remove DOMAIN",
	Short: "Detach a domain from the project",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newClient()
		if err != nil {
			return err
		}
		ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
		defer cancel()

		if err := client.RemoveDomain(ctx, flagProject, args[0]); err != nil {
			return err
		}
		fmt.Printf("removed %s from %s\n", args[0], flagProject)
		return nil
	},
}

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show recent deployments from the journal",
	RunE: func(cmd *cobra.Command, args []string) error {
		journal := deploy.NewJournal(flagJournalDir)
		entries, err := journal.History(flagLimit)
		if err != nil {
			return err
		}
		if len(entries) == 0 {
			fmt.Println("no deployments recorded")
			return nil
		}
		for _, entry := range entries {
			fmt.Printf("%s  %s  %-10s  %s\n",
				entry.Hash,
				entry.Record.DeployedAt.Format("2006-01-02 15:04"),
				entry.Record.Target,
				entry.Record.URL,
			)
		}
		return nil
	},
}

package cmd

import (
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"postraft-facade/internal/session"
)

// PasswordEnv lets scripts pass the password without a flag.
const PasswordEnv = "POSTRAFT_PASSWORD"

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Sign in and remember the token",
	Long: `Sign in to Postraft. The token is kept in the configured token store
(TOKEN_STORE) so later commands and the facade reuse it.

Examples:
  postraft-facade login --email you@example.com --password secret
  POSTRAFT_PASSWORD=secret postraft-facade login --email you@example.com`,
	RunE: runLogin,
}

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Forget the stored token",
	RunE:  runLogout,
}

var whoamiCmd = &cobra.Command{
	Use:   "whoami",
	Short: "Show the signed-in account and plan",
	RunE:  runWhoami,
}

func init() {
	rootCmd.AddCommand(loginCmd, logoutCmd, whoamiCmd)

	loginCmd.Flags().String("email", "", "account email")
	loginCmd.Flags().String("password", "", "account password (or "+PasswordEnv+")")
}

func runLogin(cmd *cobra.Command, args []string) error {
	email, _ := cmd.Flags().GetString("email")
	password, _ := cmd.Flags().GetString("password")
	if password == "" {
		password = os.Getenv(PasswordEnv)
	}

	a, err := cliApp()
	if err != nil {
		return err
	}
	defer a.Close()

	ctx := commandContext(cmd)
	a.sessions.Hydrate(ctx)
	snap, err := a.sessions.Login(ctx, session.LoginInput{Email: email, Password: password})
	if err != nil {
		return err
	}

	printer.Success("Logged in as %s (%s)", snap.User.UserName, snap.User.Email)
	return nil
}

func runLogout(cmd *cobra.Command, args []string) error {
	a, err := cliApp()
	if err != nil {
		return err
	}
	defer a.Close()

	ctx := commandContext(cmd)
	a.sessions.Hydrate(ctx)
	if err := a.sessions.Logout(ctx); err != nil {
		return err
	}
	printer.Success("Logged out")
	return nil
}

func runWhoami(cmd *cobra.Command, args []string) error {
	a, err := cliApp()
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.requireSession(commandContext(cmd)); err != nil {
		return err
	}
	snap := a.sessions.Snapshot()

	printer.Header("Account")
	table := printer.NewTable([]string{"FIELD", "VALUE"})
	table.AddRow("user", snap.User.UserName)
	table.AddRow("email", snap.User.Email)
	if snap.Plan != nil {
		table.AddRow("plan", snap.Plan.Name)
		table.AddRow("max products", strconv.Itoa(snap.Plan.MaxProducts))
		table.AddRow("max templates", strconv.Itoa(snap.Plan.MaxTemplates))
		table.AddRow("monthly generations", strconv.Itoa(snap.Plan.MonthlyGenerations))
	}
	return table.Render()
}

package cli

import (
	"bufio"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/five82/metricdeck/internal/session"
)

type loginCmd struct {
	cli      *CLI
	email    string
	password string
}

func (c *CLI) newLoginCmd() *cobra.Command {
	lc := &loginCmd{cli: c}
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Sign in and store the session",
		Long: "Sign in and store the session for later commands. Missing values are read\n" +
			"from METRICDECK_EMAIL / METRICDECK_PASSWORD, then prompted on stdin.",
		Args: cobra.NoArgs,
		RunE: lc.run,
	}
	cmd.Flags().StringVar(&lc.email, "email", "", "account email")
	cmd.Flags().StringVar(&lc.password, "password", "", "account password")
	return cmd
}

func (lc *loginCmd) run(cmd *cobra.Command, _ []string) error {
	c := lc.cli
	in := bufio.NewReader(c.opts.In)

	email := firstNonEmpty(lc.email, c.v.GetString("email"))
	if email == "" {
		var err error
		if email, err = prompt(in, c.opts.Err, "Email: "); err != nil {
			return err
		}
	}
	password := firstNonEmpty(lc.password, c.v.GetString("password"))
	if password == "" {
		var err error
		if password, err = prompt(in, c.opts.Err, "Password: "); err != nil {
			return err
		}
	}
	if email == "" || password == "" {
		return fmt.Errorf("email and password are required")
	}

	a, cleanup, err := c.open(false)
	if err != nil {
		return err
	}
	defer cleanup()

	sess, err := a.Session.Login(cmd.Context(), email, password)
	if err != nil {
		return fmt.Errorf("login: %w", err)
	}
	fmt.Fprintf(c.opts.Out, "Logged in as %s <%s>\n", sess.User.Name, sess.User.Email)
	return nil
}

func (c *CLI) newLogoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Sign out and forget the stored session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, cleanup, err := c.open(false)
			if err != nil {
				return err
			}
			defer cleanup()

			if a.Session.Status() != session.Authenticated {
				fmt.Fprintln(c.opts.Out, "Not logged in")
				return nil
			}
			a.Session.Logout(cmd.Context())
			fmt.Fprintln(c.opts.Out, "Logged out")
			return nil
		},
	}
}

func (c *CLI) newWhoamiCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the signed-in user",
		Args:  cobra.NoArgs,
		RunE: func(*cobra.Command, []string) error {
			a, cleanup, err := c.open(false)
			if err != nil {
				return err
			}
			defer cleanup()

			if err := a.RequireSession(); err != nil {
				return err
			}
			user := a.Session.Snapshot().User
			tw := tabwriter.NewWriter(c.opts.Out, 0, 0, 2, ' ', 0)
			fmt.Fprintf(tw, "Name:\t%s\n", user.Name)
			fmt.Fprintf(tw, "Email:\t%s\n", user.Email)
			fmt.Fprintf(tw, "Role:\t%s\n", user.Role)
			fmt.Fprintf(tw, "API:\t%s\n", a.Client.BaseURL())
			return tw.Flush()
		},
	}
}

func prompt(in *bufio.Reader, out io.Writer, label string) (string, error) {
	fmt.Fprint(out, label)
	line, err := in.ReadString('\n')
	if err != nil && err != io.EOF {
		return "", fmt.Errorf("read %s: %w", strings.ToLower(strings.TrimSuffix(label, ": ")), err)
	}
	return strings.TrimSpace(line), nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}

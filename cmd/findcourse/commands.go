package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/jrsteele09/findcourse-client/centers"
	apperrors "github.com/jrsteele09/findcourse-client/internal/errors"
	"github.com/jrsteele09/findcourse-client/sessions"
	"github.com/jrsteele09/findcourse-client/users"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
)

var errFailed = errors.New("command failed")

type appFunc func(ctx context.Context, cmd *cobra.Command, a *app, args []string) error

func rootCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:           "findcourse",
		Short:         "Terminal client for the findcourse.net.uz directory",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Config file path (YAML)")

	// withApp builds the app for a command and tears it down afterwards.
	withApp := func(fn appFunc) func(cmd *cobra.Command, args []string) error {
		return guard(func(cmd *cobra.Command, args []string) error {
			a, err := newApp(configPath, cmd.OutOrStdout())
			if err != nil {
				return err
			}
			defer a.Close()
			return fn(cmd.Context(), cmd, a, args)
		})
	}

	cmd.AddCommand(
		loginCmd(withApp),
		&cobra.Command{
			Use:   "logout",
			Short: "End the session and forget stored tokens",
			Args:  cobra.NoArgs,
			RunE: withApp(func(ctx context.Context, cmd *cobra.Command, a *app, _ []string) error {
				a.session.Logout(ctx)
				fmt.Fprintln(cmd.OutOrStdout(), "Logged out")
				return nil
			}),
		},
		&cobra.Command{
			Use:   "whoami",
			Short: "Show the logged in profile",
			Args:  cobra.NoArgs,
			RunE:  withApp(runWhoami),
		},
		&cobra.Command{
			Use:   "status",
			Short: "Show the session and when the access token is renewed",
			Args:  cobra.NoArgs,
			RunE:  withApp(runStatus),
		},
		updateCmd(withApp),
		&cobra.Command{
			Use:   "upload <file>",
			Short: "Upload a profile image",
			Args:  cobra.ExactArgs(1),
			RunE:  withApp(runUpload),
		},
		&cobra.Command{
			Use:   "delete-account",
			Short: "Delete the logged in account",
			Args:  cobra.NoArgs,
			RunE: withApp(func(ctx context.Context, _ *cobra.Command, a *app, _ []string) error {
				if !a.session.DeleteAccount(ctx) {
					return errFailed
				}
				return nil
			}),
		},
		likesCmd(withApp),
		centersCmd(withApp),
		&cobra.Command{
			Use:   "watch",
			Short: "Keep the session alive, renewing the access token before it expires",
			Args:  cobra.NoArgs,
			RunE:  withApp(runWatch),
		},
		fakeAPICmd(),
	)
	return cmd
}

func loginCmd(withApp func(appFunc) func(*cobra.Command, []string) error) *cobra.Command {
	var creds users.Credentials

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Log in with email and password",
		Args:  cobra.NoArgs,
		RunE: withApp(func(ctx context.Context, cmd *cobra.Command, a *app, _ []string) error {
			if creds.Password == "" {
				creds.Password = os.Getenv("FINDCOURSE_PASSWORD")
			}
			res := a.session.Login(ctx, creds)
			if !res.Success {
				return errFailed
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Role: %s\n", res.Role)
			return nil
		}),
	}
	cmd.Flags().StringVarP(&creds.Email, "email", "e", "", "Account email")
	cmd.Flags().StringVarP(&creds.Password, "password", "p", "", "Account password (defaults to $FINDCOURSE_PASSWORD)")
	_ = cmd.MarkFlagRequired("email")
	return cmd
}

func runWhoami(ctx context.Context, cmd *cobra.Command, a *app, _ []string) error {
	if !a.session.IsAuthenticated() {
		return apperrors.ErrNoSession
	}
	p := a.session.FetchUserData(ctx)
	if p == nil {
		return errFailed
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "ID\t%d\n", p.ID)
	fmt.Fprintf(w, "Name\t%s\n", p.FullName())
	fmt.Fprintf(w, "Email\t%s\n", p.Email)
	if p.Phone != "" {
		fmt.Fprintf(w, "Phone\t%s\n", p.Phone)
	}
	fmt.Fprintf(w, "Role\t%s (%s)\n", p.Role, roleAccess(p.Role))
	if p.Image != "" {
		fmt.Fprintf(w, "Image\t%s\n", p.Image)
	}
	return w.Flush()
}

func roleAccess(r users.Role) string {
	switch {
	case r.IsAdmin():
		return "impact metrics"
	case r.IsCEO():
		return "manages centers"
	}
	return "browses centers"
}

func runStatus(ctx context.Context, cmd *cobra.Command, a *app, _ []string) error {
	out := cmd.OutOrStdout()
	if !a.session.IsAuthenticated() {
		fmt.Fprintln(out, "Not logged in")
		return nil
	}
	if _, ok := a.session.ValidToken(ctx, true); !ok {
		return apperrors.ErrNoSession
	}
	if err := a.session.Start(ctx); err != nil {
		return err
	}

	fmt.Fprintf(out, "Logged in as %s\n", a.session.Role())
	fmt.Fprintf(out, "Refresh: %s\n", a.session.RefreshState())
	if next := a.session.NextRefresh(); !next.IsZero() {
		fmt.Fprintf(out, "Next refresh: %s (in %s)\n", next.Format(time.RFC3339), time.Until(next).Round(time.Second))
	}
	return nil
}

func updateCmd(withApp func(appFunc) func(*cobra.Command, []string) error) *cobra.Command {
	var firstName, lastName, email, phone string

	cmd := &cobra.Command{
		Use:   "update",
		Short: "Change profile fields",
		Args:  cobra.NoArgs,
		RunE: withApp(func(ctx context.Context, cmd *cobra.Command, a *app, _ []string) error {
			var update users.ProfileUpdate
			flags := cmd.Flags()
			if flags.Changed("first-name") {
				update.FirstName = &firstName
			}
			if flags.Changed("last-name") {
				update.LastName = &lastName
			}
			if flags.Changed("email") {
				update.Email = &email
			}
			if flags.Changed("phone") {
				update.Phone = &phone
			}

			id, err := profileID(ctx, a)
			if err != nil {
				return err
			}
			if !a.session.UpdateUser(ctx, id, update) {
				return errFailed
			}
			return nil
		}),
	}
	cmd.Flags().StringVar(&firstName, "first-name", "", "First name")
	cmd.Flags().StringVar(&lastName, "last-name", "", "Last name")
	cmd.Flags().StringVar(&email, "email", "", "Email")
	cmd.Flags().StringVar(&phone, "phone", "", "Phone number")
	return cmd
}

func profileID(ctx context.Context, a *app) (int, error) {
	if u := a.session.Snapshot().User; u != nil {
		return u.ID, nil
	}
	if u := a.session.FetchUserData(ctx); u != nil {
		return u.ID, nil
	}
	return 0, apperrors.ErrNoSession
}

func runUpload(ctx context.Context, cmd *cobra.Command, a *app, args []string) error {
	f, err := os.Open(args[0])
	if err != nil {
		return err
	}
	defer f.Close()

	name, ok := a.session.UploadImage(ctx, filepath.Base(args[0]), f)
	if !ok {
		return errFailed
	}
	fmt.Fprintln(cmd.OutOrStdout(), name)
	return nil
}

func likesCmd(withApp func(appFunc) func(*cobra.Command, []string) error) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "likes",
		Short: "Manage liked centers",
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "list",
			Short: "List liked centers stored locally",
			Args:  cobra.NoArgs,
			RunE: withApp(func(_ context.Context, cmd *cobra.Command, a *app, _ []string) error {
				w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
				fmt.Fprintln(w, "LIKE\tCENTER")
				for _, item := range a.likes.List() {
					fmt.Fprintf(w, "%d\t%d\n", item.ID, item.CenterID)
				}
				return w.Flush()
			}),
		},
		&cobra.Command{
			Use:   "sync",
			Short: "Replace the local list with the server's",
			Args:  cobra.NoArgs,
			RunE: withApp(func(ctx context.Context, cmd *cobra.Command, a *app, _ []string) error {
				if !a.likes.Sync(ctx) {
					return errFailed
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%d liked centers\n", len(a.likes.List()))
				return nil
			}),
		},
		&cobra.Command{
			Use:   "toggle <center-id>",
			Short: "Like a center, or unlike it when already liked",
			Args:  cobra.ExactArgs(1),
			RunE: withApp(func(ctx context.Context, _ *cobra.Command, a *app, args []string) error {
				id, err := strconv.Atoi(args[0])
				if err != nil {
					return fmt.Errorf("center id %q: %w", args[0], err)
				}
				if _, ok := a.likes.Toggle(ctx, id); !ok {
					return errFailed
				}
				return nil
			}),
		},
	)
	return cmd
}

func centersCmd(withApp func(appFunc) func(*cobra.Command, []string) error) *cobra.Command {
	var filter centers.Filter

	cmd := &cobra.Command{
		Use:   "centers",
		Short: "Search education centers",
		Args:  cobra.NoArgs,
		RunE: withApp(func(ctx context.Context, cmd *cobra.Command, a *app, _ []string) error {
			res := a.client.Centers(ctx)
			if !res.OK {
				return res.Err()
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tNAME\tRATING\tLIKED")
			for _, c := range filter.Apply(res.Data) {
				liked := ""
				if a.likes.IsLiked(c.ID) {
					liked = "yes"
				}
				fmt.Fprintf(w, "%d\t%s\t%.1f\t%s\n", c.ID, c.Name, c.Rating, liked)
			}
			return w.Flush()
		}),
	}
	cmd.Flags().StringVarP(&filter.Query, "query", "q", "", "Text to match against name, address and majors")
	cmd.Flags().IntSliceVar(&filter.RegionIDs, "region", nil, "Region ids, any of")
	cmd.Flags().IntSliceVar(&filter.MajorIDs, "major", nil, "Major ids, any of")
	cmd.Flags().Float64Var(&filter.MinRating, "min-rating", 0, "Minimum rating")
	return cmd
}

func runWatch(ctx context.Context, cmd *cobra.Command, a *app, _ []string) error {
	displayAppname(cmd.OutOrStdout(), a.cfg.GetAppName())

	if err := a.session.Start(ctx); err != nil {
		return err
	}

	cancel := a.session.Subscribe(func(s sessions.Session) {
		if !s.IsAuthenticated() {
			a.logger.Info().Msg("session ended")
			return
		}
		a.logger.Info().Time("next_refresh", a.session.NextRefresh()).Msg("session updated")
	})
	defer cancel()

	if addr := a.cfg.GetMetricsAddr(); addr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(a.registry, promhttp.HandlerOpts{}))
		server := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
		go listenAndServe(server)
		defer func() {
			if err := shutdown(server); err != nil {
				a.logger.Warn().Err(err).Msg("metrics server shutdown")
			}
		}()
	}

	a.logger.Info().Str("state", a.session.RefreshState().String()).Msg("watching session")
	waitForStopSignal(ctx)
	return nil
}

package main

import (
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/jrsteele09/findcourse-client/centers"
	"github.com/jrsteele09/findcourse-client/findcourse/fakeapi"
	"github.com/jrsteele09/findcourse-client/internal/config"
	"github.com/jrsteele09/findcourse-client/users"
	"github.com/spf13/cobra"
)

const demoPassword = "Secret123"

var demoUsers = []users.Profile{
	{FirstName: "Aziz", LastName: "Karimov", Email: "aziz@example.uz", Phone: "+998901234567", Role: users.RoleCEO},
	{FirstName: "Malika", LastName: "Yusupova", Email: "malika@example.uz"},
	{FirstName: "Admin", Email: "admin@example.uz", Role: users.RoleAdmin},
}

var (
	majorIT      = centers.Major{ID: 1, Name: "IT"}
	majorEnglish = centers.Major{ID: 2, Name: "English"}
	majorMaths   = centers.Major{ID: 3, Name: "Mathematics"}
)

var demoCenters = []centers.Center{
	{
		ID: 1, Name: "Najot Ta'lim", Address: "Tashkent, Chilonzor 9", RegionID: 1, Rating: 4.8,
		Majors:  []centers.Major{majorIT},
		Filials: []centers.Filial{{ID: 11, Name: "Samarkand branch", Address: "Samarkand, Registon 5", RegionID: 2}},
	},
	{ID: 2, Name: "PDP Academy", Address: "Tashkent, Yunusobod 4", RegionID: 1, Rating: 4.5, Majors: []centers.Major{majorIT, majorMaths}},
	{ID: 3, Name: "Cambridge Learning Center", Address: "Bukhara, Mustaqillik 12", RegionID: 3, Rating: 4.2, Majors: []centers.Major{majorEnglish}},
	{ID: 4, Name: "Everest School", Address: "Samarkand, Amir Temur 20", RegionID: 2, Rating: 3.9, Majors: []centers.Major{majorEnglish, majorMaths}},
}

func fakeAPICmd() *cobra.Command {
	var (
		addr      string
		accessTTL time.Duration
		noRole    bool
	)

	cmd := &cobra.Command{
		Use:   "fakeapi",
		Short: "Serve an in-memory stand-in for the findcourse API with demo data",
		Long: fmt.Sprintf(`Serves the login, token, profile, liked and centers endpoints from memory.
Point the client at it with FINDCOURSE_API_URL=http://localhost%s.
Demo accounts log in with password %q.`, ":8089", demoPassword),
		Args: cobra.NoArgs,
		RunE: guard(func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.New()
			if err != nil {
				return err
			}
			logger := newLogger(cfg, os.Stderr)

			options := []fakeapi.Option{
				fakeapi.WithAccessTTL(accessTTL),
				fakeapi.WithCenters(demoCenters),
				fakeapi.WithLogger(logger),
			}
			if noRole {
				options = append(options, fakeapi.WithoutRoleClaim())
			}
			api, err := newDemoServer(options...)
			if err != nil {
				return err
			}

			displayAppname(cmd.OutOrStdout(), cfg.GetAppName())
			for _, u := range api.Users() {
				fmt.Fprintf(cmd.OutOrStdout(), "%-20s %s\n", u.Email, u.Role)
			}

			server := &http.Server{Addr: addr, Handler: api.Handler(), ReadHeaderTimeout: 5 * time.Second}
			go listenAndServe(server)
			waitForStopSignal(cmd.Context())
			return shutdown(server)
		}),
	}
	cmd.Flags().StringVar(&addr, "addr", ":8089", "Listen address")
	cmd.Flags().DurationVar(&accessTTL, "access-ttl", 5*time.Minute, "Lifetime of issued access tokens")
	cmd.Flags().BoolVar(&noRole, "no-role-claim", false, "Leave the role claim out of access tokens")
	return cmd
}

func newDemoServer(options ...fakeapi.Option) (*fakeapi.Server, error) {
	api := fakeapi.New(options...)
	for _, u := range demoUsers {
		if _, err := api.AddUser(u, demoPassword); err != nil {
			return nil, fmt.Errorf("seed %s: %w", u.Email, err)
		}
	}
	return api, nil
}

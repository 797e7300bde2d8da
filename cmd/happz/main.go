package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/golang/glog"
	"github.com/pbaille/happz/internal/api"
	"github.com/pbaille/happz/internal/client"
	"github.com/pbaille/happz/internal/config"
	"github.com/pbaille/happz/internal/iface"
	"github.com/pbaille/happz/internal/node"
	"github.com/spf13/cobra"
)

var (
	configPath string
	dataDir    string
	adminURL   string
	appURL     string
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "happz",
		Short: "Sensemaking apps on a local conductor",
	}

	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file (YAML)")
	rootCmd.PersistentFlags().StringVar(&dataDir, "data-dir", "", "data directory (overrides config)")
	rootCmd.PersistentFlags().StringVar(&adminURL, "admin-url", "", "admin interface URL (default ws://localhost:<admin_port>)")
	rootCmd.PersistentFlags().StringVar(&appURL, "app-url", "", "app interface URL (default ws://localhost:<app_port>)")
	// glog flags: -v, -logtostderr, ...
	rootCmd.PersistentFlags().AddGoFlagSet(flag.CommandLine)

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(appsCmd())
	rootCmd.AddCommand(memezCmd())
	rootCmd.AddCommand(paperzCmd())
	rootCmd.AddCommand(smCmd())

	err := rootCmd.Execute()
	glog.Flush()
	if err != nil {
		os.Exit(1)
	}
}

func loadConfig() (*config.Config, error) {
	cfg := config.Default()
	if configPath != "" {
		var err error
		if cfg, err = config.LoadFile(configPath); err != nil {
			return nil, err
		}
	}
	if dataDir != "" {
		cfg.DataDir = dataDir
	}
	return cfg, nil
}

func dialAdmin(ctx context.Context) (*client.Admin, error) {
	url := adminURL
	if url == "" {
		cfg, err := loadConfig()
		if err != nil {
			return nil, err
		}
		url = fmt.Sprintf("ws://localhost:%d", cfg.AdminPort)
	}
	return client.DialAdmin(ctx, url)
}

// dialZome connects to the app interface and resolves appID's zome. The
// returned close function closes the connection.
func dialZome(ctx context.Context, appID string) (*client.Zome, func() error, error) {
	url := appURL
	if url == "" {
		cfg, err := loadConfig()
		if err != nil {
			return nil, nil, err
		}
		url = fmt.Sprintf("ws://localhost:%d", cfg.AppPort)
	}
	app, err := client.DialApp(ctx, url)
	if err != nil {
		return nil, nil, err
	}
	z, err := app.Zome(ctx, appID)
	if err != nil {
		app.Close()
		return nil, nil, err
	}
	return z, app.Close, nil
}

func serveCmd() *cobra.Command {
	var (
		adminPort int
		appPort   int
		httpAddr  string
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the conductor with its websocket interfaces and HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("admin-port") {
				cfg.AdminPort = adminPort
			}
			if cmd.Flags().Changed("app-port") {
				cfg.AppPort = appPort
			}
			if cmd.Flags().Changed("http") {
				cfg.HTTPAddr = httpAddr
			}
			if err := cfg.Validate(); err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			n, err := node.Open(ctx, cfg)
			if err != nil {
				return err
			}
			defer n.Close()

			ifaces := iface.New(n.Conductor)
			defer ifaces.Close()
			addr, err := ifaces.ServeAdmin(fmt.Sprintf(":%d", cfg.AdminPort))
			if err != nil {
				return err
			}
			fmt.Printf("Admin interface: %s\n", addr)
			addr, err = ifaces.AttachApp(fmt.Sprintf(":%d", cfg.AppPort))
			if err != nil {
				return err
			}
			fmt.Printf("App interface:   %s\n", addr)
			fmt.Printf("Agent:           %s\n", n.Conductor.Agent())

			errc := make(chan error, 1)
			if cfg.HTTPAddr != "" {
				fmt.Printf("HTTP API:        %s\n", cfg.HTTPAddr)
				go func() { errc <- api.New(n.Conductor, cfg.HTTPAddr).Run() }()
			}

			select {
			case <-ctx.Done():
				glog.Infof("[serve]shutting down\n")
				return nil
			case err := <-errc:
				return err
			}
		},
	}

	cmd.Flags().IntVar(&adminPort, "admin-port", 0, "admin interface port (overrides config)")
	cmd.Flags().IntVar(&appPort, "app-port", 0, "app interface port (overrides config)")
	cmd.Flags().StringVar(&httpAddr, "http", "", "HTTP API address, empty to disable (overrides config)")
	return cmd
}

func appsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "apps",
		Short: "List active apps",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := dialAdmin(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			apps, err := a.ListActiveApps(cmd.Context())
			if err != nil {
				return err
			}
			for _, id := range apps {
				fmt.Println(id)
			}
			return nil
		},
	}

	cmd.AddCommand(adminCmd("enable [app]", "Enable an app", func(id string) client.AdminCmd {
		return client.EnableApp{InstalledAppID: id}
	}))
	cmd.AddCommand(adminCmd("disable [app]", "Disable an app", func(id string) client.AdminCmd {
		return client.DisableApp{InstalledAppID: id}
	}))
	cmd.AddCommand(adminCmd("uninstall [app]", "Uninstall an app", func(id string) client.AdminCmd {
		return client.UninstallApp{InstalledAppID: id}
	}))
	return cmd
}

func adminCmd(use, short string, req func(appID string) client.AdminCmd) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := dialAdmin(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			resp, err := a.Call(cmd.Context(), req(args[0]))
			if err != nil {
				return err
			}
			if enabled, ok := resp.(client.AppEnabled); ok {
				fmt.Printf("%s  %s\n", enabled.App.InstalledAppID, enabled.App.Status)
				return nil
			}
			fmt.Println("ok")
			return nil
		},
	}
}

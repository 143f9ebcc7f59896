package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	keyrunes "github.com/keyrunes/keyrunes-go"
)

var version = "dev" // set by the linker

var cfgFile string

func main() {
	if err := newRootCmd().Execute(); err != nil {
		// Cobra has already printed the error.
		os.Exit(1)
	}
}

// newRootCmd builds the command tree. Tests call it for fresh instances with
// isolated flag state.
func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "keyrunes",
		Short: "keyrunes talks to a Keyrunes authentication service",
		Long: `keyrunes registers users, logs in, and checks group membership against a
Keyrunes service. The session token from login is kept in your user config
directory, so later commands like whoami and check run as that session.

Configuration comes from flags, KEYRUNES_* environment variables, and a
keyrunes.yaml config file, in that order of precedence.`,
		SilenceUsage:      true,
		PersistentPreRunE: func(*cobra.Command, []string) error { return initConfig() },
	}
	cmd.Version = version

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./keyrunes.yaml)")
	cmd.PersistentFlags().String("base-url", "", "Keyrunes service root, e.g. https://auth.example.com")
	cmd.PersistentFlags().String("namespace", "", `tenant namespace (default "public")`)
	cmd.PersistentFlags().Duration("timeout", 0, "per-request timeout (default 30s)")

	_ = viper.BindPFlag("base_url", cmd.PersistentFlags().Lookup("base-url"))
	_ = viper.BindPFlag("namespace", cmd.PersistentFlags().Lookup("namespace"))
	_ = viper.BindPFlag("timeout", cmd.PersistentFlags().Lookup("timeout"))

	cmd.AddCommand(
		newRegisterCmd(),
		newAdminCmd(),
		newLoginCmd(),
		newLogoutCmd(),
		newWhoamiCmd(),
		newGroupsCmd(),
		newCheckCmd(),
		newHealthCmd(),
	)

	return cmd
}

// initConfig layers configuration sources: a .env file when present, then
// KEYRUNES_* environment variables, then keyrunes.yaml.
func initConfig() error {
	_ = godotenv.Load()

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.AddConfigPath(".")
		if dir, err := os.UserConfigDir(); err == nil {
			viper.AddConfigPath(filepath.Join(dir, "keyrunes"))
		}
		viper.SetConfigType("yaml")
		viper.SetConfigName("keyrunes")
	}

	viper.SetEnvPrefix("KEYRUNES")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
	// The service's own provisioning scripts export the bare name.
	_ = viper.BindEnv("admin_key", "KEYRUNES_ADMIN_KEY", "ADMIN_KEY")

	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if cfgFile == "" && errors.As(err, &notFound) {
			return nil
		}
		return fmt.Errorf("read config: %w", err)
	}
	return nil
}

// sdkClient builds a client from the resolved configuration and installs the
// stored session token when one exists.
func sdkClient() (*keyrunes.Client, error) {
	cfg := keyrunes.Config{
		BaseURL:         viper.GetString("base_url"),
		APIKey:          viper.GetString("api_key"),
		OrganizationKey: viper.GetString("org_key"),
		Namespace:       viper.GetString("namespace"),
		Timeout:         viper.GetDuration("timeout"),
	}
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("no service address: set --base-url, %s, or base_url in keyrunes.yaml", keyrunes.EnvBaseURL)
	}

	client, err := keyrunes.NewFromConfig(cfg)
	if err != nil {
		return nil, err
	}

	if token, err := loadToken(); err == nil && token != "" {
		client.SetToken(token)
	}
	return client, nil
}

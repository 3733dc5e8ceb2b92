package cmd

import (
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"stakecardgame/apps/chain/internal/app"
	"stakecardgame/apps/chain/internal/config"
)

// Version is set at build time with -ldflags "-X .../cmd.Version=...".
var Version = "dev"

const (
	BinaryName = "scgd"
	flagHome   = "home"
)

// DefaultNodeHome is $HOME/.scgd, or .scgd when the home directory is unknown.
func DefaultNodeHome() string {
	dir, err := os.UserHomeDir()
	if err != nil {
		return "." + BinaryName
	}
	return filepath.Join(dir, "."+BinaryName)
}

// NewRootCmd creates the root command for scgd. It is called once in main.
func NewRootCmd() *cobra.Command {
	v := config.NewViper()

	rootCmd := &cobra.Command{
		Use:           BinaryName,
		Short:         "Two-player stake card game ABCI application",
		SilenceErrors: true,
		SilenceUsage:  true,
		PersistentPreRun: func(cmd *cobra.Command, _ []string) {
			cmd.SetOut(cmd.OutOrStdout())
			cmd.SetErr(cmd.ErrOrStderr())
		},
	}
	rootCmd.PersistentFlags().String(flagHome, DefaultNodeHome(), "node home directory (config under <home>/config, state under <home>/data)")

	rootCmd.AddCommand(
		newStartCmd(v),
		newInitConfigCmd(),
		newGenesisStateCmd(v),
		newVersionCmd(),
	)
	return rootCmd
}

func homeDir(cmd *cobra.Command) string {
	home, err := cmd.Flags().GetString(flagHome)
	if err != nil || home == "" {
		return DefaultNodeHome()
	}
	return home
}

// bindFlags lets command-line flags override file and env settings.
func bindFlags(cmd *cobra.Command, v *viper.Viper, keys map[string]string) error {
	for flag, key := range keys {
		if err := v.BindPFlag(key, cmd.Flags().Lookup(flag)); err != nil {
			return err
		}
	}
	return nil
}

func newInitConfigCmd() *cobra.Command {
	var overwrite bool
	c := &cobra.Command{
		Use:   "init-config",
		Short: "Write the default app.toml under <home>/config",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			path, err := config.WriteDefault(homeDir(cmd), overwrite)
			if err != nil {
				return err
			}
			cmd.Printf("wrote %s\n", path)
			return nil
		},
	}
	c.Flags().BoolVar(&overwrite, "overwrite", false, "replace an existing config file")
	return c
}

// newGenesisStateCmd prints the app_state for genesis.json built from the
// configured game params. Params only take effect through genesis.
func newGenesisStateCmd(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "genesis-state",
		Short: "Print genesis app_state carrying the configured game params",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(v, homeDir(cmd))
			if err != nil {
				return err
			}
			params, err := cfg.EngineParams()
			if err != nil {
				return err
			}
			bz, err := json.MarshalIndent(app.GenesisState{Params: &params}, "", "  ")
			if err != nil {
				return err
			}
			cmd.Println(string(bz))
			return nil
		},
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the application version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			cmd.Println(Version)
		},
	}
}

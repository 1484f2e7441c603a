package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/LaPingvino/offlinecache/internal/logging"
	"github.com/LaPingvino/offlinecache/internal/offline"
	"golang.org/x/time/rate"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "offlinectl",
	Short: "Inspect and drive an offline map resource cache",
	Long: `offlinectl opens the offline resource store used by a map-rendering
client, lets you fetch a single resource through the offline-first path,
and manages offline region downloads (create, list, delete, activate,
deactivate, status).`,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig, initLogging)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./config.yaml)")
	rootCmd.PersistentFlags().String("store-path", "offline.db", "path to the cache database file, or :memory: for an ephemeral store")
	rootCmd.PersistentFlags().String("assets-root", ".", "root directory asset:// URLs are resolved against")
	rootCmd.PersistentFlags().String("access-token", "", "access token stored on the online source (not added to requests)")
	rootCmd.PersistentFlags().Float32("pixel-ratio", 1.0, "default pixel ratio for new regions")
	rootCmd.PersistentFlags().String("log-level", "info", "log level (debug, info, warning, error)")

	bind(rootCmd, "store.path", "store-path")
	bind(rootCmd, "assets.root", "assets-root")
	bind(rootCmd, "online.access-token", "access-token")
	bind(rootCmd, "region.pixel-ratio", "pixel-ratio")
	bind(rootCmd, "log-level", "log-level")
}

func bind(c *cobra.Command, key, flag string) {
	if err := viper.BindPFlag(key, c.PersistentFlags().Lookup(flag)); err != nil {
		panic(fmt.Sprintf("failed to bind flag %q: %v", flag, err))
	}
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.AddConfigPath(".")
		viper.SetConfigType("yaml")
		viper.SetConfigName("config")
	}

	viper.SetEnvPrefix("OFFLINECTL")
	viper.AutomaticEnv()

	_ = viper.ReadInConfig() // absence of a config file is not an error
}

func initLogging() {
	level := logging.INFO
	switch strings.ToLower(viper.GetString("log-level")) {
	case "debug":
		level = logging.DEBUG
	case "info", "":
		level = logging.INFO
	case "warning", "warn":
		level = logging.WARNING
	case "error", "err":
		level = logging.ERROR
	default:
		fmt.Fprintf(os.Stderr, "unknown log level %q, defaulting to info\n", viper.GetString("log-level"))
	}
	logging.SetGlobalMinLevel(level)
}

// newClient opens the facade over the configured store/assets/online
// source. Callers are responsible for calling Close.
func newClient() (*offline.Client, error) {
	online := offline.NewOnlineFileSource(rate.NewLimiter(rate.Inf, 0))
	if token := viper.GetString("online.access-token"); token != "" {
		online.SetAccessToken(token)
	}
	return offline.NewClient(viper.GetString("store.path"), viper.GetString("assets.root"), online)
}

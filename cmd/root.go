package cmd

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/zjrosen/boardwalk/internal/config"
	"github.com/zjrosen/boardwalk/internal/log"
)

const (
	envPrefix         = "BOARDWALK"
	localConfigPath   = ".boardwalk/config.yaml"
	defaultDebugLog   = "debug.log"
	debugEnv          = envPrefix + "_DEBUG"
	debugLogPathEnv   = envPrefix + "_LOG"
	configFileDefault = "~/.config/boardwalk/config.yaml"
)

var (
	version   = "dev"
	cfgFile   string
	debugFlag bool
	cfg       config.Config

	logCleanup func()
)

var rootCmd = &cobra.Command{
	Use:   "boardwalk",
	Short: "An MCP server that renders chess positions",
	Long: `Boardwalk is a Model Context Protocol server that renders chess positions
given in FEN as board images and serves them as chess://board/{id} resources.

It also carries a small toolbox: arithmetic, image thumbnails, place
geocoding, current weather and an optional chat relay.`,
	Version:           version,
	SilenceUsage:      true,
	PersistentPreRunE: setupLogging,
	PersistentPostRun: func(*cobra.Command, []string) {
		if logCleanup != nil {
			logCleanup()
			logCleanup = nil
		}
	},
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "",
		"config file (default: "+configFileDefault+")")
	rootCmd.PersistentFlags().BoolVarP(&debugFlag, "debug", "d", false,
		"write debug logs (path from "+debugLogPathEnv+", default "+defaultDebugLog+")")
}

// setupLogging enables the file logger when --debug or BOARDWALK_DEBUG is set.
// Logs never go to stdout, which carries the stdio transport.
func setupLogging(*cobra.Command, []string) error {
	if os.Getenv(debugEnv) == "" && !debugFlag {
		return nil
	}
	logPath := os.Getenv(debugLogPathEnv)
	if logPath == "" {
		logPath = defaultDebugLog
	}
	cleanup, err := log.Init(logPath)
	if err != nil {
		return fmt.Errorf("initializing logging: %w", err)
	}
	logCleanup = cleanup
	log.Info(log.CatConfig, "boardwalk starting", "version", version, "config", viper.ConfigFileUsed())
	return nil
}

func initConfig() {
	setDefaults(viper.GetViper(), config.Defaults())

	viper.SetEnvPrefix(envPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		// Config lookup order:
		// 1. .boardwalk/config.yaml (current directory)
		// 2. ~/.config/boardwalk/config.yaml (user config)
		if _, err := os.Stat(localConfigPath); err == nil {
			viper.SetConfigFile(localConfigPath)
		} else if dir := config.DefaultConfigDir(); dir != "" {
			viper.AddConfigPath(dir)
			viper.SetConfigName("config")
			viper.SetConfigType("yaml")
		}
	}

	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			// first run: leave a starter file in the user config dir
			if dir := config.DefaultConfigDir(); dir != "" {
				defaultPath := filepath.Join(dir, "config.yaml")
				if writeErr := config.WriteDefaultConfig(defaultPath); writeErr == nil {
					viper.SetConfigFile(defaultPath)
					_ = viper.ReadInConfig()
				}
			}
		} else {
			fmt.Fprintf(os.Stderr, "warning: reading config: %v\n", err)
		}
	}

	if err := viper.Unmarshal(&cfg); err != nil {
		fmt.Fprintf(os.Stderr, "warning: decoding config: %v\n", err)
	}
}

// setDefaults registers every key so environment overrides are seen by Unmarshal.
func setDefaults(v *viper.Viper, d config.Config) {
	v.SetDefault("server.transport", d.Server.Transport)
	v.SetDefault("server.addr", d.Server.Addr)
	v.SetDefault("server.name", d.Server.Name)

	v.SetDefault("boards.dir", d.Boards.Dir)
	v.SetDefault("boards.backend", d.Boards.Backend)
	v.SetDefault("boards.default_size", d.Boards.DefaultSize)
	v.SetDefault("boards.watch", d.Boards.Watch)
	v.SetDefault("boards.s3.endpoint", d.Boards.S3.Endpoint)
	v.SetDefault("boards.s3.access_key", d.Boards.S3.AccessKey)
	v.SetDefault("boards.s3.secret_key", d.Boards.S3.SecretKey)
	v.SetDefault("boards.s3.bucket", d.Boards.S3.Bucket)
	v.SetDefault("boards.s3.prefix", d.Boards.S3.Prefix)
	v.SetDefault("boards.s3.use_ssl", d.Boards.S3.UseSSL)
	v.SetDefault("boards.s3.region", d.Boards.S3.Region)

	v.SetDefault("render.rasterizer", d.Render.Rasterizer)
	v.SetDefault("render.rsvg_path", d.Render.RsvgPath)
	v.SetDefault("render.max_size", d.Render.MaxSize)
	v.SetDefault("render.light_square", d.Render.LightSquare)
	v.SetDefault("render.dark_square", d.Render.DarkSquare)

	v.SetDefault("geocode.base_url", d.Geocode.BaseURL)
	v.SetDefault("geocode.api_key", d.Geocode.APIKey)
	v.SetDefault("geocode.requests_per_second", d.Geocode.RequestsPerSecond)
	v.SetDefault("geocode.cache_ttl", d.Geocode.CacheTTL)

	v.SetDefault("weather.base_url", d.Weather.BaseURL)
	v.SetDefault("weather.cache_ttl", d.Weather.CacheTTL)

	v.SetDefault("relay.url", d.Relay.URL)
	v.SetDefault("relay.token", d.Relay.Token)
	v.SetDefault("relay.team", d.Relay.Team)
	v.SetDefault("relay.channel", d.Relay.Channel)

	v.SetDefault("tracing.enabled", d.Tracing.Enabled)
	v.SetDefault("tracing.exporter", d.Tracing.Exporter)
	v.SetDefault("tracing.file_path", d.Tracing.FilePath)
	v.SetDefault("tracing.otlp_endpoint", d.Tracing.OTLPEndpoint)
	v.SetDefault("tracing.sample_rate", d.Tracing.SampleRate)
	v.SetDefault("tracing.service_name", d.Tracing.ServiceName)
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

// SetVersion sets the version string (called from main with ldflags)
func SetVersion(v string) {
	version = v
	rootCmd.Version = v
}

package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/voicekey/voicekey/pkg/cli"
	"github.com/voicekey/voicekey/pkg/volcasr"
)

var (
	// Global flags
	cfgFile     string
	contextName string
	outputJSON  bool

	// Global configuration
	globalConfig *cli.Config
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "voicekey",
	Short: "Push-to-talk dictation over streaming speech recognition",
	Long: `voicekey streams microphone audio to a speech recognition backend
and prints the transcription as it arrives.

Configuration is stored in ~/.voicekey/ and supports multiple contexts,
similar to kubectl's context management.

Examples:
  # Set up a new context
  voicekey config add-context myctx --app-id YOUR_APP_ID --access-key YOUR_KEY

  # Validate the credentials
  voicekey check

  # Dictate until Enter is pressed
  voicekey record

  # Review saved transcripts
  voicekey history list
`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ~/.voicekey/config.yaml)")
	rootCmd.PersistentFlags().StringVarP(&contextName, "context", "c", "", "context name to use")
	rootCmd.PersistentFlags().BoolVar(&outputJSON, "json", false, "output as JSON (for piping)")

	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(recordCmd)
	rootCmd.AddCommand(checkCmd)
	rootCmd.AddCommand(devicesCmd)
	rootCmd.AddCommand(historyCmd)
}

func initConfig() {
	var err error
	globalConfig, err = cli.LoadConfigWithPath(cfgFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error initializing config: %v\n", err)
		os.Exit(1)
	}
}

// getConfig returns the global configuration
func getConfig() *cli.Config {
	return globalConfig
}

// getContext returns the context configuration to use
func getContext() (*cli.Context, error) {
	cfg := getConfig()
	if cfg == nil {
		return nil, fmt.Errorf("configuration not initialized")
	}
	ctx, err := cfg.ResolveContext(contextName)
	if err != nil {
		if contextName == "" {
			return nil, fmt.Errorf("no context specified. Use -c flag or set a default context with 'voicekey config use-context'")
		}
		return nil, err
	}
	return ctx, nil
}

// getClient builds a recognition client from the resolved context.
func getClient() (*volcasr.Client, *cli.Context, error) {
	ctx, err := getContext()
	if err != nil {
		return nil, nil, err
	}

	opts := []volcasr.Option{volcasr.WithAccessKey(ctx.AccessKey)}
	if ctx.ResourceID != "" {
		opts = append(opts, volcasr.WithResourceID(ctx.ResourceID))
	}
	if ctx.WSURL != "" {
		opts = append(opts, volcasr.WithWebSocketURL(ctx.WSURL))
	}

	return volcasr.NewClient(ctx.AppID, opts...), ctx, nil
}

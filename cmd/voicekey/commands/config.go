package commands

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/voicekey/voicekey/pkg/cli"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage CLI configuration",
	Long: `Manage CLI configuration and contexts.

Contexts allow you to manage multiple API configurations,
similar to kubectl's context management.

Configuration is stored in ~/.voicekey/config.yaml`,
}

var configAddContextCmd = &cobra.Command{
	Use:   "add-context <name>",
	Short: "Add a new context",
	Long: `Add a new context with the specified name.

The recognition backend requires:
  - App ID: Your application ID
  - Access Key: For authentication

Example:
  voicekey config add-context myctx --app-id YOUR_APP_ID --access-key YOUR_KEY \
    --language zh-CN --device "MacBook Pro Microphone"`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		name := args[0]

		accessKey, err := cmd.Flags().GetString("access-key")
		if err != nil {
			return fmt.Errorf("failed to read 'access-key' flag: %w", err)
		}
		if accessKey == "" {
			return fmt.Errorf("--access-key is required")
		}

		appID, err := cmd.Flags().GetString("app-id")
		if err != nil {
			return fmt.Errorf("failed to read 'app-id' flag: %w", err)
		}
		if appID == "" {
			return fmt.Errorf("--app-id is required")
		}

		resourceID, _ := cmd.Flags().GetString("resource-id")
		wsURL, _ := cmd.Flags().GetString("ws-url")
		device, _ := cmd.Flags().GetString("device")
		language, _ := cmd.Flags().GetString("language")
		hotwords, _ := cmd.Flags().GetString("hotword-context")

		cfg := getConfig()
		if err := cfg.AddContext(name, &cli.Context{
			AppID:          appID,
			AccessKey:      accessKey,
			ResourceID:     resourceID,
			WSURL:          wsURL,
			Device:         device,
			Language:       language,
			HotwordContext: hotwords,
		}); err != nil {
			return err
		}

		cli.PrintSuccess("Context %q added successfully", name)
		return nil
	},
}

var configDeleteContextCmd = &cobra.Command{
	Use:   "delete-context <name>",
	Short: "Delete a context",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		name := args[0]
		cfg := getConfig()
		if err := cfg.DeleteContext(name); err != nil {
			return err
		}
		cli.PrintSuccess("Context %q deleted", name)
		return nil
	},
}

var configUseContextCmd = &cobra.Command{
	Use:   "use-context <name>",
	Short: "Set the current context",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		name := args[0]
		cfg := getConfig()
		if err := cfg.UseContext(name); err != nil {
			return err
		}
		cli.PrintSuccess("Switched to context %q", name)
		return nil
	},
}

var configCurrentContextCmd = &cobra.Command{
	Use:   "current-context",
	Short: "Show the current context",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := getConfig()
		if cfg.CurrentContext == "" {
			return fmt.Errorf("no current context set")
		}
		fmt.Println(cfg.CurrentContext)
		return nil
	},
}

var configListContextsCmd = &cobra.Command{
	Use:   "list-contexts",
	Short: "List all contexts",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := getConfig()
		names := cfg.ListContexts()
		if len(names) == 0 {
			cli.PrintInfo("No contexts configured. Add one with 'voicekey config add-context'")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "CURRENT\tNAME\tAPP ID\tACCESS KEY\tDEVICE")
		for _, name := range names {
			ctx := cfg.Contexts[name]
			current := ""
			if name == cfg.CurrentContext {
				current = "*"
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
				current, name, ctx.AppID, cli.MaskKey(ctx.AccessKey), ctx.Device)
		}
		return w.Flush()
	},
}

func init() {
	configAddContextCmd.Flags().String("app-id", "", "application ID (required)")
	configAddContextCmd.Flags().String("access-key", "", "access key (required)")
	configAddContextCmd.Flags().String("resource-id", "", "recognition resource ID")
	configAddContextCmd.Flags().String("ws-url", "", "backend WebSocket URL override")
	configAddContextCmd.Flags().String("device", "", "preferred input device name")
	configAddContextCmd.Flags().String("language", "", "recognition language hint, e.g. zh-CN")
	configAddContextCmd.Flags().String("hotword-context", "", "hot-word boosting context (JSON string)")

	configCmd.AddCommand(configAddContextCmd)
	configCmd.AddCommand(configDeleteContextCmd)
	configCmd.AddCommand(configUseContextCmd)
	configCmd.AddCommand(configCurrentContextCmd)
	configCmd.AddCommand(configListContextsCmd)
}

package commands

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/voicekey/voicekey/pkg/cli"
	"github.com/voicekey/voicekey/pkg/history"
	"github.com/voicekey/voicekey/pkg/recorder"
	"github.com/voicekey/voicekey/pkg/volcasr"
)

var recordCmd = &cobra.Command{
	Use:   "record",
	Short: "Run one push-to-talk dictation cycle",
	Long: `Record from the microphone and stream to the recognition backend.

Recording runs until Enter is pressed (or SIGINT aborts the session).
Interim results are printed as they arrive; the final transcript is
printed last and saved to history unless --no-save is given.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		client, cliCtx, err := getClient()
		if err != nil {
			return err
		}

		device, _ := cmd.Flags().GetString("device")
		if device == "" {
			device = cliCtx.Device
		}
		noSave, _ := cmd.Flags().GetBool("no-save")

		ctx, cancel := context.WithCancel(cmd.Context())
		defer cancel()

		started := time.Now()
		rec, results, err := recorder.Start(ctx, client, recorder.Options{
			Device: device,
			Stream: volcasr.StreamConfig{
				Language:       cliCtx.Language,
				EnableITN:      true,
				EnablePunc:     true,
				ShowUtterances: true,
				HotwordContext: cliCtx.HotwordContext,
			},
		})
		if err != nil {
			return err
		}

		cli.PrintInfo("Recording... press Enter to finish, Ctrl-C to abort")

		// Stop on Enter, abort on SIGINT.
		stopChan := make(chan struct{})
		go func() {
			bufio.NewReader(os.Stdin).ReadString('\n')
			close(stopChan)
		}()
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
		defer signal.Stop(sigChan)

		go func() {
			select {
			case <-stopChan:
				if err := rec.Stop(ctx); err != nil {
					cli.PrintError("stop recording: %v", err)
					cancel()
				}
			case <-sigChan:
				cli.PrintWarning("Aborted")
				cancel()
				rec.Abort()
			case <-ctx.Done():
			}
		}()

		var finalText string
		for result, err := range results {
			if err != nil {
				return err
			}
			if result.Text != "" {
				finalText = result.Text
				fmt.Printf("\r\033[K%s", result.Text)
			}
			if result.IsLast {
				fmt.Println()
				break
			}
		}

		duration := time.Since(started)
		cli.PrintSuccess("Done: %s of audio, %d chunks sent",
			cli.FormatDuration(duration), rec.Packets())

		if noSave || finalText == "" {
			return nil
		}

		store, err := history.Open(history.Options{Dir: getConfig().HistoryDir()})
		if err != nil {
			return err
		}
		defer store.Close()

		return store.Save(ctx, &history.Record{
			Text:     finalText,
			Duration: duration,
			Packets:  rec.Packets(),
		})
	},
}

func init() {
	recordCmd.Flags().String("device", "", "input device name (default: context device or system default)")
	recordCmd.Flags().Bool("no-save", false, "do not save the transcript to history")
}

package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/LaPingvino/offlinecache/internal/offline"
)

var getKind string

var getCmd = &cobra.Command{
	Use:   "get <url>",
	Short: "Fetch one resource through the offline-first path, for debugging",
	Args:  cobra.ExactArgs(1),
	RunE:  runGet,
}

func init() {
	getCmd.Flags().StringVar(&getKind, "kind", "source", "resource kind: style, source, sprite-image, sprite-json, glyphs")
	rootCmd.AddCommand(getCmd)
}

func kindResource(kind, url string) (offline.Resource, error) {
	switch kind {
	case "style":
		return offline.StyleResource(url), nil
	case "source":
		return offline.SourceResource(url), nil
	case "sprite-image":
		return offline.SpriteImageResource(url), nil
	case "sprite-json":
		return offline.SpriteJSONResource(url), nil
	case "glyphs":
		return offline.GlyphsResource(url), nil
	default:
		return offline.Resource{}, fmt.Errorf("unknown resource kind %q", kind)
	}
}

func runGet(cmd *cobra.Command, args []string) error {
	res, err := kindResource(getKind, args[0])
	if err != nil {
		return err
	}

	client, err := newClient()
	if err != nil {
		return err
	}
	defer client.Close()

	done := make(chan offline.Response, 1)
	h := client.Request(res, func(resp offline.Response) {
		select {
		case done <- resp:
		default:
		}
	})
	defer h.Cancel()

	select {
	case resp := <-done:
		if resp.Error != nil {
			return fmt.Errorf("%s: %s", resp.Error.Reason, resp.Error.Message)
		}
		fmt.Printf("%d bytes\n", len(resp.Data))
		return nil
	case <-time.After(30 * time.Second):
		return fmt.Errorf("timed out waiting for a response")
	}
}

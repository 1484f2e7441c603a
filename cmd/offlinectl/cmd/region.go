package cmd

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/LaPingvino/offlinecache/internal/offline"
)

var regionCmd = &cobra.Command{
	Use:   "region",
	Short: "Manage offline regions",
}

var regionCreateCmd = &cobra.Command{
	Use:   "create <styleURL> <south> <west> <north> <east> <minZoom> <maxZoom>",
	Short: "Create a new offline region",
	Args:  cobra.ExactArgs(7),
	RunE:  runRegionCreate,
}

var regionMetadata string

var regionListCmd = &cobra.Command{
	Use:   "list",
	Short: "List every persisted offline region",
	RunE:  runRegionList,
}

var regionDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete an offline region",
	Args:  cobra.ExactArgs(1),
	RunE:  runRegionDelete,
}

var regionActivateCmd = &cobra.Command{
	Use:   "activate <id>",
	Short: "Set a region's download state to Active",
	Args:  cobra.ExactArgs(1),
	RunE:  runRegionActivate,
}

var regionDeactivateCmd = &cobra.Command{
	Use:   "deactivate <id>",
	Short: "Set a region's download state to Inactive",
	Args:  cobra.ExactArgs(1),
	RunE:  runRegionDeactivate,
}

var regionStatusCmd = &cobra.Command{
	Use:   "status <id>",
	Short: "Print a region's current download status",
	Args:  cobra.ExactArgs(1),
	RunE:  runRegionStatus,
}

var regionWait bool

func init() {
	regionCreateCmd.Flags().StringVar(&regionMetadata, "metadata", "", "opaque JSON metadata blob to attach to the region")
	regionActivateCmd.Flags().BoolVar(&regionWait, "wait", false, "block until the region finishes downloading")

	regionCmd.AddCommand(regionCreateCmd, regionListCmd, regionDeleteCmd, regionActivateCmd, regionDeactivateCmd, regionStatusCmd)
	rootCmd.AddCommand(regionCmd)
}

func runRegionCreate(cmd *cobra.Command, args []string) error {
	styleURL := args[0]
	south, err := strconv.ParseFloat(args[1], 64)
	if err != nil {
		return fmt.Errorf("parsing south: %w", err)
	}
	west, err := strconv.ParseFloat(args[2], 64)
	if err != nil {
		return fmt.Errorf("parsing west: %w", err)
	}
	north, err := strconv.ParseFloat(args[3], 64)
	if err != nil {
		return fmt.Errorf("parsing north: %w", err)
	}
	east, err := strconv.ParseFloat(args[4], 64)
	if err != nil {
		return fmt.Errorf("parsing east: %w", err)
	}
	minZoom, err := strconv.ParseFloat(args[5], 64)
	if err != nil {
		return fmt.Errorf("parsing minZoom: %w", err)
	}
	maxZoom, err := parseZoom(args[6])
	if err != nil {
		return fmt.Errorf("parsing maxZoom: %w", err)
	}

	var metadata offline.OfflineRegionMetadata
	if regionMetadata != "" {
		if !json.Valid([]byte(regionMetadata)) {
			return fmt.Errorf("--metadata is not valid JSON")
		}
		metadata = offline.OfflineRegionMetadata(regionMetadata)
	}

	client, err := newClient()
	if err != nil {
		return err
	}
	defer client.Close()

	def := offline.OfflineRegionDefinition{
		StyleURL:   styleURL,
		Bounds:     offline.LatLngBounds{South: south, West: west, North: north, East: east},
		MinZoom:    minZoom,
		MaxZoom:    maxZoom,
		PixelRatio: float32(viper.GetFloat64("region.pixel-ratio")),
	}

	result := make(chan error, 1)
	client.CreateOfflineRegion(def, metadata, func(region offline.OfflineRegion, err error) {
		if err != nil {
			result <- err
			return
		}
		fmt.Printf("created region %d\n", region.ID)
		result <- nil
	})
	return <-result
}

// parseZoom accepts the literal "Infinity" in addition to any float,
// matching OfflineRegionDefinition.MaxZoom's tolerance for +Inf.
func parseZoom(s string) (float64, error) {
	if s == "Infinity" || s == "inf" || s == "Inf" {
		return math.Inf(1), nil
	}
	return strconv.ParseFloat(s, 64)
}

func runRegionList(cmd *cobra.Command, args []string) error {
	client, err := newClient()
	if err != nil {
		return err
	}
	defer client.Close()

	result := make(chan struct {
		regions []offline.OfflineRegion
		err     error
	}, 1)
	client.ListOfflineRegions(func(regions []offline.OfflineRegion, err error) {
		result <- struct {
			regions []offline.OfflineRegion
			err     error
		}{regions, err}
	})
	r := <-result
	if r.err != nil {
		return r.err
	}
	for _, region := range r.regions {
		fmt.Printf("%d\t%s\tzoom %.0f-%.0f\n", region.ID, region.Definition.StyleURL, region.Definition.MinZoom, region.Definition.MaxZoom)
	}
	return nil
}

func runRegionDelete(cmd *cobra.Command, args []string) error {
	id, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		return fmt.Errorf("parsing region id: %w", err)
	}

	client, err := newClient()
	if err != nil {
		return err
	}
	defer client.Close()

	result := make(chan error, 1)
	client.DeleteOfflineRegion(id, func(err error) { result <- err })
	return <-result
}

// cliObserver prints every status change and signals done once the region
// both reaches Complete() and this run requested Active.
type cliObserver struct {
	done chan struct{}
}

func (o *cliObserver) StatusChanged(s offline.OfflineRegionStatus) {
	fmt.Printf("state=%s completed=%d/%d bytes=%d\n", s.DownloadState, s.CompletedResourceCount, s.RequiredResourceCount, s.CompletedResourceSize)
	if s.DownloadState == offline.StateActive && s.Complete() && s.RequiredResourceCount > 0 {
		select {
		case o.done <- struct{}{}:
		default:
		}
	}
}

func (o *cliObserver) Error(e offline.ErrorValue) {
	fmt.Printf("error: %s: %s\n", e.Reason, e.Message)
}

func runRegionActivate(cmd *cobra.Command, args []string) error {
	id, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		return fmt.Errorf("parsing region id: %w", err)
	}

	client, err := newClient()
	if err != nil {
		return err
	}
	defer client.Close()

	obs := &cliObserver{done: make(chan struct{}, 1)}
	client.SetOfflineRegionObserver(id, obs)
	client.SetOfflineRegionDownloadState(id, offline.StateActive)

	if !regionWait {
		return nil
	}

	select {
	case <-obs.done:
		return nil
	case <-time.After(5 * time.Minute):
		return fmt.Errorf("timed out waiting for region %d to finish downloading", id)
	}
}

func runRegionDeactivate(cmd *cobra.Command, args []string) error {
	id, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		return fmt.Errorf("parsing region id: %w", err)
	}

	client, err := newClient()
	if err != nil {
		return err
	}
	defer client.Close()

	client.SetOfflineRegionDownloadState(id, offline.StateInactive)
	return nil
}

func runRegionStatus(cmd *cobra.Command, args []string) error {
	id, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		return fmt.Errorf("parsing region id: %w", err)
	}

	client, err := newClient()
	if err != nil {
		return err
	}
	defer client.Close()

	result := make(chan struct {
		status offline.OfflineRegionStatus
		err    error
	}, 1)
	client.GetOfflineRegionStatus(id, func(s offline.OfflineRegionStatus, err error) {
		result <- struct {
			status offline.OfflineRegionStatus
			err    error
		}{s, err}
	})
	r := <-result
	if r.err != nil {
		return r.err
	}
	fmt.Printf("state=%s completed=%d/%d bytes=%d\n", r.status.DownloadState, r.status.CompletedResourceCount, r.status.RequiredResourceCount, r.status.CompletedResourceSize)
	return nil
}

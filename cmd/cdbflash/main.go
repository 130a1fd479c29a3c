package main

import (
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/optomod/cdbflash/internal/bridge"
	"github.com/optomod/cdbflash/internal/cdb"
	"github.com/optomod/cdbflash/internal/config"
	"github.com/optomod/cdbflash/internal/emulator"
	"github.com/optomod/cdbflash/internal/firmware"
	"github.com/optomod/cdbflash/internal/mem"
	"github.com/optomod/cdbflash/internal/transfer"
	"github.com/optomod/cdbflash/internal/updater"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

var (
	portFlag       string
	baudFlag       int
	configFlag     string
	simulateFlag   bool
	verboseFlag    bool
	headerSizeFlag int
	modeFlag       string
	pagingFlag     string
	inlineFlag     bool
	noCommitFlag   bool
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "cdbflash",
		Short: "Update firmware on CMIS optical modules over CDB",
		Long: `cdbflash pushes, activates, and commits firmware images on pluggable
optical modules through the in-band CDB command channel, via a USB-serial
register adapter.`,
	}
	rootCmd.PersistentFlags().StringVarP(&portFlag, "port", "p", "", "Serial port of the register adapter (auto-detect if not specified)")
	rootCmd.PersistentFlags().IntVarP(&baudFlag, "baud", "b", 0, "Baud rate")
	rootCmd.PersistentFlags().StringVar(&configFlag, "config", "", "Path to a YAML config file")
	rootCmd.PersistentFlags().BoolVar(&simulateFlag, "simulate", false, "Run against an in-memory simulated module")
	rootCmd.PersistentFlags().BoolVarP(&verboseFlag, "verbose", "v", false, "Enable debug logging")

	updateCmd := &cobra.Command{
		Use:   "update <firmware.bin>",
		Short: "Download, run, and commit a firmware image",
		Long: `Run the full update lifecycle: enter the CDB password, download the
image (EPL bulk transfer when the module supports it, inline LPL otherwise),
activate it, and mark it persistent.

Use --no-commit to stop after activation and commit later with "cdbflash commit".`,
		Args: cobra.ExactArgs(1),
		RunE: runUpdate,
	}
	updateCmd.Flags().IntVar(&headerSizeFlag, "header-size", -1, "Vendor header size in bytes (default from config)")
	updateCmd.Flags().StringVar(&modeFlag, "mode", "hitless-to-inactive", "Run mode: reset-to-inactive, hitless-to-inactive, reset-to-running, hitless-to-running")
	updateCmd.Flags().StringVar(&pagingFlag, "paging", "", "EPL staging strategy: fixed or auto")
	updateCmd.Flags().BoolVar(&inlineFlag, "inline", false, "Force inline (LPL) transfers")
	updateCmd.Flags().BoolVar(&noCommitFlag, "no-commit", false, "Skip the commit step")

	infoCmd := &cobra.Command{
		Use:   "info",
		Short: "Show firmware version metadata",
		RunE:  runInfo,
	}

	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Query the module status block",
		RunE:  runStatus,
	}

	featuresCmd := &cobra.Command{
		Use:   "features",
		Short: "Show firmware-update capability advertisement",
		RunE:  runFeatures,
	}

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Run a previously downloaded image",
		RunE:  runRun,
	}
	runCmd.Flags().StringVar(&modeFlag, "mode", "hitless-to-inactive", "Run mode: reset-to-inactive, hitless-to-inactive, reset-to-running, hitless-to-running")

	commitCmd := &cobra.Command{
		Use:   "commit",
		Short: "Commit the running image",
		RunE:  runCommit,
	}

	abortCmd := &cobra.Command{
		Use:   "abort",
		Short: "Abort an in-flight firmware download",
		RunE:  runAbort,
	}

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List available serial ports",
		RunE:  runList,
	}

	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Show version info",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("cdbflash %s\n", version)
			fmt.Printf("  commit: %s\n", commit)
			fmt.Printf("  built:  %s\n", date)
		},
	}

	rootCmd.AddCommand(updateCmd, infoCmd, statusCmd, featuresCmd, runCmd, commitCmd, abortCmd, listCmd, versionCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func loadConfig() (*config.Config, error) {
	if configFlag == "" {
		return config.Default(), nil
	}
	return config.Load(configFlag)
}

func newLogger() zerolog.Logger {
	level := zerolog.InfoLevel
	if verboseFlag {
		level = zerolog.DebugLevel
	}
	return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).
		Level(level).
		With().Timestamp().Logger()
}

// openDevice resolves the register device: the emulator under --simulate,
// otherwise the serial bridge on the selected or probed port.
func openDevice(cfg *config.Config) (mem.Device, func() error, error) {
	if simulateFlag {
		return emulator.New(), func() error { return nil }, nil
	}

	baud := cfg.Transport.Baud
	if baudFlag > 0 {
		baud = baudFlag
	}
	timeout := time.Duration(cfg.Transport.TimeoutMs) * time.Millisecond

	portName := portFlag
	if portName == "" {
		portName = cfg.Transport.Port
	}
	if portName == "" {
		fmt.Println("Detecting register adapter...")
		name, err := bridge.Probe(baud, timeout)
		if err != nil {
			return nil, nil, fmt.Errorf("adapter detection failed: %w", err)
		}
		portName = name
		fmt.Printf("Found adapter on %s\n", portName)
	}

	b, err := bridge.Open(portName, baud, timeout)
	if err != nil {
		return nil, nil, err
	}
	return b, b.Close, nil
}

func newUpdater(dev mem.Device, cfg *config.Config, logger zerolog.Logger, extra ...updater.Option) *updater.Updater {
	opts := []updater.Option{
		updater.WithRetries(cfg.Update.Retries),
		updater.WithSettleDelay(time.Duration(cfg.Update.SettleMs) * time.Millisecond),
		updater.WithPollInterval(time.Duration(cfg.Update.PollIntervalMs) * time.Millisecond),
		updater.WithMaxPolls(cfg.Update.MaxPolls),
		updater.WithLogger(logger),
	}
	if cfg.Update.Password != 0 {
		opts = append(opts, updater.WithPassword(cfg.Update.Password))
	}
	if cfg.Update.Inline {
		opts = append(opts, updater.WithInlineTransfer())
	}
	if cfg.Update.Paging == "auto" {
		opts = append(opts, updater.WithPaging(transfer.AutoPaging))
	}
	opts = append(opts, extra...)
	return updater.New(dev, opts...)
}

func parseRunMode(s string) (cdb.RunMode, error) {
	switch s {
	case "reset-to-inactive":
		return cdb.RunResetInactive, nil
	case "hitless-to-inactive":
		return cdb.RunHitlessInactive, nil
	case "reset-to-running":
		return cdb.RunResetRunning, nil
	case "hitless-to-running":
		return cdb.RunHitlessRunning, nil
	default:
		return 0, fmt.Errorf("unknown run mode %q", s)
	}
}

func runUpdate(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	mode, err := parseRunMode(modeFlag)
	if err != nil {
		return err
	}
	if pagingFlag != "" {
		if pagingFlag != "fixed" && pagingFlag != "auto" {
			return fmt.Errorf("unknown paging strategy %q", pagingFlag)
		}
		cfg.Update.Paging = pagingFlag
	}
	if inlineFlag {
		cfg.Update.Inline = true
	}

	headerSize := cfg.Update.HeaderSize
	if headerSizeFlag >= 0 {
		headerSize = headerSizeFlag
	}

	img, err := firmware.Load(args[0], headerSize)
	if err != nil {
		return err
	}
	fmt.Printf("Firmware: %s (%d payload bytes, %d-byte header)\n", args[0], img.Size(), len(img.Header))

	dev, closeDev, err := openDevice(cfg)
	if err != nil {
		return err
	}
	defer closeDev()

	bar := progressbar.NewOptions(int(img.Size()),
		progressbar.OptionSetDescription("Downloading"),
		progressbar.OptionSetWidth(40),
		progressbar.OptionShowBytes(true),
		progressbar.OptionSetPredictTime(true),
		progressbar.OptionThrottle(100),
		progressbar.OptionClearOnFinish(),
	)

	u := newUpdater(dev, cfg, newLogger(), updater.WithProgress(func(written, total int) {
		bar.Set(written)
	}))

	if err := u.EnterPassword(); err != nil {
		return err
	}

	if info, err := u.FirmwareInfo(); err == nil {
		if active, ok := info.Active(); ok {
			fmt.Printf("Active firmware: %s\n", active)
		}
	}

	if err := u.Download(img); err != nil {
		return err
	}
	bar.Finish()
	fmt.Println("\nDownload complete")

	fmt.Printf("Running image (%s)...\n", mode)
	if err := u.RunImage(mode); err != nil {
		return err
	}

	if noCommitFlag {
		fmt.Println("Skipping commit (--no-commit). Commit later with: cdbflash commit")
		return nil
	}
	if err := u.CommitImage(); err != nil {
		return err
	}
	fmt.Println("Image committed. Done!")
	return nil
}

func runInfo(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	dev, closeDev, err := openDevice(cfg)
	if err != nil {
		return err
	}
	defer closeDev()

	u := newUpdater(dev, cfg, newLogger())
	if err := u.EnterPassword(); err != nil {
		return err
	}
	info, err := u.FirmwareInfo()
	if err != nil {
		return err
	}

	fmt.Printf("Image A: %s (running=%t committed=%t)\n", info.ImageA, info.ImageARunning, info.ImageACommitted)
	if info.ImageBValid {
		fmt.Printf("Image B: %s (running=%t committed=%t)\n", info.ImageB, info.ImageBRunning, info.ImageBCommitted)
	}
	return nil
}

func runStatus(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	dev, closeDev, err := openDevice(cfg)
	if err != nil {
		return err
	}
	defer closeDev()

	u := newUpdater(dev, cfg, newLogger())
	rpl, err := u.QueryStatus()
	if err != nil {
		return err
	}
	fmt.Printf("Status reply (%d bytes): % X\n", rpl.Length, rpl.Payload)
	return nil
}

func runFeatures(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	dev, closeDev, err := openDevice(cfg)
	if err != nil {
		return err
	}
	defer closeDev()

	u := newUpdater(dev, cfg, newLogger())
	if err := u.EnterPassword(); err != nil {
		return err
	}
	feats, err := u.FirmwareFeatures()
	if err != nil {
		return err
	}
	fmt.Printf("LPL download:  %t\n", feats.LPLSupported)
	fmt.Printf("EPL download:  %t\n", feats.EPLSupported)
	fmt.Printf("Header size:   %d bytes\n", feats.StartHeaderSize)
	return nil
}

func runRun(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	mode, err := parseRunMode(modeFlag)
	if err != nil {
		return err
	}
	dev, closeDev, err := openDevice(cfg)
	if err != nil {
		return err
	}
	defer closeDev()

	u := newUpdater(dev, cfg, newLogger())
	if err := u.EnterPassword(); err != nil {
		return err
	}
	if err := u.Resume(updater.StateDownloadComplete); err != nil {
		return err
	}
	if err := u.RunImage(mode); err != nil {
		return err
	}
	fmt.Printf("Image running (%s)\n", mode)
	return nil
}

func runCommit(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	dev, closeDev, err := openDevice(cfg)
	if err != nil {
		return err
	}
	defer closeDev()

	u := newUpdater(dev, cfg, newLogger())
	if err := u.EnterPassword(); err != nil {
		return err
	}
	if err := u.Resume(updater.StateRunning); err != nil {
		return err
	}
	if err := u.CommitImage(); err != nil {
		return err
	}
	fmt.Println("Image committed")
	return nil
}

func runAbort(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	dev, closeDev, err := openDevice(cfg)
	if err != nil {
		return err
	}
	defer closeDev()

	u := newUpdater(dev, cfg, newLogger())
	if err := u.EnterPassword(); err != nil {
		return err
	}
	if err := u.Resume(updater.StateDownloading); err != nil {
		return err
	}
	if err := u.AbortDownload(); err != nil {
		return err
	}
	fmt.Println("Download aborted")
	return nil
}

func runList(cmd *cobra.Command, args []string) error {
	ports, err := bridge.ListPorts()
	if err != nil {
		return err
	}
	if len(ports) == 0 {
		fmt.Println("No serial ports found")
		return nil
	}
	fmt.Println("Available serial ports:")
	for _, p := range ports {
		fmt.Printf("  %s\n", p)
	}
	return nil
}

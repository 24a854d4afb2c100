package main

import (
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/bigbag/i2cboot/internal/config"
	"github.com/bigbag/i2cboot/internal/detect"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

var (
	cfg    = config.Default()
	logger = logrus.New()

	noEnterFlag bool
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	cfg = config.Default()
	noEnterFlag = false

	rootCmd := &cobra.Command{
		Use:   "i2cboot",
		Short: "Program STM32 co-processors through the I2C ROM bootloader",
		Long: `i2cboot talks to the STM32 system-memory bootloader over I2C.

It restarts the chip into the bootloader by holding BOOT0 high across a
reset pulse on NRST, then reads, erases and writes flash with the
no-stretch commands of the I2C protocol.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg.ApplyEnv(cmd.Flags(), nil)
			level, err := cfg.Level()
			if err != nil {
				return err
			}
			logger.SetLevel(level)
			return nil
		},
	}

	logger.SetOutput(os.Stderr)
	logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	cfg.BindFlags(rootCmd.PersistentFlags())
	rootCmd.PersistentFlags().BoolVar(&noEnterFlag, "no-enter", false, "Chip already runs the bootloader, skip the reset sequence")

	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Show version info",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("i2cboot %s\n", version)
			fmt.Printf("  commit: %s\n", commit)
			fmt.Printf("  built:  %s\n", date)
		},
	}

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List I2C buses and serial ports",
		RunE:  runList,
	}

	rootCmd.AddCommand(
		newInfoCmd(),
		newEraseCmd(),
		newReadCmd(),
		newWriteCmd(),
		newRunCmd(),
		newProtectCmd(),
		newUnprotectCmd(),
		newResetCmd(),
		newEnterCmd(),
		listCmd,
		versionCmd,
	)

	return rootCmd
}

func runList(cmd *cobra.Command, args []string) error {
	report, err := detect.Scan()
	if err != nil {
		return err
	}

	if report.Empty() {
		fmt.Println("No I2C buses or serial ports found")
		return nil
	}

	if len(report.Buses) > 0 {
		fmt.Println("I2C buses:")
		for _, b := range report.Buses {
			fmt.Printf("  %s\n", b)
		}
	}

	if len(report.Ports) > 0 {
		fmt.Println("Serial ports:")
		for _, p := range report.Ports {
			fmt.Printf("  %s\n", detect.Describe(p))
		}
	}

	return nil
}

package main

import (
	"encoding/hex"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/bigbag/i2cboot/internal/config"
	"github.com/bigbag/i2cboot/internal/firmware"
	"github.com/bigbag/i2cboot/internal/flasher"
	"github.com/bigbag/i2cboot/internal/protocol"
)

// withFlasher opens the adapter, brings up the bootloader and runs fn.
func withFlasher(fn func(s *session, f *flasher.Flasher, info *flasher.Info) error) error {
	s, err := openSession(cfg, logger)
	if err != nil {
		return err
	}
	defer s.Close()

	f := flasher.New(s.driver)
	f.SetLogger(logger)

	var info *flasher.Info
	if noEnterFlag {
		info, err = f.Probe()
	} else {
		fmt.Println("Entering bootloader...")
		info, err = f.Connect()
	}
	if err != nil {
		return err
	}
	fmt.Printf("Bootloader %s (PID 0x%04X)\n", info.Version, info.ProductID)

	return fn(s, f, info)
}

func newBar(total int, description string) *progressbar.ProgressBar {
	return progressbar.NewOptions(total,
		progressbar.OptionSetDescription(description),
		progressbar.OptionSetWidth(40),
		progressbar.OptionShowBytes(true),
		progressbar.OptionSetPredictTime(true),
		progressbar.OptionThrottle(100*time.Millisecond),
		progressbar.OptionClearOnFinish(),
	)
}

func newInfoCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "info",
		Short: "Show bootloader info",
		Long:  "Enter the bootloader and print its version, product ID and supported commands.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withFlasher(func(s *session, f *flasher.Flasher, info *flasher.Info) error {
				fmt.Printf("  Version:  %s (0x%02X)\n", info.Version, info.Version.Version)
				if info.ProductID != 0 {
					fmt.Printf("  PID:      0x%04X\n", info.ProductID)
				}
				names := make([]string, 0, len(info.Version.Commands))
				for _, c := range info.Version.Commands {
					names = append(names, c.String())
				}
				fmt.Printf("  Commands: %s\n", strings.Join(names, " "))
				return nil
			})
		},
	}
}

func newEraseCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "erase",
		Short: "Mass-erase flash",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withFlasher(func(s *session, f *flasher.Flasher, info *flasher.Info) error {
				fmt.Println("Erasing...")
				if err := f.Erase(); err != nil {
					return err
				}
				fmt.Println("Done!")
				return nil
			})
		},
	}
}

func newReadCmd() *cobra.Command {
	var outputFlag string

	cmd := &cobra.Command{
		Use:   "read <address> <length>",
		Short: "Read memory",
		Long: `Read memory and print a hex dump, or save it with -o.
Output files ending in .hex are written as Intel HEX, anything else raw.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			address, err := config.ParseAddress(args[0])
			if err != nil {
				return err
			}
			length, err := strconv.ParseUint(args[1], 0, 32)
			if err != nil || length == 0 {
				return fmt.Errorf("invalid length %q", args[1])
			}

			return withFlasher(func(s *session, f *flasher.Flasher, info *flasher.Info) error {
				bar := newBar(int(length), "Reading")
				f.SetProgressCallback(func(current, total int) {
					bar.ChangeMax(total)
					bar.Set(current)
				})

				data, err := f.ReadMemory(address, int(length))
				bar.Finish()
				if err != nil {
					return err
				}

				switch {
				case outputFlag == "":
					fmt.Print(hex.Dump(data))
				case firmware.IsHex(outputFlag):
					region := firmware.Region{Address: address, Data: data}
					if err := firmware.DumpHex(outputFlag, []firmware.Region{region}); err != nil {
						return err
					}
				default:
					if err := os.WriteFile(outputFlag, data, 0o644); err != nil {
						return fmt.Errorf("failed to write %s: %w", outputFlag, err)
					}
				}

				fmt.Printf("Read %d bytes at 0x%08X (crc %04X)\n", len(data), address, firmware.CRC16(data))
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&outputFlag, "output", "o", "", "Output file")
	return cmd
}

func newWriteCmd() *cobra.Command {
	var (
		addressFlag string
		verifyFlag  bool
		eraseFlag   bool
		runFlag     bool
	)

	cmd := &cobra.Command{
		Use:   "write <image>",
		Short: "Program an image",
		Long: `Program a raw binary or Intel HEX image into flash.

Raw binaries are placed at --address. HEX files carry their own addresses.
Flash is mass-erased first unless --erase=false.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			base, err := config.ParseAddress(addressFlag)
			if err != nil {
				return err
			}

			img, err := firmware.Load(args[0], base)
			if err != nil {
				return err
			}
			fmt.Printf("Image: %s (%d bytes in %d regions, crc %04X)\n",
				args[0], img.Size(), len(img.Regions), img.Checksum())

			return withFlasher(func(s *session, f *flasher.Flasher, info *flasher.Info) error {
				if eraseFlag {
					fmt.Println("Erasing...")
					if err := f.Erase(); err != nil {
						return err
					}
				}

				bar := newBar(img.Size(), "Flashing")
				f.SetProgressCallback(func(current, total int) {
					bar.ChangeMax(total)
					bar.Set(current)
				})

				if err := f.FlashMultiple(img.Regions, verifyFlag); err != nil {
					return err
				}
				bar.Finish()
				fmt.Println("\nFlash complete!")

				if runFlag {
					entry := img.Regions[0].Address
					fmt.Printf("Starting at 0x%08X...\n", entry)
					return f.Run(entry)
				}

				fmt.Println("Resetting device...")
				if err := f.Reboot(); err != nil {
					fmt.Printf("Warning: reset failed: %v\n", err)
				}
				fmt.Println("Done!")
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&addressFlag, "address", "a", fmt.Sprintf("0x%08X", protocol.FlashStart), "Load address for raw binaries")
	cmd.Flags().BoolVar(&verifyFlag, "verify", true, "Verify after flashing")
	cmd.Flags().BoolVar(&eraseFlag, "erase", true, "Mass-erase before flashing")
	cmd.Flags().BoolVar(&runFlag, "run", false, "Jump to the image instead of resetting")
	return cmd
}

func newRunCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run <address>",
		Short: "Jump to the vector table at address",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			address, err := config.ParseAddress(args[0])
			if err != nil {
				return err
			}
			return withFlasher(func(s *session, f *flasher.Flasher, info *flasher.Info) error {
				return f.Run(address)
			})
		},
	}
}

func newProtectCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "protect",
		Short: "Enable readout protection",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withFlasher(func(s *session, f *flasher.Flasher, info *flasher.Info) error {
				status, err := s.driver.ReadoutProtect()
				if err != nil {
					return err
				}
				return reportStatus("readout protect", status)
			})
		},
	}
}

func newUnprotectCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "unprotect",
		Short: "Disable readout protection (erases flash)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withFlasher(func(s *session, f *flasher.Flasher, info *flasher.Info) error {
				status, err := s.driver.ReadoutUnprotect()
				if err != nil {
					return err
				}
				return reportStatus("readout unprotect", status)
			})
		},
	}
}

func reportStatus(op string, status protocol.Status) error {
	if status != protocol.Ack {
		return fmt.Errorf("%s: %s", op, status)
	}
	fmt.Printf("%s: %s\n", op, status)
	return nil
}

func newResetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reset",
		Short: "Reset into the application",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openSession(cfg, logger)
			if err != nil {
				return err
			}
			defer s.Close()
			return s.driver.Reset()
		},
	}
}

func newEnterCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "enter",
		Short: "Restart into the bootloader and leave it there",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openSession(cfg, logger)
			if err != nil {
				return err
			}
			defer s.Close()
			return s.driver.EnterBootloader()
		},
	}
}

// ============================================================================
// TheSquid CLI - Squidlet Command
// ============================================================================
//
// Package: internal/cli
// File: squidlet.go
// Purpose: Cobra front-end for the executor executable
//
// Usage:
//   squidlet [--ip <a.b.c.d>] [--port <n>] [--stream <stdout|path>] [--temp]
//
// Without --port the squidlet probes 9000..9999 and binds the first free
// port. --stream selects the log destination; omitted means silent. The
// process runs until SIGINT.
//
// ============================================================================

package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/thesquid/thesquid/internal/logging"
	"github.com/thesquid/thesquid/internal/sensors"
	"github.com/thesquid/thesquid/internal/squidlet"
)

// Squidlet exit codes
const (
	ExitSquidletCreateFailed = 2
	ExitSquidletStreamFailed = 3
)

// BuildSquidletCLI assembles the squidlet root command
func BuildSquidletCLI() *cobra.Command {
	var (
		ip     string
		port   int
		stream string
		temp   bool
	)

	cmd := &cobra.Command{
		Use:   "squidlet",
		Short: "TheSquid executor: run dispatched tasks one at a time",
		Long: `Squidlet listens on a TCP port, executes one task at a time and
streams the result back to the squad. One process is one worker slot;
run several processes for parallelism.`,
		Version:       "1.0.0",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSquidlet(ip, port, stream, temp)
		},
	}

	cmd.Flags().StringVar(&ip, "ip", "", "IPv4 address to bind (default all interfaces)")
	cmd.Flags().IntVar(&port, "port", 0, "TCP port to bind (default: probe 9000..9999)")
	cmd.Flags().StringVar(&stream, "stream", "", "log destination: stdout or a file path (default silent)")
	cmd.Flags().BoolVar(&temp, "temp", false, "print the chassis temperature and continue")

	return cmd
}

func runSquidlet(ip string, port int, stream string, temp bool) error {
	logger, err := logging.New(stream, false)
	if err != nil {
		return exitErr(ExitSquidletStreamFailed, err)
	}
	defer logger.Sync()

	s, err := squidlet.New(ip, port, logger)
	if err != nil {
		return exitErr(ExitSquidletCreateFailed, err)
	}

	// Identity line: <pid> <hostname> <ip>:<port>
	fmt.Printf("squidlet: %s\n", s.Info())

	if temp {
		fmt.Printf("squidlet: temperature: %s\n", sensors.Temperature())
	}

	s.InstallSignalHandlers()
	if err := s.Run(); err != nil {
		return exitErr(ExitSquidletCreateFailed, err)
	}

	fmt.Println("squidlet: ended")
	return nil
}

// fleetdb is a maintenance tool for fleet database files: inspect the
// header, run the aggregate stats scan, and export or restore compressed
// snapshots.
//
// Usage:
//
//	fleetdb inspect  <db-file>
//	fleetdb stats    <db-file>
//	fleetdb snapshot <db-file> <snapshot-file> [--level N]
//	fleetdb restore  <snapshot-file> <db-file>
package main

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/pflag"

	"github.com/hupe1980/fleetdb"
	"github.com/hupe1980/fleetdb/record"
	"github.com/hupe1980/fleetdb/snapshot"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	flagSet := pflag.NewFlagSet("fleetdb", pflag.ContinueOnError)
	level := flagSet.Int("level", 3, "zstd compression level for snapshot (1-22)")
	verbose := flagSet.BoolP("verbose", "v", false, "enable debug logging")
	flagSet.BoolP("help", "h", false, "show help")

	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if err == pflag.ErrHelp {
			printHelp(flagSet)
			return nil
		}
		return err
	}
	if help, _ := flagSet.GetBool("help"); help {
		printHelp(flagSet)
		return nil
	}

	args := flagSet.Args()
	if len(args) < 2 {
		printHelp(flagSet)
		return fmt.Errorf("missing command or file argument")
	}

	var logOpts []fleetdb.Option
	if *verbose {
		logOpts = append(logOpts, fleetdb.WithLogger(fleetdb.NewTextLogger(slog.LevelDebug)))
	} else {
		logOpts = append(logOpts, fleetdb.WithLogger(fleetdb.NoopLogger()))
	}

	switch args[0] {
	case "inspect":
		return inspect(args[1], logOpts)
	case "stats":
		return stats(args[1], logOpts)
	case "snapshot":
		if len(args) < 3 {
			return fmt.Errorf("snapshot needs <db-file> <snapshot-file>")
		}
		return snapshot.Export(args[2], args[1], args[1]+".budgets.json",
			snapshot.WithCompressionLevel(*level))
	case "restore":
		if len(args) < 3 {
			return fmt.Errorf("restore needs <snapshot-file> <db-file>")
		}
		return snapshot.Restore(args[1], args[2], args[2]+".budgets.json")
	default:
		printHelp(flagSet)
		return fmt.Errorf("unknown command %q", args[0])
	}
}

func inspect(path string, opts []fleetdb.Option) error {
	db, err := fleetdb.Open(path, opts...)
	if err != nil {
		return err
	}
	defer db.Close()

	h := db.Store().Header()
	fmt.Printf("magic:        %s\n", record.Text(h.Magic[:]))
	fmt.Printf("version:      %d.%d\n", h.Version>>16, h.Version&0xFFFF)
	fmt.Printf("size:         %d bytes\n", h.TotalSize)
	fmt.Printf("created:      %s\n", time.Unix(int64(h.CreatedTime), 0).UTC().Format(time.RFC3339))
	fmt.Printf("modified:     %s\n", time.Unix(int64(h.Modified), 0).UTC().Format(time.RFC3339))
	fmt.Printf("creator:      %s\n", record.Text(h.CreatorInfo[:]))
	fmt.Printf("capacities:   drivers=%d vehicles=%d trips=%d\n",
		h.MaxDrivers, h.MaxVehicles, h.MaxTrips)
	fmt.Printf("offsets:      driver=%d vehicle=%d trip=%d maintenance=%d expense=%d document=%d incident=%d\n",
		h.DriverTableOffset, h.VehicleTableOffset, h.TripTableOffset,
		h.MaintenanceTableOffset, h.ExpenseTableOffset,
		h.DocumentTableOffset, h.IncidentTableOffset)
	return nil
}

func stats(path string, opts []fleetdb.Option) error {
	db, err := fleetdb.Open(path, opts...)
	if err != nil {
		return err
	}
	defer db.Close()

	s := db.Stats()
	fmt.Printf("drivers:      %d (%d active)\n", s.TotalDrivers, s.ActiveDrivers)
	fmt.Printf("vehicles:     %d\n", s.TotalVehicles)
	fmt.Printf("trips:        %d\n", s.TotalTrips)
	fmt.Printf("distance:     %.1f km\n", s.TotalDistance)
	fmt.Printf("expenses:     %d\n", s.TotalExpenses)
	fmt.Printf("maintenance:  %d\n", s.TotalMaintenanceRecords)
	fmt.Printf("documents:    %d\n", s.TotalDocuments)
	fmt.Printf("incidents:    %d\n", s.TotalIncidents)
	fmt.Printf("file size:    %d bytes\n", s.DatabaseSize)
	return nil
}

func printHelp(flagSet *pflag.FlagSet) {
	fmt.Println(`fleetdb - fleet database maintenance tool

Commands:
  inspect  <db-file>                   print the file header
  stats    <db-file>                   run the aggregate stats scan
  snapshot <db-file> <snapshot-file>   export a compressed snapshot
  restore  <snapshot-file> <db-file>   restore from a snapshot

Flags:`)
	fmt.Println(flagSet.FlagUsages())
}

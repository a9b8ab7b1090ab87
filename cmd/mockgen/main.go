package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"amr-charts/cmd/mockgen/engine"
)

func main() {
	scenario := flag.String("scenario", "typical", "Scenario to generate: typical, leaky, drift")
	outDir := flag.String("out", "./.data", "Output directory for mock files")
	id := flag.String("school", "mock-primary", "School id used for the file names")
	days := flag.Int("days", 730, "Number of days of readings ending yesterday")
	seed := flag.Uint64("seed", uint64(time.Now().UnixNano()), "Random seed")
	storage := flag.Bool("storage-heaters", false, "Add a storage heater meter")
	flag.Parse()

	cfg := engine.GeneratorConfig{
		SchoolID:       *id,
		Scenario:       *scenario,
		Days:           *days,
		Now:            time.Now(),
		Seed:           *seed,
		StorageHeaters: *storage,
	}

	fmt.Printf("Generating scenario '%s' (School: %s, Days: %d) to %s...\n", cfg.Scenario, cfg.SchoolID, cfg.Days, *outDir)

	ds := engine.Generate(cfg)
	if err := engine.Save(*outDir, ds); err != nil {
		fmt.Printf("Failed to save mock data: %v\n", err)
		os.Exit(1)
	}

	fmt.Println("Done.")
}

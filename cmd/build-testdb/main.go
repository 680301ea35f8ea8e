package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/wbrown/janus-aql/aql/storage"
)

func main() {
	configType := flag.String("config", "default", "Config type: default, medium, or large")
	output := flag.String("o", "", "output path (overrides the config's)")
	flag.Parse()

	var config storage.TestDataConfig
	switch *configType {
	case "default":
		config = storage.DefaultOHLCConfig()
	case "medium":
		config = storage.MediumOHLCConfig()
	case "large":
		config = storage.LargeOHLCConfig()
	default:
		fmt.Fprintf(os.Stderr, "Unknown config type: %s (use 'default', 'medium', or 'large')\n", *configType)
		os.Exit(1)
	}
	if *output != "" {
		config.OutputPath = *output
	}

	fmt.Printf("Building test store: %s\n", config.OutputPath)
	fmt.Printf("  Symbols: %d\n", config.NumSymbols)
	fmt.Printf("  Days: %d\n", config.NumDays)
	fmt.Printf("  Bars/day: %d\n", config.BarsPerDay)
	fmt.Printf("  Total bars: %d\n", config.NumSymbols*config.NumDays*config.BarsPerDay)
	fmt.Println()

	s, err := storage.BuildTestStore(config, func(written, total int) {
		fmt.Printf("  Written %d/%d bars (%.1f%%)\n", written, total, float64(written)/float64(total)*100)
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to build store: %v\n", err)
		os.Exit(1)
	}
	defer s.Close()

	n, err := s.Count(config.Collection)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to count bars: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("\nDone: %d documents in collection %q. Query it with:\n", n, config.Collection)
	fmt.Printf("   aql -db %s -plan plan.yaml\n", config.OutputPath)
}

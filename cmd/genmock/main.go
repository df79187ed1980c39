// Command genmock writes deterministic fixtures in the layout of every
// mortality source so the pipeline can run offline. Point HISTORICAL_URL,
// PROVISIONAL_URL, ARCHIVED_URL and LOCAL_FILE at the printed paths.
//
// Usage:
//
//	go run ./cmd/genmock -out data/mock [-xlsx]
package main

import (
	"flag"
	"fmt"
	"log"

	"github.com/couchcryptid/mortality-etl/internal/mockdata"
)

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	out := flag.String("out", "", "directory to write the fixtures to")
	xlsx := flag.Bool("xlsx", false, "write the local state file as an xlsx workbook")
	flag.Parse()

	if *out == "" {
		flag.Usage()
		return fmt.Errorf("missing required flag: -out")
	}

	files, err := mockdata.Write(*out, *xlsx)
	if err != nil {
		return fmt.Errorf("writing fixtures: %w", err)
	}

	log.Printf("HISTORICAL_URL=%s", files.Historical)
	log.Printf("PROVISIONAL_URL=%s", files.Provisional)
	log.Printf("ARCHIVED_URL=%s", files.Archived)
	log.Printf("LOCAL_FILE=%s", files.LocalFile)
	log.Printf("coverage: %d-%d, national series for %d derived from state totals",
		mockdata.FirstYear, mockdata.LastYear, mockdata.LocalFileYear)
	return nil
}

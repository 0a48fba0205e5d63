package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"

	xsd "github.com/schemakit/go-xsd"
)

func main() {
	var (
		testSuiteDir  = flag.String("suite", "/tmp/xsd-test-suite", "Path to W3C XSD test suite")
		pattern       = flag.String("pattern", "msMeta/*_w3c.xml", "Pattern for test metadata files")
		verbose       = flag.Bool("verbose", false, "Print detailed test results")
		outputFile    = flag.String("output", "", "Output file for report (default: stdout)")
		testFile      = flag.String("file", "", "Run a specific test metadata file")
		autoDownload  = flag.Bool("auto-download", false, "Automatically download W3C test suite if not found")
		forceDownload = flag.Bool("force-download", false, "Force re-download even if cached (implies --auto-download)")
	)
	flag.Parse()

	if *forceDownload {
		*autoDownload = true
		os.Remove(filepath.Join(*testSuiteDir, downloadMarker))
	}

	downloaded, err := ensureTestSuite(*testSuiteDir, *autoDownload)
	if err != nil {
		log.Fatalf("%v", err)
	}
	if downloaded {
		fmt.Printf("Note: Downloaded test suite is cached for %v\n\n", cacheDuration)
	}

	runner := xsd.NewW3CTestRunner(*testSuiteDir)
	runner.Verbose = *verbose

	if *testFile != "" {
		fmt.Printf("Running test file: %s\n", *testFile)
		if err := runner.RunMetadataFile(*testFile); err != nil {
			log.Fatalf("Failed to run test file: %v", err)
		}
	} else {
		fmt.Printf("Running W3C XSD conformance tests from: %s (pattern %s)\n", *testSuiteDir, *pattern)
		if err := runner.RunAllTests(*pattern); err != nil {
			log.Fatalf("Failed to run tests: %v", err)
		}
	}

	report := runner.GenerateReport()
	if *outputFile != "" {
		if err := os.WriteFile(*outputFile, []byte(report), 0644); err != nil {
			log.Fatalf("Failed to write report: %v", err)
		}
		fmt.Printf("Report written to: %s\n", *outputFile)
	} else {
		fmt.Println("\n" + report)
	}

	for _, result := range runner.Results {
		if !result.Passed {
			os.Exit(1)
		}
	}
}

package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/agentflare-ai/go-xmldom"
	xsd "github.com/schemakit/go-xsd"
)

func main() {
	var (
		mode        = flag.String("mode", "strict", "Validation mode: strict, lax or skip")
		color       = flag.Bool("color", true, "Colorize diagnostics")
		checkSchema = flag.Bool("check-schema", false, "Lint the schema document itself before validating")
		verbose     = flag.Bool("verbose", false, "Enable debug logging")
	)
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s [flags] <xml-file> <xsd-file>\n", os.Args[0])
		flag.PrintDefaults()
	}
	flag.Parse()

	if flag.NArg() < 2 {
		flag.Usage()
		os.Exit(2)
	}
	xmlFile := flag.Arg(0)
	xsdFile := flag.Arg(1)

	level := slog.LevelWarn
	if *verbose {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	validationMode, err := parseMode(*mode)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	xmlData, err := os.ReadFile(xmlFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to read XML file: %v\n", err)
		os.Exit(2)
	}
	doc, err := xmldom.NewDecoderFromBytes(xmlData).Decode()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to parse XML: %v\n", err)
		os.Exit(2)
	}

	if *checkSchema {
		if errs := lintSchema(xsdFile); len(errs) > 0 {
			fmt.Fprintf(os.Stderr, "schema document has %d problems:\n", len(errs))
			for _, e := range errs {
				fmt.Fprintf(os.Stderr, "  %v\n", e)
			}
			os.Exit(1)
		}
	}

	loader := xsd.NewSchemaLoader()
	loader.SetBaseDir(filepath.Dir(xsdFile))
	schema, err := loader.LoadSchemaWithImports(xsdFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load schema %s: %v\n", xsdFile, err)
		os.Exit(2)
	}

	violations := xsd.NewValidatorWithMode(schema, validationMode).Validate(doc)
	if len(violations) == 0 {
		fmt.Printf("%s is valid\n", xmlFile)
		return
	}

	converter := xsd.NewDiagnosticConverter(xmlFile, string(xmlData))
	formatter := &xsd.ErrorFormatter{Color: *color, ContextLines: 2}

	fmt.Printf("Found %d validation issues in %s:\n\n", len(violations), xmlFile)
	for _, diag := range converter.Convert(violations) {
		fmt.Print(formatter.Format(diag, string(xmlData)))
		fmt.Println()
	}
	os.Exit(1)
}

func parseMode(s string) (xsd.ValidationMode, error) {
	switch s {
	case "strict":
		return xsd.ValidationStrict, nil
	case "lax":
		return xsd.ValidationLax, nil
	case "skip":
		return xsd.ValidationSkip, nil
	}
	return "", fmt.Errorf("unknown validation mode %q (want strict, lax or skip)", s)
}

func lintSchema(path string) []error {
	problems, err := xsd.LintSchemaFile(path)
	if err != nil {
		return []error{err}
	}
	errs := make([]error, len(problems))
	for i, p := range problems {
		errs[i] = p
	}
	return errs
}

package xsd

import (
	"encoding/xml"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/agentflare-ai/go-xmldom"
)

// The W3C XSD test suite distributes test metadata as XML files; these
// structs mirror that format.

// W3CTestSet represents a test set from the W3C XSD test suite
type W3CTestSet struct {
	XMLName     xml.Name       `xml:"testSet"`
	Contributor string         `xml:"contributor,attr"`
	Name        string         `xml:"name,attr"`
	TestGroups  []W3CTestGroup `xml:"testGroup"`
}

// W3CTestGroup represents a test group containing related tests
type W3CTestGroup struct {
	Name          string            `xml:"name,attr"`
	SchemaTests   []W3CSchemaTest   `xml:"schemaTest"`
	InstanceTests []W3CInstanceTest `xml:"instanceTest"`
}

// W3CSchemaTest tests whether a schema is valid or invalid
type W3CSchemaTest struct {
	Name           string       `xml:"name,attr"`
	SchemaDocument W3CSchemaDoc `xml:"schemaDocument"`
	Expected       W3CExpected  `xml:"expected"`
}

// W3CInstanceTest tests whether an instance validates against a schema
type W3CInstanceTest struct {
	Name             string         `xml:"name,attr"`
	InstanceDocument W3CInstanceDoc `xml:"instanceDocument"`
	Expected         W3CExpected    `xml:"expected"`
}

type W3CSchemaDoc struct {
	Href string `xml:"href,attr"`
}

type W3CInstanceDoc struct {
	Href string `xml:"href,attr"`
}

// W3CExpected indicates expected validity: "valid", "invalid" or "notKnown"
type W3CExpected struct {
	Validity string `xml:"validity,attr"`
}

// W3CTestResult captures the result of running one test
type W3CTestResult struct {
	TestSet      string
	TestGroup    string
	TestName     string
	TestType     string // "schema" or "instance"
	Expected     string
	Actual       string // "valid", "invalid" or "error"
	Passed       bool
	Error        error
	SchemaPath   string
	InstancePath string
}

// W3CTestRunner runs W3C XSD conformance tests
type W3CTestRunner struct {
	TestSuiteDir string
	Results      []W3CTestResult
	Verbose      bool
}

// NewW3CTestRunner creates a test runner for the W3C test suite
func NewW3CTestRunner(testSuiteDir string) *W3CTestRunner {
	return &W3CTestRunner{TestSuiteDir: testSuiteDir}
}

// LoadTestSet loads a W3C test set from a metadata XML file
func (r *W3CTestRunner) LoadTestSet(metadataPath string) (*W3CTestSet, error) {
	data, err := os.ReadFile(metadataPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read test metadata: %w", err)
	}
	var testSet W3CTestSet
	if err := xml.Unmarshal(data, &testSet); err != nil {
		return nil, fmt.Errorf("failed to parse test metadata: %w", err)
	}
	return &testSet, nil
}

// RunTestSet runs all tests in a test set. Instance tests resolve their
// schema through the schema test of the same group.
func (r *W3CTestRunner) RunTestSet(testSet *W3CTestSet, metadataPath string) {
	baseDir := filepath.Dir(metadataPath)
	for _, group := range testSet.TestGroups {
		var groupSchema string
		for _, test := range group.SchemaTests {
			result := r.runSchemaTest(testSet.Name, group.Name, test, baseDir)
			if result.Actual == "valid" && groupSchema == "" {
				groupSchema = result.SchemaPath
			}
			r.record(result)
		}
		for _, test := range group.InstanceTests {
			r.record(r.runInstanceTest(testSet.Name, group.Name, test, baseDir, groupSchema))
		}
	}
}

func (r *W3CTestRunner) record(result W3CTestResult) {
	r.Results = append(r.Results, result)
	if r.Verbose {
		status := "PASS"
		if !result.Passed {
			status = "FAIL"
		}
		slog.Info("w3c test",
			"status", status,
			"set", result.TestSet,
			"group", result.TestGroup,
			"name", result.TestName,
			"expected", result.Expected,
			"actual", result.Actual,
			"error", result.Error)
	}
}

// runSchemaTest checks whether a schema document builds.
func (r *W3CTestRunner) runSchemaTest(testSet, testGroup string, test W3CSchemaTest, baseDir string) W3CTestResult {
	result := W3CTestResult{
		TestSet:    testSet,
		TestGroup:  testGroup,
		TestName:   test.Name,
		TestType:   "schema",
		Expected:   test.Expected.Validity,
		SchemaPath: filepath.Join(baseDir, test.SchemaDocument.Href),
	}

	if _, err := LoadSchemaWithImports(result.SchemaPath); err != nil {
		result.Actual = "invalid"
		result.Error = err
	} else {
		result.Actual = "valid"
	}
	result.Passed = result.Expected == result.Actual
	return result
}

// runInstanceTest validates an instance document against its group's schema.
func (r *W3CTestRunner) runInstanceTest(testSet, testGroup string, test W3CInstanceTest, baseDir, schemaPath string) W3CTestResult {
	result := W3CTestResult{
		TestSet:      testSet,
		TestGroup:    testGroup,
		TestName:     test.Name,
		TestType:     "instance",
		Expected:     test.Expected.Validity,
		SchemaPath:   schemaPath,
		InstancePath: filepath.Join(baseDir, test.InstanceDocument.Href),
	}

	if schemaPath == "" {
		result.Actual = "error"
		result.Error = fmt.Errorf("no valid schema in test group %s", testGroup)
		return result
	}

	schema, err := LoadSchemaWithImports(schemaPath)
	if err != nil {
		result.Actual = "error"
		result.Error = fmt.Errorf("failed to load schema: %w", err)
		return result
	}

	file, err := os.Open(result.InstancePath)
	if err != nil {
		result.Actual = "error"
		result.Error = fmt.Errorf("failed to open instance file: %w", err)
		return result
	}
	defer file.Close()

	doc, err := xmldom.Decode(file)
	if err != nil {
		result.Actual = "error"
		result.Error = fmt.Errorf("failed to parse instance: %w", err)
		return result
	}

	violations := NewValidator(schema).Validate(doc)
	if len(violations) > 0 {
		result.Actual = "invalid"
		result.Error = fmt.Errorf("%d validation errors: %s", len(violations), violations[0].Message)
	} else {
		result.Actual = "valid"
	}
	result.Passed = result.Expected == result.Actual
	return result
}

// GenerateReport summarizes test results.
func (r *W3CTestRunner) GenerateReport() string {
	total := len(r.Results)
	if total == 0 {
		return "no test results\n"
	}

	var passed, errors, schemaTests, schemaPassed, instanceTests, instancePassed int
	var failedTests []W3CTestResult
	for _, result := range r.Results {
		if result.Passed {
			passed++
		} else {
			failedTests = append(failedTests, result)
		}
		if result.Actual == "error" {
			errors++
		}
		if result.TestType == "schema" {
			schemaTests++
			if result.Passed {
				schemaPassed++
			}
		} else {
			instanceTests++
			if result.Passed {
				instancePassed++
			}
		}
	}

	var report strings.Builder
	report.WriteString("W3C XSD Conformance Test Results\n")
	report.WriteString("=================================\n\n")
	report.WriteString(fmt.Sprintf("Total Tests:     %d\n", total))
	report.WriteString(fmt.Sprintf("Passed:          %d (%.1f%%)\n", passed, float64(passed)*100/float64(total)))
	report.WriteString(fmt.Sprintf("Failed:          %d\n", total-passed))
	report.WriteString(fmt.Sprintf("Errors:          %d\n\n", errors))
	if schemaTests > 0 {
		report.WriteString(fmt.Sprintf("Schema Tests:    %d (passed: %d)\n", schemaTests, schemaPassed))
	}
	if instanceTests > 0 {
		report.WriteString(fmt.Sprintf("Instance Tests:  %d (passed: %d)\n", instanceTests, instancePassed))
	}

	if len(failedTests) > 0 {
		report.WriteString("\nFailed Tests (first 20):\n")
		for i, result := range failedTests {
			if i >= 20 {
				break
			}
			report.WriteString(fmt.Sprintf("%s/%s/%s: expected=%s, actual=%s\n",
				result.TestSet, result.TestGroup, result.TestName,
				result.Expected, result.Actual))
		}
	}
	return report.String()
}

// RunMetadataFile runs all tests from a single metadata file
func (r *W3CTestRunner) RunMetadataFile(metadataPath string) error {
	testSet, err := r.LoadTestSet(metadataPath)
	if err != nil {
		return err
	}
	r.RunTestSet(testSet, metadataPath)
	return nil
}

// RunAllTests discovers and runs all test metadata files matching pattern
// under the suite directory.
func (r *W3CTestRunner) RunAllTests(pattern string) error {
	metadataFiles, err := filepath.Glob(filepath.Join(r.TestSuiteDir, pattern))
	if err != nil {
		return fmt.Errorf("failed to find test files: %w", err)
	}
	for _, metadataPath := range metadataFiles {
		if err := r.RunMetadataFile(metadataPath); err != nil {
			slog.Warn("test metadata failed", "path", metadataPath, "error", err)
		}
	}
	return nil
}

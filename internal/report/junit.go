package report

import (
	"encoding/xml"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/osvaldoandrade/suiterun/pkg/domain"
)

type JUnitTestSuites struct {
	XMLName xml.Name         `xml:"testsuites"`
	Name    string           `xml:"name,attr"`
	Tests   int              `xml:"tests,attr"`
	Failure int              `xml:"failures,attr"`
	Errors  int              `xml:"errors,attr"`
	Time    float64          `xml:"time,attr"`
	Suites  []JUnitTestSuite `xml:"testsuite"`
}

type JUnitTestSuite struct {
	Name       string          `xml:"name,attr"`
	Tests      int             `xml:"tests,attr"`
	Failures   int             `xml:"failures,attr"`
	Errors     int             `xml:"errors,attr"`
	Time       float64         `xml:"time,attr"`
	Timestamp  string          `xml:"timestamp,attr"`
	Properties []JUnitProperty `xml:"properties>property,omitempty"`
	TestCases  []JUnitTestCase `xml:"testcase"`
}

type JUnitProperty struct {
	Name  string `xml:"name,attr"`
	Value string `xml:"value,attr"`
}

type JUnitTestCase struct {
	Name      string        `xml:"name,attr"`
	ClassName string        `xml:"classname,attr"`
	Failure   *JUnitFailure `xml:"failure,omitempty"`
	Error     *JUnitFailure `xml:"error,omitempty"`
}

type JUnitFailure struct {
	Message string `xml:"message,attr"`
	Type    string `xml:"type,attr"`
	Content string `xml:",chardata"`
}

// BuildJUnit maps a run to a single JUnit suite. An execution with verdict error is
// a failure; an execution still pending when polling stopped is an error.
func BuildJUnit(r domain.RunReport, finished time.Time) JUnitTestSuites {
	suite := JUnitTestSuite{
		Name:      r.Request.SuiteID,
		Time:      r.Duration,
		Timestamp: finished.UTC().Format(time.RFC3339),
		Properties: []JUnitProperty{
			{Name: "project_id", Value: r.Request.ProjectID},
			{Name: "browser", Value: r.Request.Browser},
			{Name: "run_id", Value: r.RunID},
			{Name: "outcome", Value: string(r.Outcome)},
			{Name: "rounds", Value: fmt.Sprint(r.Result.Rounds)},
		},
	}

	for _, h := range r.Result.Handles {
		tc := JUnitTestCase{Name: string(h), ClassName: "suiterun." + r.Request.SuiteID}
		st, ok := r.Result.Final[h]
		switch {
		case !ok:
			tc.Error = &JUnitFailure{
				Message: fmt.Sprintf("execution still pending after %d rounds", r.Result.Rounds),
				Type:    "timeout",
			}
			suite.Errors++
		case st.Status == domain.VerdictError:
			tc.Failure = &JUnitFailure{
				Message: "execution reported status error",
				Type:    string(domain.VerdictError),
				Content: string(st.Raw),
			}
			suite.Failures++
		}
		suite.TestCases = append(suite.TestCases, tc)
	}
	suite.Tests = len(suite.TestCases)

	return JUnitTestSuites{
		Name:    "suiterun",
		Tests:   suite.Tests,
		Failure: suite.Failures,
		Errors:  suite.Errors,
		Time:    suite.Time,
		Suites:  []JUnitTestSuite{suite},
	}
}

func WriteJUnit(w io.Writer, r domain.RunReport, finished time.Time) error {
	data, err := xml.MarshalIndent(BuildJUnit(r, finished), "", "  ")
	if err != nil {
		return err
	}
	if _, err := io.WriteString(w, xml.Header); err != nil {
		return err
	}
	_, err = w.Write(append(data, '\n'))
	return err
}

// WriteJUnitFile writes the report to path, creating parent directories.
func WriteJUnitFile(path string, r domain.RunReport, finished time.Time) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := WriteJUnit(f, r, finished); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

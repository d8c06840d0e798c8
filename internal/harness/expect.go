package harness

import (
	"fmt"
	"strings"

	"github.com/roach88/strata/internal/ir"
	"github.com/roach88/strata/internal/stage"
)

// ExpectationError describes a step whose outcome differs from what the
// scenario expected.
type ExpectationError struct {
	Step     int
	Op       string
	Check    string // expect_count, expect_fields or expect_error
	Expected string
	Actual   string
}

// Error implements the error interface.
func (e *ExpectationError) Error() string {
	var buf strings.Builder
	fmt.Fprintf(&buf, "steps[%d] %s: %s failed\n", e.Step, e.Op, e.Check)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s", e.Actual)
	return buf.String()
}

// checkStep evaluates a step's expectations against its trace event and
// returns one message per failed expectation.
func checkStep(index int, st Step, ev TraceEvent, recs []*stage.Record) []string {
	var errs []string
	fail := func(check, expected, actual string) {
		errs = append(errs, (&ExpectationError{
			Step:     index,
			Op:       st.Op,
			Check:    check,
			Expected: expected,
			Actual:   actual,
		}).Error())
	}

	if st.ExpectError != "" && ev.Error != st.ExpectError {
		actual := ev.Error
		if actual == "" {
			actual = "no error"
		}
		fail("expect_error", st.ExpectError, actual)
	}

	if st.ExpectCount != nil {
		actual := 0
		if ev.Count != nil {
			actual = *ev.Count
		}
		if actual != *st.ExpectCount {
			fail("expect_count", fmt.Sprintf("%d", *st.ExpectCount), fmt.Sprintf("%d", actual))
		}
	}

	if st.ExpectFields != nil {
		if len(recs) != len(st.ExpectFields) {
			fail("expect_fields", fmt.Sprintf("%d records", len(st.ExpectFields)), fmt.Sprintf("%d records", len(recs)))
			return errs
		}
		for i, want := range st.ExpectFields {
			got := recs[i].Fields()
			if ok, detail := matchFields(got, want); !ok {
				fail("expect_fields", fmt.Sprintf("record %d with %v", i, want), detail)
			}
		}
	}

	return errs
}

// matchFields reports whether every expected field is present in got with an
// equal value. Fields not mentioned in want are ignored (subset semantics).
func matchFields(got ir.Object, want map[string]any) (bool, string) {
	for key, raw := range want {
		expected, err := ir.FromNative(raw)
		if err != nil {
			return false, fmt.Sprintf("field %q: %v", key, err)
		}
		actual, ok := got[key]
		if !ok {
			return false, fmt.Sprintf("field %q missing", key)
		}
		if !ir.Equal(actual, expected) {
			return false, fmt.Sprintf("field %q = %v", key, ir.ToNative(actual))
		}
	}
	return true, ""
}

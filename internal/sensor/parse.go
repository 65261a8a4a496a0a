// v1
// internal/sensor/parse.go
package sensor

import (
	"errors"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
)

// ErrMissingField is wrapped by ParseError when a token is absent.
var ErrMissingField = errors.New("missing field")

// ParseError reports a line that does not match `Temp=<num>*C Humidity=<num>%`.
type ParseError struct {
	Line  string
	Field string
	Err   error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse %s from %q: %v", e.Field, e.Line, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

const (
	FieldTemperature = "temperature"
	FieldHumidity    = "humidity"
)

var (
	tempToken  = regexp.MustCompile(`^[^=\s]*=(\S+?)(?:\*C)?$`)
	humidToken = regexp.MustCompile(`^[^=\s]*=(\S+?)%?$`)
)

// Parse extracts temperature and humidity from the first two
// whitespace-delimited tokens of line.
func Parse(line string) (Reading, error) {
	tokens := strings.Fields(line)

	temp, err := parseToken(line, tokens, 0, FieldTemperature, tempToken)
	if err != nil {
		return Reading{}, err
	}
	humid, err := parseToken(line, tokens, 1, FieldHumidity, humidToken)
	if err != nil {
		return Reading{}, err
	}
	return Reading{Temperature: temp, Humidity: humid}, nil
}

func parseToken(line string, tokens []string, idx int, field string, re *regexp.Regexp) (float64, error) {
	if idx >= len(tokens) {
		return 0, &ParseError{Line: line, Field: field, Err: ErrMissingField}
	}
	m := re.FindStringSubmatch(tokens[idx])
	if m == nil {
		return 0, &ParseError{Line: line, Field: field, Err: fmt.Errorf("%w: token %q has no value", ErrMissingField, tokens[idx])}
	}
	v, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return 0, &ParseError{Line: line, Field: field, Err: err}
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, &ParseError{Line: line, Field: field, Err: fmt.Errorf("non-finite value %q", m[1])}
	}
	return v, nil
}

// FormatLine renders a reading the way the sensor script prints it.
func FormatLine(temp, humid float64) string {
	return fmt.Sprintf("Temp=%.1f*C Humidity=%.1f%%", temp, humid)
}

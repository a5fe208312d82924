package feed

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/dijital/hydro-viewer/services/api/models"
)

// Catalog columns.
const (
	catalogID = iota
	catalogName
	catalogLat
	catalogLon
	catalogProvince
	catalogTimezone
	catalogMinFields
)

// Readings columns.
const (
	readingTime      = 1
	readingLevel     = 2
	readingDischarge = 6
	readingMinFields = 9
)

var titleWord = regexp.MustCompile(`\w\S*`)

// Words kept lower-case by titleCase unless they open the name.
var lowerWords = map[string]struct{}{
	"a": {}, "an": {}, "the": {}, "and": {}, "but": {}, "or": {}, "for": {}, "nor": {},
	"as": {}, "at": {}, "by": {}, "from": {}, "in": {}, "into": {}, "near": {}, "of": {},
	"on": {}, "onto": {}, "to": {}, "with": {},
}

var readTimeLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05Z07:00",
	"2006-01-02T15:04Z07:00",
}

// Parser turns raw feed CSV into typed records. Malformed input never aborts
// a parse: bad rows are dropped and bad fields fall back to defaults.
type Parser struct {
	logger *slog.Logger
}

// NewParser returns a parser that reports dropped rows through logger.
func NewParser(logger *slog.Logger) *Parser {
	return &Parser{logger: logger}
}

// ParseCatalog parses the station list. It returns the records and the
// number of rows dropped.
func (p *Parser) ParseCatalog(text string) ([]models.StationRecord, int) {
	records := make([]models.StationRecord, 0)
	dropped := 0

	eachRow(text, func(line int, row []string, err error) {
		if err != nil {
			dropped++
			p.logger.Warn("catalog row unreadable", "line", line, "error", err)
			return
		}
		if len(row) < catalogMinFields {
			dropped++
			p.logger.Warn("catalog row too short", "line", line, "fields", len(row))
			return
		}

		lon, errLon := strconv.ParseFloat(strings.TrimSpace(row[catalogLon]), 64)
		lat, errLat := strconv.ParseFloat(strings.TrimSpace(row[catalogLat]), 64)
		if errLon != nil || errLat != nil || !finite(lon) || !finite(lat) {
			dropped++
			p.logger.Warn("catalog row has invalid coordinates", "line", line, "id", row[catalogID])
			return
		}

		tz, err := ParseTimezone(row[catalogTimezone])
		if err != nil {
			p.logger.Debug("catalog timezone unparseable", "line", line, "value", row[catalogTimezone], "error", err)
		}

		records = append(records, models.StationRecord{
			ID:       stripQuotes(row[catalogID]),
			Name:     titleCase(stripQuotes(row[catalogName])),
			Province: stripQuotes(row[catalogProvince]),
			Timezone: tz,
			Lon:      lon,
			Lat:      lat,
		})
	})

	return records, dropped
}

// ParseReadings parses one station's hourly readings. Rows with fewer than
// nine fields are dropped; a field that fails to parse becomes nil (level,
// discharge) or the Unix epoch (read time) without affecting its siblings.
func (p *Parser) ParseReadings(text string) ([]models.ReadingRecord, int) {
	records := make([]models.ReadingRecord, 0)
	dropped := 0

	eachRow(text, func(line int, row []string, err error) {
		if err != nil {
			dropped++
			p.logger.Warn("readings row unreadable", "line", line, "error", err)
			return
		}
		if len(row) < readingMinFields {
			dropped++
			p.logger.Debug("readings row too short", "line", line, "fields", len(row))
			return
		}

		rec := models.ReadingRecord{
			ReadTime:  time.Unix(0, 0).UTC(),
			Level:     parseMeasurement(row[readingLevel]),
			Discharge: parseMeasurement(row[readingDischarge]),
		}
		if t, ok := parseReadTime(row[readingTime]); ok {
			rec.ReadTime = t
		} else {
			p.logger.Debug("readings timestamp unparseable", "line", line, "value", row[readingTime])
		}
		records = append(records, rec)
	})

	return records, dropped
}

// ParseTimezone converts "UTC-08:00" style offsets into signed fractional
// hours, e.g. "UTC-03:30" is -3.5.
func ParseTimezone(raw string) (float64, error) {
	s := strings.ToUpper(stripQuotes(raw))
	if !strings.HasPrefix(s, "UTC") {
		return 0, fmt.Errorf("missing UTC prefix in %q", raw)
	}
	s = strings.TrimSpace(s[len("UTC"):])
	if s == "" {
		return 0, nil
	}

	sign := 1.0
	switch s[0] {
	case '-':
		sign = -1
		s = s[1:]
	case '+':
		s = s[1:]
	}

	hh, mm, hasMinutes := strings.Cut(s, ":")
	h, err := strconv.ParseFloat(hh, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid hours in %q: %w", raw, err)
	}
	m := 0.0
	if hasMinutes {
		if m, err = strconv.ParseFloat(mm, 64); err != nil {
			return 0, fmt.Errorf("invalid minutes in %q: %w", raw, err)
		}
	}
	return sign * (h + m/60), nil
}

// eachRow walks every record after the header line.
func eachRow(text string, fn func(line int, row []string, err error)) {
	r := csv.NewReader(strings.NewReader(text))
	r.FieldsPerRecord = -1
	r.LazyQuotes = true
	r.TrimLeadingSpace = true

	header := true
	for {
		row, err := r.Read()
		if errors.Is(err, io.EOF) {
			return
		}
		var line int
		var parseErr *csv.ParseError
		switch {
		case errors.As(err, &parseErr):
			line = parseErr.StartLine
		case err != nil:
			fn(0, nil, err)
			return
		default:
			line, _ = r.FieldPos(0)
		}
		if header {
			header = false
			continue
		}
		fn(line, row, err)
	}
}

func parseMeasurement(raw string) *float64 {
	v, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil || !finite(v) {
		return nil
	}
	return &v
}

func parseReadTime(raw string) (time.Time, bool) {
	s := strings.TrimSpace(raw)
	for _, layout := range readTimeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}

func stripQuotes(s string) string {
	return strings.Trim(strings.TrimSpace(s), `"`)
}

// titleCase capitalises each word except the stop words, then forces the
// first letter of the whole name to upper case.
func titleCase(s string) string {
	s = titleWord.ReplaceAllStringFunc(s, func(word string) string {
		word = strings.ToLower(word)
		if _, ok := lowerWords[word]; ok {
			return word
		}
		return strings.ToUpper(word[:1]) + word[1:]
	})
	r, size := utf8.DecodeRuneInString(s)
	if r == utf8.RuneError {
		return s
	}
	return string(unicode.ToUpper(r)) + s[size:]
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

package water

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"
)

// fieldAliases maps every accepted spelling of a field to its canonical name.
var fieldAliases = map[string]string{
	"ph":                     string(ParamPH),
	"p_h":                    string(ParamPH),
	"temperature":            string(ParamTemperature),
	"temp":                   string(ParamTemperature),
	"water_temp":             string(ParamTemperature),
	"watertemp":              string(ParamTemperature),
	"ec":                     string(ParamEC),
	"conductivity":           string(ParamEC),
	"tds":                    string(ParamTDS),
	"total_dissolved_solids": string(ParamTDS),
	"turbidity":              string(ParamTurbidity),
	"ntu":                    string(ParamTurbidity),
	"stationid":              "stationId",
	"station_id":             "stationId",
	"station":                "stationId",
	"timestamp":              "timestamp",
	"time":                   "timestamp",
	"date":                   "timestamp",
	"datetime":               "timestamp",
	"remarks":                "remarks",
	"notes":                  "remarks",
	"id":                     "id",
	"_id":                    "id",
}

// CanonicalField returns the canonical name for a raw field name, matched
// case-insensitively. ok is false for unknown fields.
func CanonicalField(name string) (string, bool) {
	key := strings.ToLower(strings.TrimSpace(name))
	key = strings.ReplaceAll(key, " ", "_")
	c, ok := fieldAliases[key]
	return c, ok
}

// NormalizeRecord maps a loosely shaped record onto a Reading. Fields that
// cannot be interpreted are left absent and reported in issues. When several
// keys alias the same field, the canonical spelling wins, then the first key
// in byte order.
func NormalizeRecord(raw map[string]any) (Reading, []string) {
	var (
		r      Reading
		issues []string
		seen   = make(map[string]bool, len(raw))
	)

	for _, k := range recordKeys(raw) {
		v := raw[k]
		field, ok := CanonicalField(k)
		if !ok || seen[field] || v == nil {
			continue
		}
		seen[field] = true

		switch field {
		case "stationId":
			if s := stringValue(v); s != "" {
				r.StationID = s
			}
		case "id":
			if s := stringValue(v); s != "" {
				r.ID = s
			}
		case "remarks":
			r.Remarks = strings.TrimSpace(stringValue(v))
		case "timestamp":
			ts, err := parseTimestampValue(v)
			if err != nil {
				issues = append(issues, fmt.Sprintf("%s: %v", k, err))
				continue
			}
			r.Timestamp = ts
		default:
			f, err := numberValue(v)
			if err != nil {
				issues = append(issues, fmt.Sprintf("%s: %v", k, err))
				continue
			}
			r.SetValue(Parameter(field), f)
		}
	}

	return r, issues
}

// recordKeys orders keys so canonical spellings come first.
func recordKeys(raw map[string]any) []string {
	keys := make([]string, 0, len(raw))
	for k := range raw {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		ci, cj := isCanonical(keys[i]), isCanonical(keys[j])
		if ci != cj {
			return ci
		}
		return keys[i] < keys[j]
	})
	return keys
}

func isCanonical(key string) bool {
	field, ok := CanonicalField(key)
	return ok && field == key
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04",
	"2006-01-02",
}

// ParseTimestamp parses RFC3339, naive ISO-8601 (taken as UTC), a plain date
// or unix seconds. The result is in UTC.
func ParseTimestamp(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, fmt.Errorf("empty timestamp")
	}

	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}

	if secs, err := strconv.ParseInt(s, 10, 64); err == nil {
		return time.Unix(secs, 0).UTC(), nil
	}

	return time.Time{}, fmt.Errorf("unrecognised timestamp %q", s)
}

func parseTimestampValue(v any) (time.Time, error) {
	switch t := v.(type) {
	case time.Time:
		return t.UTC(), nil
	case string:
		return ParseTimestamp(t)
	case float64:
		return time.Unix(int64(t), 0).UTC(), nil
	case int:
		return time.Unix(int64(t), 0).UTC(), nil
	case int64:
		return time.Unix(t, 0).UTC(), nil
	case json.Number:
		return ParseTimestamp(t.String())
	default:
		return time.Time{}, fmt.Errorf("unsupported timestamp type %T", v)
	}
}

func numberValue(v any) (float64, error) {
	var (
		f   float64
		err error
	)
	switch n := v.(type) {
	case float64:
		f = n
	case float32:
		f = float64(n)
	case int:
		f = float64(n)
	case int64:
		f = float64(n)
	case json.Number:
		f, err = n.Float64()
	case string:
		s := strings.TrimSpace(n)
		if s == "" {
			return 0, fmt.Errorf("empty value")
		}
		f, err = strconv.ParseFloat(s, 64)
	default:
		return 0, fmt.Errorf("not a number: %v", v)
	}
	if err != nil {
		return 0, fmt.Errorf("not a number: %v", v)
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, fmt.Errorf("not a finite number: %v", v)
	}
	return f, nil
}

func stringValue(v any) string {
	switch s := v.(type) {
	case nil:
		return ""
	case string:
		return s
	case float64:
		return strconv.FormatFloat(s, 'f', -1, 64)
	case json.Number:
		return s.String()
	default:
		return fmt.Sprint(v)
	}
}

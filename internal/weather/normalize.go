package weather

import (
	"errors"
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/goccy/go-json"
)

// Percent is a cloud-cover percentage in [0,100] or a missing value.
// The zero value is missing.
type Percent struct {
	value int
	valid bool
}

// PercentOf returns a present percentage clamped to [0,100].
func PercentOf(v int) Percent {
	return Percent{value: clamp(v), valid: true}
}

// Missing returns the missing-value sentinel.
func Missing() Percent {
	return Percent{}
}

// Value returns the percentage and whether it is present.
func (p Percent) Value() (int, bool) {
	return p.value, p.valid
}

// Valid reports whether the percentage is present.
func (p Percent) Valid() bool {
	return p.valid
}

// OrZero returns the percentage, or 0 when missing.
func (p Percent) OrZero() int {
	if !p.valid {
		return 0
	}
	return p.value
}

func (p Percent) String() string {
	if !p.valid {
		return "n/a"
	}
	return strconv.Itoa(p.value) + "%"
}

// MarshalJSON writes "NN%" or null.
func (p Percent) MarshalJSON() ([]byte, error) {
	if !p.valid {
		return []byte("null"), nil
	}
	return json.Marshal(p.String())
}

// UnmarshalJSON accepts anything ParsePercent accepts; it never fails on content.
func (p *Percent) UnmarshalJSON(data []byte) error {
	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		*p = Missing()
		return nil
	}
	*p = ParsePercent(raw)
	return nil
}

var numericToken = regexp.MustCompile(`[-+]?(?:\d+(?:[.,]\d+)?|[.,]\d+)(?:[eE][-+]?\d+)?`)

var missingTokens = map[string]bool{
	"":     true,
	"n/a":  true,
	"na":   true,
	"null": true,
	"none": true,
	"-":    true,
}

// ParsePercent coerces a raw provider or stored value into a Percent.
// Numbers are rounded and clamped; strings may carry a '%' suffix, a ','
// decimal separator or surrounding noise, in which case the first numeric
// token is used. Anything else is missing. It never panics.
func ParsePercent(raw any) Percent {
	switch v := raw.(type) {
	case nil:
		return Missing()
	case Percent:
		return v
	case *Percent:
		if v == nil {
			return Missing()
		}
		return *v
	case int:
		return PercentOf(v)
	case int8:
		return PercentOf(int(v))
	case int16:
		return PercentOf(int(v))
	case int32:
		return PercentOf(int(v))
	case int64:
		return fromFloat(float64(v))
	case uint:
		return fromFloat(float64(v))
	case uint8:
		return PercentOf(int(v))
	case uint16:
		return PercentOf(int(v))
	case uint32:
		return fromFloat(float64(v))
	case uint64:
		return fromFloat(float64(v))
	case float32:
		return fromFloat(float64(v))
	case float64:
		return fromFloat(v)
	case *float64:
		if v == nil {
			return Missing()
		}
		return fromFloat(*v)
	case *int:
		if v == nil {
			return Missing()
		}
		return PercentOf(*v)
	case json.Number:
		return parsePercentString(v.String())
	case string:
		return parsePercentString(v)
	case []byte:
		return parsePercentString(string(v))
	default:
		return Missing()
	}
}

func parsePercentString(s string) Percent {
	s = strings.TrimSpace(s)
	if missingTokens[strings.ToLower(s)] {
		return Missing()
	}
	tok := numericToken.FindString(s)
	if tok == "" {
		return Missing()
	}
	f, err := strconv.ParseFloat(strings.Replace(tok, ",", ".", 1), 64)
	if err != nil && !errors.Is(err, strconv.ErrRange) {
		return Missing()
	}
	return fromFloat(f)
}

func fromFloat(f float64) Percent {
	if math.IsNaN(f) {
		return Missing()
	}
	if math.IsInf(f, 1) || f > 100 {
		return PercentOf(100)
	}
	if math.IsInf(f, -1) || f < 0 {
		return PercentOf(0)
	}
	return PercentOf(int(math.Round(f)))
}

func clamp(v int) int {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}

// Sky condition labels.
const (
	SkySunnyClear     = "Sunny & Clear"
	SkyMostlySunny    = "Mostly sunny, partly cloudy"
	SkyPartlyCloudy   = "Partly cloudy"
	SkyCloudy         = "Cloudy"
	SkyMostlyOvercast = "Mostly overcast"
	SkyFullyOvercast  = "Fully overcast"
	SkyUnknown        = "Unknown"
)

// ClassifySky maps an average cloud-cover percentage to a sky label.
func ClassifySky(average int) string {
	switch {
	case average < 0 || average > 100:
		return SkyUnknown
	case average <= 10:
		return SkySunnyClear
	case average <= 30:
		return SkyMostlySunny
	case average <= 40:
		return SkyPartlyCloudy
	case average <= 60:
		return SkyCloudy
	case average <= 85:
		return SkyMostlyOvercast
	default:
		return SkyFullyOvercast
	}
}

// Summarize classifies the morning (06:00, 09:00), afternoon (12:00, 15:00)
// and evening (18:00) blocks of a reading set. Missing readings count as 0%.
func Summarize(r Readings) Summary {
	morning := (r[HourLabel(6)].OrZero() + r[HourLabel(9)].OrZero()) / 2
	afternoon := (r[HourLabel(12)].OrZero() + r[HourLabel(15)].OrZero()) / 2
	evening := r[HourLabel(18)].OrZero()

	return Summary{
		Morning:   ClassifySky(morning),
		Afternoon: ClassifySky(afternoon),
		Evening:   ClassifySky(evening),
	}
}

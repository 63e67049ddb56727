package weather

import (
	"math"
	"testing"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParsePercent(t *testing.T) {
	n := 150
	f := 33.4
	tests := []struct {
		name string
		raw  any
		want Percent
	}{
		{"int", 42, PercentOf(42)},
		{"float rounds half away", 42.5, PercentOf(43)},
		{"float rounds down", 7.49, PercentOf(7)},
		{"negative clamps", -5, PercentOf(0)},
		{"negative string clamps", "-5", PercentOf(0)},
		{"above range clamps", "107%", PercentOf(100)},
		{"uint8", uint8(64), PercentOf(64)},
		{"int64", int64(250), PercentOf(100)},
		{"pointer to int", &n, PercentOf(100)},
		{"pointer to float", &f, PercentOf(33)},
		{"json number", json.Number("12.6"), PercentOf(13)},
		{"percent suffix", "56%", PercentOf(56)},
		{"comma decimal", "3,6", PercentOf(4)},
		{"dot decimal with suffix", "18.2 %", PercentOf(18)},
		{"surrounding noise", " ~42 % ", PercentOf(42)},
		{"prefixed text", "clouds: 75", PercentOf(75)},
		{"bytes", []byte("9"), PercentOf(9)},
		{"no leading digit", ".4", PercentOf(0)},
		{"no leading digit comma", ",6%", PercentOf(1)},
		{"exponent", "1e2", PercentOf(100)},
		{"exponent with fraction", "2.5e1%", PercentOf(25)},
		{"negative exponent", "500E-1", PercentOf(50)},
		{"exponent out of range", "1e400", PercentOf(100)},
		{"nil", nil, Missing()},
		{"nil pointer", (*float64)(nil), Missing()},
		{"empty", "", Missing()},
		{"blank", "   ", Missing()},
		{"n/a", "N/A", Missing()},
		{"null string", "null", Missing()},
		{"dash", "-", Missing()},
		{"no digits", "cloudy", Missing()},
		{"nan", math.NaN(), Missing()},
		{"inf", math.Inf(1), PercentOf(100)},
		{"bool", true, Missing()},
		{"map", map[string]any{"all": 10}, Missing()},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ParsePercent(tt.raw))
		})
	}
}

func TestPercentJSON(t *testing.T) {
	b, err := json.Marshal(map[string]Percent{"a": PercentOf(12), "b": Missing()})
	require.NoError(t, err)
	assert.JSONEq(t, `{"a":"12%","b":null}`, string(b))

	var got map[string]Percent
	require.NoError(t, json.Unmarshal([]byte(`{"a":"12%","b":null,"c":99.6,"d":"junk"}`), &got))
	assert.Equal(t, PercentOf(12), got["a"])
	assert.False(t, got["b"].Valid())
	assert.Equal(t, PercentOf(100), got["c"])
	assert.False(t, got["d"].Valid())
}

func TestPercentString(t *testing.T) {
	assert.Equal(t, "7%", PercentOf(7).String())
	assert.Equal(t, "n/a", Missing().String())
	assert.Equal(t, 0, Missing().OrZero())
}

func TestClassifySky(t *testing.T) {
	tests := []struct {
		avg  int
		want string
	}{
		{-1, SkyUnknown},
		{0, SkySunnyClear},
		{10, SkySunnyClear},
		{11, SkyMostlySunny},
		{25, SkyMostlySunny},
		{30, SkyMostlySunny},
		{31, SkyPartlyCloudy},
		{40, SkyPartlyCloudy},
		{41, SkyCloudy},
		{60, SkyCloudy},
		{61, SkyMostlyOvercast},
		{85, SkyMostlyOvercast},
		{86, SkyFullyOvercast},
		{95, SkyFullyOvercast},
		{100, SkyFullyOvercast},
		{101, SkyUnknown},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ClassifySky(tt.avg), "ClassifySky(%d)", tt.avg)
	}
	assert.Equal(t, "Mostly sunny, partly cloudy", ClassifySky(25))
	assert.Equal(t, "Fully overcast", ClassifySky(95))
	assert.Equal(t, "Unknown", ClassifySky(-1))
}

func TestSummarize(t *testing.T) {
	r := Readings{
		HourLabel(6):  PercentOf(90),
		HourLabel(9):  PercentOf(100),
		HourLabel(12): PercentOf(20),
		HourLabel(15): Missing(),
		HourLabel(18): PercentOf(50),
	}
	got := Summarize(r)
	assert.Equal(t, Summary{
		Morning:   SkyFullyOvercast,
		Afternoon: SkySunnyClear, // (20 + 0) / 2
		Evening:   SkyCloudy,
	}, got)

	assert.Equal(t, Summary{SkySunnyClear, SkySunnyClear, SkySunnyClear}, Summarize(Readings{}))
}

func TestAverageBlocks(t *testing.T) {
	r := Readings{
		HourLabel(6):  PercentOf(10),
		HourLabel(9):  Missing(),
		HourLabel(12): PercentOf(20),
		HourLabel(15): PercentOf(41),
	}
	avg := AverageBlocks(r)
	require.NotNil(t, avg[BlockMorning])
	assert.Equal(t, 10.0, *avg[BlockMorning])
	assert.Equal(t, 30.5, *avg[BlockAfternoon])
	assert.Nil(t, avg[BlockEvening])

	mean, ok := avg.Mean()
	assert.True(t, ok)
	assert.Equal(t, 20.25, mean)
}

func TestAggregateBlocks(t *testing.T) {
	rec := ForecastRecord{Sources: []SourceBlock{
		{Source: "A", Readings: Readings{HourLabel(6): PercentOf(10), HourLabel(9): PercentOf(30)}},
		{Source: "B", Readings: Readings{HourLabel(6): PercentOf(40), HourLabel(18): PercentOf(70)}},
	}}

	all := AggregateBlocks(rec, nil)
	assert.Equal(t, 30.0, *all[BlockMorning])
	assert.Nil(t, all[BlockAfternoon])
	assert.Equal(t, 70.0, *all[BlockEvening])

	onlyA := AggregateBlocks(rec, []string{"A"})
	assert.Equal(t, 20.0, *onlyA[BlockMorning])
	assert.Nil(t, onlyA[BlockEvening])
}

package weather

// Block is a part of the day summarized from a subset of ForecastHours.
type Block string

const (
	BlockMorning   Block = "morning"
	BlockAfternoon Block = "afternoon"
	BlockEvening   Block = "evening"
)

// Blocks lists the day blocks in display order.
var Blocks = []Block{BlockMorning, BlockAfternoon, BlockEvening}

// BlockHours maps each block to the hour labels it averages.
var BlockHours = map[Block][]string{
	BlockMorning:   {HourLabel(6), HourLabel(9)},
	BlockAfternoon: {HourLabel(12), HourLabel(15)},
	BlockEvening:   {HourLabel(18)},
}

// BlockAverages holds a mean cloud cover per block; nil means no data.
type BlockAverages map[Block]*float64

// AverageBlocks averages the present readings of each block. Unlike
// Summarize, missing readings are excluded rather than counted as 0%.
func AverageBlocks(r Readings) BlockAverages {
	out := make(BlockAverages, len(Blocks))
	for _, b := range Blocks {
		var sum float64
		var n int
		for _, label := range BlockHours[b] {
			if v, ok := r[label].Value(); ok {
				sum += float64(v)
				n++
			}
		}
		if n > 0 {
			avg := sum / float64(n)
			out[b] = &avg
		} else {
			out[b] = nil
		}
	}
	return out
}

// AggregateBlocks combines per-source block averages of a record into one
// average per block across the selected sources. An empty selection means
// every source.
func AggregateBlocks(rec ForecastRecord, sources []string) BlockAverages {
	selected := make(map[string]bool, len(sources))
	for _, s := range sources {
		selected[s] = true
	}

	sums := make(map[Block]float64, len(Blocks))
	counts := make(map[Block]int, len(Blocks))
	for _, src := range rec.Sources {
		if len(selected) > 0 && !selected[src.Source] {
			continue
		}
		for b, avg := range AverageBlocks(src.Readings) {
			if avg == nil {
				continue
			}
			sums[b] += *avg
			counts[b]++
		}
	}

	out := make(BlockAverages, len(Blocks))
	for _, b := range Blocks {
		if counts[b] == 0 {
			out[b] = nil
			continue
		}
		avg := sums[b] / float64(counts[b])
		out[b] = &avg
	}
	return out
}

// Mean returns the mean of the present block averages.
func (b BlockAverages) Mean() (float64, bool) {
	var sum float64
	var n int
	for _, v := range b {
		if v != nil {
			sum += *v
			n++
		}
	}
	if n == 0 {
		return 0, false
	}
	return sum / float64(n), true
}

package acquire

const (
	// SafeSize is the size at which a chain can no longer be absorbed.
	SafeSize = 11
	// EndGameSize lets the turn holder call the game once any chain reaches it.
	EndGameSize = 41
)

// Economy prices; each tier step adds 100. Ordered largest threshold first.
var priceBands = []struct {
	minSize int
	price   int
}{
	{41, 1000},
	{31, 900},
	{21, 800},
	{11, 700},
	{6, 600},
	{5, 500},
	{4, 400},
	{3, 300},
	{2, 200},
}

// Price is the per-share price of a chain with the given tile count. Unknown
// names and sizes below 2 are worth nothing.
func Price(name HotelName, size int) int {
	tier, ok := TierOf(name)
	if !ok {
		return 0
	}
	for _, band := range priceBands {
		if size >= band.minSize {
			return band.price + 100*int(tier)
		}
	}
	return 0
}

func MajorityBonus(name HotelName, size int) int {
	return Price(name, size) * 10
}

func MinorityBonus(name HotelName, size int) int {
	return MajorityBonus(name, size) / 2
}

type Quote struct {
	Price    int `json:"price"`
	Majority int `json:"majority"`
	Minority int `json:"minority"`
}

func QuoteFor(name HotelName, size int) Quote {
	return Quote{
		Price:    Price(name, size),
		Majority: MajorityBonus(name, size),
		Minority: MinorityBonus(name, size),
	}
}

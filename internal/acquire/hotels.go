package acquire

type HotelName string

const (
	Sora     HotelName = "空"
	Kumo     HotelName = "雲"
	Hare     HotelName = "晴"
	Kiri     HotelName = "霧"
	Kaminari HotelName = "雷"
	Arashi   HotelName = "嵐"
	Ame      HotelName = "雨"
)

// HotelNames lists every chain name in display order.
var HotelNames = []HotelName{Sora, Kumo, Hare, Kiri, Kaminari, Arashi, Ame}

type Tier int

const (
	Economy Tier = iota
	Mid
	Luxury
)

var tierString = map[Tier]string{
	Economy: "economy",
	Mid:     "mid",
	Luxury:  "luxury",
}

func (t Tier) String() string {
	return tierString[t]
}

var hotelTiers = map[HotelName]Tier{
	Sora:     Economy,
	Kumo:     Economy,
	Hare:     Mid,
	Ame:      Mid,
	Kiri:     Mid,
	Kaminari: Luxury,
	Arashi:   Luxury,
}

func TierOf(name HotelName) (Tier, bool) {
	t, ok := hotelTiers[name]
	return t, ok
}

func (n HotelName) Valid() bool {
	_, ok := hotelTiers[n]
	return ok
}

package acquire

import (
	"fmt"
	"time"
)

type LogType string

const (
	LogTilePlacement   LogType = "tile_placement"
	LogTileDiscard     LogType = "tile_discard"
	LogHotelEstablish  LogType = "hotel_establish"
	LogHotelMerge      LogType = "hotel_merge"
	LogStockPurchase   LogType = "stock_purchase"
	LogStockSell       LogType = "stock_sell"
	LogStockKeep       LogType = "stock_keep"
	LogStockExchange   LogType = "stock_exchange"
	LogDividendPayment LogType = "dividend_payment"
	LogGameEnd         LogType = "game_end"
)

type LogEntry struct {
	Seq      int            `json:"seq"`
	Turn     int            `json:"turn"`
	Type     LogType        `json:"type"`
	PlayerID string         `json:"playerId,omitempty"`
	Message  string         `json:"message"`
	Data     map[string]any `json:"data,omitempty"`
	At       time.Time      `json:"at"`
}

func (g *Game) record(t LogType, playerID string, data map[string]any, format string, args ...any) {
	g.Log = append(g.Log, LogEntry{
		Seq:      len(g.Log) + 1,
		Turn:     g.Turn,
		Type:     t,
		PlayerID: playerID,
		Message:  fmt.Sprintf(format, args...),
		Data:     data,
		At:       g.clock(),
	})
}

// RecentLog returns up to n of the latest entries, oldest first.
func (g *Game) RecentLog(n int) []LogEntry {
	if n <= 0 || len(g.Log) == 0 {
		return []LogEntry{}
	}
	start := max(0, len(g.Log)-n)
	out := make([]LogEntry, len(g.Log)-start)
	copy(out, g.Log[start:])
	return out
}

// LogSince returns the entries with a sequence number above seq.
func (g *Game) LogSince(seq int) []LogEntry {
	if seq < 0 {
		seq = 0
	}
	if seq >= len(g.Log) {
		return nil
	}
	return g.Log[seq:]
}

package acquire

import (
	"acquire-server/internal/board"
)

type MoveType string

const (
	// Placement phase
	MovePreviewTile        MoveType = "preview_tile"
	MoveSwapMergeDirection MoveType = "swap_merge_direction"
	MoveCancelPlacement    MoveType = "cancel_placement"
	MoveConfirmPlacement   MoveType = "confirm_placement"

	// Merger, any shareholder whose decision is awaited
	MoveResolveMerge MoveType = "resolve_merge"

	// Market phase
	MoveBuyShares MoveType = "buy_shares"

	// Turn end
	MoveEndTurn        MoveType = "end_turn"
	MoveDeclareGameEnd MoveType = "declare_game_end"
)

type Move struct {
	PlayerID string            `json:"playerId"`
	Type     MoveType          `json:"type"`
	Tile     board.TileID      `json:"tile,omitempty"`
	Hotel    HotelName         `json:"hotel,omitempty"`
	Decision Decision          `json:"decision,omitempty"`
	Order    map[HotelName]int `json:"order,omitempty"`
}

type MoveResponse struct {
	Success   bool       `json:"success"`
	Message   string     `json:"message,omitempty"`
	Code      string     `json:"code,omitempty"`
	Placement *Placement `json:"placement,omitempty"`
	Err       error      `json:"-"`
}

func failure(err error, placement *Placement) MoveResponse {
	return MoveResponse{
		Success:   false,
		Message:   err.Error(),
		Code:      ErrorCode(err),
		Placement: placement,
		Err:       err,
	}
}

// ExecuteMove routes a move to the matching game operation.
func (g *Game) ExecuteMove(m Move) MoveResponse {
	var (
		placement Placement
		err       error
		previewed bool
	)

	switch m.Type {
	case MovePreviewTile:
		placement, err = g.PreviewTile(m.PlayerID, m.Tile)
		previewed = true
	case MoveSwapMergeDirection:
		placement, err = g.SwapMergeDirection(m.PlayerID)
		previewed = true
	case MoveCancelPlacement:
		err = g.CancelPlacement(m.PlayerID)
	case MoveConfirmPlacement:
		placement, err = g.ConfirmPlacement(m.PlayerID, m.Hotel)
		previewed = true
	case MoveResolveMerge:
		err = g.ResolveMerge(m.PlayerID, m.Decision)
	case MoveBuyShares:
		err = g.BuyShares(m.PlayerID, m.Order)
	case MoveEndTurn:
		err = g.EndTurn(m.PlayerID)
	case MoveDeclareGameEnd:
		err = g.DeclareGameEnd(m.PlayerID)
	default:
		err = ErrUnknownMove
	}

	var shown *Placement
	if previewed && placement.Tile.Valid() {
		shown = &placement
	}
	if err != nil {
		return failure(err, shown)
	}
	return MoveResponse{Success: true, Placement: shown}
}

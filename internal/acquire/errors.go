package acquire

import (
	"errors"
	"strings"
)

var (
	ErrIllegalPlacement   = errors.New("ILLEGAL_PLACEMENT: Two safe chains cannot merge")
	ErrNoNameAvailable    = errors.New("NO_NAME_AVAILABLE: All hotel chains are already on the board")
	ErrDuplicateChainName = errors.New("DUPLICATE_CHAIN_NAME: Hotel chain is already active")
	ErrUnknownChain       = errors.New("UNKNOWN_CHAIN: Hotel chain is not active")
	ErrUnknownHotel       = errors.New("UNKNOWN_HOTEL: No hotel chain by that name")
	ErrTileAlreadyChained = errors.New("TILE_ALREADY_CHAINED: Tile belongs to another chain")
	ErrTileNotInHand      = errors.New("TILE_NOT_IN_HAND: Tile is not in your hand")
	ErrTileAlreadyPlaced  = errors.New("TILE_ALREADY_PLACED: Tile is already on the board")
	ErrTileAlreadyMoved   = errors.New("TILE_ALREADY_MOVED: You already placed a tile this turn")
	ErrNoPendingPlacement = errors.New("NO_PENDING_PLACEMENT: Select a tile first")
	ErrCannotSwap         = errors.New("CANNOT_SWAP: Merge direction is fixed by chain sizes")
	ErrHotelNameRequired  = errors.New("HOTEL_NAME_REQUIRED: Choose a name for the new chain")
	ErrNotYourTurn        = errors.New("NOT_YOUR_TURN: Wait for your turn")
	ErrWrongPhase         = errors.New("WRONG_PHASE: Move not allowed right now")
	ErrMustPlaceTile      = errors.New("MUST_PLACE_TILE: Place a tile before ending your turn")
	ErrMergeInProgress    = errors.New("MERGE_IN_PROGRESS: Resolve the merger first")
	ErrNoMergeInProgress  = errors.New("NO_MERGE_IN_PROGRESS: There is no merger to resolve")
	ErrNotYourDecision    = errors.New("NOT_YOUR_DECISION: Another shareholder is deciding")
	ErrCannotExchange     = errors.New("CANNOT_EXCHANGE: Exchange needs at least two shares")
	ErrUnknownDecision    = errors.New("UNKNOWN_DECISION: Choose sell, keep or exchange")
	ErrInsufficientFunds  = errors.New("INSUFFICIENT_FUNDS: Not enough cash for this purchase")
	ErrShareCapExceeded   = errors.New("SHARE_CAP_EXCEEDED: Not enough shares left in the bank")
	ErrPurchaseLimit      = errors.New("PURCHASE_LIMIT: Too many shares bought this turn")
	ErrInvalidOrder       = errors.New("INVALID_ORDER: Share counts must be positive")
	ErrGameNotOver        = errors.New("GAME_NOT_OVER: End conditions have not been met")
	ErrGameOver           = errors.New("GAME_OVER: The game has ended")
	ErrUnknownPlayer      = errors.New("UNKNOWN_PLAYER: Player is not seated in this game")
	ErrUnknownMove        = errors.New("UNKNOWN_MOVE: Unrecognised move type")
	ErrCorruptGame        = errors.New("CORRUPT_GAME: Stored game failed validation")
)

// ErrorCode returns the upper-case code prefix of an error built in the
// "CODE: message" form, or "" when there is none.
func ErrorCode(err error) string {
	if err == nil {
		return ""
	}
	msg := err.Error()
	code, _, found := strings.Cut(msg, ":")
	if !found {
		return ""
	}
	for _, ch := range code {
		if (ch < 'A' || ch > 'Z') && ch != '_' {
			return ""
		}
	}
	return code
}

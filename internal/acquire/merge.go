package acquire

import "slices"

type MergeStage string

const (
	MergeIdle      MergeStage = "idle"
	MergeResolving MergeStage = "resolving"
)

type Decision string

const (
	DecisionSell     Decision = "sell"
	DecisionKeep     Decision = "keep"
	DecisionExchange Decision = "exchange"
)

func (d Decision) Valid() bool {
	return d == DecisionSell || d == DecisionKeep || d == DecisionExchange
}

// DefunctChain is an absorbed chain as it stood before the merge. Its price is
// frozen here because the chain no longer exists on the board.
type DefunctChain struct {
	Name  HotelName `json:"name"`
	Size  int       `json:"size"`
	Price int       `json:"price"`
}

// ShareLookup reports how many shares of a chain a player holds.
type ShareLookup func(playerID string, name HotelName) int

// MergeState walks the shareholders of each defunct chain one at a time.
// Queue[0] is the player whose decision is awaited.
type MergeState struct {
	Stage    MergeStage     `json:"stage"`
	Survivor HotelName      `json:"survivor,omitempty"`
	Current  *DefunctChain  `json:"current,omitempty"`
	Pending  []DefunctChain `json:"pending,omitempty"`
	Queue    []string       `json:"queue,omitempty"`
	// Seating order starting at the player who placed the merging tile.
	Order []string `json:"order,omitempty"`
}

func (m *MergeState) InProgress() bool {
	return m.Stage == MergeResolving
}

// Active returns the player to decide and the chain being decided on.
func (m *MergeState) Active() (string, DefunctChain, bool) {
	if !m.InProgress() || m.Current == nil || len(m.Queue) == 0 {
		return "", DefunctChain{}, false
	}
	return m.Queue[0], *m.Current, true
}

// Begin starts a merger. defunct must be largest first. If nobody holds shares
// in any defunct chain the state stays idle.
func (m *MergeState) Begin(survivor HotelName, defunct []DefunctChain, order []string, shares ShareLookup) {
	*m = MergeState{
		Stage:    MergeResolving,
		Survivor: survivor,
		Pending:  slices.Clone(defunct),
		Order:    slices.Clone(order),
	}
	m.nextChain(shares)
}

// Advance pops the player who just decided. When a chain's queue empties the
// next defunct chain is opened, with its queue built from the current cap
// table.
func (m *MergeState) Advance(shares ShareLookup) {
	if !m.InProgress() {
		return
	}
	if len(m.Queue) > 0 {
		m.Queue = m.Queue[1:]
	}
	if len(m.Queue) == 0 {
		m.nextChain(shares)
	}
}

// Remaining lists the chain being decided and every chain after it.
func (m *MergeState) Remaining() []DefunctChain {
	var out []DefunctChain
	if m.Current != nil {
		out = append(out, *m.Current)
	}
	return append(out, m.Pending...)
}

func (m *MergeState) nextChain(shares ShareLookup) {
	for len(m.Pending) > 0 {
		next := m.Pending[0]
		m.Pending = m.Pending[1:]
		if len(m.Pending) == 0 {
			m.Pending = nil
		}

		queue := shareholderQueue(next.Name, m.Order, shares)
		if len(queue) == 0 {
			continue
		}
		m.Current = &next
		m.Queue = queue
		return
	}
	*m = MergeState{Stage: MergeIdle}
}

func shareholderQueue(name HotelName, order []string, shares ShareLookup) []string {
	var queue []string
	for _, id := range order {
		if shares(id, name) > 0 {
			queue = append(queue, id)
		}
	}
	return queue
}

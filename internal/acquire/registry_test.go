package acquire_test

import (
	"acquire-server/internal/acquire"
	"acquire-server/internal/board"
	"encoding/json"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var ignoreChainID = cmpopts.IgnoreFields(acquire.Chain{}, "ID")

func TestRegistryCreate(t *testing.T) {
	assert := assert.New(t)
	reg := acquire.NewRegistry()

	c, err := reg.Create(acquire.Sora, tileIDs(t, "2A", "1A"), tileID(t, "1A"))
	require.NoError(t, err)
	assert.NotEmpty(c.ID)
	assert.Equal(2, c.Size())
	assert.Equal(tileIDs(t, "1A", "2A"), c.Tiles, "tiles are kept sorted")

	_, err = reg.Create(acquire.Sora, tileIDs(t, "5E", "5F"), tileID(t, "5E"))
	assert.ErrorIs(err, acquire.ErrDuplicateChainName)

	_, err = reg.Create(acquire.Kumo, tileIDs(t, "2A", "3A"), tileID(t, "3A"))
	assert.ErrorIs(err, acquire.ErrTileAlreadyChained)

	_, err = reg.Create("Tower", tileIDs(t, "5E", "5F"), tileID(t, "5E"))
	assert.ErrorIs(err, acquire.ErrUnknownHotel)

	assert.Equal(1, reg.Len())
	assert.NoError(reg.Validate())
}

func TestRegistryLookups(t *testing.T) {
	assert := assert.New(t)
	reg := acquire.NewRegistry()
	_, err := reg.Create(acquire.Sora, tileIDs(t, "1A", "2A"), tileID(t, "1A"))
	require.NoError(t, err)
	_, err = reg.Create(acquire.Hare, tileIDs(t, "5E", "5F", "5G"), tileID(t, "5E"))
	require.NoError(t, err)

	c, ok := reg.ChainAt(tileID(t, "5F"))
	assert.True(ok)
	assert.Equal(acquire.Hare, c.Name)

	_, ok = reg.ChainAt(tileID(t, "9I"))
	assert.False(ok)

	assert.Equal(3, reg.SizeOf(acquire.Hare))
	assert.Equal(0, reg.SizeOf(acquire.Arashi))
	assert.False(reg.IsSafe(acquire.Hare))

	adjacent := reg.ChainsAdjacentTo(tileIDs(t, "5G", "2A", "5E", "9I"))
	require.Len(t, adjacent, 2)
	assert.Equal(acquire.Hare, adjacent[0].Name, "first found comes first")
	assert.Equal(acquire.Sora, adjacent[1].Name)

	assert.Equal([]acquire.HotelName{acquire.Kumo, acquire.Kiri, acquire.Kaminari, acquire.Arashi, acquire.Ame}, reg.AvailableNames())
}

func TestRegistryExtendAndAbsorb(t *testing.T) {
	assert := assert.New(t)
	reg := acquire.NewRegistry()
	_, err := reg.Create(acquire.Sora, tileIDs(t, "1A", "2A"), tileID(t, "1A"))
	require.NoError(t, err)
	_, err = reg.Create(acquire.Hare, tileIDs(t, "4A", "5A", "6A"), tileID(t, "4A"))
	require.NoError(t, err)

	require.NoError(t, reg.Extend(acquire.Hare, tileIDs(t, "3A", "4A")...))
	assert.Equal(4, reg.SizeOf(acquire.Hare), "extending with a member tile is a no-op for it")

	assert.ErrorIs(reg.Extend(acquire.Hare, tileID(t, "2A")), acquire.ErrTileAlreadyChained)
	assert.ErrorIs(reg.Extend(acquire.Arashi, tileID(t, "9I")), acquire.ErrUnknownChain)

	survivor, err := reg.Absorb(acquire.Hare, acquire.Sora)
	require.NoError(t, err)
	assert.Equal(6, survivor.Size())
	assert.False(reg.IsActive(acquire.Sora))
	assert.Contains(reg.AvailableNames(), acquire.Sora)
	assert.NoError(reg.Validate())

	want := []*acquire.Chain{{
		Name:  acquire.Hare,
		Tiles: tileIDs(t, "1A", "2A", "3A", "4A", "5A", "6A"),
		Home:  tileID(t, "4A"),
	}}
	if diff := cmp.Diff(want, reg.Chains(), ignoreChainID); diff != "" {
		t.Errorf("registry mismatch (-want +got):\n%s", diff)
	}

	_, err = reg.Absorb(acquire.Hare, acquire.Hare)
	assert.ErrorIs(err, acquire.ErrUnknownChain)

	assert.NoError(reg.Remove(acquire.Hare))
	assert.ErrorIs(reg.Remove(acquire.Hare), acquire.ErrUnknownChain)
	assert.Equal(0, reg.Len())
}

func TestRegistryFoundingOrderSurvivesJSON(t *testing.T) {
	reg := acquire.NewRegistry()
	for i, name := range []acquire.HotelName{acquire.Arashi, acquire.Sora, acquire.Kiri} {
		col := 1 + i*3
		ids := []board.TileID{board.TileID((col-1)*board.Rows + 1), board.TileID((col-1)*board.Rows + 2)}
		_, err := reg.Create(name, ids, ids[0])
		require.NoError(t, err)
	}

	data, err := json.Marshal(reg)
	require.NoError(t, err)

	restored := acquire.NewRegistry()
	require.NoError(t, json.Unmarshal(data, restored))

	if diff := cmp.Diff(reg.Chains(), restored.Chains()); diff != "" {
		t.Errorf("decoded registry differs (-want +got):\n%s", diff)
	}
}

func TestRegistryValidate(t *testing.T) {
	tests := []struct {
		name string
		json string
	}{
		{"overlapping chains", `[{"id":"a","name":"空","tiles":[1,2],"home":1},{"id":"b","name":"雲","tiles":[2,3],"home":3}]`},
		{"single tile", `[{"id":"a","name":"空","tiles":[1],"home":1}]`},
		{"duplicate names", `[{"id":"a","name":"空","tiles":[1,2],"home":1},{"id":"b","name":"空","tiles":[20,21],"home":20}]`},
		{"unknown name", `[{"id":"a","name":"Tower","tiles":[1,2],"home":1}]`},
		{"off board", `[{"id":"a","name":"空","tiles":[108,109],"home":108}]`},
		{"disconnected", `[{"id":"a","name":"空","tiles":[1,5],"home":1}]`},
		{"home outside", `[{"id":"a","name":"空","tiles":[1,2],"home":50}]`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reg := acquire.NewRegistry()
			require.NoError(t, json.Unmarshal([]byte(tt.json), reg))
			assert.Error(t, reg.Validate())
		})
	}
}

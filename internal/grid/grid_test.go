package grid

import (
	"testing"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var districtBox = BBox{MinLon: 30.0, MinLat: 59.8, MaxLon: 30.1, MaxLat: 59.9}

func TestPartition_TwoByTwo(t *testing.T) {
	g, err := Partition(districtBox, 2, 2)
	require.NoError(t, err)
	require.Len(t, g.Tiles, 4)

	for i, tile := range g.Tiles {
		assert.Equal(t, i, tile.Index)
		assert.InDelta(t, 0.05, tile.MaxLon-tile.MinLon, 1e-9)
		assert.InDelta(t, 0.05, tile.MaxLat-tile.MinLat, 1e-9)
	}

	// Row-major, top row first.
	assert.Equal(t, 30.0, g.Tiles[0].MinLon)
	assert.Equal(t, 59.9, g.Tiles[0].MaxLat)
	assert.Equal(t, 30.1, g.Tiles[1].MaxLon)
	assert.Equal(t, 59.9, g.Tiles[1].MaxLat)
	assert.Equal(t, 30.0, g.Tiles[2].MinLon)
	assert.Equal(t, 59.8, g.Tiles[2].MinLat)
	assert.Equal(t, 30.1, g.Tiles[3].MaxLon)
	assert.Equal(t, 59.8, g.Tiles[3].MinLat)
}

func TestPartition_PointInExactlyOneTile(t *testing.T) {
	g, err := Partition(districtBox, 2, 2)
	require.NoError(t, err)

	owners := 0
	for _, tile := range g.Tiles {
		if g.Owns(tile, 30.05, 59.85) {
			owners++
		}
	}
	assert.Equal(t, 1, owners)

	_, ok := g.Locate(30.05, 59.85)
	assert.True(t, ok)
}

func TestPartition_Coverage(t *testing.T) {
	for _, dims := range [][2]int{{1, 1}, {2, 2}, {3, 3}, {4, 7}, {10, 3}} {
		g, err := Partition(districtBox, dims[0], dims[1])
		require.NoError(t, err)

		var area float64
		for _, tile := range g.Tiles {
			area += (tile.MaxLon - tile.MinLon) * (tile.MaxLat - tile.MinLat)
		}
		boxArea := (districtBox.MaxLon - districtBox.MinLon) * (districtBox.MaxLat - districtBox.MinLat)
		assert.InDelta(t, boxArea, area, 1e-12, "dims %v", dims)

		// Neighbours share identical edges.
		for _, tile := range g.Tiles {
			if tile.Col+1 < g.NX {
				right := g.Tiles[tile.Index+1]
				assert.Equal(t, tile.MaxLon, right.MinLon)
				assert.Equal(t, tile.MaxLat, right.MaxLat)
			}
			if tile.Row+1 < g.NY {
				below := g.Tiles[tile.Index+g.NX]
				assert.Equal(t, tile.MinLat, below.MaxLat)
			}
		}

		// Every sample point of the box, edges included, has exactly one owner.
		for i := 0; i <= 20; i++ {
			for j := 0; j <= 20; j++ {
				lon := districtBox.MinLon + float64(i)*(districtBox.MaxLon-districtBox.MinLon)/20
				lat := districtBox.MinLat + float64(j)*(districtBox.MaxLat-districtBox.MinLat)/20
				if i == 20 {
					lon = districtBox.MaxLon
				}
				if j == 20 {
					lat = districtBox.MaxLat
				}
				owners := 0
				for _, tile := range g.Tiles {
					if g.Owns(tile, lon, lat) {
						owners++
					}
				}
				assert.Equal(t, 1, owners, "dims %v point %f,%f", dims, lon, lat)
			}
		}
	}
}

func TestPartition_Deterministic(t *testing.T) {
	a, err := Partition(districtBox, 3, 3)
	require.NoError(t, err)
	b, err := Partition(districtBox, 3, 3)
	require.NoError(t, err)
	assert.Equal(t, a.Tiles, b.Tiles)
}

func TestPartition_Invalid(t *testing.T) {
	_, err := Partition(districtBox, 0, 2)
	assert.Error(t, err)

	_, err = Partition(BBox{MinLon: 30, MaxLon: 30, MinLat: 59, MaxLat: 60}, 2, 2)
	assert.Error(t, err)
}

func TestLocate_Outside(t *testing.T) {
	g, err := Partition(districtBox, 2, 2)
	require.NoError(t, err)

	_, ok := g.Locate(29.99, 59.85)
	assert.False(t, ok)
}

func TestTile_Points(t *testing.T) {
	g, err := Partition(districtBox, 1, 1)
	require.NoError(t, err)

	assert.Equal(t, "30,59.9", g.Tiles[0].Point1())
	assert.Equal(t, "30.1,59.8", g.Tiles[0].Point2())
}

func TestFromBound(t *testing.T) {
	b := orb.Bound{Min: orb.Point{30, 59.8}, Max: orb.Point{30.1, 59.9}}
	box := FromBound(b)
	assert.Equal(t, districtBox, box)
	assert.Equal(t, b, box.Bound())
}

package i2b

import (
	"testing"

	"github.com/grailbio/bambi/encoding/runinfo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func pairedEndInfo() *runinfo.Info {
	return &runinfo.Info{
		Reads: []runinfo.ReadSegment{
			{Number: 1, NumCycles: 151, IsIndexedRead: false},
			{Number: 2, NumCycles: 8, IsIndexedRead: true},
			{Number: 3, NumCycles: 151, IsIndexedRead: false},
		},
		SurfaceCount: 1,
		SwathCount:   2,
		TileCount:    2,
	}
}

func TestBuildPlanComputesTilesWhenAbsent(t *testing.T) {
	info := pairedEndInfo()
	opts := &Opts{Lane: 1, Parallelism: 1, QueueLength: 1}
	plan, err := BuildPlan(info, opts)
	require.NoError(t, err)
	assert.Equal(t, []int{1101, 1102, 1201, 1202}, plan.Tiles)
}

func TestBuildPlanUsesExplicitTiles(t *testing.T) {
	info := pairedEndInfo()
	info.Tiles = []int{2203, 1101}
	opts := &Opts{Lane: 1, Parallelism: 1, QueueLength: 1}
	plan, err := BuildPlan(info, opts)
	require.NoError(t, err)
	assert.Equal(t, []int{1101, 2203}, plan.Tiles)
}

func TestBuildPlanFirstTileAndLimit(t *testing.T) {
	info := pairedEndInfo()
	opts := &Opts{Lane: 1, Parallelism: 1, QueueLength: 1, FirstTile: 1102, TileLimit: 2}
	plan, err := BuildPlan(info, opts)
	require.NoError(t, err)
	assert.Equal(t, []int{1102, 1201}, plan.Tiles)
}

// TestBuildPlanFirstTileNotFound exercises the boundary behavior where a
// --first-tile value absent from the plan yields an empty plan with a
// logged warning, not a fatal error: metadata itself has tiles, they are
// just not the one requested.
func TestBuildPlanFirstTileNotFound(t *testing.T) {
	info := pairedEndInfo()
	opts := &Opts{Lane: 1, Parallelism: 1, QueueLength: 1, FirstTile: 9999}
	plan, err := BuildPlan(info, opts)
	require.NoError(t, err)
	assert.Empty(t, plan.Tiles)
}

// TestBuildPlanNoTilesAtAll is the genuinely fatal case: the metadata
// declares no tiles and none can be computed from the flowcell layout.
func TestBuildPlanNoTilesAtAll(t *testing.T) {
	info := pairedEndInfo()
	info.SurfaceCount, info.SwathCount, info.TileCount = 0, 0, 0
	opts := &Opts{Lane: 1, Parallelism: 1, QueueLength: 1}
	_, err := BuildPlan(info, opts)
	require.Error(t, err)
}

func TestBuildPlanReadStructure(t *testing.T) {
	info := pairedEndInfo()
	opts := &Opts{Lane: 1, Parallelism: 1, QueueLength: 1}
	plan, err := BuildPlan(info, opts)
	require.NoError(t, err)

	template := plan.TemplateReads()
	require.Len(t, template, 2)
	assert.Equal(t, 1, template[0].FirstCycle)
	assert.Equal(t, 151, template[0].NumCycles)
	assert.Equal(t, 160, template[1].FirstCycle)
	assert.Equal(t, 151, template[1].NumCycles)

	index := plan.IndexReads()
	require.Len(t, index, 1)
	assert.Equal(t, 152, index[0].FirstCycle)
	assert.Equal(t, 8, index[0].NumCycles)

	assert.Equal(t, 310, plan.TotalCycles())
}

func TestBuildPlanNoReads(t *testing.T) {
	info := &runinfo.Info{SurfaceCount: 1, SwathCount: 1, TileCount: 1}
	opts := &Opts{Lane: 1, Parallelism: 1, QueueLength: 1}
	_, err := BuildPlan(info, opts)
	require.Error(t, err)
}

func dualIndexInfo() *runinfo.Info {
	return &runinfo.Info{
		Reads: []runinfo.ReadSegment{
			{Number: 1, NumCycles: 150, IsIndexedRead: false},
			{Number: 2, NumCycles: 8, IsIndexedRead: true},
			{Number: 3, NumCycles: 8, IsIndexedRead: true},
			{Number: 4, NumCycles: 150, IsIndexedRead: false},
		},
		SurfaceCount: 1,
		SwathCount:   1,
		TileCount:    1,
	}
}

// TestBuildPlanMergesIndexReads covers the single-barcode-tag case: two
// cycle-adjacent index reads collapse into one IndexGroup.
func TestBuildPlanMergesIndexReads(t *testing.T) {
	info := dualIndexInfo()
	opts := &Opts{Lane: 1, Parallelism: 1, QueueLength: 1}
	plan, err := BuildPlan(info, opts)
	require.NoError(t, err)
	require.Len(t, plan.IndexGroups, 1)
	assert.Len(t, plan.IndexGroups[0].Segments, 2)
}

// TestBuildPlanKeepsIndexReadsSeparate covers scenario 2: with two
// configured barcode tags, each index read keeps its own group.
func TestBuildPlanKeepsIndexReadsSeparate(t *testing.T) {
	info := dualIndexInfo()
	opts := &Opts{Lane: 1, Parallelism: 1, QueueLength: 1, BarcodeTag: []string{"BC", "BR"}, QualityTag: []string{"QT", "QU"}}
	plan, err := BuildPlan(info, opts)
	require.NoError(t, err)
	require.Len(t, plan.IndexGroups, 2)
	assert.Len(t, plan.IndexGroups[0].Segments, 1)
	assert.Len(t, plan.IndexGroups[1].Segments, 1)
}

func TestBuildPlanCycleOverrides(t *testing.T) {
	info := dualIndexInfo()
	opts := &Opts{
		Lane: 1, Parallelism: 1, QueueLength: 1,
		FirstCycle: []int{1, 317}, FinalCycle: []int{150, 466},
		FirstIndexCycle: []int{151, 159}, FinalIndexCycle: []int{158, 166},
	}
	plan, err := BuildPlan(info, opts)
	require.NoError(t, err)

	template := plan.TemplateReads()
	require.Len(t, template, 2)
	assert.Equal(t, 1, template[0].FirstCycle)
	assert.Equal(t, 317, template[1].FirstCycle)
	assert.Equal(t, 150, template[1].NumCycles)

	index := plan.IndexReads()
	require.Len(t, index, 2)
	assert.Equal(t, 151, index[0].FirstCycle)
	assert.Equal(t, 159, index[1].FirstCycle)
}

func TestComputeTilesFiveDigit(t *testing.T) {
	info := &runinfo.Info{SurfaceCount: 1, SwathCount: 1, TileCount: 1, SectionPerLane: 2, FiveDigitTiles: true}
	assert.Equal(t, []int{11101, 12101}, computeTiles(info))
}

package i2b

import (
	"testing"

	"github.com/grailbio/bambi/encoding/bcl"
	"github.com/grailbio/bambi/encoding/locs"
	"github.com/grailbio/bambi/encoding/runinfo"
	"github.com/stretchr/testify/assert"
)

func TestBuildReadNameUsesRunIdentifier(t *testing.T) {
	info := &runinfo.Info{Instrument: "A00111", RunNumber: 42}
	opts := &Opts{Lane: 2}
	name := buildReadName(info, opts, 1101, locs.Position{X: 1000, Y: 2000})
	assert.Equal(t, "A00111_42:2:1101:1000:2000", name)
}

func TestBuildReadNameFallsBackToComputerExperiment(t *testing.T) {
	info := &runinfo.Info{Computer: "WIN-ABC", Experiment: "MyExperiment"}
	opts := &Opts{Lane: 1}
	name := buildReadName(info, opts, 1101, locs.Position{X: 5, Y: 6})
	assert.Equal(t, "WIN-ABC_MyExperiment:1:1101:5:6", name)
}

func singleIndexCalls() map[int][]bcl.Call {
	return map[int][]bcl.Call{
		200: {{Base: 'A', Qual: 30}, {Base: 'C', Qual: 25}},
		201: {{Base: 'T', Qual: 28}, {Base: 'G', Qual: 20}},
	}
}

func TestConcatIndexGroupSingleSegment(t *testing.T) {
	calls := singleIndexCalls()
	group := IndexGroup{Segments: []ReadPlan{{FirstCycle: 200, NumCycles: 2}}}
	bases, quals := concatIndexGroup(calls, group, false, 0)
	assert.Equal(t, "AT", bases)
	assert.Equal(t, string([]byte{30 + 33, 28 + 33}), quals)
}

func TestConcatIndexGroupMergedSegmentsWithSeparator(t *testing.T) {
	calls := map[int][]bcl.Call{
		1: {{Base: 'A', Qual: 30}},
		2: {{Base: 'C', Qual: 20}},
	}
	group := IndexGroup{Segments: []ReadPlan{{FirstCycle: 1, NumCycles: 1}, {FirstCycle: 2, NumCycles: 1}}}
	bases, quals := concatIndexGroup(calls, group, false, 0)
	assert.Equal(t, "A-C", bases)
	assert.Equal(t, string([]byte{30 + 33, ' ', 20 + 33}), quals)
}

func TestConcatIndexGroupMergedSegmentsNoSeparator(t *testing.T) {
	calls := map[int][]bcl.Call{
		1: {{Base: 'A', Qual: 30}},
		2: {{Base: 'C', Qual: 20}},
	}
	group := IndexGroup{Segments: []ReadPlan{{FirstCycle: 1, NumCycles: 1}, {FirstCycle: 2, NumCycles: 1}}}
	bases, quals := concatIndexGroup(calls, group, true, 0)
	assert.Equal(t, "AC", bases)
	assert.Equal(t, string([]byte{30 + 33, 20 + 33}), quals)
}

func TestBuildIndexTagsUsesConfiguredTagNames(t *testing.T) {
	calls := singleIndexCalls()
	groups := []IndexGroup{
		{Segments: []ReadPlan{{FirstCycle: 200, NumCycles: 1}}},
		{Segments: []ReadPlan{{FirstCycle: 201, NumCycles: 1}}},
	}
	opts := &Opts{BarcodeTag: []string{"BC", "BR"}, QualityTag: []string{"QT", "QU"}}
	tags := buildIndexTags(calls, groups, opts, 0)
	assert.Len(t, tags, 2)
	assert.Equal(t, "BC", string(tags[0].barcodeTag[:]))
	assert.Equal(t, "BR", string(tags[1].barcodeTag[:]))
}

func TestBuildIndexTagsDefaultsToBCQT(t *testing.T) {
	calls := singleIndexCalls()
	groups := []IndexGroup{{Segments: []ReadPlan{{FirstCycle: 200, NumCycles: 1}}}}
	opts := &Opts{}
	tags := buildIndexTags(calls, groups, opts, 0)
	assert.Len(t, tags, 1)
	assert.Equal(t, "BC", string(tags[0].barcodeTag[:]))
	assert.Equal(t, "QT", string(tags[0].qualityTag[:]))
}

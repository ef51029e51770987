package runinfo

import (
	"context"
	"io/ioutil"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleRunInfo = `<?xml version="1.0"?>
<RunInfo>
  <Run Id="210316_A00111_0042_AHGNXYZ" Number="42">
    <Flowcell>HGNXYZ</Flowcell>
    <Instrument>A00111</Instrument>
    <Date>210316</Date>
    <Reads>
      <Read Number="1" NumCycles="151" IsIndexedRead="N" />
      <Read Number="2" NumCycles="8" IsIndexedRead="Y" />
      <Read Number="3" NumCycles="8" IsIndexedRead="Y" />
      <Read Number="4" NumCycles="151" IsIndexedRead="N" />
    </Reads>
    <FlowcellLayout LaneCount="2" SurfaceCount="2" SwathCount="1" TileCount="2">
      <TileSet>
        <Tiles>
          <Tile>1_1101</Tile>
          <Tile>1_2101</Tile>
        </Tiles>
      </TileSet>
    </FlowcellLayout>
  </Run>
</RunInfo>
`

const sampleRunParameters = `<?xml version="1.0"?>
<RunParameters>
  <RunStartDate>2021-03-16T00:00:00Z</RunStartDate>
  <ApplicationName>NovaSeq Control Software</ApplicationName>
  <ApplicationVersion>1.7.5</ApplicationVersion>
</RunParameters>
`

func writeFile(t *testing.T, path, content string) {
	require.NoError(t, ioutil.WriteFile(path, []byte(content), 0644))
}

func TestReadRunInfo(t *testing.T) {
	dir, err := ioutil.TempDir("", "runinfo")
	require.NoError(t, err)
	defer os.RemoveAll(dir)

	path := filepath.Join(dir, "RunInfo.xml")
	writeFile(t, path, sampleRunInfo)

	info, err := ReadRunInfo(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, "210316_A00111_0042_AHGNXYZ", info.RunID)
	assert.Equal(t, 42, info.RunNumber)
	assert.Equal(t, "A00111", info.Instrument)
	assert.Equal(t, "HGNXYZ", info.FlowcellID)
	assert.Equal(t, []int{1101, 2101}, info.Tiles)
	require.Len(t, info.Reads, 4)
	assert.False(t, info.Reads[0].IsIndexedRead)
	assert.True(t, info.Reads[1].IsIndexedRead)
	assert.Equal(t, "2021-03-16T00:00:00+0000", info.RunStartDate)
}

func TestLoadMergesRunParameters(t *testing.T) {
	dir, err := ioutil.TempDir("", "runinfo")
	require.NoError(t, err)
	defer os.RemoveAll(dir)

	writeFile(t, filepath.Join(dir, "RunInfo.xml"), sampleRunInfo)
	writeFile(t, filepath.Join(dir, "RunParameters.xml"), sampleRunParameters)

	info, err := Load(context.Background(), dir, "")
	require.NoError(t, err)
	assert.Equal(t, "NovaSeq Control Software", info.Software)
	assert.Equal(t, "1.7.5", info.SoftwareVersion)
	assert.Equal(t, "2021-03-16T00:00:00+0000", info.RunStartDate)
}

func TestLoadFallsBackToConfigXML(t *testing.T) {
	dir, err := ioutil.TempDir("", "runinfo")
	require.NoError(t, err)
	defer os.RemoveAll(dir)

	noDateOrSoftware := `<?xml version="1.0"?>
<RunInfo>
  <Run Id="x" Number="1">
    <Flowcell>F</Flowcell>
    <Instrument>I</Instrument>
    <Reads><Read Number="1" NumCycles="10" IsIndexedRead="N" /></Reads>
    <FlowcellLayout LaneCount="1" SurfaceCount="1" SwathCount="1" TileCount="1" />
  </Run>
</RunInfo>
`
	writeFile(t, filepath.Join(dir, "RunInfo.xml"), noDateOrSoftware)

	intensities := filepath.Join(dir, "Data", "Intensities")
	require.NoError(t, os.MkdirAll(intensities, 0755))
	writeFile(t, filepath.Join(intensities, "config.xml"), `<?xml version="1.0"?>
<ImageAnalysis>
  <RunParameters>
    <RunStartDate>2021-03-16</RunStartDate>
  </RunParameters>
  <Setup>
    <ApplicationName>HiSeq Control Software</ApplicationName>
    <ApplicationVersion>2.2.58</ApplicationVersion>
  </Setup>
</ImageAnalysis>
`)

	info, err := Load(context.Background(), dir, intensities)
	require.NoError(t, err)
	assert.Equal(t, "2021-03-16T00:00:00+0000", info.RunStartDate)
	assert.Equal(t, "HiSeq Control Software", info.Software)
	assert.Equal(t, "2.2.58", info.SoftwareVersion)
}

func TestLoadMissingRunStartDate(t *testing.T) {
	dir, err := ioutil.TempDir("", "runinfo")
	require.NoError(t, err)
	defer os.RemoveAll(dir)

	noDate := `<?xml version="1.0"?>
<RunInfo>
  <Run Id="x" Number="1">
    <Flowcell>F</Flowcell>
    <Instrument>I</Instrument>
    <Date></Date>
    <Reads><Read Number="1" NumCycles="10" IsIndexedRead="N" /></Reads>
    <FlowcellLayout LaneCount="1" SurfaceCount="1" SwathCount="1" TileCount="1" />
  </Run>
</RunInfo>
`
	writeFile(t, filepath.Join(dir, "RunInfo.xml"), noDate)

	_, err = Load(context.Background(), dir, "")
	require.Error(t, err)
}

func TestNormalizeRunStartDate(t *testing.T) {
	assert.Equal(t, "2021-03-16T00:00:00+0000", normalizeRunStartDate("210316"))
	assert.Equal(t, "2021-03-16T00:00:00+0000", normalizeRunStartDate("2021-03-16T00:00:00Z"))
	assert.Equal(t, "2021-03-16T00:00:00+0000", normalizeRunStartDate("2021-03-16"))
	assert.Equal(t, "", normalizeRunStartDate("not-a-date"))
}

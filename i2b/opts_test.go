package i2b

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validOpts() *Opts {
	return &Opts{
		RunDir:      "/runs/190101_X1_0001",
		OutputPath:  "/out/lane1.bam",
		Lane:        1,
		Parallelism: 4,
		QueueLength: 5000,
	}
}

func TestValidateFillsDerivedPaths(t *testing.T) {
	opts := validOpts()
	require.NoError(t, Validate(opts))
	assert.Equal(t, "bam", opts.OutputFormat)
	assert.Equal(t, "/runs/190101_X1_0001/Data/Intensities", opts.Intensities)
	assert.Equal(t, "/runs/190101_X1_0001/Data/Intensities/BaseCalls", opts.BaseCalls)
}

func TestValidateRejectsMissingRunDir(t *testing.T) {
	opts := validOpts()
	opts.RunDir = ""
	assert.Error(t, Validate(opts))
}

func TestValidateRejectsUnsupportedFormat(t *testing.T) {
	for _, format := range []string{"sam", "cram", "vcf"} {
		opts := validOpts()
		opts.OutputFormat = format
		assert.Error(t, Validate(opts), format)
	}
}

func TestValidateRejectsBadRanges(t *testing.T) {
	cases := []func(*Opts){
		func(o *Opts) { o.Lane = 0 },
		func(o *Opts) { o.FirstTile = -1 },
		func(o *Opts) { o.TileLimit = -1 },
		func(o *Opts) { o.Parallelism = 0 },
		func(o *Opts) { o.QueueLength = 0 },
		func(o *Opts) { o.Compression = 10 },
	}
	for _, mutate := range cases {
		opts := validOpts()
		mutate(opts)
		assert.Error(t, Validate(opts))
	}
}

func TestValidateHonorsExplicitPaths(t *testing.T) {
	opts := validOpts()
	opts.Intensities = "/custom/intensities"
	opts.BaseCalls = "/custom/basecalls"
	require.NoError(t, Validate(opts))
	assert.Equal(t, "/custom/intensities", opts.Intensities)
	assert.Equal(t, "/custom/basecalls", opts.BaseCalls)
}

func TestValidateDefaultsThreads(t *testing.T) {
	opts := validOpts()
	require.NoError(t, Validate(opts))
	assert.Equal(t, 8, opts.Threads)
	assert.Equal(t, 6, opts.workerCount())
}

func TestValidateRejectsLowThreads(t *testing.T) {
	opts := validOpts()
	opts.Threads = 2
	assert.Error(t, Validate(opts))
}

func TestValidateRejectsMismatchedTags(t *testing.T) {
	opts := validOpts()
	opts.BarcodeTag = []string{"BC"}
	opts.QualityTag = []string{"QT", "QU"}
	assert.Error(t, Validate(opts))
}

func TestValidateRejectsMalformedTag(t *testing.T) {
	opts := validOpts()
	opts.BarcodeTag = []string{"BARCODE"}
	opts.QualityTag = []string{"QT"}
	assert.Error(t, Validate(opts))
}

func TestValidateRejectsTooManyBCRead(t *testing.T) {
	opts := validOpts()
	opts.BCRead = []int{1, 2, 3}
	assert.Error(t, Validate(opts))
}

func TestParseIntList(t *testing.T) {
	got, err := ParseIntList("1,2, 3")
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2, 3}, got)

	got, err = ParseIntList("")
	require.NoError(t, err)
	assert.Nil(t, got)

	_, err = ParseIntList("1,x")
	assert.Error(t, err)
}

func TestParseStringList(t *testing.T) {
	assert.Equal(t, []string{"BC", "BR"}, ParseStringList("BC, BR"))
	assert.Nil(t, ParseStringList(""))
}

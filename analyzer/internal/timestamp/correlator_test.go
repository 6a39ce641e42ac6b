package timestamp

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCorrelator_FirstAnchorHasNoCorrelation(t *testing.T) {
	var c Correlator
	corr, err := c.Observe("2017-12-25T12:00:00.000000", 10, 1)
	require.NoError(t, err)
	assert.Nil(t, corr)

	cur, ok := c.Current()
	require.True(t, ok)
	assert.Equal(t, 10, cur.Sequence)
	assert.Equal(t, 1, c.Anchors())
}

func TestCorrelator_ElapsedAndDrift(t *testing.T) {
	var c Correlator
	_, err := c.Observe("2017-12-25T12:00:00.000000", 100, 1)
	require.NoError(t, err)

	corr, err := c.Observe("2017-12-25T12:01:10.500000", 164, 70)
	require.NoError(t, err)
	require.NotNil(t, corr)

	assert.InDelta(t, 70.5, corr.ElapsedSeconds, 1e-9)
	assert.True(t, corr.SequenceKnown)
	assert.Equal(t, 64, corr.ElapsedSequence)
	assert.InDelta(t, 6.5, corr.Drift, 1e-9)
	assert.Equal(t, 100, corr.Previous.Sequence)
	assert.Equal(t, 164, corr.Current.Sequence)
}

func TestCorrelator_UnknownSequence(t *testing.T) {
	var c Correlator
	_, _ = c.Observe("2017-12-25T12:00:00.000000", -1, 1)

	corr, err := c.Observe("2017-12-25T12:00:30.000000", 29, 31)
	require.NoError(t, err)
	assert.False(t, corr.SequenceKnown)
	assert.Zero(t, corr.Drift)
}

func TestCorrelator_DateBoundaryReanchors(t *testing.T) {
	var c Correlator
	_, _ = c.Observe("2017-12-31T23:59:50.000000", 1, 1)

	_, err := c.Observe("2018-01-01T00:00:10.000000", 21, 22)
	var span *UnsupportedTimeSpanError
	require.True(t, errors.As(err, &span))

	// The next marker on the new date correlates against the re-anchored one.
	corr, err := c.Observe("2018-01-01T00:00:20.000000", 31, 33)
	require.NoError(t, err)
	assert.InDelta(t, 10, corr.ElapsedSeconds, 1e-9)
	assert.Equal(t, 10, corr.ElapsedSequence)
}

func TestCorrelator_BadMarkerKeepsAnchors(t *testing.T) {
	var c Correlator
	_, _ = c.Observe("2017-12-25T12:00:00.000000", 1, 1)

	_, err := c.Observe("not-a-time", 5, 6)
	var pe *ParseError
	require.True(t, errors.As(err, &pe))

	cur, _ := c.Current()
	assert.Equal(t, 1, cur.Sequence)
	assert.Equal(t, 1, c.Anchors())
}

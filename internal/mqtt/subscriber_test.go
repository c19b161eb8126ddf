package mqtt

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kham-river/water-quality-monitor/internal/water"
)

type recordingSink struct {
	got  []water.Reading
	fail string
}

func (s *recordingSink) CreateReading(_ context.Context, r water.Reading) (water.Reading, error) {
	if r.StationID == s.fail {
		return water.Reading{}, water.ErrStationNotFound
	}
	s.got = append(s.got, r)
	return r, nil
}

func newTestSubscriber(sink Sink) *Subscriber {
	s := NewSubscriber(Config{Topic: "stations/+/readings"}, sink, nil)
	s.now = func() time.Time { return time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC) }
	return s
}

func TestHandle_SingleObjectUsesTopicStation(t *testing.T) {
	sink := &recordingSink{}
	s := newTestSubscriber(sink)

	n, err := s.Handle(context.Background(), "stations/st-9/readings", []byte(`{"PH": 7.4, "water_temp": "27.5"}`))
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	require.Len(t, sink.got, 1)
	r := sink.got[0]
	assert.Equal(t, "st-9", r.StationID)
	assert.Equal(t, 7.4, *r.PH)
	assert.Equal(t, 27.5, *r.Temperature)
	assert.True(t, s.now().Equal(r.Timestamp))
}

func TestHandle_ArrayWithExplicitStations(t *testing.T) {
	sink := &recordingSink{fail: "gone"}
	s := newTestSubscriber(sink)

	payload := []byte(`[
		{"station_id": "a", "timestamp": "2024-05-01T10:00:00Z", "tds": 120},
		{"stationId": "gone", "tds": 130},
		{"tds": "lots"}
	]`)
	n, err := s.Handle(context.Background(), "stations/b/readings", payload)
	assert.Equal(t, 1, n)
	require.Error(t, err)
	assert.ErrorIs(t, err, water.ErrStationNotFound)
	assert.Contains(t, err.Error(), "record 3")

	require.Len(t, sink.got, 1)
	assert.Equal(t, "a", sink.got[0].StationID)
	assert.Equal(t, 2024, sink.got[0].Timestamp.Year())
}

func TestHandle_BadPayloads(t *testing.T) {
	s := newTestSubscriber(&recordingSink{})

	_, err := s.Handle(context.Background(), "stations/a/readings", nil)
	assert.Error(t, err)

	_, err = s.Handle(context.Background(), "stations/a/readings", []byte(`{"ph":`))
	assert.Error(t, err)

	n, err := s.Handle(context.Background(), "readings", []byte(`{"ph": 7}`))
	assert.Zero(t, n)
	assert.True(t, err != nil && !errors.Is(err, water.ErrStationNotFound))
}

func TestStationFromTopic(t *testing.T) {
	assert.Equal(t, "abc", stationFromTopic("stations/abc/readings"))
	assert.Equal(t, "", stationFromTopic("readings"))
}

package arrow_client

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"

	"github.com/23skdu/longbow-weightwatcher/internal/watcher"
	"github.com/apache/arrow-go/v18/arrow/flight"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingServer struct {
	flight.BaseFlightServer

	mu   sync.Mutex
	rows map[string]int64
}

func (s *recordingServer) DoPut(stream flight.FlightService_DoPutServer) error {
	rdr, err := flight.NewRecordReader(stream)
	if err != nil {
		return err
	}
	defer rdr.Release()

	path := strings.Join(rdr.LatestFlightDescriptor().GetPath(), "/")
	var n int64
	for rdr.Next() {
		n += rdr.Record().NumRows()
	}
	if err := rdr.Err(); err != nil && !errors.Is(err, io.EOF) {
		return err
	}

	s.mu.Lock()
	s.rows[path] += n
	s.mu.Unlock()
	return nil
}

func startServer(t *testing.T) (*recordingServer, string) {
	t.Helper()
	impl := &recordingServer{rows: make(map[string]int64)}
	srv := flight.NewServerWithMiddleware(nil)
	require.NoError(t, srv.Init("localhost:0"))
	srv.RegisterFlightService(impl)
	go func() { _ = srv.Serve() }()
	t.Cleanup(srv.Shutdown)
	return impl, srv.Addr().String()
}

func TestFlightClientPublishAnalysis(t *testing.T) {
	impl, addr := startServer(t)

	fc, err := NewFlightClient(addr, nil)
	require.NoError(t, err)
	require.NoError(t, fc.Connect(context.Background()))
	defer fc.Close()

	records := sampleRecords()
	s := watcher.Summarize(records, watcher.DefaultOptions())
	require.NoError(t, PublishAnalysis(context.Background(), fc, "weightwatcher", "tiny", "run-1", records, s))

	impl.mu.Lock()
	defer impl.mu.Unlock()
	assert.EqualValues(t, 2, impl.rows["weightwatcher/tiny/details"])
	assert.EqualValues(t, len(s.Keys()), impl.rows["weightwatcher/tiny/summary"])
}

func TestFlightClientNotConnected(t *testing.T) {
	fc, err := NewFlightClient("localhost:1", nil)
	require.NoError(t, err)

	rec := BuildDetailsRecord(memory.NewGoAllocator(), nil, nil)
	defer rec.Release()
	assert.ErrorIs(t, fc.Publish(context.Background(), []string{"x"}, rec), ErrNotConnected)
	assert.NoError(t, fc.Close())
}

func TestNewFlightClientEmptyAddr(t *testing.T) {
	_, err := NewFlightClient("", nil)
	assert.Error(t, err)
}

func TestMockFlightClient(t *testing.T) {
	m := NewMockFlightClient()
	rec := BuildDetailsRecord(memory.NewGoAllocator(), sampleRecords(), nil)
	defer rec.Release()

	assert.Error(t, m.Publish(context.Background(), []string{"a"}, rec))

	require.NoError(t, m.Connect(context.Background()))
	records := sampleRecords()
	s := watcher.Summarize(records, watcher.DefaultOptions())
	require.NoError(t, PublishAnalysis(context.Background(), m, "ww", "m", "r", records, s))

	assert.ElementsMatch(t, []string{"ww/m/details", "ww/m/summary"}, m.Paths())
	got, ok := m.Record("ww", "m", "details")
	require.True(t, ok)
	assert.EqualValues(t, 2, got.NumRows())

	require.NoError(t, m.Close())
	assert.Empty(t, m.Paths())
}

package arrow_client

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/23skdu/longbow-weightwatcher/internal/logger"
	"github.com/23skdu/longbow-weightwatcher/internal/watcher"
	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/flight"
	"github.com/apache/arrow-go/v18/arrow/ipc"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

const DefaultTimeout = 30 * time.Second

var ErrNotConnected = errors.New("client not connected, call Connect() first")

// Publisher sends record batches to a named destination.
type Publisher interface {
	Publish(ctx context.Context, path []string, rec arrow.Record) error
	Close() error
}

// FlightClient publishes analysis results to an Arrow Flight server with
// DoPut. Each Publish is one stream carrying one record batch.
type FlightClient struct {
	addr    string
	client  flight.Client
	timeout time.Duration
	log     *logger.Logger
}

func NewFlightClient(addr string, log *logger.Logger) (*FlightClient, error) {
	if addr == "" {
		return nil, errors.New("empty flight address")
	}
	if log == nil {
		log = logger.Nop()
	}
	return &FlightClient{addr: addr, timeout: DefaultTimeout, log: log}, nil
}

// Connect dials the server. Dialing is lazy, so an unreachable server
// surfaces on the first Publish.
func (fc *FlightClient) Connect(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	client, err := flight.NewClientWithMiddleware(fc.addr, nil, nil,
		grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return fmt.Errorf("failed to create Flight client: %w", err)
	}
	fc.client = client
	return nil
}

func (fc *FlightClient) Close() error {
	if fc.client == nil {
		return nil
	}
	err := fc.client.Close()
	fc.client = nil
	return err
}

func (fc *FlightClient) Publish(ctx context.Context, path []string, rec arrow.Record) error {
	if fc.client == nil {
		return ErrNotConnected
	}
	ctx, cancel := context.WithTimeout(ctx, fc.timeout)
	defer cancel()

	stream, err := fc.client.DoPut(ctx)
	if err != nil {
		return fmt.Errorf("failed to open DoPut stream: %w", err)
	}

	w := flight.NewRecordWriter(stream, ipc.WithSchema(rec.Schema()))
	w.SetFlightDescriptor(&flight.FlightDescriptor{Type: flight.DescriptorPATH, Path: path})
	if err := w.Write(rec); err != nil {
		_ = w.Close()
		return fmt.Errorf("failed to write record: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("failed to close writer: %w", err)
	}
	if err := stream.CloseSend(); err != nil {
		return fmt.Errorf("failed to close stream: %w", err)
	}
	for {
		if _, err := stream.Recv(); err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return fmt.Errorf("DoPut failed: %w", err)
		}
	}

	fc.log.Debug("published record", "addr", fc.addr, "path", path, "rows", rec.NumRows())
	return nil
}

// PublishAnalysis sends the details and the summary of one run under
// <prefix>/<model>/details and <prefix>/<model>/summary.
func PublishAnalysis(ctx context.Context, p Publisher, prefix, model, runID string,
	records []watcher.LayerRecord, summary watcher.Summary) error {
	meta := map[string]string{"model": model, "run_id": runID}
	mem := memory.NewGoAllocator()

	details := BuildDetailsRecord(mem, records, meta)
	defer details.Release()
	if err := p.Publish(ctx, []string{prefix, model, "details"}, details); err != nil {
		return fmt.Errorf("publish details: %w", err)
	}

	sum := BuildSummaryRecord(mem, summary, meta)
	defer sum.Release()
	if err := p.Publish(ctx, []string{prefix, model, "summary"}, sum); err != nil {
		return fmt.Errorf("publish summary: %w", err)
	}
	return nil
}

package client

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/flight"
	"github.com/rs/zerolog/log"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

// ErrCircuitOpen is returned by Publish while the circuit breaker is open.
var ErrCircuitOpen = errors.New("client: circuit open, publication skipped")

// Putter sends record batches to a named dataset.
type Putter interface {
	DoPut(ctx context.Context, datasetName string, record arrow.RecordBatch) error
	Close() error
}

var _ Putter = (*FlightClient)(nil)

// FlightClient handles communication with a Longbow server via Apache Flight.
type FlightClient struct {
	client flight.Client
	conn   *grpc.ClientConn
}

// NewFlightClient creates a new Flight client for addr. The connection is
// established lazily on first use.
func NewFlightClient(addr string) (*FlightClient, error) {
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("flight client %s: %w", addr, err)
	}

	return &FlightClient{
		client: flight.NewClientFromConn(conn, nil),
		conn:   conn,
	}, nil
}

// DoPut sends a RecordBatch to the given dataset. The dataset name travels as
// a PATH descriptor on the first message.
func (c *FlightClient) DoPut(ctx context.Context, datasetName string, record arrow.RecordBatch) error {
	stream, err := c.client.DoPut(ctx)
	if err != nil {
		return err
	}

	writer := flight.NewRecordWriter(stream)
	writer.SetFlightDescriptor(&flight.FlightDescriptor{
		Type: flight.DescriptorPATH,
		Path: []string{datasetName},
	})

	if err := writer.Write(record); err != nil {
		_ = writer.Close()
		return err
	}
	if err := writer.Close(); err != nil {
		return err
	}

	// Drain acknowledgements so the server finishes before we return.
	if err := stream.CloseSend(); err != nil {
		return err
	}
	for {
		if _, err := stream.Recv(); err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}
	}
}

// Close closes the client connection.
func (c *FlightClient) Close() error {
	return c.conn.Close()
}

// Publisher sends result batches through a Putter, guarded by a circuit
// breaker so a dead server does not make every run wait on it.
type Publisher struct {
	putter  Putter
	dataset string
	breaker *CircuitBreaker
}

func NewPublisher(p Putter, dataset string, cb *CircuitBreaker) *Publisher {
	return &Publisher{putter: p, dataset: dataset, breaker: cb}
}

// Publish sends rec unless the breaker is open. Failures are recorded on the
// breaker and returned.
func (p *Publisher) Publish(ctx context.Context, rec arrow.RecordBatch) error {
	if !p.breaker.Allow() {
		publishTotal.WithLabelValues("skipped").Inc()
		return ErrCircuitOpen
	}

	if err := p.putter.DoPut(ctx, p.dataset, rec); err != nil {
		p.breaker.Failure()
		publishTotal.WithLabelValues("error").Inc()
		log.Warn().
			Err(err).
			Str("dataset", p.dataset).
			Str("breaker", p.breaker.State().String()).
			Msg("Failed to publish results")
		return fmt.Errorf("publish to %s: %w", p.dataset, err)
	}

	p.breaker.Success()
	publishTotal.WithLabelValues("ok").Inc()
	publishedRows.Add(float64(rec.NumRows()))
	log.Info().Str("dataset", p.dataset).Int64("rows", rec.NumRows()).Msg("Published results")
	return nil
}

// Close closes the underlying Putter.
func (p *Publisher) Close() error {
	return p.putter.Close()
}

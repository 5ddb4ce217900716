package generate

import (
	"context"
	"crypto/sha256"
	"encoding/csv"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"

	json "github.com/goccy/go-json"
	"github.com/segmentio/kafka-go"
)

// CSVSink writes <Dir>/<table>.csv with a header row.
type CSVSink struct {
	Dir string
}

// WriteTable implements Sink.
func (s CSVSink) WriteTable(ctx context.Context, t *Table) (TableFile, error) {
	if err := os.MkdirAll(s.Dir, 0o750); err != nil {
		return TableFile{}, fmt.Errorf("failed to create output directory: %w", err)
	}
	path := filepath.Join(s.Dir, t.Name+".csv")

	f, err := os.Create(path) //nolint:gosec // output path under the configured data dir
	if err != nil {
		return TableFile{}, err
	}
	defer func() { _ = f.Close() }()

	h := sha256.New()
	w := csv.NewWriter(io.MultiWriter(f, h))
	if err := w.Write(t.Columns); err != nil {
		return TableFile{}, err
	}
	for i, row := range t.Rows {
		if i%1000 == 0 {
			if err := ctx.Err(); err != nil {
				return TableFile{}, err
			}
		}
		if err := w.Write(row); err != nil {
			return TableFile{}, err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return TableFile{}, err
	}
	if err := f.Close(); err != nil {
		return TableFile{}, err
	}

	return TableFile{
		Name:     t.Name,
		Location: path,
		Rows:     len(t.Rows),
		SHA256:   hex.EncodeToString(h.Sum(nil)),
	}, nil
}

// messageWriter is the part of *kafka.Writer the sink uses.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaSink publishes each row as a JSON object to topic <TopicPrefix><table>,
// keyed by the table's primary key.
type KafkaSink struct {
	Brokers     []string
	TopicPrefix string
	// BatchSize is the number of messages per WriteMessages call.
	BatchSize int

	newWriter func(topic string) messageWriter
}

func (s KafkaSink) writer(topic string) messageWriter {
	if s.newWriter != nil {
		return s.newWriter(topic)
	}
	return &kafka.Writer{
		Addr:                   kafka.TCP(s.Brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireAll,
		AllowAutoTopicCreation: true,
	}
}

// WriteTable implements Sink. The checksum covers the message values in order.
func (s KafkaSink) WriteTable(ctx context.Context, t *Table) (tf TableFile, err error) {
	if len(s.Brokers) == 0 && s.newWriter == nil {
		return TableFile{}, fmt.Errorf("kafka sink needs at least one broker")
	}
	batchSize := s.BatchSize
	if batchSize <= 0 {
		batchSize = 500
	}

	topic := s.TopicPrefix + t.Name
	w := s.writer(topic)
	defer func() {
		if cerr := w.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("failed to close kafka writer for %s: %w", topic, cerr)
		}
	}()

	keyIdx := 0
	for i, c := range t.Columns {
		if c == t.Key {
			keyIdx = i
		}
	}

	h := sha256.New()
	batch := make([]kafka.Message, 0, batchSize)
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		if err := w.WriteMessages(ctx, batch...); err != nil {
			return fmt.Errorf("failed to publish to %s: %w", topic, err)
		}
		batch = make([]kafka.Message, 0, batchSize)
		return nil
	}

	for _, row := range t.Rows {
		payload := make(map[string]string, len(t.Columns))
		for i, c := range t.Columns {
			payload[c] = row[i]
		}
		value, err := json.Marshal(payload)
		if err != nil {
			return TableFile{}, err
		}
		h.Write(value)

		batch = append(batch, kafka.Message{Key: []byte(row[keyIdx]), Value: value})
		if len(batch) == batchSize {
			if err := flush(); err != nil {
				return TableFile{}, err
			}
		}
	}
	if err := flush(); err != nil {
		return TableFile{}, err
	}

	return TableFile{
		Name:     t.Name,
		Location: "kafka://" + topic,
		Rows:     len(t.Rows),
		SHA256:   hex.EncodeToString(h.Sum(nil)),
	}, nil
}

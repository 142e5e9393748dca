package sink

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/sirupsen/logrus"

	"github.com/dudu/facedetect/internal/detector"
)

// Execer is the part of a pgx connection the recorder uses
type Execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

const schema = `
	CREATE TABLE IF NOT EXISTS predictions (
		id UUID PRIMARY KEY,
		frame_seq BIGINT NOT NULL,
		captured_at TIMESTAMPTZ NOT NULL,
		latency_ms DOUBLE PRECISION NOT NULL,
		face_count INT NOT NULL,
		faces JSONB NOT NULL,
		recorded_at TIMESTAMPTZ DEFAULT NOW()
	);
	CREATE INDEX IF NOT EXISTS predictions_captured_at_idx ON predictions (captured_at);
`

const insertPrediction = `
	INSERT INTO predictions (id, frame_seq, captured_at, latency_ms, face_count, faces)
	VALUES ($1, $2, $3, $4, $5, $6::jsonb)
`

// Postgres records predictions in a table
type Postgres struct {
	*Async
	db Execer
}

// NewPostgres ensures the schema exists and starts the recorder
func NewPostgres(ctx context.Context, db Execer, queueSize int, logger logrus.FieldLogger) (*Postgres, error) {
	if _, err := db.Exec(ctx, schema); err != nil {
		return nil, fmt.Errorf("failed to initialize database schema: %w", err)
	}
	p := &Postgres{db: db}
	p.Async = NewAsync("postgres", queueSize, p.insert, logger)
	return p, nil
}

func (p *Postgres) insert(ctx context.Context, pred *detector.Prediction) error {
	payload := NewPayload(pred)
	faces, err := json.Marshal(payload.Faces)
	if err != nil {
		return fmt.Errorf("failed to encode faces: %w", err)
	}
	_, err = p.db.Exec(ctx, insertPrediction,
		payload.ID, payload.FrameSeq, payload.CapturedAt, payload.LatencyMs, len(payload.Faces), string(faces))
	return err
}

// ConnectPostgres opens a connection
func ConnectPostgres(ctx context.Context, url string) (*pgx.Conn, error) {
	conn, err := pgx.Connect(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to postgres: %w", err)
	}
	return conn, nil
}

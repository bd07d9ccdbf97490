// Package vecstore adapts the Qdrant vector database for chunk embedding
// storage and nearest-neighbour queries over gRPC.
package vecstore

import (
	"context"
	"log"
	"log/slog"
	"path/filepath"
	"sync"

	"github.com/google/uuid"
	"github.com/qdrant/go-client/qdrant"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/soundprint/soundprint/internal/conf"
	"github.com/soundprint/soundprint/internal/embedding"
	"github.com/soundprint/soundprint/internal/errors"
	"github.com/soundprint/soundprint/internal/logging"
)

// Collection geometry. The embedding model emits 512-dim vectors compared
// by cosine distance; HNSW and quantization parameters follow the sizing
// for a single-node deployment with the index held in RAM.
const (
	vectorDim       = 512
	hnswM           = 16
	hnswEfConstruct = 200
	quantile        = 0.99

	// upsertBatchSize bounds a single gRPC upsert call.
	upsertBatchSize = 100

	// queryHnswEf trades recall for latency on search queries.
	queryHnswEf = 128
)

var (
	vecLogger      *slog.Logger
	vecLevelVar    = new(slog.LevelVar)
	closeVecLogger func() error
)

func init() {
	var err error
	logFilePath := filepath.Join("logs", "vecstore.log")
	vecLevelVar.Set(slog.LevelInfo)

	vecLogger, closeVecLogger, err = logging.NewFileLogger(logFilePath, "vecstore", vecLevelVar)
	if err != nil {
		log.Printf("Failed to initialize vecstore file logger at %s: %v. Using default logger.", logFilePath, err)
		vecLogger = slog.Default().With("service", "vecstore")
		closeVecLogger = func() error { return nil }
	}
}

// CloseLogger releases the package log file. Called on service shutdown.
func CloseLogger() error {
	if closeVecLogger != nil {
		return closeVecLogger()
	}
	return nil
}

// Hit is one chunk-level result from a nearest-neighbour query.
type Hit struct {
	TrackID    string
	Score      float64
	ChunkIndex int
	OffsetSec  float64
}

// TrackMeta carries the descriptive payload fields stored alongside each
// chunk vector so genre filters and result display need no SQL join.
type TrackMeta struct {
	Artist *string
	Title  *string
	Genre  *string
}

// grpcClient is the slice of the Qdrant client the store uses. Tests
// substitute a fake; production code passes *qdrant.Client.
type grpcClient interface {
	CollectionExists(ctx context.Context, collectionName string) (bool, error)
	CreateCollection(ctx context.Context, request *qdrant.CreateCollection) error
	CreateFieldIndex(ctx context.Context, request *qdrant.CreateFieldIndexCollection) (*qdrant.UpdateResult, error)
	Upsert(ctx context.Context, request *qdrant.UpsertPoints) (*qdrant.UpdateResult, error)
	Query(ctx context.Context, request *qdrant.QueryPoints) ([]*qdrant.ScoredPoint, error)
	Delete(ctx context.Context, request *qdrant.DeletePoints) (*qdrant.UpdateResult, error)
	HealthCheck(ctx context.Context) (*qdrant.HealthCheckReply, error)
	Close() error
}

// Store wraps a Qdrant collection holding one point per embedded chunk.
type Store struct {
	client     grpcClient
	collection string

	// ensured latches a successful EnsureCollection so the write path
	// skips the existence probe after the first round trip.
	ensureMu sync.Mutex
	ensured  bool
}

// New connects to Qdrant using the configured host, port and credentials.
// The connection is lazy, so a down Qdrant surfaces on first use rather
// than here.
func New(settings *conf.Settings) (*Store, error) {
	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   settings.Qdrant.Host,
		Port:   settings.Qdrant.Port,
		APIKey: settings.Qdrant.APIKey,
		UseTLS: settings.Qdrant.UseTLS,
	})
	if err != nil {
		return nil, errors.New(err).
			Component("vecstore").
			Category(errors.CategoryConfiguration).
			Context("host", settings.Qdrant.Host).
			Context("port", settings.Qdrant.Port).
			Build()
	}

	return &Store{
		client:     client,
		collection: settings.Qdrant.Collection,
	}, nil
}

// Close releases the gRPC connection.
func (s *Store) Close() error {
	return s.client.Close()
}

// EnsureCollection creates the chunk collection and its payload indexes
// when they do not exist yet. Called at serve startup and again lazily
// before the first upsert; failures do not latch, so a Qdrant that was
// down at startup is retried on the next write.
func (s *Store) EnsureCollection(ctx context.Context) error {
	s.ensureMu.Lock()
	defer s.ensureMu.Unlock()
	if s.ensured {
		return nil
	}
	if err := s.ensureCollection(ctx); err != nil {
		return err
	}
	s.ensured = true
	return nil
}

func (s *Store) ensureCollection(ctx context.Context) error {
	exists, err := s.client.CollectionExists(ctx, s.collection)
	if err != nil {
		return errors.New(err).
			Component("vecstore").
			Category(errors.CategoryVectorStore).
			Context("operation", "collection-exists").
			Context("collection", s.collection).
			Build()
	}
	if exists {
		return nil
	}

	err = s.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: s.collection,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     vectorDim,
			Distance: qdrant.Distance_Cosine,
		}),
		HnswConfig: &qdrant.HnswConfigDiff{
			M:           qdrant.PtrOf(uint64(hnswM)),
			EfConstruct: qdrant.PtrOf(uint64(hnswEfConstruct)),
		},
		QuantizationConfig: qdrant.NewQuantizationScalar(&qdrant.ScalarQuantization{
			Type:      qdrant.QuantizationType_Int8,
			Quantile:  qdrant.PtrOf(float32(quantile)),
			AlwaysRam: qdrant.PtrOf(true),
		}),
	})
	if err != nil {
		return errors.New(err).
			Component("vecstore").
			Category(errors.CategoryVectorStore).
			Context("operation", "create-collection").
			Context("collection", s.collection).
			Build()
	}

	// Keyword indexes let delete-by-track and genre filters avoid full
	// scans.
	for _, field := range []string{"track_id", "genre"} {
		_, err := s.client.CreateFieldIndex(ctx, &qdrant.CreateFieldIndexCollection{
			CollectionName: s.collection,
			FieldName:      field,
			FieldType:      qdrant.FieldType_FieldTypeKeyword.Enum(),
		})
		if err != nil {
			return errors.New(err).
				Component("vecstore").
				Category(errors.CategoryVectorStore).
				Context("operation", "create-field-index").
				Context("field", field).
				Build()
		}
	}

	vecLogger.Info("created vector collection",
		"collection", s.collection,
		"dim", vectorDim)
	return nil
}

// UpsertChunks writes one point per embedded chunk in batches, returning
// the number of points written. Point IDs are fresh UUIDs, so re-ingesting
// a track appends rather than overwrites; callers delete stale points by
// track ID first when replacing.
func (s *Store) UpsertChunks(ctx context.Context, trackID string, chunks []embedding.EmbeddedChunk, meta TrackMeta) (int, error) {
	if len(chunks) == 0 {
		return 0, nil
	}
	if err := s.EnsureCollection(ctx); err != nil {
		return 0, err
	}

	points := make([]*qdrant.PointStruct, 0, len(chunks))
	for i := range chunks {
		payload := map[string]any{
			"track_id":     trackID,
			"offset_sec":   chunks[i].OffsetSec,
			"chunk_index":  chunks[i].Index,
			"duration_sec": chunks[i].DurationSec,
		}
		if meta.Artist != nil {
			payload["artist"] = *meta.Artist
		}
		if meta.Title != nil {
			payload["title"] = *meta.Title
		}
		if meta.Genre != nil {
			payload["genre"] = *meta.Genre
		}

		points = append(points, &qdrant.PointStruct{
			Id:      qdrant.NewID(uuid.NewString()),
			Vectors: qdrant.NewVectors(chunks[i].Vector...),
			Payload: qdrant.NewValueMap(payload),
		})
	}

	for start := 0; start < len(points); start += upsertBatchSize {
		end := min(start+upsertBatchSize, len(points))
		_, err := s.client.Upsert(ctx, &qdrant.UpsertPoints{
			CollectionName: s.collection,
			Points:         points[start:end],
			Wait:           qdrant.PtrOf(true),
		})
		if err != nil {
			return start, errors.New(err).
				Component("vecstore").
				Category(errors.CategoryVectorStore).
				Context("operation", "upsert").
				Context("track_id", trackID).
				Context("batch_start", start).
				Build()
		}
	}

	vecLogger.Debug("upserted chunk vectors",
		"track_id", trackID,
		"points", len(points))
	return len(points), nil
}

// QueryNearest returns the closest chunk points to the given vector.
// Points without a usable track_id payload are skipped. A missing
// collection is reported with CategoryNotFound so the caller can treat an
// empty index as zero results rather than an outage.
func (s *Store) QueryNearest(ctx context.Context, vector []float32, limit int) ([]Hit, error) {
	if len(vector) == 0 || limit <= 0 {
		return nil, nil
	}

	points, err := s.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: s.collection,
		Query:          qdrant.NewQuery(vector...),
		Limit:          qdrant.PtrOf(uint64(limit)), //nolint:gosec // limit checked positive
		WithPayload:    qdrant.NewWithPayload(true),
		Params: &qdrant.SearchParams{
			HnswEf: qdrant.PtrOf(uint64(queryHnswEf)),
		},
	})
	if err != nil {
		category := errors.CategoryVectorStore
		if status.Code(err) == codes.NotFound {
			category = errors.CategoryNotFound
		}
		return nil, errors.New(err).
			Component("vecstore").
			Category(category).
			Context("operation", "query").
			Context("collection", s.collection).
			Build()
	}

	hits := make([]Hit, 0, len(points))
	for _, point := range points {
		trackID := point.GetPayload()["track_id"].GetStringValue()
		if trackID == "" {
			vecLogger.Warn("skipping point without track_id payload",
				"point_id", point.GetId().String())
			continue
		}
		hits = append(hits, Hit{
			TrackID:    trackID,
			Score:      float64(point.GetScore()),
			ChunkIndex: int(point.GetPayload()["chunk_index"].GetIntegerValue()),
			OffsetSec:  payloadFloat(point.GetPayload()["offset_sec"]),
		})
	}
	return hits, nil
}

// payloadFloat reads offset_sec, which Qdrant may return as an integer
// when the stored offset had no fractional part.
func payloadFloat(value *qdrant.Value) float64 {
	if value == nil {
		return 0
	}
	if _, ok := value.GetKind().(*qdrant.Value_IntegerValue); ok {
		return float64(value.GetIntegerValue())
	}
	return value.GetDoubleValue()
}

// DeleteTrack removes every point belonging to the track.
func (s *Store) DeleteTrack(ctx context.Context, trackID string) error {
	_, err := s.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: s.collection,
		Points: qdrant.NewPointsSelectorFilter(&qdrant.Filter{
			Must: []*qdrant.Condition{
				qdrant.NewMatch("track_id", trackID),
			},
		}),
		Wait: qdrant.PtrOf(true),
	})
	if err != nil {
		return errors.New(err).
			Component("vecstore").
			Category(errors.CategoryVectorStore).
			Context("operation", "delete-track").
			Context("track_id", trackID).
			Build()
	}
	return nil
}

// HealthCheck reports whether Qdrant answers on the gRPC channel.
func (s *Store) HealthCheck(ctx context.Context) error {
	if _, err := s.client.HealthCheck(ctx); err != nil {
		return errors.New(err).
			Component("vecstore").
			Category(errors.CategoryVectorStore).
			Context("operation", "health-check").
			Build()
	}
	return nil
}

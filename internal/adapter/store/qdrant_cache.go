package store

import (
	"context"
	"fmt"
	"log"
	"time"

	"armor-gateway/internal/domain/entity"

	"github.com/google/uuid"
	"github.com/qdrant/go-client/qdrant"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// replyTTL bounds how long a cached answer stays servable.
const replyTTL = 24 * time.Hour

// QdrantCache is the semantic cache over safe generated replies. Entries
// are keyed by prompt embedding and filtered by safety profile, so a
// permissive answer never serves a conservative request.
type QdrantCache struct {
	client         *qdrant.Client
	collectionName string
}

func NewQdrantCache(client *qdrant.Client, collectionName string) *QdrantCache {
	return &QdrantCache{
		client:         client,
		collectionName: collectionName,
	}
}

func (s *QdrantCache) InitCollection(ctx context.Context, dim uint64) error {
	_, err := s.client.GetCollectionInfo(ctx, s.collectionName)
	if err != nil {
		st, ok := status.FromError(err)
		if ok && st.Code() == codes.NotFound {
			err := s.client.CreateCollection(ctx, &qdrant.CreateCollection{
				CollectionName: s.collectionName,
				VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
					Size:     dim,
					Distance: qdrant.Distance_Cosine,
				}),
			})
			if err != nil {
				return fmt.Errorf("failed to create collection: %w", err)
			}
		} else {
			return err
		}
	}

	// Payload index on created_at keeps the freshness filter cheap.
	_, err = s.client.CreateFieldIndex(ctx, &qdrant.CreateFieldIndexCollection{
		CollectionName: s.collectionName,
		FieldName:      "created_at",
		FieldType:      qdrant.FieldType_FieldTypeInteger.Enum(),
		Wait:           qdrant.PtrOf(true),
	})
	if err != nil {
		log.Printf("[QDRANT] Warning: could not create created_at index (might already exist): %v", err)
	}

	return nil
}

func (s *QdrantCache) Search(ctx context.Context, vector []float32, threshold float32, profile string) (*entity.ChatReply, error) {
	cutoff := time.Now().Add(-replyTTL).Unix()
	must := []*qdrant.Condition{
		qdrant.NewMatch("profile", profile),
		{
			ConditionOneOf: &qdrant.Condition_Field{
				Field: &qdrant.FieldCondition{
					Key: "created_at",
					Range: &qdrant.Range{
						Gte: qdrant.PtrOf(float64(cutoff)),
					},
				},
			},
		},
	}

	res, err := s.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: s.collectionName,
		Query:          qdrant.NewQuery(vector...),
		Filter:         &qdrant.Filter{Must: must},
		Limit:          qdrant.PtrOf(uint64(1)),
		WithPayload:    qdrant.NewWithPayload(true),
		ScoreThreshold: &threshold,
	})
	if err != nil || len(res) == 0 {
		return nil, err
	}

	payload := res[0].Payload
	return &entity.ChatReply{
		Text:    payload["content"].GetStringValue(),
		Backend: payload["backend"].GetStringValue(),
		Details: map[string]entity.CategoryLabel{},
		Cached:  true,
	}, nil
}

func (s *QdrantCache) Save(ctx context.Context, prompt string, reply *entity.ChatReply, vector []float32, profile string) error {
	// Blocked replies are never cached; only safe answers are reusable.
	if reply.Blocked {
		return nil
	}

	payload := map[string]any{
		"prompt":     prompt,
		"content":    reply.Text,
		"backend":    reply.Backend,
		"profile":    profile,
		"verdict":    string(entity.LabelSafe),
		"created_at": time.Now().Unix(),
	}

	_, err := s.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: s.collectionName,
		Points: []*qdrant.PointStruct{
			{
				Id:      qdrant.NewIDUUID(uuid.NewString()),
				Vectors: qdrant.NewVectors(vector...),
				Payload: qdrant.NewValueMap(payload),
			},
		},
	})
	return err
}

package qdrant

import (
	"context"
	"fmt"

	"github.com/barekit/agrilab/pkg/knowledge"
	"github.com/google/uuid"
	"github.com/qdrant/go-client/qdrant"
)

// payloadRecordID carries the external record id (e.g. "U12345"), which is
// not a valid qdrant point id. Point ids are UUIDs derived from it.
const payloadRecordID = "record_id"

// QdrantStore implements knowledge.VectorStore using Qdrant.
type QdrantStore struct {
	client         *qdrant.Client
	collectionName string
	vectorSize     uint64
}

// New creates a new QdrantStore.
func New(host string, port int, collectionName string, vectorSize uint64) (*QdrantStore, error) {
	client, err := qdrant.NewClient(&qdrant.Config{
		Host: host,
		Port: port,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create client: %w", err)
	}

	store := &QdrantStore{
		client:         client,
		collectionName: collectionName,
		vectorSize:     vectorSize,
	}

	if err := store.initCollection(context.Background()); err != nil {
		return nil, err
	}

	return store, nil
}

func (s *QdrantStore) initCollection(ctx context.Context) error {
	// Check if collection exists
	exists, err := s.client.CollectionExists(ctx, s.collectionName)
	if err != nil {
		return fmt.Errorf("failed to check collection existence: %w", err)
	}

	if !exists {
		// Create collection
		err := s.client.CreateCollection(ctx, &qdrant.CreateCollection{
			CollectionName: s.collectionName,
			VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
				Size:     s.vectorSize,
				Distance: qdrant.Distance_Cosine,
			}),
		})
		if err != nil {
			return fmt.Errorf("failed to create collection: %w", err)
		}
	}
	return nil
}

func pointID(recordID string) *qdrant.PointId {
	return qdrant.NewIDUUID(uuid.NewSHA1(uuid.NameSpaceOID, []byte(recordID)).String())
}

func (s *QdrantStore) Upsert(ctx context.Context, vectors [][]float32, documents []knowledge.Document) error {
	if len(vectors) != len(documents) {
		return fmt.Errorf("number of vectors and documents must match")
	}

	points := make([]*qdrant.PointStruct, len(vectors))
	for i, doc := range documents {
		payload := make(map[string]*qdrant.Value)
		payload["content"] = qdrant.NewValueString(doc.Content)
		payload[payloadRecordID] = qdrant.NewValueString(doc.ID)
		for k, v := range doc.Metadata {
			payload[k] = toValue(v)
		}

		points[i] = &qdrant.PointStruct{
			Id:      pointID(doc.ID),
			Vectors: qdrant.NewVectors(vectors[i]...),
			Payload: payload,
		}
	}

	wait := true
	_, err := s.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: s.collectionName,
		Points:         points,
		Wait:           &wait,
	})
	return err
}

// Query runs a filtered cosine-similarity search. Each filter entry becomes
// a keyword-match condition; for array payload fields the condition matches
// when any element is in the selected set.
func (s *QdrantStore) Query(ctx context.Context, vector []float32, topK int, filter knowledge.Filter) ([]knowledge.Document, error) {
	limit := uint64(topK)
	query := &qdrant.QueryPoints{
		CollectionName: s.collectionName,
		Query:          qdrant.NewQuery(vector...),
		Limit:          &limit,
		WithPayload:    qdrant.NewWithPayload(true),
	}

	if len(filter) > 0 {
		var must []*qdrant.Condition
		for field, values := range filter {
			if len(values) == 0 {
				continue
			}
			must = append(must, qdrant.NewMatchKeywords(field, values...))
		}
		if len(must) > 0 {
			query.Filter = &qdrant.Filter{Must: must}
		}
	}

	res, err := s.client.Query(ctx, query)
	if err != nil {
		return nil, err
	}

	docs := make([]knowledge.Document, len(res))
	for i, hit := range res {
		docs[i] = docFromPayload(hit.Payload)
		docs[i].Score = hit.Score
	}

	return docs, nil
}

// Fetch looks up documents by external record id, metadata only.
func (s *QdrantStore) Fetch(ctx context.Context, ids []string) ([]knowledge.Document, error) {
	pointIDs := make([]*qdrant.PointId, len(ids))
	for i, id := range ids {
		pointIDs[i] = pointID(id)
	}

	res, err := s.client.Get(ctx, &qdrant.GetPoints{
		CollectionName: s.collectionName,
		Ids:            pointIDs,
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, err
	}

	docs := make([]knowledge.Document, len(res))
	for i, point := range res {
		docs[i] = docFromPayload(point.Payload)
	}

	return docs, nil
}

func docFromPayload(payload map[string]*qdrant.Value) knowledge.Document {
	doc := knowledge.Document{Metadata: make(map[string]interface{})}
	for k, v := range payload {
		switch k {
		case "content":
			doc.Content = v.GetStringValue()
		case payloadRecordID:
			doc.ID = v.GetStringValue()
		default:
			doc.Metadata[k] = fromValue(v)
		}
	}
	return doc
}

func toValue(v interface{}) *qdrant.Value {
	switch val := v.(type) {
	case string:
		return qdrant.NewValueString(val)
	case bool:
		return qdrant.NewValueBool(val)
	case int:
		return qdrant.NewValueInt(int64(val))
	case int64:
		return qdrant.NewValueInt(val)
	case float64:
		return qdrant.NewValueDouble(val)
	case []string:
		values := make([]*qdrant.Value, len(val))
		for i, s := range val {
			values[i] = qdrant.NewValueString(s)
		}
		return qdrant.NewValueList(&qdrant.ListValue{Values: values})
	case []interface{}:
		values := make([]*qdrant.Value, len(val))
		for i, item := range val {
			values[i] = toValue(item)
		}
		return qdrant.NewValueList(&qdrant.ListValue{Values: values})
	case map[string]string:
		fields := make(map[string]*qdrant.Value, len(val))
		for k, s := range val {
			fields[k] = qdrant.NewValueString(s)
		}
		return qdrant.NewValueStruct(&qdrant.Struct{Fields: fields})
	case map[string]interface{}:
		fields := make(map[string]*qdrant.Value, len(val))
		for k, item := range val {
			fields[k] = toValue(item)
		}
		return qdrant.NewValueStruct(&qdrant.Struct{Fields: fields})
	default:
		return qdrant.NewValueString(fmt.Sprintf("%v", val))
	}
}

func fromValue(v *qdrant.Value) interface{} {
	switch kind := v.GetKind().(type) {
	case *qdrant.Value_StringValue:
		return kind.StringValue
	case *qdrant.Value_BoolValue:
		return kind.BoolValue
	case *qdrant.Value_IntegerValue:
		return kind.IntegerValue
	case *qdrant.Value_DoubleValue:
		return kind.DoubleValue
	case *qdrant.Value_ListValue:
		items := make([]interface{}, len(kind.ListValue.Values))
		for i, item := range kind.ListValue.Values {
			items[i] = fromValue(item)
		}
		return items
	case *qdrant.Value_StructValue:
		fields := make(map[string]interface{}, len(kind.StructValue.Fields))
		for k, item := range kind.StructValue.Fields {
			fields[k] = fromValue(item)
		}
		return fields
	default:
		return v.GetStringValue()
	}
}

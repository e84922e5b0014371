package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"github.com/castmind/castmind/internal/pipeline"
)

const transcriptCollection = "transcripts"

// Transcript is one archived pipeline run for a conversation.
type Transcript struct {
	ConversationID string            `bson:"conversation_id"`
	Query          string            `bson:"query"`
	FinalResponse  string            `bson:"final_response"`
	AgentResponses map[string]string `bson:"agent_responses"`
	Summary        string            `bson:"summary,omitempty"`
	CreatedAt      time.Time         `bson:"created_at"`
}

// Mongo archives pipeline runs per conversation.
type Mongo struct {
	client      *mongo.Client
	transcripts *mongo.Collection
}

// NewMongo connects, pings the primary, and binds the transcript
// collection.
func NewMongo(ctx context.Context, uri, database string) (*Mongo, error) {
	if uri == "" {
		return nil, errors.New("mongo connection uri is empty")
	}

	dialCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(dialCtx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("connect to mongo: %w", err)
	}

	pingCtx, pingCancel := context.WithTimeout(ctx, 3*time.Second)
	defer pingCancel()

	if err := client.Ping(pingCtx, readpref.Primary()); err != nil {
		_ = client.Disconnect(pingCtx)
		return nil, fmt.Errorf("ping mongo: %w", err)
	}

	return &Mongo{
		client:      client,
		transcripts: client.Database(database).Collection(transcriptCollection),
	}, nil
}

func (m *Mongo) Close(ctx context.Context) error {
	return m.client.Disconnect(ctx)
}

// EnsureIndexes creates the conversation lookup index.
func (m *Mongo) EnsureIndexes(ctx context.Context) error {
	_, err := m.transcripts.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "conversation_id", Value: 1}, {Key: "created_at", Value: 1}},
	})
	if err != nil {
		return fmt.Errorf("ensure transcript index: %w", err)
	}

	return nil
}

// SaveTranscript archives one finished run.
func (m *Mongo) SaveTranscript(ctx context.Context, t Transcript) error {
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now().UTC()
	}

	if _, err := m.transcripts.InsertOne(ctx, t); err != nil {
		return fmt.Errorf("insert transcript: %w", err)
	}

	return nil
}

// RecentMessages rebuilds the most recent user/assistant turns of a
// conversation from its archived transcripts, oldest first.
func (m *Mongo) RecentMessages(ctx context.Context, conversationID string, limit int) ([]pipeline.Message, error) {
	if limit <= 0 {
		limit = 5
	}

	opts := options.Find().
		SetSort(bson.D{{Key: "created_at", Value: -1}}).
		SetLimit(int64(limit))

	cursor, err := m.transcripts.Find(ctx, bson.M{"conversation_id": conversationID}, opts)
	if err != nil {
		return nil, fmt.Errorf("find transcripts: %w", err)
	}
	defer cursor.Close(ctx)

	var docs []Transcript
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("decode transcripts: %w", err)
	}

	// newest-first from the sort; replay oldest-first
	messages := make([]pipeline.Message, 0, len(docs)*2)
	for i := len(docs) - 1; i >= 0; i-- {
		messages = append(messages,
			pipeline.Message{Role: "user", Content: docs[i].Query},
			pipeline.Message{Role: "assistant", Content: docs[i].FinalResponse},
		)
	}

	return messages, nil
}

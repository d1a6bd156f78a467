package chathistory

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/devkraft/ragline/pkg/logger"
)

// chatDocument is the stored shape of one conversation.
type chatDocument struct {
	ChatID    string    `bson:"chat_id"`
	Turns     []Turn    `bson:"turns"`
	CreatedAt time.Time `bson:"created_at"`
	UpdatedAt time.Time `bson:"updated_at"`
}

// MongoStore keeps one document per conversation, uniquely indexed by
// chat ID and sorted by last activity for listing.
type MongoStore struct {
	client *mongo.Client
	coll   *mongo.Collection
	log    *logger.Logger
}

// NewMongoStore connects, pings, and ensures the chat_id index. A short
// server selection timeout keeps startup responsive when MongoDB is absent
// so callers can drop to the file store quickly.
func NewMongoStore(ctx context.Context, uri, database, collection string, log *logger.Logger) (*MongoStore, error) {
	opts := options.Client().ApplyURI(uri).SetServerSelectionTimeout(5 * time.Second)

	connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(connectCtx, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to mongodb: %w", err)
	}
	if err := client.Ping(connectCtx, nil); err != nil {
		return nil, fmt.Errorf("failed to ping mongodb: %w", err)
	}

	coll := client.Database(database).Collection(collection)
	_, err = coll.Indexes().CreateOne(connectCtx, mongo.IndexModel{
		Keys:    bson.D{{Key: "chat_id", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create chat_id index: %w", err)
	}

	log.Info("connected to mongodb chat store")
	return &MongoStore{client: client, coll: coll, log: log}, nil
}

// Close disconnects the underlying client.
func (s *MongoStore) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

// Append pushes turns onto the chat document, creating it when absent.
func (s *MongoStore) Append(ctx context.Context, chatID string, turns ...Turn) error {
	if len(turns) == 0 {
		return nil
	}

	now := time.Now().UTC()
	_, err := s.coll.UpdateOne(ctx,
		bson.M{"chat_id": chatID},
		bson.M{
			"$push":        bson.M{"turns": bson.M{"$each": turns}},
			"$set":         bson.M{"updated_at": now},
			"$setOnInsert": bson.M{"chat_id": chatID, "created_at": now},
		},
		options.Update().SetUpsert(true),
	)
	if err != nil {
		return fmt.Errorf("failed to append to chat %s: %w", chatID, err)
	}
	return nil
}

// Load returns the chat's turns; a missing chat yields an empty slice.
func (s *MongoStore) Load(ctx context.Context, chatID string) ([]Turn, error) {
	var doc chatDocument
	err := s.coll.FindOne(ctx, bson.M{"chat_id": chatID}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load chat %s: %w", chatID, err)
	}
	return doc.Turns, nil
}

// Recent lists conversations by last activity, newest first.
func (s *MongoStore) Recent(ctx context.Context, limit int) ([]Summary, error) {
	opts := options.Find().
		SetSort(bson.D{{Key: "updated_at", Value: -1}}).
		SetLimit(int64(limit))

	cursor, err := s.coll.Find(ctx, bson.M{"turns.0": bson.M{"$exists": true}}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list chats: %w", err)
	}
	defer cursor.Close(ctx)

	var summaries []Summary
	for cursor.Next(ctx) {
		var doc chatDocument
		if err := cursor.Decode(&doc); err != nil {
			return nil, fmt.Errorf("failed to decode chat document: %w", err)
		}
		summaries = append(summaries, Summary{
			ChatID:    doc.ChatID,
			Preview:   preview(doc.Turns),
			UpdatedAt: doc.UpdatedAt,
		})
	}
	if err := cursor.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate chats: %w", err)
	}
	return summaries, nil
}

var _ Store = (*MongoStore)(nil)

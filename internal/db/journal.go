package db

import (
	"context"
	"fmt"
	"time"

	model "github.com/glkeru/amperequest/internal/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Журнал событий в MongoDB
type JournalDB struct {
	mgo  *mongo.Client
	coll *mongo.Collection
}

func NewJournalDB(uri string, database string) (*JournalDB, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if uri == "" {
		return nil, fmt.Errorf("env AMPERE_MONGO is not set")
	}
	if database == "" {
		database = "amperequest"
	}

	options := options.Client().ApplyURI(uri)
	client, err := mongo.Connect(ctx, options)
	if err != nil {
		return nil, err
	}
	err = client.Ping(ctx, nil)
	if err != nil {
		return nil, err
	}
	coll := client.Database(database).Collection("events")

	_, err = coll.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "id", Value: 1}}, Options: optionsUnique()},
		{Keys: bson.D{{Key: "subject", Value: 1}, {Key: "at", Value: -1}}},
	})
	if err != nil {
		return nil, err
	}

	return &JournalDB{client, coll}, nil
}

func optionsUnique() *options.IndexOptions {
	return options.Index().SetUnique(true)
}

// повторная доставка события не создает дубль
func (j *JournalDB) SaveEvent(ctx context.Context, event model.Event) error {
	filter := bson.M{"id": event.ID}
	update := bson.M{"$setOnInsert": event}
	_, err := j.coll.UpdateOne(ctx, filter, update, options.Update().SetUpsert(true))
	return err
}

// События по записи, новые первыми
func (j *JournalDB) GetEvents(ctx context.Context, subject string, limit int64) ([]model.Event, error) {
	if limit <= 0 {
		limit = 100
	}
	opts := options.Find().SetSort(bson.D{{Key: "at", Value: -1}}).SetLimit(limit)
	result, err := j.coll.Find(ctx, bson.M{"subject": subject}, opts)
	if err != nil {
		return nil, err
	}
	defer result.Close(ctx)

	events := make([]model.Event, 0)
	for result.Next(ctx) {
		var event model.Event
		err := result.Decode(&event)
		if err != nil {
			return nil, err
		}
		events = append(events, event)
	}
	return events, result.Err()
}

func (j *JournalDB) Close(ctx context.Context) error {
	return j.mgo.Disconnect(ctx)
}

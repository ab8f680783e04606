// Package mongodb stores conversations in MongoDB.
package mongodb

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
	"go.mongodb.org/mongo-driver/v2/mongo/readpref"

	"github.com/Marwebofficial/studio-sub000/core"
)

const conversationsCollection = "conversations"

// Connect opens a client on conf.URI and pings the primary.
func Connect(ctx context.Context, conf core.MongoConfig) (*mongo.Client, error) {
	timeout := conf.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	client, err := mongo.Connect(options.Client().ApplyURI(conf.URI).SetTimeout(timeout))
	if err != nil {
		return nil, errors.Wrap(err, "connecting to mongo")
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, errors.Wrap(err, "pinging mongo")
	}
	return client, nil
}

// collection is the part of *mongo.Collection the repository uses.
type collection interface {
	InsertOne(ctx context.Context, doc any) error
	FindOne(ctx context.Context, filter any, dst any) error
	Find(ctx context.Context, filter, sort, projection any, dst any) error
	UpdateOne(ctx context.Context, filter, update any) (matched int64, err error)
	DeleteOne(ctx context.Context, filter any) (deleted int64, err error)
	CreateIndex(ctx context.Context, keys any) error
}

type mongoCollection struct {
	coll *mongo.Collection
}

func (c mongoCollection) InsertOne(ctx context.Context, doc any) error {
	_, err := c.coll.InsertOne(ctx, doc)
	return err
}

func (c mongoCollection) FindOne(ctx context.Context, filter any, dst any) error {
	return c.coll.FindOne(ctx, filter).Decode(dst)
}

func (c mongoCollection) Find(ctx context.Context, filter, sort, projection any, dst any) error {
	cur, err := c.coll.Find(ctx, filter, options.Find().SetSort(sort).SetProjection(projection))
	if err != nil {
		return err
	}
	return cur.All(ctx, dst)
}

func (c mongoCollection) UpdateOne(ctx context.Context, filter, update any) (int64, error) {
	res, err := c.coll.UpdateOne(ctx, filter, update)
	if err != nil {
		return 0, err
	}
	return res.MatchedCount, nil
}

func (c mongoCollection) DeleteOne(ctx context.Context, filter any) (int64, error) {
	res, err := c.coll.DeleteOne(ctx, filter)
	if err != nil {
		return 0, err
	}
	return res.DeletedCount, nil
}

func (c mongoCollection) CreateIndex(ctx context.Context, keys any) error {
	_, err := c.coll.Indexes().CreateOne(ctx, mongo.IndexModel{Keys: keys})
	return err
}

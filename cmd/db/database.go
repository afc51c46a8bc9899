package db

import (
	"context"
	"fmt"
	"time"

	"timeclock/cmd/utils"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const connectTimeout = 10 * time.Second

type Database struct {
	DB      *mongo.Database
	Context context.Context
	client  *mongo.Client
}

// Connect dials uri and pings the server before handing back name.
func Connect(ctx context.Context, uri, name string) (*Database, error) {
	dialCtx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()

	client, err := mongo.Connect(dialCtx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("Connect: %w", err)
	}
	if err := client.Ping(dialCtx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("Connect: ping: %w", err)
	}
	utils.PrintLog("Connected to mongo database %s", name)
	return &Database{
		DB:      client.Database(name),
		Context: ctx,
		client:  client,
	}, nil
}

func (d *Database) Disconnect() error {
	if d == nil || d.client == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
	defer cancel()
	if err := d.client.Disconnect(ctx); err != nil {
		return fmt.Errorf("Disconnect: %w", err)
	}
	utils.PrintLog("Disconnected from mongo")
	return nil
}

package database

import (
	"context"
	"fmt"
	"log"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type Migration struct {
	Version     int
	Description string
	Up          func(*mongo.Database) error
	Down        func(*mongo.Database) error
}

type Migrator struct {
	db         *mongo.Database
	migrations []Migration
}

func NewMigrator(db *mongo.Database) *Migrator {
	return &Migrator{
		db:         db,
		migrations: getMigrations(),
	}
}

func (m *Migrator) Up() error {
	// Create migrations collection if it doesn't exist
	err := m.createMigrationsCollection()
	if err != nil {
		return err
	}

	// Get current version
	currentVersion, err := m.getCurrentVersion()
	if err != nil {
		return err
	}

	// Run migrations
	for _, migration := range m.migrations {
		if migration.Version > currentVersion {
			log.Printf("Running migration %d: %s", migration.Version, migration.Description)

			err := migration.Up(m.db)
			if err != nil {
				return fmt.Errorf("migration %d failed: %w", migration.Version, err)
			}

			err = m.updateVersion(migration.Version)
			if err != nil {
				return fmt.Errorf("failed to update migration version: %w", err)
			}

			log.Printf("Migration %d completed successfully", migration.Version)
		}
	}

	return nil
}

func (m *Migrator) Down(targetVersion int) error {
	currentVersion, err := m.getCurrentVersion()
	if err != nil {
		return err
	}

	for i := len(m.migrations) - 1; i >= 0; i-- {
		migration := m.migrations[i]
		if migration.Version <= currentVersion && migration.Version > targetVersion {
			log.Printf("Reverting migration %d: %s", migration.Version, migration.Description)

			err := migration.Down(m.db)
			if err != nil {
				return fmt.Errorf("migration %d rollback failed: %w", migration.Version, err)
			}

			previousVersion := targetVersion
			if i > 0 {
				previousVersion = m.migrations[i-1].Version
			}

			err = m.updateVersion(previousVersion)
			if err != nil {
				return fmt.Errorf("failed to update migration version: %w", err)
			}

			log.Printf("Migration %d reverted successfully", migration.Version)
		}
	}

	return nil
}

func (m *Migrator) createMigrationsCollection() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	collections, err := m.db.ListCollectionNames(ctx, bson.D{})
	if err != nil {
		return err
	}

	for _, name := range collections {
		if name == "migrations" {
			return nil
		}
	}

	return m.db.CreateCollection(ctx, "migrations")
}

func (m *Migrator) getCurrentVersion() (int, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var result struct {
		Version int `bson:"version"`
	}

	err := m.db.Collection("migrations").FindOne(ctx, bson.D{}).Decode(&result)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return 0, nil
		}
		return 0, err
	}

	return result.Version, nil
}

func (m *Migrator) updateVersion(version int) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, err := m.db.Collection("migrations").ReplaceOne(
		ctx,
		bson.D{},
		bson.D{{Key: "version", Value: version}, {Key: "updated_at", Value: time.Now()}},
		options.Replace().SetUpsert(true),
	)

	return err
}

func getMigrations() []Migration {
	return []Migration{
		{
			Version:     1,
			Description: "Create trips collection with indexes",
			Up: func(db *mongo.Database) error {
				return createTripsIndexes(db)
			},
			Down: func(db *mongo.Database) error {
				return db.Collection("trips").Drop(context.Background())
			},
		},
		{
			Version:     2,
			Description: "Create personal chats collection with indexes",
			Up: func(db *mongo.Database) error {
				return createPersonalChatsIndexes(db)
			},
			Down: func(db *mongo.Database) error {
				return db.Collection("personal_chats").Drop(context.Background())
			},
		},
		{
			Version:     3,
			Description: "Create group chats collection with indexes",
			Up: func(db *mongo.Database) error {
				return createGroupChatsIndexes(db)
			},
			Down: func(db *mongo.Database) error {
				return db.Collection("group_chats").Drop(context.Background())
			},
		},
		{
			Version:     4,
			Description: "Create pending messages collection with indexes",
			Up: func(db *mongo.Database) error {
				return createPendingMessagesIndexes(db)
			},
			Down: func(db *mongo.Database) error {
				return db.Collection("pending_messages").Drop(context.Background())
			},
		},
		{
			Version:     5,
			Description: "Create requests collection with indexes",
			Up: func(db *mongo.Database) error {
				return createRequestsIndexes(db)
			},
			Down: func(db *mongo.Database) error {
				return db.Collection("requests").Drop(context.Background())
			},
		},
	}
}

func createTripsIndexes(db *mongo.Database) error {
	ctx := context.Background()
	collection := db.Collection("trips")

	indexes := []mongo.IndexModel{
		{
			Keys: bson.D{{Key: "driver_id", Value: 1}},
		},
		{
			Keys: bson.D{{Key: "status", Value: 1}, {Key: "departure_at", Value: 1}},
		},
		{
			Keys: bson.D{{Key: "origin.point", Value: "2dsphere"}},
		},
		{
			Keys: bson.D{{Key: "passengers.user_id", Value: 1}},
		},
		{
			Keys: bson.D{{Key: "created_at", Value: -1}},
		},
	}

	_, err := collection.Indexes().CreateMany(ctx, indexes)
	return err
}

func createPersonalChatsIndexes(db *mongo.Database) error {
	ctx := context.Background()
	collection := db.Collection("personal_chats")

	indexes := []mongo.IndexModel{
		{
			// One chat per unordered user pair.
			Keys:    bson.D{{Key: "canonical_key", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{
			Keys: bson.D{{Key: "user_low", Value: 1}},
		},
		{
			Keys: bson.D{{Key: "user_high", Value: 1}},
		},
		{
			Keys: bson.D{{Key: "messages.source_id", Value: 1}},
		},
		{
			Keys: bson.D{{Key: "last_message_at", Value: -1}},
		},
	}

	_, err := collection.Indexes().CreateMany(ctx, indexes)
	return err
}

func createGroupChatsIndexes(db *mongo.Database) error {
	ctx := context.Background()
	collection := db.Collection("group_chats")

	indexes := []mongo.IndexModel{
		{
			// One group chat per trip.
			Keys:    bson.D{{Key: "trip_id", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{
			Keys: bson.D{{Key: "participants", Value: 1}},
		},
		{
			Keys: bson.D{{Key: "messages.source_id", Value: 1}},
		},
		{
			Keys: bson.D{{Key: "last_message_at", Value: -1}},
		},
	}

	_, err := collection.Indexes().CreateMany(ctx, indexes)
	return err
}

func createPendingMessagesIndexes(db *mongo.Database) error {
	ctx := context.Background()
	collection := db.Collection("pending_messages")

	indexes := []mongo.IndexModel{
		{
			Keys: bson.D{{Key: "sender_id", Value: 1}},
		},
		{
			Keys: bson.D{{Key: "created_at", Value: 1}},
		},
	}

	_, err := collection.Indexes().CreateMany(ctx, indexes)
	return err
}

func createRequestsIndexes(db *mongo.Database) error {
	ctx := context.Background()
	collection := db.Collection("requests")

	indexes := []mongo.IndexModel{
		{
			// At most one unresolved request per tuple. Partial so
			// resolved history rows never collide.
			Keys: bson.D{{Key: "sender_id", Value: 1}, {Key: "receiver_id", Value: 1}, {Key: "kind", Value: 1}, {Key: "trip_id", Value: 1}},
			Options: options.Index().
				SetUnique(true).
				SetPartialFilterExpression(bson.D{{Key: "state", Value: "pending"}}),
		},
		{
			Keys: bson.D{{Key: "receiver_id", Value: 1}, {Key: "state", Value: 1}},
		},
		{
			Keys: bson.D{{Key: "trip_id", Value: 1}, {Key: "kind", Value: 1}, {Key: "state", Value: 1}},
		},
		{
			Keys: bson.D{{Key: "created_at", Value: -1}},
		},
	}

	_, err := collection.Indexes().CreateMany(ctx, indexes)
	return err
}

package repository

import (
	"context"
	"errors"
	"fmt"

	"timeclock/cmd/models"
	"timeclock/cmd/utils"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const versionID = "version"

// ConfigRepository defines persistence operations for the storage schema
// version.
type ConfigRepository interface {
	SaveVersion(v models.Version) error
	LoadVersion() (*models.Version, error)
}

// MongoConfigRepository implements ConfigRepository using MongoDB.
type MongoConfigRepository struct {
	collection *mongo.Collection
	ctx        context.Context
}

// NewMongoConfigRepository creates a new instance of MongoConfigRepository.
func NewMongoConfigRepository(ctx context.Context, db *mongo.Database) *MongoConfigRepository {
	return &MongoConfigRepository{
		collection: db.Collection("config"),
		ctx:        ctx,
	}
}

func (r *MongoConfigRepository) SaveVersion(v models.Version) error {
	filter := bson.M{"id": v.ID}
	update := bson.M{"$set": v}
	opts := options.Update().SetUpsert(true)
	_, err := r.collection.UpdateOne(r.ctx, filter, update, opts)
	if err != nil {
		utils.PrintError(err, "Failed to save version")
		return fmt.Errorf("SaveVersion: %w", err)
	}
	utils.PrintLog("Saved version %d", v.Version)
	return nil
}

// LoadVersion reports version 1 for a database that has never been
// migrated.
func (r *MongoConfigRepository) LoadVersion() (*models.Version, error) {
	var version models.Version
	err := r.collection.FindOne(r.ctx, bson.M{"id": versionID}).Decode(&version)
	if err != nil {
		if !errors.Is(err, mongo.ErrNoDocuments) {
			utils.PrintError(err, "Error reading version")
			return nil, fmt.Errorf("LoadVersion: %w", err)
		}
		utils.PrintLog("Creating new version")
		version = models.Version{
			ID:      versionID,
			Version: 1,
		}
	}
	return &version, nil
}

// WorkbookConfigRepository implements ConfigRepository on the document
// properties of a workbook.
type WorkbookConfigRepository struct {
	path string
}

func NewWorkbookConfigRepository(path string) *WorkbookConfigRepository {
	return &WorkbookConfigRepository{path: path}
}

func (r *WorkbookConfigRepository) SaveVersion(v models.Version) error {
	f, _, err := openWorkbook(r.path)
	if err != nil {
		return fmt.Errorf("SaveVersion: %w", err)
	}
	defer f.Close()
	if err := StampWorkbookVersion(f, v.Version); err != nil {
		return fmt.Errorf("SaveVersion: %w", err)
	}
	if err := saveWorkbook(f, r.path); err != nil {
		return fmt.Errorf("SaveVersion: %w", err)
	}
	utils.PrintLog("Saved version %d to %s", v.Version, r.path)
	return nil
}

// LoadVersion reports the current version for a workbook that does not
// exist yet, since it will be created in the current layout.
func (r *WorkbookConfigRepository) LoadVersion() (*models.Version, error) {
	f, err := openExistingWorkbook(r.path)
	if err != nil {
		return nil, fmt.Errorf("LoadVersion: %w", err)
	}
	if f == nil {
		return &models.Version{ID: versionID, Version: models.WorkbookVersion}, nil
	}
	defer f.Close()
	v, err := ReadWorkbookVersion(f)
	if err != nil {
		return nil, fmt.Errorf("LoadVersion: %w", err)
	}
	return &models.Version{ID: versionID, Version: v}, nil
}

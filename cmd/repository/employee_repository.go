package repository

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"timeclock/cmd/face"
	"timeclock/cmd/models"
	"timeclock/cmd/utils"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoEmployeeRepository implements EmployeeRepository using MongoDB.
type MongoEmployeeRepository struct {
	collection *mongo.Collection
	ctx        context.Context
}

// NewMongoEmployeeRepository creates a new instance of MongoEmployeeRepository.
func NewMongoEmployeeRepository(ctx context.Context, db *mongo.Database) *MongoEmployeeRepository {
	return &MongoEmployeeRepository{
		collection: db.Collection("employees"),
		ctx:        ctx,
	}
}

// SaveEmployee upserts by ID, which is derived from the full name.
func (repo *MongoEmployeeRepository) SaveEmployee(e models.Employee) error {
	filter := bson.M{"id": e.ID}
	update := bson.M{"$set": e}
	opts := options.Update().SetUpsert(true)
	_, err := repo.collection.UpdateOne(repo.ctx, filter, update, opts)
	if err != nil {
		return fmt.Errorf("SaveEmployee: %w", err)
	}
	utils.PrintLog("Saved employee %s", e.FullName())
	return nil
}

func (repo *MongoEmployeeRepository) SaveEmployees(employees []*models.Employee) error {
	if len(employees) == 0 {
		return nil
	}
	modelsList := make([]mongo.WriteModel, len(employees))
	for i, e := range employees {
		filter := bson.M{"id": e.ID}
		update := bson.M{"$set": e}
		modelsList[i] = mongo.NewUpdateOneModel().SetFilter(filter).SetUpdate(update).SetUpsert(true)
	}
	opts := options.BulkWrite().SetOrdered(false)
	results, err := repo.collection.BulkWrite(repo.ctx, modelsList, opts)
	if err != nil {
		return fmt.Errorf("SaveEmployees: %w", err)
	}
	utils.PrintLog("Bulk saved employees: %d modified, %d upserted", results.ModifiedCount, results.UpsertedCount)
	return nil
}

// LoadAllEmployees returns employees in registration order.
func (repo *MongoEmployeeRepository) LoadAllEmployees() ([]*models.Employee, error) {
	cursor, err := repo.collection.Find(repo.ctx, bson.M{})
	if err != nil {
		return nil, fmt.Errorf("LoadAllEmployees: %w", err)
	}
	defer cursor.Close(repo.ctx)

	var all []*models.Employee
	for cursor.Next(repo.ctx) {
		var e models.Employee
		if err := cursor.Decode(&e); err != nil {
			utils.PrintError(err, "Error decoding employee")
			continue
		}
		// Only include valid records.
		if e.FirstName != "" {
			all = append(all, &e)
		}
	}
	if err := cursor.Err(); err != nil {
		return nil, fmt.Errorf("LoadAllEmployees: %w", err)
	}
	sort.SliceStable(all, func(i, j int) bool {
		return all[i].CreatedAt.Before(all[j].CreatedAt)
	})
	return all, nil
}

func (repo *MongoEmployeeRepository) GetEmployeeByName(name string) (*models.Employee, error) {
	filter := bson.M{"id": models.EmployeeID(name)}
	var e models.Employee
	if err := repo.collection.FindOne(repo.ctx, filter).Decode(&e); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, nil
		}
		return nil, fmt.Errorf("GetEmployeeByName: %w", err)
	}
	return &e, nil
}

func (repo *MongoEmployeeRepository) LoadFaceGallery() ([]face.Reference, error) {
	filter := bson.M{"faceencoding.0": bson.M{"$exists": true}}
	cursor, err := repo.collection.Find(repo.ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("LoadFaceGallery: %w", err)
	}
	defer cursor.Close(repo.ctx)

	var all []*models.Employee
	if err := cursor.All(repo.ctx, &all); err != nil {
		return nil, fmt.Errorf("LoadFaceGallery: %w", err)
	}
	sort.SliceStable(all, func(i, j int) bool {
		return all[i].CreatedAt.Before(all[j].CreatedAt)
	})
	return galleryFromEmployees(all), nil
}

package repository

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"timeclock/cmd/models"
	"timeclock/cmd/utils"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoAttendanceRepository implements AttendanceRepository using MongoDB,
// one document per employee per day.
type MongoAttendanceRepository struct {
	collection *mongo.Collection
	summaries  *mongo.Collection
	ctx        context.Context
}

// NewMongoAttendanceRepository creates a new instance of MongoAttendanceRepository.
func NewMongoAttendanceRepository(ctx context.Context, db *mongo.Database) *MongoAttendanceRepository {
	return &MongoAttendanceRepository{
		collection: db.Collection("attendance"),
		summaries:  db.Collection("summaries"),
		ctx:        ctx,
	}
}

func dayKey(date time.Time) time.Time {
	return utils.DateOnly(date).UTC()
}

// EnsureDay is a no-op: a day exists once it has a row.
func (repo *MongoAttendanceRepository) EnsureDay(date time.Time) error {
	return nil
}

func (repo *MongoAttendanceRepository) ensureRow(date time.Time, name string) error {
	filter := bson.M{"date": dayKey(date), "name": name}
	update := bson.M{"$setOnInsert": bson.M{"date": dayKey(date), "name": name}}
	opts := options.Update().SetUpsert(true)
	_, err := repo.collection.UpdateOne(repo.ctx, filter, update, opts)
	return err
}

func (repo *MongoAttendanceRepository) getRow(date time.Time, name string) (models.AttendanceRow, error) {
	var row models.AttendanceRow
	filter := bson.M{"date": dayKey(date), "name": name}
	if err := repo.collection.FindOne(repo.ctx, filter).Decode(&row); err != nil {
		return models.NewAttendanceRow(date, name), err
	}
	return row, nil
}

// RecordAction only writes when the action's field is still null, so the
// duplicate check and the write are one update.
func (repo *MongoAttendanceRepository) RecordAction(name string, action models.ClockAction, stamp time.Time) (models.AttendanceRow, error) {
	if !action.Valid() {
		return models.AttendanceRow{}, fmt.Errorf("RecordAction: invalid action %d", action)
	}
	if err := repo.ensureRow(stamp, name); err != nil {
		return models.AttendanceRow{}, fmt.Errorf("RecordAction: %w", err)
	}

	filter := bson.M{"date": dayKey(stamp), "name": name, action.Field(): nil}
	update := bson.M{"$set": bson.M{action.Field(): stamp.UTC()}}
	res, err := repo.collection.UpdateOne(repo.ctx, filter, update)
	if err != nil {
		return models.AttendanceRow{}, fmt.Errorf("RecordAction: %w", err)
	}

	row, err := repo.getRow(stamp, name)
	if err != nil {
		return row, fmt.Errorf("RecordAction: %w", err)
	}
	if res.MatchedCount == 0 {
		return row, alreadyRecorded(name, action)
	}
	utils.PrintLog("Recorded %s for %s at %s", action, name, models.FormatStamp(stamp))
	return row, nil
}

func (repo *MongoAttendanceRepository) SaveSchedule(date time.Time, name string, shiftStart time.Time, breakStart, breakEnd *time.Time, shiftEnd time.Time) (models.AttendanceRow, error) {
	set := bson.M{
		models.ClockIn.Field():  shiftStart.UTC(),
		models.ShiftEnd.Field(): shiftEnd.UTC(),
	}
	if breakStart != nil {
		set[models.BreakStart.Field()] = breakStart.UTC()
	}
	if breakEnd != nil {
		set[models.BreakEnd.Field()] = breakEnd.UTC()
	}

	filter := bson.M{"date": dayKey(date), "name": name}
	update := bson.M{"$set": set}
	opts := options.Update().SetUpsert(true)
	if _, err := repo.collection.UpdateOne(repo.ctx, filter, update, opts); err != nil {
		return models.AttendanceRow{}, fmt.Errorf("SaveSchedule: %w", err)
	}
	utils.PrintLog("Saved schedule for %s on %s", name, utils.DayName(date))

	row, err := repo.getRow(date, name)
	if err != nil {
		return row, fmt.Errorf("SaveSchedule: %w", err)
	}
	return row, nil
}

func (repo *MongoAttendanceRepository) GetDay(date time.Time) ([]models.AttendanceRow, error) {
	cursor, err := repo.collection.Find(repo.ctx, bson.M{"date": dayKey(date)})
	if err != nil {
		return nil, fmt.Errorf("GetDay: %w", err)
	}
	defer cursor.Close(repo.ctx)

	var rows []models.AttendanceRow
	if err := cursor.All(repo.ctx, &rows); err != nil {
		return nil, fmt.Errorf("GetDay: %w", err)
	}
	return SortAttendanceRows(rows), nil
}

// AllDays loads the whole collection with one query and groups it by day.
func (repo *MongoAttendanceRepository) AllDays() ([]DayRows, error) {
	opts := options.Find().SetSort(bson.D{{Key: "date", Value: 1}})
	cursor, err := repo.collection.Find(repo.ctx, bson.M{}, opts)
	if err != nil {
		return nil, fmt.Errorf("AllDays: %w", err)
	}
	defer cursor.Close(repo.ctx)

	var rows []models.AttendanceRow
	if err := cursor.All(repo.ctx, &rows); err != nil {
		return nil, fmt.Errorf("AllDays: %w", err)
	}
	return groupByDay(rows), nil
}

// groupByDay buckets rows by local calendar day, oldest first.
func groupByDay(rows []models.AttendanceRow) []DayRows {
	byDay := map[time.Time][]models.AttendanceRow{}
	for _, row := range rows {
		day := utils.DateOnly(row.Date.In(time.Local))
		row.Date = day
		byDay[day] = append(byDay[day], row)
	}
	out := make([]DayRows, 0, len(byDay))
	for day, dayRows := range byDay {
		out = append(out, DayRows{Date: day, Rows: SortAttendanceRows(dayRows)})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out
}

func (repo *MongoAttendanceRepository) SaveSummaries(days []models.DaySummary, weeks []models.WeekSummary) error {
	var bulkWriteModels []mongo.WriteModel
	for _, d := range days {
		filter := bson.M{"id": "daily:" + utils.DayName(d.Date)}
		update := bson.M{"$set": bson.M{
			"kind":               "daily",
			"label":              utils.DayName(d.Date),
			"date":               dayKey(d.Date),
			"hoursWithBreaks":    d.HoursWithBreaks,
			"hoursWithoutBreaks": d.HoursWithoutBreaks,
			"employees":          d.Employees,
		}}
		bulkWriteModels = append(bulkWriteModels, mongo.NewUpdateOneModel().SetFilter(filter).SetUpdate(update).SetUpsert(true))
	}
	for _, w := range weeks {
		filter := bson.M{"id": "weekly:" + w.Label()}
		update := bson.M{"$set": bson.M{
			"kind":               "weekly",
			"label":              w.Label(),
			"year":               w.Year,
			"week":               w.Week,
			"hoursWithBreaks":    w.HoursWithBreaks,
			"hoursWithoutBreaks": w.HoursWithoutBreaks,
			"days":               w.Days,
		}}
		bulkWriteModels = append(bulkWriteModels, mongo.NewUpdateOneModel().SetFilter(filter).SetUpdate(update).SetUpsert(true))
	}
	if len(bulkWriteModels) == 0 {
		return nil
	}

	opts := options.BulkWrite().SetOrdered(false)
	results, err := repo.summaries.BulkWrite(repo.ctx, bulkWriteModels, opts)
	if err != nil {
		var bulkErr mongo.BulkWriteException
		if errors.As(err, &bulkErr) {
			utils.PrintWarning("%d summary writes failed", len(bulkErr.WriteErrors))
		}
		return fmt.Errorf("SaveSummaries: %w", err)
	}
	utils.PrintLog("Saved %v summaries, Upserted %v summaries", results.ModifiedCount, results.UpsertedCount)
	return nil
}

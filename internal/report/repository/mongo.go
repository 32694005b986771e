package repository

import (
	"context"
	"regexp"
	"time"

	"github.com/communityconnect/connect/backend/go-services/internal/report"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoRepo implements Repository on a MongoDB collection. Text search
// requires the index created by EnsureIndexes.
type MongoRepo struct {
	col *mongo.Collection
}

func NewMongoRepo(col *mongo.Collection) *MongoRepo {
	return &MongoRepo{col: col}
}

func (m *MongoRepo) EnsureIndexes(ctx context.Context) error {
	_, err := m.col.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys: bson.D{
				{Key: "title", Value: "text"},
				{Key: "description", Value: "text"},
				{Key: "tags", Value: "text"},
				{Key: "location.address", Value: "text"},
			},
			Options: options.Index().SetName("report_text"),
		},
		{Keys: bson.D{{Key: "createdBy", Value: 1}, {Key: "createdAt", Value: -1}}},
		{Keys: bson.D{{Key: "status", Value: 1}}},
		{Keys: bson.D{{Key: "category", Value: 1}}},
		{Keys: bson.D{{Key: "priority", Value: 1}}},
		{Keys: bson.D{{Key: "createdAt", Value: -1}}},
	})
	return err
}

// BuildFilter translates q into a Mongo filter document.
func BuildFilter(q Query) bson.M {
	filter := bson.M{}
	if q.Status != "" {
		filter["status"] = q.Status
	}
	if q.Category != "" {
		filter["category"] = q.Category
	}
	if q.Priority != "" {
		filter["priority"] = q.Priority
	}
	if q.CreatedBy != nil {
		filter["createdBy"] = *q.CreatedBy
	}
	if q.Search != "" {
		filter["$text"] = bson.M{"$search": q.Search}
	}
	if q.CreatedFrom != nil || q.CreatedTo != nil {
		created := bson.M{}
		if q.CreatedFrom != nil {
			created["$gte"] = *q.CreatedFrom
		}
		if q.CreatedTo != nil {
			created["$lte"] = *q.CreatedTo
		}
		filter["createdAt"] = created
	}
	if q.HasImages != nil {
		// images.0 exists iff the list is non-empty; this also covers legacy null lists
		filter["images.0"] = bson.M{"$exists": *q.HasImages}
	}
	if q.Assigned != nil {
		if *q.Assigned {
			filter["assignedTo"] = bson.M{"$exists": true, "$ne": nil}
		} else {
			filter["assignedTo"] = nil
		}
	}
	return filter
}

// BuildSort orders by text score first when searching, then by the
// requested field, then by _id for stable pagination.
func BuildSort(q Query) bson.D {
	dir := 1
	if q.SortDesc {
		dir = -1
	}
	field := q.SortBy
	if field == "" {
		field = "createdAt"
	}
	sort := bson.D{}
	if q.Search != "" {
		sort = append(sort, bson.E{Key: "score", Value: bson.M{"$meta": "textScore"}})
	}
	sort = append(sort, bson.E{Key: field, Value: dir})
	if field != "_id" {
		sort = append(sort, bson.E{Key: "_id", Value: dir})
	}
	return sort
}

func (m *MongoRepo) Create(ctx context.Context, r *report.Report) error {
	now := time.Now().UTC()
	r.CreatedAt = now
	r.UpdatedAt = now
	if r.ID.IsZero() {
		r.ID = primitive.NewObjectID()
	}
	r.Normalize()
	_, err := m.col.InsertOne(ctx, r)
	return err
}

func (m *MongoRepo) Get(ctx context.Context, id primitive.ObjectID) (*report.Report, error) {
	var r report.Report
	err := m.col.FindOne(ctx, bson.M{"_id": id}).Decode(&r)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, ErrNotFound
		}
		return nil, err
	}
	r.Normalize()
	return &r, nil
}

func (m *MongoRepo) Find(ctx context.Context, q Query) ([]Match, error) {
	opts := options.Find().SetSort(BuildSort(q))
	if q.Skip > 0 {
		opts.SetSkip(q.Skip)
	}
	if q.Limit > 0 {
		opts.SetLimit(q.Limit)
	}
	if q.Search != "" {
		opts.SetProjection(bson.M{"score": bson.M{"$meta": "textScore"}})
	}
	cur, err := m.col.Find(ctx, BuildFilter(q), opts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)
	out := []Match{}
	for cur.Next(ctx) {
		var row struct {
			report.Report `bson:",inline"`
			Score         float64 `bson:"score,omitempty"`
		}
		if err := cur.Decode(&row); err != nil {
			return nil, err
		}
		row.Report.Normalize()
		out = append(out, Match{Report: row.Report, Score: row.Score})
	}
	return out, cur.Err()
}

func (m *MongoRepo) Count(ctx context.Context, q Query) (int64, error) {
	return m.col.CountDocuments(ctx, BuildFilter(q))
}

func (m *MongoRepo) Update(ctx context.Context, id primitive.ObjectID, p Patch) (*report.Report, error) {
	set := bson.M{"updatedAt": time.Now().UTC()}
	if p.Title != nil {
		set["title"] = *p.Title
	}
	if p.Description != nil {
		set["description"] = *p.Description
	}
	if p.Category != nil {
		set["category"] = *p.Category
	}
	if p.Status != nil {
		set["status"] = *p.Status
	}
	if p.Priority != nil {
		set["priority"] = *p.Priority
	}
	if p.Location != nil {
		set["location"] = *p.Location
	}
	if p.Tags != nil {
		set["tags"] = *p.Tags
	}
	if p.AssignedTo != nil {
		set["assignedTo"] = *p.AssignedTo
	}
	if p.Images != nil {
		images := *p.Images
		if images == nil {
			images = []report.Image{}
		}
		set["images"] = images
	}
	update := bson.M{"$set": set}
	if len(p.PushImages) > 0 {
		update["$push"] = bson.M{"images": bson.M{"$each": p.PushImages}}
	}

	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	var r report.Report
	if err := m.col.FindOneAndUpdate(ctx, bson.M{"_id": id}, update, opts).Decode(&r); err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, ErrNotFound
		}
		return nil, err
	}
	r.Normalize()
	return &r, nil
}

func (m *MongoRepo) Delete(ctx context.Context, id primitive.ObjectID) error {
	res, err := m.col.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return err
	}
	if res.DeletedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (m *MongoRepo) Suggest(ctx context.Context, term string, owner *primitive.ObjectID) (*Suggestions, error) {
	pattern := primitive.Regex{Pattern: regexp.QuoteMeta(term), Options: "i"}
	scoped := func(f bson.M) bson.M {
		if owner != nil {
			f["createdBy"] = *owner
		}
		return f
	}

	out := &Suggestions{Categories: []string{}, Statuses: []string{}, Titles: []string{}}
	cats, err := m.col.Distinct(ctx, "category", scoped(bson.M{"category": pattern}))
	if err != nil {
		return nil, err
	}
	out.Categories = stringValues(cats)
	statuses, err := m.col.Distinct(ctx, "status", scoped(bson.M{"status": pattern}))
	if err != nil {
		return nil, err
	}
	out.Statuses = stringValues(statuses)

	opts := options.Find().
		SetProjection(bson.M{"title": 1}).
		SetSort(bson.D{{Key: "createdAt", Value: -1}}).
		SetLimit(TitleSuggestLimit)
	cur, err := m.col.Find(ctx, scoped(bson.M{"title": pattern}), opts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)
	for cur.Next(ctx) {
		var row struct {
			Title string `bson:"title"`
		}
		if err := cur.Decode(&row); err != nil {
			return nil, err
		}
		out.Titles = append(out.Titles, row.Title)
	}
	return out, cur.Err()
}

func (m *MongoRepo) Overview(ctx context.Context, owner *primitive.ObjectID, now time.Time) (*Overview, error) {
	match := bson.M{}
	if owner != nil {
		match["createdBy"] = *owner
	}
	group := func(field string) bson.A {
		return bson.A{
			bson.M{"$group": bson.M{"_id": "$" + field, "count": bson.M{"$sum": 1}}},
			bson.M{"$sort": bson.M{"_id": 1}},
		}
	}
	count := func(f bson.M) bson.A {
		return bson.A{bson.M{"$match": f}, bson.M{"$count": "count"}}
	}

	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: match}},
		{{Key: "$facet", Value: bson.M{
			"byStatus":   group("status"),
			"byCategory": group("category"),
			"byPriority": group("priority"),
			"withImages": count(bson.M{"images.0": bson.M{"$exists": true}}),
			"assigned":   count(bson.M{"assignedTo": bson.M{"$exists": true, "$ne": nil}}),
			"recent":     count(bson.M{"createdAt": bson.M{"$gte": now.Add(-RecentWindow)}}),
			"today":      count(bson.M{"createdAt": bson.M{"$gte": startOfDay(now)}}),
			"total":      bson.A{bson.M{"$count": "count"}},
			"recentActivity": bson.A{
				bson.M{"$sort": bson.M{"createdAt": -1}},
				bson.M{"$limit": ActivityLimit},
				bson.M{"$project": bson.M{
					"title": 1, "status": 1, "category": 1, "priority": 1, "createdBy": 1, "createdAt": 1,
				}},
			},
			"reportsByDay": bson.A{
				bson.M{"$group": bson.M{
					"_id":   bson.M{"$dateToString": bson.M{"format": "%Y-%m-%d", "date": "$createdAt"}},
					"count": bson.M{"$sum": 1},
				}},
				bson.M{"$sort": bson.M{"_id": -1}},
				bson.M{"$limit": DaysLimit},
			},
		}}},
	}

	cur, err := m.col.Aggregate(ctx, pipeline)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	type counted []struct {
		Count int64 `bson:"count"`
	}
	var rows []struct {
		ByStatus       []Bucket   `bson:"byStatus"`
		ByCategory     []Bucket   `bson:"byCategory"`
		ByPriority     []Bucket   `bson:"byPriority"`
		WithImages     counted    `bson:"withImages"`
		Assigned       counted    `bson:"assigned"`
		Recent         counted    `bson:"recent"`
		Today          counted    `bson:"today"`
		Total          counted    `bson:"total"`
		RecentActivity []Activity `bson:"recentActivity"`
		ReportsByDay   []Bucket   `bson:"reportsByDay"`
	}
	if err := cur.All(ctx, &rows); err != nil {
		return nil, err
	}
	first := func(c counted) int64 {
		if len(c) == 0 {
			return 0
		}
		return c[0].Count
	}
	out := &Overview{
		ByStatus:       []Bucket{},
		ByCategory:     []Bucket{},
		ByPriority:     []Bucket{},
		RecentActivity: []Activity{},
		ReportsByDay:   []Bucket{},
	}
	if len(rows) == 0 {
		return out, nil
	}
	row := rows[0]
	out.ByStatus = append(out.ByStatus, row.ByStatus...)
	out.ByCategory = append(out.ByCategory, row.ByCategory...)
	out.ByPriority = append(out.ByPriority, row.ByPriority...)
	out.RecentActivity = append(out.RecentActivity, row.RecentActivity...)
	out.ReportsByDay = append(out.ReportsByDay, row.ReportsByDay...)
	out.WithImages = first(row.WithImages)
	out.Assigned = first(row.Assigned)
	out.Recent = first(row.Recent)
	out.Today = first(row.Today)
	out.Total = first(row.Total)
	return out, nil
}

func stringValues(values []interface{}) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if s, ok := v.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

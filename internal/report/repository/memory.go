package repository

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"
	"unicode"

	"github.com/communityconnect/connect/backend/go-services/internal/report"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// MemoryRepo is an in-memory Repository used when no MongoDB URI is
// configured and in unit tests. It evaluates Query with the same semantics
// as BuildFilter; text search scores by the number of matched terms.
type MemoryRepo struct {
	mu    sync.RWMutex
	store map[primitive.ObjectID]report.Report
	now   func() time.Time
}

func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{
		store: make(map[primitive.ObjectID]report.Report),
		now:   func() time.Time { return time.Now().UTC() },
	}
}

func (m *MemoryRepo) Create(_ context.Context, r *report.Report) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	r.CreatedAt = now
	r.UpdatedAt = now
	if r.ID.IsZero() {
		r.ID = primitive.NewObjectID()
	}
	r.Normalize()
	m.store[r.ID] = clone(*r)
	return nil
}

// Put stores r as given, keeping its timestamps. Tests use it to place
// reports at fixed points in time.
func (m *MemoryRepo) Put(r report.Report) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if r.ID.IsZero() {
		r.ID = primitive.NewObjectID()
	}
	r.Normalize()
	m.store[r.ID] = clone(r)
}

func (m *MemoryRepo) Get(_ context.Context, id primitive.ObjectID) (*report.Report, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.store[id]
	if !ok {
		return nil, ErrNotFound
	}
	out := clone(r)
	return &out, nil
}

func (m *MemoryRepo) Find(_ context.Context, q Query) ([]Match, error) {
	m.mu.RLock()
	matches := m.filter(q)
	m.mu.RUnlock()

	sortMatches(matches, q)
	if q.Skip > 0 {
		if q.Skip >= int64(len(matches)) {
			return []Match{}, nil
		}
		matches = matches[q.Skip:]
	}
	if q.Limit > 0 && int64(len(matches)) > q.Limit {
		matches = matches[:q.Limit]
	}
	return matches, nil
}

func (m *MemoryRepo) Count(_ context.Context, q Query) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return int64(len(m.filter(q))), nil
}

func (m *MemoryRepo) Update(_ context.Context, id primitive.ObjectID, p Patch) (*report.Report, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.store[id]
	if !ok {
		return nil, ErrNotFound
	}
	r = clone(r)
	if p.Title != nil {
		r.Title = *p.Title
	}
	if p.Description != nil {
		r.Description = *p.Description
	}
	if p.Category != nil {
		r.Category = *p.Category
	}
	if p.Status != nil {
		r.Status = *p.Status
	}
	if p.Priority != nil {
		r.Priority = *p.Priority
	}
	if p.Location != nil {
		r.Location = *p.Location
	}
	if p.Tags != nil {
		r.Tags = append([]string{}, (*p.Tags)...)
	}
	if p.AssignedTo != nil {
		a := *p.AssignedTo
		r.AssignedTo = &a
	}
	if p.Images != nil {
		r.Images = append([]report.Image{}, (*p.Images)...)
	}
	r.Images = append(r.Images, p.PushImages...)
	r.UpdatedAt = m.now()
	m.store[id] = r
	out := clone(r)
	return &out, nil
}

func (m *MemoryRepo) Delete(_ context.Context, id primitive.ObjectID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.store[id]; !ok {
		return ErrNotFound
	}
	delete(m.store, id)
	return nil
}

func (m *MemoryRepo) Suggest(_ context.Context, term string, owner *primitive.ObjectID) (*Suggestions, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	needle := strings.ToLower(term)
	contains := func(s string) bool { return strings.Contains(strings.ToLower(s), needle) }

	out := &Suggestions{Categories: []string{}, Statuses: []string{}, Titles: []string{}}
	cats, statuses := map[string]bool{}, map[string]bool{}
	var titled []report.Report
	for _, r := range m.store {
		if owner != nil && r.CreatedBy != *owner {
			continue
		}
		if c := string(r.Category); contains(c) && !cats[c] {
			cats[c] = true
			out.Categories = append(out.Categories, c)
		}
		if s := string(r.Status); contains(s) && !statuses[s] {
			statuses[s] = true
			out.Statuses = append(out.Statuses, s)
		}
		if contains(r.Title) {
			titled = append(titled, r)
		}
	}
	sort.Strings(out.Categories)
	sort.Strings(out.Statuses)
	sort.Slice(titled, func(i, j int) bool { return titled[i].CreatedAt.After(titled[j].CreatedAt) })
	for i := 0; i < len(titled) && i < TitleSuggestLimit; i++ {
		out.Titles = append(out.Titles, titled[i].Title)
	}
	return out, nil
}

func (m *MemoryRepo) Overview(_ context.Context, owner *primitive.ObjectID, now time.Time) (*Overview, error) {
	m.mu.RLock()
	var scoped []report.Report
	for _, r := range m.store {
		if owner == nil || r.CreatedBy == *owner {
			scoped = append(scoped, r)
		}
	}
	m.mu.RUnlock()

	status, category, priority, days := map[string]int64{}, map[string]int64{}, map[string]int64{}, map[string]int64{}
	out := &Overview{RecentActivity: []Activity{}}
	recentFrom, todayFrom := now.Add(-RecentWindow), startOfDay(now)
	for _, r := range scoped {
		status[string(r.Status)]++
		category[string(r.Category)]++
		priority[string(r.Priority)]++
		days[r.CreatedAt.UTC().Format("2006-01-02")]++
		if len(r.Images) > 0 {
			out.WithImages++
		}
		if r.AssignedTo != nil {
			out.Assigned++
		}
		if !r.CreatedAt.Before(recentFrom) {
			out.Recent++
		}
		if !r.CreatedAt.Before(todayFrom) {
			out.Today++
		}
	}
	out.Total = int64(len(scoped))
	out.ByStatus = buckets(status, false)
	out.ByCategory = buckets(category, false)
	out.ByPriority = buckets(priority, false)
	out.ReportsByDay = buckets(days, true)
	if len(out.ReportsByDay) > DaysLimit {
		out.ReportsByDay = out.ReportsByDay[:DaysLimit]
	}

	sort.Slice(scoped, func(i, j int) bool { return scoped[i].CreatedAt.After(scoped[j].CreatedAt) })
	for i := 0; i < len(scoped) && i < ActivityLimit; i++ {
		r := scoped[i]
		out.RecentActivity = append(out.RecentActivity, Activity{
			ID: r.ID, Title: r.Title, Status: r.Status, Category: r.Category,
			Priority: r.Priority, CreatedBy: r.CreatedBy, CreatedAt: r.CreatedAt,
		})
	}
	return out, nil
}

// filter must be called with m.mu held.
func (m *MemoryRepo) filter(q Query) []Match {
	terms := tokenize(q.Search)
	out := []Match{}
	for _, r := range m.store {
		if q.Status != "" && string(r.Status) != q.Status {
			continue
		}
		if q.Category != "" && string(r.Category) != q.Category {
			continue
		}
		if q.Priority != "" && string(r.Priority) != q.Priority {
			continue
		}
		if q.CreatedBy != nil && r.CreatedBy != *q.CreatedBy {
			continue
		}
		if q.CreatedFrom != nil && r.CreatedAt.Before(*q.CreatedFrom) {
			continue
		}
		if q.CreatedTo != nil && r.CreatedAt.After(*q.CreatedTo) {
			continue
		}
		if q.HasImages != nil && (len(r.Images) > 0) != *q.HasImages {
			continue
		}
		if q.Assigned != nil && (r.AssignedTo != nil) != *q.Assigned {
			continue
		}
		var score float64
		if len(terms) > 0 {
			score = textScore(r, terms)
			if score == 0 {
				continue
			}
		}
		out = append(out, Match{Report: clone(r), Score: score})
	}
	return out
}

func textScore(r report.Report, terms []string) float64 {
	words := map[string]bool{}
	for _, field := range []string{r.Title, r.Description, r.Location.Address, strings.Join(r.Tags, " ")} {
		for _, w := range tokenize(field) {
			words[w] = true
		}
	}
	var score float64
	for _, t := range terms {
		if words[t] {
			score++
		}
	}
	return score
}

func tokenize(s string) []string {
	return strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

func sortMatches(ms []Match, q Query) {
	field := q.SortBy
	if field == "" {
		field = "createdAt"
	}
	less := func(a, b report.Report) int {
		switch field {
		case "title":
			return strings.Compare(a.Title, b.Title)
		case "status":
			return strings.Compare(string(a.Status), string(b.Status))
		case "category":
			return strings.Compare(string(a.Category), string(b.Category))
		case "priority":
			return strings.Compare(string(a.Priority), string(b.Priority))
		case "updatedAt":
			return a.UpdatedAt.Compare(b.UpdatedAt)
		default:
			return a.CreatedAt.Compare(b.CreatedAt)
		}
	}
	sort.SliceStable(ms, func(i, j int) bool {
		if q.Search != "" && ms[i].Score != ms[j].Score {
			return ms[i].Score > ms[j].Score
		}
		c := less(ms[i].Report, ms[j].Report)
		if c == 0 {
			c = strings.Compare(ms[i].Report.ID.Hex(), ms[j].Report.ID.Hex())
		}
		if q.SortDesc {
			return c > 0
		}
		return c < 0
	})
}

func buckets(counts map[string]int64, desc bool) []Bucket {
	out := make([]Bucket, 0, len(counts))
	for k, v := range counts {
		out = append(out, Bucket{ID: k, Count: v})
	}
	sort.Slice(out, func(i, j int) bool {
		if desc {
			return out[i].ID > out[j].ID
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func clone(r report.Report) report.Report {
	r.Tags = append([]string{}, r.Tags...)
	r.Images = append([]report.Image{}, r.Images...)
	if r.AssignedTo != nil {
		a := *r.AssignedTo
		r.AssignedTo = &a
	}
	return r
}

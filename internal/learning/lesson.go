package learning

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	chromem "github.com/philippgille/chromem-go"

	"agentrt/internal/ids"
)

// Embedder generates an embedding vector for text. Mirrors the teacher's
// memory.EmbeddingProvider seam; the language-model-backed implementation is
// out of scope here.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// Lesson is a single recorded piece of experience (spec.md §4.K).
type Lesson struct {
	ID                string
	Action            string
	ContextKey        string
	Goal              string
	WhatWentWrong     string
	BetterApproach    string
	Tags              []string
	Confidence        float64
	ReinforcementCount int
	CreatedAt         time.Time
}

// Reliability combines confidence, reinforcement, and age into the single
// score spec.md §3/§4.K/GLOSSARY define for ranking and filtering lessons:
//
//	reliability = confidence
//	            * min(1, 0.5 + 0.1*reinforcements)
//	            * max(0.3, 1 - (0.01/(1+0.5*reinforcements)) * age_days)
//
// A heavily reinforced lesson decays more slowly than a fresh one. The
// reinforcement factor is at least 0.5 and the age factor at least 0.3, so
// reliability never falls below 0.15 * confidence.
func (l Lesson) Reliability() float64 {
	reinforcements := float64(l.ReinforcementCount)
	reinforcementFactor := 0.5 + 0.1*reinforcements
	if reinforcementFactor > 1 {
		reinforcementFactor = 1
	}

	ageDays := time.Since(l.CreatedAt).Hours() / 24
	if ageDays < 0 {
		ageDays = 0
	}
	ageFactor := 1 - (0.01/(1+0.5*reinforcements))*ageDays
	if ageFactor < 0.3 {
		ageFactor = 0.3
	}

	return l.Confidence * reinforcementFactor * ageFactor
}

const lessonMemoryType = "lesson"

// LessonRepository stores and retrieves lessons via a vector store, with an
// in-memory cache for dedup and tag/action indexes (spec.md §4.K).
type LessonRepository struct {
	mu       sync.RWMutex
	embedder Embedder
	db       *chromem.DB
	coll     *chromem.Collection

	cache map[string]*Lesson
}

// NewLessonRepository creates a repository backed by an in-process
// chromem-go collection tagged memory_type="lesson".
func NewLessonRepository(embedder Embedder) (*LessonRepository, error) {
	db := chromem.NewDB()
	embedFunc := func(ctx context.Context, text string) ([]float32, error) {
		vecs, err := embedder.Embed(ctx, []string{text})
		if err != nil {
			return nil, err
		}
		if len(vecs) == 0 {
			return nil, fmt.Errorf("learning: embedder returned no vectors")
		}
		return vecs[0], nil
	}
	coll, err := db.CreateCollection("lessons", nil, embedFunc)
	if err != nil {
		return nil, fmt.Errorf("learning: create lesson collection: %w", err)
	}
	return &LessonRepository{embedder: embedder, db: db, coll: coll, cache: make(map[string]*Lesson)}, nil
}

func tokenize(text string) map[string]bool {
	tokens := make(map[string]bool)
	for _, tok := range strings.Fields(strings.ToLower(text)) {
		tokens[tok] = true
	}
	return tokens
}

func jaccard(a, b map[string]bool) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 1
	}
	intersection := 0
	for tok := range a {
		if b[tok] {
			intersection++
		}
	}
	union := len(a) + len(b) - intersection
	if union == 0 {
		return 0
	}
	return float64(intersection) / float64(union)
}

func similar(a, b *Lesson) bool {
	if a.Action != b.Action {
		return false
	}
	if a.ContextKey != "" && b.ContextKey != "" && a.ContextKey != b.ContextKey {
		return false
	}
	return jaccard(tokenize(a.WhatWentWrong), tokenize(b.WhatWentWrong)) > 0.5
}

func lessonText(l *Lesson) string {
	return fmt.Sprintf("goal: %s action: %s went wrong: %s better: %s", l.Goal, l.Action, l.WhatWentWrong, l.BetterApproach)
}

// Store persists lesson, reinforcing an existing similar lesson instead of
// creating a duplicate (spec.md §4.K).
func (r *LessonRepository) Store(ctx context.Context, lesson Lesson) (string, error) {
	r.mu.Lock()
	for id, existing := range r.cache {
		if similar(existing, &lesson) {
			r.reinforceLocked(existing)
			r.mu.Unlock()
			return id, r.persist(ctx, existing)
		}
	}
	r.mu.Unlock()

	lesson.ID = ids.Prefixed("lesson")
	if lesson.CreatedAt.IsZero() {
		lesson.CreatedAt = time.Now().UTC()
	}
	if lesson.Confidence == 0 {
		lesson.Confidence = 0.5
	}

	metadata := map[string]string{
		"memory_type": lessonMemoryType,
		"action":      lesson.Action,
		"context_key": lesson.ContextKey,
		"tags":        strings.Join(lesson.Tags, ","),
	}
	if err := r.coll.AddDocument(ctx, chromem.Document{
		ID:       lesson.ID,
		Content:  lessonText(&lesson),
		Metadata: metadata,
	}); err != nil {
		return "", fmt.Errorf("learning: store lesson: %w", err)
	}

	r.mu.Lock()
	r.cache[lesson.ID] = &lesson
	r.mu.Unlock()
	return lesson.ID, nil
}

func (r *LessonRepository) reinforceLocked(l *Lesson) {
	l.ReinforcementCount++
	l.Confidence += 0.05
	if l.Confidence > 1.0 {
		l.Confidence = 1.0
	}
}

func (r *LessonRepository) persist(ctx context.Context, l *Lesson) error {
	metadata := map[string]string{
		"memory_type": lessonMemoryType,
		"action":      l.Action,
		"context_key": l.ContextKey,
		"tags":        strings.Join(l.Tags, ","),
	}
	return r.coll.AddDocument(ctx, chromem.Document{
		ID:       l.ID,
		Content:  lessonText(l),
		Metadata: metadata,
	})
}

// ReinforceLesson increments the reinforcement count and bumps confidence
// for an existing lesson by id.
func (r *LessonRepository) ReinforceLesson(ctx context.Context, id string) (bool, error) {
	r.mu.Lock()
	l, ok := r.cache[id]
	if !ok {
		r.mu.Unlock()
		return false, nil
	}
	r.reinforceLocked(l)
	r.mu.Unlock()
	return true, r.persist(ctx, l)
}

// GetLesson returns the cached lesson by id.
func (r *LessonRepository) GetLesson(id string) (Lesson, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	l, ok := r.cache[id]
	if !ok {
		return Lesson{}, false
	}
	return *l, true
}

// GetAllLessons returns every cached lesson.
func (r *LessonRepository) GetAllLessons() []Lesson {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Lesson, 0, len(r.cache))
	for _, l := range r.cache {
		out = append(out, *l)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

// GetLessonsByTag filters cached lessons containing tag.
func (r *LessonRepository) GetLessonsByTag(tag string) []Lesson {
	var out []Lesson
	for _, l := range r.GetAllLessons() {
		for _, t := range l.Tags {
			if t == tag {
				out = append(out, l)
				break
			}
		}
	}
	return out
}

// FindByAction filters cached lessons by action, most reliable first,
// capped at topK (spec.md §4.K).
func (r *LessonRepository) FindByAction(action string, topK int) []Lesson {
	var out []Lesson
	for _, l := range r.GetAllLessons() {
		if l.Action == action {
			out = append(out, l)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Reliability() > out[j].Reliability() })
	if topK > 0 && len(out) > topK {
		out = out[:topK]
	}
	return out
}

// FindByContext filters cached lessons by context key, most reliable first,
// capped at topK (spec.md §4.K).
func (r *LessonRepository) FindByContext(contextKey string, topK int) []Lesson {
	var out []Lesson
	for _, l := range r.GetAllLessons() {
		if l.ContextKey == contextKey {
			out = append(out, l)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Reliability() > out[j].Reliability() })
	if topK > 0 && len(out) > topK {
		out = out[:topK]
	}
	return out
}

// FindRelevant builds a query from goal/action/errorText/task, issues a
// vector query for 2*topK lesson-tagged items, filters by minReliability,
// sorts descending, and trims to topK (spec.md §4.K).
func (r *LessonRepository) FindRelevant(ctx context.Context, goal, action, errorText, task string, topK int, minReliability float64) ([]Lesson, error) {
	if topK <= 0 {
		topK = 5
	}
	if minReliability <= 0 {
		minReliability = 0.3
	}

	query := strings.TrimSpace(fmt.Sprintf("%s %s %s %s", goal, action, errorText, task))
	if query == "" {
		return nil, nil
	}

	n := 2 * topK
	if r.coll.Count() < n {
		n = r.coll.Count()
	}
	if n == 0 {
		return nil, nil
	}

	results, err := r.coll.Query(ctx, query, n, map[string]string{"memory_type": lessonMemoryType}, nil)
	if err != nil {
		return nil, fmt.Errorf("learning: query lessons: %w", err)
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []Lesson
	for _, res := range results {
		l, ok := r.cache[res.ID]
		if !ok || l.Reliability() < minReliability {
			continue
		}
		out = append(out, *l)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Reliability() > out[j].Reliability() })
	if len(out) > topK {
		out = out[:topK]
	}
	return out, nil
}

// ClearCache drops the in-memory cache (the vector store content remains).
func (r *LessonRepository) ClearCache() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cache = make(map[string]*Lesson)
}

// LessonStatistics summarizes the repository's contents.
type LessonStatistics struct {
	TotalLessons     int
	AverageConfidence float64
	ByAction         map[string]int
}

// GetStatistics aggregates over the cached lessons.
func (r *LessonRepository) GetStatistics() LessonStatistics {
	r.mu.RLock()
	defer r.mu.RUnlock()

	stats := LessonStatistics{ByAction: make(map[string]int)}
	var confSum float64
	for _, l := range r.cache {
		stats.TotalLessons++
		confSum += l.Confidence
		stats.ByAction[l.Action]++
	}
	if stats.TotalLessons > 0 {
		stats.AverageConfidence = confSum / float64(stats.TotalLessons)
	}
	return stats
}

// shortHash returns a short stable hex digest, used by context-key
// derivation in the strategy adapter (spec.md §4.L).
func shortHash(s string) string {
	sum := sha1.Sum([]byte(s))
	return hex.EncodeToString(sum[:])[:12]
}

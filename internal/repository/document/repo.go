package document

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/kailas-cloud/lexrag/internal/db"
	"github.com/kailas-cloud/lexrag/internal/domain"
	domdoc "github.com/kailas-cloud/lexrag/internal/domain/document"
	"github.com/kailas-cloud/lexrag/internal/domain/search/filter"
)

// listCap bounds a single List page fetched from the index.
const listCap = 1000

// store is the consumer interface for document records (ISP).
type store interface {
	HSet(ctx context.Context, key string, fields map[string]string) error
	HSetIfExists(ctx context.Context, key string, fields map[string]string) (bool, error)
	HGetAll(ctx context.Context, key string) (map[string]string, error)
	Del(ctx context.Context, key string) error
	Exists(ctx context.Context, key string) (bool, error)
	CreateIndex(ctx context.Context, def *db.IndexDefinition) error
	IndexExists(ctx context.Context, name string) (bool, error)
	SearchList(ctx context.Context, q *db.ListQuery) (*db.SearchResult, error)
}

// Repo stores document records as hashes under <prefix>doc:.
type Repo struct {
	store  store
	prefix string
	index  string
}

// New creates a document repository.
func New(s store, keyPrefix string) *Repo {
	prefix := keyPrefix + "doc:"
	return &Repo{store: s, prefix: prefix, index: prefix + "idx"}
}

// EnsureIndex creates the owner/status index used by List.
func (r *Repo) EnsureIndex(ctx context.Context) error {
	exists, err := r.store.IndexExists(ctx, r.index)
	if err != nil {
		return fmt.Errorf("check index %s: %w", r.index, err)
	}
	if exists {
		return nil
	}
	def, err := db.NewIndex(r.index).
		Prefix(r.prefix).
		Tag(filter.KeyUserID, filter.KeyThreadID, fieldStatus).
		Numeric(fieldCreatedAt).
		Build()
	if err != nil {
		return fmt.Errorf("build index %s: %w", r.index, err)
	}
	if err := r.store.CreateIndex(ctx, def); err != nil && !errors.Is(err, db.ErrIndexExists) {
		return fmt.Errorf("create index %s: %w", r.index, err)
	}
	return nil
}

// Create stores a new document record.
func (r *Repo) Create(ctx context.Context, doc *domdoc.Document) error {
	key := r.key(doc.ID())
	if err := r.store.HSet(ctx, key, buildHashFields(doc)); err != nil {
		return fmt.Errorf("hset %s: %w", key, err)
	}
	return nil
}

// Save overwrites an existing record in one atomic step. A deleted document
// stays deleted: Save returns ErrDocumentNotFound instead of recreating it.
func (r *Repo) Save(ctx context.Context, doc *domdoc.Document) error {
	key := r.key(doc.ID())
	updated, err := r.store.HSetIfExists(ctx, key, buildHashFields(doc))
	if err != nil {
		return fmt.Errorf("hset %s: %w", key, err)
	}
	if !updated {
		return domain.ErrDocumentNotFound
	}
	return nil
}

// Get returns a document by ID.
func (r *Repo) Get(ctx context.Context, id string) (domdoc.Document, error) {
	key := r.key(id)
	m, err := r.store.HGetAll(ctx, key)
	if err != nil {
		if errors.Is(err, db.ErrKeyNotFound) {
			return domdoc.Document{}, domain.ErrDocumentNotFound
		}
		return domdoc.Document{}, fmt.Errorf("hgetall %s: %w", key, err)
	}
	return parseHashFields(id, m)
}

// List returns documents of an owner, newest first. Empty owner fields match all.
func (r *Repo) List(ctx context.Context, userID, threadID string) ([]domdoc.Document, error) {
	f, err := filter.Scope(nil, userID, threadID)
	if err != nil {
		return nil, fmt.Errorf("owner filter: %w", err)
	}

	res, err := r.store.SearchList(ctx, &db.ListQuery{IndexName: r.index, Filters: f, Limit: listCap})
	if err != nil {
		return nil, fmt.Errorf("search list %s: %w", r.index, err)
	}
	if res == nil {
		return nil, nil
	}

	docs := make([]domdoc.Document, 0, len(res.Entries))
	for _, e := range res.Entries {
		doc, err := parseHashFields(strings.TrimPrefix(e.Key, r.prefix), e.Fields)
		if err != nil {
			continue
		}
		docs = append(docs, doc)
	}
	sort.SliceStable(docs, func(i, j int) bool {
		if docs[i].CreatedAt() != docs[j].CreatedAt() {
			return docs[i].CreatedAt() > docs[j].CreatedAt()
		}
		return docs[i].ID() < docs[j].ID()
	})
	return docs, nil
}

// Delete removes a document record.
func (r *Repo) Delete(ctx context.Context, id string) error {
	key := r.key(id)
	exists, err := r.store.Exists(ctx, key)
	if err != nil {
		return fmt.Errorf("check exists %s: %w", key, err)
	}
	if !exists {
		return domain.ErrDocumentNotFound
	}
	if err := r.store.Del(ctx, key); err != nil {
		return fmt.Errorf("del %s: %w", key, err)
	}
	return nil
}

func (r *Repo) key(id string) string {
	return r.prefix + id
}

package redis

import (
	"context"
	"errors"
	"reflect"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/redis/rueidis"
	"github.com/redis/rueidis/mock"
	"go.uber.org/mock/gomock"

	"github.com/kailas-cloud/lexrag/internal/db"
	"github.com/kailas-cloud/lexrag/internal/domain/search/filter"
)

// --- client.go tests ---

func TestPing_Success(t *testing.T) {
	ctrl := gomock.NewController(t)
	c := mock.NewClient(ctrl)

	c.EXPECT().
		Do(gomock.Any(), mock.Match("PING")).
		Return(mock.Result(mock.RedisString("PONG")))

	s := NewStoreForTest(c, true)
	if err := s.Ping(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestPing_Error(t *testing.T) {
	ctrl := gomock.NewController(t)
	c := mock.NewClient(ctrl)

	c.EXPECT().
		Do(gomock.Any(), mock.Match("PING")).
		Return(mock.ErrorResult(context.DeadlineExceeded))

	s := NewStoreForTest(c, true)
	err := s.Ping(context.Background())
	var dbErr *db.Error
	if !errors.As(err, &dbErr) || dbErr.Op != db.OpPing || !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected PING db.Error wrapping the cause, got %v", err)
	}
}

func TestWaitForReady_Timeout(t *testing.T) {
	ctrl := gomock.NewController(t)
	c := mock.NewClient(ctrl)

	c.EXPECT().
		Do(gomock.Any(), mock.Match("PING")).
		Return(mock.ErrorResult(errors.New("connection refused"))).
		AnyTimes()

	s := NewStoreForTest(c, true)
	err := s.WaitForReady(context.Background(), 250*time.Millisecond)
	if !errors.Is(err, context.DeadlineExceeded) || !strings.Contains(err.Error(), "connection refused") {
		t.Fatalf("expected timeout with the last ping error, got %v", err)
	}
}

func TestWaitForReady_RecoversAfterFailures(t *testing.T) {
	ctrl := gomock.NewController(t)
	c := mock.NewClient(ctrl)

	gomock.InOrder(
		c.EXPECT().Do(gomock.Any(), mock.Match("PING")).
			Return(mock.ErrorResult(errors.New("LOADING Redis is loading the dataset in memory"))).Times(2),
		c.EXPECT().Do(gomock.Any(), mock.Match("PING")).
			Return(mock.Result(mock.RedisString("PONG"))),
	)

	s := NewStoreForTest(c, true)
	if err := s.WaitForReady(context.Background(), 2*time.Second); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

// --- hash.go and kv.go: one command, one reply ---

func prefix(parts ...string) gomock.Matcher {
	return mock.MatchFn(func(cmd []string) bool {
		return len(cmd) >= len(parts) && slices.Equal(cmd[:len(parts)], parts)
	}, strings.Join(parts, " "))
}

func TestSingleCommand(t *testing.T) {
	ctx := context.Background()
	budgetKey := "lexrag:budget:openai:daily:2026-10-17"
	tests := []struct {
		name  string
		match gomock.Matcher
		reply rueidis.RedisResult
		call  func(s *Store) (any, error)
		want  any
		op    string // Op of the expected *db.Error
		is    error
	}{
		{
			name:  "hset",
			match: prefix("HSET", "lexrag:doc:1", "status", "pending"),
			reply: mock.Result(mock.RedisInt64(1)),
			call: func(s *Store) (any, error) {
				return nil, s.HSet(ctx, "lexrag:doc:1", map[string]string{"status": "pending"})
			},
		},
		{
			name:  "hset error",
			match: prefix("HSET"),
			reply: mock.ErrorResult(context.DeadlineExceeded),
			call:  func(s *Store) (any, error) { return nil, s.HSet(ctx, "k", map[string]string{"f": "v"}) },
			op:    db.OpHSet,
			is:    context.DeadlineExceeded,
		},
		{
			name: "hset if exists",
			match: mock.MatchFn(func(cmd []string) bool {
				return len(cmd) > 2 && cmd[0] == "EVAL" && strings.Contains(cmd[1], `"EXISTS"`) &&
					slices.Equal(cmd[2:], []string{"1", "lexrag:doc:1", "chunk_count", "3", "status", "ready"})
			}, "EVAL hsetIfExists"),
			reply: mock.Result(mock.RedisInt64(1)),
			call: func(s *Store) (any, error) {
				return s.HSetIfExists(ctx, "lexrag:doc:1", map[string]string{"status": "ready", "chunk_count": "3"})
			},
			want: true,
		},
		{
			name:  "hset if exists on deleted key",
			match: prefix("EVAL"),
			reply: mock.Result(mock.RedisInt64(0)),
			call: func(s *Store) (any, error) {
				return s.HSetIfExists(ctx, "lexrag:doc:gone", map[string]string{"status": "ready"})
			},
			want: false,
		},
		{
			name:  "hset if exists error",
			match: prefix("EVAL"),
			reply: mock.ErrorResult(errors.New("NOSCRIPT")),
			call: func(s *Store) (any, error) {
				return s.HSetIfExists(ctx, "k", map[string]string{"f": "v"})
			},
			op: db.OpEval,
		},
		{
			name:  "hgetall",
			match: mock.Match("HGETALL", "k"),
			reply: mock.Result(mock.RedisMap(map[string]rueidis.RedisMessage{"status": mock.RedisString("ready")})),
			call:  func(s *Store) (any, error) { return s.HGetAll(ctx, "k") },
			want:  map[string]string{"status": "ready"},
		},
		{
			name:  "hgetall empty hash is missing",
			match: mock.Match("HGETALL", "k"),
			reply: mock.Result(mock.RedisMap(map[string]rueidis.RedisMessage{})),
			call:  func(s *Store) (any, error) { return s.HGetAll(ctx, "k") },
			is:    db.ErrKeyNotFound,
		},
		{
			name:  "del",
			match: mock.Match("DEL", "lexrag:doc:1"),
			reply: mock.Result(mock.RedisInt64(1)),
			call:  func(s *Store) (any, error) { return nil, s.Del(ctx, "lexrag:doc:1") },
		},
		{
			name:  "del multi counts existing",
			match: mock.Match("DEL", "a", "b", "c"),
			reply: mock.Result(mock.RedisInt64(2)),
			call:  func(s *Store) (any, error) { return s.DelMulti(ctx, []string{"a", "b", "c"}) },
			want:  2,
		},
		{
			name:  "exists",
			match: mock.Match("EXISTS", "k"),
			reply: mock.Result(mock.RedisInt64(1)),
			call:  func(s *Store) (any, error) { return s.Exists(ctx, "k") },
			want:  true,
		},
		{
			name:  "get",
			match: mock.Match("GET", "k"),
			reply: mock.Result(mock.RedisBlobString("payload")),
			call:  func(s *Store) (any, error) { return s.Get(ctx, "k") },
			want:  []byte("payload"),
		},
		{
			name:  "get nil is missing",
			match: mock.Match("GET", "k"),
			reply: mock.Result(mock.RedisNil()),
			call:  func(s *Store) (any, error) { return s.Get(ctx, "k") },
			is:    db.ErrKeyNotFound,
		},
		{
			name:  "set",
			match: mock.Match("SET", "k", "v"),
			reply: mock.Result(mock.RedisString("OK")),
			call:  func(s *Store) (any, error) { return nil, s.Set(ctx, "k", []byte("v")) },
		},
		{
			name:  "set with ttl",
			match: mock.Match("SET", "k", "v", "PX", "1500"),
			reply: mock.Result(mock.RedisString("OK")),
			call:  func(s *Store) (any, error) { return nil, s.SetWithTTL(ctx, "k", []byte("v"), 1500*time.Millisecond) },
		},
		{
			name:  "setnx acquired",
			match: mock.Match("SET", "lock", "owner", "NX", "PX", "60000"),
			reply: mock.Result(mock.RedisString("OK")),
			call:  func(s *Store) (any, error) { return s.SetNX(ctx, "lock", []byte("owner"), time.Minute) },
			want:  true,
		},
		{
			name:  "setnx held",
			match: prefix("SET", "lock"),
			reply: mock.Result(mock.RedisNil()),
			call:  func(s *Store) (any, error) { return s.SetNX(ctx, "lock", []byte("owner"), time.Minute) },
			want:  false,
		},
		{
			name:  "del if equal",
			match: mock.MatchFn(func(cmd []string) bool {
				return cmd[0] == "EVAL" && cmd[2] == "1" && cmd[3] == "lock" && cmd[4] == "owner"
			}),
			reply: mock.Result(mock.RedisInt64(1)),
			call:  func(s *Store) (any, error) { return s.DelIfEqual(ctx, "lock", []byte("owner")) },
			want:  true,
		},
		{
			name:  "incrby",
			match: mock.Match("INCRBY", budgetKey, "42"),
			reply: mock.Result(mock.RedisInt64(42)),
			call:  func(s *Store) (any, error) { return nil, s.IncrBy(ctx, budgetKey, 42) },
		},
		{
			name:  "expire nx",
			match: mock.Match("EXPIRE", budgetKey, "172800", "NX"),
			reply: mock.Result(mock.RedisInt64(1)),
			call:  func(s *Store) (any, error) { return nil, s.Expire(ctx, budgetKey, 48*time.Hour, true) },
		},
		{
			name:  "expire error",
			match: mock.Match("EXPIRE", budgetKey, "60"),
			reply: mock.ErrorResult(errors.New("READONLY")),
			call:  func(s *Store) (any, error) { return nil, s.Expire(ctx, budgetKey, time.Minute, false) },
			op:    db.OpExpire,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := mock.NewClient(gomock.NewController(t))
			c.EXPECT().Do(gomock.Any(), tt.match).Return(tt.reply)

			got, err := tt.call(NewStoreForTest(c, true))
			switch {
			case tt.op != "":
				if db.OpOf(err) != tt.op {
					t.Fatalf("expected %s db.Error, got %v", tt.op, err)
				}
			case tt.is != nil:
				if !errors.Is(err, tt.is) {
					t.Fatalf("expected %v, got %v", tt.is, err)
				}
			case err != nil:
				t.Fatalf("unexpected error: %v", err)
			}
			if tt.is != nil && !errors.Is(err, tt.is) {
				t.Errorf("expected %v in chain, got %v", tt.is, err)
			}
			if err == nil && !reflect.DeepEqual(got, tt.want) {
				t.Errorf("got %#v, want %#v", got, tt.want)
			}
		})
	}
}

func TestHSetMulti(t *testing.T) {
	items := []db.HashSetItem{
		{Key: "k1", Fields: map[string]string{"f1": "v1"}},
		{Key: "k2", Fields: map[string]string{"f2": "v2"}},
	}

	c := mock.NewClient(gomock.NewController(t))
	c.EXPECT().
		DoMulti(gomock.Any(), prefix("HSET", "k1", "f1", "v1"), prefix("HSET", "k2", "f2", "v2")).
		Return([]rueidis.RedisResult{mock.Result(mock.RedisInt64(1)), mock.Result(mock.RedisInt64(1))})
	if err := NewStoreForTest(c, true).HSetMulti(context.Background(), items); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	c = mock.NewClient(gomock.NewController(t))
	c.EXPECT().
		DoMulti(gomock.Any(), gomock.Any(), gomock.Any()).
		Return([]rueidis.RedisResult{mock.Result(mock.RedisInt64(1)), mock.ErrorResult(errors.New("OOM"))})
	err := NewStoreForTest(c, true).HSetMulti(context.Background(), items)
	if db.OpOf(err) != db.OpHSet || !strings.Contains(err.Error(), "k2") {
		t.Errorf("expected HSET error naming k2, got %v", err)
	}
}

func TestEmptyBatchesSkipRedis(t *testing.T) {
	// nil client: any round-trip would panic
	s := NewStoreForTest(nil, true)
	if err := s.HSetMulti(context.Background(), nil); err != nil {
		t.Errorf("HSetMulti(nil) = %v", err)
	}
	if n, err := s.DelMulti(context.Background(), nil); n != 0 || err != nil {
		t.Errorf("DelMulti(nil) = %d, %v", n, err)
	}
}

// --- index.go tests ---

func TestCreateIndex_Args(t *testing.T) {
	ctrl := gomock.NewController(t)
	c := mock.NewClient(ctrl)

	var got []string
	c.EXPECT().
		Do(gomock.Any(), mock.MatchFn(func(cmd []string) bool {
			got = cmd
			return cmd[0] == "FT.CREATE"
		})).
		Return(mock.Result(mock.RedisString("OK")))

	def := db.NewIndex("lexrag:kw:idx").
		Prefix("lexrag:kw:").
		Stopwords("a", "the").
		TextWeighted("content", 2).
		Tag("document_id").
		MustBuild()

	s := NewStoreForTest(c, true)
	if err := s.CreateIndex(context.Background(), def); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := "FT.CREATE lexrag:kw:idx ON HASH PREFIX 1 lexrag:kw: STOPWORDS 2 a the SCHEMA content TEXT WEIGHT 2 document_id TAG"
	if strings.Join(got, " ") != want {
		t.Errorf("args = %q, want %q", strings.Join(got, " "), want)
	}
}

func TestCreateIndex_AlreadyExists(t *testing.T) {
	ctrl := gomock.NewController(t)
	c := mock.NewClient(ctrl)

	c.EXPECT().
		Do(gomock.Any(), mock.MatchFn(func(cmd []string) bool { return cmd[0] == "FT.CREATE" })).
		Return(mock.Result(mock.RedisError("Index already exists")))

	s := NewStoreForTest(c, true)
	def := db.NewIndex("idx").Tag("a").MustBuild()
	if err := s.CreateIndex(context.Background(), def); !errors.Is(err, db.ErrIndexExists) {
		t.Errorf("expected ErrIndexExists, got %v", err)
	}
}

func TestIndexExists_False(t *testing.T) {
	ctrl := gomock.NewController(t)
	c := mock.NewClient(ctrl)

	c.EXPECT().
		Do(gomock.Any(), mock.Match("FT.INFO", "idx")).
		Return(mock.Result(mock.RedisError("Unknown index name")))

	s := NewStoreForTest(c, true)
	ok, err := s.IndexExists(context.Background(), "idx")
	if err != nil || ok {
		t.Errorf("IndexExists = %v, %v", ok, err)
	}
}

func TestHNSWArgs(t *testing.T) {
	f := db.IndexField{
		Name: "vector", Type: db.IndexFieldVector,
		VectorDim: 4, VectorDistance: db.DistanceCosine, VectorM: 16, VectorEFConstruct: 200,
	}
	got := strings.Join(hnswArgs(&f), " ")
	want := "VECTOR HNSW 10 TYPE FLOAT32 DIM 4 DISTANCE_METRIC COSINE M 16 EF_CONSTRUCTION 200"
	if got != want {
		t.Errorf("args = %q, want %q", got, want)
	}
}

func TestSupportsTextSearch(t *testing.T) {
	if !NewStoreForTest(nil, true).SupportsTextSearch(context.Background()) {
		t.Error("expected text search")
	}
	if NewStoreForTest(nil, false).SupportsTextSearch(context.Background()) {
		t.Error("expected no text search")
	}
}

// --- search.go tests ---

func TestSearchKNN_Success(t *testing.T) {
	ctrl := gomock.NewController(t)
	c := mock.NewClient(ctrl)

	var query string
	c.EXPECT().
		Do(gomock.Any(), mock.MatchFn(func(cmd []string) bool {
			query = cmd[2]
			return cmd[0] == "FT.SEARCH"
		})).
		Return(mock.Result(mock.RedisArray(
			mock.RedisInt64(1),
			mock.RedisString("lexrag:vec:doc-1:0"),
			mock.RedisArray(
				mock.RedisString("__vector_score"),
				mock.RedisString("0.1"), // distance 0.1 -> similarity 0.9
				mock.RedisString("content"),
				mock.RedisString("hello"),
			),
		)))

	f, _ := filter.Scope([]string{"doc-1", "doc-2"}, "", "")
	s := NewStoreForTest(c, true)
	result, err := s.SearchKNN(context.Background(), &db.KNNQuery{
		IndexName:   "idx",
		VectorField: "vector",
		Filters:     f,
		Vector:      []float32{0.1, 0.2},
		K:           10,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(result.Entries) != 1 || result.Entries[0].Key != "lexrag:vec:doc-1:0" {
		t.Fatalf("unexpected entries: %+v", result.Entries)
	}
	if sc := result.Entries[0].Score; sc < 0.89 || sc > 0.91 {
		t.Errorf("expected score ~0.9, got %f", sc)
	}
	if _, ok := result.Entries[0].Fields["__vector_score"]; ok {
		t.Error("score field must be stripped")
	}
	wantQuery := `(@document_id:{doc\-1 | doc\-2})=>[KNN 10 @vector $BLOB AS __vector_score]`
	if query != wantQuery {
		t.Errorf("query = %q, want %q", query, wantQuery)
	}
}

func TestSearchKNN_Validation(t *testing.T) {
	s := NewStoreForTest(nil, true)
	tests := []struct {
		name string
		q    db.KNNQuery
	}{
		{"no index", db.KNNQuery{VectorField: "v", Vector: []float32{1}, K: 1}},
		{"no field", db.KNNQuery{IndexName: "i", Vector: []float32{1}, K: 1}},
		{"no vector", db.KNNQuery{IndexName: "i", VectorField: "v", K: 1}},
		{"zero k", db.KNNQuery{IndexName: "i", VectorField: "v", Vector: []float32{1}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := s.SearchKNN(context.Background(), &tt.q); !errors.Is(err, db.ErrInvalidQuery) {
				t.Errorf("expected ErrInvalidQuery, got %v", err)
			}
		})
	}
}

func TestSearchKNN_Error(t *testing.T) {
	ctrl := gomock.NewController(t)
	c := mock.NewClient(ctrl)

	c.EXPECT().
		Do(gomock.Any(), gomock.Any()).
		Return(mock.ErrorResult(context.DeadlineExceeded))

	s := NewStoreForTest(c, true)
	_, err := s.SearchKNN(context.Background(), &db.KNNQuery{
		IndexName: "i", VectorField: "v", Vector: []float32{1}, K: 1,
	})
	if !isDBError(err) || !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected wrapped deadline db.Error, got %v", err)
	}
}

func TestSearchBM25_Success(t *testing.T) {
	ctrl := gomock.NewController(t)
	c := mock.NewClient(ctrl)

	var query string
	c.EXPECT().
		Do(gomock.Any(), mock.MatchFn(func(cmd []string) bool {
			query = cmd[2]
			return cmd[0] == "FT.SEARCH"
		})).
		Return(mock.Result(mock.RedisArray(
			mock.RedisInt64(2),
			mock.RedisString("lexrag:kw:d:0"),
			mock.RedisString("3.5"),
			mock.RedisArray(mock.RedisString("content"), mock.RedisString("termination")),
			mock.RedisString("lexrag:kw:d:1"),
			mock.RedisString("1.25"),
			mock.RedisArray(mock.RedisString("content"), mock.RedisString("notice")),
		)))

	s := NewStoreForTest(c, true)
	res, err := s.SearchBM25(context.Background(), &db.TextQuery{
		IndexName: "idx",
		TextField: "content",
		Terms:     []string{"termination", "non-renewal", " "},
		TopK:      5,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(res.Entries) != 2 || res.Entries[0].Score != 3.5 || res.Entries[1].Score != 1.25 {
		t.Errorf("unexpected entries: %+v", res.Entries)
	}
	if query != `@content:(termination|non\-renewal)` {
		t.Errorf("query = %q", query)
	}
}

func TestSearchBM25_Unsupported(t *testing.T) {
	s := NewStoreForTest(nil, false)
	_, err := s.SearchBM25(context.Background(), &db.TextQuery{
		IndexName: "i", TextField: "content", Terms: []string{"a"}, TopK: 1,
	})
	if !isDBError(err) {
		t.Errorf("expected db.Error, got %v", err)
	}
}

func TestSearchBM25_NoTerms(t *testing.T) {
	s := NewStoreForTest(nil, true)
	_, err := s.SearchBM25(context.Background(), &db.TextQuery{
		IndexName: "i", TextField: "content", Terms: []string{"  "}, TopK: 1,
	})
	if !errors.Is(err, db.ErrInvalidQuery) {
		t.Errorf("expected ErrInvalidQuery, got %v", err)
	}
}

func TestSearchList_NoContent(t *testing.T) {
	ctrl := gomock.NewController(t)
	c := mock.NewClient(ctrl)

	c.EXPECT().
		Do(gomock.Any(), mock.MatchFn(func(cmd []string) bool {
			return cmd[0] == "FT.SEARCH" && cmd[3] == "NOCONTENT"
		})).
		Return(mock.Result(mock.RedisArray(
			mock.RedisInt64(2),
			mock.RedisString("k1"),
			mock.RedisString("k2"),
		)))

	f, _ := filter.Scope([]string{"d"}, "", "")
	s := NewStoreForTest(c, true)
	res, err := s.SearchList(context.Background(), &db.ListQuery{IndexName: "idx", Filters: f, Limit: 100, NoContent: true})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if keys := res.Keys(); len(keys) != 2 || keys[1] != "k2" {
		t.Errorf("keys = %v", keys)
	}
}

func TestSearchList_Fields(t *testing.T) {
	ctrl := gomock.NewController(t)
	c := mock.NewClient(ctrl)

	c.EXPECT().
		Do(gomock.Any(), mock.MatchFn(func(cmd []string) bool {
			return cmd[0] == "FT.SEARCH" && cmd[2] == "*"
		})).
		Return(mock.Result(mock.RedisArray(
			mock.RedisInt64(1),
			mock.RedisString("k1"),
			mock.RedisArray(mock.RedisString("status"), mock.RedisString("ready")),
		)))

	s := NewStoreForTest(c, true)
	res, err := s.SearchList(context.Background(), &db.ListQuery{IndexName: "idx", Limit: 10})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Entries[0].Fields["status"] != "ready" {
		t.Errorf("unexpected fields: %v", res.Entries[0].Fields)
	}
}

func TestSearchCount(t *testing.T) {
	ctrl := gomock.NewController(t)
	c := mock.NewClient(ctrl)

	c.EXPECT().
		Do(gomock.Any(), mock.MatchFn(func(cmd []string) bool {
			return cmd[0] == "FT.SEARCH" && cmd[3] == "LIMIT"
		})).
		Return(mock.Result(mock.RedisArray(mock.RedisInt64(42))))

	s := NewStoreForTest(c, true)
	n, err := s.SearchCount(context.Background(), &db.ListQuery{IndexName: "idx"})
	if err != nil || n != 42 {
		t.Errorf("SearchCount = %d, %v", n, err)
	}
}

func TestBuildFilter(t *testing.T) {
	if got := buildFilter(filter.Expression{}); got != "" {
		t.Errorf("empty filter = %q", got)
	}
	f, _ := filter.Scope([]string{"a.b"}, "u1", "t 1")
	want := `@document_id:{a\.b} @user_id:{u1} @thread_id:{t\ 1}`
	if got := buildFilter(f); got != want {
		t.Errorf("buildFilter = %q, want %q", got, want)
	}
}

func TestEscapeQuery(t *testing.T) {
	got := escapeQuery(`"confidential" @user {tag}`)
	want := `\"confidential\" \@user \{tag\}`
	if got != want {
		t.Errorf("expected %q, got %q", want, got)
	}
}

func TestVectorToBytes(t *testing.T) {
	if b := vectorToBytes([]float32{1.0, 2.0}); len(b) != 8 {
		t.Fatalf("expected 8 bytes, got %d", len(b))
	}
}

// --- helpers ---

// isDBError is a test helper for checking wrapped db.Error.
func isDBError(err error) bool {
	var dbErr *db.Error
	return errors.As(err, &dbErr)
}

package user

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"tg_weather_bot/internal/domain"
)

func TestEnsureUserCreatesNewRecord(t *testing.T) {
	hookLogger, hook := logtest.NewNullLogger()
	coll := newFakeUserCollection(t)
	registrar := NewRegistrar(coll, logrus.NewEntry(hookLogger))

	id, err := registrar.EnsureUser(context.Background(), domain.Profile{UserID: 123, UserName: "taras", ChatID: 123})
	if err != nil {
		t.Fatalf("EnsureUser returned error: %v", err)
	}
	if id != 123 {
		t.Fatalf("expected id 123, got %d", id)
	}

	doc := coll.docFor(t, 123)

	assertFieldEquals(t, doc, "user_id", int64(123))
	assertFieldEquals(t, doc, "user_name", "taras")
	assertFieldEquals(t, doc, "chat_id", int64(123))

	createdAt := assertTimeField(t, doc, "created_at")
	updatedAt := assertTimeField(t, doc, "updated_at")
	if !createdAt.Equal(updatedAt) {
		t.Fatalf("expected timestamps to match on insert, got created_at=%v updated_at=%v", createdAt, updatedAt)
	}

	entry := hook.LastEntry()
	if entry == nil || entry.Data["event"] != "user_registered" {
		t.Fatalf("expected user_registered log entry, got %v", entry)
	}
}

func TestEnsureUserTwiceKeepsSingleRecord(t *testing.T) {
	hookLogger, _ := logtest.NewNullLogger()
	coll := newFakeUserCollection(t)
	registrar := NewRegistrar(coll, logrus.NewEntry(hookLogger))
	ctx := context.Background()

	if _, err := registrar.EnsureUser(ctx, domain.Profile{UserID: 9, UserName: "first", ChatID: 9}); err != nil {
		t.Fatalf("EnsureUser returned error: %v", err)
	}
	if _, err := registrar.EnsureUser(ctx, domain.Profile{UserID: 9, UserName: "second", ChatID: 9}); err != nil {
		t.Fatalf("EnsureUser returned error: %v", err)
	}

	if len(coll.docs) != 1 {
		t.Fatalf("expected exactly one stored user, got %d", len(coll.docs))
	}
	assertFieldEquals(t, coll.docFor(t, 9), "user_name", "second")
}

func TestEnsureUserRefreshesProfileOnly(t *testing.T) {
	hookLogger, _ := logtest.NewNullLogger()
	coll := newFakeUserCollection(t)

	createdAt := time.Date(2024, 7, 1, 12, 0, 0, 0, time.UTC)
	coll.seed(t, bson.M{
		"user_id":    int64(777),
		"user_name":  "old",
		"chat_id":    int64(1),
		"created_at": createdAt,
		"updated_at": createdAt,
	})

	registrar := NewRegistrar(coll, logrus.NewEntry(hookLogger))

	if _, err := registrar.EnsureUser(context.Background(), domain.Profile{UserID: 777, UserName: "new", ChatID: 777}); err != nil {
		t.Fatalf("EnsureUser returned error: %v", err)
	}

	doc := coll.docFor(t, 777)

	assertFieldEquals(t, doc, "created_at", createdAt)
	assertFieldEquals(t, doc, "user_name", "new")
	assertFieldEquals(t, doc, "chat_id", int64(777))

	updatedAt := assertTimeField(t, doc, "updated_at")
	if !updatedAt.After(createdAt) {
		t.Fatalf("expected updated_at to advance beyond %v, got %v", createdAt, updatedAt)
	}
}

func TestEnsureUserDefaultsMissingName(t *testing.T) {
	hookLogger, _ := logtest.NewNullLogger()
	coll := newFakeUserCollection(t)
	registrar := NewRegistrar(coll, logrus.NewEntry(hookLogger))

	if _, err := registrar.EnsureUser(context.Background(), domain.Profile{UserID: 5, ChatID: 5}); err != nil {
		t.Fatalf("EnsureUser returned error: %v", err)
	}

	assertFieldEquals(t, coll.docFor(t, 5), "user_name", domain.UnknownUserName)
}

func TestEnsureUserPropagatesStoreError(t *testing.T) {
	hookLogger, _ := logtest.NewNullLogger()
	coll := newFakeUserCollection(t)
	coll.err = errors.New("no reachable servers")
	registrar := NewRegistrar(coll, logrus.NewEntry(hookLogger))

	_, err := registrar.EnsureUser(context.Background(), domain.Profile{UserID: 1, ChatID: 1})
	if !errors.Is(err, coll.err) {
		t.Fatalf("expected store error to be wrapped, got %v", err)
	}
}

func TestEnsureUserValidatesInput(t *testing.T) {
	hookLogger, _ := logtest.NewNullLogger()
	registrar := NewRegistrar(newFakeUserCollection(t), logrus.NewEntry(hookLogger))

	if _, err := registrar.EnsureUser(nil, domain.Profile{UserID: 1}); err == nil {
		t.Fatalf("expected error for nil context")
	}
	if _, err := registrar.EnsureUser(context.Background(), domain.Profile{}); err == nil {
		t.Fatalf("expected error for missing user id")
	}

	var nilRegistrar *Registrar
	if _, err := nilRegistrar.EnsureUser(context.Background(), domain.Profile{UserID: 1}); err == nil {
		t.Fatalf("expected error for nil registrar")
	}
}

type fakeUserCollection struct {
	t    *testing.T
	docs map[int64]bson.M
	err  error
}

func newFakeUserCollection(t *testing.T) *fakeUserCollection {
	t.Helper()
	return &fakeUserCollection{
		t:    t,
		docs: make(map[int64]bson.M),
	}
}

func (f *fakeUserCollection) UpdateOne(_ context.Context, filter interface{}, update interface{}, opts ...*options.UpdateOptions) (*mongo.UpdateResult, error) {
	if f.err != nil {
		return nil, f.err
	}

	filterDoc, ok := filter.(bson.M)
	if !ok {
		return nil, f.Errorf("unexpected filter type %T", filter)
	}

	userID := readInt64(f.t, filterDoc["user_id"])

	updateDoc, ok := update.(bson.M)
	if !ok {
		return nil, f.Errorf("unexpected update type %T", update)
	}

	setDoc, _ := updateDoc["$set"].(bson.M)
	setOnInsertDoc, _ := updateDoc["$setOnInsert"].(bson.M)

	upsert := len(opts) > 0 && opts[0] != nil && opts[0].Upsert != nil && *opts[0].Upsert

	doc, found := f.docs[userID]
	if !found && !upsert {
		return &mongo.UpdateResult{}, nil
	}
	if !found {
		doc = bson.M{}
		merge(doc, setOnInsertDoc)
	}

	merge(doc, setDoc)
	f.docs[userID] = doc

	result := &mongo.UpdateResult{
		MatchedCount:  1,
		ModifiedCount: 1,
	}

	if !found {
		result.MatchedCount = 0
		result.UpsertedCount = 1
		result.UpsertedID = userID
	}

	return result, nil
}

func (f *fakeUserCollection) docFor(t *testing.T, userID int64) bson.M {
	t.Helper()

	doc, ok := f.docs[userID]
	if !ok {
		t.Fatalf("no document stored for user_id=%d", userID)
	}

	return doc
}

func (f *fakeUserCollection) seed(t *testing.T, doc bson.M) {
	t.Helper()
	idVal, ok := doc["user_id"]
	if !ok {
		t.Fatalf("seed document missing user_id: %v", doc)
	}

	f.docs[readInt64(t, idVal)] = doc
}

func (f *fakeUserCollection) Errorf(format string, args ...interface{}) error {
	f.t.Helper()
	f.t.Fatalf(format, args...)
	return nil
}

func merge(dst bson.M, updates bson.M) {
	for k, v := range updates {
		dst[k] = v
	}
}

func readInt64(t *testing.T, value interface{}) int64 {
	t.Helper()

	switch v := value.(type) {
	case int64:
		return v
	case int32:
		return int64(v)
	default:
		t.Fatalf("expected int64-compatible value, got %T", value)
		return 0
	}
}

func assertFieldEquals(t *testing.T, doc bson.M, field string, expected interface{}) {
	t.Helper()

	val, ok := doc[field]
	if !ok {
		t.Fatalf("expected field %s to be set", field)
	}

	if val != expected {
		t.Fatalf("expected %s=%v, got %v", field, expected, val)
	}
}

func assertTimeField(t *testing.T, doc bson.M, field string) time.Time {
	t.Helper()

	val, ok := doc[field]
	if !ok {
		t.Fatalf("expected field %s to be set", field)
	}

	ts, ok := val.(time.Time)
	if !ok {
		t.Fatalf("expected field %s to be time.Time, got %T", field, val)
	}

	if ts.IsZero() {
		t.Fatalf("expected field %s to be non-zero", field)
	}

	return ts
}

package outcome

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"connectivity/internal/constants"
	"connectivity/pkg/metrics"
	"connectivity/pkg/models"
)

type outcomeDocument struct {
	RequestID        string         `bson:"_id"`
	Kind             string         `bson:"kind"`
	SubjectReference string         `bson:"subject_reference"`
	Status           string         `bson:"status"`
	Detail           detailDocument `bson:"detail"`
	CompletedAt      time.Time      `bson:"completed_at"`
	PublishAttempts  int            `bson:"publish_attempts"`
	LastPublishedAt  *time.Time     `bson:"last_published_at,omitempty"`
	CreatedAt        time.Time      `bson:"created_at"`
}

type detailDocument struct {
	StatusCode int    `bson:"status_code,omitempty"`
	Message    string `bson:"message"`
	ErrorClass string `bson:"error_class,omitempty"`
	// Response is kept as canonical JSON text so equality checks are
	// byte-exact after a round trip.
	Response string `bson:"response,omitempty"`
}

type MongoStore struct {
	collection *mongo.Collection
}

func NewMongoStore(db *mongo.Database) *MongoStore {
	return &MongoStore{collection: db.Collection(constants.OutcomesCollection)}
}

func (s *MongoStore) PutIfAbsent(ctx context.Context, outcome *models.Outcome) (result PutResult, err error) {
	start := time.Now()
	defer func() {
		metrics.ObserveStoreOperation(constants.ResultStoreMongoDB, "put_if_absent", ignoreConflict(err), time.Since(start))
	}()

	doc := toDocument(outcome)
	doc.CreatedAt = time.Now().UTC()

	_, err = s.collection.InsertOne(ctx, doc)
	if err == nil {
		return PutResult{Stored: true}, nil
	}
	if isValidationFailure(err) {
		return PutResult{}, fmt.Errorf("%w: %v", ErrInvalidOutcome, err)
	}
	if !mongo.IsDuplicateKeyError(err) {
		return PutResult{}, fmt.Errorf("failed to insert outcome: %w", err)
	}

	existing, err := s.get(ctx, outcome.RequestID)
	if err != nil {
		return PutResult{}, err
	}
	return resolveExisting(existing, outcome)
}

func (s *MongoStore) Get(ctx context.Context, requestID string) (outcome *models.Outcome, err error) {
	start := time.Now()
	defer func() {
		metrics.ObserveStoreOperation(constants.ResultStoreMongoDB, "get", ignoreNotFound(err), time.Since(start))
	}()
	return s.get(ctx, requestID)
}

func (s *MongoStore) get(ctx context.Context, requestID string) (*models.Outcome, error) {
	var doc outcomeDocument
	err := s.collection.FindOne(ctx, bson.M{"_id": requestID}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find outcome: %w", err)
	}
	return fromDocument(&doc), nil
}

func (s *MongoStore) RecordPublish(ctx context.Context, requestID string) (attempt int, err error) {
	start := time.Now()
	defer func() {
		metrics.ObserveStoreOperation(constants.ResultStoreMongoDB, "record_publish", err, time.Since(start))
	}()

	update := bson.M{
		"$inc": bson.M{"publish_attempts": 1},
		"$set": bson.M{"last_published_at": time.Now().UTC()},
	}
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)

	var doc outcomeDocument
	err = s.collection.FindOneAndUpdate(ctx, bson.M{"_id": requestID}, update, opts).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return 0, ErrNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("failed to record publish attempt: %w", err)
	}
	return doc.PublishAttempts, nil
}

// isValidationFailure matches DocumentValidationFailure from the collection
// validator.
func isValidationFailure(err error) bool {
	var we mongo.WriteException
	if !errors.As(err, &we) {
		return false
	}
	for _, e := range we.WriteErrors {
		if e.Code == 121 {
			return true
		}
	}
	return false
}

func toDocument(o *models.Outcome) *outcomeDocument {
	return &outcomeDocument{
		RequestID:        o.RequestID,
		Kind:             string(o.Kind),
		SubjectReference: o.SubjectReference,
		Status:           string(o.Status),
		Detail: detailDocument{
			StatusCode: o.Detail.StatusCode,
			Message:    o.Detail.Message,
			ErrorClass: o.Detail.ErrorClass,
			Response:   string(models.CanonicalJSON(o.Detail.Response)),
		},
		CompletedAt:     o.CompletedAt.UTC(),
		PublishAttempts: o.PublishAttempts,
	}
}

func fromDocument(doc *outcomeDocument) *models.Outcome {
	o := &models.Outcome{
		RequestID:        doc.RequestID,
		Kind:             models.Kind(doc.Kind),
		SubjectReference: doc.SubjectReference,
		Status:           models.OutcomeStatus(doc.Status),
		Detail: models.OutcomeDetail{
			StatusCode: doc.Detail.StatusCode,
			Message:    doc.Detail.Message,
			ErrorClass: doc.Detail.ErrorClass,
		},
		CompletedAt:     doc.CompletedAt.UTC(),
		PublishAttempts: doc.PublishAttempts,
	}
	if doc.Detail.Response != "" {
		o.Detail.Response = []byte(doc.Detail.Response)
	}
	return o
}

package migrations

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"connectivity/internal/constants"
)

// outcomeSchema mirrors the NOT NULL and CHECK constraints of the postgres
// verification_outcomes table.
var outcomeSchema = bson.M{
	"$jsonSchema": bson.M{
		"bsonType": "object",
		"required": bson.A{"_id", "kind", "status", "completed_at", "publish_attempts"},
		"properties": bson.M{
			"_id":              bson.M{"bsonType": "string", "minLength": 1},
			"kind":             bson.M{"bsonType": "string"},
			"status":           bson.M{"enum": bson.A{"approved", "rejected", "error"}},
			"completed_at":     bson.M{"bsonType": "date"},
			"publish_attempts": bson.M{"bsonType": bson.A{"int", "long"}, "minimum": 0},
		},
	},
}

var outcomeIndexes = []mongo.IndexModel{
	{
		Keys:    bson.D{{Key: "kind", Value: 1}, {Key: "subject_reference", Value: 1}},
		Options: options.Index().SetName("idx_verification_outcomes_subject"),
	},
	{
		Keys:    bson.D{{Key: "completed_at", Value: -1}},
		Options: options.Index().SetName("idx_verification_outcomes_completed_at"),
	},
}

// EnsureMongoOutcomes creates the outcome collection with its validator and
// secondary indexes, or brings an existing one up to date. Uniqueness of
// request ids comes from _id.
func EnsureMongoOutcomes(ctx context.Context, db *mongo.Database) error {
	names, err := db.ListCollectionNames(ctx, bson.M{"name": constants.OutcomesCollection})
	if err != nil {
		return fmt.Errorf("failed to list collections: %w", err)
	}

	if len(names) == 0 {
		opts := options.CreateCollection().SetValidator(outcomeSchema)
		if err := db.CreateCollection(ctx, constants.OutcomesCollection, opts); err != nil && !isNamespaceExists(err) {
			return fmt.Errorf("failed to create %s: %w", constants.OutcomesCollection, err)
		}
	} else {
		cmd := bson.D{
			{Key: "collMod", Value: constants.OutcomesCollection},
			{Key: "validator", Value: outcomeSchema},
		}
		if err := db.RunCommand(ctx, cmd).Err(); err != nil {
			return fmt.Errorf("failed to update %s validator: %w", constants.OutcomesCollection, err)
		}
	}

	if _, err := db.Collection(constants.OutcomesCollection).Indexes().CreateMany(ctx, outcomeIndexes); err != nil {
		return fmt.Errorf("failed to create outcome indexes: %w", err)
	}
	return nil
}

// isNamespaceExists matches a concurrent creator winning the race.
func isNamespaceExists(err error) bool {
	var cmdErr mongo.CommandError
	return errors.As(err, &cmdErr) && cmdErr.Code == 48
}

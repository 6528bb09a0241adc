package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/chattrix/chattrix/internal/models"
)

// MongoUsers implements UserRepository over a users collection.
type MongoUsers struct {
	col *mongo.Collection
}

// NewMongoUsers wraps the users collection of the given database.
func NewMongoUsers(db *mongo.Database) *MongoUsers {
	return &MongoUsers{col: db.Collection("users")}
}

// EnsureIndexes creates the unique indexes on username and email. Both
// uniqueness checks in the registration flow are advisory; the indexes are
// the authoritative constraint.
func (r *MongoUsers) EnsureIndexes(ctx context.Context) error {
	_, err := r.col.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "username", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{
			Keys:    bson.D{{Key: "email", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

func (r *MongoUsers) Insert(ctx context.Context, user *models.User) (*models.User, error) {
	user.CreatedAt = time.Now()
	res, err := r.col.InsertOne(ctx, user)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return nil, ErrDuplicate
		}
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if oid, ok := res.InsertedID.(primitive.ObjectID); ok {
		user.ID = oid
	}
	return user, nil
}

func (r *MongoUsers) FindByID(ctx context.Context, id string) (*models.User, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, ErrNotFound
	}
	return r.findOne(ctx, bson.M{"_id": oid})
}

func (r *MongoUsers) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	return r.findOne(ctx, bson.M{"email": email})
}

func (r *MongoUsers) ExistsByUsernameOrEmail(ctx context.Context, username, email string) (bool, error) {
	filter := bson.M{"$or": bson.A{
		bson.M{"username": username},
		bson.M{"email": email},
	}}
	err := r.col.FindOne(ctx, filter, options.FindOne().SetProjection(bson.M{"_id": 1})).Err()
	if err == nil {
		return true, nil
	}
	if errors.Is(err, mongo.ErrNoDocuments) {
		return false, nil
	}
	return false, fmt.Errorf("%w: %v", ErrUnavailable, err)
}

func (r *MongoUsers) UpdatePresence(ctx context.Context, id, status string, lastSeen time.Time) error {
	return r.updateByID(ctx, id, bson.M{"$set": bson.M{
		"status":   status,
		"lastSeen": lastSeen,
	}})
}

func (r *MongoUsers) UpdatePasswordHash(ctx context.Context, id, passwordHash string) error {
	return r.updateByID(ctx, id, bson.M{"$set": bson.M{"passwordHash": passwordHash}})
}

func (r *MongoUsers) UpdateProfile(ctx context.Context, id, avatar, bio string) error {
	set := bson.M{}
	if avatar != "" {
		set["avatar"] = avatar
	}
	if bio != "" {
		set["bio"] = bio
	}
	if len(set) == 0 {
		return nil
	}
	return r.updateByID(ctx, id, bson.M{"$set": set})
}

// List returns every account. The surrounding product uses this for the user
// directory; password hashes stay server-side because handlers project
// through models.PublicUser.
func (r *MongoUsers) List(ctx context.Context) ([]models.User, error) {
	cur, err := r.col.Find(ctx, bson.M{}, options.Find().SetSort(bson.D{{Key: "username", Value: 1}}))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer cur.Close(ctx)

	var users []models.User
	if err := cur.All(ctx, &users); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return users, nil
}

func (r *MongoUsers) findOne(ctx context.Context, filter bson.M) (*models.User, error) {
	var user models.User
	if err := r.col.FindOne(ctx, filter).Decode(&user); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return &user, nil
}

func (r *MongoUsers) updateByID(ctx context.Context, id string, update bson.M) error {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return ErrNotFound
	}
	res, err := r.col.UpdateOne(ctx, bson.M{"_id": oid}, update)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

package templates

import (
	"context"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

// DefaultTranslationCollection is the collection MongoTranslationStore uses
// unless told otherwise.
const DefaultTranslationCollection = "template_translations"

type translationDoc struct {
	EventKey     string `bson:"event_key"`
	TemplateType string `bson:"template_type"`
	Language     string `bson:"language"`
	TenantID     string `bson:"tenant_id"`
	Version      string `bson:"version"`
	Title        string `bson:"title"`
	Text         string `bson:"text"`
	HTML         string `bson:"html,omitempty"`
}

// MongoTranslationStore keeps translations as documents keyed by event,
// template type, language, tenant and version.
type MongoTranslationStore struct {
	coll *mongo.Collection
}

func NewMongoTranslationStore(db *mongo.Database, collection string) *MongoTranslationStore {
	if collection == "" {
		collection = DefaultTranslationCollection
	}
	return &MongoTranslationStore{coll: db.Collection(collection)}
}

// EnsureIndexes creates the unique lookup index.
func (s *MongoTranslationStore) EnsureIndexes(ctx context.Context) error {
	_, err := s.coll.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{
			{Key: "event_key", Value: 1},
			{Key: "template_type", Value: 1},
			{Key: "language", Value: 1},
			{Key: "tenant_id", Value: 1},
			{Key: "version", Value: 1},
		},
		Options: options.Index().SetUnique(true).SetName("translation_lookup"),
	})
	return err
}

func (s *MongoTranslationStore) FindTranslations(ctx context.Context, eventKey, templateType string, languages []string) ([]Translation, error) {
	cur, err := s.coll.Find(ctx, bson.D{
		{Key: "event_key", Value: eventKey},
		{Key: "template_type", Value: templateType},
		{Key: "language", Value: bson.D{{Key: "$in", Value: languages}}},
	})
	if err != nil {
		return nil, err
	}
	var docs []translationDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, err
	}
	out := make([]Translation, len(docs))
	for i, d := range docs {
		out[i] = Translation(d)
	}
	return out, nil
}

func (s *MongoTranslationStore) PutTranslation(ctx context.Context, t Translation) error {
	filter := bson.D{
		{Key: "event_key", Value: t.EventKey},
		{Key: "template_type", Value: t.TemplateType},
		{Key: "language", Value: t.Language},
		{Key: "tenant_id", Value: t.TenantID},
		{Key: "version", Value: t.Version},
	}
	_, err := s.coll.ReplaceOne(ctx, filter, translationDoc(t), options.Replace().SetUpsert(true))
	return err
}

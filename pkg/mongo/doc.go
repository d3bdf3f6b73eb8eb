// Package mongo connects to MongoDB with the v2 driver. The database
// backs templates.MongoTranslationStore when translations are kept in
// Mongo instead of Postgres or files.
package mongo

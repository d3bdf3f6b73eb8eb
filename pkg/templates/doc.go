// Package templates selects, localizes and renders notification content.
//
// Resolver.Render runs the pipeline for one notification:
//
//  1. normalize the event key;
//  2. pick a version: an active A/B test the recipient falls into, else a
//     rollout version the recipient is eligible for, else the default
//     version, else unversioned content;
//  3. walk the locale chain (recipient locale, its fallbacks, tenant
//     languages, "en") for the first translation, preferring versioned and
//     tenant-specific content within each language;
//  4. interpolate %{path} placeholders from the payload, escaping HTML;
//  5. count the attempt on the version and in analytics, failures included.
//
// Traffic splits use Bucket, a fixed FNV-1a hash of recipient and salt
// reduced mod 100, so a recipient keeps its variant for the life of a test.
//
// VersionManager creates versions, manages defaults and runs A/B tests,
// evaluating them with a two-proportion z-test over version counters.
//
// Stores: MemoryStore, PostgresStore (pgx), MongoTranslationStore,
// FileTranslationStore and CachedTranslationStore.
package templates

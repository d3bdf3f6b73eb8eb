// Package admin exposes the operator HTTP surface of a notification
// service: event registry inspection, configuration validation and
// reload, open digest batches and analytics.
//
// Every JSON response uses one envelope:
//
//	{"data": ..., "meta": {...}, "error": {"code": "...", "message": "...", "details": {...}}}
//
// Mount Handler.Routes on any chi router or serve it directly.
package admin

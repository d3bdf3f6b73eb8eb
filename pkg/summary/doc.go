// Package summary turns a stream of notifications into a digest body.
//
// Summarize consumes an iter.Seq of items lazily. Items past the cap are
// counted but never retained, and a source implementing Counter is not
// iterated past the cap at all. Grouped summaries keep one representative
// per event key, in first-seen order, with the group size.
//
//	s, err := summary.Summarize(summary.Slice(items), summary.Options{
//		MaxItems:     5,
//		GroupByEvent: true,
//		Format:       summary.FormatHTML,
//	})
//
// Text and HTML output escape every user-supplied field; links with a
// scheme other than http, https or mailto are dropped.
package summary

package templates

import "github.com/dmitrymomot/notifykit/pkg/feature"

// Bucket maps a recipient to [0,100) for salt. It is FNV-1a over
// recipientID + ":" + salt and must not change while a test runs.
func Bucket(recipientID, salt string) int {
	return feature.Bucket(recipientID, salt)
}

// Assign places a recipient in a test. The first hash decides whether the
// recipient enters the test at all; the second, independent hash splits
// participants between the arms in proportion to controlShare:testShare.
// A zero test share keeps every participant on control.
func Assign(t ABTest, controlShare, testShare int, recipientID string) (Variant, bool) {
	if Bucket(recipientID, t.ID) >= t.TrafficPercentage {
		return VariantNone, false
	}
	controlShare, testShare = max(controlShare, 0), max(testShare, 0)
	if Bucket(recipientID, t.ID+":variant")*(controlShare+testShare) < testShare*100 {
		return VariantTest, true
	}
	return VariantControl, true
}

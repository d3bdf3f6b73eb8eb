package templates

import "math"

// TwoProportionZTest compares conversion rates x1/n1 and x2/n2 and returns
// the z score of the second against the first and the two-sided p-value.
// Empty samples or a pooled rate of 0 or 1 yield z=0, p=1.
func TwoProportionZTest(x1, n1, x2, n2 int64) (z, p float64) {
	if n1 <= 0 || n2 <= 0 {
		return 0, 1
	}
	p1 := float64(x1) / float64(n1)
	p2 := float64(x2) / float64(n2)
	pooled := float64(x1+x2) / float64(n1+n2)
	se := math.Sqrt(pooled * (1 - pooled) * (1/float64(n1) + 1/float64(n2)))
	if se == 0 {
		return 0, 1
	}
	z = (p2 - p1) / se
	return z, math.Erfc(math.Abs(z) / math.Sqrt2)
}

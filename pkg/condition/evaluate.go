package condition

// MinDataPoints returns the minimum number of aligned bars c needs before it
// can produce any output.
func (c Condition) MinDataPoints() int {
	switch c.Kind {
	case CrossesAbove, CrossesBelow:
		return 2
	case RisingTrend, FallingTrend:
		if c.K < 1 {
			return 2
		}
		return c.K + 1
	default:
		return 1
	}
}

func (c Condition) expectedShape() InputShape {
	shape, _ := ExpectedShape(c.Kind)
	return shape
}

// ExpectedShape returns the Input shape a given condition Kind requires, so
// that callers (e.g. strategy definition validation) can check
// compatibility before any data is available. ok is false for an
// unrecognized Kind.
func ExpectedShape(kind Kind) (shape InputShape, ok bool) {
	switch kind {
	case Above, Below, CrossesAbove, CrossesBelow:
		return ShapeDual, true
	case GreaterPercent, LowerPercent:
		return ShapeDualWithPercent, true
	case RisingTrend, FallingTrend:
		return ShapeSingle, true
	case Between:
		return ShapeRange, true
	default:
		return "", false
	}
}

// Evaluate runs c over in, returning the per-bar signal/strength/direction
// vectors. Pure: identical c and in always produce an identical Result.
func Evaluate(c Condition, in Input) (Result, error) {
	want := c.expectedShape()
	if want == "" {
		return Result{}, newError("unknown_condition", "unrecognized condition kind %q", c.Kind)
	}
	if in.Shape != want {
		return Result{}, newError("incompatible_shape",
			"condition %q expects %s input, got %s", c.Kind, want, in.Shape)
	}

	n, err := alignedLength(c, in)
	if err != nil {
		return Result{}, err
	}
	if n < c.MinDataPoints() {
		return Result{}, insufficientData(c.MinDataPoints(), n)
	}

	res := Result{
		Signal:    make([]bool, n),
		Strength:  make([]SignalStrength, n),
		Direction: make([]TrendDirection, n),
	}

	switch c.Kind {
	case Above, Below:
		evalDual(c.Kind, in, res)
	case GreaterPercent, LowerPercent:
		evalDualWithPercent(c.Kind, in, res)
	case CrossesAbove, CrossesBelow:
		evalCross(c.Kind, in, res)
	case RisingTrend, FallingTrend:
		evalTrend(c.Kind, c.K, in, res)
	case Between:
		evalBetween(in, res)
	}

	return res, nil
}

func alignedLength(c Condition, in Input) (int, error) {
	switch in.Shape {
	case ShapeSingle:
		return len(in.A), nil
	case ShapeDual, ShapeDualWithPercent:
		return minLen(in.A, in.B), nil
	case ShapeRange:
		n := minLen(in.A, in.L)
		if len(in.U) < n {
			n = len(in.U)
		}
		return n, nil
	default:
		return 0, newError("incompatible_shape", "shape %s not supported by this kernel version", in.Shape)
	}
}

func minLen(a, b []float64) int {
	if len(a) < len(b) {
		return len(a)
	}
	return len(b)
}

func evalDual(kind Kind, in Input, res Result) {
	for i := range res.Signal {
		a, b := in.A[i], in.B[i]
		diff := a - b
		norm := normalize(diff, b)
		switch kind {
		case Above:
			res.Signal[i] = a > b
		case Below:
			res.Signal[i] = a < b
		}
		res.Strength[i] = bucketStrength(norm)
		if i == 0 {
			res.Direction[i] = Sideways
		} else {
			res.Direction[i] = bucketDirection(in.A[i-1], a)
		}
	}
}

func evalDualWithPercent(kind Kind, in Input, res Result) {
	factorUp := 1 + in.Percent/100
	factorDown := 1 - in.Percent/100
	for i := range res.Signal {
		a, b := in.A[i], in.B[i]
		switch kind {
		case GreaterPercent:
			res.Signal[i] = a > b*factorUp
		case LowerPercent:
			res.Signal[i] = a < b*factorDown
		}
		res.Strength[i] = bucketStrength(normalize(a-b, b))
		if i == 0 {
			res.Direction[i] = Sideways
		} else {
			res.Direction[i] = bucketDirection(in.A[i-1], a)
		}
	}
}

func evalCross(kind Kind, in Input, res Result) {
	for i := range res.Signal {
		if i == 0 {
			res.Signal[i] = false
			res.Strength[i] = Weak
			res.Direction[i] = Sideways
			continue
		}
		prevA, prevB := in.A[i-1], in.B[i-1]
		a, b := in.A[i], in.B[i]
		switch kind {
		case CrossesAbove:
			res.Signal[i] = prevA <= prevB && a > b
		case CrossesBelow:
			res.Signal[i] = prevA >= prevB && a < b
		}
		res.Strength[i] = bucketStrength(normalize(a-b, b))
		res.Direction[i] = bucketDirection(prevA, a)
	}
}

func evalTrend(kind Kind, k int, in Input, res Result) {
	if k < 1 {
		k = 1
	}
	for i := range res.Signal {
		if i < k {
			res.Signal[i] = false
			res.Strength[i] = Weak
			res.Direction[i] = Sideways
			continue
		}
		ok := true
		for j := i - k + 1; j <= i; j++ {
			switch kind {
			case RisingTrend:
				if in.A[j-1] >= in.A[j] {
					ok = false
				}
			case FallingTrend:
				if in.A[j-1] <= in.A[j] {
					ok = false
				}
			}
		}
		res.Signal[i] = ok
		res.Strength[i] = bucketStrength(normalize(in.A[i]-in.A[i-k], in.A[i-k]))
		res.Direction[i] = bucketDirection(in.A[i-1], in.A[i])
	}
}

func evalBetween(in Input, res Result) {
	for i := range res.Signal {
		a, lo, hi := in.A[i], in.L[i], in.U[i]
		res.Signal[i] = lo <= a && a <= hi
		mid := (lo + hi) / 2
		res.Strength[i] = bucketStrength(normalize(a-mid, mid))
		if i == 0 {
			res.Direction[i] = Sideways
		} else {
			res.Direction[i] = bucketDirection(in.A[i-1], a)
		}
	}
}

func normalize(diff, base float64) float64 {
	if base == 0 {
		return 0
	}
	return diff / base
}

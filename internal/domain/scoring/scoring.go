// Package scoring classifies total-score movements into wins and losses.
//
// One interval between two polls yields at most one win or one loss: a
// positive delta is a win, a negative delta a loss, zero neither. Several
// battles settled between two polls collapse into one increment; callers
// that need exact counts must poll faster than battles resolve.
package scoring

// Outcome is the win/loss increment for one interval. At most one field is 1.
type Outcome struct {
	Won  int
	Lost int
}

// Zero reports whether the outcome changes nothing.
func (o Outcome) Zero() bool { return o.Won == 0 && o.Lost == 0 }

// Classifier maps a score delta to an Outcome.
type Classifier interface {
	Classify(delta int64) Outcome
}

// ClassifierFunc adapts a function to Classifier.
type ClassifierFunc func(delta int64) Outcome

// Classify calls f.
func (f ClassifierFunc) Classify(delta int64) Outcome { return f(delta) }

// DeltaSign is the default classifier.
var DeltaSign Classifier = ClassifierFunc(Classify)

// Classify returns one win for a positive delta and one loss for a negative one.
func Classify(delta int64) Outcome {
	switch {
	case delta > 0:
		return Outcome{Won: 1}
	case delta < 0:
		return Outcome{Lost: 1}
	default:
		return Outcome{}
	}
}

// Tally is a cumulative win/loss count.
type Tally struct {
	Wins   int
	Losses int
}

// Add applies an outcome and returns the new tally.
func (t Tally) Add(o Outcome) Tally {
	t.Wins += o.Won
	t.Losses += o.Lost
	return t
}

package evolution

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"time"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/optimize"
	"gonum.org/v1/gonum/stat"

	"github.com/Alias1177/MatchPredictor/models"
)

const numClasses = 3

// Classifier is a multinomial logistic regression over standardised
// prediction features. It is the opaque artifact kept by the controller.
type Classifier struct {
	Features        int         `json:"features"`
	Mean            []float64   `json:"mean"`
	Std             []float64   `json:"std"`
	Weights         [][]float64 `json:"weights"` // numClasses rows of bias + Features weights
	Samples         int         `json:"samples"`
	HoldoutAccuracy float64     `json:"holdout_accuracy"`
	TrainedAt       time.Time   `json:"trained_at"`
}

// FitOptions control the optimiser
type FitOptions struct {
	L2            float64
	MaxIterations int
}

// Fit trains a classifier on x (one row per sample) and labels y in
// {0,1,2}. It fails on degenerate input, optimiser failure or when ctx ends.
func Fit(ctx context.Context, x [][]float64, y []int, opts FitOptions) (*Classifier, error) {
	if len(x) == 0 || len(x) != len(y) {
		return nil, fmt.Errorf("fit: %d rows for %d labels", len(x), len(y))
	}
	d := len(x[0])
	if d == 0 {
		return nil, errors.New("fit: empty feature vectors")
	}

	data := mat.NewDense(len(x), d, nil)
	for i, row := range x {
		if len(row) != d {
			return nil, fmt.Errorf("fit: row %d has %d features, want %d", i, len(row), d)
		}
		for j, v := range row {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return nil, fmt.Errorf("fit: row %d feature %d is not finite", i, j)
			}
		}
		data.SetRow(i, row)
	}
	for i, label := range y {
		if label < 0 || label >= numClasses {
			return nil, fmt.Errorf("fit: label %d at row %d out of range", label, i)
		}
	}

	c := &Classifier{Features: d, Mean: make([]float64, d), Std: make([]float64, d), Samples: len(x)}
	col := make([]float64, len(x))
	for j := 0; j < d; j++ {
		mat.Col(col, j, data)
		c.Mean[j], c.Std[j] = stat.MeanStdDev(col, nil)
		if c.Std[j] < 1e-9 || math.IsNaN(c.Std[j]) {
			c.Std[j] = 1
		}
	}

	// standardised design matrix with a leading bias column
	rows := make([][]float64, len(x))
	for i := range x {
		rows[i] = c.design(x[i])
	}

	width := d + 1
	n := float64(len(x))
	probs := make([]float64, numClasses)

	problem := optimize.Problem{
		Func: func(w []float64) float64 {
			if ctx.Err() != nil {
				return math.Inf(1)
			}
			var loss float64
			for i, row := range rows {
				softmax(probs, w, row, width)
				loss -= math.Log(math.Max(probs[y[i]], 1e-15))
			}
			return loss/n + 0.5*opts.L2*floats.Dot(w, w)
		},
		Grad: func(grad, w []float64) {
			for k := range grad {
				grad[k] = opts.L2 * w[k]
			}
			for i, row := range rows {
				softmax(probs, w, row, width)
				for k := 0; k < numClasses; k++ {
					diff := probs[k]
					if k == y[i] {
						diff--
					}
					floats.AddScaled(grad[k*width:(k+1)*width], diff/n, row)
				}
			}
		},
	}

	settings := &optimize.Settings{
		MajorIterations:   opts.MaxIterations,
		GradientThreshold: 1e-6,
	}
	result, err := optimize.Minimize(problem, make([]float64, numClasses*width), settings, &optimize.LBFGS{})
	if ctxErr := ctx.Err(); ctxErr != nil {
		return nil, fmt.Errorf("fit: %w", ctxErr)
	}
	// a line search that stalls next to the optimum still leaves a usable point
	if err != nil && !(errors.Is(err, optimize.ErrLinesearcherFailure) && result != nil) {
		return nil, fmt.Errorf("fit: %w", err)
	}
	if result == nil || !allFinite(result.X) {
		return nil, errors.New("fit: optimiser returned non-finite weights")
	}

	c.Weights = make([][]float64, numClasses)
	for k := 0; k < numClasses; k++ {
		c.Weights[k] = append([]float64(nil), result.X[k*width:(k+1)*width]...)
	}
	return c, nil
}

// Probabilities returns the class distribution for one feature vector
func (c *Classifier) Probabilities(x []float64) ([]float64, error) {
	if len(x) != c.Features {
		return nil, fmt.Errorf("classifier expects %d features, got %d", c.Features, len(x))
	}
	width := c.Features + 1
	flat := make([]float64, 0, numClasses*width)
	for _, w := range c.Weights {
		flat = append(flat, w...)
	}
	out := make([]float64, numClasses)
	softmax(out, flat, c.design(x), width)
	return out, nil
}

// Predict returns the most probable outcome
func (c *Classifier) Predict(x []float64) (models.Outcome, error) {
	p, err := c.Probabilities(x)
	if err != nil {
		return "", err
	}
	return models.Outcomes[floats.MaxIdx(p)], nil
}

// Accuracy is the share of rows whose predicted class matches y
func (c *Classifier) Accuracy(x [][]float64, y []int) float64 {
	if len(x) == 0 {
		return 0
	}
	hits := 0
	for i := range x {
		p, err := c.Probabilities(x[i])
		if err != nil {
			continue
		}
		if floats.MaxIdx(p) == y[i] {
			hits++
		}
	}
	return float64(hits) / float64(len(x))
}

// Marshal serialises the classifier artifact
func (c *Classifier) Marshal() ([]byte, error) {
	return json.Marshal(c)
}

// UnmarshalClassifier restores an artifact written by Marshal
func UnmarshalClassifier(data []byte) (*Classifier, error) {
	var c Classifier
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("decoding classifier: %w", err)
	}
	if len(c.Weights) != numClasses || len(c.Mean) != c.Features || len(c.Std) != c.Features {
		return nil, errors.New("decoding classifier: inconsistent dimensions")
	}
	for _, w := range c.Weights {
		if len(w) != c.Features+1 {
			return nil, errors.New("decoding classifier: inconsistent dimensions")
		}
	}
	return &c, nil
}

func (c *Classifier) design(x []float64) []float64 {
	row := make([]float64, len(x)+1)
	row[0] = 1
	for j, v := range x {
		row[j+1] = (v - c.Mean[j]) / c.Std[j]
	}
	return row
}

// softmax writes class probabilities for row into out, w being numClasses
// consecutive blocks of width weights
func softmax(out, w, row []float64, width int) {
	for k := range out {
		out[k] = floats.Dot(w[k*width:(k+1)*width], row)
	}
	maxZ := floats.Max(out)
	var sum float64
	for k := range out {
		out[k] = math.Exp(out[k] - maxZ)
		sum += out[k]
	}
	floats.Scale(1/sum, out)
}

func allFinite(v []float64) bool {
	for _, x := range v {
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return false
		}
	}
	return true
}

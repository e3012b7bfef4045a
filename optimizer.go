package main

import "math"

// ===========================================================================
// PREDICTION OPTIMIZER - Gradient descent on a single rating
// ===========================================================================
//
// A recommender predicts how much a user will like an item (1-5 stars). When
// the prediction is off, we nudge it towards the user's real preference:
//
//   error      = target - prediction
//   prediction = prediction + learningRate * error
//
// This is gradient descent on the squared error (target - prediction)^2 / 2,
// whose gradient with respect to the prediction is -(target - prediction).
//
// CONVERGENCE:
//   After each step the remaining error is multiplied by (1 - learningRate).
//   For 0 < learningRate < 2 that factor has magnitude < 1, so the error
//   shrinks geometrically:
//
//     lr = 0.2  ->  error * 0.8 per step  (slow, smooth approach)
//     lr = 1.0  ->  exact in one step
//     lr = 1.5  ->  error * -0.5 per step (overshoots, oscillates, converges)
//     lr >= 2   ->  diverges
//
// There is no early stopping: the optimizer always runs exactly the requested
// number of iterations so the chart shows the whole trajectory.
//
// ===========================================================================

// DefaultLearningRate is the step size used by the recommendation demo.
const DefaultLearningRate = 0.2

// Rating bounds of the recommendation demo (star ratings).
const (
	RatingMin = 1.0
	RatingMax = 5.0
)

// OptimizationStep records one gradient update.
//
// Prediction is the value AFTER the update; Error is |target - prediction|
// measured BEFORE it.
type OptimizationStep struct {
	Iteration  int     `json:"iteration"`
	Prediction float64 `json:"prediction"`
	Error      float64 `json:"error"`
	Target     float64 `json:"target"`
}

// Trajectory is the complete record of one optimization run.
type Trajectory struct {
	Target       float64            `json:"target"`
	Initial      float64            `json:"initial"`
	LearningRate float64            `json:"learning_rate"`
	Steps        []OptimizationStep `json:"steps"`
}

// Final returns the prediction after the last step, or the initial prediction
// when no step was taken.
func (t Trajectory) Final() float64 {
	if len(t.Steps) == 0 {
		return t.Initial
	}
	return t.Steps[len(t.Steps)-1].Prediction
}

// Len returns the number of steps.
func (t Trajectory) Len() int {
	return len(t.Steps)
}

// PredictionOptimizer runs scalar gradient descent towards a fixed target.
// The zero value uses DefaultLearningRate.
type PredictionOptimizer struct {
	LearningRate float64
}

// NewPredictionOptimizer returns an optimizer with the given learning rate.
func NewPredictionOptimizer(learningRate float64) PredictionOptimizer {
	return PredictionOptimizer{LearningRate: learningRate}
}

func (o PredictionOptimizer) rate() float64 {
	if o.LearningRate == 0 {
		return DefaultLearningRate
	}
	return o.LearningRate
}

// Optimize runs exactly iterations update steps starting from initial.
// Negative iteration counts are treated as zero.
func (o PredictionOptimizer) Optimize(target, initial float64, iterations int) Trajectory {
	return optimize(target, initial, iterations, o.rate())
}

func optimize(target, initial float64, iterations int, lr float64) Trajectory {
	if iterations < 0 {
		iterations = 0
	}

	traj := Trajectory{
		Target:       target,
		Initial:      initial,
		LearningRate: lr,
		Steps:        make([]OptimizationStep, 0, iterations),
	}

	prediction := initial
	for i := 0; i < iterations; i++ {
		diff := target - prediction
		prediction += lr * diff
		traj.Steps = append(traj.Steps, OptimizationStep{
			Iteration:  i,
			Prediction: prediction,
			Error:      math.Abs(diff),
			Target:     target,
		})
	}
	return traj
}

// Optimize runs gradient descent with an explicit learning rate, used as
// given. A zero rate leaves the prediction at initial.
func Optimize(target, initial float64, iterations int, learningRate float64) Trajectory {
	return optimize(target, initial, iterations, learningRate)
}

// ClampRating keeps v inside [RatingMin, RatingMax].
func ClampRating(v float64) float64 {
	if v < RatingMin {
		return RatingMin
	}
	if v > RatingMax {
		return RatingMax
	}
	return v
}

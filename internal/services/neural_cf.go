package services

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/lernia/lernia/internal/config"
	"github.com/lernia/lernia/pkg/models"
)

// NeuralCFModel is the alternative collaborative engine: user and item
// embeddings feed a small multilayer perceptron trained as a binary
// classifier over observed cells and sampled negatives. It satisfies the
// same contract as the factorization model, so the rest of the pipeline does
// not care which engine produced the snapshot.
type NeuralCFModel struct {
	userIndex map[uuid.UUID]int
	itemIndex map[uuid.UUID]int
	observed  []int

	userEmb *mat.Dense
	itemEmb *mat.Dense

	// Hidden layers stored as (in x out) weight matrices plus bias vectors,
	// followed by a single sigmoid output unit.
	weights []*mat.Dense
	biases  [][]float64
	outW    []float64
	outB    float64

	globalMean float64
	loss       float64
	epochs     int
}

func (m *NeuralCFModel) Predict(userID, resourceID uuid.UUID) (float64, bool) {
	u, ok := m.userIndex[userID]
	if !ok {
		return 0, false
	}
	it, ok := m.itemIndex[resourceID]
	if !ok {
		return 0, false
	}
	out, _ := m.forward(u, it)
	return out, true
}

func (m *NeuralCFModel) KnowsUser(userID uuid.UUID) bool {
	_, ok := m.userIndex[userID]
	return ok
}

func (m *NeuralCFModel) Confidence(userID uuid.UUID) float64 {
	u, ok := m.userIndex[userID]
	if !ok {
		return 0
	}
	return collaborativeConfidence(m.observed[u])
}

func (m *NeuralCFModel) GlobalMean() float64 { return m.globalMean }
func (m *NeuralCFModel) Loss() float64       { return m.loss }
func (m *NeuralCFModel) Epochs() int         { return m.epochs }

// forward runs the network for one (user, item) index pair, returning the
// sigmoid output and the per-layer activations for backpropagation.
func (m *NeuralCFModel) forward(u, it int) (float64, [][]float64) {
	x := make([]float64, 0, 2*m.userEmb.RawMatrix().Cols)
	x = append(x, m.userEmb.RawRowView(u)...)
	x = append(x, m.itemEmb.RawRowView(it)...)

	activations := [][]float64{x}
	for l, w := range m.weights {
		_, out := w.Dims()
		h := make([]float64, out)
		for j := 0; j < out; j++ {
			h[j] = m.biases[l][j] + floats.Dot(activations[l], mat.Col(nil, j, w))
			if h[j] < 0 {
				h[j] = 0 // ReLU
			}
		}
		activations = append(activations, h)
	}

	last := activations[len(activations)-1]
	z := m.outB + floats.Dot(last, m.outW)
	return sigmoid(z), activations
}

func sigmoid(z float64) float64 {
	return 1 / (1 + math.Exp(-z))
}

type trainingExample struct {
	user  int
	item  int
	label float64
}

// TrainNeuralCF trains the embedding MLP with per-example stochastic
// gradient descent on binary cross-entropy. Positives are the observed
// matrix cells; negatives are sampled uniformly from each user's unseen
// items at the configured ratio. Example order and sampling come from the
// seeded generator, so a run is reproducible.
func TrainNeuralCF(ctx context.Context, matrix *InteractionMatrix, cfg *config.TrainingConfig, logger *logrus.Logger) (*NeuralCFModel, error) {
	nUsers := len(matrix.Users())
	nItems := len(matrix.Items())
	if matrix.Observed() == 0 {
		return nil, fmt.Errorf("%w: no observed interactions to train on", models.ErrDataUnavailable)
	}

	rng := rand.New(rand.NewSource(cfg.Seed))

	model := &NeuralCFModel{
		userIndex: make(map[uuid.UUID]int, nUsers),
		itemIndex: make(map[uuid.UUID]int, nItems),
		userEmb:   mat.NewDense(nUsers, cfg.Factors, nil),
		itemEmb:   mat.NewDense(nItems, cfg.Factors, nil),
	}
	model.observed = make([]int, nUsers)
	for i, id := range matrix.Users() {
		model.userIndex[id] = i
		row, _ := matrix.Row(id)
		model.observed[i] = len(row)
	}
	for i, id := range matrix.Items() {
		model.itemIndex[id] = i
	}

	scale := 0.1 / math.Sqrt(float64(cfg.Factors))
	fillRandom(model.userEmb, rng, scale)
	fillRandom(model.itemEmb, rng, scale)

	in := 2 * cfg.Factors
	for _, out := range cfg.HiddenLayers {
		w := mat.NewDense(in, out, nil)
		fillRandom(w, rng, math.Sqrt(2/float64(in)))
		model.weights = append(model.weights, w)
		model.biases = append(model.biases, make([]float64, out))
		in = out
	}
	model.outW = make([]float64, in)
	for i := range model.outW {
		model.outW[i] = (rng.Float64() - 0.5) * math.Sqrt(2/float64(in))
	}

	positives := positiveExamples(matrix)
	model.globalMean = 1 / float64(1+cfg.NegativeSampleRatio)

	start := time.Now()
	prevLoss := math.Inf(1)

	for epoch := 1; epoch <= cfg.MaxEpochs; epoch++ {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("training cancelled at epoch %d: %w", epoch, err)
		}

		examples := sampleEpoch(matrix, positives, cfg.NegativeSampleRatio, rng)

		var loss float64
		for _, ex := range examples {
			loss += model.sgdStep(ex, cfg.LearningRate, cfg.Regularization)
		}
		loss /= float64(len(examples))
		model.epochs = epoch
		model.loss = loss

		if math.IsNaN(loss) || math.IsInf(loss, 0) {
			return nil, fmt.Errorf("training diverged at epoch %d: non-finite loss", epoch)
		}
		if loss > prevLoss*(1+cfg.DivergenceTolerance) {
			return nil, fmt.Errorf("training diverged at epoch %d: loss %.6f grew past %.6f", epoch, loss, prevLoss)
		}
		if prevLoss-loss < cfg.Tolerance*prevLoss {
			break
		}
		prevLoss = loss
	}

	logger.WithFields(logrus.Fields{
		"users":     nUsers,
		"items":     nItems,
		"positives": len(positives),
		"layers":    cfg.HiddenLayers,
		"epochs":    model.epochs,
		"loss":      model.loss,
		"duration":  time.Since(start),
	}).Info("Neural collaborative filtering training completed")

	return model, nil
}

func positiveExamples(matrix *InteractionMatrix) []trainingExample {
	var positives []trainingExample
	for u, id := range matrix.Users() {
		row, _ := matrix.Row(id)
		for _, c := range sortedCells(row) {
			positives = append(positives, trainingExample{user: u, item: c.idx, label: 1})
		}
	}
	return positives
}

// sampleEpoch shuffles the positives and draws fresh negatives for each,
// skipping draws that hit an observed cell.
func sampleEpoch(matrix *InteractionMatrix, positives []trainingExample, ratio int, rng *rand.Rand) []trainingExample {
	nItems := len(matrix.Items())
	examples := make([]trainingExample, 0, len(positives)*(1+ratio))
	examples = append(examples, positives...)

	for _, pos := range positives {
		row, _ := matrix.Row(matrix.Users()[pos.user])
		for n := 0; n < ratio; n++ {
			for attempts := 0; attempts < 10; attempts++ {
				it := rng.Intn(nItems)
				if _, seen := row[it]; !seen {
					examples = append(examples, trainingExample{user: pos.user, item: it, label: 0})
					break
				}
			}
		}
	}

	rng.Shuffle(len(examples), func(i, j int) {
		examples[i], examples[j] = examples[j], examples[i]
	})
	return examples
}

// sgdStep runs one forward/backward pass and returns the example's BCE loss.
func (m *NeuralCFModel) sgdStep(ex trainingExample, lr, reg float64) float64 {
	out, activations := m.forward(ex.user, ex.item)

	// d(BCE)/dz for a sigmoid output collapses to (out - label).
	dz := out - ex.label

	last := activations[len(activations)-1]
	dLast := make([]float64, len(last))
	for j := range last {
		dLast[j] = dz * m.outW[j]
		m.outW[j] -= lr * (dz*last[j] + reg*m.outW[j])
	}
	m.outB -= lr * dz

	// Hidden layers, walked backwards.
	delta := dLast
	for l := len(m.weights) - 1; l >= 0; l-- {
		w := m.weights[l]
		inAct := activations[l]
		outAct := activations[l+1]
		rows, cols := w.Dims()

		dIn := make([]float64, rows)
		for j := 0; j < cols; j++ {
			if outAct[j] <= 0 {
				continue // ReLU gate
			}
			for i := 0; i < rows; i++ {
				dIn[i] += delta[j] * w.At(i, j)
				w.Set(i, j, w.At(i, j)-lr*(delta[j]*inAct[i]+reg*w.At(i, j)))
			}
			m.biases[l][j] -= lr * delta[j]
		}
		delta = dIn
	}

	// Embedding gradients: the input vector is the concatenation of the two
	// embedding rows, so delta splits down the middle.
	factors := m.userEmb.RawMatrix().Cols
	uRow := m.userEmb.RawRowView(ex.user)
	iRow := m.itemEmb.RawRowView(ex.item)
	for f := 0; f < factors; f++ {
		uRow[f] -= lr * (delta[f] + reg*uRow[f])
		iRow[f] -= lr * (delta[factors+f] + reg*iRow[f])
	}

	const eps = 1e-12
	if ex.label > 0.5 {
		return -math.Log(out + eps)
	}
	return -math.Log(1 - out + eps)
}

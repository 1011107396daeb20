package services

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/lernia/lernia/internal/config"
	"github.com/lernia/lernia/pkg/models"
)

// LatentModel is the trained matrix-factorization model: one latent vector
// per user row and resource column. Immutable after training.
type LatentModel struct {
	userIndex map[uuid.UUID]int
	itemIndex map[uuid.UUID]int
	p         *mat.Dense
	q         *mat.Dense
	observed  []int

	globalMean float64
	loss       float64
	epochs     int
}

func (m *LatentModel) Predict(userID, resourceID uuid.UUID) (float64, bool) {
	u, ok := m.userIndex[userID]
	if !ok {
		return 0, false
	}
	it, ok := m.itemIndex[resourceID]
	if !ok {
		return 0, false
	}
	return floats.Dot(m.p.RawRowView(u), m.q.RawRowView(it)), true
}

func (m *LatentModel) KnowsUser(userID uuid.UUID) bool {
	_, ok := m.userIndex[userID]
	return ok
}

func (m *LatentModel) Confidence(userID uuid.UUID) float64 {
	u, ok := m.userIndex[userID]
	if !ok {
		return 0
	}
	return collaborativeConfidence(m.observed[u])
}

func (m *LatentModel) GlobalMean() float64 { return m.globalMean }
func (m *LatentModel) Loss() float64       { return m.loss }
func (m *LatentModel) Epochs() int         { return m.epochs }

// TrainFactorization fits latent factors to the observed cells by full-batch
// alternating gradient descent: all user rows update in parallel against the
// fixed item factors, then all item rows against the updated user factors.
// Row updates touch disjoint memory, so worker scheduling cannot change the
// result; the run is deterministic for a given seed and matrix.
//
// Training stops when the relative loss improvement drops below the
// tolerance or the epoch cap is hit. A diverging run (loss growing past the
// divergence tolerance, or going non-finite) aborts with an error so the
// previously published model stays in service.
func TrainFactorization(ctx context.Context, matrix *InteractionMatrix, cfg *config.TrainingConfig, logger *logrus.Logger) (*LatentModel, error) {
	nUsers := len(matrix.Users())
	nItems := len(matrix.Items())
	if matrix.Observed() == 0 {
		return nil, fmt.Errorf("%w: no observed interactions to train on", models.ErrDataUnavailable)
	}

	model := &LatentModel{
		userIndex:  make(map[uuid.UUID]int, nUsers),
		itemIndex:  make(map[uuid.UUID]int, nItems),
		p:          mat.NewDense(nUsers, cfg.Factors, nil),
		q:          mat.NewDense(nItems, cfg.Factors, nil),
		globalMean: matrix.GlobalMean(),
	}
	for i, id := range matrix.Users() {
		model.userIndex[id] = i
	}
	for i, id := range matrix.Items() {
		model.itemIndex[id] = i
	}

	rng := rand.New(rand.NewSource(cfg.Seed))
	scale := 0.1 / math.Sqrt(float64(cfg.Factors))
	fillRandom(model.p, rng, scale)
	fillRandom(model.q, rng, scale)

	// Index-ordered views of the observed cells. Gradient accumulation is
	// order-sensitive in floating point, so both passes walk cells in a
	// fixed order to keep runs reproducible.
	rows := make([][]cell, nUsers)
	cols := make([][]cell, nItems)
	model.observed = make([]int, nUsers)
	for u, id := range matrix.Users() {
		row, _ := matrix.Row(id)
		rows[u] = sortedCells(row)
		model.observed[u] = len(rows[u])
		for _, c := range rows[u] {
			cols[c.idx] = append(cols[c.idx], cell{idx: u, val: c.val})
		}
	}

	workers := cfg.Workers
	if workers < 1 {
		workers = 1
	}

	start := time.Now()
	prevLoss := math.Inf(1)

	for epoch := 1; epoch <= cfg.MaxEpochs; epoch++ {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("training cancelled at epoch %d: %w", epoch, err)
		}

		parallelRows(workers, nUsers, func(u int) {
			updateRow(model.p.RawRowView(u), model.q, rows[u], cfg.LearningRate, cfg.Regularization)
		})
		parallelRows(workers, nItems, func(it int) {
			updateRow(model.q.RawRowView(it), model.p, cols[it], cfg.LearningRate, cfg.Regularization)
		})

		loss := trainingLoss(model, rows, cfg.Regularization)
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
		"users":    nUsers,
		"items":    nItems,
		"observed": matrix.Observed(),
		"factors":  cfg.Factors,
		"epochs":   model.epochs,
		"loss":     model.loss,
		"duration": time.Since(start),
	}).Info("Matrix factorization training completed")

	return model, nil
}

type cell struct {
	idx int
	val float64
}

func sortedCells(observed map[int]float64) []cell {
	cells := make([]cell, 0, len(observed))
	for idx, val := range observed {
		cells = append(cells, cell{idx: idx, val: val})
	}
	sort.Slice(cells, func(i, j int) bool { return cells[i].idx < cells[j].idx })
	return cells
}

// updateRow applies one full-batch gradient step to a single latent row
// against the fixed other-side factors.
func updateRow(row []float64, other *mat.Dense, observed []cell, lr, reg float64) {
	if len(observed) == 0 {
		return
	}
	grad := make([]float64, len(row))
	for _, c := range observed {
		oj := other.RawRowView(c.idx)
		e := c.val - floats.Dot(row, oj)
		floats.AddScaled(grad, e, oj)
	}
	floats.AddScaled(grad, -reg*float64(len(observed)), row)
	floats.AddScaled(row, lr, grad)
}

func trainingLoss(model *LatentModel, rows [][]cell, reg float64) float64 {
	var loss float64
	for u := range rows {
		pu := model.p.RawRowView(u)
		for _, c := range rows[u] {
			e := c.val - floats.Dot(pu, model.q.RawRowView(c.idx))
			loss += e * e
		}
	}
	loss += reg * (matNormSq(model.p) + matNormSq(model.q))
	return loss
}

func matNormSq(m *mat.Dense) float64 {
	n := mat.Norm(m, 2)
	return n * n
}

func fillRandom(m *mat.Dense, rng *rand.Rand, scale float64) {
	rows, cols := m.Dims()
	for i := 0; i < rows; i++ {
		for j := 0; j < cols; j++ {
			m.Set(i, j, (rng.Float64()-0.5)*scale)
		}
	}
}

// parallelRows runs fn over [0,n) split into contiguous chunks, one per
// worker, and waits for all of them.
func parallelRows(workers, n int, fn func(i int)) {
	if n == 0 {
		return
	}
	if workers > n {
		workers = n
	}
	chunk := (n + workers - 1) / workers
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		lo := w * chunk
		hi := lo + chunk
		if hi > n {
			hi = n
		}
		if lo >= hi {
			break
		}
		wg.Add(1)
		go func(lo, hi int) {
			defer wg.Done()
			for i := lo; i < hi; i++ {
				fn(i)
			}
		}(lo, hi)
	}
	wg.Wait()
}

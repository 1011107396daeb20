package services

import (
	"sort"

	"github.com/google/uuid"

	"github.com/lernia/lernia/pkg/models"
)

// InteractionMatrix is the sparse user-resource affinity matrix rebuilt from
// the interaction log. Cells sum the affinity contributions of a user's
// events on a resource, capped so no single pair dominates training.
//
// Rows and columns are index-stable for a given log: both axes are sorted by
// id, so a rebuild from the same log yields the same layout.
type InteractionMatrix struct {
	users     []uuid.UUID
	items     []uuid.UUID
	userIndex map[uuid.UUID]int
	itemIndex map[uuid.UUID]int

	// rows[u] maps item index to affinity for user u's observed cells.
	rows []map[int]float64

	observed   int
	globalMean float64
}

// BuildInteractionMatrix folds the log into the sparse matrix. The log's
// upsert contract means at most one event per (user, resource, kind), so
// summing per cell never double-counts a kind.
func BuildInteractionMatrix(interactions []models.Interaction, maxAffinity float64) *InteractionMatrix {
	userSet := make(map[uuid.UUID]bool)
	itemSet := make(map[uuid.UUID]bool)
	for i := range interactions {
		userSet[interactions[i].UserID] = true
		itemSet[interactions[i].ResourceID] = true
	}

	m := &InteractionMatrix{
		users:     sortedIDs(userSet),
		items:     sortedIDs(itemSet),
		userIndex: make(map[uuid.UUID]int, len(userSet)),
		itemIndex: make(map[uuid.UUID]int, len(itemSet)),
	}
	for i, id := range m.users {
		m.userIndex[id] = i
	}
	for i, id := range m.items {
		m.itemIndex[id] = i
	}

	m.rows = make([]map[int]float64, len(m.users))
	for i := range m.rows {
		m.rows[i] = make(map[int]float64)
	}

	for i := range interactions {
		in := &interactions[i]
		u := m.userIndex[in.UserID]
		it := m.itemIndex[in.ResourceID]
		m.rows[u][it] += in.AffinityValue()
	}

	var sum float64
	for u := range m.rows {
		for it, v := range m.rows[u] {
			if maxAffinity > 0 && v > maxAffinity {
				v = maxAffinity
				m.rows[u][it] = v
			}
			sum += v
			m.observed++
		}
	}
	if m.observed > 0 {
		m.globalMean = sum / float64(m.observed)
	}

	return m
}

// Users returns the row axis in index order.
func (m *InteractionMatrix) Users() []uuid.UUID { return m.users }

// Items returns the column axis in index order.
func (m *InteractionMatrix) Items() []uuid.UUID { return m.items }

// Observed is the number of non-zero cells.
func (m *InteractionMatrix) Observed() int { return m.observed }

// GlobalMean is the mean affinity over observed cells, the prediction of
// last resort for pairs no factor model covers.
func (m *InteractionMatrix) GlobalMean() float64 { return m.globalMean }

// Affinity returns the cell value and whether the cell is observed.
func (m *InteractionMatrix) Affinity(userID, resourceID uuid.UUID) (float64, bool) {
	u, ok := m.userIndex[userID]
	if !ok {
		return 0, false
	}
	it, ok := m.itemIndex[resourceID]
	if !ok {
		return 0, false
	}
	v, ok := m.rows[u][it]
	return v, ok
}

// Row returns the observed cells for one user as an item-index map.
func (m *InteractionMatrix) Row(userID uuid.UUID) (map[int]float64, bool) {
	u, ok := m.userIndex[userID]
	if !ok {
		return nil, false
	}
	return m.rows[u], true
}

// RowCount returns the number of observed cells for one user, 0 for
// unseen users.
func (m *InteractionMatrix) RowCount(userID uuid.UUID) int {
	u, ok := m.userIndex[userID]
	if !ok {
		return 0
	}
	return len(m.rows[u])
}

func sortedIDs(set map[uuid.UUID]bool) []uuid.UUID {
	ids := make([]uuid.UUID, 0, len(set))
	for id := range set {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i].String() < ids[j].String() })
	return ids
}

package clustering

import (
	"cmp"
	"fmt"
	"log/slog"
	"math"
	"slices"

	"github.com/justestif/converge/internal/graph"
	"github.com/justestif/converge/internal/matrix"
)

const (
	fullTurn     = 2 * math.Pi
	colorEpsilon = 1e-9
)

// Engine lays out partitioned clusters.
type Engine struct {
	cfg    Config
	logger *slog.Logger
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// NewEngine creates an Engine. Zero fields of cfg take their defaults, except
// LegendAngle: 0 is a valid placement and is kept.
func NewEngine(cfg Config, opts ...Option) *Engine {
	e := &Engine{
		cfg:    cfg.withDefaults(),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Config returns the effective configuration.
func (e *Engine) Config() Config {
	return e.cfg
}

// Run partitions m with p and lays out the result.
func (e *Engine) Run(m *matrix.Matrix, p Partitioner) ([]Cluster, error) {
	labels, err := p.Partition(m.Values, e.cfg.NumClusters)
	if err != nil {
		return nil, fmt.Errorf("partitioning %d songs: %w", m.Len(), err)
	}
	return e.Layout(m, labels)
}

// Layout groups the songs of m by label and assigns every cluster an angle
// and a color. Clusters are returned in their angular walk order. Labels that
// received no songs are dropped.
func (e *Engine) Layout(m *matrix.Matrix, labels []int) ([]Cluster, error) {
	if len(labels) != m.Len() {
		return nil, fmt.Errorf("have %d labels for %d songs", len(labels), m.Len())
	}

	groups, err := e.assemble(labels)
	if err != nil {
		return nil, err
	}
	if len(groups) == 0 {
		return nil, nil
	}

	clusters := make([]Cluster, len(groups))
	members := make([][]int, len(groups))
	for i, g := range groups {
		clusters[i] = newCluster(m, g)
		members[i] = g.members
	}
	// Closest cluster first; stable so equal distances keep label order.
	idx := make([]int, len(clusters))
	for i := range idx {
		idx[i] = i
	}
	slices.SortStableFunc(idx, func(a, b int) int {
		return cmp.Compare(clusters[a].CenterDistance, clusters[b].CenterDistance)
	})
	sorted := make([]Cluster, len(clusters))
	sortedMembers := make([][]int, len(members))
	for i, j := range idx {
		sorted[i] = clusters[j]
		sortedMembers[i] = members[j]
	}
	clusters, members = sorted, sortedMembers

	if len(clusters) == 1 {
		clusters[0].Angle = 0
		clusters[0].Color = Color{}
		return clusters, nil
	}

	cosim := crossSimilarity(m, members)
	order := e.order(cosim)

	pushbacks := make([]float64, len(order))
	var total float64
	for i := range order {
		next := order[(i+1)%len(order)]
		pushbacks[i] = cosim[order[i]][next] + e.cfg.Spacing
		total += pushbacks[i]
	}

	out := make([]Cluster, len(order))
	for i, c := range order {
		out[i] = clusters[c]
	}

	assignAngles(out, pushbacks, total)
	e.assignColors(out, pushbacks)
	rotateToLegend(out, pushbacks, total, e.cfg.LegendAngle)

	e.logger.Debug("laid out clusters", "clusters", len(out), "order", order)
	return out, nil
}

// group holds the matrix indices that received one label.
type group struct {
	label   int
	members []int
}

// assemble groups matrix indices by label, keeping matrix order and
// truncating each group to MaxClusterSize.
func (e *Engine) assemble(labels []int) ([]group, error) {
	k := 0
	for i, l := range labels {
		if l < 0 {
			return nil, fmt.Errorf("song %d has negative label %d", i, l)
		}
		k = max(k, l+1)
	}

	byLabel := make([][]int, k)
	for i, l := range labels {
		byLabel[l] = append(byLabel[l], i)
	}

	groups := make([]group, 0, k)
	for l, g := range byLabel {
		if len(g) == 0 {
			e.logger.Debug("dropping empty cluster", "label", l)
			continue
		}
		if len(g) > e.cfg.MaxClusterSize {
			g = g[:e.cfg.MaxClusterSize]
		}
		groups = append(groups, group{label: l, members: g})
	}
	return groups, nil
}

func newCluster(m *matrix.Matrix, g group) Cluster {
	c := Cluster{
		Label:   g.label,
		Songs:   make([]graph.Song, len(g.members)),
		Ratings: make([]float64, len(g.members)),
	}
	var sum float64
	for i, idx := range g.members {
		c.Songs[i] = m.Songs[idx]
		c.Ratings[i] = m.Ratings[idx]
		sum += 1 - m.Ratings[idx]
	}
	c.CenterDistance = sum / float64(len(g.members))
	return c
}

// crossSimilarity averages the cells from the songs of a closer cluster to
// the songs of a farther one and mirrors the result, so cosim[a][b] is read
// in the a -> b direction for a < b. groups must be in center-distance order.
func crossSimilarity(m *matrix.Matrix, groups [][]int) [][]float64 {
	n := len(groups)
	cosim := make([][]float64, n)
	for i := range cosim {
		cosim[i] = make([]float64, n)
	}
	for a := 0; a < n; a++ {
		for b := a + 1; b < n; b++ {
			var sum float64
			for _, i := range groups[a] {
				for _, j := range groups[b] {
					sum += m.Values[i][j]
				}
			}
			v := sum / float64(len(groups[a])*len(groups[b]))
			cosim[a][b] = v
			cosim[b][a] = v
		}
	}
	return cosim
}

// assignAngles walks the order, opening a gap after each cluster proportional
// to its pushback. The first cluster sits at 0.
func assignAngles(out []Cluster, pushbacks []float64, total float64) {
	angle := 0.0
	for i := range out {
		out[i].Angle = angle
		angle += pushbacks[i] * fullTurn / total
	}
}

// assignColors continues the current family while adjacent clusters are close
// and starts a new family otherwise, then ranks hues within each family by
// cluster size.
func (e *Engine) assignColors(out []Cluster, pushbacks []float64) {
	// 1 - 0.9 is slightly below 0.1 in floating point.
	cutoff := 1 - e.cfg.SimilarityThreshold + colorEpsilon

	out[0].Color = Color{}
	for i := 1; i < len(out); i++ {
		prev := out[i-1].Color
		if pushbacks[i-1] <= cutoff {
			out[i].Color = Color{Family: prev.Family, Hue: prev.Hue + 1}
		} else {
			out[i].Color = Color{Family: prev.Family + 1}
		}
	}

	families := make(map[int][]int)
	for i, c := range out {
		families[c.Color.Family] = append(families[c.Color.Family], i)
	}
	for _, members := range families {
		// members is in walk order, so a stable sort breaks size ties by position.
		slices.SortStableFunc(members, func(a, b int) int {
			return cmp.Compare(out[a].Size(), out[b].Size())
		})
		for hue, i := range members {
			out[i].Color.Hue = hue
		}
	}
}

// rotateToLegend turns every angle so the middle of the widest gap, the
// wrap-around gap included, sits at legend. Among equal gaps the one starting
// last in the walk wins.
func rotateToLegend(out []Cluster, pushbacks []float64, total, legend float64) {
	widest := 0
	for i := 1; i < len(pushbacks); i++ {
		if pushbacks[i] >= pushbacks[widest] {
			widest = i
		}
	}
	gap := pushbacks[widest] * fullTurn / total
	mid := out[widest].Angle + gap/2

	rotation := legend - mid
	for i := range out {
		out[i].Angle = normalizeAngle(out[i].Angle + rotation)
	}
}

// normalizeAngle maps a to [0, 2π).
func normalizeAngle(a float64) float64 {
	a = math.Mod(a, fullTurn)
	if a < 0 {
		a += fullTurn
	}
	if a >= fullTurn {
		a = 0
	}
	return a
}

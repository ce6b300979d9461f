package acf

import (
	"math"
	"sort"

	"github.com/pkg/errors"
)

// Suppression modes.
const (
	NmsMax   = "max"
	NmsMaxG  = "maxg"
	NmsMs    = "ms"
	NmsCover = "cover"
	NmsNone  = "none"
)

// Overlap denominators.
const (
	OvrUnion = "union"
	OvrMin   = "min"
)

// Detection is one scored candidate window in image coordinates.
// Immutable value type: created by the cascade, filtered by suppression.
type Detection struct {
	X, Y, W, H float64
	Score      float64
	// Type tags the detection class; suppression can run per type.
	Type int

	// order is the insertion index, the fixed secondary sort key that keeps
	// suppression deterministic when scores tie.
	order int
}

// Overlap returns the overlap ratio of two detections, with the intersection
// divided by the union or by the smaller area depending on ovrDnm.
func (d Detection) Overlap(e Detection, ovrDnm string) float64 {
	x0 := math.Max(d.X, e.X)
	y0 := math.Max(d.Y, e.Y)
	x1 := math.Min(d.X+d.W, e.X+e.W)
	y1 := math.Min(d.Y+d.H, e.Y+e.H)
	if x1 <= x0 || y1 <= y0 {
		return 0
	}
	inter := (x1 - x0) * (y1 - y0)
	a0 := d.W * d.H
	a1 := e.W * e.H
	var dnm float64
	if ovrDnm == OvrMin {
		dnm = math.Min(a0, a1)
	} else {
		dnm = a0 + a1 - inter
	}
	if dnm <= 0 {
		return 0
	}
	return inter / dnm
}

// Nms filters overlapping detections according to opts and returns the
// surviving set in descending score order. The input slice is not modified.
// A candidate is suppressed only when its overlap with a better one STRICTLY
// exceeds the configured threshold; an overlap exactly at the threshold keeps
// both. Equal scores are ordered by insertion, so results are reproducible.
func Nms(dets []Detection, opts NmsOpts) ([]Detection, error) {
	mode := opts.Type.GetOr(NmsMax)
	if mode == NmsNone {
		out := make([]Detection, len(dets))
		copy(out, dets)
		sortByScore(out)
		return out, nil
	}

	// drop below-threshold candidates up front
	thr := opts.Thr.GetOr(math.Inf(-1))
	in := make([]Detection, 0, len(dets))
	for i, d := range dets {
		if d.Score >= thr {
			d.order = i
			in = append(in, d)
		}
	}
	sortByScore(in)

	if opts.Separate.GetOr(false) {
		return nmsSeparate(in, opts)
	}

	if maxn := opts.MaxN.GetOr(0); maxn > 1 && len(in) > maxn {
		return nmsSplit(in, opts, maxn)
	}

	switch mode {
	case NmsMax, NmsMaxG:
		return nmsMax(in, opts, mode == NmsMaxG), nil
	case NmsMs:
		return nmsMeanShift(in, opts), nil
	case NmsCover:
		return nmsCover(in, opts), nil
	default:
		return nil, errors.Wrapf(ErrConfiguration, "nms: unknown type %q", mode)
	}
}

func sortByScore(dets []Detection) {
	sort.SliceStable(dets, func(i, j int) bool {
		if dets[i].Score != dets[j].Score {
			return dets[i].Score > dets[j].Score
		}
		return dets[i].order < dets[j].order
	})
}

// nmsMax is the greedy pass. In "max" mode every higher scoring candidate
// suppresses, even one that was itself suppressed; in "maxg" mode only kept
// candidates suppress.
func nmsMax(in []Detection, opts NmsOpts, greedy bool) []Detection {
	ovr := opts.Overlap.GetOr(defOverlap)
	dnm := opts.OvrDnm.GetOr(OvrUnion)
	kept := make([]bool, len(in))
	for i := range kept {
		kept[i] = true
	}
	for i := range in {
		if greedy && !kept[i] {
			continue
		}
		for j := i + 1; j < len(in); j++ {
			if !kept[j] {
				continue
			}
			if in[i].Overlap(in[j], dnm) > ovr {
				kept[j] = false
			}
		}
	}
	out := make([]Detection, 0, len(in))
	for i, d := range in {
		if kept[i] {
			out = append(out, d)
		}
	}
	return out
}

// nmsMeanShift clusters candidates with per axis radii instead of a single
// overlap ratio. Seeds are taken in score order; every unclaimed candidate
// within the radii of the seed joins its cluster, and the cluster collapses
// to the score weighted mean box with the summed score. Only clusters whose
// total exceeds thr survive.
func nmsMeanShift(in []Detection, opts NmsOpts) []Detection {
	radii := opts.Radii.GetOr([4]float64{0.15, 0.15, 1, 1})
	thr := opts.Thr.GetOr(0)
	claimed := make([]bool, len(in))
	var out []Detection

	for i := range in {
		if claimed[i] {
			continue
		}
		seed := in[i]
		var sx, sy, sw, sh, total float64
		order := seed.order
		for j := i; j < len(in); j++ {
			if claimed[j] {
				continue
			}
			d := in[j]
			cx0, cy0 := seed.X+seed.W/2, seed.Y+seed.H/2
			cx1, cy1 := d.X+d.W/2, d.Y+d.H/2
			if math.Abs(cx1-cx0) > radii[0]*seed.W ||
				math.Abs(cy1-cy0) > radii[1]*seed.H ||
				math.Abs(math.Log2(d.W/seed.W)) > radii[2] ||
				math.Abs(math.Log2(d.H/seed.H)) > radii[3] {
				continue
			}
			claimed[j] = true
			w := d.Score
			if w <= 0 {
				w = 1e-6
			}
			sx += d.X * w
			sy += d.Y * w
			sw += d.W * w
			sh += d.H * w
			total += w
		}
		if total <= thr {
			continue
		}
		out = append(out, Detection{
			X: sx / total, Y: sy / total, W: sw / total, H: sh / total,
			Score: total, Type: seed.Type, order: order,
		})
	}
	sortByScore(out)
	return out
}

// nmsCover keeps one representative per overlap connected component: the
// highest scoring member covers the rest.
func nmsCover(in []Detection, opts NmsOpts) []Detection {
	ovr := opts.Overlap.GetOr(defOverlap)
	dnm := opts.OvrDnm.GetOr(OvrUnion)
	parent := make([]int, len(in))
	for i := range parent {
		parent[i] = i
	}
	var find func(int) int
	find = func(i int) int {
		for parent[i] != i {
			parent[i] = parent[parent[i]]
			i = parent[i]
		}
		return i
	}
	for i := range in {
		for j := i + 1; j < len(in); j++ {
			if in[i].Overlap(in[j], dnm) > ovr {
				ri, rj := find(i), find(j)
				if ri != rj {
					// root at the lower index, which is the higher score
					if ri < rj {
						parent[rj] = ri
					} else {
						parent[ri] = rj
					}
				}
			}
		}
	}
	var out []Detection
	for i, d := range in {
		if find(i) == i {
			out = append(out, d)
		}
	}
	return out
}

// nmsSeparate suppresses each detection type independently and pools the
// survivors.
func nmsSeparate(in []Detection, opts NmsOpts) ([]Detection, error) {
	byType := map[int][]Detection{}
	var order []int
	for _, d := range in {
		if _, ok := byType[d.Type]; !ok {
			order = append(order, d.Type)
		}
		byType[d.Type] = append(byType[d.Type], d)
	}
	sub := opts
	sub.Separate = F(false)
	var out []Detection
	for _, t := range order {
		res, err := Nms(byType[t], sub)
		if err != nil {
			return nil, err
		}
		out = append(out, res...)
	}
	sortByScore(out)
	return out, nil
}

// nmsSplit bounds the pairwise cost for oversized inputs: the score sorted
// candidates are processed in chunks of maxn, the per chunk survivors pooled
// and suppressed once more.
func nmsSplit(in []Detection, opts NmsOpts, maxn int) ([]Detection, error) {
	sub := opts
	sub.MaxN = F(0)
	var pooled []Detection
	for lo := 0; lo < len(in); lo += maxn {
		hi := lo + maxn
		if hi > len(in) {
			hi = len(in)
		}
		res, err := Nms(in[lo:hi], sub)
		if err != nil {
			return nil, err
		}
		pooled = append(pooled, res...)
	}
	return Nms(pooled, sub)
}

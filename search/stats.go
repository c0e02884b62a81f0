// This file is part of kvoverlay, an unstructured peer-to-peer
// key/value lookup overlay written in Go.
//
// kvoverlay is free software: you can redistribute it and/or modify it
// under the terms of the GNU Affero General Public License as published
// by the Free Software Foundation, either version 3 of the License,
// or (at your option) any later version.
//
// kvoverlay is distributed in the hope that it will be useful, but
// WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the GNU
// Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program.  If not, see <http://www.gnu.org/licenses/>.
//
// SPDX-License-Identifier: AGPL3.0-or-later

package search

import (
	"math"
	"sync"

	"kvoverlay/proto"
)

// modeStats accumulates the per-mode numbers §4.5 wants reported: how many
// searches were initiated, how many produced a hit, and the distribution of
// hop counts across those hits.
type modeStats struct {
	initiated int
	hits      int
	hopCounts []int
}

// Stats is the statistics view of §3/§4.5: one modeStats bucket per search
// mode, guarded by a single mutex since updates arrive from arbitrary
// connection-handler goroutines.
type Stats struct {
	mtx sync.Mutex
	byMode map[proto.Mode]*modeStats
}

// NewStats returns an empty Stats with a bucket for every known mode.
func NewStats() *Stats {
	s := &Stats{byMode: make(map[proto.Mode]*modeStats)}
	for _, m := range []proto.Mode{proto.ModeFlood, proto.ModeRandomWalk, proto.ModeBacktrack} {
		s.byMode[m] = &modeStats{}
	}
	return s
}

// RecordInitiated counts one more search started in the given mode.
func (s *Stats) RecordInitiated(mode proto.Mode) {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	s.bucket(mode).initiated++
}

// RecordHit counts a VAL received (or an immediate local hit) for the given
// mode, at the given hop count.
func (s *Stats) RecordHit(mode proto.Mode, hopCount int) {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	b := s.bucket(mode)
	b.hits++
	b.hopCounts = append(b.hopCounts, hopCount)
}

// bucket returns the modeStats for mode, creating it if mode is unknown
// (defensive only: Mode values reaching here have already passed
// Mode.Valid()).
func (s *Stats) bucket(mode proto.Mode) *modeStats {
	b, ok := s.byMode[mode]
	if !ok {
		b = &modeStats{}
		s.byMode[mode] = b
	}
	return b
}

// ModeSummary is a point-in-time snapshot of one mode's counters, suitable
// for CLI display or JSON marshaling over the control API.
type ModeSummary struct {
	Mode      proto.Mode `json:"mode"`
	Initiated int        `json:"initiated"`
	Hits      int        `json:"hits"`
	MeanHops  float64    `json:"mean_hops"`
	StddevHops float64   `json:"stddev_hops"`
}

// Snapshot returns a summary for every known mode, in a stable order.
func (s *Stats) Snapshot() []ModeSummary {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	out := make([]ModeSummary, 0, len(s.byMode))
	for _, mode := range []proto.Mode{proto.ModeFlood, proto.ModeRandomWalk, proto.ModeBacktrack} {
		b := s.byMode[mode]
		mean, stddev := meanStddev(b.hopCounts)
		out = append(out, ModeSummary{
			Mode:       mode,
			Initiated:  b.initiated,
			Hits:       b.hits,
			MeanHops:   mean,
			StddevHops: stddev,
		})
	}
	return out
}

// meanStddev computes the mean and sample standard deviation (§4.5), which
// divides the sum of squared deviations by n-1. A single observation has
// no sample variance, so stddev is 0 for n<2.
func meanStddev(xs []int) (mean, stddev float64) {
	if len(xs) == 0 {
		return 0, 0
	}
	var sum float64
	for _, x := range xs {
		sum += float64(x)
	}
	mean = sum / float64(len(xs))
	if len(xs) < 2 {
		return mean, 0
	}
	var sqDiff float64
	for _, x := range xs {
		d := float64(x) - mean
		sqDiff += d * d
	}
	stddev = math.Sqrt(sqDiff / float64(len(xs)-1))
	return mean, stddev
}

/*
 * Copyright 2023 CloudWeGo Authors
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package ssa

import (
    `github.com/oleiade/lane`
)

// Liveness is a backwards-may dataflow analysis computing per-block live-in
// sets and per-source kill flags. Phis are special on both ends: a phi
// source is live-out of the corresponding predecessor only, and a phi
// destination stays in the live-in set of its own block since the backward
// scan stops at the leading phi run.
//
// Kill flags mark the last use of a value within a block. Phi sources never
// carry kill flags, their reads happen on the edge.
type Liveness struct{}

func (Liveness) String() string {
    return "Liveness Analysis"
}

func (self Liveness) Apply(cfg *CFG) {
    pos := make(map[int]int, len(cfg.Blocks))
    inq := make([]bool, len(cfg.Blocks))

    /* reset previous results */
    for i, bb := range cfg.Blocks {
        pos[bb.Id] = i
        bb.LiveIn = newValueSet(cfg.Alloc)
        for _, p := range bb.Ins {
            for s := range p.Src {
                p.Src[s].Kill = false
            }
        }
    }

    /* seed the worklist in reverse dominators order, the fixpoint converges
     * faster when successors are processed first */
    q := lane.NewQueue()
    for _, bb := range cfg.DominatorsOrder().Reversed() {
        q.Enqueue(bb)
        inq[pos[bb.Id]] = true
    }

    /* iterate until fixpoint */
    for !q.Empty() {
        bb := q.Dequeue().(*BasicBlock)
        inq[pos[bb.Id]] = false

        /* recompute the live-in from the current live-out */
        live := self.liveOut(bb)
        self.scanBlock(bb, live, false)

        /* enqueue predecessors whose live-out grew */
        if bb.LiveIn.union(live) {
            for _, p := range bb.Pred {
                if i := pos[p.Id]; !inq[i] {
                    inq[i] = true
                    q.Enqueue(p)
                }
            }
        }
    }

    /* converged, one more scan per block to set the kill flags */
    for _, bb := range cfg.Blocks {
        self.scanBlock(bb, self.liveOut(bb), true)
    }
}

// liveOut assembles the live-out set of bb from its successors: each
// successor's live-in minus its phi defs, plus the phi sources flowing in
// over this particular edge.
func (self Liveness) liveOut(bb *BasicBlock) *ValueSet {
    live := newValueSet(64)
    for _, succ := range bb.Succ {
        in := succ.LiveIn.clone()
        succ.forEachPhi(func(p *Instr) {
            for _, d := range p.Dest {
                if d.IsSSA() {
                    in.remove(d.Value)
                }
            }
        })
        live.union(in)

        /* phi sources are read on the edge, not inside the successor */
        i := succ.predecessorIndex(bb)
        succ.forEachPhi(func(p *Instr) {
            if p.Src[i].IsSSA() {
                live.add(p.Src[i].Value)
            }
        })
    }
    return live
}

// scanBlock walks bb backwards, transforming live from the live-out set into
// the live-in set. The scan stops at the leading phi run, so phi defs used
// later in the block stay live into the block. When kills is set, the first
// backward occurrence of each value is flagged as its last use.
func (self Liveness) scanBlock(bb *BasicBlock, live *ValueSet, kills bool) {
    for i := len(bb.Ins) - 1; i >= 0; i-- {
        p := bb.Ins[i]
        if p.Op == OpPhi {
            break
        }
        for d := range p.Dest {
            if p.Dest[d].IsSSA() {
                live.remove(p.Dest[d].Value)
            }
        }
        for s := range p.Src {
            if p.Src[s].IsSSA() {
                if kills {
                    p.Src[s].Kill = !live.contains(p.Src[s].Value)
                }
                live.add(p.Src[s].Value)
            }
        }
    }
}

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

// SplitCritical splits critical edges, those from a block with multiple
// successors into a block with multiple predecessors, by inserting an empty
// block on the edge. Phi resolution places copies at the end of
// predecessors, which is only sound when no such edges exist. The frontend
// already avoids them, this pass keeps the invariant by construction.
type SplitCritical struct{}

func (SplitCritical) String() string {
    return "Critical Edge Splitting"
}

func (self SplitCritical) Apply(cfg *CFG) {
    id := 0
    for _, bb := range cfg.Blocks {
        if bb.Id >= id {
            id = bb.Id + 1
        }
    }

    for _, bb := range cfg.Blocks {
        if len(bb.Succ) < 2 {
            continue
        }
        for i, succ := range bb.Succ {
            if len(succ.Pred) < 2 {
                continue
            }

            /* empty block on the edge, falling through to succ */
            mid := newBasicBlock(id)
            mid.Ins = []*Instr { newInstr(OpJump, nil, nil) }
            mid.Pred = []*BasicBlock { bb }
            mid.Succ = []*BasicBlock { succ }
            id++

            /* rewrite the edge on both ends; the phi source slot keeps its
             * index since mid takes over bb's position in succ.Pred */
            bb.Succ[i] = mid
            succ.Pred[succ.predecessorIndex(bb)] = mid

            /* keep the allocation order: mid runs before succ, except on a
             * back edge, where it must still come after its predecessor */
            cfg.Blocks = insertSplitBlock(cfg.Blocks, mid, bb, succ)
        }
    }
}

func insertSplitBlock(blocks []*BasicBlock, mid *BasicBlock, from *BasicBlock, succ *BasicBlock) []*BasicBlock {
    fi, si := -1, -1
    for i, b := range blocks {
        if b == from {
            fi = i
        }
        if b == succ {
            si = i
        }
    }
    if fi < 0 || si < 0 {
        panic("ssa: split edge endpoints not in the block list")
    }

    at := si
    if fi >= si {
        at = fi + 1
    }

    blocks = append(blocks, nil)
    copy(blocks[at + 1:], blocks[at:])
    blocks[at] = mid
    return blocks
}

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
    `fmt`
    `strings`
)

// CFG is a whole shader in SSA form. Blocks holds every block in the order
// the frontend emitted them, which places forward predecessors before their
// successors; allocation walks this order directly. Alloc is the SSA value
// id watermark, ids below it are in use.
//
// MaxReg, MaxMemSlot, SpillBase and ScratchSize are allocation outputs
// consumed by later encoding stages.
type CFG struct {
    Root        *BasicBlock
    Blocks      []*BasicBlock
    Alloc       uint32
    AnyCF       bool
    DominatedBy map[int]*BasicBlock
    DominatorOf map[int][]*BasicBlock
    MaxReg      uint16
    MaxMemSlot  uint16
    SpillBase   uint32
    ScratchSize uint32
}

// NewValue mints a fresh SSA value id.
func (self *CFG) NewValue() uint32 {
    v := self.Alloc
    self.Alloc++
    return v
}

// Rebuild recomputes the dominator tree and derived flags after any edit
// that changes the block structure.
func (self *CFG) Rebuild() {
    updateDominatorTree(self)
    self.AnyCF = len(self.Blocks) > 1
}

func (self *CFG) String() string {
    bb := make([]string, 0, len(self.Blocks))
    for _, b := range self.Blocks { bb = append(bb, b.String()) }
    return strings.Join(bb, "\n")
}

// checkBlockOrder verifies that Blocks is allocation-compatible: every
// block's immediate dominator appears earlier, and only back edges into loop
// headers may come from later blocks. The allocator's live-in seeding relies
// on this.
func (self *CFG) checkBlockOrder() {
    pos := make(map[int]int, len(self.Blocks))
    for i, b := range self.Blocks {
        pos[b.Id] = i
    }
    for i, b := range self.Blocks {
        if idom := self.DominatedBy[b.Id]; idom != nil && idom != b && pos[idom.Id] >= i {
            panic(fmt.Sprintf("ssa: bb_%d precedes its immediate dominator bb_%d", b.Id, idom.Id))
        }
        for _, p := range b.Pred {
            if pos[p.Id] >= i && p != b && !b.LoopHeader {
                panic(fmt.Sprintf("ssa: non-loop-header bb_%d has a later predecessor bb_%d", b.Id, p.Id))
            }
        }
    }
}

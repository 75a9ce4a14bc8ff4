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

// BasicBlock is a straight-line run of instructions. Phis, if any, sit at the
// head of Ins. LiveIn and the kill flags are owned by the Liveness pass,
// ssaToRegOut by the allocator: it is published when the block finishes
// allocation and read by successor phi fixups, then released by the driver.
type BasicBlock struct {
    Id          int
    Ins         []*Instr
    Pred        []*BasicBlock
    Succ        []*BasicBlock
    LiveIn      *ValueSet
    LoopHeader  bool
    ssaToRegOut []uint16
}

func newBasicBlock(id int) *BasicBlock {
    return &BasicBlock { Id: id }
}

// predecessorIndex is the position of pred in self.Pred, which is also the
// phi source slot associated with the edge.
func (self *BasicBlock) predecessorIndex(pred *BasicBlock) int {
    for i, p := range self.Pred {
        if p == pred {
            return i
        }
    }
    panic(fmt.Sprintf("ssa: bb_%d is not a predecessor of bb_%d", pred.Id, self.Id))
}

// logicalEnd is the insertion point for edge copies: just before the trailing
// control-flow instruction, or len(Ins) if the block falls through.
func (self *BasicBlock) logicalEnd() int {
    if n := len(self.Ins); n > 0 && self.Ins[n - 1].Op.IsControl() {
        return n - 1
    } else {
        return len(self.Ins)
    }
}

// insertAt splices p into Ins at position i.
func (self *BasicBlock) insertAt(i int, p *Instr) {
    self.Ins = append(self.Ins, nil)
    copy(self.Ins[i + 1:], self.Ins[i:])
    self.Ins[i] = p
}

// forEachPhi visits the leading phi run.
func (self *BasicBlock) forEachPhi(fn func(p *Instr)) {
    for _, p := range self.Ins {
        if p.Op != OpPhi {
            break
        }
        fn(p)
    }
}

func (self *BasicBlock) String() string {
    w := new(strings.Builder)
    fmt.Fprintf(w, "bb_%d:", self.Id)

    /* predecessor list */
    if len(self.Pred) != 0 {
        pp := make([]string, 0, len(self.Pred))
        for _, p := range self.Pred { pp = append(pp, fmt.Sprintf("bb_%d", p.Id)) }
        fmt.Fprintf(w, " ; preds = %s", strings.Join(pp, ", "))
    }

    /* loop header marker and body */
    if self.LoopHeader {
        w.WriteString(" ; loop")
    }
    for _, p := range self.Ins {
        fmt.Fprintf(w, "\n    %s", p)
    }
    return w.String()
}

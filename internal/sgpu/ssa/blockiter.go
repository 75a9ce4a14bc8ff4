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

// BasicBlockIter traverses the dominator tree in depth-first order, children
// visited by ascending block id.
type BasicBlockIter struct {
    g *CFG
    b *BasicBlock
    s *lane.Stack
    v map[int]struct{}
}

// DominatorsOrder iterates every block such that a block is always visited
// after its immediate dominator.
func (self *CFG) DominatorsOrder() *BasicBlockIter {
    return &BasicBlockIter {
        g: self,
        s: stacks(self.Root),
        v: map[int]struct{} { self.Root.Id: {} },
    }
}

func (self *BasicBlockIter) Block() *BasicBlock {
    return self.b
}

func (self *BasicBlockIter) Next() bool {
    if self.s.Empty() {
        return false
    }
    this := self.s.Pop().(*BasicBlock)

    /* add the dominated blocks in reverse order, so the smallest id is on
     * top of the stack */
    dd := self.g.DominatorOf[this.Id]
    for i := len(dd) - 1; i >= 0; i-- {
        if _, ok := self.v[dd[i].Id]; !ok {
            self.v[dd[i].Id] = struct{}{}
            self.s.Push(dd[i])
        }
    }

    self.b = this
    return true
}

// ForEach visits every block in dominators order.
func (self *BasicBlockIter) ForEach(action func(bb *BasicBlock)) {
    for self.Next() {
        action(self.b)
    }
}

// Reversed collects the remaining blocks and yields them in reverse
// dominators order, which approximates post-order for backward dataflow.
func (self *BasicBlockIter) Reversed() []*BasicBlock {
    var r []*BasicBlock
    for self.Next() {
        r = append(r, self.b)
    }
    for i, j := 0, len(r) - 1; i < j; i, j = i + 1, j - 1 {
        r[i], r[j] = r[j], r[i]
    }
    return r
}

func stacks(bb *BasicBlock) *lane.Stack {
    s := lane.NewStack()
    s.Push(bb)
    return s
}

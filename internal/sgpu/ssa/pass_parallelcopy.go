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

    `github.com/oleiade/lane`
)

// CopyResolve lowers the allocation pseudo-ops into parallel copies once
// every operand is a concrete register: collects and splits become parallel
// copies in place, phis become one parallel copy at the logical end of each
// predecessor, and the phi and preload markers are deleted.
type CopyResolve struct{}

func (CopyResolve) String() string {
    return "Parallel Copy Resolution"
}

func (self CopyResolve) Apply(cfg *CFG) {
    for _, bb := range cfg.Blocks {
        for i, p := range bb.Ins {
            switch p.Op {
                case OpCollect : bb.Ins[i] = self.lowerCollect(p)
                case OpSplit   : bb.Ins[i] = self.lowerSplit(p)
            }
        }
    }

    /* phi copies are inserted per predecessor */
    for _, bb := range cfg.Blocks {
        self.insertPhiCopies(bb)
    }

    /* the pseudo-ops carry no semantics anymore */
    for _, bb := range cfg.Blocks {
        ins := bb.Ins[:0]
        for _, p := range bb.Ins {
            if p.Op != OpPhi && p.Op != OpPreload {
                ins = append(ins, p)
            }
        }
        bb.Ins = ins
    }
}

func (self CopyResolve) lowerCollect(p *Instr) *Instr {
    if p.Dest[0].Type != IndexRegister || p.Dest[0].Memory {
        panic(fmt.Sprintf("ssa: unallocated collect %q", p))
    }

    base := p.Dest[0].Value
    width := uint32(p.Src[0].Size.Units())
    copies := make([]Copy, 0, len(p.Src))

    for i, src := range p.Src {
        if src.IsNull() || src.Type == IndexUndef {
            continue
        }
        if src.Size != p.Src[0].Size {
            panic(fmt.Sprintf("ssa: mixed source sizes in collect %q", p))
        }
        copies = append(copies, Copy {
            Dest : uint16(base + uint32(i) * width),
            Src  : src,
        })
    }
    return newParallelCopy(copies)
}

func (self CopyResolve) lowerSplit(p *Instr) *Instr {
    if t := p.Src[0].Type; t != IndexRegister && t != IndexUniform {
        panic(fmt.Sprintf("ssa: unallocated split %q", p))
    }

    width := uint32(splitWidth(p).Units())
    copies := make([]Copy, 0, len(p.Dest))

    for i, dst := range p.Dest {
        if dst.Type != IndexRegister {
            continue
        }
        if dst.Memory {
            panic(fmt.Sprintf("ssa: split into memory %q", p))
        }

        src := p.Src[0]
        src.Size = dst.Size
        src.Chans = 1
        src.Value += uint32(i) * width
        copies = append(copies, Copy { Dest: uint16(dst.Value), Src: src })
    }
    return newParallelCopy(copies)
}

// insertPhiCopies lowers the phis of bb's successors onto the edges from bb.
// A block whose successor has phis necessarily reaches a multi-predecessor
// block; without critical edges that must be its only successor, so the
// copies can sit at the logical end of bb.
func (self CopyResolve) insertPhiCopies(bb *BasicBlock) {
    nrPhi := 0
    anySucc := false

    for _, succ := range bb.Succ {
        if nrPhi != 0 {
            panic("ssa: control flow graph has a critical edge")
        }

        succ.forEachPhi(func(*Instr) {
            if anySucc {
                panic("ssa: control flow graph has a critical edge")
            }
            nrPhi++
        })
        anySucc = true

        /* nothing to do without phi nodes */
        if nrPhi == 0 {
            continue
        }

        pi := succ.predecessorIndex(bb)
        copies := make([]Copy, 0, nrPhi)

        succ.forEachPhi(func(phi *Instr) {
            dst := phi.Dest[0]
            src := phi.Src[pi]

            /* immediates adopt the destination width */
            if src.Type == IndexImmediate {
                src.Size = dst.Size
            }
            if dst.Type != IndexRegister {
                panic(fmt.Sprintf("ssa: unallocated phi %q", phi))
            }
            if dst.Size != src.Size {
                panic(fmt.Sprintf("ssa: size mismatch lowering phi %q", phi))
            }

            copies = append(copies, Copy {
                Dest    : uint16(dst.Value),
                DestMem : dst.Memory,
                Src     : src,
            })
        })

        bb.insertAt(bb.logicalEnd(), newParallelCopy(copies))
    }
}

// _CopyRange is the unit span a copy reads or writes, classed so GPR and
// memory spans never alias.
type _CopyRange struct {
    mem   bool
    base  uint32
    width uint32
}

func rangeOfDest(c Copy) _CopyRange {
    return _CopyRange { mem: c.DestMem, base: uint32(c.Dest), width: uint32(c.Src.Width()) }
}

func rangeOfSrc(c Copy) (_CopyRange, bool) {
    if c.Src.Type != IndexRegister {
        return _CopyRange{}, false
    }
    return _CopyRange { mem: c.Src.Memory, base: c.Src.Value, width: uint32(c.Src.Width()) }, true
}

func (self _CopyRange) overlaps(other _CopyRange) bool {
    return self.mem == other.mem && self.base < other.base + other.width && other.base < self.base + self.width
}

// Sequence lowers a parallel copy into an equivalent ordered list of moves.
// A copy only runs once no pending copy still reads the units it writes;
// when only cycles remain, one copy's source is staged through the scratch
// window first. scratch must be a free GPR run at least as wide as the
// widest copy in the batch.
func Sequence(copies []Copy, scratch uint16) []*Instr {
    n := len(copies)
    cc := make([]Copy, n)
    seq := make([]*Instr, 0, n + 1)
    copy(cc, copies)

    /* blockers(i) counts pending copies still reading the units that copy i
     * writes; ready copies sit on the stack */
    done := make([]bool, n)
    blockers := make([]int, n)
    ready := lane.NewStack()

    for i := 0; i < n; i++ {
        for j := 0; j < n; j++ {
            if i != j {
                if r, ok := rangeOfSrc(cc[j]); ok && rangeOfDest(cc[i]).overlaps(r) {
                    blockers[i]++
                }
            }
        }
        if blockers[i] == 0 {
            ready.Push(i)
        }
    }

    /* emitting copy j releases its source units, unblocking writers */
    release := func(j int) {
        r, ok := rangeOfSrc(cc[j])
        if !ok {
            return
        }
        for i := 0; i < n; i++ {
            if i != j && !done[i] && rangeOfDest(cc[i]).overlaps(r) {
                blockers[i]--
                if blockers[i] == 0 {
                    ready.Push(i)
                }
            }
        }
    }

    for left := n; left > 0; {
        /* drain the ready copies */
        for !ready.Empty() {
            i := ready.Pop().(int)
            if done[i] {
                continue
            }

            dst := registerLike(cc[i].Dest, cc[i].Src)
            dst.Memory = cc[i].DestMem
            dst.Kill = false

            seq = append(seq, newMov(dst, cc[i].Src))
            done[i] = true
            left--
            release(i)
        }
        if left == 0 {
            break
        }

        /* only cycles remain, break one through the scratch window */
        c := -1
        for i := 0; i < n; i++ {
            if !done[i] {
                c = i
                break
            }
        }
        if r, ok := rangeOfSrc(cc[c]); !ok || r.mem {
            panic("ssa: copy cycle through a non-register source")
        }

        /* staging releases the source units, which unblocks the next copy
         * of the cycle, and so on around until c itself runs from scratch */
        tmp := RegisterVec(scratch, cc[c].Src.Size, cc[c].Src.Chans)
        seq = append(seq, newMov(tmp, cc[c].Src))
        release(c)
        cc[c].Src = tmp
    }
    return seq
}

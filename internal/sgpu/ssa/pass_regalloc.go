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
    `sort`

    `github.com/davecgh/go-spew/spew`
)

// Eviction cost weights. An occupied unit in a candidate window costs one
// move to shuffle away, a unit holding a killed source of the current
// instruction costs extra since preserving its value may take a swap. The
// values are empirical.
const (
    _EvictCostOccupied = 1
    _EvictCostKilled   = 2
)

// RegAlloc assigns a concrete register (or stack slot) to every SSA value,
// walking the blocks in dominance-compatible order and running a greedy
// local allocation within each. Demand is the exact pressure previously
// computed, MaxPossible the hard file bound from stage constraints.
//
// Since allocation is SSA-based and demand is exact, a destination always
// fits below the bound; when no contiguous aligned run is free, live ranges
// are split by shuffling values with parallel copies.
type RegAlloc struct {
    Demand      uint32
    MaxPossible uint32
    Spilling    bool
    Helper      bool
    TightDemand bool
}

func (RegAlloc) String() string {
    return "Register Allocation"
}

// _RaState is the whole-program allocation state shared across blocks.
type _RaState struct {
    cfg             *CFG
    ncomps          []uint8
    sizes           []Size
    classes         []RegClass
    visited         *ValueSet
    srcToCollectPhi []*Instr
    bound           [_NumClasses]uint32
    maxReg          [_NumClasses]uint32
}

// _RaCtx is the per-block allocation context. used and regToSSA describe the
// register file at the current instruction, ssaToReg the location of every
// visited value as seen by this block.
type _RaCtx struct {
    *_RaState
    block    *BasicBlock
    instr    *Instr
    ssaToReg []uint16
    used     [_NumClasses]*_RegBitmap
    regToSSA [NumRegs]uint32
    pending  []*Instr
}

func (self RegAlloc) Apply(cfg *CFG) {
    st := &_RaState {
        cfg             : cfg,
        ncomps          : make([]uint8, cfg.Alloc),
        sizes           : make([]Size, cfg.Alloc),
        classes         : make([]RegClass, cfg.Alloc),
        visited         : newValueSet(cfg.Alloc),
        srcToCollectPhi : make([]*Instr, cfg.Alloc),
    }

    /* gather per-value widths, sizes and classes, and index the collect or
     * phi consuming each value for the coalescing affinities */
    maxNcomps := uint32(1)
    for _, bb := range cfg.Blocks {
        for _, p := range bb.Ins {
            if p.Op == OpCollect || p.Op == OpPhi {
                for s := range p.Src {
                    if p.Src[s].IsSSA() {
                        st.srcToCollectPhi[p.Src[s].Value] = p
                    }
                }
            }
            for d := range p.Dest {
                if !p.Dest[d].IsSSA() {
                    continue
                }
                v := p.Dest[d].Value
                if st.ncomps[v] != 0 {
                    panic(fmt.Sprintf("ssa: broken SSA, v%d defined twice", v))
                }

                /* round up vectors for easier live range splitting */
                w := nextPow2(uint32(p.Dest[d].Width()))
                if w > MaxVecUnits {
                    panic(fmt.Sprintf("ssa: v%d is %d units wide, the maximum allocation is %d", v, w, MaxVecUnits))
                }

                st.ncomps[v] = uint8(w)
                st.sizes[v] = p.Dest[d].Size
                st.classes[v] = p.Dest[d].Class()
                maxNcomps = maxu(maxNcomps, w)
            }
        }
    }

    /* for live range splitting to work, the register file bound must be
     * aligned to the largest vector footprint */
    align := maxu(maxNcomps, 8)
    demand := self.Demand

    /* spill lowering runs after allocation and needs scratch registers of
     * its own, leave it head-room */
    if self.Spilling {
        demand = maxu(demand, 6 * 2)
        demand += align
    }

    /* the demand bound itself must respect the file alignment */
    demand = alignPot(demand, align)
    if demand > self.MaxPossible {
        panic(fmt.Sprintf("ssa: demand %d exceeds the %d register bound after spilling", demand, self.MaxPossible))
    }

    /* round the bound up to the largest register count with the same
     * occupancy, which reduces live range splitting for free, then down to
     * the file alignment */
    maxRegs := uint32(maxRegistersForOccupancy(occupancyForRegisterCount(uint16(demand))))
    maxRegs = minu(maxRegs, self.MaxPossible)

    /* the helper program has a fixed file */
    if self.Helper {
        maxRegs = 32
    }
    maxRegs = roundDown(maxRegs, align)

    /* or bound tightly for debugging, but never below the preloaded range */
    if self.TightDemand {
        maxRegs = alignPot(maxu(demand, 6 * 2), align)
    }
    if maxRegs % align != 0 || maxRegs < 6 * 2 || maxRegs > maxu(self.MaxPossible, demand) {
        panic(fmt.Sprintf("ssa: invalid register bound %d (alignment %d)", maxRegs, align))
    }

    /* allocation walks the blocks in their emitted order, which must agree
     * with dominance */
    cfg.checkBlockOrder()
    st.bound[ClassGPR] = maxRegs
    st.bound[ClassMem] = NumMemSlots

    for _, bb := range cfg.Blocks {
        ctx := &_RaCtx { _RaState: st, block: bb }
        ctx.assignLocal()
    }

    cfg.MaxReg = uint16(st.maxReg[ClassGPR])
    cfg.MaxMemSlot = uint16(st.maxReg[ClassMem])
}

func (self *_RaCtx) setSsaToReg(ssa uint32, reg uint32) {
    cls := self.classes[ssa]
    self.maxReg[cls] = maxu(self.maxReg[cls], reg + uint32(self.ncomps[ssa]) - 1)
    self.ssaToReg[ssa] = uint16(reg)
}

// assignRegs commits value v to the register run starting at reg, which must
// not interfere with anything currently allocated.
func (self *_RaCtx) assignRegs(v Index, reg uint32) {
    cls := v.Class()
    if v.Type != IndexNormal {
        panic("ssa: only SSA values get registers allocated")
    }
    if count := uint32(self.ncomps[v.Value]); reg + count > self.bound[cls] {
        panic(fmt.Sprintf("ssa: %s does not fit below the %s bound %d at r%d", v, cls, self.bound[cls], reg))
    }

    self.setSsaToReg(v.Value, reg)
    if self.visited.contains(v.Value) {
        panic(fmt.Sprintf("ssa: broken SSA, v%d assigned twice", v.Value))
    }
    self.visited.add(v.Value)

    count := uint32(self.ncomps[v.Value])
    if self.used[cls].testRange(reg, count) {
        panic(fmt.Sprintf(
            "ssa: interference assigning %s to r%d at %q in bb_%d\n%s",
            v, reg, self.instr, self.block.Id, spew.Sdump(self.ssaToReg),
        ))
    }

    self.used[cls].setRange(reg, count)
    if cls == ClassGPR {
        self.regToSSA[reg] = v.Value
    }
}

func (self *_RaCtx) setSources(p *Instr) {
    for s := range p.Src {
        if p.Src[s].IsSSA() {
            if !self.visited.contains(p.Src[s].Value) {
                panic(fmt.Sprintf("ssa: v%d used before definition at %q", p.Src[s].Value, p))
            }
            p.Src[s] = registerLike(self.ssaToReg[p.Src[s].Value], p.Src[s])
        }
    }
}

func (self *_RaCtx) setDests(p *Instr) {
    for d := range p.Dest {
        if p.Dest[d].IsSSA() {
            p.Dest[d] = registerLike(self.ssaToReg[p.Dest[d].Value], p.Dest[d])
        }
    }
}

// reserveLiveIn marks the registers of live-in values as in use. Blocks are
// processed in dominance order, so every live-in value is resolved in at
// least the first predecessor; with multiple predecessors a value may live
// in different registers per edge, in which case a seeding phi joins the
// locations, its destination coalesced with the first edge.
//
// For loop headers the back edge predecessor has not run yet; its phi source
// stays in SSA form until the predecessor exports its map, and values
// defined inside the loop are deliberately not reserved, they become fixed
// points instead.
func (self *_RaCtx) reserveLiveIn() {
    bb := self.block
    nrPreds := len(bb.Pred)
    if nrPreds == 0 {
        return
    }

    at := 0
    bb.LiveIn.forEach(func(i uint32) {
        /* skip values defined in loops when processing the loop header, and
         * this block's own phi destinations */
        if !self.visited.contains(i) {
            return
        }

        var base uint32
        if nrPreds > 1 {
            /* the destination is filled from src[0] after, coalescing one
             * of the moves */
            phi := &Instr { Op: OpPhi, Dest: []Index { Null() }, Src: make([]Index, nrPreds) }
            size := self.sizes[i]
            chans := uint8(self.ncomps[i]) / size.Units()

            for pi, pred := range bb.Pred {
                if pred.ssaToRegOut == nil {
                    /* back edge, the register is not known yet */
                    if !bb.LoopHeader {
                        panic(fmt.Sprintf("ssa: unresolved forward predecessor bb_%d of bb_%d", pred.Id, bb.Id))
                    }
                    src := SSAVec(i, size, chans)
                    src.Memory = self.classes[i] == ClassMem
                    phi.Src[pi] = src
                } else {
                    src := RegisterVec(pred.ssaToRegOut[i], size, chans)
                    src.Memory = self.classes[i] == ClassMem
                    phi.Src[pi] = src
                }
            }

            /* predecessor ordering is stable, so all live-in values take
             * their registers from the same predecessor, and that makes the
             * combined assignment valid here */
            if phi.Src[0].Type != IndexRegister {
                panic("ssa: first predecessor of a seeding phi must be resolved")
            }
            phi.Dest[0] = phi.Src[0]
            base = phi.Dest[0].Value
            bb.insertAt(at, phi)
            at++
        } else {
            /* a unique register already */
            base = uint32(bb.Pred[0].ssaToRegOut[i])
        }

        cls := self.classes[i]
        self.setSsaToReg(i, base)
        for j := uint32(0); j < uint32(self.ncomps[i]); j++ {
            self.used[cls].set(base + j)
            if cls == ClassGPR {
                self.regToSSA[base + j] = i
            }
        }
    })
}

// assignLocal allocates one block, then publishes its end-of-block map and
// fixes up the phi sources of its successors.
func (self *_RaCtx) assignLocal() {
    bb := self.block
    self.used[ClassGPR] = new(_RegBitmap)
    self.used[ClassMem] = new(_RegBitmap)
    self.ssaToReg = make([]uint16, self.cfg.Alloc)

    self.reserveLiveIn()

    /* the nesting counter holds r0l throughout programs with control flow,
     * in sync with the demand calculation */
    if self.cfg.AnyCF {
        self.used[ClassGPR].set(0)
    }

    for i := 0; i < len(bb.Ins); i++ {
        p := bb.Ins[i]
        self.instr = p

        if p.Op == OpSplit && len(p.Src) != 0 && p.Src[0].Kill {
            self.assignSplitOfKilled(p)
        } else if p.Op == OpPreload {
            /* preloaded moves must coalesce with their fixed source */
            if p.Dest[0].Size != p.Src[0].Size || p.Src[0].Type != IndexRegister {
                panic(fmt.Sprintf("ssa: malformed preload %q", p))
            }
            self.assignRegs(p.Dest[0], p.Src[0].Value)
            self.setDests(p)
        } else {
            self.assignGeneric(p)
        }

        /* splice in any live range split copies before the instruction */
        if n := len(self.pending); n != 0 {
            for j, pc := range self.pending {
                bb.insertAt(i + j, pc)
            }
            self.pending = self.pending[:0]
            i += n
        }
    }

    bb.ssaToRegOut = self.ssaToReg

    /* also set the sources of the phis in our successors, since that
     * logically happens now */
    for _, succ := range bb.Succ {
        pi := succ.predecessorIndex(bb)
        succ.forEachPhi(func(phi *Instr) {
            if phi.Src[pi].IsSSA() {
                phi.Src[pi] = registerLike(self.ssaToReg[phi.Src[pi].Value], phi.Src[pi])
            }
        })
    }
}

// assignSplitOfKilled removes a split of a dying vector for free by placing
// the destinations exactly over the source lanes.
func (self *_RaCtx) assignSplitOfKilled(p *Instr) {
    if p.Src[0].Class() != ClassGPR {
        panic("ssa: split of a memory value")
    }

    reg := uint32(self.ssaToReg[p.Src[0].Value])
    width := uint32(splitWidth(p).Units())

    for d := range p.Dest {
        off := reg + uint32(d) * width

        /* free up the source lane, then assign the destination over it */
        self.used[ClassGPR].clearRange(off, width)
        if !p.Dest[d].IsNull() {
            self.assignRegs(p.Dest[d], off)
        }
    }

    /* free the tail lanes not covered by any destination */
    if total, covered := uint32(self.ncomps[p.Src[0].Value]), uint32(len(p.Dest)) * width; total > covered {
        self.used[ClassGPR].clearRange(reg + covered, total - covered)
    }

    self.setSources(p)
    self.setDests(p)
}

func (self *_RaCtx) assignGeneric(p *Instr) {
    /* first, free killed sources */
    for s := range p.Src {
        if p.Src[s].IsSSA() && p.Src[s].Kill {
            cls := p.Src[s].Class()
            reg := uint32(self.ssaToReg[p.Src[s].Value])
            self.used[cls].clearRange(reg, uint32(self.ncomps[p.Src[s].Value]))
        }
    }

    /* next, assign destinations one at a time, which is always possible
     * because of the SSA form */
    for d := range p.Dest {
        if p.Dest[d].IsSSA() {
            self.assignRegs(p.Dest[d], self.pickRegs(p, d))
        }
    }

    /* phi sources are set from the corresponding predecessors instead */
    if p.Op != OpPhi {
        self.setSources(p)
    }
    self.setDests(p)
}

// tryCoalesceWith attempts to place the current destination over the
// register run of ssa, which only works if ssa is resolved and its run has
// been freed (a kill) or never blocks the full width.
func (self *_RaCtx) tryCoalesceWith(ssa Index, count uint32, mayBeUnvisited bool) (uint32, bool) {
    if ssa.Type != IndexNormal {
        panic("ssa: coalescing target must be an SSA value")
    }
    if !self.visited.contains(ssa.Value) {
        if !mayBeUnvisited {
            panic(fmt.Sprintf("ssa: v%d used before definition", ssa.Value))
        }
        return 0, false
    }

    base := uint32(self.ssaToReg[ssa.Value])
    cls := ssa.Class()
    if self.used[cls].testRange(base, count) {
        return 0, false
    }

    if base + count > self.bound[cls] {
        panic("ssa: coalescing past the register bound")
    }
    return base, true
}

// affinityBaseOfCollect is where the collect destination would start if its
// s'th source stays in its current register.
func (self *_RaCtx) affinityBaseOfCollect(collect *Instr, s int) uint32 {
    srcReg := uint32(self.ssaToReg[collect.Src[s].Value])
    srcOffset := uint32(s) * uint32(collect.Src[s].Size.Units())

    if srcReg >= srcOffset {
        return srcReg - srcOffset
    } else {
        return ^uint32(0)
    }
}

// pickRegs chooses a register run for destination d of p, trying a chain of
// coalescing affinities before settling for any free run.
func (self *_RaCtx) pickRegs(p *Instr, d int) uint32 {
    idx := p.Dest[d]
    cls := idx.Class()
    count := uint32(self.ncomps[idx.Value])
    if count < 1 {
        panic(fmt.Sprintf("ssa: v%d has no width", idx.Value))
    }
    align := count

    /* try to allocate phis compatibly with their sources */
    if p.Op == OpPhi {
        for s := range p.Src {
            if !p.Src[s].IsSSA() {
                continue
            }

            /* loop headers have phis with a source preceding the definition */
            if out, ok := self.tryCoalesceWith(p.Src[s], count, self.block.LoopHeader); ok {
                return out
            }
        }
    }

    /* try to allocate collects compatibly with their sources */
    if p.Op == OpCollect {
        for s := range p.Src {
            if !p.Src[s].IsSSA() {
                continue
            }
            if !self.visited.contains(p.Src[s].Value) {
                panic("ssa: collect source unresolved despite dominance order")
            }

            base := self.affinityBaseOfCollect(p, s)
            if base >= self.bound[cls] || base + count > self.bound[cls] {
                continue
            }

            /* unaligned bases happen when the dest size exceeds the src size */
            if base % align != 0 {
                continue
            }
            if !self.used[cls].testRange(base, count) {
                return base
            }
        }
    }

    /* try to allocate sources of collects contiguously */
    if cp := self.srcToCollectPhi[idx.Value]; cp != nil && cp.Op == OpCollect {
        if count != align {
            panic("ssa: collect sources are scalar")
        }

        /* our offset in the collect; a repeated source is not unique, take
         * the first occurrence */
        ourSource := -1
        for s := range cp.Src {
            if cp.Src[s].IsSSA() && cp.Src[s].equiv(idx) {
                ourSource = s
                break
            }
        }
        if ourSource < 0 {
            panic("ssa: source must appear in its collect")
        }

        /* see if we can allocate compatibly with any resolved source */
        for s := range cp.Src {
            if !cp.Src[s].IsSSA() || !self.visited.contains(cp.Src[s].Value) {
                continue
            }

            base := self.affinityBaseOfCollect(cp, s)
            if base >= self.bound[cls] {
                continue
            }

            /* don't allocate past the end of the file */
            ourReg := base + uint32(ourSource) * align
            if ourReg + align > self.bound[cls] {
                continue
            }
            if !self.used[cls].testRange(ourReg, align) {
                return ourReg
            }
        }

        collectAlign := uint32(self.ncomps[cp.Dest[0].Value])
        offset := uint32(ourSource) * align
        total := uint32(len(cp.Src)) * align

        /* prefer a run that leaves room for every source of the collect */
        for base := uint32(0); base + total <= self.bound[cls]; base += collectAlign {
            if !self.used[cls].testRange(base, total) {
                return base + offset
            }
        }

        /* failing that, at least respect the collect destination alignment,
         * which may exceed the source alignment */
        if collectAlign > align {
            for reg := offset; reg + collectAlign <= self.bound[cls]; reg += collectAlign {
                if !self.used[cls].testRange(reg, count) {
                    return reg
                }
            }
        }
    }

    /* try to allocate phi sources compatibly with their phis */
    if cp := self.srcToCollectPhi[idx.Value]; cp != nil && cp.Op == OpPhi {
        for s := range cp.Src {
            if !cp.Src[s].IsSSA() {
                continue
            }
            if out, ok := self.tryCoalesceWith(cp.Src[s], count, true); ok {
                return out
            }
        }

        /* in a loop the phi may be allocated already, try its register */
        if cp.Dest[0].Type == IndexRegister {
            if base := cp.Dest[0].Value; !self.used[cls].testRange(base, count) {
                return base
            }
        }
    }

    /* default to any contiguous aligned run */
    return self.findRegs(p, d, count, align)
}

func (self *_RaCtx) findRegsSimple(cls RegClass, count uint32, align uint32) (uint32, bool) {
    for reg := uint32(0); reg + count <= self.bound[cls]; reg += align {
        if !self.used[cls].testRange(reg, count) {
            return reg, true
        }
    }
    return 0, false
}

// findRegs returns a register run for destination d of p, shuffling other
// values out of the way with parallel copies when the file is fragmented.
func (self *_RaCtx) findRegs(p *Instr, d int, count uint32, align uint32) uint32 {
    if count != align {
        panic("ssa: allocation runs are self-aligned")
    }

    cls := p.Dest[d].Class()
    if reg, ok := self.findRegsSimple(cls, count, align); ok {
        return reg
    }
    if cls != ClassGPR {
        panic("ssa: no memory live range splits")
    }

    clobbered := new(_RegBitmap)
    killed := new(_RegBitmap)
    copies := make([]Copy, 0, count)

    /* the registers holding sources of this instruction, the eviction
     * heuristic deprioritizes them */
    for s := range p.Src {
        if p.Src[s].IsSSA() && p.Src[s].Class() == ClassGPR && self.visited.contains(p.Src[s].Value) {
            base := uint32(self.ssaToReg[p.Src[s].Value])
            killed.setRange(base, uint32(self.ncomps[p.Src[s].Value]))
        }
    }

    reg := self.assignRegsByCopying(count, align, p, &copies, clobbered, killed, cls)
    self.insertCopiesForClobberedKilled(reg, count, p, &copies, clobbered)
    self.pending = append(self.pending, newParallelCopy(copies))

    /* assignRegs requires the range clear, clear it to be reassigned */
    self.used[cls].clearRange(reg, count)
    return reg
}

// assignRegsByCopying picks a partially blocked window, evicts its current
// occupants into fresh homes found recursively, and returns the window base.
// Recursion terminates because each evicted value is strictly narrower than
// the window it vacates.
func (self *_RaCtx) assignRegsByCopying(npotCount uint32, align uint32, p *Instr, copies *[]Copy,
    clobbered *_RegBitmap, killed *_RegBitmap, cls RegClass) uint32 {
    if p.Op == OpPhi {
        panic("ssa: cannot split live ranges for a phi destination")
    }

    /* widen to the next power of two, the demand calculation already
     * accounts for the excess */
    count := nextPow2(npotCount)
    if align > count {
        panic("ssa: alignment above the rounded width")
    }

    base := self.findBestRegionToEvict(cls, count, clobbered, killed)
    if count > MaxVecUnits {
        panic("ssa: eviction window above the maximum allocation size")
    }

    /* the set of blocking registers to evict, then claim the window so
     * recursive calls don't reuse it */
    evict := uint32(0)
    for i := uint32(0); i < count; i++ {
        if self.used[cls].test(base + i) {
            evict |= 1 << i
        }
    }
    self.used[cls].setRange(base, count)

    for i := uint32(0); i < MaxVecUnits; i++ {
        if evict & (1 << i) == 0 {
            continue
        }

        reg := base + i
        ssa := self.regToSSA[reg]
        nr := uint32(self.ncomps[ssa])
        al := uint32(self.sizes[ssa].Units())

        if nr < 1 || uint32(self.ssaToReg[ssa]) != reg {
            panic("ssa: eviction window cuts a value in half")
        }
        if nr >= count {
            panic("ssa: evicted value fills its window")
        }

        /* find the value a new home and copy it over lane by lane */
        newReg := self.assignRegsByCopying(nr, al, p, copies, clobbered, killed, cls)
        for j := uint32(0); j < nr; j += al {
            if (newReg + j) % al != 0 || (reg + j) % al != 0 {
                panic("ssa: misaligned eviction copy")
            }
            *copies = append(*copies, Copy {
                Dest : uint16(newReg + j),
                Src  : Register(uint16(reg + j), self.sizes[ssa]),
            })
        }

        /* record the clobber so killed sources can be patched up later */
        clobbered.setRange(newReg, nr)
        self.setSsaToReg(ssa, newReg)
        self.regToSSA[newReg] = ssa
        i += nr - 1
    }

    /* free the over-allocation of non-power-of-two values, the demand bound
     * charges the full rounded footprint anyway */
    if npotCount != count {
        self.used[cls].clearRange(base + npotCount, count - npotCount)
    }
    return base
}

// insertCopiesForClobberedKilled moves killed sources whose registers were
// clobbered by the eviction into the destination window itself, so the
// instruction still reads the right values. They fit: sources already inside
// the window (size k) plus sources clobbered to make room (at most size
// count-k) total at most count.
func (self *_RaCtx) insertCopiesForClobberedKilled(reg uint32, count uint32, p *Instr,
    copies *[]Copy, clobbered *_RegBitmap) {
    var vars []uint32

    /* the nesting counter is never moved, findBestRegionToEvict knows
     * better than to pick it */
    if reg == 0 && self.cfg.AnyCF {
        panic("ssa: the window must not cover the nesting counter")
    }

    /* consider the destination clobbered, so killed sources already inside
     * it are preserved (possibly compacted) */
    clobbered.setRange(reg, count)

    /* collect the killed clobbered sources, if any */
    for s := range p.Src {
        if !p.Src[s].IsSSA() || !p.Src[s].Kill || p.Src[s].Class() != ClassGPR {
            continue
        }
        if r := uint32(self.ssaToReg[p.Src[s].Value]); clobbered.test(r) {
            vars = append(vars, p.Src[s].Value)
        }
    }
    if len(vars) == 0 {
        return
    }
    if len(vars) > MaxVecUnits {
        panic("ssa: more clobbered sources than the window holds")
    }

    /* sort by descending alignment so they pack naturally aligned */
    sort.SliceStable(vars, func(i int, j int) bool {
        return self.sizes[vars[i]] > self.sizes[vars[j]]
    })

    /* the window alignment covers the largest killed source alignment,
     * since that source must fit inside the destination */
    base := reg
    if base % uint32(self.sizes[vars[0]].Units()) != 0 {
        panic("ssa: window alignment below killed source alignment")
    }

    for _, v := range vars {
        varBase := uint32(self.ssaToReg[v])
        varCount := uint32(self.ncomps[v])
        varAlign := uint32(self.sizes[v].Units())

        if self.classes[v] != ClassGPR || base % varAlign != 0 || varCount % varAlign != 0 {
            panic("ssa: malformed killed source relocation")
        }
        for j := uint32(0); j < varCount; j += varAlign {
            *copies = append(*copies, Copy {
                Dest : uint16(base + j),
                Src  : Register(uint16(varBase + j), self.sizes[v]),
            })
        }

        self.setSsaToReg(v, base)
        self.regToSSA[base] = v
        base += varCount
    }

    if base > reg + count {
        panic("ssa: relocated killed sources overflow the window")
    }
}

// findBestRegionToEvict scans the file in aligned windows of the given size
// and returns the one whose eviction takes the fewest moves. A window must
// keep at least one free unit, the recursive re-homing relies on it, and may
// not contain anything already evicted or the nesting counter.
func (self *_RaCtx) findBestRegionToEvict(cls RegClass, size uint32, alreadyEvicted *_RegBitmap, killed *_RegBitmap) uint32 {
    if size == 0 || size & (size - 1) != 0 {
        panic("ssa: eviction windows are power-of-two sized")
    }
    if self.bound[cls] % size != 0 {
        panic("ssa: register bound must be aligned to the maximum vector size")
    }
    if cls != ClassGPR {
        panic("ssa: only the GPR file supports eviction")
    }

    bestBase := ^uint32(0)
    bestMoves := ^uint32(0)

    for base := uint32(0); base + size <= self.bound[cls]; base += size {
        /* r0l is unevictable; since at least size units are free in total,
         * some window without it still has a free unit */
        if base == 0 && self.cfg.AnyCF {
            continue
        }

        /* no point evicting the same register twice, this is just a
         * shuffle, there is room elsewhere */
        if alreadyEvicted.testRange(base, size) {
            continue
        }

        /* estimate the number of moves this window costs */
        moves := uint32(0)
        anyFree := false
        for r := base; r < base + size; r++ {
            if self.used[cls].test(r) {
                moves += _EvictCostOccupied
            } else {
                anyFree = true
            }
            if killed.test(r) {
                moves += _EvictCostKilled
            }
        }

        /* windows with no free unit cannot seed the recursion, skip them
         * even when the heuristic likes their cost */
        if anyFree && moves < bestMoves {
            bestMoves = moves
            bestBase = base
        }
    }

    if bestBase >= self.bound[cls] {
        panic(fmt.Sprintf(
            "ssa: not enough registers at %q in bb_%d, should have spilled already\n%s",
            self.instr, self.block.Id, spew.Sdump(self.used[cls]),
        ))
    }
    return bestBase
}

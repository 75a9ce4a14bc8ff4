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
    `testing`

    `github.com/brianvoe/gofakeit/v6`
    `github.com/stretchr/testify/require`
)

func TestAllocate_ThreeValues(t *testing.T) {
    v0 := SSAValue(0, S32)
    v1 := SSAValue(1, S32)
    v2 := SSAValue(2, S32)

    cfg := singleBlock(
        ins(OpMovImm, []Index { v0 }, []Index { Immediate(3) }),
        ins(OpMovImm, []Index { v1 }, []Index { Immediate(4) }),
        ins(OpFAdd, []Index { v2 }, []Index { v0, v1 }),
        ins(OpFMul, []Index { Null() }, []Index { v2, v0 }),
    )

    sim := newSimulator(t)
    sim.record(cfg)
    require.NoError(t, Allocate(cfg, Config { Stage: StageFragment }))

    sim.runPath(cfg.Blocks...)
    checkBounds(t, cfg, NumRegs)

    /* three overlapping 32-bit values need at most six units */
    require.LessOrEqual(t, int(cfg.MaxReg), 5)
}

func TestAllocate_CollectCoalesced(t *testing.T) {
    scalars := make([]Index, 4)
    body := make([]*Instr, 0, 6)
    for i := range scalars {
        scalars[i] = SSAValue(uint32(i), S32)
        body = append(body, ins(OpMovImm, []Index { scalars[i] }, []Index { Immediate(uint32(i)) }))
    }

    vec := SSAVec(4, S32, 4)
    body = append(body,
        ins(OpCollect, []Index { vec }, scalars),
        ins(OpMov, []Index { Null() }, []Index { vec }),
    )

    cfg := singleBlock(body...)
    require.NoError(t, Allocate(cfg, Config { Stage: StageFragment }))

    /* the sibling affinity places the scalars contiguously, so the collect
     * vanishes without a single copy */
    var defs []Index
    for _, p := range cfg.Blocks[0].Ins {
        require.NotEqual(t, OpParallelCopy, p.Op, "collect left a real copy behind: %q", p)
        if p.Op == OpMovImm {
            defs = append(defs, p.Dest[0])
        }
    }

    require.Len(t, defs, 4)
    base := defs[0].Value
    for i, d := range defs {
        require.Equal(t, IndexRegister, d.Type)
        require.Equal(t, base + uint32(i) * 2, d.Value, "scalar %d not contiguous with its collect", i)
    }
}

func TestAllocate_DiamondWithPhi(t *testing.T) {
    v0 := SSAValue(0, S32)
    v1 := SSAValue(1, S32)
    v2 := SSAValue(2, S32)
    v3 := SSAValue(3, S32)
    v4 := SSAValue(4, S32)

    build := func() (*CFG, []*BasicBlock) {
        b0, b1, b2, b3 := newBasicBlock(0), newBasicBlock(1), newBasicBlock(2), newBasicBlock(3)
        b0.Ins = []*Instr {
            ins(OpMovImm, []Index { v0 }, []Index { Immediate(1) }),
            ins(OpMovImm, []Index { v1 }, []Index { Immediate(2) }),
            br(v0),
        }
        b1.Ins = []*Instr {
            ins(OpFAdd, []Index { v2 }, []Index { v0, v0 }),
            jmp(),
        }
        b2.Ins = []*Instr {
            ins(OpFMul, []Index { v3 }, []Index { v0, v1 }),
            jmp(),
        }
        b3.Ins = []*Instr {
            ins(OpPhi, []Index { v4 }, []Index { v2, v3 }),
            ins(OpFAdd, []Index { Null() }, []Index { v4, v1 }),
            ret(),
        }
        link(b0, b1)
        link(b0, b2)
        link(b1, b3)
        link(b2, b3)
        return buildCFG(b0, b1, b2, b3), []*BasicBlock { b0, b1, b2, b3 }
    }

    cfg, bb := build()
    left := newSimulator(t)
    right := newSimulator(t)
    left.record(cfg)
    right.record(cfg)

    require.NoError(t, Allocate(cfg, Config { Stage: StageFragment }))
    checkBounds(t, cfg, NumRegs)

    /* both executions read the values their SSA form named */
    left.runPath(bb[0], bb[1], bb[3])
    right.runPath(bb[0], bb[2], bb[3])
}

func TestAllocate_PhiSwap(t *testing.T) {
    v0 := SSAValue(0, S16)
    v1 := SSAValue(1, S16)
    v2 := SSAValue(2, S16)
    v3 := SSAValue(3, S16)
    v4 := SSAValue(4, S16)

    b0, b1, b2, b3 := newBasicBlock(0), newBasicBlock(1), newBasicBlock(2), newBasicBlock(3)
    b1.LoopHeader = true
    b0.Ins = []*Instr {
        ins(OpMovImm, []Index { v0 }, []Index { Immediate(1) }),
        ins(OpMovImm, []Index { v1 }, []Index { Immediate(2) }),
        jmp(),
    }
    b1.Ins = []*Instr {
        /* the loop swaps the two values every iteration */
        ins(OpPhi, []Index { v2 }, []Index { v0, v3 }),
        ins(OpPhi, []Index { v3 }, []Index { v1, v2 }),
        ins(OpIAdd, []Index { v4 }, []Index { v2, v3 }),
        br(v4),
    }
    b2.Ins = []*Instr { jmp() }
    b3.Ins = []*Instr {
        ins(OpFAdd, []Index { Null() }, []Index { v2, v3 }),
        ret(),
    }
    link(b0, b1)
    link(b1, b2)
    link(b1, b3)
    link(b2, b1)

    cfg := buildCFG(b0, b1, b2, b3)
    require.NoError(t, Allocate(cfg, Config { Stage: StageFragment }))

    /* the latch must carry one parallel copy encoding the register swap */
    var pc *Instr
    for _, p := range b2.Ins {
        if p.Op == OpParallelCopy {
            require.Nil(t, pc, "more than one parallel copy in the latch")
            pc = p
        }
    }

    require.NotNil(t, pc, "swap lost in the latch")
    require.Len(t, pc.Copies, 2)

    c0, c1 := pc.Copies[0], pc.Copies[1]
    require.Equal(t, IndexRegister, c0.Src.Type)
    require.Equal(t, IndexRegister, c1.Src.Type)
    require.NotEqual(t, c0.Dest, c1.Dest)
    require.Equal(t, uint32(c0.Dest), c1.Src.Value, "not a swap")
    require.Equal(t, uint32(c1.Dest), c0.Src.Value, "not a swap")

    /* the cycle sequences into three moves through the scratch unit */
    seq := Sequence(pc.Copies, uint16(cfg.MaxReg) + 1)
    require.Len(t, seq, 3)
}

func TestRegAlloc_EvictionFragmented(t *testing.T) {
    /* eight scalars sitting on every odd unit of a 16-unit file, so no
     * 2-aligned pair is free although half the file is */
    nv := uint32(10)
    bb := newBasicBlock(0)
    cfg := &CFG { Root: bb, Blocks: []*BasicBlock { bb }, Alloc: nv }

    st := &_RaState {
        cfg             : cfg,
        ncomps          : make([]uint8, nv),
        sizes           : make([]Size, nv),
        classes         : make([]RegClass, nv),
        visited         : newValueSet(nv),
        srcToCollectPhi : make([]*Instr, nv),
    }
    st.bound[ClassGPR] = 16
    st.bound[ClassMem] = NumMemSlots

    ctx := &_RaCtx { _RaState: st, block: bb, ssaToReg: make([]uint16, nv) }
    ctx.used[ClassGPR] = new(_RegBitmap)
    ctx.used[ClassMem] = new(_RegBitmap)

    for v := uint32(0); v < 8; v++ {
        reg := 2 * v + 1
        st.ncomps[v] = 1
        st.sizes[v] = S16
        st.classes[v] = ClassGPR
        st.visited.add(v)
        ctx.ssaToReg[v] = uint16(reg)
        ctx.used[ClassGPR].set(reg)
        ctx.regToSSA[reg] = v
    }

    /* a 2-unit destination has to evict someone */
    dst := SSAValue(8, S32)
    st.ncomps[8] = 2
    st.sizes[8] = S32
    st.classes[8] = ClassGPR

    p := ins(OpFAdd, []Index { dst }, nil)
    ctx.instr = p
    reg := ctx.pickRegs(p, 0)
    ctx.assignRegs(dst, reg)

    /* the window keeps its alignment and the evicted scalar was re-homed
     * with exactly one copy */
    require.Zero(t, reg % 2)
    require.Len(t, ctx.pending, 1)
    require.Len(t, ctx.pending[0].Copies, 1)

    evicted := ctx.regToSSA[ctx.pending[0].Copies[0].Dest]
    require.Less(t, evicted, uint32(8))
    require.NotEqual(t, uint32(ctx.ssaToReg[evicted]), ctx.pending[0].Copies[0].Src.Value, "value did not move")

    /* every value still has a private home */
    seen := map[uint16]uint32 {}
    for v := uint32(0); v < 8; v++ {
        seen[ctx.ssaToReg[v]] = v
    }
    require.Len(t, seen, 8)
    for v := uint32(0); v < 8; v++ {
        lo, hi := uint32(ctx.ssaToReg[v]), uint32(ctx.ssaToReg[v]) + 1
        require.True(t, lo >= reg + 2 || hi <= reg, "v%d overlaps the new destination", v)
    }
}

func TestAllocate_TightDemandRandom(t *testing.T) {
    faker := gofakeit.New(0xa11c)
    for round := 0; round < 32; round++ {
        cfg := randomStraightLine(faker, 4 + faker.Number(0, 16))
        cfg.Rebuild()
        Liveness{}.Apply(cfg)
        demand := calcRegisterDemand(cfg)

        sim := newSimulator(t)
        sim.record(cfg)
        require.NoError(t, Allocate(cfg, Config { Stage: StageFragment, TightDemand: true }), "round %d", round)

        /* a tight bound forces shuffling, the values must still flow */
        sim.runPath(cfg.Blocks...)
        checkBounds(t, cfg, alignPot(maxu(demand, 12), 16))
    }
}

func TestAllocate_ComputeStageBound(t *testing.T) {
    v0 := SSAValue(0, S32)
    v1 := SSAValue(1, S32)

    cfg := singleBlock(
        ins(OpMovImm, []Index { v0 }, []Index { Immediate(1) }),
        ins(OpFAdd, []Index { v1 }, []Index { v0, v0 }),
        ins(OpMov, []Index { Null() }, []Index { v1 }),
    )

    /* a full 1024-thread workgroup caps the file at 128 registers */
    require.NoError(t, Allocate(cfg, Config { Stage: StageCompute, WorkgroupSize: [3]uint16 { 32, 32, 1 } }))
    checkBounds(t, cfg, 128)
}

func TestAllocate_VertexPreloadFloor(t *testing.T) {
    v0 := SSAValue(0, S16)
    cfg := singleBlock(
        ins(OpMovImm, []Index { v0 }, []Index { Immediate(1) }),
        ins(OpMov, []Index { Null() }, []Index { v0 }),
    )

    /* tiny programs still reserve the preloaded vertex/instance ids */
    require.NoError(t, Allocate(cfg, Config { Stage: StageVertex }))
    require.GreaterOrEqual(t, int(cfg.MaxReg), 12)
}

func TestAllocate_SplitOfKilledVector(t *testing.T) {
    vec := SSAVec(0, S16, 4)
    d0 := SSAValue(1, S16)
    d1 := SSAValue(2, S16)

    cfg := singleBlock(
        ins(OpMovImm, []Index { vec }, []Index { Immediate(0) }),
        ins(OpSplit, []Index { d0, d1, Null(), Null() }, []Index { vec }),
        ins(OpIAdd, []Index { Null() }, []Index { d0, d1 }),
    )

    sim := newSimulator(t)
    sim.record(cfg)
    require.NoError(t, Allocate(cfg, Config { Stage: StageFragment }))

    /* the split of a dying vector is free: destinations sit right on the
     * source lanes and no copies remain */
    for _, p := range cfg.Blocks[0].Ins {
        require.NotEqual(t, OpParallelCopy, p.Op, "split of a killed vector left a copy: %q", p)
    }
    sim.runPath(cfg.Blocks...)
}

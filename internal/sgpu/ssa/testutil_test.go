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
    `testing`

    `github.com/stretchr/testify/require`
)

func ins(op Op, dest []Index, src []Index) *Instr {
    return newInstr(op, dest, src)
}

func ret() *Instr {
    return newInstr(OpReturn, nil, nil)
}

func jmp() *Instr {
    return newInstr(OpJump, nil, nil)
}

func br(cond Index) *Instr {
    return newInstr(OpBranch, nil, []Index { cond })
}

// link wires an edge a -> b, appending to both adjacency lists. The phi
// source slot for the edge is b's predecessor index of a.
func link(a *BasicBlock, b *BasicBlock) {
    a.Succ = append(a.Succ, b)
    b.Pred = append(b.Pred, a)
}

// buildCFG assembles a CFG from blocks in allocation order, deriving the SSA
// id watermark from the operands in use.
func buildCFG(blocks ...*BasicBlock) *CFG {
    cfg := &CFG { Root: blocks[0], Blocks: blocks }
    for _, bb := range blocks {
        for _, p := range bb.Ins {
            for _, v := range p.Dest {
                if v.IsSSA() && v.Value >= cfg.Alloc {
                    cfg.Alloc = v.Value + 1
                }
            }
            for _, v := range p.Src {
                if v.IsSSA() && v.Value >= cfg.Alloc {
                    cfg.Alloc = v.Value + 1
                }
            }
        }
    }
    return cfg
}

func singleBlock(body ...*Instr) *CFG {
    bb := newBasicBlock(0)
    bb.Ins = append(body, ret())
    return buildCFG(bb)
}

// _SimUnit is the contents of one 16-bit unit during simulation: one lane of
// a computed value, an immediate, a uniform, or empty.
type _SimUnit string

func valueToken(v uint32, lane int) _SimUnit {
    return _SimUnit(fmt.Sprintf("v%d.%d", v, lane))
}

// _Simulator checks an allocated program against its own SSA form. Phase
// one (record + evalPath) interprets a snapshot of the SSA program along an
// execution path, assigning every value its lane tokens; phase two
// (runPath) replays the allocated program on a modelled register file and
// requires every opaque instruction to read exactly the tokens its SSA
// sources held, no matter where copies, shuffles or spills moved them.
type _Simulator struct {
    t    *testing.T
    gpr  map[uint32]_SimUnit
    mem  map[uint32]_SimUnit
    snap map[*BasicBlock][]*Instr
    toks map[uint32][]_SimUnit
    want map[*Instr][][]Index
}

func newSimulator(t *testing.T) *_Simulator {
    return &_Simulator {
        t    : t,
        gpr  : make(map[uint32]_SimUnit),
        mem  : make(map[uint32]_SimUnit),
        snap : make(map[*BasicBlock][]*Instr),
        toks : make(map[uint32][]_SimUnit),
        want : make(map[*Instr][][]Index),
    }
}

// record snapshots the whole program before allocation rewrites it.
func (self *_Simulator) record(cfg *CFG) {
    for _, bb := range cfg.Blocks {
        snap := make([]*Instr, len(bb.Ins))
        for i, p := range bb.Ins {
            q := &Instr { Op: p.Op, Dest: make([]Index, len(p.Dest)), Src: make([]Index, len(p.Src)) }
            copy(q.Dest, p.Dest)
            copy(q.Src, p.Src)
            snap[i] = q

            /* opaque ops are checked operand by operand in phase two */
            switch p.Op {
                case OpFAdd, OpFMul, OpIAdd, OpBranch:
                    self.want[p] = [][]Index { q.Dest, q.Src }
            }
        }
        self.snap[bb] = snap
    }
}

// synth produces the tokens a non-SSA operand carries, sized to the reader.
func (self *_Simulator) synth(idx Index, w int) []_SimUnit {
    units := make([]_SimUnit, w)
    switch idx.Type {
        case IndexImmediate:
            for i := range units {
                units[i] = _SimUnit(fmt.Sprintf("imm%d.%d", idx.Value, i))
            }
        case IndexUniform:
            for i := range units {
                units[i] = _SimUnit(fmt.Sprintf("u%d", idx.Value + uint32(i)))
            }
        default:
            self.t.Fatalf("cannot synthesize tokens for %s", idx)
    }
    return units
}

func (self *_Simulator) tokensOf(idx Index, w int) []_SimUnit {
    if idx.IsSSA() {
        units := self.toks[idx.Value]
        require.Len(self.t, units, w, "width mismatch reading v%d", idx.Value)
        return units
    }
    return self.synth(idx, w)
}

// evalPath interprets the SSA snapshot along the given block path, filling
// in the lane tokens of every value defined on it.
func (self *_Simulator) evalPath(path ...*BasicBlock) {
    var prev *BasicBlock
    for _, bb := range path {
        for _, q := range self.snap[bb] {
            switch q.Op {
                case OpPhi:
                    pi := bb.predecessorIndex(prev)
                    self.toks[q.Dest[0].Value] = self.tokensOf(q.Src[pi], int(q.Dest[0].Width()))

                case OpMov, OpMovImm:
                    if q.Dest[0].IsSSA() {
                        self.toks[q.Dest[0].Value] = self.tokensOf(q.Src[0], int(q.Dest[0].Width()))
                    }

                case OpCollect:
                    units := make([]_SimUnit, 0, q.Dest[0].Width())
                    for _, s := range q.Src {
                        units = append(units, self.tokensOf(s, int(s.Width()))...)
                    }
                    self.toks[q.Dest[0].Value] = units

                case OpSplit:
                    w := int(splitWidth(q).Units())
                    units := self.tokensOf(q.Src[0], int(q.Src[0].Width()))
                    for i, d := range q.Dest {
                        if d.IsSSA() {
                            self.toks[d.Value] = units[i * w : (i + 1) * w]
                        }
                    }

                case OpPreload:
                    units := make([]_SimUnit, q.Dest[0].Width())
                    for i := range units {
                        units[i] = _SimUnit(fmt.Sprintf("pre.r%d.%d", q.Src[0].Value, i))
                    }
                    self.toks[q.Dest[0].Value] = units
                    self.write(false, q.Src[0].Value, units)

                default:
                    /* opaque ops mint fresh tokens for their results */
                    for _, d := range q.Dest {
                        if d.IsSSA() {
                            units := make([]_SimUnit, d.Width())
                            for i := range units {
                                units[i] = valueToken(d.Value, i)
                            }
                            self.toks[d.Value] = units
                        }
                    }
            }
        }
        prev = bb
    }
}

func (self *_Simulator) file(mem bool) map[uint32]_SimUnit {
    if mem {
        return self.mem
    } else {
        return self.gpr
    }
}

func (self *_Simulator) read(idx Index) []_SimUnit {
    if idx.Type != IndexRegister {
        return self.synth(idx, int(idx.Width()))
    }
    units := make([]_SimUnit, idx.Width())
    for i := range units {
        units[i] = self.file(idx.Memory)[idx.Value + uint32(i)]
    }
    return units
}

func (self *_Simulator) write(mem bool, base uint32, units []_SimUnit) {
    for i, u := range units {
        self.file(mem)[base + uint32(i)] = u
    }
}

// step executes one instruction of the allocated program.
func (self *_Simulator) step(p *Instr) {
    if p.Op == OpParallelCopy {
        /* all reads happen before any write */
        staged := make([][]_SimUnit, len(p.Copies))
        for i, c := range p.Copies {
            staged[i] = self.read(c.Src)
        }
        for i, c := range p.Copies {
            self.write(c.DestMem, uint32(c.Dest), staged[i])
        }
        return
    }

    if rec, ok := self.want[p]; ok {
        dst, src := rec[0], rec[1]

        /* every register source must carry the lanes of the SSA value the
         * original instruction read */
        for s := range src {
            if !src[s].IsSSA() {
                continue
            }
            require.Equal(self.t, IndexRegister, p.Src[s].Type, "source %d of %q not allocated", s, p)
            got := self.read(p.Src[s])
            for lane, u := range got {
                require.Equal(self.t, self.toks[src[s].Value][lane], u,
                    "%q reads the wrong value in lane %d of source %d", p, lane, s)
            }
        }
        for d := range dst {
            if dst[d].IsSSA() {
                require.Equal(self.t, IndexRegister, p.Dest[d].Type, "destination %d of %q not allocated", d, p)
                self.write(p.Dest[d].Memory, p.Dest[d].Value, self.toks[dst[d].Value])
            }
        }
        return
    }

    switch p.Op {
        case OpMov, OpMovImm:
            if p.Dest[0].IsNull() {
                return
            }
            if p.Dest[0].Type != IndexRegister {
                self.t.Fatalf("unallocated destination in %q", p)
            }
            units := self.read(p.Src[0])
            if p.Src[0].Type != IndexRegister {
                units = self.synth(p.Src[0], int(p.Dest[0].Width()))
            }
            self.write(p.Dest[0].Memory, p.Dest[0].Value, units)
        case OpNop, OpJump, OpReturn, OpBranch:
            /* no data flow */
        default:
            self.t.Fatalf("unexpected op %s after allocation", p.Op)
    }
}

// runPath interprets the SSA snapshot along path, then replays the
// allocated program over the same blocks, checking as it goes.
func (self *_Simulator) runPath(path ...*BasicBlock) {
    self.evalPath(path...)
    for _, bb := range path {
        for _, p := range bb.Ins {
            self.step(p)
        }
    }
}

// checkBounds fails if any GPR operand reaches past the given register
// bound. A light structural check used on top of the simulator.
func checkBounds(t *testing.T, cfg *CFG, bound uint32) {
    for _, bb := range cfg.Blocks {
        for _, p := range bb.Ins {
            eachRegOperand(p, func(idx Index, _ bool) {
                if !idx.Memory {
                    require.LessOrEqual(t, idx.Value + uint32(idx.Width()), bound,
                        "%s in %q exceeds the register bound %d", idx, p, bound)
                }
            })
        }
    }
}

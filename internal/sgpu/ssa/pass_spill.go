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

// SpillAll demotes every SSA value to the memory class, trivially bounding
// GPR demand to the largest single instruction. Each value v gets a shadow
// memory twin v + memBase; phis are retargeted to the shadows directly
// (phis may access memory), other instructions get a fill mov before each
// source read and a store mov after each destination write.
//
// Only phis and moves may touch memory values afterwards.
type SpillAll struct{}

func (SpillAll) String() string {
    return "Trivial Spilling"
}

// asMem redirects an SSA operand to its shadow memory twin.
func asMem(idx Index, memBase uint32) Index {
    if idx.Type != IndexNormal || idx.Memory {
        panic("ssa: only GPR-class SSA values can be spilled")
    }
    idx.Memory = true
    idx.Value += memBase
    return idx
}

func (self SpillAll) Apply(cfg *CFG) {
    /* Immediates and uniforms cannot live in memory, so they may not appear
     * in phi webs. Materialize them into temporaries in the predecessor. */
    for _, bb := range cfg.Blocks {
        bb.forEachPhi(func(phi *Instr) {
            for s := range phi.Src {
                t := phi.Src[s].Type
                if t != IndexImmediate && t != IndexUniform {
                    continue
                }

                pred := bb.Pred[s]
                temp := SSAValue(cfg.NewValue(), phi.Dest[0].Size)

                if t == IndexImmediate {
                    pred.insertAt(pred.logicalEnd(), newMovImm(temp, phi.Src[s].Value))
                } else {
                    pred.insertAt(pred.logicalEnd(), newMov(temp, phi.Src[s]))
                }
                phi.Src[s] = temp
            }
        })
    }

    /* now every phi operand is a plain SSA value, spill everything */
    memBase := cfg.Alloc
    cfg.Alloc += cfg.Alloc

    for _, bb := range cfg.Blocks {
        ins := make([]*Instr, 0, len(bb.Ins) * 3)

        for _, p := range bb.Ins {
            if p.Op == OpPhi {
                for d := range p.Dest {
                    if p.Dest[d].IsSSA() {
                        p.Dest[d] = asMem(p.Dest[d], memBase)
                    }
                }
                for s := range p.Src {
                    if p.Src[s].IsSSA() {
                        p.Src[s] = asMem(p.Src[s], memBase)
                    }
                }
                ins = append(ins, p)
                continue
            }

            /* fill each source from its shadow into a fresh temporary */
            for s := range p.Src {
                if !p.Src[s].IsSSA() {
                    continue
                }
                fill := SSAVec(cfg.NewValue(), p.Src[s].Size, p.Src[s].Chans)
                ins = append(ins, newMov(fill, asMem(p.Src[s], memBase)))
                p.Src[s] = fill
            }
            ins = append(ins, p)

            /* store each destination back to its shadow */
            for d := range p.Dest {
                if p.Dest[d].IsSSA() {
                    ins = append(ins, newMov(asMem(p.Dest[d], memBase), p.Dest[d]))
                }
            }
        }
        bb.Ins = ins
    }
}

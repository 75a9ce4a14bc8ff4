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

// CopyElim removes the moves the coalescing heuristics managed to make
// trivial: register moves onto themselves and parallel copy entries whose
// source already sits in the destination. Parallel copies with nothing left
// are dropped entirely.
type CopyElim struct{}

func (CopyElim) String() string {
    return "Copy Elimination"
}

func identityCopy(c Copy) bool {
    return c.Src.Type == IndexRegister &&
           c.Src.Value == uint32(c.Dest) &&
           c.Src.Memory == c.DestMem
}

func identityMov(p *Instr) bool {
    return p.Src[0].Type == IndexRegister &&
           p.Dest[0].Type == IndexRegister &&
           p.Dest[0].Size == p.Src[0].Size &&
           p.Src[0].Value == p.Dest[0].Value &&
           p.Src[0].Memory == p.Dest[0].Memory
}

func (CopyElim) Apply(cfg *CFG) {
    for _, bb := range cfg.Blocks {
        ins := bb.Ins[:0]
        for _, p := range bb.Ins {
            switch {
                case p.Op == OpMov && identityMov(p):
                    continue
                case p.Op == OpParallelCopy:
                    cc := p.Copies[:0]
                    for _, c := range p.Copies {
                        if !identityCopy(c) {
                            cc = append(cc, c)
                        }
                    }
                    if p.Copies = cc; len(cc) == 0 {
                        continue
                    }
            }
            ins = append(ins, p)
        }
        bb.Ins = ins
    }
}

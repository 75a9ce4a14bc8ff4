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
)

// calcRegisterDemand computes the peak GPR pressure of the program in 16-bit
// units. Because the program is in SSA and liveness is exact, the result is
// exact in linear time, and the spill decision made from it is final.
//
// Widths are rounded up to powers of two at gather time, matching the
// granularity the allocator assigns at, so the two agree on footprints.
// Depends on liveness information.
func calcRegisterDemand(cfg *CFG) uint32 {
    widths := make([]uint8, cfg.Alloc)
    classes := make([]RegClass, cfg.Alloc)

    /* gather value widths and classes from their definitions */
    for _, bb := range cfg.Blocks {
        for _, p := range bb.Ins {
            for d := range p.Dest {
                if !p.Dest[d].IsSSA() {
                    continue
                }
                v := p.Dest[d].Value
                if widths[v] != 0 {
                    panic(fmt.Sprintf("ssa: broken SSA, v%d defined twice", v))
                }
                widths[v] = uint8(nextPow2(uint32(p.Dest[d].Width())))
                classes[v] = p.Dest[d].Class()
            }
        }
    }

    /* demand at the start of each block is the live-in sum, then update per
     * instruction and keep a rolling maximum */
    maxDemand := 0
    for _, bb := range cfg.Blocks {
        demand := 0

        /* the nesting counter is treated as alive throughout whenever the
         * program has control flow at all */
        if cfg.AnyCF {
            demand++
        }

        /* everything live-in */
        bb.LiveIn.forEach(func(i uint32) {
            if classes[i] == ClassGPR {
                demand += int(widths[i])
            }
        })
        if demand > maxDemand {
            maxDemand = demand
        }

        for _, p := range bb.Ins {
            /* phis happen in parallel and are already accounted for in the
             * live-in set, skip them to avoid double counting */
            if p.Op == OpPhi {
                continue
            }

            /* free killed sources; liveness flags only the first occurrence
             * of a repeated operand, so each dying value is counted once */
            for s := range p.Src {
                if !p.Src[s].Kill {
                    continue
                }
                if p.Src[s].Type != IndexNormal {
                    panic("ssa: kill flag on a non-SSA operand")
                }
                if p.Src[s].Class() == ClassGPR {
                    demand -= int(widths[p.Src[s].Value])
                }
            }

            /* make destinations live */
            for d := range p.Dest {
                if p.Dest[d].IsSSA() && p.Dest[d].Class() == ClassGPR {
                    demand += int(widths[p.Dest[d].Value])
                }
            }
            if demand > maxDemand {
                maxDemand = demand
            }
        }
    }
    return uint32(maxDemand)
}

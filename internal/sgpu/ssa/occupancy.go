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

// The shader core trades register footprint against resident thread count.
// The tiers below model the hardware ladder: a program using up to Regs
// 16-bit registers per thread can keep Threads threads resident.
type _OccupancyTier struct {
    Regs    uint16
    Threads uint16
}

var _OccupancyLadder = [...]_OccupancyTier {
    { Regs: 104, Threads: 1536 },
    { Regs: 112, Threads: 1280 },
    { Regs: 128, Threads: 1024 },
    { Regs: 160, Threads:  896 },
    { Regs: 184, Threads:  768 },
    { Regs: 208, Threads:  640 },
    { Regs: 232, Threads:  576 },
    { Regs: 256, Threads:  512 },
}

// occupancyForRegisterCount is the resident thread count a program with the
// given register demand can sustain.
func occupancyForRegisterCount(nregs uint16) uint16 {
    for _, t := range _OccupancyLadder {
        if nregs <= t.Regs {
            return t.Threads
        }
    }
    panic("ssa: register demand exceeds the register file")
}

// maxRegistersForOccupancy is the largest register budget that still sustains
// the given thread count. Rounding the budget up to this value is free, the
// occupancy is unchanged.
func maxRegistersForOccupancy(threads uint16) uint16 {
    best := _OccupancyLadder[0].Regs
    for _, t := range _OccupancyLadder {
        if t.Threads >= threads {
            best = t.Regs
        }
    }
    return best
}

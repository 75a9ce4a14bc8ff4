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

// Pass is a whole-program transformation or analysis over the CFG.
type Pass interface {
    Apply(*CFG)
}

// PassDescriptor binds a pass instance to its display name.
type PassDescriptor struct {
    Name string
    Pass Pass
}

type ShaderStage uint8

const (
    StageCompute ShaderStage = iota
    StageVertex
    StageFragment
)

func (self ShaderStage) String() string {
    switch self {
        case StageCompute  : return "compute"
        case StageVertex   : return "vertex"
        case StageFragment : return "fragment"
        default            : panic("invalid shader stage")
    }
}

// Config carries the per-shader allocation parameters. Debug behavior is
// controlled here explicitly rather than through process-global flags.
type Config struct {
    Stage             ShaderStage
    WorkgroupSize     [3]uint16
    VariableWorkgroup bool
    HasScratch        bool
    Helper            bool
    ForceSpill        bool
    TightDemand       bool
    DebugSVG          string
}

// maxPossibleRegs is the hard per-thread register bound for this shader.
// Compute shaders must fit a whole workgroup on one core, so their bound
// follows from the workgroup size; the helper program has a fixed file.
func (self Config) maxPossibleRegs() uint32 {
    max := uint32(NumRegs)

    if self.Stage == StageCompute {
        var threads uint32

        /* unknown workgroup sizes are worst-cased */
        if self.VariableWorkgroup {
            threads = 1024
        } else {
            threads = uint32(self.WorkgroupSize[0]) * uint32(self.WorkgroupSize[1]) * uint32(self.WorkgroupSize[2])
        }

        if threads > 0xffff {
            threads = 0xffff
        }
        max = uint32(maxRegistersForOccupancy(uint16(threads)))
    }

    /* the helper program is unspillable and has a limited file */
    if self.Helper {
        max = 32
    }
    return max
}

// AllocError reports a failed allocation. Invariant violations inside the
// passes surface here instead of taking the process down, so one bad shader
// aborts only its own compilation.
type AllocError struct {
    Pass   string
    Reason string
}

func (self *AllocError) Error() string {
    return fmt.Sprintf("allocation failed in %q: %s", self.Pass, self.Reason)
}

// Allocate rewrites cfg from SSA form into concrete registers and stack
// slots, filling in MaxReg, MaxMemSlot, SpillBase and ScratchSize.
func Allocate(cfg *CFG, conf Config) (err error) {
    stage := "Setup"

    defer func() {
        if v := recover(); v != nil {
            err = &AllocError { Pass: stage, Reason: fmt.Sprint(v) }
        }
    }()

    run := func(name string, p Pass) {
        stage = name
        p.Apply(cfg)
    }
    allocate(cfg, conf, run, &stage)
    return nil
}

func allocate(cfg *CFG, conf Config, run func(string, Pass), stage *string) {
    cfg.Rebuild()
    run("Critical Edge Splitting", SplitCritical{})
    cfg.Rebuild()
    run("Liveness Analysis", Liveness{})

    /* the demand decides whether to spill and bounds the assignment */
    *stage = "Demand Estimation"
    demand := calcRegisterDemand(cfg)
    maxPossible := conf.maxPossibleRegs()
    spilling := demand > maxPossible
    spilling = spilling || (conf.ForceSpill && conf.HasScratch)

    if spilling {
        if !conf.HasScratch {
            panic(fmt.Sprintf("ssa: demand %d exceeds %d registers and the shader cannot spill", demand, maxPossible))
        }
        run("Trivial Spilling", SpillAll{})

        /* after spilling, liveness and demand change */
        run("Liveness Analysis", Liveness{})
        *stage = "Demand Estimation"
        demand = calcRegisterDemand(cfg)
        if demand > maxPossible {
            panic(fmt.Sprintf("ssa: demand is still %d of %d after spilling everything", demand, maxPossible))
        }
    }

    run("Register Allocation", RegAlloc {
        Demand      : demand,
        MaxPossible : maxPossible,
        Spilling    : spilling,
        Helper      : conf.Helper,
        TightDemand : conf.TightDemand,
    })

    /* stack slots are 16-bit units, carve the spill area out of scratch */
    *stage = "Scratch Accounting"
    if spilling {
        cfg.SpillBase = cfg.ScratchSize
        cfg.ScratchSize += (uint32(cfg.MaxMemSlot) + 1) * 2
    }

    /* vertex shaders preload the vertex and instance ids even when unused,
     * keep those registers clear of allocations */
    if conf.Stage == StageVertex && cfg.MaxReg < 6 * 2 {
        cfg.MaxReg = 6 * 2
    }

    if conf.DebugSVG != "" {
        *stage = "Occupancy Drawing"
        drawOccupancy(cfg, conf.DebugSVG)
    }

    run("Parallel Copy Resolution", CopyResolve{})
    run("Copy Elimination", CopyElim{})

    /* the exported maps are only meaningful during allocation */
    for _, bb := range cfg.Blocks {
        bb.ssaToRegOut = nil
    }
}

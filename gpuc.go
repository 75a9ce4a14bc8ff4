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

// Package gpuc implements the register allocation stage of a GPU shader
// compiler backend. Programs enter in SSA form over a control flow graph and
// leave with every value assigned to a concrete 16-bit register unit or
// scratch memory slot.
package gpuc

import (
	"github.com/cloudwego/gpuc/internal/sgpu/ssa"
)

// CFG is a shader program as a control flow graph of SSA instructions.
type CFG = ssa.CFG

// BasicBlock is one node of the control flow graph.
type BasicBlock = ssa.BasicBlock

// Instr is a single instruction with ordered destination and source operands.
type Instr = ssa.Instr

// Index is an instruction operand.
type Index = ssa.Index

// Config carries the per-shader allocation parameters.
type Config = ssa.Config

// ShaderStage selects the hardware stage constraints for a shader.
type ShaderStage = ssa.ShaderStage

const (
	StageCompute  = ssa.StageCompute
	StageVertex   = ssa.StageVertex
	StageFragment = ssa.StageFragment
)

// AllocError is the error type returned for shaders that fail to allocate.
type AllocError = ssa.AllocError

// Allocate rewrites cfg out of SSA form, assigning registers and stack slots
// to every value and recording the register and scratch footprint on cfg.
func Allocate(cfg *CFG, conf Config) error {
	return ssa.Allocate(cfg, conf)
}

// Copyright 2025 Google LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package ir

// Builder inserts operations in a program.
type Builder interface {
	// Insert an operation and returns it.
	Insert(op *Op) *Op
}

// BlockBuilder inserts operations in a block at a given point.
type BlockBuilder struct {
	block  *Block
	anchor *Op
}

var _ Builder = (*BlockBuilder)(nil)

// AtEnd returns a builder appending operations at the end of a block.
func AtEnd(b *Block) *BlockBuilder {
	return &BlockBuilder{block: b}
}

// Before returns a builder inserting operations before an anchor.
func Before(anchor *Op) *BlockBuilder {
	return &BlockBuilder{block: anchor.Block(), anchor: anchor}
}

// Block returns the block in which operations are inserted.
func (bb *BlockBuilder) Block() *Block {
	return bb.block
}

// Insert an operation.
func (bb *BlockBuilder) Insert(op *Op) *Op {
	bb.block.InsertBefore(bb.anchor, op)
	return op
}

// Copyright 2025 The layerkit Authors. SPDX-License-Identifier: Apache-2.0

// Package tokens turns text into padded batches of token ids for the embedding layers.
//
// Text is split with a tiktoken BPE encoding, and the BPE ids are folded into a small
// vocabulary [1, vocabSize): id 0 is reserved for padding.
package tokens

import (
	"github.com/pkg/errors"
	"github.com/pkoukk/tiktoken-go"
)

// DefaultEncoding is the tiktoken encoding used by New when none is given.
const DefaultEncoding = "cl100k_base"

// Encoder splits text into BPE token ids. It is implemented by *tiktoken.Tiktoken.
type Encoder interface {
	Encode(text string, allowedSpecial, disallowedSpecial []string) []int
}

var _ Encoder = (*tiktoken.Tiktoken)(nil)

// Vocabulary maps text to token ids in [1, Size).
type Vocabulary struct {
	encoder Encoder
	size    int
}

// New loads the tiktoken encoding (DefaultEncoding if empty) and returns a vocabulary of the
// given size. Loading an encoding may download its BPE ranks the first time.
func New(encodingName string, size int) (*Vocabulary, error) {
	if encodingName == "" {
		encodingName = DefaultEncoding
	}
	encoding, err := tiktoken.GetEncoding(encodingName)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to load tiktoken encoding %q", encodingName)
	}
	return NewWithEncoder(encoding, size)
}

// NewWithEncoder returns a vocabulary of the given size over the ids generated by encoder.
func NewWithEncoder(encoder Encoder, size int) (*Vocabulary, error) {
	if encoder == nil {
		return nil, errors.New("tokens vocabulary requires an encoder")
	}
	if size < 2 {
		return nil, errors.Errorf("tokens vocabulary size must be >= 2 (0 is padding), got %d", size)
	}
	return &Vocabulary{encoder: encoder, size: size}, nil
}

// Size of the vocabulary, including the padding id 0.
func (v *Vocabulary) Size() int { return v.size }

// Fold maps a BPE id to [1, Size).
func (v *Vocabulary) Fold(id int) int32 {
	if id < 0 {
		id = -id
	}
	return int32(1 + id%(v.size-1))
}

// Encode returns the folded ids of text. Special tokens are encoded as plain text.
func (v *Vocabulary) Encode(text string) []int32 {
	ids := v.encoder.Encode(text, nil, nil)
	folded := make([]int32, len(ids))
	for ii, id := range ids {
		folded[ii] = v.Fold(id)
	}
	return folded
}

// Batch encodes texts into tokens shaped [len(texts), maxLength], padded with 0, and their
// lengths. Longer texts are truncated to maxLength. If maxLength <= 0 the longest text is used.
func (v *Vocabulary) Batch(texts []string, maxLength int) (tokens [][]int32, lengths []int32) {
	encoded := make([][]int32, len(texts))
	longest := 0
	for ii, text := range texts {
		encoded[ii] = v.Encode(text)
		longest = max(longest, len(encoded[ii]))
	}
	if maxLength <= 0 {
		maxLength = max(longest, 1)
	}
	tokens = make([][]int32, len(texts))
	lengths = make([]int32, len(texts))
	for ii, ids := range encoded {
		if len(ids) > maxLength {
			ids = ids[:maxLength]
		}
		tokens[ii] = make([]int32, maxLength)
		copy(tokens[ii], ids)
		lengths[ii] = int32(len(ids))
	}
	return
}

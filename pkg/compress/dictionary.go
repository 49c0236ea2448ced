package compress

import (
	"sort"
)

// chunkSize is the shingle width used when sampling common byte
// sequences across training records. Dataset JSON bodies are mostly
// boilerplate field names and product strings repeated across
// records, so a modest chunk size captures most of the redundancy.
const chunkSize = 16

// TrainDictionary builds a zstd dictionary blob from a set of sample
// record bodies (each already in final on-wire JSON form, as produced
// by the cache's own serialization). The result is meant to be
// persisted once as info/zdict at database creation time; per spec,
// dictionaries are immutable for the life of a database.
//
// zstd supports two dictionary forms: a COVER-trained table framed
// with a magic-number header (what zstd.WithEncoderDict /
// WithDecoderDicts expect), and a "raw content" dictionary that is
// simply a blob of representative bytes the compressor references
// without any framing. This package builds the latter: the examples
// available to this module include no COVER trainer (klauspost/compress/zstd
// does not implement one, and no other library in the corpus does
// either), so TrainDictionary instead selects the most frequently
// recurring fixed-size chunks across the sample set and concatenates
// them up to targetSize. Because the result carries no magic header,
// the codec must load it with WithEncoderDictRaw / WithDecoderDictRaw
// on both the compress and decompress side, not the framed-dictionary
// options — see NewCodec and NewDecodeOnlyCodec.
func TrainDictionary(samples [][]byte, targetSize int) ([]byte, error) {
	if targetSize <= 0 {
		targetSize = 8 * 1024
	}
	if len(samples) == 0 {
		return nil, nil
	}

	counts := make(map[string]int)
	order := make([]string, 0)
	for _, sample := range samples {
		if len(sample) < chunkSize {
			continue
		}
		for i := 0; i+chunkSize <= len(sample); i += chunkSize {
			chunk := string(sample[i : i+chunkSize])
			if counts[chunk] == 0 {
				order = append(order, chunk)
			}
			counts[chunk]++
		}
	}

	sort.SliceStable(order, func(i, j int) bool {
		return counts[order[i]] > counts[order[j]]
	})

	dict := make([]byte, 0, targetSize)
	for _, chunk := range order {
		if len(dict)+len(chunk) > targetSize {
			break
		}
		dict = append(dict, chunk...)
	}
	return dict, nil
}

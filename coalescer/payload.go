package coalescer

import "fmt"

// SliceChunk returns the byteSize bytes of payload that start at byteOffset.
// Payloads are in ascending address order, so chunk 0 holds the lowest
// addresses. The payload length must be a multiple of byteSize and the
// offset must be aligned to byteSize.
func SliceChunk(payload []byte, byteOffset, byteSize uint64) ([]byte, error) {
	if err := chunkMustFit(uint64(len(payload)), byteOffset, byteSize); err != nil {
		return nil, err
	}

	chunk := make([]byte, byteSize)
	copy(chunk, payload[byteOffset:byteOffset+byteSize])

	return chunk, nil
}

// PackChunk copies chunk into payload at byteOffset. It follows the same
// rules as SliceChunk.
func PackChunk(payload []byte, byteOffset uint64, chunk []byte) error {
	byteSize := uint64(len(chunk))

	if err := chunkMustFit(uint64(len(payload)), byteOffset, byteSize); err != nil {
		return err
	}

	copy(payload[byteOffset:], chunk)

	return nil
}

func chunkMustFit(payloadSize, byteOffset, byteSize uint64) error {
	switch {
	case byteSize == 0:
		return fmt.Errorf("chunk size must not be zero")
	case payloadSize%byteSize != 0:
		return fmt.Errorf("payload of %d bytes cannot be split into "+
			"%d-byte chunks", payloadSize, byteSize)
	case byteOffset%byteSize != 0:
		return fmt.Errorf("offset %d is not aligned to %d bytes",
			byteOffset, byteSize)
	case byteOffset/byteSize >= payloadSize/byteSize:
		return fmt.Errorf("chunk at offset %d is beyond the %d-byte payload",
			byteOffset, payloadSize)
	}

	return nil
}

package shader

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// SPIRVMagic is the first word of every SPIR-V module.
const SPIRVMagic uint32 = 0x07230203

// ErrInvalidSPIRV is returned for data that is not a SPIR-V module.
var ErrInvalidSPIRV = errors.New("invalid SPIR-V")

// Source loads raw shader files by name.
type Source interface {
	Load(name string) ([]byte, error)
}

// LoadSPIRV reads name from src and returns its words.
func LoadSPIRV(src Source, name string) ([]uint32, error) {
	data, err := src.Load(name)
	if err != nil {
		return nil, fmt.Errorf("loading shader %s: %w", name, err)
	}
	words, err := DecodeSPIRV(data)
	if err != nil {
		return nil, fmt.Errorf("shader %s: %w", name, err)
	}
	return words, nil
}

// DecodeSPIRV converts a little-endian SPIR-V binary into words.
func DecodeSPIRV(data []byte) ([]uint32, error) {
	if len(data) < 20 || len(data)%4 != 0 {
		return nil, fmt.Errorf("%w: size %d", ErrInvalidSPIRV, len(data))
	}
	words := make([]uint32, len(data)/4)
	for i := range words {
		words[i] = binary.LittleEndian.Uint32(data[i*4:])
	}
	if words[0] != SPIRVMagic {
		return nil, fmt.Errorf("%w: magic %#08x", ErrInvalidSPIRV, words[0])
	}
	return words, nil
}

package formats

import (
	"bytes"

	"github.com/Faultbox/neuroview/pkg/binparse"
)

// Kind identifies a file format.
type Kind int

// Known formats.
const (
	KindUnknown Kind = iota
	KindMRIS
	KindCRV
	KindTRK
)

func (k Kind) String() string {
	switch k {
	case KindMRIS:
		return "MRIS"
	case KindCRV:
		return "CRV"
	case KindTRK:
		return "TRK"
	default:
		return "unknown"
	}
}

// Detect returns the format of data based on its magic number.
func Detect(data []byte) Kind {
	if bytes.HasPrefix(data, []byte(TRKMagic)) {
		return KindTRK
	}

	magic, err := binparse.Uint24BE(data, 0)
	if err != nil {
		return KindUnknown
	}
	switch magic {
	case MRISMagic:
		return KindMRIS
	case CRVMagic:
		return KindCRV
	}
	return KindUnknown
}
